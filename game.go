package main

import (
	"sync"
	"time"
)

// Hub wires transport events to the registries, owns the ready and round
// countdowns, and decides when phase transitions fire. Handlers resolve the
// player and room first and abort early on any miss; nothing here ever
// propagates an error back to the transport layer.
type Hub struct {
	cfg        *Config
	identities *IdentityRegistry
	sessions   *SessionRegistry
	tokens     *tokenIssuer

	mu      sync.Mutex
	clients map[string]*client
}

func newHub(cfg *Config) *Hub {
	return &Hub{
		cfg:        cfg,
		identities: newIdentityRegistry(),
		sessions:   newSessionRegistry(cfg.maxRoomSize, cfg.emptyRoomGrace),
		tokens:     newTokenIssuer(cfg),
		clients:    make(map[string]*client),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.correlator] = c
	h.mu.Unlock()

	logf(h.cfg, "GAMES: Connection established with client %s", c.correlator)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.correlator]; ok {
		delete(h.clients, c.correlator)
		close(c.send)
	}
	h.mu.Unlock()

	logf(h.cfg, "GAMES: Connection lost with client %s", c.correlator)

	h.onDisconnect(c)
}

// sendTo delivers to one client, dropping it if its outbox is full.
func (h *Hub) sendTo(c *client, msg any) {
	select {
	case c.send <- msg:
	default:
		h.mu.Lock()
		if _, ok := h.clients[c.correlator]; ok {
			delete(h.clients, c.correlator)
			close(c.send)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) sendToCorrelator(correlator string, msg any) {
	h.mu.Lock()
	c, ok := h.clients[correlator]
	h.mu.Unlock()

	if ok {
		h.sendTo(c, msg)
	}
}

// broadcastRoom sends to every member of a room, sender included. The room
// state this describes must already be durable when it is called.
func (h *Hub) broadcastRoom(s *Session, msg any) {
	s.mu.Lock()
	memberIDs := make([]string, len(s.memberIDs))
	copy(memberIDs, s.memberIDs)
	s.mu.Unlock()

	for _, correlator := range h.identities.correlatorsFor(memberIDs) {
		h.sendToCorrelator(correlator, msg)
	}
}

// resolveJoiner maps a join payload to a player record: empty token means a
// new player, a stale token means a new player plus a token_cleared nudge so
// the client drops it.
func (h *Hub) resolveJoiner(c *client, token, name string) *Identity {
	identityID := ""
	stale := false

	if token != "" {
		claims, err := h.tokens.parse(token)
		if err != nil {
			stale = true
		} else {
			identityID = claims.PlayerID
		}
	}

	id, wasStale := h.identities.resolveOrCreate(identityID, c.correlator, name)
	if stale || wasStale {
		h.sendTo(c, tokenClearedMessage{Type: "token_cleared"})
		logf(h.cfg, "GAMES: Cleared stale token for client %s", c.correlator)
	}

	return id
}

// resolveMember resolves a token to its player and room, requiring current
// membership.
func (h *Hub) resolveMember(token string) (*Identity, *Session, error) {
	claims, err := h.tokens.parse(token)
	if err != nil {
		return nil, nil, err
	}

	id, err := h.identities.byID(claims.PlayerID)
	if err != nil {
		return nil, nil, err
	}

	s, err := h.sessions.byID(claims.SessionID)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	member := s.memberByIDLocked(id.ID) != nil
	s.mu.Unlock()
	if !member {
		return nil, nil, errNotFound
	}

	return id, s, nil
}

// departCurrent tears down the player's existing membership, unless it is the
// join target itself. A player belongs to at most one room, so every join
// path runs this before adding them anywhere; owner transfer and the
// empty-room grace behave as for any other departure.
func (h *Hub) departCurrent(id *Identity, targetID string) {
	s, err := h.sessions.byMember(id.ID)
	if err != nil || s.id == targetID {
		return
	}

	h.leaveSession(s, id)
}

func (h *Hub) completeJoin(c *client, id *Identity, s *Session) {
	s.mu.Lock()
	joiner := PlayerState{
		ID:    id.ID,
		Name:  id.Name,
		Ready: id.Ready,
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	h.sendTo(c, sessionJoinedMessage{
		Type:    "session_joined",
		Joiner:  joiner,
		Session: snap,
	})
	h.broadcastRoom(s, sessionUpdatedMessage{Type: "session_updated", Session: snap})
}

func (h *Hub) onQuickJoin(c *client, msg quickJoinMessage) {
	id := h.resolveJoiner(c, msg.Token, msg.Name)

	s, err := h.sessions.findPublicCandidate()
	if err == nil {
		h.departCurrent(id, s.id)
		err = h.sessions.join(s, id)
	}
	if err != nil {
		// Matchmaking miss, or a race filled the candidate: open a new
		// public room instead.
		h.departCurrent(id, "")
		s = h.sessions.create(id, false)
		logf(h.cfg, "GAMES: Created session %s for %q", s.id, id.Name)
	}

	h.completeJoin(c, id, s)
}

func (h *Hub) onCreateSession(c *client, msg createSessionMessage) {
	id := h.resolveJoiner(c, msg.Token, msg.Name)

	h.departCurrent(id, "")
	s := h.sessions.create(id, false)
	logf(h.cfg, "GAMES: Created session %s for %q", s.id, id.Name)

	h.completeJoin(c, id, s)
}

func (h *Hub) onJoinSession(c *client, msg joinSessionMessage) {
	id := h.resolveJoiner(c, msg.Token, msg.Name)

	s, err := h.sessions.byID(msg.SessionID)
	if err != nil {
		logf(h.cfg, "GAMES: Unknown session %q", msg.SessionID)
		return
	}

	h.departCurrent(id, s.id)

	if err := h.sessions.join(s, id); err != nil {
		// Rejection surfaces to the requester only.
		h.sendTo(c, roomFullMessage{Type: "room_full", SessionID: s.id})
		logf(h.cfg, "GAMES: Session %s is full, rejected %q", s.id, id.Name)
		return
	}

	h.completeJoin(c, id, s)
}

func (h *Hub) onToggleVisibility(c *client, msg toggleVisibilityMessage) {
	s, err := h.sessions.byID(msg.SessionID)
	if err != nil {
		logf(h.cfg, "GAMES: Unknown session %q", msg.SessionID)
		return
	}

	private := h.sessions.togglePrivacy(s)
	logf(h.cfg, "GAMES: Session %s is now private: %t", s.id, private)

	h.broadcastRoom(s, sessionUpdatedMessage{Type: "session_updated", Session: h.sessions.snapshot(s)})
}

func (h *Hub) onSetReady(c *client, msg setReadyMessage) {
	id, s, err := h.resolveMember(msg.Token)
	if err != nil {
		logf(h.cfg, "GAMES: Dropped set_ready from client %s: %v", c.correlator, err)
		return
	}

	s.mu.Lock()
	if s.removed || s.phase != PhasePending {
		s.mu.Unlock()
		return
	}

	ready, ok := s.toggleReadyLocked(id.ID)
	if !ok {
		s.mu.Unlock()
		return
	}

	// Starting a new countdown, or aborting one, both invalidate whatever
	// timer was pending.
	s.readyGen++
	launch := s.allReadyLocked()
	if launch {
		gen := s.readyGen
		time.AfterFunc(h.cfg.readyCountdown, func() {
			h.finishReadyCountdown(s, gen)
		})
	}
	s.mu.Unlock()

	logf(h.cfg, "GAMES: Player %q in session %s ready: %t (countdown: %t)", id.Name, s.id, ready, launch)

	h.broadcastRoom(s, playerReadyUpdatedMessage{
		Type:            "player_ready_updated",
		PlayerID:        id.ID,
		LaunchCountdown: launch,
	})
}

// finishReadyCountdown fires when the ready countdown elapses without being
// aborted, and moves the room into its first drafting round.
func (h *Hub) finishReadyCountdown(s *Session, gen int) {
	s.mu.Lock()
	if s.removed || s.phase != PhasePending || gen != s.readyGen || !s.allReadyLocked() {
		s.mu.Unlock()
		return
	}

	s.phase = PhaseDraft
	if err := s.incrementRoundLocked(); err != nil {
		s.mu.Unlock()
		return
	}

	s.roundGen++
	roundGen := s.roundGen
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logf(h.cfg, "GAMES: Session %s started drafting", s.id)

	h.broadcastRoom(s, sessionUpdatedMessage{Type: "session_updated", Session: snap})
	h.startRound(s, snap.Round, roundGen)
}

// startRound announces the round's prompt and arms its deadline timer.
func (h *Hub) startRound(s *Session, round, gen int) {
	h.broadcastRoom(s, roundStartedMessage{
		Type:   "round_started",
		Round:  round,
		Prompt: randomPrompt(),
	})

	time.AfterFunc(h.cfg.roundCountdown, func() {
		h.advanceRound(s, true, gen)
	})
}

// advanceRound is the single advancement path for the drafting phase,
// reached both from the round deadline timer and from every choice
// submission. The per-session lock makes concurrent triggers safe: whichever
// caller gets there first advances, the other sees a bumped generation or a
// round it has no business touching and backs off. Reports whether it
// advanced.
func (h *Hub) advanceRound(s *Session, deadline bool, gen int) bool {
	s.mu.Lock()

	if s.removed || s.phase != PhaseDraft {
		s.mu.Unlock()
		return false
	}
	if deadline && gen != s.roundGen {
		s.mu.Unlock()
		return false
	}

	allChosen := s.allChosenLocked()
	if !deadline && !allChosen {
		s.mu.Unlock()
		return false
	}

	if s.round >= h.cfg.roundLimit {
		s.roundGen++
		s.phase = PhaseVote
		snap := s.snapshotLocked()
		s.mu.Unlock()

		logf(h.cfg, "GAMES: Session %s finished its last round", s.id)

		h.broadcastRoom(s, lastRoundCompleteMessage{Type: "last_round_complete"})
		h.broadcastRoom(s, sessionUpdatedMessage{Type: "session_updated", Session: snap})
		return true
	}

	s.roundGen++
	nextGen := s.roundGen
	if err := s.incrementRoundLocked(); err != nil {
		s.mu.Unlock()
		return false
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logf(h.cfg, "GAMES: Session %s advanced to round %d", s.id, snap.Round)

	h.broadcastRoom(s, sessionUpdatedMessage{Type: "session_updated", Session: snap})
	h.startRound(s, snap.Round, nextGen)
	return true
}

func (h *Hub) onSubmitChoice(c *client, msg submitChoiceMessage) {
	id, s, err := h.resolveMember(msg.Token)
	if err != nil {
		logf(h.cfg, "GAMES: Dropped submit_choice from client %s: %v", c.correlator, err)
		return
	}

	h.sessions.upsertChoice(s, id.ID, msg.Round, msg.GifURL)

	h.broadcastRoom(s, sessionUpdatedMessage{Type: "session_updated", Session: h.sessions.snapshot(s)})

	h.advanceRound(s, false, 0)
}

func (h *Hub) onSubmitLike(c *client, msg submitLikeMessage) {
	id, s, err := h.resolveMember(msg.Token)
	if err != nil {
		logf(h.cfg, "GAMES: Dropped submit_like from client %s: %v", c.correlator, err)
		return
	}

	h.sessions.upsertLike(s, msg.AuthorID, id.ID, msg.Round, msg.GifURL)
}

func (h *Hub) onNextPage(c *client, msg nextPageMessage) {
	_, s, err := h.resolveMember(msg.Token)
	if err != nil {
		logf(h.cfg, "GAMES: Dropped request_next_page from client %s: %v", c.correlator, err)
		return
	}

	// Purely informational: no room state changes.
	h.broadcastRoom(s, pageAdvancedMessage{Type: "page_advanced", Page: msg.ActualPage + 1})
}

func (h *Hub) onPodium(c *client, msg podiumMessage) {
	_, s, err := h.resolveMember(msg.Token)
	if err != nil {
		logf(h.cfg, "GAMES: Dropped request_podium from client %s: %v", c.correlator, err)
		return
	}

	s.mu.Lock()
	if s.removed || s.phase != PhaseVote {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseResult
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logf(h.cfg, "GAMES: Session %s showing podium", s.id)

	h.broadcastRoom(s, sessionUpdatedMessage{Type: "session_updated", Session: snap})
	h.broadcastRoom(s, podiumReadyMessage{
		Type:    "podium_ready",
		Results: computeResults(s, h.cfg.roundLimit),
	})
}

func (h *Hub) onPageLoaded(c *client, msg pageLoadedMessage) {
	id, err := h.identities.byID(msg.PlayerID)
	if err != nil {
		logf(h.cfg, "GAMES: Dropped page_loaded from client %s: %v", c.correlator, err)
		return
	}

	s, err := h.sessions.byMember(id.ID)
	if err != nil {
		logf(h.cfg, "GAMES: Dropped page_loaded from client %s: %v", c.correlator, err)
		return
	}

	token, err := h.tokens.issue(id, s.id)
	if err != nil {
		logf(h.cfg, "GAMES: Token issue failed for %q: %v", id.Name, err)
		return
	}

	h.sendTo(c, tokenIssuedMessage{
		Type:  "token_issued",
		Name:  id.Name,
		Token: token,
	})
}

// onPageReload rebinds a reconnecting browser to its player and room. Adding
// the member back also cancels any pending empty-room removal, since the
// reaper only fires on rooms still empty when the grace expires.
func (h *Hub) onPageReload(c *client, msg pageReloadMessage) {
	claims, err := h.tokens.parse(msg.Token)
	if err != nil {
		h.sendTo(c, tokenClearedMessage{Type: "token_cleared"})
		return
	}

	id, idErr := h.identities.byID(claims.PlayerID)
	s, sErr := h.sessions.byID(claims.SessionID)
	if idErr != nil || sErr != nil {
		h.sendTo(c, tokenClearedMessage{Type: "token_cleared"})
		return
	}

	h.identities.rebind(id.ID, c.correlator)

	h.departCurrent(id, s.id)

	if err := h.sessions.join(s, id); err != nil {
		h.sendTo(c, roomFullMessage{Type: "room_full", SessionID: s.id})
		return
	}

	logf(h.cfg, "GAMES: Player %q rejoined session %s", id.Name, s.id)

	h.broadcastRoom(s, sessionUpdatedMessage{Type: "session_updated", Session: h.sessions.snapshot(s)})
}

func (h *Hub) onQuit(c *client, msg quitMessage) {
	id, s, err := h.resolveMember(msg.Token)
	if err != nil {
		logf(h.cfg, "GAMES: Dropped quit from client %s: %v", c.correlator, err)
		return
	}

	h.leaveSession(s, id)
}

func (h *Hub) onDisconnect(c *client) {
	id, err := h.identities.byCorrelator(c.correlator)
	if err != nil {
		return
	}

	s, err := h.sessions.byMember(id.ID)
	if err != nil {
		return
	}

	h.leaveSession(s, id)
}

func (h *Hub) leaveSession(s *Session, id *Identity) {
	h.sessions.leave(s, id.ID)

	logf(h.cfg, "GAMES: Player %q left session %s", id.Name, s.id)

	h.broadcastRoom(s, sessionUpdatedMessage{Type: "session_updated", Session: h.sessions.snapshot(s)})
}
