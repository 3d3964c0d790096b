package main

import (
	"testing"
	"time"
)

func testConfig() *Config {
	return &Config{
		maxRoomSize:    9,
		roundLimit:     3,
		readyCountdown: 25 * time.Millisecond,
		roundCountdown: 2 * time.Second,
		emptyRoomGrace: 50 * time.Millisecond,
		tokenKey:       "test-key",
		tokenTTL:       time.Hour,
	}
}

func newTestClient(t *testing.T, h *Hub, correlator string) *client {
	t.Helper()

	c := &client{
		send:       make(chan any, 64),
		correlator: correlator,
	}
	h.register(c)
	return c
}

// waitFor drains a client's outbox until a message satisfies match, so tests
// never hang on a missing broadcast.
func waitFor(t *testing.T, ch <-chan any, within time.Duration, match func(any) bool) any {
	t.Helper()

	deadline := time.After(within)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				t.Fatalf("client outbox closed unexpectedly")
			}
			if match(msg) {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for message")
			return nil
		}
	}
}

func expectNone(t *testing.T, ch <-chan any, within time.Duration, match func(any) bool) {
	t.Helper()

	deadline := time.After(within)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if match(msg) {
				t.Fatalf("expected no matching message within %v, but got: %+v", within, msg)
			}
		case <-deadline:
			return
		}
	}
}

func isSessionJoined(msg any) bool {
	_, ok := msg.(sessionJoinedMessage)
	return ok
}

func isRoundStarted(round int) func(any) bool {
	return func(msg any) bool {
		m, ok := msg.(roundStartedMessage)
		return ok && m.Round == round
	}
}

// joinFresh drives a quick_join for a new player and returns the player
// record, their room, and a token for follow-up events.
func joinFresh(t *testing.T, h *Hub, c *client, name string) (*Identity, *Session, string) {
	t.Helper()

	h.onQuickJoin(c, quickJoinMessage{Name: name})

	joined := waitFor(t, c.send, time.Second, isSessionJoined).(sessionJoinedMessage)

	id, err := h.identities.byID(joined.Joiner.ID)
	if err != nil {
		t.Fatalf("joiner not in identity registry: %v", err)
	}
	s, err := h.sessions.byID(joined.Session.ID)
	if err != nil {
		t.Fatalf("joined session not in registry: %v", err)
	}
	token, err := h.tokens.issue(id, s.id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return id, s, token
}

func sessionPhase(s *Session) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func sessionRound(s *Session) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

func TestQuickJoinCreatesPublicRoomOnMiss(t *testing.T) {
	h := newHub(testConfig())
	c := newTestClient(t, h, "conn-1")

	_, s, _ := joinFresh(t, h, c, "alice")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.private {
		t.Fatal("quick-join fallback room should be public")
	}
	if s.phase != PhasePending {
		t.Fatalf("want pending phase, got %s", s.phase)
	}
	if len(s.memberIDs) != 1 {
		t.Fatalf("want 1 member, got %d", len(s.memberIDs))
	}
}

func TestQuickJoinMatchesExistingPublicRoom(t *testing.T) {
	h := newHub(testConfig())
	first := newTestClient(t, h, "conn-1")
	second := newTestClient(t, h, "conn-2")

	_, room, _ := joinFresh(t, h, first, "alice")
	_, joined, _ := joinFresh(t, h, second, "bob")

	if joined.id != room.id {
		t.Fatalf("matchmaking ignored open room: want %q, got %q", room.id, joined.id)
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if len(room.memberIDs) != 2 {
		t.Fatalf("want 2 members, got %d", len(room.memberIDs))
	}
}

func TestJoinSessionFullRejectedToRequesterOnly(t *testing.T) {
	cfg := testConfig()
	cfg.maxRoomSize = 1
	h := newHub(cfg)

	owner := newTestClient(t, h, "conn-1")
	_, s, _ := joinFresh(t, h, owner, "alice")

	late := newTestClient(t, h, "conn-2")
	h.onJoinSession(late, joinSessionMessage{Name: "bob", SessionID: s.id})

	rejected := waitFor(t, late.send, time.Second, func(msg any) bool {
		_, ok := msg.(roomFullMessage)
		return ok
	}).(roomFullMessage)
	if rejected.SessionID != s.id {
		t.Fatalf("want rejection for %q, got %q", s.id, rejected.SessionID)
	}

	expectNone(t, owner.send, 50*time.Millisecond, func(msg any) bool {
		_, ok := msg.(roomFullMessage)
		return ok
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.memberIDs) != 1 {
		t.Fatalf("membership changed by rejected join: want 1, got %d", len(s.memberIDs))
	}
}

func TestJoinSessionSwitchesRooms(t *testing.T) {
	h := newHub(testConfig())

	alice := newTestClient(t, h, "conn-1")
	aliceID, first, aliceToken := joinFresh(t, h, alice, "alice")

	bob := newTestClient(t, h, "conn-2")
	h.onCreateSession(bob, createSessionMessage{Name: "bob"})
	joined := waitFor(t, bob.send, time.Second, isSessionJoined).(sessionJoinedMessage)
	second, err := h.sessions.byID(joined.Session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h.onJoinSession(alice, joinSessionMessage{Token: aliceToken, Name: "alice", SessionID: second.id})
	waitFor(t, alice.send, time.Second, isSessionJoined)

	current, err := h.sessions.byMember(aliceID.ID)
	if err != nil {
		t.Fatalf("player lost all membership: %v", err)
	}
	if current.id != second.id {
		t.Fatalf("want membership in %q, got %q", second.id, current.id)
	}

	first.mu.Lock()
	_, lingering := first.members[aliceID.ID]
	first.mu.Unlock()
	if lingering {
		t.Fatal("player remained a member of the room they switched out of")
	}
}

func TestReadinessClearedOnRoomSwitch(t *testing.T) {
	h := newHub(testConfig())

	alice := newTestClient(t, h, "conn-1")
	_, first, aliceToken := joinFresh(t, h, alice, "alice")

	bob := newTestClient(t, h, "conn-2")
	h.onJoinSession(bob, joinSessionMessage{Name: "bob", SessionID: first.id})
	bobJoined := waitFor(t, bob.send, time.Second, isSessionJoined).(sessionJoinedMessage)

	h.onSetReady(alice, setReadyMessage{Token: aliceToken})
	waitFor(t, alice.send, time.Second, func(msg any) bool {
		_, ok := msg.(playerReadyUpdatedMessage)
		return ok
	})

	h.onCreateSession(alice, createSessionMessage{Token: aliceToken, Name: "alice"})
	joined := waitFor(t, alice.send, time.Second, isSessionJoined).(sessionJoinedMessage)

	if joined.Joiner.Ready {
		t.Fatal("readiness carried into a fresh room")
	}

	first.mu.Lock()
	owner := first.ownerID
	first.mu.Unlock()
	if owner != bobJoined.Joiner.ID {
		t.Fatalf("want ownership transferred to %q, got %q", bobJoined.Joiner.ID, owner)
	}
}

func TestLoneMemberReadyStartsDraft(t *testing.T) {
	h := newHub(testConfig())
	c := newTestClient(t, h, "conn-1")

	_, s, token := joinFresh(t, h, c, "alice")

	h.onSetReady(c, setReadyMessage{Token: token})

	ready := waitFor(t, c.send, time.Second, func(msg any) bool {
		_, ok := msg.(playerReadyUpdatedMessage)
		return ok
	}).(playerReadyUpdatedMessage)
	if !ready.LaunchCountdown {
		t.Fatal("lone ready member should launch the countdown")
	}

	started := waitFor(t, c.send, time.Second, isRoundStarted(1)).(roundStartedMessage)
	if !isKnownPrompt(started.Prompt) {
		t.Fatalf("round started with prompt outside the fixed set: %q", started.Prompt)
	}

	if got := sessionPhase(s); got != PhaseDraft {
		t.Fatalf("want draft phase, got %s", got)
	}
	if got := sessionRound(s); got != 1 {
		t.Fatalf("want round 1, got %d", got)
	}
}

func TestUnreadyAbortsCountdown(t *testing.T) {
	h := newHub(testConfig())
	c := newTestClient(t, h, "conn-1")

	_, s, token := joinFresh(t, h, c, "alice")

	h.onSetReady(c, setReadyMessage{Token: token})
	h.onSetReady(c, setReadyMessage{Token: token})

	expectNone(t, c.send, 4*h.cfg.readyCountdown, func(msg any) bool {
		_, ok := msg.(roundStartedMessage)
		return ok
	})

	if got := sessionPhase(s); got != PhasePending {
		t.Fatalf("aborted countdown still fired: phase %s", got)
	}
}

func TestChoiceSubmissionAdvancesRound(t *testing.T) {
	h := newHub(testConfig())
	c := newTestClient(t, h, "conn-1")

	_, s, token := joinFresh(t, h, c, "alice")

	h.onSetReady(c, setReadyMessage{Token: token})
	waitFor(t, c.send, time.Second, isRoundStarted(1))

	h.onSubmitChoice(c, submitChoiceMessage{Token: token, Round: 1, GifURL: "gifA"})

	waitFor(t, c.send, time.Second, isRoundStarted(2))
	if got := sessionRound(s); got != 2 {
		t.Fatalf("want round 2, got %d", got)
	}
	if got := sessionPhase(s); got != PhaseDraft {
		t.Fatalf("advancing a mid-game round changed phase: %s", got)
	}
}

func TestFinalRoundCompleteMovesToVote(t *testing.T) {
	cfg := testConfig()
	cfg.roundLimit = 1
	h := newHub(cfg)
	c := newTestClient(t, h, "conn-1")

	_, s, token := joinFresh(t, h, c, "alice")

	h.onSetReady(c, setReadyMessage{Token: token})
	waitFor(t, c.send, time.Second, isRoundStarted(1))

	h.onSubmitChoice(c, submitChoiceMessage{Token: token, Round: 1, GifURL: "gifA"})

	waitFor(t, c.send, time.Second, func(msg any) bool {
		_, ok := msg.(lastRoundCompleteMessage)
		return ok
	})

	if got := sessionPhase(s); got != PhaseVote {
		t.Fatalf("want vote phase after final round, got %s", got)
	}
}

func TestAdvanceRoundIsIdempotent(t *testing.T) {
	h := newHub(testConfig())
	c := newTestClient(t, h, "conn-1")

	_, s, token := joinFresh(t, h, c, "alice")

	h.onSetReady(c, setReadyMessage{Token: token})
	waitFor(t, c.send, time.Second, isRoundStarted(1))

	h.sessions.upsertChoice(s, s.ownerID, 1, "gifA")

	if !h.advanceRound(s, false, 0) {
		t.Fatal("first advance should succeed")
	}
	if h.advanceRound(s, false, 0) {
		t.Fatal("second advance without new choices should back off")
	}
	if got := sessionRound(s); got != 2 {
		t.Fatalf("concurrent trigger double-advanced: round %d", got)
	}
}

func TestRoundDeadlineAdvancesWithoutChoices(t *testing.T) {
	cfg := testConfig()
	cfg.roundCountdown = 40 * time.Millisecond
	h := newHub(cfg)
	c := newTestClient(t, h, "conn-1")

	_, s, token := joinFresh(t, h, c, "alice")

	h.onSetReady(c, setReadyMessage{Token: token})
	waitFor(t, c.send, time.Second, isRoundStarted(1))

	// No choices at all: the deadline alone moves the game forward.
	waitFor(t, c.send, time.Second, isRoundStarted(2))
	if got := sessionRound(s); got != 2 {
		t.Fatalf("want round 2 after deadline, got %d", got)
	}
}

func TestPodiumRequest(t *testing.T) {
	h := newHub(testConfig())
	a := newTestClient(t, h, "conn-1")
	b := newTestClient(t, h, "conn-2")

	alice, s, tokenA := joinFresh(t, h, a, "alice")
	bob, _, _ := joinFresh(t, h, b, "bob")

	h.sessions.setPhase(s, PhaseVote)
	h.sessions.upsertLike(s, bob.ID, alice.ID, 1, "gifB")
	h.sessions.upsertLike(s, bob.ID, bob.ID, 1, "gifB")

	h.onPodium(a, podiumMessage{Token: tokenA})

	podium := waitFor(t, b.send, time.Second, func(msg any) bool {
		_, ok := msg.(podiumReadyMessage)
		return ok
	}).(podiumReadyMessage)

	if len(podium.Results) != 1 {
		t.Fatalf("want one result, got %+v", podium.Results)
	}
	if podium.Results[0].AuthorID != bob.ID || podium.Results[0].LikeCount != 2 {
		t.Fatalf("unexpected podium: %+v", podium.Results[0])
	}
	if got := sessionPhase(s); got != PhaseResult {
		t.Fatalf("want result phase, got %s", got)
	}
}

func TestPodiumRejectedOutsideVote(t *testing.T) {
	h := newHub(testConfig())
	c := newTestClient(t, h, "conn-1")

	_, s, token := joinFresh(t, h, c, "alice")

	h.onPodium(c, podiumMessage{Token: token})

	expectNone(t, c.send, 50*time.Millisecond, func(msg any) bool {
		_, ok := msg.(podiumReadyMessage)
		return ok
	})
	if got := sessionPhase(s); got != PhasePending {
		t.Fatalf("podium request outside vote corrupted phase: %s", got)
	}
}

func TestNextPageEchoesToRoom(t *testing.T) {
	h := newHub(testConfig())
	a := newTestClient(t, h, "conn-1")
	b := newTestClient(t, h, "conn-2")

	_, _, tokenA := joinFresh(t, h, a, "alice")
	joinFresh(t, h, b, "bob")

	h.onNextPage(a, nextPageMessage{Token: tokenA, ActualPage: 2})

	for _, c := range []*client{a, b} {
		advanced := waitFor(t, c.send, time.Second, func(msg any) bool {
			_, ok := msg.(pageAdvancedMessage)
			return ok
		}).(pageAdvancedMessage)
		if advanced.Page != 3 {
			t.Fatalf("want page 3, got %d", advanced.Page)
		}
	}
}

func TestPageLoadedIssuesToken(t *testing.T) {
	h := newHub(testConfig())
	c := newTestClient(t, h, "conn-1")

	id, s, _ := joinFresh(t, h, c, "alice")

	h.onPageLoaded(c, pageLoadedMessage{PlayerID: id.ID})

	issued := waitFor(t, c.send, time.Second, func(msg any) bool {
		_, ok := msg.(tokenIssuedMessage)
		return ok
	}).(tokenIssuedMessage)

	claims, err := h.tokens.parse(issued.Token)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.PlayerID != id.ID || claims.SessionID != s.id {
		t.Fatalf("token references wrong player or session: %+v", claims)
	}
}

func TestStaleTokenClearedOnJoin(t *testing.T) {
	h := newHub(testConfig())
	c := newTestClient(t, h, "conn-1")

	h.onQuickJoin(c, quickJoinMessage{Token: "garbage", Name: "alice"})

	waitFor(t, c.send, time.Second, func(msg any) bool {
		_, ok := msg.(tokenClearedMessage)
		return ok
	})
	waitFor(t, c.send, time.Second, isSessionJoined)
}

func TestReconnectWithinGraceKeepsRoom(t *testing.T) {
	h := newHub(testConfig())
	c := newTestClient(t, h, "conn-1")

	id, s, token := joinFresh(t, h, c, "alice")

	h.onQuit(c, quitMessage{Token: token})

	// Back before the grace expires, on a fresh connection.
	again := newTestClient(t, h, "conn-2")
	h.onPageReload(again, pageReloadMessage{Token: token})

	time.Sleep(3 * h.cfg.emptyRoomGrace)

	revived, err := h.sessions.byID(s.id)
	if err != nil {
		t.Fatalf("session reaped despite reconnect within grace: %v", err)
	}
	revived.mu.Lock()
	defer revived.mu.Unlock()
	if revived.memberByIDLocked(id.ID) == nil {
		t.Fatal("reconnected player missing from session")
	}

	resumed, err := h.identities.byID(id.ID)
	if err != nil {
		t.Fatalf("identity lost across reconnect: %v", err)
	}
	if resumed.correlator != "conn-2" {
		t.Fatalf("correlator not rebound on reconnect: %q", resumed.correlator)
	}
}

func TestQuitTransfersOwnership(t *testing.T) {
	h := newHub(testConfig())
	a := newTestClient(t, h, "conn-1")
	b := newTestClient(t, h, "conn-2")

	alice, s, tokenA := joinFresh(t, h, a, "alice")
	bob, _, _ := joinFresh(t, h, b, "bob")

	h.onQuit(a, quitMessage{Token: tokenA})

	updated := waitFor(t, b.send, time.Second, func(msg any) bool {
		m, ok := msg.(sessionUpdatedMessage)
		return ok && len(m.Session.Players) == 1
	}).(sessionUpdatedMessage)

	if updated.Session.OwnerID != bob.ID {
		t.Fatalf("want ownership transferred to %q, got %q", bob.ID, updated.Session.OwnerID)
	}
	if updated.Session.Players[0].ID == alice.ID {
		t.Fatal("departed player still listed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownerID != bob.ID {
		t.Fatalf("registry owner mismatch: %q", s.ownerID)
	}
}

func TestDisconnectLeavesRoom(t *testing.T) {
	h := newHub(testConfig())
	a := newTestClient(t, h, "conn-1")
	b := newTestClient(t, h, "conn-2")

	_, s, _ := joinFresh(t, h, a, "alice")
	joinFresh(t, h, b, "bob")

	h.unregister(a)

	waitFor(t, b.send, time.Second, func(msg any) bool {
		m, ok := msg.(sessionUpdatedMessage)
		return ok && len(m.Session.Players) == 1
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.memberIDs) != 1 {
		t.Fatalf("want 1 member after disconnect, got %d", len(s.memberIDs))
	}
}
