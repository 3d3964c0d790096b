package main

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"
)

type Phase string

const (
	PhasePending Phase = "pending"
	PhaseDraft   Phase = "draft"
	PhaseVote    Phase = "vote"
	PhaseResult  Phase = "result"
	PhaseEnd     Phase = "end"
)

type like struct {
	authorID string
	gifURL   string
}

// Session is one game room. All mutable fields are guarded by mu; methods
// with the Locked suffix assume the caller already holds it. A session that
// has been reaped from the registry has removed set, and every mutation on
// it degrades to a no-op.
type Session struct {
	mu sync.Mutex

	id      string
	private bool
	phase   Phase
	ownerID string
	round   int

	// Join order matters for owner promotion, so membership is a keyed map
	// plus an explicit ordered id slice.
	members   map[string]*Identity
	memberIDs []string

	choices map[int]map[string]string // round -> member id -> gif url
	likes   map[int]map[string]like   // round -> liker id -> liked entry

	removed bool

	// Countdown bookkeeping, owned by the orchestration layer. Bumping a
	// generation invalidates any timer started under an earlier one.
	readyGen int
	roundGen int
}

func (s *Session) memberByIDLocked(identityID string) *Identity {
	return s.members[identityID]
}

func (s *Session) addMemberLocked(id *Identity, maxRoomSize int) error {
	if _, ok := s.members[id.ID]; ok {
		return nil
	}
	if len(s.memberIDs) >= maxRoomSize {
		return errRoomFull
	}

	s.members[id.ID] = id
	s.memberIDs = append(s.memberIDs, id.ID)

	return nil
}

// removeMemberLocked drops a member, promoting the earliest-joined remaining
// member when the departing one owned the room. Readiness is scoped to the
// room, so it clears on the way out rather than carrying into the next one.
// Reports whether the session is now empty.
func (s *Session) removeMemberLocked(identityID string) bool {
	m, ok := s.members[identityID]
	if !ok {
		return len(s.memberIDs) == 0
	}

	m.Ready = false
	delete(s.members, identityID)

	dst := s.memberIDs[:0]
	for _, id := range s.memberIDs {
		if id != identityID {
			dst = append(dst, id)
		}
	}
	s.memberIDs = dst

	if len(s.memberIDs) == 0 {
		return true
	}

	if s.ownerID == identityID {
		s.ownerID = s.memberIDs[0]
	}

	return false
}

func (s *Session) upsertChoiceLocked(identityID string, round int, gifURL string) {
	if s.choices[round] == nil {
		s.choices[round] = make(map[string]string)
	}
	s.choices[round][identityID] = gifURL
}

func (s *Session) upsertLikeLocked(authorID, likerID string, round int, gifURL string) {
	if s.likes[round] == nil {
		s.likes[round] = make(map[string]like)
	}
	s.likes[round][likerID] = like{
		authorID: authorID,
		gifURL:   gifURL,
	}
}

func (s *Session) toggleReadyLocked(identityID string) (bool, bool) {
	m := s.members[identityID]
	if m == nil {
		return false, false
	}
	m.Ready = !m.Ready
	return m.Ready, true
}

func (s *Session) allReadyLocked() bool {
	if len(s.memberIDs) == 0 {
		return false
	}
	for _, id := range s.memberIDs {
		if !s.members[id].Ready {
			return false
		}
	}
	return true
}

// allChosenLocked reports whether every current member has submitted a
// choice for the current round.
func (s *Session) allChosenLocked() bool {
	round := s.choices[s.round]

	for _, id := range s.memberIDs {
		if _, ok := round[id]; !ok {
			return false
		}
	}
	return true
}

// incrementRoundLocked only advances while drafting, and only by one.
func (s *Session) incrementRoundLocked() error {
	if s.phase != PhaseDraft {
		return errInvalidTransition
	}
	s.round++
	return nil
}

func (s *Session) snapshotLocked() SessionState {
	players := make([]PlayerState, 0, len(s.memberIDs))
	for _, id := range s.memberIDs {
		m := s.members[id]
		players = append(players, PlayerState{
			ID:    m.ID,
			Name:  m.Name,
			Ready: m.Ready,
		})
	}

	choices := make([]ChoiceState, 0)
	for round := 1; round <= s.round; round++ {
		for _, id := range s.memberIDs {
			if gifURL, ok := s.choices[round][id]; ok {
				choices = append(choices, ChoiceState{
					PlayerID: id,
					Round:    round,
					GifURL:   gifURL,
				})
			}
		}
	}

	return SessionState{
		ID:      s.id,
		Private: s.private,
		Phase:   s.phase,
		OwnerID: s.ownerID,
		Players: players,
		Round:   s.round,
		Choices: choices,
	}
}

// SessionRegistry owns the collection of all active game rooms.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	maxRoomSize int
	grace       time.Duration
}

func newSessionRegistry(maxRoomSize int, grace time.Duration) *SessionRegistry {
	return &SessionRegistry{
		sessions:    make(map[string]*Session),
		maxRoomSize: maxRoomSize,
		grace:       grace,
	}
}

const sessionIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

const sessionIDLength = 6

// newSessionID generates a crypto-random room code and ensures it doesn't
// collide with an existing room.
func (reg *SessionRegistry) newSessionID() string {
	for {
		buf := make([]byte, sessionIDLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, sessionIDLength)
		for i := range out {
			out[i] = sessionIDAlphabet[int(buf[i])%len(sessionIDAlphabet)]
		}
		id := string(out)

		if _, exists := reg.sessions[id]; !exists {
			return id
		}
	}
}

func (reg *SessionRegistry) create(owner *Identity, private bool) *Session {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	s := &Session{
		id:        reg.newSessionID(),
		private:   private,
		phase:     PhasePending,
		ownerID:   owner.ID,
		members:   map[string]*Identity{owner.ID: owner},
		memberIDs: []string{owner.ID},
		choices:   make(map[int]map[string]string),
		likes:     make(map[int]map[string]like),
	}
	reg.sessions[s.id] = s

	return s
}

func (reg *SessionRegistry) byID(sessionID string) (*Session, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	s, ok := reg.sessions[sessionID]
	if !ok {
		return nil, errNotFound
	}
	return s, nil
}

// byMember scans all rooms; a player belongs to at most one room at a time.
func (reg *SessionRegistry) byMember(identityID string) (*Session, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, s := range reg.sessions {
		s.mu.Lock()
		_, ok := s.members[identityID]
		s.mu.Unlock()
		if ok {
			return s, nil
		}
	}
	return nil, errNotFound
}

// findPublicCandidate picks one public room with a free seat, uniformly at
// random when several qualify.
func (reg *SessionRegistry) findPublicCandidate() (*Session, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	candidates := make([]*Session, 0)
	for _, s := range reg.sessions {
		s.mu.Lock()
		open := !s.private && len(s.memberIDs) < reg.maxRoomSize
		s.mu.Unlock()
		if open {
			candidates = append(candidates, s)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, errNotFound
	case 1:
		return candidates[0], nil
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(candidates))))
	if err != nil {
		return candidates[0], nil
	}
	return candidates[n.Int64()], nil
}

func (reg *SessionRegistry) join(s *Session, id *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return errNotFound
	}
	return s.addMemberLocked(id, reg.maxRoomSize)
}

// leave removes a member and, if the room emptied, schedules its removal
// after the grace period. A rejoin during the grace implicitly cancels the
// removal: the reaper only fires on rooms still empty at expiry.
func (reg *SessionRegistry) leave(s *Session, identityID string) {
	s.mu.Lock()
	empty := s.removeMemberLocked(identityID)
	s.mu.Unlock()

	if !empty {
		return
	}

	time.AfterFunc(reg.grace, func() {
		reg.reapIfEmpty(s)
	})
}

func (reg *SessionRegistry) reapIfEmpty(s *Session) {
	s.mu.Lock()
	if len(s.memberIDs) > 0 || s.removed {
		s.mu.Unlock()
		return
	}
	s.removed = true
	s.readyGen++
	s.roundGen++
	s.mu.Unlock()

	reg.mu.Lock()
	delete(reg.sessions, s.id)
	reg.mu.Unlock()
}

func (reg *SessionRegistry) togglePrivacy(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.private = !s.private
	return s.private
}

func (reg *SessionRegistry) upsertChoice(s *Session, identityID string, round int, gifURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return
	}
	s.upsertChoiceLocked(identityID, round, gifURL)
}

func (reg *SessionRegistry) upsertLike(s *Session, authorID, likerID string, round int, gifURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return
	}
	s.upsertLikeLocked(authorID, likerID, round, gifURL)
}

func (reg *SessionRegistry) setPhase(s *Session, phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		return
	}
	s.phase = phase
}

func (reg *SessionRegistry) snapshot(s *Session) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}
