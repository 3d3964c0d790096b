package main

import (
	"sync"

	"github.com/google/uuid"
)

// Identity is a player's durable record across reconnects. The connection
// correlator is rebound every time the same player shows up on a new
// websocket; everything else is set once at creation.
type Identity struct {
	ID    string `json:"uuid"`
	Name  string `json:"username"`
	Ready bool   `json:"ready"`

	correlator string
}

// IdentityRegistry owns every connected player record.
type IdentityRegistry struct {
	mu         sync.RWMutex
	identities map[string]*Identity
}

func newIdentityRegistry() *IdentityRegistry {
	return &IdentityRegistry{
		identities: make(map[string]*Identity),
	}
}

func (reg *IdentityRegistry) create(correlator, name string) *Identity {
	id := &Identity{
		ID:         uuid.NewString(),
		Name:       name,
		correlator: correlator,
	}

	reg.mu.Lock()
	reg.identities[id.ID] = id
	reg.mu.Unlock()

	return id
}

// resolveOrCreate maps a decoded token identity back to its record, rebinding
// the correlator to the current connection. An empty id, or an id the
// registry no longer knows, yields a fresh record; the second return value
// reports whether the caller's token was stale and should be cleared.
func (reg *IdentityRegistry) resolveOrCreate(identityID, correlator, name string) (*Identity, bool) {
	if identityID == "" {
		return reg.create(correlator, name), false
	}

	reg.mu.Lock()
	if id, ok := reg.identities[identityID]; ok {
		id.correlator = correlator
		reg.mu.Unlock()
		return id, false
	}
	reg.mu.Unlock()

	return reg.create(correlator, name), true
}

func (reg *IdentityRegistry) byID(identityID string) (*Identity, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	id, ok := reg.identities[identityID]
	if !ok {
		return nil, errNotFound
	}
	return id, nil
}

func (reg *IdentityRegistry) byCorrelator(correlator string) (*Identity, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	for _, id := range reg.identities {
		if id.correlator == correlator {
			return id, nil
		}
	}
	return nil, errNotFound
}

func (reg *IdentityRegistry) rebind(identityID, correlator string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if id, ok := reg.identities[identityID]; ok {
		id.correlator = correlator
	}
}

// correlatorsFor maps member ids to their live connection correlators,
// skipping ids the registry no longer knows.
func (reg *IdentityRegistry) correlatorsFor(identityIDs []string) []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	correlators := make([]string, 0, len(identityIDs))
	for _, identityID := range identityIDs {
		if id, ok := reg.identities[identityID]; ok {
			correlators = append(correlators, id.correlator)
		}
	}
	return correlators
}

func (reg *IdentityRegistry) remove(identityID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	delete(reg.identities, identityID)
}
