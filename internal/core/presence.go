package core

import "sync"

// Presence maps user identities to the connection that currently
// represents them. It keeps a reverse index so disconnect cleanup is O(1).
type Presence struct {
	mu     sync.RWMutex
	byUser map[string]string // user id -> conn id
	byConn map[string]string // conn id -> user id
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{
		byUser: make(map[string]string),
		byConn: make(map[string]string),
	}
}

// Register binds userID to connID, replacing any earlier binding for the
// user. The previously bound connection stays open but is no longer the
// user's notification target.
func (p *Presence) Register(userID, connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.byUser[userID]; ok && prev != connID {
		delete(p.byConn, prev)
	}
	// The same connection re-registering under another identity releases
	// the old identity if it still points here.
	if prevUser, ok := p.byConn[connID]; ok && prevUser != userID {
		if p.byUser[prevUser] == connID {
			delete(p.byUser, prevUser)
		}
	}

	p.byUser[userID] = connID
	p.byConn[connID] = userID
}

// Lookup returns the connection registered for userID.
func (p *Presence) Lookup(userID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	connID, ok := p.byUser[userID]
	return connID, ok
}

// Online reports whether userID currently resolves to a connection.
func (p *Presence) Online(userID string) bool {
	_, ok := p.Lookup(userID)
	return ok
}

// UserOf returns the user currently bound to connID.
func (p *Presence) UserOf(connID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	userID, ok := p.byConn[connID]
	return userID, ok
}

// Unregister removes the entry owned by connID. A stale connection whose
// user has since registered elsewhere leaves the newer entry untouched.
// It returns the user id that went offline, if any.
func (p *Presence) Unregister(connID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.byConn[connID]
	if !ok {
		return "", false
	}
	delete(p.byConn, connID)
	if p.byUser[userID] != connID {
		return "", false
	}
	delete(p.byUser, userID)
	return userID, true
}

// Len returns the number of users online.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser)
}
