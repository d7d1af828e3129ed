package core

import "sync"

type set map[string]struct{}

// Rooms tracks which connections joined which rooms. A room exists only
// while at least one connection is a member.
type Rooms struct {
	mu     sync.RWMutex
	byRoom map[string]set // room id -> conn ids
	byConn map[string]set // conn id -> room ids
}

// NewRooms creates an empty membership tracker.
func NewRooms() *Rooms {
	return &Rooms{
		byRoom: make(map[string]set),
		byConn: make(map[string]set),
	}
}

// Join adds roomID to the connection's memberships. Returns true if newly added.
func (r *Rooms) Join(connID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byRoom[roomID][connID]; ok {
		return false
	}
	if r.byRoom[roomID] == nil {
		r.byRoom[roomID] = make(set)
	}
	if r.byConn[connID] == nil {
		r.byConn[connID] = make(set)
	}
	r.byRoom[roomID][connID] = struct{}{}
	r.byConn[connID][roomID] = struct{}{}
	return true
}

// MembersOf returns a snapshot of the connections joined to roomID.
func (r *Rooms) MembersOf(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.byRoom[roomID]
	if len(members) == 0 {
		return nil
	}
	out := make([]string, 0, len(members))
	for connID := range members {
		out = append(out, connID)
	}
	return out
}

// IsMember reports whether connID is joined to roomID.
func (r *Rooms) IsMember(connID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byRoom[roomID][connID]
	return ok
}

// Leave drops every membership of connID and returns the rooms it was in.
func (r *Rooms) Leave(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.byConn[connID]
	if len(joined) == 0 {
		delete(r.byConn, connID)
		return nil
	}
	left := make([]string, 0, len(joined))
	for roomID := range joined {
		members := r.byRoom[roomID]
		delete(members, connID)
		if len(members) == 0 {
			delete(r.byRoom, roomID)
		}
		left = append(left, roomID)
	}
	delete(r.byConn, connID)
	return left
}

// Len returns the number of rooms with at least one member.
func (r *Rooms) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRoom)
}
