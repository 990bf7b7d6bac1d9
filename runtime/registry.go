package runtime

import (
	"sort"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain/chat"
)

// Registry is the in-memory presence table: at most one live connection per
// participant. A single RWMutex guards the map; lookups vastly outnumber
// registrations.
type Registry struct {
	mu       sync.RWMutex
	sessions map[chat.ParticipantID]contract.Connection
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[chat.ParticipantID]contract.Connection),
	}
}

// Register makes conn the active connection of pid. The previous connection,
// if any, is returned so the caller can notify and close it. Last arrival wins.
func (r *Registry) Register(pid chat.ParticipantID, conn contract.Connection) (contract.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted, ok := r.sessions[pid]
	r.sessions[pid] = conn
	if ok && evicted.ID() == conn.ID() {
		return nil, false
	}
	return evicted, ok
}

func (r *Registry) Lookup(pid chat.ParticipantID) (contract.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.sessions[pid]
	return conn, ok
}

// Unregister removes pid only while it still maps to expected, so a session
// that was superseded can never remove its successor.
func (r *Registry) Unregister(pid chat.ParticipantID, expected contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[pid]
	if !ok || expected == nil || current.ID() != expected.ID() {
		return false
	}
	delete(r.sessions, pid)
	return true
}

// Connections returns a snapshot, safe to iterate without holding the lock.
func (r *Registry) Connections() []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]contract.Connection, 0, len(r.sessions))
	for _, conn := range r.sessions {
		conns = append(conns, conn)
	}
	return conns
}

func (r *Registry) Online() []chat.ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make([]chat.ParticipantID, 0, len(r.sessions))
	for pid := range r.sessions {
		online = append(online, pid)
	}
	sort.Slice(online, func(i, j int) bool { return online[i] < online[j] })
	return online
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
