package presence

import (
	"sync"

	"github.com/google/uuid"
)

// ConnectionRegistry tracks the live connections of every user. Add and
// Remove report whether the call crossed the zero boundary for that user.
type ConnectionRegistry interface {
	Add(userID uuid.UUID, connID string) (first bool)
	Remove(userID uuid.UUID, connID string) (last bool)
	Count(userID uuid.UUID) int
	OnlineUsers() []uuid.UUID
}

// MemoryRegistry is a process-local ConnectionRegistry
type MemoryRegistry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]map[string]struct{}
}

var _ ConnectionRegistry = (*MemoryRegistry)(nil)

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{conns: make(map[uuid.UUID]map[string]struct{})}
}

func (r *MemoryRegistry) Add(userID uuid.UUID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	if _, dup := set[connID]; dup {
		return false
	}
	set[connID] = struct{}{}
	return len(set) == 1
}

func (r *MemoryRegistry) Remove(userID uuid.UUID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	if _, known := set[connID]; !known {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
		return true
	}
	return false
}

func (r *MemoryRegistry) Count(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

func (r *MemoryRegistry) OnlineUsers() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]uuid.UUID, 0, len(r.conns))
	for id := range r.conns {
		users = append(users, id)
	}
	return users
}
