package pool

import (
	"errors"
	"sync"
)

// ErrAlreadyInAnotherPool is returned when a user waits in a different pool.
var ErrAlreadyInAnotherPool = errors.New("user already queued in another pool")

// Registry maps each queued user to the one pool they wait in.
type Registry struct {
	mu      sync.RWMutex
	members map[string]string
}

func NewRegistry() *Registry {
	return &Registry{members: make(map[string]string)}
}

// CanJoinPool is true when the user is unassigned or already in poolName.
func (r *Registry) CanJoinPool(userID, poolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	current, ok := r.members[userID]
	return !ok || current == poolName
}

func (r *Registry) RegisterUser(userID, poolName string) {
	r.mu.Lock()
	r.members[userID] = poolName
	r.mu.Unlock()
}

func (r *Registry) UnregisterUser(userID string) {
	r.mu.Lock()
	delete(r.members, userID)
	r.mu.Unlock()
}

// UnregisterFrom removes the mapping only if it still points at poolName.
func (r *Registry) UnregisterFrom(userID, poolName string) {
	r.mu.Lock()
	if r.members[userID] == poolName {
		delete(r.members, userID)
	}
	r.mu.Unlock()
}

func (r *Registry) GetCurrentPool(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.members[userID]
	return p, ok
}

// TryRegister checks and records membership in one step.
func (r *Registry) TryRegister(userID, poolName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.members[userID]; ok && current != poolName {
		return ErrAlreadyInAnotherPool
	}
	r.members[userID] = poolName
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
