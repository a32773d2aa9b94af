package pool

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"game-match-system/models"

	"github.com/jonboulle/clockwork"
)

// ErrDuplicateEntry is returned when a user is added to a pool they already wait in.
var ErrDuplicateEntry = errors.New("user already queued in this pool")

// PlayerPool is a FIFO deque of waiting players for one game mode.
// The front of the list is the next player to be paired.
//
// PlayerPool has its own lock so every exported method is safe on its own, but
// callers that need a multi-step atomic section (pairing) hold it through Lock.
type PlayerPool struct {
	Name string

	mu      sync.Mutex
	clock   clockwork.Clock
	entries *list.List
	index   map[string]*list.Element
}

func NewPlayerPool(name string, clock clockwork.Clock) *PlayerPool {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PlayerPool{
		Name:    name,
		clock:   clock,
		entries: list.New(),
		index:   make(map[string]*list.Element),
	}
}

// Lock runs fn with the pool lock held. fn receives a Locked view whose
// methods must not be retained after fn returns.
func (p *PlayerPool) Lock(fn func(l *Locked)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&Locked{p: p})
}

func (p *PlayerPool) AddToBack(userID, username string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.add(userID, username, false)
}

// AddToFront queues the user at position 1.
func (p *PlayerPool) AddToFront(userID, username string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.add(userID, username, true)
}

func (p *PlayerPool) Remove(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remove(userID)
}

func (p *PlayerPool) Get(userID string) (models.PlayerPoolEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.index[userID]
	if !ok {
		return models.PlayerPoolEntry{}, false
	}
	return *el.Value.(*models.PlayerPoolEntry), true
}

func (p *PlayerPool) Has(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.index[userID]
	return ok
}

// Touch refreshes lastActive. It has no effect on staleness eviction.
func (p *PlayerPool) Touch(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.index[userID]
	if !ok {
		return false
	}
	el.Value.(*models.PlayerPoolEntry).LastActive = p.clock.Now()
	return true
}

// GetNOldestPlayers returns copies of up to n entries from the front.
func (p *PlayerPool) GetNOldestPlayers(n int) []models.PlayerPoolEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oldest(n)
}

// RemoveStale evicts entries whose joinedAt is strictly before cutoff.
func (p *PlayerPool) RemoveStale(cutoff time.Time) int {
	return len(p.RemoveStaleEntries(cutoff))
}

// RemoveStaleEntries is RemoveStale returning the evicted entries.
func (p *PlayerPool) RemoveStaleEntries(cutoff time.Time) []models.PlayerPoolEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeStale(cutoff)
}

func (p *PlayerPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries.Len()
}

// GetPosition returns the 1-indexed position of userID, or -1.
func (p *PlayerPool) GetPosition(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position(userID)
}

func (p *PlayerPool) add(userID, username string, front bool) error {
	if _, ok := p.index[userID]; ok {
		return ErrDuplicateEntry
	}
	now := p.clock.Now()
	entry := &models.PlayerPoolEntry{
		UserID:     userID,
		Username:   username,
		JoinedAt:   now,
		LastActive: now,
	}
	if front {
		p.index[userID] = p.entries.PushFront(entry)
	} else {
		p.index[userID] = p.entries.PushBack(entry)
	}
	return nil
}

// restoreFront puts previously removed entries back at the head, keeping
// their original timestamps and relative order.
func (p *PlayerPool) restoreFront(entries []models.PlayerPoolEntry) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if _, ok := p.index[e.UserID]; ok {
			continue
		}
		p.index[e.UserID] = p.entries.PushFront(&e)
	}
}

func (p *PlayerPool) remove(userID string) bool {
	el, ok := p.index[userID]
	if !ok {
		return false
	}
	p.entries.Remove(el)
	delete(p.index, userID)
	return true
}

func (p *PlayerPool) oldest(n int) []models.PlayerPoolEntry {
	if n <= 0 {
		return nil
	}
	out := make([]models.PlayerPoolEntry, 0, min(n, p.entries.Len()))
	for el := p.entries.Front(); el != nil && len(out) < n; el = el.Next() {
		out = append(out, *el.Value.(*models.PlayerPoolEntry))
	}
	return out
}

func (p *PlayerPool) removeStale(cutoff time.Time) []models.PlayerPoolEntry {
	var evicted []models.PlayerPoolEntry
	for el := p.entries.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(*models.PlayerPoolEntry)
		if entry.JoinedAt.Before(cutoff) {
			evicted = append(evicted, *entry)
			p.entries.Remove(el)
			delete(p.index, entry.UserID)
		}
		el = next
	}
	return evicted
}

func (p *PlayerPool) position(userID string) int {
	if _, ok := p.index[userID]; !ok {
		return -1
	}
	pos := 1
	for el := p.entries.Front(); el != nil; el = el.Next() {
		if el.Value.(*models.PlayerPoolEntry).UserID == userID {
			return pos
		}
		pos++
	}
	return -1
}

// Locked exposes pool operations to a caller already holding the pool lock.
type Locked struct {
	p *PlayerPool
}

func (l *Locked) Has(userID string) bool {
	_, ok := l.p.index[userID]
	return ok
}

func (l *Locked) AddToBack(userID, username string) error {
	return l.p.add(userID, username, false)
}

func (l *Locked) AddToFront(userID, username string) error {
	return l.p.add(userID, username, true)
}

func (l *Locked) Remove(userID string) bool { return l.p.remove(userID) }

func (l *Locked) Oldest(n int) []models.PlayerPoolEntry { return l.p.oldest(n) }

func (l *Locked) RemoveStale(cutoff time.Time) []models.PlayerPoolEntry {
	return l.p.removeStale(cutoff)
}

func (l *Locked) RestoreFront(entries []models.PlayerPoolEntry) { l.p.restoreFront(entries) }

func (l *Locked) Size() int { return l.p.entries.Len() }
