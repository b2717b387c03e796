// Package changes owns the lifecycle of proposed document edits.
package changes

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Change is a proposed edit awaiting review. Only Status ever changes after creation.
type Change struct {
	ID        string    `json:"id"`
	Original  string    `json:"original"`
	Suggested string    `json:"suggested"`
	Reason    string    `json:"reason,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Pending reports whether the change still awaits a decision.
func (c Change) Pending() bool {
	return c.Status == StatusPending
}

// Store is the canonical registry of tracked changes. Transitions are
// monotonic: pending -> accepted or pending -> rejected.
type Store struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*Change
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		byID: make(map[string]*Change),
		now:  time.Now,
	}
}

// Add registers a new pending change and returns its id.
func (s *Store) Add(original, suggested, reason string) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id] = &Change{
		ID:        id,
		Original:  original,
		Suggested: suggested,
		Reason:    reason,
		Status:    StatusPending,
		CreatedAt: s.now(),
	}
	s.order = append(s.order, id)
	return id
}

// Remove drops a change regardless of status. It exists so a caller can roll
// back an Add whose document splice failed.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Accept marks a pending change accepted. It returns false when the change is
// unknown or already resolved.
func (s *Store) Accept(id string) (Change, bool) {
	return s.resolve(id, StatusAccepted)
}

// Reject marks a pending change rejected. It returns false when the change is
// unknown or already resolved.
func (s *Store) Reject(id string) (Change, bool) {
	return s.resolve(id, StatusRejected)
}

func (s *Store) resolve(id string, to Status) (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok || c.Status != StatusPending {
		return Change{}, false
	}
	c.Status = to
	return *c, true
}

// AcceptAll accepts every pending change in creation order.
func (s *Store) AcceptAll() []Change {
	return s.resolveAll(StatusAccepted)
}

// RejectAll rejects every pending change in creation order.
func (s *Store) RejectAll() []Change {
	return s.resolveAll(StatusRejected)
}

func (s *Store) resolveAll(to Status) []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Change
	for _, id := range s.order {
		c := s.byID[id]
		if c.Status != StatusPending {
			continue
		}
		c.Status = to
		out = append(out, *c)
	}
	return out
}

// ClearResolved forgets accepted and rejected changes and returns how many were dropped.
func (s *Store) ClearResolved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if s.byID[id].Status == StatusPending {
			kept = append(kept, id)
			continue
		}
		delete(s.byID, id)
		removed++
	}
	s.order = kept
	return removed
}

func (s *Store) Get(id string) (Change, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return Change{}, false
	}
	return *c, true
}

// List returns a copy of all changes in creation order.
func (s *Store) List() []Change {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Change, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	return out
}

// Pending returns the pending changes in creation order.
func (s *Store) Pending() []Change {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Change
	for _, id := range s.order {
		if c := s.byID[id]; c.Status == StatusPending {
			out = append(out, *c)
		}
	}
	return out
}

func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.byID {
		if c.Status == StatusPending {
			n++
		}
	}
	return n
}
