package store

import (
	"sync"
	"time"

	"github.com/crashdetector/crashdetector/pkg/types"
)

// Entry is the latest snapshot together with the time it was received.
type Entry struct {
	Snapshot  types.Snapshot
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory copy of what the agent last persisted:
// the current snapshot and the history window. The latest snapshot is
// reported stale once it is older than the configured TTL.
type Store struct {
	mu      sync.RWMutex
	latest  *Entry
	history types.History
	ttl     time.Duration
	now     func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		ttl: ttl,
		now: time.Now,
	}
}

// Put replaces the latest snapshot and history window. It reports whether
// snap differs from the snapshot already held, so callers only react to
// new cycles. Callers must not modify snap or hist after calling Put.
func (s *Store) Put(snap types.Snapshot, hist types.History) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.latest == nil || !sameSnapshot(s.latest.Snapshot, snap)
	if changed {
		s.latest = &Entry{Snapshot: snap, UpdatedAt: s.now()}
	}
	s.history = hist
	return changed
}

// Latest returns a copy of the latest entry and whether one exists.
// The entry may be stale.
func (s *Store) Latest() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Entry{}, false
	}
	return Entry{Snapshot: s.latest.Snapshot.Clone(), UpdatedAt: s.latest.UpdatedAt}, true
}

// History returns the history window, oldest first.
func (s *Store) History() types.History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(types.History, len(s.history))
	copy(out, s.history)
	return out
}

// Stale reports whether there is no snapshot or the latest one is older than
// the TTL. Snapshot age is measured from when the agent took it, falling back
// to when it was received if the snapshot carries no usable time.
func (s *Store) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return true
	}
	return s.now().Sub(s.takenAt(s.latest)) > s.ttl
}

// Age returns how old the latest snapshot is, or 0 if there is none.
func (s *Store) Age() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return 0
	}
	return s.now().Sub(s.takenAt(s.latest))
}

// TTL returns the configured staleness threshold.
func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) takenAt(e *Entry) time.Time {
	if t := e.Snapshot.Time(); !t.IsZero() {
		return t
	}
	return e.UpdatedAt
}

// sameSnapshot compares by ID when both carry one, otherwise by time.
func sameSnapshot(a, b types.Snapshot) bool {
	if a.ID != "" && b.ID != "" {
		return a.ID == b.ID
	}
	return a.Time().Equal(b.Time()) && a.LastUpdate == b.LastUpdate
}
