package store

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"healthmon/internal/domain"
)

var (
	ErrStaleGeneration    = errors.New("snapshot generation does not advance")
	ErrTimestampRegressed = errors.New("snapshot timestamp is older than the current snapshot")
)

type state struct {
	current domain.HealthSnapshot
	history []domain.HealthSnapshot
}

// HealthStore holds the latest published snapshot. Readers load an immutable
// state value and never block; Publish swaps in a new value.
type HealthStore struct {
	mu       sync.Mutex
	state    atomic.Pointer[state]
	capacity int
}

func NewHealthStore(historySize int) *HealthStore {
	if historySize < 0 {
		historySize = 0
	}
	s := &HealthStore{capacity: historySize}
	s.state.Store(&state{current: Placeholder(time.Now())})
	return s
}

// Placeholder is served before the first tick completes.
func Placeholder(at time.Time) domain.HealthSnapshot {
	return domain.NewSnapshot(0, at, domain.StatusDegraded, nil)
}

func (s *HealthStore) Publish(snapshot domain.HealthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state.Load()
	if snapshot.Generation <= old.current.Generation {
		return fmt.Errorf("%w: %d after %d", ErrStaleGeneration, snapshot.Generation, old.current.Generation)
	}

	next := &state{current: snapshot}
	if old.current.Generation == 0 {
		next.history = old.history
	} else {
		if snapshot.Timestamp.Before(old.current.Timestamp) {
			return fmt.Errorf("%w: %s before %s", ErrTimestampRegressed,
				snapshot.Timestamp.Format(time.RFC3339Nano), old.current.Timestamp.Format(time.RFC3339Nano))
		}
		if s.capacity > 0 {
			size := len(old.history) + 1
			if size > s.capacity {
				size = s.capacity
			}
			next.history = make([]domain.HealthSnapshot, 0, size)
			next.history = append(next.history, old.current)
			next.history = append(next.history, old.history[:size-1]...)
		}
	}

	s.state.Store(next)
	return nil
}

func (s *HealthStore) Latest() domain.HealthSnapshot {
	return s.state.Load().current
}

// History returns up to limit prior snapshots, most recent first. A limit of
// zero or less returns the whole ring.
func (s *HealthStore) History(limit int) []domain.HealthSnapshot {
	history := s.state.Load().history
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	out := make([]domain.HealthSnapshot, limit)
	copy(out, history[:limit])
	return out
}

func (s *HealthStore) Capacity() int {
	return s.capacity
}
