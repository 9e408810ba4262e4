package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthmon/internal/domain"
)

func snapshotAt(generation uint64, at time.Time, status domain.StatusLevel) domain.HealthSnapshot {
	return domain.NewSnapshot(generation, at, status, map[string]domain.CollectorResult{
		"cpu": {CollectorName: "cpu", Status: status},
	})
}

func TestHealthStore_Placeholder(t *testing.T) {
	s := NewHealthStore(3)

	latest := s.Latest()
	assert.Equal(t, uint64(0), latest.Generation)
	assert.Equal(t, domain.StatusDegraded, latest.OverallStatus)
	assert.Empty(t, latest.Components)
	assert.Empty(t, s.History(0))
}

func TestHealthStore_PublishAndEvict(t *testing.T) {
	s := NewHealthStore(3)
	base := time.Now()

	for i := 1; i <= 5; i++ {
		err := s.Publish(snapshotAt(uint64(i), base.Add(time.Duration(i)*time.Second), domain.StatusOK))
		require.NoError(t, err)
	}

	assert.Equal(t, uint64(5), s.Latest().Generation)

	history := s.History(0)
	require.Len(t, history, 3, "ring is bounded by its capacity")
	assert.Equal(t, uint64(4), history[0].Generation, "most recent first")
	assert.Equal(t, uint64(3), history[1].Generation)
	assert.Equal(t, uint64(2), history[2].Generation)

	assert.Len(t, s.History(2), 2)
	assert.Len(t, s.History(10), 3)
}

func TestHealthStore_NoHistory(t *testing.T) {
	s := NewHealthStore(0)
	now := time.Now()

	require.NoError(t, s.Publish(snapshotAt(1, now, domain.StatusOK)))
	require.NoError(t, s.Publish(snapshotAt(2, now, domain.StatusOK)))

	assert.Equal(t, uint64(2), s.Latest().Generation)
	assert.Empty(t, s.History(0))
}

func TestHealthStore_RejectsOrderingViolations(t *testing.T) {
	s := NewHealthStore(2)
	now := time.Now()

	require.NoError(t, s.Publish(snapshotAt(2, now, domain.StatusOK)))

	err := s.Publish(snapshotAt(2, now.Add(time.Second), domain.StatusOK))
	assert.ErrorIs(t, err, ErrStaleGeneration)

	err = s.Publish(snapshotAt(1, now.Add(time.Second), domain.StatusOK))
	assert.ErrorIs(t, err, ErrStaleGeneration)

	err = s.Publish(snapshotAt(3, now.Add(-time.Second), domain.StatusOK))
	assert.ErrorIs(t, err, ErrTimestampRegressed)

	assert.Equal(t, uint64(2), s.Latest().Generation, "rejected publishes leave the store untouched")
	assert.Empty(t, s.History(0))
}

func TestHealthStore_ConcurrentReaders(t *testing.T) {
	s := NewHealthStore(5)
	start := time.Now()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Latest()
				assert.GreaterOrEqual(t, snap.Generation, last)
				last = snap.Generation
				if snap.Generation > 0 {
					// a published snapshot is always whole
					assert.Equal(t, snap.OverallStatus, snap.Components["cpu"].Status)
				}
			}
		}()
	}

	for i := 1; i <= 200; i++ {
		status := domain.StatusLevel(i % 4)
		require.NoError(t, s.Publish(snapshotAt(uint64(i), start.Add(time.Duration(i)*time.Millisecond), status)))
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, uint64(200), s.Latest().Generation)
}
