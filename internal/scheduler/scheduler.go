// Package scheduler runs the collectors on a fixed cadence, aggregates each
// round into a snapshot and publishes it.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"healthmon/internal/aggregator"
	"healthmon/internal/domain"
	"healthmon/internal/store"
	"healthmon/internal/util"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

// TickObserver is told about every completed tick and every skipped boundary.
type TickObserver interface {
	ObserveTick(snapshot domain.HealthSnapshot, elapsed time.Duration)
	ObserveSkippedTicks(count int)
}

type Options struct {
	Interval            time.Duration
	PerCollectorTimeout time.Duration
	ShutdownGrace       time.Duration
	// SinkTimeout bounds each sink call. Defaults to PerCollectorTimeout.
	SinkTimeout time.Duration
	Sinks       []domain.SnapshotSink
	Observer    TickObserver
	Logger      *util.AgentLogger
	Clock       func() time.Time
}

type Scheduler struct {
	collectors []domain.Collector
	names      []string
	store      *store.HealthStore
	opts       Options
	// inFlight[i] is set while collectors[i] has a Collect call outstanding,
	// including one abandoned at its timeout.
	inFlight []atomic.Bool

	tickMu     sync.Mutex
	generation uint64
	lastStamp  time.Time

	skipped atomic.Uint64
}

// New fixes the collector set for the lifetime of the scheduler.
func New(collectors []domain.Collector, st *store.HealthStore, opts Options) (*Scheduler, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: health store is required", ErrInvalidSchedule)
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidSchedule)
	}
	if opts.PerCollectorTimeout <= 0 || opts.PerCollectorTimeout >= opts.Interval {
		return nil, fmt.Errorf("%w: per-collector timeout %s must be positive and below interval %s",
			ErrInvalidSchedule, opts.PerCollectorTimeout, opts.Interval)
	}
	if opts.ShutdownGrace < 0 {
		return nil, fmt.Errorf("%w: shutdown grace must not be negative", ErrInvalidSchedule)
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = opts.PerCollectorTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	owned := make([]domain.Collector, 0, len(collectors))
	names := make([]string, 0, len(collectors))
	seen := make(map[string]struct{}, len(collectors))
	for _, c := range collectors {
		if c == nil {
			return nil, fmt.Errorf("%w: nil collector", ErrInvalidSchedule)
		}
		name := c.Name()
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate collector %q", ErrInvalidSchedule, name)
		}
		seen[name] = struct{}{}
		owned = append(owned, c)
		names = append(names, name)
	}

	return &Scheduler{
		collectors: owned,
		names:      names,
		store:      st,
		opts:       opts,
		inFlight:   make([]atomic.Bool, len(owned)),
	}, nil
}

// SkippedTicks is the number of boundaries skipped because a tick overran.
func (s *Scheduler) SkippedTicks() uint64 {
	return s.skipped.Load()
}

// Run ticks immediately and then on every interval boundary until ctx is
// cancelled. A tick in flight at cancellation gets ShutdownGrace to finish;
// its snapshot is published either way.
func (s *Scheduler) Run(ctx context.Context) error {
	log := s.opts.Logger
	log.Info("scheduler started",
		zap.Int("collectors", len(s.collectors)),
		zap.Duration("interval", s.opts.Interval),
		zap.Duration("per_collector_timeout", s.opts.PerCollectorTimeout))

	nominal := s.opts.Clock()
	for {
		if ctx.Err() != nil {
			break
		}
		s.runTick(ctx)
		if ctx.Err() != nil {
			break
		}

		next, missed := nextBoundary(nominal, s.opts.Clock(), s.opts.Interval)
		if missed > 0 {
			s.skipped.Add(uint64(missed))
			log.Warn("tick overran its interval, skipping boundaries",
				zap.Int("skipped", missed), zap.Time("next", next))
			if s.opts.Observer != nil {
				s.opts.Observer.ObserveSkippedTicks(missed)
			}
		}
		nominal = next

		timer := time.NewTimer(next.Sub(s.opts.Clock()))
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	log.Info("scheduler stopped", zap.Uint64("generation", s.currentGeneration()))
	return nil
}

// runTick detaches the tick from ctx so that cancellation starts the grace
// period instead of aborting the collectors outright.
func (s *Scheduler) runTick(ctx context.Context) {
	tickCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	finished := make(chan struct{})
	go func() {
		select {
		case <-finished:
			return
		case <-ctx.Done():
		}
		grace := time.NewTimer(s.opts.ShutdownGrace)
		defer grace.Stop()
		select {
		case <-finished:
		case <-grace.C:
			s.opts.Logger.Warn("shutdown grace elapsed, cancelling in-flight collectors",
				zap.Duration("grace", s.opts.ShutdownGrace))
			cancel()
		}
	}()

	s.Tick(tickCtx)
	close(finished)
}

// Tick runs one collection round, publishes the snapshot and hands it to
// the sinks. Concurrent calls are serialized.
func (s *Scheduler) Tick(ctx context.Context) domain.HealthSnapshot {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	started := time.Now()
	results := s.collect(ctx)
	verdict := aggregator.Reduce(results, s.names)

	stamp := s.opts.Clock()
	if stamp.Before(s.lastStamp) {
		stamp = s.lastStamp
	}
	s.lastStamp = stamp
	s.generation++
	snapshot := domain.NewSnapshot(s.generation, stamp, verdict.Status, verdict.Components)

	log := s.opts.Logger
	if err := s.store.Publish(snapshot); err != nil {
		log.Error("failed to publish snapshot", zap.Uint64("generation", snapshot.Generation), zap.Error(err))
	}
	for _, r := range results {
		if r.Error != domain.ErrorNone {
			log.Warn("collector failed",
				zap.String("collector", r.CollectorName),
				zap.String("error", string(r.Error)),
				zap.String("message", r.Message))
		}
	}

	s.emit(ctx, snapshot)

	elapsed := time.Since(started)
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveTick(snapshot, elapsed)
	}
	log.Debug("tick complete",
		zap.Uint64("generation", snapshot.Generation),
		zap.Stringer("status", snapshot.OverallStatus),
		zap.Duration("elapsed", elapsed))
	return snapshot
}

func (s *Scheduler) currentGeneration() uint64 {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	return s.generation
}

func (s *Scheduler) collect(ctx context.Context) []domain.CollectorResult {
	if len(s.collectors) == 0 {
		return nil
	}

	results := make([]domain.CollectorResult, len(s.collectors))
	g := new(errgroup.Group)
	g.SetLimit(len(s.collectors))
	for i := range s.collectors {
		i := i
		g.Go(func() error {
			results[i] = s.invoke(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// invoke runs one collector under the per-collector timeout. A collector
// that ignores cancellation is abandoned; its goroutine exits when Collect
// eventually returns. Until then the collector is not invoked again, so each
// collector has at most one call outstanding.
func (s *Scheduler) invoke(ctx context.Context, i int) domain.CollectorResult {
	c, name := s.collectors[i], s.names[i]
	busy := &s.inFlight[i]
	if !busy.CompareAndSwap(false, true) {
		s.opts.Logger.Warn("collector still running from an earlier tick", zap.String("collector", name))
		return domain.FailedResult(name, domain.ErrorTimeout, "previous invocation still running")
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.PerCollectorTimeout)
	defer cancel()

	started := time.Now()
	done := make(chan domain.CollectorResult, 1)
	go func() {
		var result domain.CollectorResult
		defer func() {
			if r := recover(); r != nil {
				result = domain.FailedResult(name, domain.ErrorUnexpected, fmt.Sprintf("collector panicked: %v", r))
			}
			busy.Store(false)
			done <- result
		}()
		result = c.Collect(cctx)
	}()

	var result domain.CollectorResult
	select {
	case result = <-done:
	case <-cctx.Done():
		select {
		case result = <-done:
		default:
			result = domain.FailedResult(name, domain.ErrorTimeout, timeoutMessage(cctx.Err(), s.opts.PerCollectorTimeout))
		}
	}

	result = result.Normalized(name)
	if result.Duration <= 0 {
		result.Duration = time.Since(started)
	}
	return result
}

func timeoutMessage(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("no result within %s", timeout)
	}
	return "cancelled during shutdown"
}

func (s *Scheduler) emit(ctx context.Context, snapshot domain.HealthSnapshot) {
	for _, sink := range s.opts.Sinks {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SinkTimeout)
		err := sink.StoreSnapshot(sctx, snapshot)
		cancel()
		if err != nil {
			s.opts.Logger.Error("snapshot sink failed",
				zap.Uint64("generation", snapshot.Generation),
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Error(err))
		}
	}
}

// nextBoundary returns the first nominal boundary at or after now, counting
// the boundaries that were passed without a tick.
func nextBoundary(nominal, now time.Time, interval time.Duration) (time.Time, int) {
	next := nominal.Add(interval)
	if !now.After(next) {
		return next, 0
	}
	missed := int((now.Sub(next) + interval - 1) / interval)
	return next.Add(time.Duration(missed) * interval), missed
}
