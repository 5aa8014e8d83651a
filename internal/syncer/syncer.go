// Package syncer owns the background loop that keeps a toggle store in step
// with the remote toggle service.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/matt-riley/flagprobe/internal/core"
	"github.com/matt-riley/flagprobe/internal/fetch"
	"github.com/matt-riley/flagprobe/internal/logging"
	"github.com/matt-riley/flagprobe/internal/metrics"
	"github.com/matt-riley/flagprobe/internal/store"
)

const (
	DefaultRefreshInterval = 10 * time.Second
	defaultRetryInterval   = 500 * time.Millisecond
	maxRetryInterval       = 30 * time.Second
	updateBacklog          = 16

	tracerName = "github.com/matt-riley/flagprobe/internal/syncer"
)

var (
	ErrAlreadyStarted = errors.New("syncer already started")
	ErrClosed         = errors.New("syncer closed")
)

// State is the lifecycle position of a Syncer.
type State int32

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Fetcher retrieves the latest toggle snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (*core.Snapshot, error)
}

type Option func(*Syncer)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Syncer) {
		s.metrics = m
	}
}

// WithRefreshInterval sets the polling period. Non-positive values keep the
// default.
func WithRefreshInterval(interval time.Duration) Option {
	return func(s *Syncer) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// withRetryInterval sets the first backoff delay after a failed fetch.
func withRetryInterval(interval time.Duration) Option {
	return func(s *Syncer) {
		if interval > 0 {
			s.retryInterval = interval
		}
	}
}

// WithOnUpdate registers fn to run after every published snapshot, in
// publication order, on a goroutine of its own. A slow fn never delays a
// fetch, and fn may call Close.
func WithOnUpdate(fn func(*core.Snapshot)) Option {
	return func(s *Syncer) {
		s.onUpdate = fn
	}
}

type Syncer struct {
	fetcher       Fetcher
	store         *store.Store
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	interval      time.Duration
	retryInterval time.Duration
	onUpdate      func(*core.Snapshot)

	state atomic.Int32

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	updates   chan *core.Snapshot
	closeOnce sync.Once
}

// New returns a syncer in the Created state. Nothing runs until Start.
func New(fetcher Fetcher, st *store.Store, opts ...Option) *Syncer {
	s := &Syncer{
		fetcher:       fetcher,
		store:         st,
		logger:        slog.Default(),
		tracer:        otel.Tracer(tracerName),
		interval:      DefaultRefreshInterval,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Component(s.logger, "syncer")
	return s
}

func (s *Syncer) State() State {
	return State(s.state.Load())
}

// Start launches the sync loop and blocks until the first fetch finishes,
// startWait elapses or ctx is done, whichever comes first. A non-positive
// startWait does not block. The loop outlives ctx and stops only on Close.
func (s *Syncer) Start(ctx context.Context, startWait time.Duration) error {
	s.mu.Lock()
	switch s.State() {
	case StateCreated:
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	default:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state.Store(int32(StateStarting))

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	first := make(chan struct{})
	if s.onUpdate != nil {
		s.updates = make(chan *core.Snapshot, updateBacklog)
		go s.notify(loopCtx)
	}
	go s.run(loopCtx, first)
	s.mu.Unlock()

	if startWait > 0 {
		timer := time.NewTimer(startWait)
		defer timer.Stop()

		select {
		case <-first:
		case <-timer.C:
			s.logger.WarnContext(ctx, "first toggle fetch did not finish before start wait",
				slog.Duration("start_wait", startWait),
			)
		case <-ctx.Done():
		}
	}

	s.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))
	return nil
}

// Close cancels any in-flight fetch and stops the loop, waiting for it to
// exit until ctx is done. The loop never waits on the update hook, so Close
// may be called from inside it; a hook that is already running is not
// awaited. Only the first call has any effect.
func (s *Syncer) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state.Store(int32(StateClosed))
		cancel, done := s.cancel, s.done
		s.mu.Unlock()

		if cancel == nil {
			return
		}
		cancel()

		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

func (s *Syncer) run(ctx context.Context, first chan<- struct{}) {
	defer close(s.done)

	s.sync(ctx)
	close(first)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sync(ctx)
		}
	}
}

// sync fetches until it succeeds, fails permanently, or the retry budget of
// one refresh interval runs out.
func (s *Syncer) sync(ctx context.Context) {
	var snapshot *core.Snapshot
	var elapsed time.Duration

	operation := func() error {
		snap, took, err := s.fetchOnce(ctx)
		if err != nil {
			if fetch.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		snapshot, elapsed = snap, took
		return nil
	}

	notify := func(err error, wait time.Duration) {
		s.logger.WarnContext(ctx, "toggle fetch failed, retrying",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", wait),
		)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(s.newBackOff(), ctx), notify); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.ErrorContext(ctx, "toggle fetch gave up until next refresh",
			slog.String("error", err.Error()),
			slog.Bool("permanent", fetch.IsPermanent(err)),
		)
		return
	}

	s.publish(ctx, snapshot, elapsed)
}

// fetchOnce bounds a single request by the refresh interval so that a
// server that never answers cannot hold up the next refresh.
func (s *Syncer) fetchOnce(ctx context.Context) (*core.Snapshot, time.Duration, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	fetchCtx, span := s.tracer.Start(fetchCtx, "flagprobe.fetch_toggles")
	defer span.End()

	start := time.Now()
	snapshot, err := s.fetcher.Fetch(fetchCtx)
	took := time.Since(start)

	if err == nil && snapshot == nil {
		err = errors.New("fetcher returned no snapshot")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() == nil {
			result := metrics.FetchTransport
			if errors.Is(err, fetch.ErrParse) {
				result = metrics.FetchParse
			}
			s.metrics.RecordFetch(result, took.Seconds())
		}
		return nil, took, err
	}

	span.SetAttributes(
		attribute.Int64("flagprobe.snapshot.version", int64(snapshot.Version)),
		attribute.Int("flagprobe.snapshot.toggles", len(snapshot.Toggles)),
	)
	return snapshot, took, nil
}

func (s *Syncer) publish(ctx context.Context, snapshot *core.Snapshot, took time.Duration) {
	if !s.store.ReplaceIfNewer(snapshot) {
		s.metrics.RecordFetch(metrics.FetchUnchanged, took.Seconds())
		s.logger.DebugContext(ctx, "toggle snapshot unchanged",
			slog.Uint64("version", snapshot.Version),
		)
		return
	}

	s.metrics.RecordFetch(metrics.FetchPublished, took.Seconds())
	s.metrics.SetSnapshot(snapshot.Version, len(snapshot.Toggles))
	s.logger.InfoContext(ctx, "toggle snapshot published",
		slog.Uint64("version", snapshot.Version),
		slog.Int("toggles", len(snapshot.Toggles)),
	)

	if s.updates == nil {
		return
	}
	select {
	case s.updates <- snapshot:
	case <-ctx.Done():
	}
}

func (s *Syncer) notify(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot := <-s.updates:
			s.onUpdate(snapshot)
		}
	}
}

func (s *Syncer) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInterval
	b.MaxInterval = min(maxRetryInterval, s.interval)
	b.MaxElapsedTime = s.interval
	b.Reset()
	return b
}
