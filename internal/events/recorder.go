// Package events buffers toggle access events and hands them to a Sink.
//
// Delivery and batching beyond the buffer belong to the Sink. The Recorder
// only guarantees that every event recorded before Close is offered to the
// sink on a periodic flush, an early flush once a full batch is buffered, or
// the final flush on Close.
package events

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/matt-riley/flagprobe/internal/logging"
	"github.com/matt-riley/flagprobe/internal/metrics"
)

const (
	DefaultCapacity      = 100
	DefaultFlushInterval = 5 * time.Second
	flushTimeout         = 5 * time.Second
	earlyFlushEvery      = time.Second
)

// AccessEvent describes one toggle evaluation.
type AccessEvent struct {
	Time    int64   `json:"time"`
	Key     string  `json:"key"`
	Value   any     `json:"value"`
	Index   *int    `json:"index,omitempty"`
	Version *uint64 `json:"version,omitempty"`
	Reason  string  `json:"reason"`
}

// Sink receives batches of access events.
type Sink interface {
	Send(ctx context.Context, events []AccessEvent) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, events []AccessEvent) error

func (f SinkFunc) Send(ctx context.Context, events []AccessEvent) error {
	return f(ctx, events)
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithFlushInterval sets the periodic flush interval. Non-positive values
// keep the default.
func WithFlushInterval(interval time.Duration) Option {
	return func(r *Recorder) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// withCapacity sets the early-flush threshold and the largest batch handed
// to the sink. Non-positive values keep the default.
func withCapacity(capacity int) Option {
	return func(r *Recorder) {
		if capacity > 0 {
			r.capacity = capacity
		}
	}
}

type Recorder struct {
	sink     Sink
	logger   *slog.Logger
	metrics  *metrics.Metrics
	capacity int
	interval time.Duration
	limiter  *rate.Limiter

	mu     sync.Mutex
	buf    []AccessEvent
	closed bool

	full      chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewRecorder starts a recorder flushing to sink until Close is called.
func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{
		sink:     sink,
		logger:   slog.Default(),
		capacity: DefaultCapacity,
		interval: DefaultFlushInterval,
		limiter:  rate.NewLimiter(rate.Every(earlyFlushEvery), 1),
		full:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.Component(r.logger, "events")
	r.buf = make([]AccessEvent, 0, r.capacity)

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.run(ctx)

	return r
}

// Record buffers ev. Once the buffer holds a full batch the flush loop is
// woken; the buffer keeps growing until that flush takes it, so no event is
// lost. Events recorded after Close are dropped.
func (r *Recorder) Record(ev AccessEvent) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.metrics.IncEventsDropped()
		return
	}
	r.buf = append(r.buf, ev)
	reachedCapacity := len(r.buf) >= r.capacity
	r.mu.Unlock()

	if reachedCapacity {
		r.signalFull()
	}
}

func (r *Recorder) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Close stops the flush loop and flushes whatever is buffered, bounded by
// ctx. Only the first call has any effect.
func (r *Recorder) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		r.cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
		}

		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		err = r.flush(ctx)
	})
	return err
}

func (r *Recorder) signalFull() {
	select {
	case r.full <- struct{}{}:
	default:
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.flushWithTimeout()
		case <-r.full:
			// Early flushes are spaced out by the limiter; events recorded
			// while waiting join the same flush.
			if !r.waitForSlot(ctx) {
				return
			}
			r.flushWithTimeout()
		}
	}
}

func (r *Recorder) waitForSlot(ctx context.Context) bool {
	reservation := r.limiter.Reserve()
	delay := reservation.Delay()
	if delay <= 0 {
		return true
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		reservation.Cancel()
		return false
	}
}

// flushWithTimeout is not tied to the loop context so that Close never
// aborts a send already in progress.
func (r *Recorder) flushWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	_ = r.flush(ctx)
}

// flush takes the whole buffer and sends it in batches of at most capacity
// events.
func (r *Recorder) flush(ctx context.Context) error {
	r.mu.Lock()
	if len(r.buf) == 0 {
		r.mu.Unlock()
		return nil
	}
	pending := r.buf
	r.buf = make([]AccessEvent, 0, r.capacity)
	r.mu.Unlock()

	var errs []error
	for batch := range slices.Chunk(pending, r.capacity) {
		if err := r.sink.Send(ctx, batch); err != nil {
			r.metrics.IncFlushFailures()
			r.logger.WarnContext(ctx, "event flush failed",
				slog.Int("events", len(batch)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		r.metrics.AddEventsFlushed(len(batch))
		r.logger.DebugContext(ctx, "events flushed", slog.Int("events", len(batch)))
	}
	return errors.Join(errs...)
}
