package flagprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/matt-riley/flagprobe/internal/core"
	"github.com/matt-riley/flagprobe/internal/events"
	"github.com/matt-riley/flagprobe/internal/fetch"
	"github.com/matt-riley/flagprobe/internal/metrics"
	"github.com/matt-riley/flagprobe/internal/store"
	"github.com/matt-riley/flagprobe/internal/syncer"
)

const closeGracePeriod = 2 * time.Second

// SyncState is the lifecycle position of a client's background sync.
type SyncState = syncer.State

const (
	SyncCreated  = syncer.StateCreated
	SyncStarting = syncer.StateStarting
	SyncRunning  = syncer.StateRunning
	SyncClosed   = syncer.StateClosed
)

type options struct {
	logger        *slog.Logger
	httpClient    *http.Client
	sink          events.Sink
	onUpdate      func(version uint64)
	flushInterval time.Duration
}

type Option func(*options)

// WithLogger sets the logger for background activity. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used for toggle fetches and the default
// event sink.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) {
		o.httpClient = httpClient
	}
}

// WithEventSink replaces the HTTP event sink.
func WithEventSink(sink EventSink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithOnUpdate registers fn to run after each newly published toggle set, in
// publication order. fn runs off the sync goroutine and may call Close.
func WithOnUpdate(fn func(version uint64)) Option {
	return func(o *options) {
		o.onUpdate = fn
	}
}

// WithEventFlushInterval overrides the event flush period, which defaults to
// the refresh interval.
func WithEventFlushInterval(interval time.Duration) Option {
	return func(o *options) {
		o.flushInterval = interval
	}
}

// engine is the evaluation state shared by a Client and its user views.
type engine struct {
	store    *store.Store
	recorder *events.Recorder
	metrics  *metrics.Metrics
}

// Evaluator answers toggle queries for one user.
type Evaluator struct {
	engine *engine
	user   *User
}

// Client owns the background sync and event reporting for one SDK key and
// evaluates toggles for its user. Use ForUser to evaluate for others.
type Client struct {
	*Evaluator

	syncer   *syncer.Syncer
	recorder *events.Recorder
	metrics  *metrics.Metrics

	closeOnce sync.Once
}

// New builds a client and starts syncing. It blocks for at most
// cfg.StartWait() waiting for the first fetch to finish; afterwards queries
// are answered from whatever toggle set is current, possibly empty. A nil
// user is replaced by an anonymous one.
func New(cfg *Config, user *User, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.httpClient == nil {
		o.httpClient = fetch.NewHTTPClient()
	}
	if o.flushInterval <= 0 {
		o.flushInterval = cfg.refreshInterval
	}
	if user == nil {
		user = NewUser("")
	}

	userParam, err := fetch.EncodeUser(user)
	if err != nil {
		return nil, err
	}
	fetcher, err := fetch.New(fetch.Config{
		TogglesURL: cfg.url.TogglesURL(),
		SDKKey:     cfg.sdkKey,
		UserParam:  userParam,
		HTTPClient: o.httpClient,
	})
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	sink := o.sink
	if sink == nil {
		sink = events.NewHTTPSink(cfg.url.EventsURL().String(), cfg.sdkKey, fetch.UserAgent, o.httpClient)
	}
	recorder := events.NewRecorder(sink,
		events.WithLogger(o.logger),
		events.WithMetrics(m),
		events.WithFlushInterval(o.flushInterval),
	)

	st := store.New()
	syncOpts := []syncer.Option{
		syncer.WithLogger(o.logger),
		syncer.WithMetrics(m),
		syncer.WithRefreshInterval(cfg.refreshInterval),
	}
	if o.onUpdate != nil {
		onUpdate := o.onUpdate
		syncOpts = append(syncOpts, syncer.WithOnUpdate(func(snapshot *core.Snapshot) {
			onUpdate(snapshot.Version)
		}))
	}
	sy := syncer.New(fetcher, st, syncOpts...)

	c := &Client{
		Evaluator: &Evaluator{
			engine: &engine{store: st, recorder: recorder, metrics: m},
			user:   user,
		},
		syncer:   sy,
		recorder: recorder,
		metrics:  m,
	}

	if err := sy.Start(context.Background(), cfg.startWait); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NewForTest builds an offline client from a JSON object mapping toggle keys
// to the values they serve. Every known toggle reports version 1 and
// ReasonStatic; the background sync stays closed.
func NewForTest(togglesJSON string) (*Client, error) {
	var values map[string]any
	if err := json.Unmarshal([]byte(togglesJSON), &values); err != nil {
		return nil, fmt.Errorf("%w: test toggles: %v", ErrInvalidConfig, err)
	}

	snapshot := &core.Snapshot{Version: 1, Toggles: make(map[string]core.Toggle, len(values))}
	for key, value := range values {
		snapshot.Toggles[key] = core.Toggle{
			Key:        key,
			Version:    1,
			Variations: []any{value},
			Static:     true,
		}
	}

	st := store.New()
	st.Replace(snapshot)
	sy := syncer.New(nil, st)
	_ = sy.Close(context.Background())

	m := metrics.New()
	m.SetSnapshot(snapshot.Version, len(snapshot.Toggles))

	return &Client{
		Evaluator: &Evaluator{
			engine: &engine{store: st, metrics: m},
			user:   NewUser(""),
		},
		syncer:  sy,
		metrics: m,
	}, nil
}

// ForUser returns an evaluator sharing this client's toggle set but
// evaluating for u.
func (c *Client) ForUser(u *User) *Evaluator {
	if u == nil {
		u = NewUser("")
	}
	return &Evaluator{engine: c.engine, user: u}
}

func (c *Client) SyncState() SyncState {
	return c.syncer.State()
}

// MetricsHandler serves this client's Prometheus metrics.
func (c *Client) MetricsHandler() http.Handler {
	return c.metrics.Handler()
}

// Close stops the background sync and flushes buffered access events within
// a short grace period. Calls after the first return nil and do nothing.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeGracePeriod)
		defer cancel()

		err = c.syncer.Close(ctx)
		if c.recorder != nil {
			err = errors.Join(err, c.recorder.Close(ctx))
		}
	})
	return err
}

func (e *Evaluator) BoolValue(key string, defaultValue bool) bool {
	return e.BoolDetail(key, defaultValue).Value
}

func (e *Evaluator) BoolDetail(key string, defaultValue bool) Detail[bool] {
	return evaluate(e, key, defaultValue, asBool)
}

func (e *Evaluator) NumberValue(key string, defaultValue float64) float64 {
	return e.NumberDetail(key, defaultValue).Value
}

func (e *Evaluator) NumberDetail(key string, defaultValue float64) Detail[float64] {
	return evaluate(e, key, defaultValue, asNumber)
}

func (e *Evaluator) StringValue(key string, defaultValue string) string {
	return e.StringDetail(key, defaultValue).Value
}

func (e *Evaluator) StringDetail(key string, defaultValue string) Detail[string] {
	return evaluate(e, key, defaultValue, asString)
}

// JSONValue returns the served value re-encoded as JSON. Any variation type
// is accepted.
func (e *Evaluator) JSONValue(key string, defaultValue json.RawMessage) json.RawMessage {
	return e.JSONDetail(key, defaultValue).Value
}

func (e *Evaluator) JSONDetail(key string, defaultValue json.RawMessage) Detail[json.RawMessage] {
	return evaluate(e, key, defaultValue, asJSON)
}

func evaluate[T any](e *Evaluator, key string, defaultValue T, convert func(any) (T, bool)) Detail[T] {
	detail := resolve(e, key, defaultValue, convert)
	e.engine.metrics.RecordEvaluation(string(detail.Reason))
	return detail
}

func resolve[T any](e *Evaluator, key string, defaultValue T, convert func(any) (T, bool)) Detail[T] {
	toggle, ok := e.engine.store.Current().Toggles[key]
	if !ok {
		return Detail[T]{Value: defaultValue, Reason: ReasonNotFound}
	}

	result := core.Evaluate(toggle, e.user.evaluationContext())
	e.engine.record(key, result)

	if result.Reason == core.ReasonError {
		return Detail[T]{Value: defaultValue, RuleIndex: result.RuleIndex, Version: result.Version, Reason: ReasonError}
	}

	value, ok := convert(result.Value)
	if !ok {
		return Detail[T]{Value: defaultValue, Version: result.Version, Reason: ReasonWrongType}
	}

	return Detail[T]{
		Value:     value,
		RuleIndex: result.RuleIndex,
		Version:   result.Version,
		Reason:    result.Reason,
	}
}

func (e *engine) record(key string, result core.Result) {
	if e.recorder == nil {
		return
	}
	e.recorder.Record(events.AccessEvent{
		Time:    time.Now().UnixMilli(),
		Key:     key,
		Value:   result.Value,
		Index:   result.RuleIndex,
		Version: result.Version,
		Reason:  string(result.Reason),
	})
}

func asBool(value any) (bool, bool) {
	b, ok := value.(bool)
	return b, ok
}

func asString(value any) (string, bool) {
	s, ok := value.(string)
	return s, ok
}

func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asJSON(value any) (json.RawMessage, bool) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	return json.RawMessage(b), true
}
