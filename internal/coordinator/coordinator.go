// Package coordinator runs the two long-running operations of the trader
// view: fetching and caching a price history, then analyzing the cached
// history remotely. Both report step progress through a shared tracker.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stocktrader/internal/cache"
	"stocktrader/internal/config"
	"stocktrader/internal/fetcher"
	"stocktrader/internal/metrics"
	"stocktrader/internal/model"
	"stocktrader/internal/progress"
	"stocktrader/internal/stockapi"
)

// DefaultGrace is how long a finished sequence stays visible
const DefaultGrace = 1500 * time.Millisecond

// DefaultNameTimeout bounds the instrument name lookup run alongside an analysis
const DefaultNameTimeout = 3 * time.Second

// API is the backend as seen by the orchestrators
type API interface {
	History(ctx context.Context, symbol, endDate string) (*model.HistoryResponse, error)
	Basic(ctx context.Context, symbol string) (*model.StockBasic, error)
	Analyze(ctx context.Context, req stockapi.AnalyzeRequest) ([]byte, error)
	TestConnection(ctx context.Context, ai config.AIConfig) (*model.ConnectionResult, error)
}

// CacheEvent is published after a fetched history was stored
type CacheEvent struct {
	Symbol    string
	Bars      int
	FetchedAt time.Time
}

type options struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	grace   time.Duration
	ttl     time.Duration

	nameTimeout time.Duration
}

// Option configures a Coordinator
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records operation outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock overrides the time source used for end dates, windows and staleness
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithGrace sets how long a finished sequence stays visible before it is
// hidden. Zero hides it before the operation returns.
func WithGrace(d time.Duration) Option {
	return func(o *options) {
		o.grace = d
	}
}

// WithTTL sets the age after which a cached history is refused for analysis
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		o.ttl = d
	}
}

// WithNameTimeout bounds how long a finished analysis waits for the
// instrument name. A lookup that misses it leaves the name empty.
func WithNameTimeout(d time.Duration) Option {
	return func(o *options) {
		o.nameTimeout = d
	}
}

// shared is the state both orchestrators work against
type shared struct {
	options
	api     API
	cache   *cache.HistoryCache
	tracker *progress.Tracker

	mu        sync.Mutex
	onPut     map[int]func(CacheEvent)
	nextPutID int
}

func (s *shared) advance(h progress.Handle, i int, status progress.Status, detail string) {
	if err := s.tracker.Advance(h, i, status, detail); err != nil {
		s.logger.Warn("progress transition rejected", "step", i, "status", status, "error", err)
	}
}

// fail classifies err, fails the implicated step and returns the classified error
func (s *shared) fail(h progress.Handle, op fetcher.Op, err error) *fetcher.ClassifiedError {
	ce := fetcher.Classify(op, err)
	step := ce.Step
	if step < 0 {
		step = 0
	}
	if ferr := s.tracker.Fail(h, step, ce.Detail); ferr != nil {
		s.logger.Warn("progress failure rejected", "step", step, "error", ferr)
	}
	s.logger.Warn("operation failed",
		"operation", op.Name,
		"kind", ce.Kind,
		"step", step,
		"error", err)
	return ce
}

// finish hides the sequence once the grace delay has passed
func (s *shared) finish(h progress.Handle) {
	if s.grace <= 0 {
		s.tracker.Finish(h)
		return
	}
	time.AfterFunc(s.grace, func() {
		s.tracker.Finish(h)
	})
}

func (s *shared) observe(op fetcher.Op, start time.Time, err error) {
	s.metrics.ObserveOperation(op.Name, string(fetcher.KindOf(err)), s.now().Sub(start))
}

func (s *shared) publishPut(ev CacheEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := 0; id < s.nextPutID; id++ {
		if fn, ok := s.onPut[id]; ok {
			fn(ev)
		}
	}
}

// Coordinator composes the fetch and analysis orchestrators over one cache
// and one progress tracker.
type Coordinator struct {
	*shared
	Fetch    *FetchOrchestrator
	Analysis *AnalysisOrchestrator
}

// New creates a Coordinator
func New(api API, historyCache *cache.HistoryCache, opts ...Option) *Coordinator {
	o := options{
		logger: slog.Default(),
		now:    time.Now,
		grace:  DefaultGrace,
		ttl:    cache.DefaultTTL,

		nameTimeout: DefaultNameTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &shared{
		options: o,
		api:     api,
		cache:   historyCache,
		tracker: progress.NewTracker(),
		onPut:   make(map[int]func(CacheEvent)),
	}
	return &Coordinator{
		shared:   s,
		Fetch:    &FetchOrchestrator{shared: s},
		Analysis: &AnalysisOrchestrator{shared: s},
	}
}

// FetchAndCache runs the history fetch
func (c *Coordinator) FetchAndCache(ctx context.Context, raw, market string) (*model.CachedSeries, error) {
	return c.Fetch.FetchAndCache(ctx, raw, market)
}

// Analyze runs the AI analysis on the cached history
func (c *Coordinator) Analyze(ctx context.Context, raw, market string, strategy model.Strategy, ai config.AIConfig) (*model.AnalysisResult, error) {
	return c.Analysis.Analyze(ctx, raw, market, strategy, ai)
}

// Busy reports whether either operation is running
func (c *Coordinator) Busy() bool {
	return c.Fetch.Busy() || c.Analysis.Busy()
}

// Fetching reports whether a history fetch is running
func (c *Coordinator) Fetching() bool {
	return c.Fetch.Busy()
}

// Analyzing reports whether an analysis is running
func (c *Coordinator) Analyzing() bool {
	return c.Analysis.Busy()
}

// SubscribeProgress delivers every progress snapshot to fn; see progress.Tracker.Subscribe
func (c *Coordinator) SubscribeProgress(fn progress.Listener) (cancel func()) {
	return c.tracker.Subscribe(fn)
}

// OnCachePut calls fn after every successful history fetch. fn runs on the
// fetching goroutine.
func (c *Coordinator) OnCachePut(fn func(CacheEvent)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextPutID
	c.nextPutID++
	c.onPut[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onPut, id)
	}
}

// TestConnection probes the AI settings through the backend. Failures are
// reported as an unsuccessful result, never as an error.
func (c *Coordinator) TestConnection(ctx context.Context, ai config.AIConfig) *model.ConnectionResult {
	op := fetcher.OpConnectionTest
	start := c.now()

	if err := ai.Validate(); err != nil {
		ce := fetcher.NewPreflightError(op, fetcher.KindConfiguration, err.Error(), err)
		c.observe(op, start, ce)
		return &model.ConnectionResult{Success: false, Message: ce.Message}
	}

	res, err := c.api.TestConnection(ctx, ai)
	if err != nil {
		ce := fetcher.Classify(op, err)
		c.observe(op, start, ce)
		c.logger.Info("AI connection test failed", "kind", ce.Kind, "error", err)
		return &model.ConnectionResult{Success: false, Message: ce.Message}
	}
	c.observe(op, start, nil)

	if res.Message == "" {
		if res.Success {
			res.Message = "connection succeeded"
		} else {
			res.Message = fmt.Sprintf("%sno reason given", op.Prefix)
		}
	}
	return res
}
