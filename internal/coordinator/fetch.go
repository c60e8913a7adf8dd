package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"stocktrader/internal/fetcher"
	"stocktrader/internal/model"
	"stocktrader/internal/progress"
	"stocktrader/internal/symbol"
)

// Fetch sequence steps
const (
	fetchStepPrepare = iota
	fetchStepRequest
	fetchStepCache
)

var fetchSteps = []string{"prepare request", "request history", "cache history"}

// FetchOrchestrator downloads a price history and stores it in the cache
type FetchOrchestrator struct {
	*shared
	busy atomic.Bool
}

// Busy reports whether a fetch is running
func (f *FetchOrchestrator) Busy() bool {
	return f.busy.Load()
}

// FetchAndCache resolves raw in market to its canonical symbol, downloads
// its full history up to today and replaces the cached entry.
func (f *FetchOrchestrator) FetchAndCache(ctx context.Context, raw, market string) (entry *model.CachedSeries, err error) {
	op := fetcher.OpHistory
	start := f.now()
	defer func() { f.observe(op, start, err) }()

	if strings.TrimSpace(raw) == "" {
		return nil, fetcher.NewPreflightError(op, fetcher.KindInvalidInput, "enter a stock symbol", symbol.ErrEmptySymbol)
	}
	m, err := symbol.ParseMarket(market)
	if err != nil {
		return nil, fetcher.NewPreflightError(op, fetcher.KindInvalidInput, err.Error(), err)
	}

	h := f.tracker.Start("fetch history", fetchSteps)
	f.busy.Store(true)
	defer f.busy.Store(false)
	defer f.finish(h)

	canonical, err := symbol.Normalize(raw, m)
	if err != nil {
		return nil, f.fail(h, op, err)
	}
	f.advance(h, fetchStepPrepare, progress.StatusCompleted, "symbol "+canonical)

	endDate := f.now().Format(model.DateLayout)
	f.advance(h, fetchStepRequest, progress.StatusInProgress,
		fmt.Sprintf("requesting %s history up to %s", canonical, endDate))

	resp, err := f.api.History(ctx, canonical, endDate)
	if err != nil {
		return nil, f.fail(h, op, err)
	}
	bars := resp.Bars()
	f.advance(h, fetchStepRequest, progress.StatusCompleted, fmt.Sprintf("received %d bars", len(bars)))

	f.advance(h, fetchStepCache, progress.StatusInProgress, fmt.Sprintf("caching %d bars", len(bars)))
	entry, err = f.cache.Put(canonical, bars)
	if err != nil {
		return nil, f.failAt(h, op, fetchStepCache, err)
	}
	f.advance(h, fetchStepCache, progress.StatusCompleted, fmt.Sprintf("cached %d bars", len(entry.Series)))

	f.logger.Info("history cached", "symbol", canonical, "bars", len(entry.Series))
	f.publishPut(CacheEvent{Symbol: canonical, Bars: len(entry.Series), FetchedAt: entry.FetchedAt})
	return entry, nil
}

// failAt fails step with a local error that the classifier cannot place
func (f *FetchOrchestrator) failAt(h progress.Handle, op fetcher.Op, step int, err error) *fetcher.ClassifiedError {
	detail := err.Error()
	ce := &fetcher.ClassifiedError{
		Kind:    fetcher.KindLocalConfiguration,
		Message: op.Prefix + detail,
		Detail:  detail,
		Step:    step,
		Cause:   err,
	}
	return f.fail(h, op, ce)
}
