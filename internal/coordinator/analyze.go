package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"stocktrader/internal/cache"
	"stocktrader/internal/config"
	"stocktrader/internal/fetcher"
	"stocktrader/internal/metrics"
	"stocktrader/internal/model"
	"stocktrader/internal/progress"
	"stocktrader/internal/series"
	"stocktrader/internal/stockapi"
	"stocktrader/internal/symbol"
)

// Analysis sequence steps
const (
	analyzeStepPrepare = iota
	analyzeStepExtract
	analyzeStepRequest
	analyzeStepReceive
)

var analyzeSteps = []string{"prepare analysis", "extract recent history", "request analysis", "receive result"}

// AnalysisOrchestrator sends the recent part of a cached history to the
// analysis service.
type AnalysisOrchestrator struct {
	*shared
	busy atomic.Bool
}

// Busy reports whether an analysis is running
func (a *AnalysisOrchestrator) Busy() bool {
	return a.busy.Load()
}

// Analyze checks the AI settings and the cached history of raw in market,
// then runs the remote analysis on the last year of bars. The history must
// have been fetched within the cache TTL.
func (a *AnalysisOrchestrator) Analyze(ctx context.Context, raw, market string, strategy model.Strategy, ai config.AIConfig) (result *model.AnalysisResult, err error) {
	op := fetcher.OpAnalysis
	start := a.now()
	defer func() { a.observe(op, start, err) }()

	if verr := ai.Validate(); verr != nil {
		return nil, fetcher.NewPreflightError(op, fetcher.KindConfiguration,
			"configure the AI settings first: "+verr.Error(), verr)
	}
	if verr := config.ValidateStrategy(strategy); verr != nil {
		return nil, fetcher.NewPreflightError(op, fetcher.KindInvalidInput, verr.Error(), verr)
	}
	strategy = strategy.WithDefaults()

	if strings.TrimSpace(raw) == "" {
		return nil, fetcher.NewPreflightError(op, fetcher.KindInvalidInput, "enter a stock symbol", symbol.ErrEmptySymbol)
	}
	m, err := symbol.ParseMarket(market)
	if err != nil {
		return nil, fetcher.NewPreflightError(op, fetcher.KindInvalidInput, err.Error(), err)
	}
	canonical, err := symbol.Normalize(raw, m)
	if err != nil {
		return nil, fetcher.NewPreflightError(op, fetcher.KindInvalidInput, err.Error(), err)
	}

	entry, err := a.resolve(op, canonical)
	if err != nil {
		return nil, err
	}

	h := a.tracker.Start("AI analysis", analyzeSteps)
	a.busy.Store(true)
	defer a.busy.Store(false)
	defer a.finish(h)

	a.advance(h, analyzeStepPrepare, progress.StatusCompleted,
		fmt.Sprintf("%s, %d cached bars", canonical, len(entry.Series)))

	a.advance(h, analyzeStepExtract, progress.StatusInProgress, "selecting the last year of bars")
	window := series.RecentWindow(entry.Series, series.AnalysisWindowDays, a.now())
	a.advance(h, analyzeStepExtract, progress.StatusCompleted,
		fmt.Sprintf("%d bars from the last %d days", len(window), series.AnalysisWindowDays))

	a.advance(h, analyzeStepRequest, progress.StatusInProgress, "waiting for the analysis service")
	lookupCtx, cancelLookup := context.WithTimeout(ctx, a.nameTimeout)
	defer cancelLookup()
	names := a.lookupName(lookupCtx, canonical)

	body, err := a.api.Analyze(ctx, stockapi.AnalyzeRequest{
		Symbol:      canonical,
		Strategy:    strategy,
		HistoryData: window,
		AIConfig:    ai,
	})
	if err != nil {
		return nil, a.fail(h, op, err)
	}
	a.advance(h, analyzeStepRequest, progress.StatusCompleted, "response received")

	a.advance(h, analyzeStepReceive, progress.StatusInProgress, "reading result")
	result, err = decodeAnalysis(body)
	if err != nil {
		return nil, a.fail(h, op, err)
	}
	result.ReconcileReturns()
	result.FormattedSymbol = canonical

	select {
	case result.StockName = <-names:
	case <-lookupCtx.Done():
		select {
		case result.StockName = <-names:
		default:
			a.logger.Debug("instrument name lookup abandoned", "symbol", canonical, "error", lookupCtx.Err())
		}
	}
	a.advance(h, analyzeStepReceive, progress.StatusCompleted, "analysis complete")

	a.logger.Info("analysis complete",
		"symbol", canonical,
		"bars", len(window),
		"trend", result.Trend,
		"confidence", result.Confidence)
	return result, nil
}

// resolve returns the usable cache entry for canonical
func (a *AnalysisOrchestrator) resolve(op fetcher.Op, canonical string) (*model.CachedSeries, error) {
	entry, ok := a.cache.Get(canonical)
	if !ok {
		a.metrics.CacheLookup(metrics.CacheMiss)
		return nil, fetcher.NewPreflightError(op, fetcher.KindCacheMiss,
			fmt.Sprintf("no cached history for %s, fetch it first", canonical), nil)
	}
	if cache.IsStale(entry, a.now(), a.ttl) {
		a.metrics.CacheLookup(metrics.CacheStale)
		return nil, fetcher.NewPreflightError(op, fetcher.KindStaleCache,
			fmt.Sprintf("cached history for %s is older than %s, fetch it again", canonical, formatTTL(a.ttl)), nil)
	}
	a.metrics.CacheLookup(metrics.CacheHit)
	return entry, nil
}

// lookupName fetches the instrument name in the background. The channel
// always receives exactly one value; failures yield "".
func (a *AnalysisOrchestrator) lookupName(ctx context.Context, canonical string) <-chan string {
	names := make(chan string, 1)
	go func() {
		basic, err := a.api.Basic(ctx, canonical)
		if err != nil {
			a.logger.Debug("instrument name lookup failed", "symbol", canonical, "error", err)
			names <- ""
			return
		}
		names <- basic.Name
	}()
	return names
}

// decodeAnalysis accepts only a JSON object
func decodeAnalysis(body []byte) (*model.AnalysisResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fetcher.NewValidationError("analysis service returned no result object")
	}
	var result model.AnalysisResult
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return nil, fetcher.NewValidationError("analysis result is malformed: " + err.Error())
	}
	return &result, nil
}

func formatTTL(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return d.String()
}
