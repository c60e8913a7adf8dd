package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stocktrader/internal/cache"
	"stocktrader/internal/config"
	"stocktrader/internal/coordinator"
	"stocktrader/internal/fetcher"
	"stocktrader/internal/metrics"
	"stocktrader/internal/progress"
	"stocktrader/internal/ratelimit"
	"stocktrader/internal/stockapi"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	slog.SetDefault(newLogger(os.Stderr, cfg.LogLevel))

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server stopped", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
		defer srv.Close()
	}

	if err := run(ctx, cfg, reg, os.Stdout); err != nil {
		log.Fatalf("Run failed: %v", err)
	}
}

// run fetches the configured symbol, then analyzes it, printing progress
// and the result to out.
func run(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, out io.Writer) error {
	if strings.TrimSpace(cfg.Symbol) == "" {
		return errors.New("no symbol configured, set SYMBOL")
	}

	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	store, err := openStore(cfg.CachePath)
	if err != nil {
		return err
	}
	historyCache := cache.New(store)
	defer historyCache.Close()

	limiter := ratelimit.GetLimiter()
	limiter.Override(map[ratelimit.API]float64{
		ratelimit.APIHistory:    cfg.HistoryRate,
		ratelimit.APIBasic:      cfg.BasicRate,
		ratelimit.APIAnalysis:   cfg.AnalysisRate,
		ratelimit.APIConnection: cfg.ConnectionRate,
	})
	client := stockapi.NewClient(cfg.APIBaseURL, fetcher.ClientOptions{
		Timeout:    cfg.RequestTimeout,
		RetryCount: cfg.RetryCount,
	}, stockapi.WithLimiter(limiter))
	defer client.Close()

	coord := coordinator.New(client, historyCache,
		coordinator.WithMetrics(m),
		coordinator.WithTTL(cfg.CacheTTL),
		// The process exits right after the run; there is no view to linger on.
		coordinator.WithGrace(0),
	)
	cancelProgress := coord.SubscribeProgress(func(s progress.Snapshot) {
		printSnapshot(out, s)
	})
	defer cancelProgress()

	fmt.Fprintf(out, "Fetching %s (%s market) from %s\n", cfg.Symbol, cfg.Market, cfg.APIBaseURL)
	fmt.Fprintln(out, "================================================")
	entry, err := coord.FetchAndCache(ctx, cfg.Symbol, cfg.Market)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Cached %d bars for %s\n", len(entry.Series), entry.Symbol)

	if cfg.AI.APIKey == "" {
		fmt.Fprintln(out, "AI settings not configured, skipping analysis")
		return nil
	}

	conn := coord.TestConnection(ctx, cfg.AI)
	fmt.Fprintf(out, "AI connection: %s\n", conn.Message)
	if !conn.Success {
		return errors.New(conn.Message)
	}

	fmt.Fprintln(out, "================================================")
	result, err := coord.Analyze(ctx, cfg.Symbol, cfg.Market, cfg.Strategy, cfg.AI)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}
	fmt.Fprintln(out, "================================================")
	fmt.Fprintln(out, "Analysis completed!")
	return nil
}

func openStore(path string) (cache.Store, error) {
	if path == "" {
		slog.Info("no cache path configured, keeping history in memory")
		return cache.NewMemoryStore(), nil
	}
	store, err := cache.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history cache: %w", err)
	}
	return store, nil
}

func printSnapshot(out io.Writer, s progress.Snapshot) {
	if !s.Visible {
		return
	}
	i := s.ActiveStep()
	if i < 0 {
		i = s.FailedStep()
	}
	for j := len(s.Steps) - 1; i < 0 && j >= 0; j-- {
		if s.Steps[j].Status != progress.StatusPending {
			i = j
		}
	}
	if i < 0 {
		return
	}
	step := s.Steps[i]
	fmt.Fprintf(out, "[%s %d/%d] %s: %s", s.Title, i+1, len(s.Steps), step.Title, step.Status)
	if step.Detail != "" {
		fmt.Fprintf(out, " - %s", step.Detail)
	}
	fmt.Fprintln(out)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}
