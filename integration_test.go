package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"stocktrader/internal/cache"
	"stocktrader/internal/config"
	"stocktrader/internal/coordinator"
	"stocktrader/internal/fetcher"
	"stocktrader/internal/model"
	"stocktrader/internal/progress"
	"stocktrader/internal/stockapi"
)

// newBackend serves the history, metadata and AI endpoints from canned data
func newBackend(t *testing.T, bars []model.Bar) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/stock/history", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		w.Header().Set("Content-Type", "application/json")
		if symbol == "999999" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"未找到股票代码 999999"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"symbol":   symbol,
			"end_date": r.URL.Query().Get("end_date"),
			"data":     bars,
		})
	})

	mux.HandleFunc("/api/v1/stock/basic", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"000001","name":"平安银行","industry":"银行","area":"深圳","market":"主板"}`))
	})

	mux.HandleFunc("/api/v1/ai/test-connection", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"模型连接成功"}`))
	})

	mux.HandleFunc("/api/v1/ai/analyze", func(w http.ResponseWriter, r *http.Request) {
		var req stockapi.AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"detail":"invalid body"}`))
			return
		}
		if req.AIConfig.APIKey != "sk-integration" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"detail":"API密钥无效"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"symbol":     req.Symbol,
			"trend":      "sideways",
			"confidence": 0.55,
			"logic":      "analyzed " + strings.Repeat("|", len(req.HistoryData)),
			"historical_similar_patterns": []map[string]interface{}{
				{"pattern_date": "2020-01-02", "return": 0.05, "similarity": 0.7},
			},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func recentBars(n int) []model.Bar {
	end := time.Now()
	bars := make([]model.Bar, n)
	for i := range bars {
		day := end.AddDate(0, 0, -i)
		bars[i] = model.Bar{
			Date:   day.Format(model.DateLayout),
			Open:   10,
			High:   10.5,
			Low:    9.5,
			Close:  10.2,
			Volume: 1000,
		}
	}
	return bars
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	return &config.Config{
		APIBaseURL:     baseURL + "/api/v1",
		RequestTimeout: 5 * time.Second,
		CachePath:      filepath.Join(t.TempDir(), "history.db"),
		CacheTTL:       cache.DefaultTTL,
		LogLevel:       "info",
		AI: config.AIConfig{
			APIKey:      "sk-integration",
			BaseURL:     "https://llm.example.test/v1",
			ModelName:   "test-model",
			Temperature: 0.1,
		},
		Symbol:   "000001",
		Market:   "cn",
		Strategy: model.DefaultStrategy(),
	}
}

// TestIntegration_FetchThenAnalyze runs the full flow against a mock backend and a SQLite cache
func TestIntegration_FetchThenAnalyze(t *testing.T) {
	server := newBackend(t, recentBars(400))
	cfg := testConfig(t, server.URL)

	reg := prometheus.NewRegistry()
	var out bytes.Buffer
	if err := run(context.Background(), cfg, reg, &out); err != nil {
		t.Fatalf("run() returned unexpected error: %v\n%s", err, out.String())
	}

	output := out.String()
	for _, want := range []string{
		"Cached 400 bars for 000001",
		"AI connection: 模型连接成功",
		`"trend": "sideways"`,
		`"stock_name": "平安银行"`,
		`"formatted_symbol": "000001"`,
		`"return_value": 0.05`,
		"Analysis completed!",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\n%s", want, output)
		}
	}

	// The analysis only saw the last year of the 400 cached bars.
	if strings.Contains(output, strings.Repeat("|", 367)) || !strings.Contains(output, strings.Repeat("|", 364)) {
		t.Error("analysis did not receive exactly the last year of bars")
	}

	n, err := promtestutil.GatherAndCount(reg, "stocktrader_operations_total")
	if err != nil {
		t.Fatal(err)
	}
	// fetch, test_connection and analyze, all successful
	if n != 3 {
		t.Errorf("operations_total series = %d, want 3", n)
	}

	// The history survives in the SQLite file.
	store, err := cache.NewSQLiteStore(cfg.CachePath)
	if err != nil {
		t.Fatal(err)
	}
	reopened := cache.New(store)
	defer reopened.Close()
	entry, ok := reopened.Get("000001")
	if !ok || len(entry.Series) != 400 {
		t.Errorf("reopened cache = %v, %v; want 400 bars", entry, ok)
	}
}

func TestIntegration_SkipsAnalysisWithoutAISettings(t *testing.T) {
	server := newBackend(t, recentBars(10))
	cfg := testConfig(t, server.URL)
	cfg.AI = config.AIConfig{}

	var out bytes.Buffer
	if err := run(context.Background(), cfg, prometheus.NewRegistry(), &out); err != nil {
		t.Fatalf("run() returned unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "skipping analysis") {
		t.Errorf("output = %s", out.String())
	}
}

func TestIntegration_UnknownSymbol(t *testing.T) {
	server := newBackend(t, nil)
	cfg := testConfig(t, server.URL)
	cfg.Symbol = "999999"

	var out bytes.Buffer
	err := run(context.Background(), cfg, prometheus.NewRegistry(), &out)
	if fetcher.KindOf(err) != fetcher.KindData {
		t.Fatalf("run() error = %v, want a data error", err)
	}
	if !strings.Contains(err.Error(), "history fetch failed: 404 - 未找到股票代码 999999") {
		t.Errorf("error = %q", err.Error())
	}
	if !strings.Contains(out.String(), "request history: failed") {
		t.Errorf("progress output missing the failed step:\n%s", out.String())
	}
}

func TestIntegration_NoSymbol(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Symbol = " "

	if err := run(context.Background(), cfg, prometheus.NewRegistry(), &bytes.Buffer{}); err == nil {
		t.Fatal("run() expected error without a symbol, got nil")
	}
}

// TestIntegration_ServerUnreachable checks that a dead backend is reported as a network failure on the request step
func TestIntegration_ServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := stockapi.NewClient(url+"/api/v1", fetcher.ClientOptions{Timeout: time.Second})
	defer client.Close()
	coord := coordinator.New(client, cache.New(cache.NewMemoryStore()), coordinator.WithGrace(0))

	var failed progress.Snapshot
	coord.SubscribeProgress(func(s progress.Snapshot) {
		if s.FailedStep() >= 0 && s.Visible {
			failed = s
		}
	})

	_, err := coord.FetchAndCache(context.Background(), "000001", "cn")
	if fetcher.KindOf(err) != fetcher.KindNetworkTimeout {
		t.Fatalf("error = %v, want a network failure", err)
	}
	if failed.FailedStep() != 1 {
		t.Errorf("failed step = %d, want 1", failed.FailedStep())
	}
}

// TestIntegration_AnalysisRejectedKey checks that a server-side key complaint is attributed to the settings step
func TestIntegration_AnalysisRejectedKey(t *testing.T) {
	server := newBackend(t, recentBars(30))

	client := stockapi.NewClient(server.URL+"/api/v1", fetcher.ClientOptions{})
	defer client.Close()
	coord := coordinator.New(client, cache.New(cache.NewMemoryStore()), coordinator.WithGrace(0))

	if _, err := coord.FetchAndCache(context.Background(), "000001", "cn"); err != nil {
		t.Fatal(err)
	}

	ai := config.AIConfig{APIKey: "sk-wrong", BaseURL: "https://llm.example.test/v1", ModelName: "m"}
	_, err := coord.Analyze(context.Background(), "000001", "cn", model.DefaultStrategy(), ai)

	var ce *fetcher.ClassifiedError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *fetcher.ClassifiedError", err)
	}
	if ce.Kind != fetcher.KindConfiguration || ce.Step != 0 {
		t.Errorf("classified as %s at step %d, want ConfigurationError at step 0", ce.Kind, ce.Step)
	}
	if ce.Message != "analysis failed: API密钥无效" {
		t.Errorf("Message = %q", ce.Message)
	}
}
