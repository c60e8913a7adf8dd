package testutil

import (
	"context"
	"sync"

	"stocktrader/internal/config"
	"stocktrader/internal/model"
	"stocktrader/internal/stockapi"
)

// MockAPI is a mock implementation of the backend API for testing.
// Unset funcs return empty successful responses.
type MockAPI struct {
	HistoryFunc        func(ctx context.Context, symbol, endDate string) (*model.HistoryResponse, error)
	BasicFunc          func(ctx context.Context, symbol string) (*model.StockBasic, error)
	AnalyzeFunc        func(ctx context.Context, req stockapi.AnalyzeRequest) ([]byte, error)
	TestConnectionFunc func(ctx context.Context, ai config.AIConfig) (*model.ConnectionResult, error)

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockAPI) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

// Calls returns how many times the named method was called
func (m *MockAPI) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// History implements the API interface
func (m *MockAPI) History(ctx context.Context, symbol, endDate string) (*model.HistoryResponse, error) {
	m.record("History")
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, symbol, endDate)
	}
	return &model.HistoryResponse{Symbol: symbol}, nil
}

// Basic implements the API interface
func (m *MockAPI) Basic(ctx context.Context, symbol string) (*model.StockBasic, error) {
	m.record("Basic")
	if m.BasicFunc != nil {
		return m.BasicFunc(ctx, symbol)
	}
	return &model.StockBasic{Symbol: symbol}, nil
}

// Analyze implements the API interface
func (m *MockAPI) Analyze(ctx context.Context, req stockapi.AnalyzeRequest) ([]byte, error) {
	m.record("Analyze")
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}
	return []byte(`{}`), nil
}

// TestConnection implements the API interface
func (m *MockAPI) TestConnection(ctx context.Context, ai config.AIConfig) (*model.ConnectionResult, error) {
	m.record("TestConnection")
	if m.TestConnectionFunc != nil {
		return m.TestConnectionFunc(ctx, ai)
	}
	return &model.ConnectionResult{Success: true}, nil
}

// NewHistoryAPI creates a mock whose history endpoint returns bars or err
func NewHistoryAPI(bars []model.Bar, err error) *MockAPI {
	return &MockAPI{
		HistoryFunc: func(ctx context.Context, symbol, endDate string) (*model.HistoryResponse, error) {
			if err != nil {
				return nil, err
			}
			return &model.HistoryResponse{Symbol: symbol, EndDate: endDate, Data: bars}, nil
		},
	}
}

// ValidAIConfig returns AI settings that pass validation
func ValidAIConfig() config.AIConfig {
	return config.AIConfig{
		APIKey:      "sk-test",
		BaseURL:     "https://llm.example.test/v1",
		ModelName:   "test-model",
		Temperature: 0.1,
	}
}

// DailyBars returns n consecutive daily bars ending at end, oldest first
func DailyBars(end string, n int) []model.Bar {
	t := model.Bar{Date: end}.Time()
	if t.IsZero() {
		panic("testutil: bad date " + end)
	}
	bars := make([]model.Bar, n)
	for i := 0; i < n; i++ {
		day := t.AddDate(0, 0, i-n+1)
		bars[i] = model.Bar{
			Date:   day.Format(model.DateLayout),
			Open:   10,
			High:   11,
			Low:    9,
			Close:  10 + float64(i%5)/10,
			Volume: int64(1000 + i),
		}
	}
	return bars
}
