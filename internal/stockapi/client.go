// Package stockapi is the client for the analysis backend: price history,
// instrument metadata, AI analysis and the AI settings probe.
package stockapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"resty.dev/v3"

	"stocktrader/internal/config"
	"stocktrader/internal/fetcher"
	"stocktrader/internal/model"
	"stocktrader/internal/ratelimit"
)

const (
	historyPath        = "/stock/history"
	basicPath          = "/stock/basic"
	analyzePath        = "/ai/analyze"
	testConnectionPath = "/ai/test-connection"
)

// AnalyzeRequest is the body of the analysis call
type AnalyzeRequest struct {
	Symbol      string          `json:"symbol"`
	Strategy    model.Strategy  `json:"strategy"`
	HistoryData []model.Bar     `json:"history_data"`
	AIConfig    config.AIConfig `json:"ai_config"`
}

// Client talks to the backend. Every failure it returns is a
// *fetcher.FetchError.
type Client struct {
	client  *resty.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithLimiter replaces the process-wide rate limiter
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the backend rooted at baseURL
func NewClient(baseURL string, copts fetcher.ClientOptions, opts ...Option) *Client {
	c := &Client{
		client:  fetcher.NewHTTPClient(baseURL, copts),
		limiter: ratelimit.GetLimiter(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases idle connections
func (c *Client) Close() error {
	return c.client.Close()
}

// History retrieves the full daily history of symbol up to endDate
// (YYYY-MM-DD). No start bound is sent, so the backend returns all it has.
func (c *Client) History(ctx context.Context, symbol, endDate string) (*model.HistoryResponse, error) {
	if err := c.limiter.Wait(ctx, ratelimit.APIHistory); err != nil {
		return nil, fetcher.ClassifyTransportError(err)
	}

	var result model.HistoryResponse
	var errBody fetcher.ErrorBody
	resp, err := c.request(ctx).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"end_date": endDate,
		}).
		SetResult(&result).
		SetError(&errBody).
		Get(historyPath)
	if err := c.check(resp, err, &errBody, historyPath); err != nil {
		return nil, c.describe(err, fmt.Sprintf("history for %s is not valid JSON", symbol))
	}
	return &result, nil
}

// Basic retrieves the instrument metadata of symbol
func (c *Client) Basic(ctx context.Context, symbol string) (*model.StockBasic, error) {
	if err := c.limiter.Wait(ctx, ratelimit.APIBasic); err != nil {
		return nil, fetcher.ClassifyTransportError(err)
	}

	var result model.StockBasic
	var errBody fetcher.ErrorBody
	resp, err := c.request(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
		}).
		SetResult(&result).
		SetError(&errBody).
		Get(basicPath)
	if err := c.check(resp, err, &errBody, basicPath); err != nil {
		return nil, c.describe(err, fmt.Sprintf("metadata for %s is not valid JSON", symbol))
	}
	return &result, nil
}

// Analyze posts the analysis request and returns the raw response body.
// Interpreting the body is left to the caller.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) ([]byte, error) {
	if err := c.limiter.Wait(ctx, ratelimit.APIAnalysis); err != nil {
		return nil, fetcher.ClassifyTransportError(err)
	}

	var result json.RawMessage
	var errBody fetcher.ErrorBody
	resp, err := c.request(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&errBody).
		Post(analyzePath)
	if err := c.check(resp, err, &errBody, analyzePath); err != nil {
		return nil, c.describe(err, "analysis response is not valid JSON")
	}
	return result, nil
}

// TestConnection asks the backend to probe the AI provider with ai
func (c *Client) TestConnection(ctx context.Context, ai config.AIConfig) (*model.ConnectionResult, error) {
	if err := c.limiter.Wait(ctx, ratelimit.APIConnection); err != nil {
		return nil, fetcher.ClassifyTransportError(err)
	}

	var result model.ConnectionResult
	var errBody fetcher.ErrorBody
	resp, err := c.request(ctx).
		SetBody(ai).
		SetResult(&result).
		SetError(&errBody).
		Post(testConnectionPath)
	if err := c.check(resp, err, &errBody, testConnectionPath); err != nil {
		return nil, c.describe(err, "connection test response is not valid JSON")
	}
	return &result, nil
}

// request starts a call whose body is always decoded as JSON; the backend
// does not reliably label its responses.
func (c *Client) request(ctx context.Context) *resty.Request {
	return c.client.R().
		SetContext(ctx).
		SetForceResponseContentType("application/json")
}

// check maps a transport error, an undecodable body or a non-success status
// onto a FetchError
func (c *Client) check(resp *resty.Response, err error, errBody *fetcher.ErrorBody, path string) *fetcher.FetchError {
	status := 0
	if resp != nil && resp.RawResponse != nil {
		status = resp.StatusCode()
	}

	if err != nil {
		fe := fetcher.ClassifyResponseError(status, err)
		c.logger.Debug("backend request failed", "path", path, "status_code", status, "type", fe.Type, "error", err)
		return fe
	}
	if !resp.IsSuccess() {
		fe := fetcher.ClassifyErrorBody(status, errBody)
		c.logger.Debug("backend returned an error",
			"path", path,
			"status_code", status,
			"detail", fe.Detail)
		return fe
	}
	return nil
}

// describe replaces the generic message of a decode failure with msg
func (c *Client) describe(fe *fetcher.FetchError, msg string) *fetcher.FetchError {
	if fe.Type == fetcher.ErrorTypeValidation {
		fe.Message = msg
	}
	return fe
}
