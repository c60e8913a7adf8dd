package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"resty.dev/v3"
)

const (
	// Default retry configuration. Retries are off unless a caller opts in;
	// a failed operation is retried by the user starting it again.
	defaultRetryCount       = 0
	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 10 * time.Second

	// DefaultTimeout bounds a single request
	DefaultTimeout = 60 * time.Second
)

// ClientOptions tunes the HTTP client built by NewHTTPClient
type ClientOptions struct {
	Timeout    time.Duration
	RetryCount int
}

// NewHTTPClient creates a new JSON HTTP client for baseURL
func NewHTTPClient(baseURL string, opts ClientOptions) *resty.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := opts.RetryCount
	if retries < 0 {
		retries = defaultRetryCount
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetRetryCount(retries).
		SetRetryWaitTime(defaultRetryWaitTime).
		SetRetryMaxWaitTime(defaultRetryMaxWaitTime).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook)

	return client
}

// retryCondition retries whatever the error taxonomy marks retryable. A
// canceled request is never retried.
func retryCondition(r *resty.Response, err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	status := 0
	if r != nil && r.RawResponse != nil {
		status = r.StatusCode()
	}
	if err != nil {
		return ClassifyResponseError(status, err).Retryable
	}
	if status >= 200 && status < 400 {
		return false
	}
	return ClassifyHTTPError(status).Retryable
}

// retryHook logs retry attempts for observability
func retryHook(r *resty.Response, err error) {
	if err != nil {
		slog.Debug("retrying request due to error",
			"url", r.Request.URL,
			"attempt", r.Request.Attempt,
			"error", err.Error())
		return
	}

	slog.Debug("retrying request due to status code",
		"url", r.Request.URL,
		"attempt", r.Request.Attempt,
		"status_code", r.StatusCode())
}
