package ratelimit

import (
	"context"
	"os"
	"sync"

	"golang.org/x/time/rate"
)

// API represents the remote endpoints we pace independently
type API string

const (
	// APIHistory is the price history endpoint
	APIHistory API = "history"
	// APIBasic is the instrument metadata endpoint
	APIBasic API = "basic"
	// APIAnalysis is the AI analysis endpoint
	APIAnalysis API = "analysis"
	// APIConnection is the AI settings connection probe
	APIConnection API = "connection"
)

// Limiter manages rate limits for different APIs
type Limiter struct {
	limiters map[API]*rate.Limiter
	mu       sync.RWMutex
}

var (
	instance *Limiter
	once     sync.Once
)

// GetLimiter returns the singleton rate limiter instance
func GetLimiter() *Limiter {
	once.Do(func() {
		instance = &Limiter{
			limiters: make(map[API]*rate.Limiter),
		}
		instance.initLimiters()
	})
	return instance
}

// NewUnlimited returns a limiter that never blocks
func NewUnlimited() *Limiter {
	l := &Limiter{limiters: make(map[API]*rate.Limiter)}
	l.setAll(rate.Inf)
	return l
}

func (l *Limiter) initLimiters() {
	// In test mode, use unlimited rate limits to avoid slowing down tests
	if os.Getenv("GO_TESTING") == "1" || isTestMode() {
		l.setAll(rate.Inf)
		return
	}

	// The backend fronts a market data vendor and an LLM provider; both are
	// slow and metered, so keep bursts small.
	l.limiters[APIHistory] = rate.NewLimiter(rate.Limit(2), 2)
	l.limiters[APIBasic] = rate.NewLimiter(rate.Limit(2), 2)
	l.limiters[APIAnalysis] = rate.NewLimiter(rate.Limit(0.5), 1)
	l.limiters[APIConnection] = rate.NewLimiter(rate.Limit(1), 1)
}

func (l *Limiter) setAll(r rate.Limit) {
	for _, api := range []API{APIHistory, APIBasic, APIAnalysis, APIConnection} {
		l.limiters[api] = rate.NewLimiter(r, 1)
	}
}

// Set replaces the limit for api
func (l *Limiter) Set(api API, r rate.Limit, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[api] = rate.NewLimiter(r, burst)
}

// Override applies the positive rates in rates, in events per second with a
// burst of one. Other entries keep their current limit.
func (l *Limiter) Override(rates map[API]float64) {
	for api, r := range rates {
		if r > 0 {
			l.Set(api, rate.Limit(r), 1)
		}
	}
}

// isTestMode checks if we're running in test mode
func isTestMode() bool {
	for _, arg := range os.Args {
		if len(arg) > 6 && arg[:6] == "-test." {
			return true
		}
	}
	return false
}

// Wait blocks until the rate limiter permits an event for the given API
// It returns an error if the context is canceled before the event can proceed
func (l *Limiter) Wait(ctx context.Context, api API) error {
	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		return nil
	}

	return limiter.Wait(ctx)
}
