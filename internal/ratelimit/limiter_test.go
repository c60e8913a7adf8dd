package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestGetLimiter_UnlimitedInTests(t *testing.T) {
	l := GetLimiter()
	if l != GetLimiter() {
		t.Fatal("GetLimiter() returned different instances")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for _, api := range []API{APIHistory, APIBasic, APIAnalysis, APIConnection} {
		for i := 0; i < 10; i++ {
			if err := l.Wait(ctx, api); err != nil {
				t.Fatalf("Wait(%s) = %v under test mode", api, err)
			}
		}
	}
}

func TestLimiter_UnknownAPI(t *testing.T) {
	l := NewUnlimited()
	if err := l.Wait(context.Background(), "nope"); err != nil {
		t.Errorf("Wait() on unknown API returned %v", err)
	}
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	l := NewUnlimited()
	l.Set(APIAnalysis, rate.Every(time.Hour), 1)

	if err := l.Wait(context.Background(), APIAnalysis); err != nil {
		t.Fatalf("first Wait() = %v, want nil", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, APIAnalysis)
	if err == nil {
		t.Fatal("Wait() expected error once the burst is spent")
	}
	if errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want a deadline error", err)
	}
}

func TestLimiter_Override(t *testing.T) {
	l := NewUnlimited()
	l.Override(map[API]float64{
		APIAnalysis: 1.0 / 3600,
		APIHistory:  0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, APIAnalysis); err != nil {
		t.Fatalf("first Wait(analysis) = %v, want nil", err)
	}
	if err := l.Wait(ctx, APIAnalysis); err == nil {
		t.Error("second Wait(analysis) expected error under the overridden rate")
	}

	// zero keeps the unlimited history limit
	for i := 0; i < 5; i++ {
		if err := l.Wait(context.Background(), APIHistory); err != nil {
			t.Fatalf("Wait(history) = %v, want nil", err)
		}
	}
}
