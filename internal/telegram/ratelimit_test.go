package telegram

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(10.0, 1)

	ctx := context.Background()
	start := time.Now()
	err := rl.Wait(ctx)
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	// First request should be immediate (within burst)
	if elapsed > 50*time.Millisecond {
		t.Errorf("expected immediate response, got %v", elapsed)
	}
}

func TestRateLimiter_Wait_ContextCanceled(t *testing.T) {
	rl := NewRateLimiter(0.1, 1) // 1 request per 10 seconds

	// Use up the burst
	_ = rl.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	if err == nil {
		t.Error("expected error due to context timeout, got nil")
	}
}

func TestRateLimiter_SetFloodWait(t *testing.T) {
	rl := NewRateLimiter(10.0, 1)

	rl.SetFloodWait(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := rl.Wait(ctx)
	elapsed := time.Since(start)

	// Flood wait outlives the context, so Wait should give up at the deadline.
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded due to flood wait, got %v", err)
	}

	if elapsed < 150*time.Millisecond || elapsed > 250*time.Millisecond {
		t.Errorf("expected ~200ms wait (context timeout), got %v", elapsed)
	}
}

func TestRateLimiter_RateLimiting(t *testing.T) {
	rl := NewRateLimiter(10.0, 1) // 100ms between requests

	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		err := rl.Wait(ctx)
		if err != nil {
			t.Errorf("request %d: unexpected error: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	// First one is immediate (burst), then two 100ms waits.
	if elapsed < 150*time.Millisecond {
		t.Errorf("expected at least 150ms for 3 requests at 10 rps, got %v", elapsed)
	}
}

func TestDefaultRateLimiter(t *testing.T) {
	rl := DefaultRateLimiter()

	if rl == nil {
		t.Fatal("DefaultRateLimiter returned nil")
	}

	err := rl.Wait(context.Background())
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRateLimiter_FloodWaitExpires(t *testing.T) {
	rl := NewRateLimiter(10.0, 1)

	rl.floodWaitUntil = time.Now().Add(-100 * time.Millisecond)

	ctx := context.Background()
	start := time.Now()
	err := rl.Wait(ctx)
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if elapsed > 50*time.Millisecond {
		t.Errorf("expected immediate response (flood wait expired), got %v", elapsed)
	}
}
