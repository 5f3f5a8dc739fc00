package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces both requests-per-minute and tokens-per-minute
// ceilings before an LLM call is allowed to proceed, blocking the caller
// until the current window has room. Grounded on
// original_source/agents/chunk_extractor_node.py's `_WindowRateLimiter`.
type RateLimiter interface {
	Acquire(ctx context.Context, estTokens int) error
}

// WindowLimiter is the default in-process sliding-window limiter: a single
// shared window reset every 60 seconds, same as the original's
// `_WindowRateLimiter`. cmd/poller uses it when RateLimiterConfig.UseRedis
// is false; cmd/mergetranscript always uses it.
type WindowLimiter struct {
	rpmLimit int
	tpmLimit int

	mu          sync.Mutex
	windowStart time.Time
	reqCount    int
	tokCount    int

	now func() time.Time
}

// NewWindowLimiter returns a WindowLimiter enforcing rpmLimit/tpmLimit.
func NewWindowLimiter(rpmLimit, tpmLimit int) *WindowLimiter {
	return &WindowLimiter{
		rpmLimit:    rpmLimit,
		tpmLimit:    tpmLimit,
		windowStart: time.Now(),
		now:         time.Now,
	}
}

func (w *WindowLimiter) resetIfNeeded() {
	now := w.now()
	if now.Sub(w.windowStart) >= 60*time.Second {
		w.windowStart = now
		w.reqCount = 0
		w.tokCount = 0
	}
}

// Acquire blocks until both counters have room for one more request of
// estTokens, polling the window on a short interval rather than sleeping
// for the whole remainder (so ctx cancellation is observed promptly).
func (w *WindowLimiter) Acquire(ctx context.Context, estTokens int) error {
	if estTokens < 0 {
		estTokens = 0
	}
	for {
		var wait time.Duration
		w.mu.Lock()
		w.resetIfNeeded()
		nextReq := w.reqCount + 1
		nextTok := w.tokCount + estTokens
		if nextReq <= w.rpmLimit && nextTok <= w.tpmLimit {
			w.reqCount = nextReq
			w.tokCount = nextTok
			w.mu.Unlock()
			return nil
		}
		remaining := 60*time.Second - w.now().Sub(w.windowStart)
		if remaining < 0 {
			remaining = 0
		}
		wait = remaining
		if wait > 2*time.Second {
			wait = 2 * time.Second
		}
		if wait <= 0 {
			wait = 250 * time.Millisecond
		}
		w.mu.Unlock()

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
