package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindowCounter is the distributed counterpart to WindowLimiter: the
// same per-minute request/token ceilings, enforced across every poller
// instance sharing one Redis backend instead of one process's memory
// (SPEC_FULL.md §4.12 — built for the single-active-meeting model to scale
// to multiple poller replicas without each exceeding the provider's limit
// independently).
type RedisWindowCounter struct {
	client   *redis.Client
	rpmLimit int
	tpmLimit int
	keyReq   string
	keyTok   string
}

// NewRedisWindowCounter returns a RedisWindowCounter sharing counters under
// keyPrefix (so multiple providers/pipelines can use distinct windows on
// one Redis instance).
func NewRedisWindowCounter(client *redis.Client, keyPrefix string, rpmLimit, tpmLimit int) *RedisWindowCounter {
	return &RedisWindowCounter{
		client:   client,
		rpmLimit: rpmLimit,
		tpmLimit: tpmLimit,
		keyReq:   keyPrefix + ":req",
		keyTok:   keyPrefix + ":tok",
	}
}

// Acquire increments the shared per-minute counters and blocks (polling)
// until both are within limit, using Redis INCR+EXPIRE so the window
// resets automatically once no request has renewed it within 60s.
func (r *RedisWindowCounter) Acquire(ctx context.Context, estTokens int) error {
	if estTokens < 0 {
		estTokens = 0
	}
	for {
		reqCount, tokCount, err := r.incrementWindow(ctx, estTokens)
		if err != nil {
			return fmt.Errorf("llm: redis rate limiter: %w", err)
		}
		if reqCount <= int64(r.rpmLimit) && tokCount <= int64(r.tpmLimit) {
			return nil
		}

		// Over limit: undo this attempt's contribution and back off before
		// retrying, since the window already counted it.
		r.client.Decr(ctx, r.keyReq)
		r.client.DecrBy(ctx, r.keyTok, int64(estTokens))

		t := time.NewTimer(250 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (r *RedisWindowCounter) incrementWindow(ctx context.Context, estTokens int) (reqCount, tokCount int64, err error) {
	pipe := r.client.TxPipeline()
	reqIncr := pipe.Incr(ctx, r.keyReq)
	pipe.Expire(ctx, r.keyReq, 60*time.Second)
	tokIncr := pipe.IncrBy(ctx, r.keyTok, int64(estTokens))
	pipe.Expire(ctx, r.keyTok, 60*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return reqIncr.Val(), tokIncr.Val(), nil
}
