// Package pipeline drives one meeting's merged transcript through the
// chunker, extractor, grouping, and aggregator stages, fanning work out
// across bounded worker pools and fanning results back in. The dispatcher
// is grounded on pkg/agent/orchestrator/runner.go's SubAgentRunner:
// reserve-a-slot-before-registering concurrency limiting through a
// semaphore channel sized to the worker cap, results written by index into
// a pre-sized slice, and a WaitAll-style drain —
// generalized from "dispatch named sub-agents" to "run a pure worker
// function over a batch of homogeneous items".
package pipeline

import (
	"context"
	"sync"
)

// runBounded runs fn(items[i]) for every item, with at most maxWorkers
// goroutines in flight at once, and returns results in the same order as
// items. A nil item result (fn returning a zero value and non-nil error)
// is still placed at its index so callers can correlate errors back to
// their source item.
func runBounded[T any, R any](ctx context.Context, items []T, maxWorkers int, fn func(context.Context, T) (R, error)) ([]R, []error) {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	results := make([]R, len(items))
	errs := make([]error, len(items))

	sem := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup

	for i, item := range items {
		i, item := i, item
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			r, err := fn(ctx, item)
			results[i] = r
			errs[i] = err
		}()
	}
	wg.Wait()
	return results, errs
}
