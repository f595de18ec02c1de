package steam

import (
	"context"
	"sync"
)

// DefaultMaxWorkers bounds details-fetch concurrency when the configuration
// does not say otherwise.
const DefaultMaxWorkers = 32

// FetchDetailsBatch fans the given identifiers out over a bounded worker
// pool and streams results back in completion order. The returned channel is
// closed once every identifier has produced exactly one result or the
// context is cancelled. Cancellation stops dispatching new work; results
// already in flight still arrive.
func (c *Client) FetchDetailsBatch(ctx context.Context, appIDs []int64, workers int) <-chan FetchResult {
	if workers <= 0 {
		workers = DefaultMaxWorkers
	}
	if workers > len(appIDs) && len(appIDs) > 0 {
		workers = len(appIDs)
	}

	jobs := make(chan int64)
	results := make(chan FetchResult, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for appID := range jobs {
				select {
				case results <- c.FetchAppDetails(ctx, appID):
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, appID := range appIDs {
			select {
			case jobs <- appID:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}
