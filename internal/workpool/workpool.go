// Package workpool spreads independent per-index work over a fixed number of
// goroutines.
package workpool

import (
	"context"
	"sync"
)

// Run calls fn once for every index in [0, n). The range is split into
// contiguous chunks, one per worker, the same way the interpolation stage
// shards points across CPUs. fn must only write state owned by its index.
//
// Cancellation is checked between indices; when ctx is done Run waits for
// the running workers to stop and returns ctx.Err().
func Run(ctx context.Context, n, workers int, fn func(i int)) error {
	if n == 0 {
		return ctx.Err()
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	// Sequential fast path
	if workers == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i)
		}
		return nil
	}

	perWorker := (n + workers - 1) / workers
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		startIdx := w * perWorker
		endIdx := startIdx + perWorker
		if endIdx > n {
			endIdx = n
		}
		if startIdx >= n {
			break
		}

		wg.Add(1)
		go func(startIdx, endIdx int) {
			defer wg.Done()
			for i := startIdx; i < endIdx; i++ {
				if ctx.Err() != nil {
					return
				}
				fn(i)
			}
		}(startIdx, endIdx)
	}

	wg.Wait()
	return ctx.Err()
}
