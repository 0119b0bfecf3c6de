package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	dErrors "certify/pkg/domain-errors"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes   int32
	Errors      int32
	Timeouts    int32
	Unavailable int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors + r.Timeouts + r.Unavailable
}

// RunConcurrent executes fn in parallel goroutines and collects results,
// sorting failures by their domain error code.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, errs, timeouts, unavailable atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeTimeout):
				timeouts.Add(1)
			case dErrors.HasCode(err, dErrors.CodeUnavailable):
				unavailable.Add(1)
			default:
				errs.Add(1)
			}
		}(i)
	}

	wg.Wait()

	return &ConcurrentResult{
		Successes:   successes.Load(),
		Errors:      errs.Load(),
		Timeouts:    timeouts.Load(),
		Unavailable: unavailable.Load(),
	}
}

// RunConcurrentCtx executes fn in parallel goroutines with context support.
func RunConcurrentCtx(ctx context.Context, goroutines int, fn func(ctx context.Context, idx int) error) *ConcurrentResult {
	return RunConcurrent(goroutines, func(idx int) error {
		return fn(ctx, idx)
	})
}
