package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"evalforge/internal/workers/jobworker"
	"evalforge/pkg/ulid"
)

// ItemResult is one slot of a parallel run: either a value or that item's
// error. Per-item errors never abort the batch.
type ItemResult[R any] struct {
	Value R
	Err   error
}

// ParallelOptions tunes RunParallel.
type ParallelOptions struct {
	// Concurrency bounds in-flight workers; <=1 degrades to a plain
	// sequential loop.
	Concurrency int
	JobID       ulid.ULID
	Control     jobworker.Control
	// OnProgress fires after each settled item.
	OnProgress func(ctx context.Context, current, total int, message string)
	// MessageFn formats the progress message; receives (ok, err, current, total).
	MessageFn func(ok, errCount, current, total int) string
	// InterItemDelay staggers starts: a serialized sleep before each item
	// after the first, even under parallel dispatch, so external rate
	// limits are respected.
	InterItemDelay time.Duration
}

func defaultMessage(ok, errCount, current, total int) string {
	return fmt.Sprintf("Item %d/%d (%d ok, %d errors)", current, total, ok, errCount)
}

// RunParallel executes worker(index, item) for every item with bounded
// parallelism, preserving input order in the returned slice. Cancellation is
// cooperative: it is checked before every stagger sleep, slot acquisition,
// and worker invocation, and ErrJobCancelled propagates after every
// outstanding task has settled.
func RunParallel[T, R any](
	ctx context.Context,
	items []T,
	worker func(ctx context.Context, index int, item T) (R, error),
	opts ParallelOptions,
) ([]ItemResult[R], error) {
	total := len(items)
	if total == 0 {
		return nil, nil
	}

	results := make([]ItemResult[R], total)

	msgFn := opts.MessageFn
	if msgFn == nil {
		msgFn = defaultMessage
	}

	var progressMu sync.Mutex
	var completed, okCount, errCount int

	checkCancelled := func(ctx context.Context) error {
		if opts.Control == nil {
			return nil
		}
		return opts.Control.CheckCancelled(ctx, opts.JobID)
	}

	var delayMu sync.Mutex
	staggerDelay := func(ctx context.Context, index int) error {
		if opts.InterItemDelay <= 0 || index == 0 {
			return nil
		}
		delayMu.Lock()
		defer delayMu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.InterItemDelay):
			return nil
		}
	}

	settle := func(ctx context.Context, index int, value R, err error) {
		progressMu.Lock()
		if err != nil {
			results[index].Err = err
			errCount++
		} else {
			results[index].Value = value
			okCount++
		}
		completed++
		current, ok, errs := completed, okCount, errCount
		progressMu.Unlock()

		if opts.OnProgress != nil {
			opts.OnProgress(ctx, current, total, msgFn(ok, errs, current, total))
		}
	}

	// runOne checks cancellation then invokes the worker; it returns only
	// cancellation-class errors — item failures are recorded in results.
	runOne := func(ctx context.Context, index int) error {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		value, err := worker(ctx, index, items[index])
		if err != nil && errors.Is(err, jobworker.ErrJobCancelled) {
			return err
		}
		settle(ctx, index, value, err)
		return nil
	}

	if opts.Concurrency <= 1 {
		for i := range items {
			if err := checkCancelled(ctx); err != nil {
				return results, err
			}
			if err := staggerDelay(ctx, i); err != nil {
				return results, cancellationError(err)
			}
			if err := runOne(ctx, i); err != nil {
				return results, err
			}
		}
		return results, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(int64(opts.Concurrency))
	var wg sync.WaitGroup
	var cancelOnce sync.Once
	var cancelErr error

	abort := func(err error) {
		cancelOnce.Do(func() {
			cancelErr = err
			cancel()
		})
	}

	for i := range items {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			if err := checkCancelled(runCtx); err != nil {
				abort(err)
				return
			}
			if err := staggerDelay(runCtx, index); err != nil {
				return
			}
			if err := sem.Acquire(runCtx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			if err := runOne(runCtx, index); err != nil {
				abort(err)
			}
		}(i)
	}

	// Wait for every outstanding task, including cancelled ones, to settle.
	wg.Wait()

	if cancelErr != nil {
		return results, cancelErr
	}
	return results, nil
}

// cancellationError maps context cancellation observed during the stagger
// sleep onto the cooperative sentinel when a cancel caused it.
func cancellationError(err error) error {
	if errors.Is(err, context.Canceled) {
		return jobworker.ErrJobCancelled
	}
	return err
}
