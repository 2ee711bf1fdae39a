package evaluation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalforge/internal/core/domain/job"
	"evalforge/internal/workers/jobworker"
	"evalforge/pkg/ulid"
)

// fakeControl flips to cancelled after a set number of checks.
type fakeControl struct {
	mu          sync.Mutex
	checks      int
	cancelAfter int // 0 = never cancel
	progress    []string
}

func (f *fakeControl) IsCancelled(ctx context.Context, jobID ulid.ULID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.cancelAfter > 0 && f.checks > f.cancelAfter, nil
}

func (f *fakeControl) CheckCancelled(ctx context.Context, jobID ulid.ULID) error {
	cancelled, _ := f.IsCancelled(ctx, jobID)
	if cancelled {
		return jobworker.ErrJobCancelled
	}
	return nil
}

func (f *fakeControl) UpdateProgress(ctx context.Context, jobID ulid.ULID, p job.Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, p.Message)
	return nil
}

func TestRunParallelPreservesOrder(t *testing.T) {
	items := []int{10, 20, 30, 40, 50}
	results, err := RunParallel(context.Background(), items,
		func(ctx context.Context, index int, item int) (int, error) {
			// Later items finish first.
			time.Sleep(time.Duration(50-item) * time.Millisecond)
			return item * 2, nil
		},
		ParallelOptions{Concurrency: 5, Control: &fakeControl{}})

	require.NoError(t, err)
	require.Len(t, results, len(items))
	for i, item := range items {
		assert.NoError(t, results[i].Err)
		assert.Equal(t, item*2, results[i].Value)
	}
}

func TestRunParallelBoundsConcurrency(t *testing.T) {
	var inFlight, maxInFlight int64
	items := make([]int, 20)

	_, err := RunParallel(context.Background(), items,
		func(ctx context.Context, index int, item int) (struct{}, error) {
			current := atomic.AddInt64(&inFlight, 1)
			for {
				observed := atomic.LoadInt64(&maxInFlight)
				if current <= observed || atomic.CompareAndSwapInt64(&maxInFlight, observed, current) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return struct{}{}, nil
		},
		ParallelOptions{Concurrency: 3, Control: &fakeControl{}})

	require.NoError(t, err)
	assert.LessOrEqual(t, maxInFlight, int64(3))
}

func TestRunParallelItemErrorsDoNotAbort(t *testing.T) {
	items := []int{0, 1, 2, 3}
	results, err := RunParallel(context.Background(), items,
		func(ctx context.Context, index int, item int) (int, error) {
			if item%2 == 1 {
				return 0, fmt.Errorf("item %d failed", item)
			}
			return item, nil
		},
		ParallelOptions{Concurrency: 2, Control: &fakeControl{}})

	require.NoError(t, err)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Error(t, results[3].Err)
}

func TestRunParallelSequentialWhenConcurrencyOne(t *testing.T) {
	var order []int
	items := []int{0, 1, 2, 3, 4}
	_, err := RunParallel(context.Background(), items,
		func(ctx context.Context, index int, item int) (struct{}, error) {
			order = append(order, index)
			return struct{}{}, nil
		},
		ParallelOptions{Concurrency: 1, Control: &fakeControl{}})

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestRunParallelStaggerDelays(t *testing.T) {
	items := []int{0, 1, 2}
	start := time.Now()
	_, err := RunParallel(context.Background(), items,
		func(ctx context.Context, index int, item int) (struct{}, error) {
			return struct{}{}, nil
		},
		ParallelOptions{
			Concurrency:    3,
			Control:        &fakeControl{},
			InterItemDelay: 30 * time.Millisecond,
		})

	require.NoError(t, err)
	// Two delayed items behind one serialized lock: at least 2 * 30ms.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRunParallelCancellationPropagates(t *testing.T) {
	control := &fakeControl{cancelAfter: 4}
	items := make([]int, 10)

	var executed int
	_, err := RunParallel(context.Background(), items,
		func(ctx context.Context, index int, item int) (struct{}, error) {
			executed++
			return struct{}{}, nil
		},
		ParallelOptions{Concurrency: 1, Control: control})

	require.ErrorIs(t, err, jobworker.ErrJobCancelled)
	// Work settled before the cancel remains; nothing past it runs.
	assert.Greater(t, executed, 0)
	assert.Less(t, executed, len(items))
}

func TestRunParallelProgressMonotonic(t *testing.T) {
	var currents []int
	var mu sync.Mutex
	items := make([]int, 6)

	_, err := RunParallel(context.Background(), items,
		func(ctx context.Context, index int, item int) (struct{}, error) {
			return struct{}{}, nil
		},
		ParallelOptions{
			Concurrency: 1,
			Control:     &fakeControl{},
			OnProgress: func(ctx context.Context, current, total int, message string) {
				mu.Lock()
				currents = append(currents, current)
				mu.Unlock()
			},
		})

	require.NoError(t, err)
	require.Len(t, currents, 6)
	for i := 1; i < len(currents); i++ {
		assert.Greater(t, currents[i], currents[i-1])
	}
}

func TestDefaultProgressMessage(t *testing.T) {
	assert.Equal(t, "Item 3/10 (2 ok, 1 errors)", defaultMessage(2, 1, 3, 10))
}
