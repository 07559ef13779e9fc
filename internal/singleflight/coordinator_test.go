package singleflight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kitchen-mate/clipper/internal/ident"
	"github.com/kitchen-mate/clipper/internal/model"
)

func TestKey_MethodScoped(t *testing.T) {
	k := ident.CanonicalKey("https://example.com/a")
	assert.NotEqual(t, Key(k, model.MethodDeterministic), Key(k, model.MethodAI))
	assert.Equal(t, Key(k, model.MethodAI), Key(k, model.MethodAI))
}

func TestRunExclusive_ConcurrentCallersShareOneCall(t *testing.T) {
	c := New()
	var calls atomic.Int32

	work := func(ctx context.Context) (*model.ParseResult, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return &model.ParseResult{ID: "r1", Success: true}, nil
	}

	const callers = 8
	results := make([]*model.ParseResult, callers)
	var g errgroup.Group
	for i := range callers {
		g.Go(func() error {
			r, _, err := c.RunExclusive(context.Background(), "k", work)
			results[i] = r
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "r1", r.ID)
	}
}

func TestRunExclusive_DifferentKeysRunIndependently(t *testing.T) {
	c := New()
	var calls atomic.Int32

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	work := func(ctx context.Context) (*model.ParseResult, error) {
		calls.Add(1)
		started <- struct{}{}
		<-release
		return &model.ParseResult{Success: true}, nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a|deterministic", "b|deterministic"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = c.RunExclusive(context.Background(), key, work)
		}()
	}

	// Both keys must be in flight at the same time.
	for range 2 {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("second key blocked behind first")
		}
	}
	close(release)
	wg.Wait()
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunExclusive_SlotReleasedAfterCompletion(t *testing.T) {
	c := New()
	var calls atomic.Int32

	work := func(ctx context.Context) (*model.ParseResult, error) {
		calls.Add(1)
		return &model.ParseResult{Success: true}, nil
	}

	_, _, err := c.RunExclusive(context.Background(), "k", work)
	require.NoError(t, err)
	_, _, err = c.RunExclusive(context.Background(), "k", work)
	require.NoError(t, err)

	// No memoization: a fresh call after completion runs again.
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunExclusive_CallerCancellationDoesNotKillWork(t *testing.T) {
	c := New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawCancel atomic.Bool
	work := func(ctx context.Context) (*model.ParseResult, error) {
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		return &model.ParseResult{Success: true}, nil
	}

	r, _, err := c.RunExclusive(ctx, "k", work)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.False(t, sawCancel.Load(), "work context must be detached from caller cancellation")
}

func TestRunExclusive_ErrorPropagatesToAllWaiters(t *testing.T) {
	c := New()

	work := func(ctx context.Context) (*model.ParseResult, error) {
		time.Sleep(20 * time.Millisecond)
		return nil, assert.AnError
	}

	var g errgroup.Group
	errs := make([]error, 4)
	for i := range 4 {
		g.Go(func() error {
			_, _, errs[i] = c.RunExclusive(context.Background(), "k", work)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, err := range errs {
		assert.ErrorIs(t, err, assert.AnError)
	}
}
