package precompute

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jithinsankar/fastapi-cached/internal/cache"
	"github.com/jithinsankar/fastapi-cached/internal/domain"
)

var testSpecs = []domain.ParameterSpec{
	{Name: "region", Values: []string{"A", "B"}},
	{Name: "id", Values: []string{"1", "2"}},
}

func countingHandler(calls *atomic.Int64) Handler {
	return func(_ context.Context, args domain.Assignment) ([]byte, error) {
		calls.Add(1)
		return json.Marshal(map[string]string{
			"region": args["region"],
			"id":     args["id"],
		})
	}
}

func TestRun_ComputesEveryCombination(t *testing.T) {
	ctx := context.Background()
	store := cache.NewFileStore(filepath.Join(t.TempDir(), "cache.json"))

	var calls atomic.Int64
	engine := New(Config{Handler: "report"})

	report, err := engine.Run(ctx, countingHandler(&calls), testSpecs, store)
	require.NoError(t, err)
	require.NoError(t, report.Err())

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 4, report.Computed)
	assert.Equal(t, 0, report.Skipped)
	assert.EqualValues(t, 4, calls.Load())
	assert.Equal(t, 4, store.Len())

	for _, key := range []string{
		"region=A&id=1", "region=A&id=2", "region=B&id=1", "region=B&id=2",
	} {
		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "missing key %s", key)
	}
}

func TestRun_SecondRunPerformsZeroInvocations(t *testing.T) {
	ctx := context.Background()
	store := cache.NewFileStore(filepath.Join(t.TempDir(), "cache.json"))

	var calls atomic.Int64
	engine := New(Config{Handler: "report"})

	_, err := engine.Run(ctx, countingHandler(&calls), testSpecs, store)
	require.NoError(t, err)
	require.EqualValues(t, 4, calls.Load())

	report, err := engine.Run(ctx, countingHandler(&calls), testSpecs, store)
	require.NoError(t, err)

	assert.EqualValues(t, 4, calls.Load(), "second run must not invoke the handler")
	assert.Equal(t, 4, report.Skipped)
	assert.Equal(t, 0, report.Computed)
}

func TestRun_ResumesAfterPartialRun(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.json")

	// Simulate an interrupted run: two of four combinations already
	// flushed to disk.
	seed := cache.NewFileStore(path)
	require.NoError(t, seed.Load(ctx))
	require.NoError(t, seed.Put(ctx, "region=A&id=1", []byte(`{"seed":1}`)))
	require.NoError(t, seed.Put(ctx, "region=A&id=2", []byte(`{"seed":2}`)))
	require.NoError(t, seed.Flush(ctx))

	var calls atomic.Int64
	engine := New(Config{Handler: "report"})
	store := cache.NewFileStore(path)

	report, err := engine.Run(ctx, countingHandler(&calls), testSpecs, store)
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls.Load(), "only the missing combinations should be computed")
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 2, report.Computed)
	assert.Equal(t, 4, store.Len())

	// The seeded entries are untouched.
	v, ok, err := store.Get(ctx, "region=A&id=1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"seed":1}`, string(v))
}

func TestRun_OneBadCombinationDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	fn := func(_ context.Context, args domain.Assignment) ([]byte, error) {
		if args["region"] == "B" && args["id"] == "2" {
			return nil, fmt.Errorf("upstream exploded")
		}
		return []byte(`{}`), nil
	}

	engine := New(Config{Handler: "report"})
	report, err := engine.Run(ctx, fn, testSpecs, store)
	require.NoError(t, err, "per-combination failures must not abort the run")

	assert.Equal(t, 3, report.Computed)
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed, "region=B&id=2")
	assert.Equal(t, []string{"region=B&id=2"}, report.FailedKeys())
	assert.Error(t, report.Err())
	assert.Equal(t, 3, store.Len())
}

func TestRun_EmptySpecYieldsEmptyRun(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	specs := []domain.ParameterSpec{
		{Name: "region", Values: nil},
	}

	var calls atomic.Int64
	engine := New(Config{Handler: "report"})

	report, err := engine.Run(ctx, countingHandler(&calls), specs, store)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.EqualValues(t, 0, calls.Load())
}

func TestRun_RespectsParallelismBound(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	specs := []domain.ParameterSpec{
		{Name: "n", Values: []string{"1", "2", "3", "4", "5", "6", "7", "8"}},
	}

	var (
		mu      sync.Mutex
		current int
		peak    int
		calls   int
	)

	gate := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)

	fn := func(_ context.Context, _ domain.Assignment) ([]byte, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		calls++
		first := calls <= 2
		mu.Unlock()

		if first {
			started.Done()
		}

		<-gate

		mu.Lock()
		current--
		mu.Unlock()
		return []byte(`{}`), nil
	}

	done := make(chan struct{})
	go func() {
		engine := New(Config{Handler: "report", Parallelism: 2})
		_, _ = engine.Run(ctx, fn, specs, store)
		close(done)
	}()

	started.Wait()
	close(gate)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2, "parallelism bound exceeded")
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := cache.NewMemoryStore()

	specs := []domain.ParameterSpec{
		{Name: "n", Values: []string{"1", "2", "3", "4", "5", "6", "7", "8"}},
	}

	var calls atomic.Int64
	fn := func(_ context.Context, _ domain.Assignment) ([]byte, error) {
		if calls.Add(1) == 1 {
			cancel()
		}
		return []byte(`{}`), nil
	}

	engine := New(Config{Handler: "report", Parallelism: 1})
	report, err := engine.Run(ctx, fn, specs, store)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, report.Computed+len(report.Failed), 8, "cancellation should stop dispatching")
}
