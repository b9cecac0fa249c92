// Package precompute walks the full combination space of a handler's
// discrete parameters and fills its cache store, write-through, so the
// process can be killed and re-run without losing completed work.
package precompute

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jithinsankar/fastapi-cached/internal/cache"
	"github.com/jithinsankar/fastapi-cached/internal/domain"
	"github.com/jithinsankar/fastapi-cached/internal/metrics"
	"github.com/jithinsankar/fastapi-cached/pkg/logging"
)

// Handler is the byte-level contract the engine drives: one invocation per
// combination, producing the encoded result to persist. The intercept layer
// adapts user handlers (typed result + codec) onto this.
type Handler func(ctx context.Context, args domain.Assignment) ([]byte, error)

type Config struct {
	// Handler names the wrapped handler in logs and metrics.
	Handler string

	// Parallelism bounds concurrent handler invocations (default: 4).
	// Combinations are independent, so completion order does not matter;
	// the store is keyed, not ordered.
	Parallelism int
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c Config) WithDefaults() Config {
	cfg := c
	if cfg.Handler == "" {
		cfg.Handler = "handler"
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	return cfg
}

// Report summarizes one precomputation run. A run with failed combinations
// still completes: those keys stay missing from the store and are served
// live until a later run retries them.
type Report struct {
	RunID    string
	Handler  string
	Total    int
	Skipped  int
	Computed int
	Failed   map[string]error
}

// FailedKeys returns the keys of failed combinations, sorted for stable
// output.
func (r *Report) FailedKeys() []string {
	keys := make([]string, 0, len(r.Failed))
	for k := range r.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Err returns nil when every combination ended up cached, or an aggregate
// error naming how many did not.
func (r *Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("precompute run %s: %d of %d combinations failed", r.RunID, len(r.Failed), r.Total)
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.WithDefaults()}
}

// Run computes every combination of specs not already present in the store.
// Already-cached keys are skipped, which is what makes re-running after an
// interruption safe and cheap. Per-combination failures are recorded in the
// report and do not abort the run. A non-nil error is returned only for
// infrastructure problems: a corrupt store file or context cancellation.
func (e *Engine) Run(ctx context.Context, fn Handler, specs []domain.ParameterSpec, store cache.Store) (*Report, error) {
	start := time.Now()

	report := &Report{
		RunID:   uuid.NewString(),
		Handler: e.cfg.Handler,
		Failed:  make(map[string]error),
	}

	logger := logging.L(ctx).With(
		zap.String("handler", e.cfg.Handler),
		zap.String("run_id", report.RunID),
	)
	ctx = logging.WithLogger(ctx, logger)

	if err := store.Load(ctx); err != nil {
		return report, fmt.Errorf("loading store: %w", err)
	}

	it := domain.NewCombinations(specs)
	report.Total = it.Count()
	order := cache.KeyOrder(specs)

	if report.Total == 0 {
		logger.Warn("nothing to precompute: combination space is empty")
		return report, nil
	}

	logger.Info("precomputation started",
		zap.Int("combinations", report.Total),
		zap.Int("parallelism", e.cfg.Parallelism),
	)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, e.cfg.Parallelism)
	)

	canceled := false

dispatch:
	for {
		assignment, ok := it.Next()
		if !ok {
			break
		}

		if ctx.Err() != nil {
			canceled = true
			break dispatch
		}

		key := cache.BuildKey(order, assignment)

		if _, present, err := store.Get(ctx, key); err == nil && present {
			mu.Lock()
			report.Skipped++
			mu.Unlock()
			metrics.PrecomputeCombinationsTotal.WithLabelValues(e.cfg.Handler, "skipped").Inc()
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			canceled = true
			break dispatch
		}

		wg.Add(1)
		go func(key string, args domain.Assignment) {
			defer wg.Done()
			defer func() { <-sem }()

			e.computeOne(ctx, fn, store, key, args, report, &mu)
		}(key, assignment)
	}

	// On cancellation, in-flight invocations are abandoned: their
	// combinations stay missing and are picked up by the next run.
	// Already-flushed entries are never lost.
	wg.Wait()

	elapsed := time.Since(start)
	metrics.PrecomputeDurationSeconds.WithLabelValues(e.cfg.Handler).Observe(elapsed.Seconds())

	fields := []zap.Field{
		zap.Int("total", report.Total),
		zap.Int("skipped", report.Skipped),
		zap.Int("computed", report.Computed),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("elapsed", elapsed),
	}

	if canceled {
		logger.Warn("precomputation canceled", fields...)
		return report, ctx.Err()
	}

	if len(report.Failed) > 0 {
		logger.Warn("precomputation finished with failures",
			append(fields, zap.Strings("failed_keys", report.FailedKeys()))...)
	} else {
		logger.Info("precomputation finished", fields...)
	}

	return report, nil
}

func (e *Engine) computeOne(
	ctx context.Context,
	fn Handler,
	store cache.Store,
	key string,
	args domain.Assignment,
	report *Report,
	mu *sync.Mutex,
) {
	logger := logging.L(ctx)

	fail := func(err error) {
		mu.Lock()
		report.Failed[key] = err
		mu.Unlock()
		metrics.PrecomputeCombinationsTotal.WithLabelValues(e.cfg.Handler, "failed").Inc()
		logger.Warn("combination failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	value, err := fn(ctx, args)
	if err != nil {
		fail(fmt.Errorf("handler: %w", err))
		return
	}

	if err := store.Put(ctx, key, value); err != nil {
		fail(fmt.Errorf("store put: %w", err))
		return
	}

	// Write-through: flush now so this result survives a crash. The store
	// serializes flushes internally.
	if err := store.Flush(ctx); err != nil {
		fail(fmt.Errorf("store flush: %w", err))
		return
	}

	mu.Lock()
	report.Computed++
	mu.Unlock()
	metrics.PrecomputeCombinationsTotal.WithLabelValues(e.cfg.Handler, "computed").Inc()
}
