// Package intercept wraps slow handlers whose inputs form a small discrete
// space. After a one-time precomputation pass every in-domain request is
// answered from a persistent store; everything else passes through to the
// original handler unchanged.
package intercept

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jithinsankar/fastapi-cached/internal/cache"
	"github.com/jithinsankar/fastapi-cached/internal/domain"
	"github.com/jithinsankar/fastapi-cached/internal/metrics"
	"github.com/jithinsankar/fastapi-cached/internal/precompute"
	"github.com/jithinsankar/fastapi-cached/pkg/logging"
)

// Handler is the user-facing contract: invoked with one value per declared
// parameter, it produces a serializable result or fails.
type Handler func(ctx context.Context, args domain.Assignment) (any, error)

// State of a wrapper. Live calls pass through until Ready.
type State int32

const (
	StateUninitialized State = iota
	StatePrecomputing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePrecomputing:
		return "precomputing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// NonDiscretePolicy decides what to do with handler parameters that carry
// no enumerable type. The engine cannot precompute over them, so there is
// no safe default guess; the caller must choose explicitly.
type NonDiscretePolicy int

const (
	// NonDiscreteReject refuses to wrap a handler that has non-discrete
	// parameters. The default.
	NonDiscreteReject NonDiscretePolicy = iota

	// NonDiscreteIgnore excludes non-discrete parameters from key
	// derivation. Opting in asserts the result does not depend on them;
	// they are still forwarded unchanged on live fallback.
	NonDiscreteIgnore
)

type Option func(*Wrapper)

// WithStore overrides the default file store. Each wrapper owns its store
// exclusively; sharing one between handlers is only sane when configured
// deliberately.
func WithStore(s cache.Store) Option {
	return func(w *Wrapper) { w.store = s }
}

// WithCachePath overrides the default cache file path, which is derived
// from the handler name.
func WithCachePath(path string) Option {
	return func(w *Wrapper) { w.cachePath = path }
}

// WithCodec overrides the default JSON codec.
func WithCodec(c Codec) Option {
	return func(w *Wrapper) { w.codec = c }
}

// WithParallelism bounds concurrent handler invocations during
// precomputation.
func WithParallelism(n int) Option {
	return func(w *Wrapper) { w.parallelism = n }
}

// WithBackfill makes a Ready-state live fallback store its result, so a
// miss is computed at most once. Off by default: the precomputed file is
// the source of truth unless the caller opts in.
func WithBackfill() Option {
	return func(w *Wrapper) { w.backfill = true }
}

// WithNonDiscretePolicy sets the policy for non-discrete parameters.
func WithNonDiscretePolicy(p NonDiscretePolicy) Option {
	return func(w *Wrapper) { w.nonDiscrete = p }
}

// Wrapper intercepts calls to a handler. Before precomputation finishes,
// calls pass through; once Ready, in-domain calls are served from the store
// and everything else falls back to live execution.
type Wrapper struct {
	name  string
	fn    Handler
	specs []domain.ParameterSpec
	order []string

	store       cache.Store
	cachePath   string
	codec       Codec
	parallelism int
	backfill    bool
	nonDiscrete NonDiscretePolicy

	state atomic.Int32
	done  chan struct{}

	reportMu sync.Mutex
	report   *precompute.Report
}

// Wrap builds a wrapper around fn. The signature's discrete parameters are
// extracted once, here, at registration time; enumeration problems surface
// immediately rather than on first request.
func Wrap(name string, fn Handler, sig domain.Signature, opts ...Option) (*Wrapper, error) {
	specs, rest, err := domain.Extract(sig)
	if err != nil {
		return nil, fmt.Errorf("wrapping handler %q: %w", name, err)
	}

	w := &Wrapper{
		name:  name,
		fn:    fn,
		specs: specs,
		order: cache.KeyOrder(specs),
		codec: JSONCodec{},
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if len(rest) > 0 && w.nonDiscrete == NonDiscreteReject {
		names := make([]string, len(rest))
		for i, p := range rest {
			names[i] = p.Name
		}
		return nil, fmt.Errorf(
			"wrapping handler %q: parameters %v have no enumerable type; "+
				"use WithNonDiscretePolicy(NonDiscreteIgnore) to exclude them from key derivation",
			name, names)
	}

	if w.store == nil {
		path := w.cachePath
		if path == "" {
			path = name + "_cache.json"
		}
		w.store = cache.NewFileStore(path)
	}

	return w, nil
}

// Name returns the handler name this wrapper was registered under.
func (w *Wrapper) Name() string { return w.name }

// Specs returns the discrete parameter specs in declaration order.
func (w *Wrapper) Specs() []domain.ParameterSpec { return w.specs }

// State returns the wrapper's current lifecycle state.
func (w *Wrapper) State() State { return State(w.state.Load()) }

// Precompute is the single startup entry point: it runs the precomputation
// engine over the full combination space and then marks the wrapper Ready.
// Idempotent: only the first call runs; calls racing the first run block
// until it finishes (or their own context is canceled) and then return the
// first run's report. Ready is set even when some combinations failed;
// those are simply served live until a later run retries them.
func (w *Wrapper) Precompute(ctx context.Context) (*precompute.Report, error) {
	if !w.state.CompareAndSwap(int32(StateUninitialized), int32(StatePrecomputing)) {
		select {
		case <-w.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		w.reportMu.Lock()
		defer w.reportMu.Unlock()
		return w.report, nil
	}

	engine := precompute.New(precompute.Config{
		Handler:     w.name,
		Parallelism: w.parallelism,
	})

	report, err := engine.Run(ctx, w.computeRaw, w.specs, w.store)

	w.reportMu.Lock()
	w.report = report
	w.reportMu.Unlock()

	w.state.Store(int32(StateReady))
	close(w.done)
	return report, err
}

// computeRaw adapts the typed handler onto the engine's byte-level
// contract.
func (w *Wrapper) computeRaw(ctx context.Context, args domain.Assignment) ([]byte, error) {
	result, err := w.fn(ctx, args)
	if err != nil {
		return nil, err
	}
	data, err := w.codec.Encode(result)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return data, nil
}

// CallBytes serves a request as encoded bytes: the cached value verbatim on
// a hit, the live handler's encoded result otherwise. The only way this
// fails is the handler itself failing, identically to unwrapped behavior.
func (w *Wrapper) CallBytes(ctx context.Context, args domain.Assignment) ([]byte, error) {
	if data, ok := w.lookup(ctx, args); ok {
		return data, nil
	}
	return w.live(ctx, args)
}

// Call serves a request like CallBytes but decodes a cached hit through the
// codec, so callers see a value either way.
func (w *Wrapper) Call(ctx context.Context, args domain.Assignment) (any, error) {
	if data, ok := w.lookup(ctx, args); ok {
		var out any
		if err := w.codec.Decode(data, &out); err == nil {
			return out, nil
		}
		// Undecodable cached bytes (e.g. a bad hand-edit): fall through to
		// live execution rather than failing the request.
		logging.L(ctx).Warn("cached entry undecodable, serving live",
			zap.String("handler", w.name),
		)
	}

	return w.fn(ctx, args)
}

// lookup consults the store when the wrapper is Ready. A miss here is never
// an error; it just means live execution.
func (w *Wrapper) lookup(ctx context.Context, args domain.Assignment) ([]byte, bool) {
	state := w.State()
	if state != StateReady {
		metrics.CacheFallbacksTotal.WithLabelValues(w.name, state.String()).Inc()
		return nil, false
	}

	key := cache.BuildKey(w.order, args)

	data, hit, err := w.store.Get(ctx, key)
	if err != nil {
		// Best effort: log and treat as a miss.
		logging.L(ctx).Warn("store lookup failed, serving live",
			zap.String("handler", w.name),
			zap.String("key", key),
			zap.Error(err),
		)
		metrics.CacheFallbacksTotal.WithLabelValues(w.name, "store_error").Inc()
		return nil, false
	}
	if !hit {
		metrics.CacheFallbacksTotal.WithLabelValues(w.name, "miss").Inc()
		return nil, false
	}

	metrics.CacheHitsTotal.WithLabelValues(w.name).Inc()
	return data, true
}

// live invokes the original handler and encodes its result. In Ready state
// with backfill enabled, the result is also stored so the next identical
// request hits.
func (w *Wrapper) live(ctx context.Context, args domain.Assignment) ([]byte, error) {
	data, err := w.computeRaw(ctx, args)
	if err != nil {
		return nil, err
	}

	if w.backfill && w.State() == StateReady {
		key := cache.BuildKey(w.order, args)
		if err := w.store.Put(ctx, key, data); err != nil {
			logging.L(ctx).Warn("backfill put failed",
				zap.String("handler", w.name),
				zap.String("key", key),
				zap.Error(err),
			)
		} else if err := w.store.Flush(ctx); err != nil {
			logging.L(ctx).Warn("backfill flush failed",
				zap.String("handler", w.name),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	return data, nil
}
