package intercept

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/jithinsankar/fastapi-cached/pkg/logging"
)

// Registry binds handler names to their wrappers. Each registration owns
// its store; two handlers never share one unless both were built with
// WithStore on the same instance deliberately.
type Registry struct {
	mu       sync.RWMutex
	wrappers map[string]*Wrapper
}

func NewRegistry() *Registry {
	return &Registry{wrappers: make(map[string]*Wrapper)}
}

// Register adds a wrapper. Duplicate names are a setup-time error.
func (r *Registry) Register(w *Wrapper) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.wrappers[w.Name()]; exists {
		return fmt.Errorf("handler %q already registered", w.Name())
	}
	r.wrappers[w.Name()] = w
	return nil
}

// Get returns the wrapper registered under name.
func (r *Registry) Get(name string) (*Wrapper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wrappers[name]
	return w, ok
}

// Names returns the registered handler names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.wrappers))
	for name := range r.wrappers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PrecomputeAll is the startup hook: the host process calls it exactly once
// during initialization. It is idempotent (each wrapper's state machine
// guards re-entry) and keeps going past handlers whose runs report failed
// combinations; only infrastructure errors (corrupt store, cancellation)
// are returned.
func (r *Registry) PrecomputeAll(ctx context.Context) error {
	logger := logging.L(ctx)

	for _, name := range r.Names() {
		w, _ := r.Get(name)

		report, err := w.Precompute(ctx)
		if err != nil {
			return fmt.Errorf("precomputing %q: %w", name, err)
		}
		if report != nil && report.Err() != nil {
			logger.Warn("handler precomputed with failures",
				zap.String("handler", name),
				zap.Strings("failed_keys", report.FailedKeys()),
			)
		}
	}

	return nil
}
