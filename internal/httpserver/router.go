package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/jithinsankar/fastapi-cached/internal/intercept"
	"github.com/jithinsankar/fastapi-cached/internal/metrics"
	"github.com/jithinsankar/fastapi-cached/internal/middleware"
)

// SetupRouter mounts each wrapped handler at its route plus the usual
// operational endpoints. Readiness reflects the wrappers' state machines:
// the process serves correct answers from the start, but /readyz only goes
// green once every handler is precomputed.
func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, registry *intercept.Registry, routes map[string]*intercept.Wrapper) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())               // panic recovery
	r.Use(middleware.Timeout(15 * time.Second)) // request timeout

	for path, w := range routes {
		r.Get(path, Endpoint(w))
	}

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		for _, name := range registry.Names() {
			wrapped, _ := registry.Get(name)
			if wrapped.State() != intercept.StateReady {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("precomputing: " + name))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Handle("/metrics", metrics.Handler())
}
