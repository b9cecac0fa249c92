package httpserver

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/jithinsankar/fastapi-cached/internal/domain"
	"github.com/jithinsankar/fastapi-cached/internal/intercept"
	"github.com/jithinsankar/fastapi-cached/pkg/logging"
)

// Endpoint adapts a wrapped handler onto HTTP: query parameters become the
// assignment, and the response body is the encoded result, cached or live.
// Every discrete parameter must be present in the query (400 otherwise);
// additional parameters are forwarded to the handler as-is.
func Endpoint(w *intercept.Wrapper) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		query := r.URL.Query()

		args := make(domain.Assignment, len(query))
		for name, vals := range query {
			if len(vals) > 0 {
				args[name] = vals[0]
			}
		}

		for _, spec := range w.Specs() {
			if _, ok := args[spec.Name]; !ok {
				http.Error(rw, "missing query parameter: "+spec.Name, http.StatusBadRequest)
				return
			}
		}

		data, err := w.CallBytes(ctx, args)
		if err != nil {
			logging.L(ctx).Error("handler failed",
				zap.String("handler", w.Name()),
				zap.Error(err),
			)
			http.Error(rw, "internal error", http.StatusInternalServerError)
			return
		}

		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write(data)
	}
}
