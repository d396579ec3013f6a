package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/logging"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging attaches a request-scoped logger and logs one line per request.
// Health probes are not logged.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/health") {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ctx := logging.WithAttrs(r.Context(), "request_id", TraceIDFromContext(r.Context()))
		r = r.WithContext(ctx)
		logger := logging.FromContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if asOf := r.URL.Query().Get("as_of"); asOf != "" {
			attrs = append(attrs, "as_of", asOf)
		}
		if rec.status >= http.StatusInternalServerError {
			logger.Error("request failed", attrs...)
			return
		}
		logger.Info("request completed", attrs...)
	})
}
