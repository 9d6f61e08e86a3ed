package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/teemow/inboxshare/internal/instrumentation"
	"github.com/teemow/inboxshare/internal/logging"
)

// unmatchedRoute labels requests that never reached a mux pattern, such as
// rate-limited ones.
const unmatchedRoute = "unmatched"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument records request metrics labeled by the matched route pattern,
// never the raw path. The mux sets r.Pattern on the request it is handed.
func instrument(metrics *instrumentation.Metrics, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		route := r.Pattern
		if route == "" {
			route = unmatchedRoute
		}
		duration := time.Since(start)

		metrics.RecordHTTPRequest(r.Context(), r.Method, route, status, duration)
		logger.Debug("request served",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int(logging.KeyStatus, status),
			slog.Duration("duration", duration))
	})
}

// recoverPanics turns a handler panic into a 500.
func recoverPanics(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.Error("handler panic", slog.Any("panic", v), slog.String("route", r.Pattern))
				writeError(w, http.StatusInternalServerError, msgInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
