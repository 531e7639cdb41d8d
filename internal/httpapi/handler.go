package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/John-Robertt/genieacs-gateway/internal/logging"
	"github.com/John-Robertt/genieacs-gateway/internal/mapping"
)

const requestIDHeader = "X-Request-ID"

// NewHandler returns the production handler (mux + observability middleware).
//
// Tests can still use NewMux directly to avoid noisy logs unless needed.
func NewHandler(up Upstream, dict *mapping.Dictionary, opt Options) http.Handler {
	return withObservability(logging.OrNop(opt.Logger).Named("http"), NewMux(up, dict, opt))
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func withObservability(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}

		pattern := r.Pattern
		if pattern == "" {
			// Keep it low-cardinality: unmatched paths collapse per method.
			pattern = r.Method + " (unmatched)"
		}

		metricsIncRequest(pattern, status)

		// Never log the query string: device filters may carry serial numbers.
		if r.URL.Path != "/healthz" && r.URL.Path != "/metrics" {
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("pattern", pattern),
				zap.Int("status", status),
				zap.Duration("dur", time.Since(start).Round(time.Millisecond)),
				zap.Int("bytes", sw.bytes),
				zap.String("request_id", reqID))
		}
	})
}
