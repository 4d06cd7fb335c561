package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var metricHTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pikav",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests handled by the pikav glue, by route and status class.",
}, []string{"route", "status"})

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the underlying ResponseWriter's Flusher, if any, so
// that wrapping with statusWriter does not break SSE streaming in
// handleEvents.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrument wraps h so every request increments metricHTTPRequests by
// route and status class, without every handler needing to know about it.
func instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		metricHTTPRequests.WithLabelValues(route, statusClass(sw.status)).Inc()
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// metricsHandler exposes /metrics, gated by an optional bearer token
// (grounded on buckley/pkg/ipc/metrics.go's optional-auth pattern for its
// own metrics endpoint: unset disables the gate for local/dev use).
func metricsHandler(bearerToken string) http.Handler {
	h := promhttp.Handler()
	if bearerToken == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+bearerToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}
