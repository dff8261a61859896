// Package metrics exposes the portal's Prometheus instrumentation: HTTP
// request counters and latencies, platform call outcomes, and realtime
// subscription activity.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	platformRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_platform_requests_total",
		Help: "Total number of calls issued to the hosted backend, by outcome.",
	}, []string{"operation", "outcome"})

	platformRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_platform_request_duration_seconds",
		Help:    "Histogram of latencies for hosted backend calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	realtimeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_realtime_events_total",
		Help: "Total number of change notifications received, per relation.",
	}, []string{"relation"})

	activeMirrors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portal_active_mirrors",
		Help: "Number of admin table mirrors currently holding a realtime subscription.",
	})
)

// Middleware records request count and latency per chi route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(ww, r)

			route := routePattern(r)
			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePlatformRequest records one hosted backend call and its outcome.
func ObservePlatformRequest(operation string, err error, start time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	platformRequestsTotal.WithLabelValues(operation, outcome).Inc()
	platformRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveRealtimeEvent counts one received change notification.
func ObserveRealtimeEvent(relation string) {
	realtimeEventsTotal.WithLabelValues(relation).Inc()
}

// MirrorSubscribed tracks the lifetime of a mirror's realtime subscription.
func MirrorSubscribed()   { activeMirrors.Inc() }
func MirrorUnsubscribed() { activeMirrors.Dec() }

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE responses streaming through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
