package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "communitycal_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "communitycal_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	sourceLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "communitycal_source_loads_total",
		Help: "Snapshot source loads by outcome.",
	}, []string{"source", "result"})

	sourceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "communitycal_source_load_seconds",
		Help:    "Histogram of snapshot source load latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	snapshotEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "communitycal_snapshot_events",
		Help: "Number of events in the current snapshot.",
	})

	snapshotUpdated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "communitycal_snapshot_updated_timestamp_seconds",
		Help: "Unix time the current snapshot was published.",
	})
)

// Middleware records request counts and latencies labelled by route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSourceLoad records one load of a snapshot source.
func ObserveSourceLoad(source string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	sourceLoads.WithLabelValues(source, result).Inc()
	sourceLatency.WithLabelValues(source).Observe(time.Since(start).Seconds())
}

// SetSnapshot records the size and publish time of the current snapshot.
func SetSnapshot(events int, at time.Time) {
	snapshotEvents.Set(float64(events))
	snapshotUpdated.Set(float64(at.Unix()))
}

// Unmatched routes share one label so that arbitrary paths cannot blow up
// series cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
