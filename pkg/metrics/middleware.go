package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Middleware records request counts and latencies per chi route pattern, so
// /api/v1alpha1/jobs/{id} shows up as one series instead of one per job.
type Middleware struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewMiddleware(service string) *Middleware {
	labels := prometheus.Labels{"service": service}
	return &Middleware{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem:   plotterd,
				Name:        "http_requests_total",
				Help:        "HTTP requests partitioned by status code, method and route",
				ConstLabels: labels,
			}, []string{"code", "method", "route"}),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Subsystem:   plotterd,
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency partitioned by status code, method and route",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			}, []string{"code", "method", "route"}),
	}
}

func (m *Middleware) MustRegisterDefault() {
	prometheus.MustRegister(m.requests, m.latency)
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			return
		}
		code := strconv.Itoa(ww.Status())
		route := rctx.RoutePattern()
		m.requests.WithLabelValues(code, r.Method, route).Inc()
		m.latency.WithLabelValues(code, r.Method, route).Observe(time.Since(start).Seconds())
	})
}
