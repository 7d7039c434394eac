package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	pages    *prometheus.CounterVec
	pageSize prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedscroll",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests received",
		}, []string{"method", "route", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "feedscroll",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		pages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedscroll",
			Name:      "pages_served_total",
			Help:      "Pages served by outcome (more, last, error)",
		}, []string{"outcome"}),
		pageSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "feedscroll",
			Name:      "page_items",
			Help:      "Number of items per served page",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// middleware records request counts and latency labelled by route pattern.
func (m *metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *metrics) observePage(n int, hasMore bool) {
	outcome := "last"
	if hasMore {
		outcome = "more"
	}
	m.pages.WithLabelValues(outcome).Inc()
	m.pageSize.Observe(float64(n))
}

func (m *metrics) observePageError() {
	m.pages.WithLabelValues("error").Inc()
}
