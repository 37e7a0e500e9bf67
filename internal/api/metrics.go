package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harrier",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "harrier",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	transactionsScored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "harrier",
		Name:      "transactions_scored_total",
		Help:      "Transactions scored by detection and analysis.",
	})

	suspiciousTransactions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "harrier",
		Name:      "suspicious_transactions_total",
		Help:      "Transactions flagged as suspicious.",
	})

	graphBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harrier",
		Name:      "graph_builds_total",
		Help:      "Ego graph requests by outcome.",
	}, []string{"outcome"})

	modelVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "harrier",
		Name:      "model_version",
		Help:      "Version of the active snapshot.",
	})
)

// MetricsMiddleware records request counts and latency per route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
