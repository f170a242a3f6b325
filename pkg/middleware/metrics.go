package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditrelay_http_requests_total",
		Help: "Requests handled, by method and status code",
	}, []string{"method", "status"})
	httpDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auditrelay_http_request_duration_seconds",
		Help:    "Time from request arrival to handler return",
		Buckets: prometheus.DefBuckets,
	})
	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auditrelay_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)
