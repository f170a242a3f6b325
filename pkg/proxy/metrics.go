package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ngoyal88/auditrelay/pkg/storage"
)

var (
	upstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auditrelay_upstream_latency_seconds",
		Help:    "Time from dispatching the upstream call to the end of the exchange",
		Buckets: prometheus.DefBuckets,
	})
	exchangeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditrelay_exchanges_total",
		Help: "Proxied exchanges by terminal outcome",
	}, []string{"outcome"})
	captureTruncations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditrelay_capture_truncated_total",
		Help: "Bodies larger than the capture budget",
	}, []string{"leg"})
	promptTokens = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auditrelay_prompt_tokens",
		Help:    "Estimated prompt tokens per captured request",
		Buckets: []float64{1, 10, 50, 100, 500, 1_000, 2_000, 4_000, 8_000, 16_000},
	})
	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auditrelay_upstream_breaker_state",
		Help: "Upstream circuit breaker state (0 closed, 1 half-open, 2 open)",
	})
)

func observeOutcome(resp storage.ResponseCapture, errText string) {
	switch {
	case errText != "":
		exchangeOutcomes.WithLabelValues("failed").Inc()
	case !resp.Stream:
		exchangeOutcomes.WithLabelValues("no_body").Inc()
	case resp.Aborted:
		exchangeOutcomes.WithLabelValues("aborted").Inc()
	default:
		exchangeOutcomes.WithLabelValues("streamed").Inc()
	}
	if resp.Truncated {
		captureTruncations.WithLabelValues("response").Inc()
	}
}
