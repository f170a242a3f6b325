package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditrelay_store_failures_total",
		Help: "Log store operations that failed",
	}, []string{"op"})

	prunedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auditrelay_pruned_records_total",
		Help: "Capture records removed by retention pruning",
	})
)

// RecordFailure counts a failed store operation such as "put".
func RecordFailure(op string) {
	storeFailures.WithLabelValues(op).Inc()
}
