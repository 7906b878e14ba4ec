// Package metrics defines the Prometheus collectors shared across the
// storage and sync layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreWrites counts committed store writes across all documents.
	StoreWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pokerledger_store_writes_total",
		Help: "Number of committed store writes.",
	})

	// StoreCorruptionRecovered counts reads that fell back to the shadow
	// backup after live-record corruption.
	StoreCorruptionRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pokerledger_store_corruption_recovered_total",
		Help: "Number of reads recovered from the shadow backup.",
	})

	// SyncAttempts counts remote sync attempts by terminal result:
	// success, retries_exhausted, or fatal.
	SyncAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pokerledger_sync_attempts_total",
		Help: "Remote sync attempts by terminal result.",
	}, []string{"result"})
)
