package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "storefront"
	subsystem = "cart"

	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeRejected   = "rejected"
	OutcomeSuperseded = "superseded"
	OutcomeDeferred   = "deferred"
	OutcomeSkipped    = "skipped"
	OutcomeDegraded   = "degraded"
)

var (
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "mutations_total",
		Help:      "Cart mutations by kind and outcome.",
	}, []string{"mutation", "outcome"})

	Rollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rollbacks_total",
		Help:      "Optimistic mutations reverted after a failed persist.",
	}, []string{"mutation"})

	PersistDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "persist_duration_seconds",
		Help:      "Background replace latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"owner", "outcome"})

	PersistInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "persist_in_flight",
		Help:      "Background replace calls not yet completed.",
	})

	Loads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "loads_total",
		Help:      "Cart loads by owner kind and outcome.",
	}, []string{"owner", "outcome"})

	Merges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "merges_total",
		Help:      "Anonymous to user merges by outcome.",
	}, []string{"outcome"})

	MergeAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "merge_anomalies_total",
		Help:      "Duplicate keys collapsed during merge.",
	}, []string{"side"})

	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sessions_active",
		Help:      "Open cart sessions.",
	})

	Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "broadcasts_total",
		Help:      "Cart change broadcasts by direction.",
	}, []string{"direction"})
)
