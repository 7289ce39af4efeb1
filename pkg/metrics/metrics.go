// Package metrics provides Prometheus metrics for discovery runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/codeGROOVE-dev/orgfinder/pkg/httpcache"
)

var (
	// CandidatesTotal tracks candidates by catalog, method and outcome
	// (accepted, rejected_ownership, rejected_quality, duplicate).
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orgfinder",
			Subsystem: "discovery",
			Name:      "candidates_total",
			Help:      "Total number of catalog candidates by outcome",
		},
		[]string{"catalog", "method", "outcome"},
	)

	// SearchErrorsTotal tracks catalog calls that failed by kind.
	SearchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orgfinder",
			Subsystem: "discovery",
			Name:      "search_errors_total",
			Help:      "Total number of failed catalog searches",
		},
		[]string{"catalog", "kind"},
	)

	// EntitiesTotal tracks processed entities by resulting tier.
	EntitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orgfinder",
			Subsystem: "batch",
			Name:      "entities_total",
			Help:      "Total number of entities processed by confidence tier",
		},
		[]string{"catalog", "tier"},
	)

	// AssociationsStored tracks newly created associations.
	AssociationsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orgfinder",
			Subsystem: "store",
			Name:      "associations_created_total",
			Help:      "Total number of associations created",
		},
		[]string{"catalog"},
	)

	// PersistErrorsTotal tracks failed artifact or association writes.
	PersistErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orgfinder",
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Total number of failed persistence writes",
		},
		[]string{"catalog"},
	)

	// BatchDuration tracks batch run duration in seconds.
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orgfinder",
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Duration of discovery batches in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"catalog"},
	)

	// BatchesStoppedEarly tracks batches cut short, by reason.
	BatchesStoppedEarly = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orgfinder",
			Subsystem: "batch",
			Name:      "stopped_early_total",
			Help:      "Total number of batches stopped before their limit",
		},
		[]string{"catalog", "reason"},
	)

	// RateLimitRemaining tracks the last observed catalog quota.
	RateLimitRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "orgfinder",
			Subsystem: "catalog",
			Name:      "rate_limit_remaining",
			Help:      "Last observed remaining API quota per catalog",
		},
		[]string{"catalog"},
	)

	// CacheHits tracks HTTP cache hits.
	CacheHits = promauto.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "orgfinder",
			Subsystem: "http_cache",
			Name:      "hits_total",
			Help:      "Total number of HTTP cache hits",
		},
		func() float64 { return float64(httpcache.CacheStats().Hits) },
	)

	// CacheMisses tracks HTTP cache misses.
	CacheMisses = promauto.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "orgfinder",
			Subsystem: "http_cache",
			Name:      "misses_total",
			Help:      "Total number of HTTP cache misses",
		},
		func() float64 { return float64(httpcache.CacheStats().Misses) },
	)
)

// Candidate outcomes.
const (
	OutcomeAccepted          = "accepted"
	OutcomeRejectedOwnership = "rejected_ownership"
	OutcomeRejectedQuality   = "rejected_quality"
	OutcomeDuplicate         = "duplicate"
)
