// Package metrics holds the Prometheus collectors for picklist generation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchStrategyTotal counts catalog matches by the strategy that produced them.
	// Labels: strategy (exact_substring, brand_category, word_set, single_word, preference, none)
	MatchStrategyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "picklist",
			Name:      "match_strategy_total",
			Help:      "Item resolutions by the strategy that produced them",
		},
		[]string{"strategy"},
	)

	// SupplierDecisionsTotal counts supplier decisions.
	// Labels: kind (preference, optimized, back_order)
	SupplierDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "picklist",
			Name:      "supplier_decisions_total",
			Help:      "Supplier decisions by cascade step",
		},
		[]string{"kind"},
	)

	// ItemsTotal counts processed order items.
	// Labels: outcome (priced, back_order, error)
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "picklist",
			Name:      "items_total",
			Help:      "Processed order items by outcome",
		},
		[]string{"outcome"},
	)

	// PreferenceWritesTotal counts preference learning writes.
	// Labels: kind (item, supplier, batch, cleanup), result (success, error)
	PreferenceWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "picklist",
			Name:      "preference_writes_total",
			Help:      "Preference store writes by kind and result",
		},
		[]string{"kind", "result"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "picklist",
			Name:      "batch_duration_seconds",
			Help:      "Duration of picklist generation for one batch",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
