package pipeline

import (
	"strconv"

	"picklist/internal"
	"picklist/internal/util"
)

// Summarize aggregates a picklist. Totals that do not parse as a number
// ("N/A") are left out of the price sums.
func Summarize(entries []internal.PicklistEntry) internal.Summary {
	sum := internal.Summary{
		TotalItems:     len(entries),
		SupplierTotals: map[string]float64{},
	}
	if len(entries) == 0 {
		return sum
	}

	confidence := 0.0
	for _, e := range entries {
		sum.TotalQuantity += e.OrderItem.Quantity
		confidence += e.SupplierDecision.Confidence.Score()

		if total, err := strconv.ParseFloat(e.TotalPrice, 64); err == nil {
			sum.TotalPrice += total
			sum.SupplierTotals[e.SupplierDecision.SupplierName] += total
		}

		switch {
		case e.Error != "":
			sum.Failed++
		case e.IsPreference || e.SupplierDecision.IsUserPreferred:
			sum.PreferenceMatched++
		case !e.SupplierDecision.IsBackOrder():
			sum.SystemOptimized++
		}
		if e.SupplierDecision.IsBackOrder() {
			sum.BackOrdered++
		}
	}

	sum.TotalPrice = util.RoundCents(sum.TotalPrice)
	for name, total := range sum.SupplierTotals {
		sum.SupplierTotals[name] = util.RoundCents(total)
	}
	sum.AverageConfidence = confidence / float64(len(entries))
	return sum
}
