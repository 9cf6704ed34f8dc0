// Package supplier decides which supplier and price serve a resolved product.
//
// The decision is a strict cascade: a learned supplier preference that still
// has a price for the product, then the cheapest available offer, then a
// back-order sentinel when nothing is offered.
package supplier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"picklist/internal"
	"picklist/internal/common"
	"picklist/internal/logging"
	"picklist/internal/metrics"
)

const maxAlternatives = 3

type PreferenceReader interface {
	GetSupplierPreference(ctx context.Context, originalItem string, productID *int) (internal.SupplierPreference, bool, error)
}

type OfferSource interface {
	GetOffersForProduct(ctx context.Context, productID int) ([]internal.SupplierPriceOffer, error)
}

// ProductMatcher resolves a product when the caller has none.
type ProductMatcher interface {
	Match(ctx context.Context, rawText string) (internal.MatchCandidate, error)
}

type Engine struct {
	prefs   PreferenceReader
	offers  OfferSource
	matcher ProductMatcher
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

func NewEngine(prefs PreferenceReader, offers OfferSource, matcher ProductMatcher, timeout time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		prefs:   prefs,
		offers:  offers,
		matcher: matcher,
		timeout: timeout,
		now:     time.Now,
		logger:  logging.OrNop(logger),
	}
}

func (e *Engine) WithOffers(src OfferSource) *Engine {
	cp := *e
	cp.offers = src
	return &cp
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

func (e *Engine) Decide(ctx context.Context, rawText string, productID *int) (internal.SupplierDecision, error) {
	if productID == nil && e.matcher != nil {
		candidate, err := e.matcher.Match(ctx, rawText)
		switch {
		case err == nil:
			id := candidate.Product.ID
			productID = &id
		case errors.Is(err, common.ErrNoMatchFound), errors.Is(err, common.ErrInvalidOrderItem):
		default:
			return internal.SupplierDecision{}, err
		}
	}
	if productID == nil {
		return e.backOrder(), nil
	}

	offers, err := common.Call(ctx, e.timeout, func(ctx context.Context) ([]internal.SupplierPriceOffer, error) {
		return e.offers.GetOffersForProduct(ctx, *productID)
	})
	if err != nil {
		return internal.SupplierDecision{}, fmt.Errorf("offers for product %d: %w", *productID, err)
	}

	if pref, ok := e.lookupPreference(ctx, rawText, productID); ok {
		if offer, found := offerFrom(offers, pref.SupplierID); found {
			metrics.SupplierDecisionsTotal.WithLabelValues("preference").Inc()
			return internal.SupplierDecision{
				SupplierID:         intPtr(offer.SupplierID),
				SupplierName:       offer.SupplierName,
				Price:              floatPtr(offer.Price),
				Reason:             fmt.Sprintf("User preference (selected %d times)", pref.Frequency),
				IsUserPreferred:    true,
				Alternatives:       Alternatives(offers, offer.SupplierID),
				Confidence:         internal.ConfidenceHigh,
				PreferenceStrength: PreferenceStrength(pref.Frequency, pref.LastUsed, e.now()),
			}, nil
		}
		e.logger.Debug("preferred supplier no longer offers product",
			zap.String("item", rawText),
			zap.Int("supplierId", pref.SupplierID),
			zap.Int("productId", *productID),
		)
	}

	best, ok := cheapest(offers)
	if !ok {
		return e.backOrder(), nil
	}
	metrics.SupplierDecisionsTotal.WithLabelValues("optimized").Inc()
	return internal.SupplierDecision{
		SupplierID:         intPtr(best.SupplierID),
		SupplierName:       best.SupplierName,
		Price:              floatPtr(best.Price),
		Reason:             internal.ReasonBestPrice,
		Alternatives:       Alternatives(offers, best.SupplierID),
		Confidence:         internal.ConfidenceMedium,
		PreferenceStrength: 0,
	}, nil
}

func (e *Engine) lookupPreference(ctx context.Context, rawText string, productID *int) (internal.SupplierPreference, bool) {
	if e.prefs == nil {
		return internal.SupplierPreference{}, false
	}
	type found struct {
		pref internal.SupplierPreference
		ok   bool
	}
	res, err := common.Call(ctx, e.timeout, func(ctx context.Context) (found, error) {
		p, ok, err := e.prefs.GetSupplierPreference(ctx, strings.ToLower(rawText), productID)
		return found{pref: p, ok: ok}, err
	})
	if err != nil {
		e.logger.Warn("supplier preference lookup failed, using best price",
			zap.String("item", rawText),
			zap.Error(err),
		)
		return internal.SupplierPreference{}, false
	}
	return res.pref, res.ok
}

func (e *Engine) backOrder() internal.SupplierDecision {
	metrics.SupplierDecisionsTotal.WithLabelValues("back_order").Inc()
	return BackOrder(internal.ReasonNoSuppliers)
}

// BackOrder is the terminal decision used when no supplier can be priced.
func BackOrder(reason string) internal.SupplierDecision {
	return internal.SupplierDecision{
		SupplierName: internal.BackOrderSupplier,
		Reason:       reason,
		Alternatives: []internal.SupplierPriceOffer{},
		Confidence:   internal.ConfidenceLow,
	}
}

// PreferenceStrength scores a learned preference in [0.1, 1.0] from how often
// it was chosen, decayed when it has not been used for 30 or 90 days.
func PreferenceStrength(frequency int, lastUsed, now time.Time) float64 {
	base := math.Min(float64(frequency)/5.0, 1.0)
	age := now.Sub(lastUsed)
	decay := 1.0
	switch {
	case age > 90*24*time.Hour:
		decay = 0.8
	case age > 30*24*time.Hour:
		decay = 0.9
	}
	return math.Max(0.1, math.Min(1.0, base*decay))
}

// Alternatives lists up to three offers other than the chosen supplier's,
// cheapest first.
func Alternatives(offers []internal.SupplierPriceOffer, chosenSupplierID int) []internal.SupplierPriceOffer {
	out := make([]internal.SupplierPriceOffer, 0, len(offers))
	for _, o := range offers {
		if o.SupplierID != chosenSupplierID {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].SupplierID < out[j].SupplierID
	})
	if len(out) > maxAlternatives {
		out = out[:maxAlternatives]
	}
	return out
}

func offerFrom(offers []internal.SupplierPriceOffer, supplierID int) (internal.SupplierPriceOffer, bool) {
	var (
		best  internal.SupplierPriceOffer
		found bool
	)
	for _, o := range offers {
		if o.SupplierID == supplierID && (!found || o.Price < best.Price) {
			best, found = o, true
		}
	}
	return best, found
}

func cheapest(offers []internal.SupplierPriceOffer) (internal.SupplierPriceOffer, bool) {
	if len(offers) == 0 {
		return internal.SupplierPriceOffer{}, false
	}
	best := offers[0]
	for _, o := range offers[1:] {
		if o.Price < best.Price || (o.Price == best.Price && o.SupplierID < best.SupplierID) {
			best = o
		}
	}
	return best, true
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
