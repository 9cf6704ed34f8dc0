package matching

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"picklist/internal"
	"picklist/internal/common"
	"picklist/internal/logging"
)

// ItemPreferenceReader looks up a learned item -> product mapping by the
// case-folded original text.
type ItemPreferenceReader interface {
	GetItemPreference(ctx context.Context, userID, originalItem string) (internal.ItemPreference, bool, error)
}

type OfferSource interface {
	GetOffersForProduct(ctx context.Context, productID int) ([]internal.SupplierPriceOffer, error)
}

type ProductLookup interface {
	GetProduct(ctx context.Context, productID int) (internal.Product, bool, error)
}

type Resolution struct {
	Product      *internal.Product
	Offer        *internal.SupplierPriceOffer
	Strategy     string
	MatchScore   float64
	IsPreference bool
	Frequency    int
	// Miss holds ErrNoMatchFound or ErrInvalidOrderItem when nothing resolved.
	Miss error
}

func (r Resolution) ProductID() *int {
	if r.Product == nil {
		return nil
	}
	id := r.Product.ID
	return &id
}

// Resolver prefers a user's learned product over automatic catalog matching.
type Resolver struct {
	prefs    ItemPreferenceReader
	products ProductLookup
	offers   OfferSource
	matcher  *Matcher
	timeout  time.Duration
	logger   *zap.Logger
}

func NewResolver(prefs ItemPreferenceReader, products ProductLookup, offers OfferSource, matcher *Matcher, timeout time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{
		prefs:    prefs,
		products: products,
		offers:   offers,
		matcher:  matcher,
		timeout:  timeout,
		logger:   logging.OrNop(logger),
	}
}

// WithOffers returns a copy reading offers from src, used to plug in a
// batch-scoped cache.
func (r *Resolver) WithOffers(src OfferSource) *Resolver {
	cp := *r
	cp.offers = src
	return &cp
}

func (r *Resolver) Resolve(ctx context.Context, userID, rawText string) (Resolution, error) {
	if pref, ok := r.lookupPreference(ctx, userID, rawText); ok {
		return r.fromPreference(ctx, pref)
	}

	candidate, err := r.matcher.Match(ctx, rawText)
	if err != nil {
		if errors.Is(err, common.ErrNoMatchFound) || errors.Is(err, common.ErrInvalidOrderItem) {
			return Resolution{Miss: err}, nil
		}
		return Resolution{}, err
	}

	product := candidate.Product
	offer := candidate.ChosenOffer
	return Resolution{
		Product:    &product,
		Offer:      &offer,
		Strategy:   candidate.StrategyName,
		MatchScore: candidate.MatchScore,
	}, nil
}

// lookupPreference treats read failures as a miss so matching can proceed.
func (r *Resolver) lookupPreference(ctx context.Context, userID, rawText string) (internal.ItemPreference, bool) {
	if r.prefs == nil || userID == "" {
		return internal.ItemPreference{}, false
	}
	type found struct {
		pref internal.ItemPreference
		ok   bool
	}
	res, err := common.Call(ctx, r.timeout, func(ctx context.Context) (found, error) {
		p, ok, err := r.prefs.GetItemPreference(ctx, userID, strings.ToLower(rawText))
		return found{pref: p, ok: ok}, err
	})
	if err != nil {
		r.logger.Warn("item preference lookup failed, falling back to catalog match",
			zap.String("userId", userID),
			zap.String("item", rawText),
			zap.Error(err),
		)
		return internal.ItemPreference{}, false
	}
	return res.pref, res.ok
}

func (r *Resolver) fromPreference(ctx context.Context, pref internal.ItemPreference) (Resolution, error) {
	product := internal.Product{ID: pref.ProductID}
	if r.products != nil {
		p, ok, err := r.products.GetProduct(ctx, pref.ProductID)
		if err != nil {
			r.logger.Warn("product lookup failed", zap.Int("productId", pref.ProductID), zap.Error(err))
		} else if ok {
			product = p
		}
	}

	offers, err := common.Call(ctx, r.timeout, func(ctx context.Context) ([]internal.SupplierPriceOffer, error) {
		return r.offers.GetOffersForProduct(ctx, pref.ProductID)
	})
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{
		Product:      &product,
		Strategy:     StrategyPreference,
		IsPreference: true,
		Frequency:    pref.Frequency,
	}
	if cheapest, ok := Cheapest(offers); ok {
		res.Offer = &cheapest
	}
	return res, nil
}

// Cheapest returns the lowest priced offer, lowest supplier id on ties.
func Cheapest(offers []internal.SupplierPriceOffer) (internal.SupplierPriceOffer, bool) {
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
