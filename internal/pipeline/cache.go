package pipeline

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"picklist/internal"
	"picklist/internal/matching"
)

// OfferCache holds offers per product for the lifetime of one batch.
type OfferCache interface {
	Get(productID int) ([]internal.SupplierPriceOffer, bool)
	Put(productID int, offers []internal.SupplierPriceOffer)
	Len() int
}

// FIFOCache is a bounded OfferCache evicting the oldest inserted product first.
type FIFOCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[int][]internal.SupplierPriceOffer
	order   []int
}

func NewFIFOCache(maxSize int) *FIFOCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &FIFOCache{
		maxSize: maxSize,
		entries: make(map[int][]internal.SupplierPriceOffer, maxSize),
	}
}

func (c *FIFOCache) Get(productID int) ([]internal.SupplierPriceOffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	offers, ok := c.entries[productID]
	return offers, ok
}

func (c *FIFOCache) Put(productID int, offers []internal.SupplierPriceOffer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[productID]; exists {
		c.entries[productID] = offers
		return
	}
	for len(c.order) >= c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[productID] = offers
	c.order = append(c.order, productID)
}

func (c *FIFOCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cachedOffers reads through an OfferCache, collapsing concurrent lookups of
// the same product into one store call.
type cachedOffers struct {
	src   matching.OfferSource
	cache OfferCache
	group singleflight.Group
}

func newCachedOffers(src matching.OfferSource, cache OfferCache) *cachedOffers {
	return &cachedOffers{src: src, cache: cache}
}

func (c *cachedOffers) GetOffersForProduct(ctx context.Context, productID int) ([]internal.SupplierPriceOffer, error) {
	if offers, ok := c.cache.Get(productID); ok {
		return offers, nil
	}
	v, err, _ := c.group.Do(strconv.Itoa(productID), func() (any, error) {
		if offers, ok := c.cache.Get(productID); ok {
			return offers, nil
		}
		offers, err := c.src.GetOffersForProduct(ctx, productID)
		if err != nil {
			return nil, err
		}
		c.cache.Put(productID, offers)
		return offers, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]internal.SupplierPriceOffer), nil
}
