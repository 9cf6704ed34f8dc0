package catalog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"picklist/internal"
	"picklist/internal/logging"
)

const (
	metaLastFullSync  = "catalog.last_sync"
	metaLastPriceSync = "catalog.last_price_sync"
)

type Feed interface {
	GetProducts(ctx context.Context) ([]internal.Product, error)
	GetSuppliers(ctx context.Context) ([]internal.Supplier, error)
	GetPrices(ctx context.Context, lookbackHours int) ([]internal.SupplierPriceOffer, error)
}

type SyncStore interface {
	UpsertSuppliers(ctx context.Context, suppliers []internal.Supplier) error
	UpsertProducts(ctx context.Context, products []internal.Product) error
	UpsertOffers(ctx context.Context, offers []internal.SupplierPriceOffer) error
	SetMetadata(ctx context.Context, key, value string) error
}

type SyncResult struct {
	Products  int `json:"products"`
	Suppliers int `json:"suppliers"`
	Offers    int `json:"offers"`
}

type SyncService struct {
	store  SyncStore
	feed   Feed
	now    func() time.Time
	logger *zap.Logger
}

func NewSyncService(store SyncStore, feed Feed, logger *zap.Logger) *SyncService {
	return &SyncService{store: store, feed: feed, now: time.Now, logger: logging.OrNop(logger)}
}

// Sync pulls the whole feed. Suppliers and products are written before
// prices so every stored offer joins to both.
func (s *SyncService) Sync(ctx context.Context) (SyncResult, error) {
	suppliers, err := s.feed.GetSuppliers(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch suppliers: %w", err)
	}
	products, err := s.feed.GetProducts(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch products: %w", err)
	}
	offers, err := s.feed.GetPrices(ctx, 0)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch prices: %w", err)
	}

	if err := s.store.UpsertSuppliers(ctx, suppliers); err != nil {
		return SyncResult{}, err
	}
	if err := s.store.UpsertProducts(ctx, products); err != nil {
		return SyncResult{}, err
	}
	if err := s.store.UpsertOffers(ctx, offers); err != nil {
		return SyncResult{}, err
	}
	s.stamp(ctx, metaLastFullSync)

	res := SyncResult{Products: len(products), Suppliers: len(suppliers), Offers: len(offers)}
	s.logger.Info("catalog synced", zap.Int("products", res.Products), zap.Int("suppliers", res.Suppliers), zap.Int("offers", res.Offers))
	return res, nil
}

// SyncPrices refreshes only offers changed in the last lookbackHours.
func (s *SyncService) SyncPrices(ctx context.Context, lookbackHours int) (SyncResult, error) {
	offers, err := s.feed.GetPrices(ctx, lookbackHours)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch prices: %w", err)
	}
	if len(offers) > 0 {
		if err := s.store.UpsertOffers(ctx, offers); err != nil {
			return SyncResult{}, err
		}
	}
	s.stamp(ctx, metaLastPriceSync)
	s.logger.Info("prices synced", zap.Int("offers", len(offers)), zap.Int("lookbackHours", lookbackHours))
	return SyncResult{Offers: len(offers)}, nil
}

func (s *SyncService) stamp(ctx context.Context, key string) {
	if err := s.store.SetMetadata(ctx, key, s.now().UTC().Format(time.RFC3339)); err != nil {
		s.logger.Warn("sync metadata write failed", zap.String("key", key), zap.Error(err))
	}
}

type RowLister interface {
	ListCatalogRows(ctx context.Context) ([]internal.CatalogRow, error)
}

// LoadIndex snapshots the stored catalog into an Index.
func LoadIndex(ctx context.Context, store RowLister) (*Index, error) {
	rows, err := store.ListCatalogRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return BuildIndex(rows), nil
}
