package preference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"picklist/internal"
	"picklist/internal/common"
	"picklist/internal/logging"
	"picklist/internal/metrics"
)

const DefaultRetentionDays = 365

var ErrUnknownSupplier = errors.New("unknown supplier")

// Store persists learned preferences. Upserts must be atomic per key:
// insert with frequency 1 or increment the existing row.
type Store interface {
	UpsertItemPreference(ctx context.Context, userID, originalItem string, productID int, at time.Time) (internal.ItemPreference, error)
	UpsertSupplierPreference(ctx context.Context, choice internal.SupplierChoice, at time.Time) (internal.SupplierPreference, error)
	BatchUpsertSupplierPreferences(ctx context.Context, choices []internal.SupplierChoice, at time.Time) error
	CleanupPreferences(ctx context.Context, olderThan time.Time) (int64, error)
}

type SupplierLookup interface {
	GetSupplierByName(ctx context.Context, name string) (internal.Supplier, bool, error)
	GetSupplierByID(ctx context.Context, id int) (internal.Supplier, bool, error)
}

// Override is a user's manual confirmation of a product and/or supplier for
// an order line.
type Override struct {
	UserID       string `json:"userId"`
	OriginalItem string `json:"originalItem"`
	ProductID    *int   `json:"productId"`
	SupplierID   *int   `json:"supplierId"`
	SupplierName string `json:"supplierName"`
}

type Recorded struct {
	Item     *internal.ItemPreference     `json:"itemPreference,omitempty"`
	Supplier *internal.SupplierPreference `json:"supplierPreference,omitempty"`
}

type Learner struct {
	store     Store
	suppliers SupplierLookup
	timeout   time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewLearner(store Store, suppliers SupplierLookup, timeout time.Duration, logger *zap.Logger) *Learner {
	return &Learner{
		store:     store,
		suppliers: suppliers,
		timeout:   timeout,
		now:       time.Now,
		logger:    logging.OrNop(logger),
	}
}

func (l *Learner) WithClock(now func() time.Time) *Learner {
	cp := *l
	cp.now = now
	return &cp
}

// RecordOverride learns whatever the override carries: the item -> product
// mapping when a user and product are given, the item -> supplier mapping
// when a supplier is given.
func (l *Learner) RecordOverride(ctx context.Context, o Override) (Recorded, error) {
	if strings.TrimSpace(o.OriginalItem) == "" {
		return Recorded{}, fmt.Errorf("%w: empty original item", common.ErrInvalidOrderItem)
	}

	supplierID, err := l.resolveSupplier(ctx, o)
	if err != nil {
		return Recorded{}, err
	}

	var out Recorded
	if o.UserID != "" && o.ProductID != nil {
		pref, err := l.RecordProductChoice(ctx, o.UserID, o.OriginalItem, *o.ProductID)
		if err != nil {
			return out, err
		}
		out.Item = &pref
	}
	if supplierID != nil {
		pref, err := l.RecordSupplierChoice(ctx, internal.SupplierChoice{
			OriginalItem: o.OriginalItem,
			ProductID:    o.ProductID,
			SupplierID:   *supplierID,
		})
		if err != nil {
			return out, err
		}
		out.Supplier = &pref
	}
	return out, nil
}

func (l *Learner) RecordProductChoice(ctx context.Context, userID, originalItem string, productID int) (internal.ItemPreference, error) {
	at := l.now()
	pref, err := common.Call(ctx, l.timeout, func(ctx context.Context) (internal.ItemPreference, error) {
		return l.store.UpsertItemPreference(ctx, userID, originalItem, productID, at)
	})
	metrics.PreferenceWritesTotal.WithLabelValues("item", metrics.Result(err)).Inc()
	if err != nil {
		l.logger.Error("item preference write failed",
			zap.String("userId", userID),
			zap.String("item", originalItem),
			zap.Int("productId", productID),
			zap.Error(err),
		)
		return internal.ItemPreference{}, err
	}
	l.logger.Info("item preference recorded",
		zap.String("userId", userID),
		zap.String("item", originalItem),
		zap.Int("productId", productID),
		zap.Int("frequency", pref.Frequency),
	)
	return pref, nil
}

func (l *Learner) RecordSupplierChoice(ctx context.Context, choice internal.SupplierChoice) (internal.SupplierPreference, error) {
	at := l.now()
	pref, err := common.Call(ctx, l.timeout, func(ctx context.Context) (internal.SupplierPreference, error) {
		return l.store.UpsertSupplierPreference(ctx, choice, at)
	})
	metrics.PreferenceWritesTotal.WithLabelValues("supplier", metrics.Result(err)).Inc()
	if err != nil {
		l.logger.Error("supplier preference write failed",
			zap.String("item", choice.OriginalItem),
			zap.Int("supplierId", choice.SupplierID),
			zap.Error(err),
		)
		return internal.SupplierPreference{}, err
	}
	return pref, nil
}

// RecordSupplierChoices applies all choices in one transaction or none of them.
func (l *Learner) RecordSupplierChoices(ctx context.Context, choices []internal.SupplierChoice) error {
	for i, c := range choices {
		if strings.TrimSpace(c.OriginalItem) == "" || c.SupplierID <= 0 {
			return fmt.Errorf("%w: choice %d needs an item and a supplier", common.ErrInvalidOrderItem, i+1)
		}
	}
	if len(choices) == 0 {
		return nil
	}

	at := l.now()
	_, err := common.Call(ctx, l.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, l.store.BatchUpsertSupplierPreferences(ctx, choices, at)
	})
	metrics.PreferenceWritesTotal.WithLabelValues("batch", metrics.Result(err)).Inc()
	if err != nil {
		l.logger.Error("batch supplier preference write failed", zap.Int("choices", len(choices)), zap.Error(err))
		return err
	}
	l.logger.Info("supplier preferences recorded", zap.Int("choices", len(choices)))
	return nil
}

// Cleanup removes preferences chosen at most once and unused for days.
func (l *Learner) Cleanup(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := l.now().Add(-time.Duration(days) * 24 * time.Hour)
	removed, err := common.Call(ctx, l.timeout, func(ctx context.Context) (int64, error) {
		return l.store.CleanupPreferences(ctx, cutoff)
	})
	metrics.PreferenceWritesTotal.WithLabelValues("cleanup", metrics.Result(err)).Inc()
	if err != nil {
		l.logger.Error("preference cleanup failed", zap.Int("days", days), zap.Error(err))
		return 0, err
	}
	l.logger.Info("preference cleanup done", zap.Int("days", days), zap.Int64("removed", removed))
	return removed, nil
}

func (l *Learner) resolveSupplier(ctx context.Context, o Override) (*int, error) {
	if o.SupplierID == nil && strings.TrimSpace(o.SupplierName) == "" {
		return nil, nil
	}
	if l.suppliers == nil {
		return o.SupplierID, nil
	}

	var (
		s   internal.Supplier
		ok  bool
		err error
	)
	if o.SupplierID != nil {
		s, ok, err = l.suppliers.GetSupplierByID(ctx, *o.SupplierID)
	} else {
		s, ok, err = l.suppliers.GetSupplierByName(ctx, o.SupplierName)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	if !ok {
		if o.SupplierID != nil {
			return nil, fmt.Errorf("%w: id %d", ErrUnknownSupplier, *o.SupplierID)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownSupplier, o.SupplierName)
	}
	return &s.ID, nil
}
