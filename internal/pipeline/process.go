package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"picklist/internal"
	"picklist/internal/common"
	"picklist/internal/logging"
	"picklist/internal/matching"
	"picklist/internal/metrics"
	"picklist/internal/storage"
	"picklist/internal/supplier"
	"picklist/internal/util"
)

type RunRecorder interface {
	InsertRun(ctx context.Context, run storage.RunRecord) error
}

type Options struct {
	// Workers > 1 processes items concurrently; results keep input order.
	Workers   int
	CacheSize int
	// NewCache overrides the per-batch offer cache.
	NewCache func() OfferCache
}

// ProcessingService turns a batch of order items into a picklist.
type ProcessingService struct {
	resolver *matching.Resolver
	engine   *supplier.Engine
	offers   matching.OfferSource
	runs     RunRecorder
	opts     Options
	now      func() time.Time
	logger   *zap.Logger
}

func NewProcessingService(resolver *matching.Resolver, engine *supplier.Engine, offers matching.OfferSource, runs RunRecorder, opts Options, logger *zap.Logger) *ProcessingService {
	if opts.NewCache == nil {
		size := opts.CacheSize
		opts.NewCache = func() OfferCache { return NewFIFOCache(size) }
	}
	return &ProcessingService{
		resolver: resolver,
		engine:   engine,
		offers:   offers,
		runs:     runs,
		opts:     opts,
		now:      time.Now,
		logger:   logging.OrNop(logger),
	}
}

// batch carries the collaborators bound to one Generate call.
type batch struct {
	id       string
	resolver *matching.Resolver
	engine   *supplier.Engine
}

// Generate processes every item and never fails as a whole: an item that
// cannot be processed becomes a back-order entry carrying the error.
func (s *ProcessingService) Generate(ctx context.Context, userID string, items []internal.OrderItem) internal.Picklist {
	start := s.now()
	offers := newCachedOffers(s.offers, s.opts.NewCache())
	b := batch{
		id:       uuid.NewString(),
		resolver: s.resolver.WithOffers(offers),
		engine:   s.engine.WithOffers(offers),
	}
	log := s.logger.With(zap.String("batchId", b.id), zap.String("userId", userID))
	log.Info("picklist generation started", zap.Int("items", len(items)), zap.Int("workers", s.opts.Workers))

	entries := make([]internal.PicklistEntry, len(items))
	if s.opts.Workers > 1 {
		var g errgroup.Group
		g.SetLimit(s.opts.Workers)
		for i, item := range items {
			g.Go(func() error {
				entries[i] = s.processItem(ctx, b, userID, i, item)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, item := range items {
			entries[i] = s.processItem(ctx, b, userID, i, item)
		}
	}

	pl := internal.Picklist{
		BatchID:     b.id,
		UserID:      userID,
		GeneratedAt: start.UTC(),
		Entries:     entries,
		Summary:     Summarize(entries),
	}

	elapsed := s.now().Sub(start)
	metrics.BatchDuration.Observe(elapsed.Seconds())
	if s.runs != nil {
		run := storage.RunRecord{
			BatchID:   b.id,
			UserID:    userID,
			Source:    batchSource(items),
			Items:     len(items),
			Summary:   pl.Summary,
			Duration:  elapsed,
			CreatedAt: start,
		}
		if err := s.runs.InsertRun(ctx, run); err != nil {
			log.Warn("run audit write failed", zap.Error(err))
		}
	}

	log.Info("picklist generated",
		zap.Int("items", pl.Summary.TotalItems),
		zap.Float64("totalPrice", pl.Summary.TotalPrice),
		zap.Int("backOrdered", pl.Summary.BackOrdered),
		zap.Int("failed", pl.Summary.Failed),
		zap.Duration("elapsed", elapsed),
	)
	return pl
}

func (s *ProcessingService) processItem(ctx context.Context, b batch, userID string, idx int, item internal.OrderItem) (entry internal.PicklistEntry) {
	defer func() {
		if r := recover(); r != nil {
			err := &common.ItemError{Index: idx, Item: item.RawText, Err: fmt.Errorf("panic: %v", r)}
			s.logger.Error("item processing panicked", zap.String("batchId", b.id), zap.Error(err))
			entry = fallbackEntry(item, err)
		}
	}()

	entry, err := s.resolveItem(ctx, b, userID, item)
	if err != nil {
		itemErr := &common.ItemError{Index: idx, Item: item.RawText, Err: err}
		s.logger.Warn("item processing failed", zap.String("batchId", b.id), zap.Error(itemErr))
		return fallbackEntry(item, itemErr)
	}

	outcome := "priced"
	if entry.SupplierDecision.IsBackOrder() {
		outcome = "back_order"
	}
	metrics.ItemsTotal.WithLabelValues(outcome).Inc()
	return entry
}

func (s *ProcessingService) resolveItem(ctx context.Context, b batch, userID string, item internal.OrderItem) (internal.PicklistEntry, error) {
	if item.Quantity <= 0 {
		return internal.PicklistEntry{}, fmt.Errorf("%w: quantity must be positive, got %d", common.ErrInvalidOrderItem, item.Quantity)
	}

	res, err := b.resolver.Resolve(ctx, userID, item.RawText)
	if err != nil {
		return internal.PicklistEntry{}, err
	}

	entry := internal.PicklistEntry{OrderItem: item}
	if res.Miss != nil {
		metrics.MatchStrategyTotal.WithLabelValues("none").Inc()
		metrics.SupplierDecisionsTotal.WithLabelValues("back_order").Inc()
		s.logger.Debug("no product resolved", zap.String("item", item.RawText), zap.Error(res.Miss))
		entry.SupplierDecision = supplier.BackOrder(internal.ReasonNoSuppliers)
		applyPricing(&entry)
		return entry, nil
	}

	metrics.MatchStrategyTotal.WithLabelValues(res.Strategy).Inc()
	entry.MatchedProduct = res.Product
	entry.MatchStrategy = res.Strategy
	entry.IsPreference = res.IsPreference
	entry.PreferenceFrequency = res.Frequency

	decision, err := b.engine.Decide(ctx, item.RawText, res.ProductID())
	if err != nil {
		return internal.PicklistEntry{}, err
	}
	entry.SupplierDecision = decision
	applyPricing(&entry)
	return entry, nil
}

func applyPricing(e *internal.PicklistEntry) {
	price := e.SupplierDecision.Price
	if price == nil {
		e.UnitPrice = nil
		e.Price = "N/A"
		e.TotalPrice = "N/A"
		return
	}
	e.UnitPrice = util.FloatPtr(*price)
	e.Price = util.FormatMoney(*price)
	e.TotalPrice = util.FormatMoney(*price * float64(e.OrderItem.Quantity))
}

func fallbackEntry(item internal.OrderItem, err error) internal.PicklistEntry {
	metrics.ItemsTotal.WithLabelValues("error").Inc()
	return internal.PicklistEntry{
		OrderItem:        item,
		SupplierDecision: supplier.BackOrder("Error: " + err.Error()),
		Price:            "Error",
		TotalPrice:       "N/A",
		Error:            err.Error(),
	}
}

func batchSource(items []internal.OrderItem) string {
	for _, it := range items {
		if it.Source != "" {
			return string(it.Source)
		}
	}
	return string(internal.SourceAPI)
}
