package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picklist/internal"
	"picklist/internal/catalog"
	"picklist/internal/matching"
	"picklist/internal/storage"
	"picklist/internal/supplier"
)

func row(productID int, desc string, supplierID int, supplierName string, price float64) internal.CatalogRow {
	return internal.CatalogRow{
		Product: internal.Product{ID: productID, Description: desc},
		Offer:   internal.SupplierPriceOffer{SupplierID: supplierID, SupplierName: supplierName, Price: price},
	}
}

type itemPrefs map[string]internal.ItemPreference

func (p itemPrefs) GetItemPreference(_ context.Context, userID, item string) (internal.ItemPreference, bool, error) {
	pref, ok := p[userID+"|"+item]
	return pref, ok, nil
}

type supplierPrefs map[string]internal.SupplierPreference

func (p supplierPrefs) GetSupplierPreference(_ context.Context, item string, _ *int) (internal.SupplierPreference, bool, error) {
	pref, ok := p[item]
	return pref, ok, nil
}

type countingOffers struct {
	mu    sync.Mutex
	src   matching.OfferSource
	calls map[int]int
}

func (c *countingOffers) GetOffersForProduct(ctx context.Context, productID int) ([]internal.SupplierPriceOffer, error) {
	c.mu.Lock()
	c.calls[productID]++
	c.mu.Unlock()
	return c.src.GetOffersForProduct(ctx, productID)
}

type runLog struct {
	runs []storage.RunRecord
}

func (r *runLog) InsertRun(_ context.Context, run storage.RunRecord) error {
	r.runs = append(r.runs, run)
	return nil
}

// explodingStrategy panics or fails for items mentioning "boom" and defers
// everything else to the next strategy.
type explodingStrategy struct {
	err error
}

func (explodingStrategy) Name() string { return "exploding" }

func (s explodingStrategy) Candidates(_ context.Context, normalized string) ([]internal.MatchCandidate, error) {
	if !strings.Contains(normalized, "boom") {
		return nil, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	panic("matcher exploded")
}

type fixture struct {
	index     *catalog.Index
	offers    *countingOffers
	itemPrefs itemPrefs
	suppPrefs supplierPrefs
	runs      *runLog
	lead      []matching.Strategy
	opts      Options
}

func newFixture(rows ...internal.CatalogRow) *fixture {
	idx := catalog.BuildIndex(rows)
	return &fixture{
		index:     idx,
		offers:    &countingOffers{src: idx, calls: map[int]int{}},
		itemPrefs: itemPrefs{},
		suppPrefs: supplierPrefs{},
		runs:      &runLog{},
		opts:      Options{CacheSize: 16},
	}
}

func (f *fixture) service() *ProcessingService {
	opts := matching.DefaultOptions()
	chain := append(append([]matching.Strategy{}, f.lead...), matching.DefaultChain(f.index, opts)...)
	matcher := matching.NewMatcherWithStrategies(opts, nil, chain...)
	resolver := matching.NewResolver(f.itemPrefs, f.index, f.offers, matcher, time.Second, nil)
	engine := supplier.NewEngine(f.suppPrefs, f.offers, nil, time.Second, nil)
	return NewProcessingService(resolver, engine, f.offers, f.runs, f.opts, nil)
}

func TestEndToEndExample(t *testing.T) {
	f := newFixture(
		row(7, "OPI GelColor - Big Apple Red 0.5 oz", 3, "Nail Supply Co", 12.99),
		row(9, "Acetone Remover 16 oz", 3, "Nail Supply Co", 5.00),
	)

	pl := f.service().Generate(context.Background(), "u1", []internal.OrderItem{
		{RawText: "OPI Gel Color - Red Hot", Quantity: 2},
	})

	require.Len(t, pl.Entries, 1)
	e := pl.Entries[0]
	require.NotNil(t, e.UnitPrice)
	assert.Equal(t, 12.99, *e.UnitPrice)
	assert.Equal(t, "25.98", e.TotalPrice)
	assert.False(t, e.IsPreference)
	require.NotNil(t, e.MatchedProduct)
	assert.Equal(t, 7, e.MatchedProduct.ID)
	assert.Equal(t, "Nail Supply Co", e.SupplierDecision.SupplierName)
	assert.Equal(t, internal.ReasonBestPrice, e.SupplierDecision.Reason)

	assert.NotEmpty(t, pl.BatchID)
	assert.Equal(t, 25.98, pl.Summary.TotalPrice)
	assert.Equal(t, map[string]float64{"Nail Supply Co": 25.98}, pl.Summary.SupplierTotals)
	assert.Equal(t, 1, pl.Summary.SystemOptimized)
	assert.InDelta(t, 0.7, pl.Summary.AverageConfidence, 1e-9)

	require.Len(t, f.runs.runs, 1)
	assert.Equal(t, pl.BatchID, f.runs.runs[0].BatchID)
	assert.Equal(t, "api", f.runs.runs[0].Source)
}

func TestBackOrderExample(t *testing.T) {
	f := newFixture(row(9, "Acetone Remover 16 oz", 3, "Nail Supply Co", 5.00))

	pl := f.service().Generate(context.Background(), "u1", []internal.OrderItem{
		{RawText: "Unicorn Sparkle Dust", Quantity: 1},
	})

	e := pl.Entries[0]
	assert.Equal(t, internal.BackOrderSupplier, e.SupplierDecision.SupplierName)
	assert.Nil(t, e.UnitPrice)
	assert.Nil(t, e.MatchedProduct)
	assert.Equal(t, "N/A", e.TotalPrice)
	assert.Empty(t, e.Error)
	assert.Equal(t, 1, pl.Summary.BackOrdered)
	assert.Zero(t, pl.Summary.Failed)
	assert.InDelta(t, 0.4, pl.Summary.AverageConfidence, 1e-9)
}

func TestLearnedProductBeatsCheaperMatch(t *testing.T) {
	f := newFixture(
		row(1, "Acetone Remover Professional", 1, "Acme", 10.00),
		row(2, "Acetone Remover", 2, "Beta", 5.00),
	)

	auto := f.service().Generate(context.Background(), "u1", []internal.OrderItem{{RawText: "Acetone Remover", Quantity: 1}})
	require.NotNil(t, auto.Entries[0].UnitPrice)
	assert.Equal(t, 5.00, *auto.Entries[0].UnitPrice)

	f.itemPrefs["u1|acetone remover"] = internal.ItemPreference{UserID: "u1", OriginalItem: "Acetone Remover", ProductID: 1, Frequency: 4}
	pl := f.service().Generate(context.Background(), "u1", []internal.OrderItem{{RawText: "Acetone Remover", Quantity: 1}})

	e := pl.Entries[0]
	assert.True(t, e.IsPreference)
	assert.Equal(t, 4, e.PreferenceFrequency)
	assert.Equal(t, matching.StrategyPreference, e.MatchStrategy)
	require.NotNil(t, e.UnitPrice)
	assert.Equal(t, 10.00, *e.UnitPrice)
	assert.Equal(t, 1, pl.Summary.PreferenceMatched)
}

func TestLearnedSupplierBeatsCheaperOffer(t *testing.T) {
	f := newFixture(
		row(5, "Dotting Tool Set", 1, "Acme", 3.00),
		row(5, "Dotting Tool Set", 2, "Beta", 4.50),
	)
	f.suppPrefs["dotting tool set"] = internal.SupplierPreference{SupplierID: 2, Frequency: 2, LastUsed: time.Now()}

	pl := f.service().Generate(context.Background(), "u1", []internal.OrderItem{{RawText: "Dotting Tool Set", Quantity: 3}})

	e := pl.Entries[0]
	assert.Equal(t, "Beta", e.SupplierDecision.SupplierName)
	assert.True(t, e.SupplierDecision.IsUserPreferred)
	assert.Equal(t, internal.ConfidenceHigh, e.SupplierDecision.Confidence)
	assert.Equal(t, "13.50", e.TotalPrice)
	assert.Equal(t, 1, pl.Summary.PreferenceMatched)
}

func TestOneFailingItemDoesNotAbortBatch(t *testing.T) {
	for name, lead := range map[string]matching.Strategy{
		"panic": explodingStrategy{},
		"error": explodingStrategy{err: errors.New("search backend down")},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(
				row(1, "Acetone Remover 16 oz", 1, "Acme", 5.00),
				row(2, "Cuticle Oil Almond", 1, "Acme", 7.25),
			)
			f.lead = []matching.Strategy{lead}

			pl := f.service().Generate(context.Background(), "u1", []internal.OrderItem{
				{RawText: "Acetone Remover 16 oz", Quantity: 1},
				{RawText: "boom widget", Quantity: 1},
				{RawText: "Cuticle Oil Almond", Quantity: 2},
			})

			require.Len(t, pl.Entries, 3)
			bad := pl.Entries[1]
			assert.Equal(t, internal.BackOrderSupplier, bad.SupplierDecision.SupplierName)
			assert.Equal(t, "Error", bad.Price)
			assert.Equal(t, "N/A", bad.TotalPrice)
			assert.NotEmpty(t, bad.Error)
			assert.Contains(t, bad.SupplierDecision.Reason, "boom widget")

			assert.Equal(t, "5.00", pl.Entries[0].TotalPrice)
			assert.Equal(t, "14.50", pl.Entries[2].TotalPrice)
			assert.Equal(t, 1, pl.Summary.Failed)
			assert.Equal(t, 19.50, pl.Summary.TotalPrice)
		})
	}
}

func TestNonPositiveQuantityIsItemError(t *testing.T) {
	f := newFixture(row(1, "Acetone Remover 16 oz", 1, "Acme", 5.00))

	pl := f.service().Generate(context.Background(), "u1", []internal.OrderItem{{RawText: "Acetone Remover", Quantity: 0}})
	assert.Equal(t, "Error", pl.Entries[0].Price)
	assert.Contains(t, pl.Entries[0].Error, "quantity")
}

func TestWorkersKeepInputOrder(t *testing.T) {
	f := newFixture(
		row(1, "Acetone Remover 16 oz", 1, "Acme", 5.00),
		row(2, "Cuticle Oil Almond", 1, "Acme", 7.25),
	)
	f.opts.Workers = 4

	var items []internal.OrderItem
	for i := 0; i < 12; i++ {
		text := "Acetone Remover 16 oz"
		if i%2 == 1 {
			text = "Cuticle Oil Almond"
		}
		items = append(items, internal.OrderItem{LineNo: i + 1, RawText: text, Quantity: 1})
	}

	pl := f.service().Generate(context.Background(), "u1", items)
	require.Len(t, pl.Entries, len(items))
	for i, e := range pl.Entries {
		assert.Equal(t, i+1, e.OrderItem.LineNo)
		require.NotNil(t, e.MatchedProduct)
		assert.Equal(t, 1+i%2, e.MatchedProduct.ID)
	}
	assert.Equal(t, 1, f.offers.calls[1])
	assert.Equal(t, 1, f.offers.calls[2])
}

func TestOfferCacheIsScopedToOneBatch(t *testing.T) {
	f := newFixture(row(1, "Acetone Remover 16 oz", 1, "Acme", 5.00))
	svc := f.service()
	items := []internal.OrderItem{
		{RawText: "Acetone Remover 16 oz", Quantity: 1},
		{RawText: "acetone remover 16 oz [promo]", Quantity: 2},
	}

	svc.Generate(context.Background(), "u1", items)
	assert.Equal(t, 1, f.offers.calls[1])

	svc.Generate(context.Background(), "u1", items)
	assert.Equal(t, 2, f.offers.calls[1])
}

func TestFIFOCacheEvictsOldest(t *testing.T) {
	c := NewFIFOCache(2)
	c.Put(1, []internal.SupplierPriceOffer{{SupplierID: 1}})
	c.Put(2, nil)
	c.Put(1, []internal.SupplierPriceOffer{{SupplierID: 9}})
	c.Put(3, nil)

	_, ok := c.Get(1)
	assert.False(t, ok)
	_, ok = c.Get(2)
	assert.True(t, ok)
	_, ok = c.Get(3)
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestSummarizeSkipsUnparsableTotals(t *testing.T) {
	entries := []internal.PicklistEntry{
		{OrderItem: internal.OrderItem{Quantity: 2}, TotalPrice: "10.00", SupplierDecision: internal.SupplierDecision{SupplierName: "Acme", Confidence: internal.ConfidenceMedium}},
		{OrderItem: internal.OrderItem{Quantity: 1}, TotalPrice: "2.50", IsPreference: true, SupplierDecision: internal.SupplierDecision{SupplierName: "Acme", Confidence: internal.ConfidenceHigh}},
		{OrderItem: internal.OrderItem{Quantity: 3}, TotalPrice: "N/A", SupplierDecision: supplier.BackOrder(internal.ReasonNoSuppliers)},
		{OrderItem: internal.OrderItem{Quantity: 1}, Price: "Error", TotalPrice: "N/A", Error: "boom", SupplierDecision: supplier.BackOrder("Error: boom")},
	}

	s := Summarize(entries)
	assert.Equal(t, 4, s.TotalItems)
	assert.Equal(t, 7, s.TotalQuantity)
	assert.Equal(t, 12.50, s.TotalPrice)
	assert.Equal(t, map[string]float64{"Acme": 12.50}, s.SupplierTotals)
	assert.Equal(t, 1, s.PreferenceMatched)
	assert.Equal(t, 1, s.SystemOptimized)
	assert.Equal(t, 2, s.BackOrdered)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, (0.7+1.0+0.4+0.4)/4, s.AverageConfidence, 1e-9)

	empty := Summarize(nil)
	assert.Zero(t, empty.AverageConfidence)
	assert.NotNil(t, empty.SupplierTotals)
}
