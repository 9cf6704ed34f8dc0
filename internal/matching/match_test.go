package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picklist/internal"
	"picklist/internal/catalog"
	"picklist/internal/common"
)

func row(productID int, desc string, supplierID int, supplier string, price float64) internal.CatalogRow {
	return internal.CatalogRow{
		Product: internal.Product{ID: productID, Description: desc},
		Offer:   internal.SupplierPriceOffer{SupplierID: supplierID, SupplierName: supplier, ProductID: productID, Price: price},
	}
}

// recordingStore counts calls per search operation and can fail on demand.
type recordingStore struct {
	CatalogStore
	calls map[string]int
	fail  map[string]error
}

func newRecordingStore(rows ...internal.CatalogRow) *recordingStore {
	return &recordingStore{CatalogStore: catalog.BuildIndex(rows), calls: map[string]int{}, fail: map[string]error{}}
}

func (s *recordingStore) SearchExactSubstring(ctx context.Context, text string) ([]internal.CatalogRow, error) {
	s.calls[StrategyExactSubstring]++
	if err := s.fail[StrategyExactSubstring]; err != nil {
		return nil, err
	}
	return s.CatalogStore.SearchExactSubstring(ctx, text)
}

func (s *recordingStore) SearchBrandCategory(ctx context.Context, brand string, filter []string) ([]internal.CatalogRow, error) {
	s.calls[StrategyBrandCategory]++
	return s.CatalogStore.SearchBrandCategory(ctx, brand, filter)
}

func (s *recordingStore) SearchWordSet(ctx context.Context, words []string) ([]internal.RankedRow, error) {
	s.calls[StrategyWordSet]++
	return s.CatalogStore.SearchWordSet(ctx, words)
}

func (s *recordingStore) SearchSingleWord(ctx context.Context, words []string) ([]internal.CatalogRow, error) {
	s.calls[StrategySingleWord]++
	return s.CatalogStore.SearchSingleWord(ctx, words)
}

func TestExactSubstringShortCircuits(t *testing.T) {
	store := newRecordingStore(
		row(1, "Essie Gel Couture Ballet Nudes", 1, "Acme", 11.00),
		row(2, "Essie Gel Couture Ballet Nudes Kit", 2, "Beta", 15.00),
	)
	m := NewMatcher(store, DefaultOptions(), nil)

	got, err := m.Match(context.Background(), "Essie Gel Couture Ballet Nudes")
	require.NoError(t, err)
	assert.Equal(t, StrategyExactSubstring, got.StrategyName)
	assert.Equal(t, 10.0, got.MatchScore)
	assert.Equal(t, 1, store.calls[StrategyExactSubstring])
	assert.Zero(t, store.calls[StrategyBrandCategory])
	assert.Zero(t, store.calls[StrategyWordSet])
	assert.Zero(t, store.calls[StrategySingleWord])
}

func TestEqualScoreCheaperWins(t *testing.T) {
	store := newRecordingStore(
		row(1, "CND Shellac Rose Bud", 1, "Acme", 14.50),
		row(2, "CND Shellac Rose Bud Large", 2, "Beta", 9.25),
		row(1, "CND Shellac Rose Bud", 3, "Gamma", 13.00),
	)
	m := NewMatcher(store, DefaultOptions(), nil)

	got, err := m.Match(context.Background(), "cnd shellac rose bud")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Product.ID)
	assert.Equal(t, 9.25, got.ChosenOffer.Price)
}

func TestBrandCategoryExample(t *testing.T) {
	store := newRecordingStore(
		row(7, "OPI GelColor - Big Apple Red 0.5 oz", 3, "Nail Supply Co", 12.99),
		row(8, "OPI Dotting Tool", 3, "Nail Supply Co", 4.00),
	)
	m := NewMatcher(store, DefaultOptions(), nil)

	got, err := m.Match(context.Background(), "OPI Gel Color - Red Hot")
	require.NoError(t, err)
	assert.Equal(t, StrategyBrandCategory, got.StrategyName)
	assert.Equal(t, 7, got.Product.ID)
	assert.Equal(t, 12.99, got.ChosenOffer.Price)
	assert.Zero(t, store.calls[StrategyWordSet])
}

func TestWordSetHighestRankWins(t *testing.T) {
	store := newRecordingStore(
		row(1, "Cuticle Pusher Stainless", 1, "Acme", 3.00),
		row(2, "Stainless Cuticle Nipper Pusher", 1, "Acme", 8.00),
	)
	m := NewMatcher(store, DefaultOptions(), nil)

	got, err := m.Match(context.Background(), "xx stainless cuticle nipper")
	require.NoError(t, err)
	assert.Equal(t, StrategyWordSet, got.StrategyName)
	assert.Equal(t, 2, got.Product.ID)
}

func TestSingleWordSkipsStopWords(t *testing.T) {
	store := newRecordingStore(
		row(1, "Acetone Remover 16 oz", 1, "Acme", 5.00),
		row(2, "Nail Glue Brush-On", 1, "Acme", 2.00),
	)
	m := NewMatcher(store, DefaultOptions(), nil)

	got, err := m.Match(context.Background(), "zz acetone glue")
	require.NoError(t, err)
	assert.Equal(t, StrategySingleWord, got.StrategyName)
	assert.Equal(t, 1, got.Product.ID)
	assert.Equal(t, 1.0, got.MatchScore)
}

func TestShortInputIsInvalid(t *testing.T) {
	store := newRecordingStore(row(1, "AB Gel", 1, "Acme", 1))
	m := NewMatcher(store, DefaultOptions(), nil)

	_, err := m.Match(context.Background(), "  [promo] ab ")
	require.ErrorIs(t, err, common.ErrInvalidOrderItem)
	assert.Empty(t, store.calls)
}

func TestNoMatch(t *testing.T) {
	m := NewMatcher(newRecordingStore(row(1, "Acetone Remover", 1, "Acme", 5)), DefaultOptions(), nil)
	_, err := m.Match(context.Background(), "Unicorn Sparkle Dust")
	assert.ErrorIs(t, err, common.ErrNoMatchFound)
}

func TestStoreFailureIsStoreUnavailable(t *testing.T) {
	store := newRecordingStore(row(1, "Acetone Remover", 1, "Acme", 5))
	store.fail[StrategyExactSubstring] = errors.New("connection reset")
	m := NewMatcher(store, DefaultOptions(), nil)

	_, err := m.Match(context.Background(), "Acetone Remover")
	require.ErrorIs(t, err, common.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), StrategyExactSubstring)
}

func TestMatchIsDeterministic(t *testing.T) {
	store := newRecordingStore(
		row(5, "Gelish Soak Off Gel Polish Red", 2, "Beta", 10.00),
		row(4, "Gelish Soak Off Gel Polish Red", 1, "Acme", 10.00),
		row(6, "Gelish Soak Off Gel Polish Red Mini", 3, "Gamma", 10.00),
	)
	m := NewMatcher(store, DefaultOptions(), nil)

	first, err := m.Match(context.Background(), "Gelish Soak Off Gel Polish Red")
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := m.Match(context.Background(), "Gelish Soak Off Gel Polish Red")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, 4, first.Product.ID)
}

func TestClassify(t *testing.T) {
	opts := DefaultOptions()

	cat, _ := opts.Classify("opi gel color red")
	assert.Equal(t, CategoryPolish, cat)
	cat, _ = opts.Classify("kolinsky brush #8")
	assert.Equal(t, CategoryTool, cat)
	cat, _ = opts.Classify("gel brush")
	assert.Equal(t, CategoryPolish, cat)
	cat, filter := opts.Classify("acetone remover")
	assert.Equal(t, CategoryNone, cat)
	assert.Nil(t, filter)
}

type stubStrategy struct {
	name  string
	out   []internal.MatchCandidate
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Candidates(context.Context, string) ([]internal.MatchCandidate, error) {
	s.calls++
	return s.out, nil
}

func TestCustomChainOrder(t *testing.T) {
	first := &stubStrategy{name: "first"}
	second := &stubStrategy{name: "second", out: []internal.MatchCandidate{{Product: internal.Product{ID: 9}, StrategyName: "second"}}}
	third := &stubStrategy{name: "third", out: []internal.MatchCandidate{{Product: internal.Product{ID: 3}}}}
	m := NewMatcherWithStrategies(DefaultOptions(), nil, first, second, third)

	got, err := m.Match(context.Background(), "anything goes")
	require.NoError(t, err)
	assert.Equal(t, 9, got.Product.ID)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, third.calls)
}
