package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picklist/internal"
)

var t0 = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "picklist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedCatalog(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.UpsertSuppliers(ctx, []internal.Supplier{{ID: 1, Name: "Acme"}, {ID: 2, Name: "Beta Supply"}}))
	require.NoError(t, db.UpsertProducts(ctx, []internal.Product{{ID: 10, Description: "OPI GelColor Red"}, {ID: 11, Description: "Dotting Tool"}}))
	require.NoError(t, db.UpsertOffers(ctx, []internal.SupplierPriceOffer{
		{ProductID: 10, SupplierID: 1, Price: 12.99},
		{ProductID: 10, SupplierID: 2, Price: 11.50},
		{ProductID: 11, SupplierID: 1, Price: 4.00},
	}))
}

func TestCatalogRoundTrip(t *testing.T) {
	db := openTestDB(t)
	seedCatalog(t, db)
	ctx := context.Background()

	rows, err := db.ListCatalogRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 10, rows[0].Offer.ProductID)

	offers, err := db.GetOffersForProduct(ctx, 10)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, "Beta Supply", offers[0].SupplierName)

	require.NoError(t, db.UpsertOffers(ctx, []internal.SupplierPriceOffer{{ProductID: 10, SupplierID: 2, Price: 14.00}}))
	offers, err = db.GetOffersForProduct(ctx, 10)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, "Acme", offers[0].SupplierName)

	none, err := db.GetOffersForProduct(ctx, 99)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	p, ok, err := db.GetProduct(ctx, 11)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dotting Tool", p.Description)

	s, ok, err := db.GetSupplierByName(ctx, " beta supply ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, s.ID)

	_, ok, err = db.GetSupplierByID(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestItemPreferenceUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, ok, err := db.GetItemPreference(ctx, "u1", "opi red")
	require.NoError(t, err)
	assert.False(t, ok)

	p, err := db.UpsertItemPreference(ctx, "u1", "OPI Red", 10, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Frequency)

	p, err = db.UpsertItemPreference(ctx, "u1", "opi red", 12, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Frequency)
	assert.Equal(t, 12, p.ProductID)
	assert.Equal(t, t0, p.LastUsed)
	assert.Equal(t, t0, p.CreatedAt)

	got, ok, err := db.GetItemPreference(ctx, "u1", "Opi RED")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12, got.ProductID)
	assert.Equal(t, 2, got.Frequency)

	_, ok, err = db.GetItemPreference(ctx, "u2", "opi red")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentUpsertsCountEveryWrite(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.UpsertItemPreference(ctx, "u1", "acetone", 10, t0)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p, ok, err := db.GetItemPreference(ctx, "u1", "acetone")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, n, p.Frequency)
}

func TestSupplierPreferenceLookupOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	pid := 10

	_, err := db.UpsertSupplierPreference(ctx, internal.SupplierChoice{OriginalItem: "opi red", SupplierID: 1}, t0)
	require.NoError(t, err)
	_, err = db.UpsertSupplierPreference(ctx, internal.SupplierChoice{OriginalItem: "opi red", SupplierID: 1}, t0)
	require.NoError(t, err)

	p, ok, err := db.GetSupplierPreference(ctx, "OPI Red", &pid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, p.SupplierID)
	assert.Nil(t, p.ProductID)
	assert.Equal(t, 2, p.Frequency)

	_, err = db.UpsertSupplierPreference(ctx, internal.SupplierChoice{OriginalItem: "opi red", ProductID: &pid, SupplierID: 2}, t0)
	require.NoError(t, err)

	p, ok, err = db.GetSupplierPreference(ctx, "opi red", &pid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, p.SupplierID)
	require.NotNil(t, p.ProductID)
	assert.Equal(t, 10, *p.ProductID)

	p, ok, err = db.GetSupplierPreference(ctx, "opi red", nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, p.SupplierID)
}

func TestSupplierPreferenceTieBreaksOnRecency(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.UpsertSupplierPreference(ctx, internal.SupplierChoice{OriginalItem: "file", SupplierID: 1}, t0)
	require.NoError(t, err)
	_, err = db.UpsertSupplierPreference(ctx, internal.SupplierChoice{OriginalItem: "file", SupplierID: 2}, t0.Add(time.Hour))
	require.NoError(t, err)

	p, ok, err := db.GetSupplierPreference(ctx, "file", nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, p.SupplierID)
}

func TestBatchUpsertRollsBackOnFailure(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	choices := []internal.SupplierChoice{
		{OriginalItem: "a", SupplierID: 1},
		{OriginalItem: "b", SupplierID: 2},
	}
	require.NoError(t, db.BatchUpsertSupplierPreferences(ctx, choices, t0))

	bad := append(choices, internal.SupplierChoice{OriginalItem: "c", SupplierID: 0})
	assert.Error(t, db.BatchUpsertSupplierPreferences(ctx, bad, t0))

	p, ok, err := db.GetSupplierPreference(ctx, "b", nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, p.Frequency)

	_, ok, err = db.GetSupplierPreference(ctx, "c", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCleanupRemovesOnlyStaleSingleUse(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	old := t0.Add(-400 * 24 * time.Hour)

	_, err := db.UpsertItemPreference(ctx, "u1", "stale", 10, old)
	require.NoError(t, err)
	_, err = db.UpsertItemPreference(ctx, "u1", "fresh", 10, t0)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = db.UpsertItemPreference(ctx, "u1", "popular", 10, old)
		require.NoError(t, err)
	}
	_, err = db.UpsertSupplierPreference(ctx, internal.SupplierChoice{OriginalItem: "stale", SupplierID: 1}, old)
	require.NoError(t, err)

	removed, err := db.CleanupPreferences(ctx, t0.Add(-365*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	for item, want := range map[string]bool{"stale": false, "fresh": true, "popular": true} {
		_, ok, err := db.GetItemPreference(ctx, "u1", item)
		require.NoError(t, err)
		assert.Equal(t, want, ok, item)
	}
}

func TestRunsAndMetadata(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, ok, err := db.GetMetadata(ctx, "catalog_synced_at")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.SetMetadata(ctx, "catalog_synced_at", "x"))
	require.NoError(t, db.SetMetadata(ctx, "catalog_synced_at", "y"))
	v, ok, err := db.GetMetadata(ctx, "catalog_synced_at")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "y", v)

	run := RunRecord{
		BatchID:   "b-1",
		UserID:    "u1",
		Source:    "text",
		Items:     2,
		Summary:   internal.Summary{TotalItems: 2, TotalPrice: 25.98, SupplierTotals: map[string]float64{"Acme": 25.98}},
		Duration:  1500 * time.Millisecond,
		CreatedAt: t0,
	}
	require.NoError(t, db.InsertRun(ctx, run))
	got, ok, err := db.GetRun(ctx, "b-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, run, got)
}
