package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"picklist/internal"
)

// anyProduct is stored for supplier preferences that apply to every product.
const anyProduct = 0

func itemKey(originalItem string) string {
	return strings.ToLower(originalItem)
}

func (d *DB) GetItemPreference(ctx context.Context, userID, originalItem string) (internal.ItemPreference, bool, error) {
	var (
		p                   internal.ItemPreference
		lastUsed, createdAt int64
	)
	err := d.conn.QueryRowContext(ctx, `
SELECT user_id, original_item, product_id, frequency, last_used, created_at
FROM item_preferences WHERE user_id = ? AND item_key = ?
`, userID, itemKey(originalItem)).Scan(&p.UserID, &p.OriginalItem, &p.ProductID, &p.Frequency, &lastUsed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.ItemPreference{}, false, nil
	}
	if err != nil {
		return internal.ItemPreference{}, false, err
	}
	p.LastUsed = fromMillis(lastUsed)
	p.CreatedAt = fromMillis(createdAt)
	return p, true, nil
}

// UpsertItemPreference inserts the mapping with frequency 1 or, for a known
// (user, item), points it at productID and increments frequency in one statement.
func (d *DB) UpsertItemPreference(ctx context.Context, userID, originalItem string, productID int, at time.Time) (internal.ItemPreference, error) {
	p := internal.ItemPreference{UserID: userID, OriginalItem: originalItem, ProductID: productID}
	var lastUsed, createdAt int64
	err := d.conn.QueryRowContext(ctx, `
INSERT INTO item_preferences (user_id, item_key, original_item, product_id, frequency, last_used, created_at)
VALUES (?, ?, ?, ?, 1, ?, ?)
ON CONFLICT(user_id, item_key) DO UPDATE SET
  original_item = excluded.original_item,
  product_id = excluded.product_id,
  frequency = item_preferences.frequency + 1,
  last_used = MAX(item_preferences.last_used, excluded.last_used)
RETURNING frequency, last_used, created_at
`, userID, itemKey(originalItem), originalItem, productID, toMillis(at), toMillis(at)).Scan(&p.Frequency, &lastUsed, &createdAt)
	if err != nil {
		return internal.ItemPreference{}, err
	}
	p.LastUsed = fromMillis(lastUsed)
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}

// GetSupplierPreference prefers a row for the exact product over a
// product-agnostic one; within each, the most chosen then most recent wins.
func (d *DB) GetSupplierPreference(ctx context.Context, originalItem string, productID *int) (internal.SupplierPreference, bool, error) {
	pid := anyProduct
	if productID != nil {
		pid = *productID
	}

	var (
		p                   internal.SupplierPreference
		storedPID           int
		lastUsed, createdAt int64
	)
	err := d.conn.QueryRowContext(ctx, `
SELECT original_item, product_id, supplier_id, frequency, last_used, created_at
FROM supplier_preferences
WHERE item_key = ? AND product_id IN (?, 0)
ORDER BY CASE WHEN product_id = ? THEN 0 ELSE 1 END, frequency DESC, last_used DESC, supplier_id ASC
LIMIT 1
`, itemKey(originalItem), pid, pid).Scan(&p.OriginalItem, &storedPID, &p.SupplierID, &p.Frequency, &lastUsed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.SupplierPreference{}, false, nil
	}
	if err != nil {
		return internal.SupplierPreference{}, false, err
	}
	if storedPID != anyProduct {
		p.ProductID = &storedPID
	}
	p.LastUsed = fromMillis(lastUsed)
	p.CreatedAt = fromMillis(createdAt)
	return p, true, nil
}

const upsertSupplierPreference = `
INSERT INTO supplier_preferences (item_key, original_item, product_id, supplier_id, frequency, last_used, created_at)
VALUES (?, ?, ?, ?, 1, ?, ?)
ON CONFLICT(item_key, product_id, supplier_id) DO UPDATE SET
  original_item = excluded.original_item,
  frequency = supplier_preferences.frequency + 1,
  last_used = MAX(supplier_preferences.last_used, excluded.last_used)
RETURNING frequency, last_used, created_at
`

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (d *DB) UpsertSupplierPreference(ctx context.Context, choice internal.SupplierChoice, at time.Time) (internal.SupplierPreference, error) {
	return upsertSupplierPref(ctx, d.conn, choice, at)
}

// BatchUpsertSupplierPreferences applies every choice or, on any failure, none.
func (d *DB) BatchUpsertSupplierPreferences(ctx context.Context, choices []internal.SupplierChoice, at time.Time) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range choices {
		if _, err := upsertSupplierPref(ctx, tx, c, at); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertSupplierPref(ctx context.Context, q queryRower, choice internal.SupplierChoice, at time.Time) (internal.SupplierPreference, error) {
	pid := anyProduct
	if choice.ProductID != nil {
		pid = *choice.ProductID
	}
	p := internal.SupplierPreference{
		OriginalItem: choice.OriginalItem,
		ProductID:    choice.ProductID,
		SupplierID:   choice.SupplierID,
	}
	var lastUsed, createdAt int64
	err := q.QueryRowContext(ctx, upsertSupplierPreference,
		itemKey(choice.OriginalItem), choice.OriginalItem, pid, choice.SupplierID, toMillis(at), toMillis(at),
	).Scan(&p.Frequency, &lastUsed, &createdAt)
	if err != nil {
		return internal.SupplierPreference{}, err
	}
	p.LastUsed = fromMillis(lastUsed)
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}

// CleanupPreferences deletes preferences chosen at most once and last used
// before olderThan, returning how many rows were removed from both tables.
func (d *DB) CleanupPreferences(ctx context.Context, olderThan time.Time) (int64, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := toMillis(olderThan)
	var removed int64
	for _, table := range []string{"item_preferences", "supplier_preferences"} {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE frequency <= 1 AND last_used < ?`, cutoff)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		removed += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}
