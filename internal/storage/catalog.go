package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"picklist/internal"
)

func (d *DB) UpsertSuppliers(ctx context.Context, suppliers []internal.Supplier) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO suppliers (id, name, updated_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := toMillis(time.Now())
	for _, s := range suppliers {
		if _, err := stmt.ExecContext(ctx, s.ID, strings.TrimSpace(s.Name), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) UpsertProducts(ctx context.Context, products []internal.Product) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO products (id, description, updated_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET description = excluded.description, updated_at = excluded.updated_at
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := toMillis(time.Now())
	for _, p := range products {
		if _, err := stmt.ExecContext(ctx, p.ID, p.Description, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpsertOffers stores one price per (product, supplier); a later price replaces the earlier one.
func (d *DB) UpsertOffers(ctx context.Context, offers []internal.SupplierPriceOffer) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO supplier_prices (product_id, supplier_id, price, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(product_id, supplier_id) DO UPDATE SET price = excluded.price, updated_at = excluded.updated_at
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := toMillis(time.Now())
	for _, o := range offers {
		if _, err := stmt.ExecContext(ctx, o.ProductID, o.SupplierID, o.Price, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListCatalogRows returns every product joined with each of its offers.
// Products without offers are not listed.
func (d *DB) ListCatalogRows(ctx context.Context) ([]internal.CatalogRow, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT p.id, p.description, s.id, s.name, sp.price
FROM supplier_prices sp
JOIN products p ON p.id = sp.product_id
JOIN suppliers s ON s.id = sp.supplier_id
ORDER BY p.id, sp.price, s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CatalogRow
	for rows.Next() {
		var r internal.CatalogRow
		if err := rows.Scan(&r.Product.ID, &r.Product.Description, &r.Offer.SupplierID, &r.Offer.SupplierName, &r.Offer.Price); err != nil {
			return nil, err
		}
		r.Offer.ProductID = r.Product.ID
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetOffersForProduct returns the product's offers cheapest first.
func (d *DB) GetOffersForProduct(ctx context.Context, productID int) ([]internal.SupplierPriceOffer, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT s.id, s.name, sp.product_id, sp.price
FROM supplier_prices sp
JOIN suppliers s ON s.id = sp.supplier_id
WHERE sp.product_id = ?
ORDER BY sp.price ASC, s.id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.SupplierPriceOffer{}
	for rows.Next() {
		var o internal.SupplierPriceOffer
		if err := rows.Scan(&o.SupplierID, &o.SupplierName, &o.ProductID, &o.Price); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (d *DB) GetProduct(ctx context.Context, productID int) (internal.Product, bool, error) {
	var p internal.Product
	err := d.conn.QueryRowContext(ctx, `SELECT id, description FROM products WHERE id = ?`, productID).Scan(&p.ID, &p.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.Product{}, false, nil
	}
	if err != nil {
		return internal.Product{}, false, err
	}
	return p, true, nil
}

func (d *DB) GetSupplierByName(ctx context.Context, name string) (internal.Supplier, bool, error) {
	return d.scanSupplier(d.conn.QueryRowContext(ctx,
		`SELECT id, name FROM suppliers WHERE name = ? COLLATE NOCASE`, strings.TrimSpace(name)))
}

func (d *DB) GetSupplierByID(ctx context.Context, id int) (internal.Supplier, bool, error) {
	return d.scanSupplier(d.conn.QueryRowContext(ctx, `SELECT id, name FROM suppliers WHERE id = ?`, id))
}

func (d *DB) scanSupplier(row *sql.Row) (internal.Supplier, bool, error) {
	var s internal.Supplier
	err := row.Scan(&s.ID, &s.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.Supplier{}, false, nil
	}
	if err != nil {
		return internal.Supplier{}, false, err
	}
	return s, true, nil
}

func (d *DB) CountProducts(ctx context.Context) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n)
	return n, err
}

// EnsureSupplier returns the supplier with this name, creating it when unknown.
func (d *DB) EnsureSupplier(ctx context.Context, name string) (internal.Supplier, error) {
	name = strings.TrimSpace(name)
	if s, ok, err := d.GetSupplierByName(ctx, name); err != nil || ok {
		return s, err
	}
	res, err := d.conn.ExecContext(ctx, `INSERT INTO suppliers (name, updated_at) VALUES (?, ?)`, name, toMillis(time.Now()))
	if err != nil {
		return internal.Supplier{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return internal.Supplier{}, err
	}
	return internal.Supplier{ID: int(id), Name: name}, nil
}

// EnsureProduct returns the product with this exact description (case-insensitive),
// creating it when unknown.
func (d *DB) EnsureProduct(ctx context.Context, description string) (internal.Product, error) {
	description = strings.TrimSpace(description)
	var p internal.Product
	err := d.conn.QueryRowContext(ctx,
		`SELECT id, description FROM products WHERE description = ? COLLATE NOCASE ORDER BY id LIMIT 1`, description,
	).Scan(&p.ID, &p.Description)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return internal.Product{}, err
	}
	res, err := d.conn.ExecContext(ctx, `INSERT INTO products (description, updated_at) VALUES (?, ?)`, description, toMillis(time.Now()))
	if err != nil {
		return internal.Product{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return internal.Product{}, err
	}
	return internal.Product{ID: int(id), Description: description}, nil
}
