package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"picklist/internal"
)

type ImportStore interface {
	EnsureSupplier(ctx context.Context, name string) (internal.Supplier, error)
	EnsureProduct(ctx context.Context, description string) (internal.Product, error)
	UpsertProducts(ctx context.Context, products []internal.Product) error
	UpsertOffers(ctx context.Context, offers []internal.SupplierPriceOffer) error
}

type ImportResult struct {
	Rows    int `json:"rows"`
	Offers  int `json:"offers"`
	Skipped int `json:"skipped"`
}

type priceListColumns struct {
	productID, description, supplier, price int
}

// ImportXLSX loads a supplier price list. The first sheet needs description,
// supplier and price columns; a product id column is optional, and rows
// without one are matched to products by description.
func ImportXLSX(ctx context.Context, store ImportStore, path string) (ImportResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return ImportResult{}, err
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return ImportResult{}, err
	}
	if len(rows) == 0 {
		return ImportResult{}, nil
	}

	cols, ok := inferPriceListColumns(rows[0])
	if !ok {
		return ImportResult{}, fmt.Errorf("price list %s: header needs description, supplier and price columns", path)
	}

	var (
		res      ImportResult
		products []internal.Product
		offers   []internal.SupplierPriceOffer
	)
	for _, row := range rows[1:] {
		res.Rows++
		desc := cell(row, cols.description)
		supplierName := cell(row, cols.supplier)
		price, okPrice := parsePrice(cell(row, cols.price))
		if desc == "" || supplierName == "" || !okPrice {
			res.Skipped++
			continue
		}

		s, err := store.EnsureSupplier(ctx, supplierName)
		if err != nil {
			return res, err
		}

		var product internal.Product
		if id, err := strconv.Atoi(cell(row, cols.productID)); err == nil && id > 0 {
			product = internal.Product{ID: id, Description: desc}
			products = append(products, product)
		} else {
			product, err = store.EnsureProduct(ctx, desc)
			if err != nil {
				return res, err
			}
		}

		offers = append(offers, internal.SupplierPriceOffer{
			SupplierID:   s.ID,
			SupplierName: s.Name,
			ProductID:    product.ID,
			Price:        price,
		})
	}

	if err := store.UpsertProducts(ctx, products); err != nil {
		return res, err
	}
	if err := store.UpsertOffers(ctx, offers); err != nil {
		return res, err
	}
	res.Offers = len(offers)
	return res, nil
}

func inferPriceListColumns(header []string) (priceListColumns, bool) {
	cols := priceListColumns{productID: -1, description: -1, supplier: -1, price: -1}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case cols.productID < 0 && (h == "id" || h == "product_id" || h == "product id" || h == "sku id"):
			cols.productID = i
		case cols.supplier < 0 && (strings.Contains(h, "supplier") || strings.Contains(h, "vendor")):
			cols.supplier = i
		case cols.price < 0 && (strings.Contains(h, "price") || strings.Contains(h, "cost")):
			cols.price = i
		case cols.description < 0 && (strings.Contains(h, "description") || strings.Contains(h, "product") || strings.Contains(h, "name")):
			cols.description = i
		}
	}
	return cols, cols.description >= 0 && cols.supplier >= 0 && cols.price >= 0
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
