package catalog

import (
	"context"
	"sort"
	"strings"

	"picklist/internal"
	"picklist/internal/util"
)

// Index is an in-memory snapshot of catalog rows answering the matcher's
// search operations. It is read-only after BuildIndex and safe for concurrent use.
type Index struct {
	rows              []internal.CatalogRow
	lowerDescByRow    []string
	productsByID      map[int]internal.Product
	offersByProductID map[int][]internal.SupplierPriceOffer
	suppliersByID     map[int]internal.Supplier
	suppliersByName   map[string]internal.Supplier
}

func BuildIndex(rows []internal.CatalogRow) *Index {
	idx := &Index{
		rows:              make([]internal.CatalogRow, 0, len(rows)),
		lowerDescByRow:    make([]string, 0, len(rows)),
		productsByID:      map[int]internal.Product{},
		offersByProductID: map[int][]internal.SupplierPriceOffer{},
		suppliersByID:     map[int]internal.Supplier{},
		suppliersByName:   map[string]internal.Supplier{},
	}

	for _, r := range rows {
		r.Offer.ProductID = r.Product.ID
		idx.rows = append(idx.rows, r)
		idx.lowerDescByRow = append(idx.lowerDescByRow, strings.ToLower(r.Product.Description))
		idx.productsByID[r.Product.ID] = r.Product
		idx.offersByProductID[r.Product.ID] = append(idx.offersByProductID[r.Product.ID], r.Offer)

		s := internal.Supplier{ID: r.Offer.SupplierID, Name: r.Offer.SupplierName}
		idx.suppliersByID[s.ID] = s
		idx.suppliersByName[strings.ToLower(s.Name)] = s
	}

	for id := range idx.offersByProductID {
		sortOffers(idx.offersByProductID[id])
	}
	return idx
}

func (idx *Index) Len() int { return len(idx.rows) }

func (idx *Index) SearchExactSubstring(_ context.Context, text string) ([]internal.CatalogRow, error) {
	needle := strings.ToLower(text)
	if needle == "" {
		return nil, nil
	}
	return idx.filter(func(desc string) bool { return strings.Contains(desc, needle) }), nil
}

func (idx *Index) SearchBrandCategory(_ context.Context, brand string, categoryFilter []string) ([]internal.CatalogRow, error) {
	brand = strings.ToLower(brand)
	if brand == "" {
		return nil, nil
	}
	return idx.filter(func(desc string) bool {
		if !strings.Contains(desc, brand) {
			return false
		}
		return len(categoryFilter) == 0 || util.ContainsAny(desc, categoryFilter)
	}), nil
}

// SearchWordSet ranks rows by the length-weighted share of words found in the
// description. Rows need at least two overlapping words.
func (idx *Index) SearchWordSet(_ context.Context, words []string) ([]internal.RankedRow, error) {
	total := 0
	for _, w := range words {
		total += util.RuneLen(w)
	}
	if total == 0 {
		return nil, nil
	}
	minOverlap := 2
	if len(words) < minOverlap {
		minOverlap = len(words)
	}

	out := []internal.RankedRow{}
	for i, desc := range idx.lowerDescByRow {
		overlap, weight := 0, 0
		for _, w := range words {
			if strings.Contains(desc, strings.ToLower(w)) {
				overlap++
				weight += util.RuneLen(w)
			}
		}
		if overlap < minOverlap {
			continue
		}
		out = append(out, internal.RankedRow{CatalogRow: idx.rows[i], Rank: float64(weight) / float64(total)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].Offer.Price < out[j].Offer.Price
	})
	return out, nil
}

func (idx *Index) SearchSingleWord(_ context.Context, words []string) ([]internal.CatalogRow, error) {
	lower := make([]string, 0, len(words))
	for _, w := range words {
		lower = append(lower, strings.ToLower(w))
	}
	return idx.filter(func(desc string) bool { return util.ContainsAny(desc, lower) }), nil
}

func (idx *Index) GetOffersForProduct(_ context.Context, productID int) ([]internal.SupplierPriceOffer, error) {
	offers := idx.offersByProductID[productID]
	out := make([]internal.SupplierPriceOffer, len(offers))
	copy(out, offers)
	return out, nil
}

func (idx *Index) GetProduct(_ context.Context, productID int) (internal.Product, bool, error) {
	p, ok := idx.productsByID[productID]
	return p, ok, nil
}

func (idx *Index) GetSupplierByName(_ context.Context, name string) (internal.Supplier, bool, error) {
	s, ok := idx.suppliersByName[strings.ToLower(strings.TrimSpace(name))]
	return s, ok, nil
}

func (idx *Index) GetSupplierByID(_ context.Context, id int) (internal.Supplier, bool, error) {
	s, ok := idx.suppliersByID[id]
	return s, ok, nil
}

func (idx *Index) filter(keep func(desc string) bool) []internal.CatalogRow {
	out := []internal.CatalogRow{}
	for i, desc := range idx.lowerDescByRow {
		if keep(desc) {
			out = append(out, idx.rows[i])
		}
	}
	return out
}

func sortOffers(offers []internal.SupplierPriceOffer) {
	sort.SliceStable(offers, func(i, j int) bool {
		if offers[i].Price != offers[j].Price {
			return offers[i].Price < offers[j].Price
		}
		return offers[i].SupplierID < offers[j].SupplierID
	})
}
