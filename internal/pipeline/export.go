package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/xuri/excelize/v2"

	"picklist/internal"
)

const (
	picklistSheet = "Picklist"
	summarySheet  = "Summary"
)

var exportHeaders = []string{
	"line_no", "item", "quantity",
	"product_id", "product", "match_strategy", "is_preference",
	"supplier", "unit_price", "total_price",
	"reason", "confidence", "preference_strength", "alternatives", "error",
}

func entryRow(e internal.PicklistEntry) []any {
	var productID, product any = "", ""
	if e.MatchedProduct != nil {
		productID = e.MatchedProduct.ID
		product = e.MatchedProduct.Description
	}
	var unit any = e.Price
	if e.UnitPrice != nil {
		unit = *e.UnitPrice
	}
	return []any{
		e.OrderItem.LineNo, e.OrderItem.RawText, e.OrderItem.Quantity,
		productID, product, e.MatchStrategy, e.IsPreference,
		e.SupplierDecision.SupplierName, unit, e.TotalPrice,
		e.SupplierDecision.Reason, string(e.SupplierDecision.Confidence), e.SupplierDecision.PreferenceStrength,
		alternativesText(e.SupplierDecision.Alternatives), e.Error,
	}
}

func alternativesText(offers []internal.SupplierPriceOffer) string {
	out := ""
	for i, o := range offers {
		if i > 0 {
			out += "; "
		}
		out += fmt.Sprintf("%s %.2f", o.SupplierName, o.Price)
	}
	return out
}

// ExportXLSX writes the entries to a Picklist sheet and the aggregates to a Summary sheet.
func ExportXLSX(pl internal.Picklist, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), picklistSheet); err != nil {
		return err
	}
	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(picklistSheet, cell, h)
	}
	for i, e := range pl.Entries {
		for col, v := range entryRow(e) {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(picklistSheet, cell, v)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	for i, kv := range summaryRows(pl) {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), kv[1])
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

// ExportCSV writes the same entry rows as ExportXLSX, without the summary.
func ExportCSV(pl internal.Picklist, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		return err
	}
	for _, e := range pl.Entries {
		row := entryRow(e)
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = csvValue(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvValue(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func summaryRows(pl internal.Picklist) [][2]any {
	s := pl.Summary
	rows := [][2]any{
		{"batch_id", pl.BatchID},
		{"user_id", pl.UserID},
		{"generated_at", pl.GeneratedAt.Format("2006-01-02T15:04:05Z07:00")},
		{"total_items", s.TotalItems},
		{"total_quantity", s.TotalQuantity},
		{"total_price", s.TotalPrice},
		{"preference_matched", s.PreferenceMatched},
		{"system_optimized", s.SystemOptimized},
		{"back_ordered", s.BackOrdered},
		{"failed", s.Failed},
		{"average_confidence", s.AverageConfidence},
	}
	names := make([]string, 0, len(s.SupplierTotals))
	for name := range s.SupplierTotals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rows = append(rows, [2]any{"supplier: " + name, s.SupplierTotals[name]})
	}
	return rows
}
