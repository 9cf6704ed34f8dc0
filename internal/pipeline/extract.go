package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"picklist/internal"
	"picklist/internal/util"
)

var (
	ignorePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^--+$`),
		regexp.MustCompile(`(?i)^(hi|hello|dear|hey)\b`),
		regexp.MustCompile(`(?i)^(thanks|thank you|regards|best regards|kind regards|cheers|sent from)\b`),
		regexp.MustCompile(`(?i)^(tel|phone|e-?mail|subject|from|to)[:\s]`),
		regexp.MustCompile(`(?i)^http`),
		regexp.MustCompile(`(?i)^(please|could you|can you)\b`),
	}
	listMarker = regexp.MustCompile(`^(?:[-*•]+|\d{1,3}[.)])\s+`)
	unitWords  = regexp.MustCompile(`(?i)\b(pcs|pc|ea|each|units?)\b`)
	separators = regexp.MustCompile(`[;|,\t]+$|^[;|,\t]+`)
	spaces     = regexp.MustCompile(`\s+`)
	hasLetter  = regexp.MustCompile(`\pL`)
)

var ErrUnsupportedInput = errors.New("unsupported input type")

// InputTypeFromPath guesses the ingestion type from a file extension.
func InputTypeFromPath(path string) internal.ItemSource {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return internal.SourceCSV
	case ".html", ".htm":
		return internal.SourceHTML
	case ".xlsx", ".xls":
		return internal.SourceXLSX
	case ".pdf":
		return internal.SourcePDF
	case ".eml":
		return internal.SourceEmail
	default:
		return internal.SourceText
	}
}

// ExtractItems parses an order document into order items numbered from 1.
func ExtractItems(inputType internal.ItemSource, input []byte) ([]internal.OrderItem, error) {
	var (
		items []internal.OrderItem
		err   error
	)
	switch inputType {
	case internal.SourceText:
		items = parseText(internal.SourceText, string(input))
	case internal.SourceCSV:
		items, err = parseCSV(input)
	case internal.SourceHTML:
		items = parseHTML(string(input))
	case internal.SourceXLSX:
		items, err = parseXLSX(input)
	case internal.SourcePDF:
		items, err = parsePDF(input)
	case internal.SourceEmail:
		items, err = parseEmail(input)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInput, inputType)
	}
	if err != nil {
		return nil, err
	}

	items = dedupeItems(items)
	for i := range items {
		items[i].LineNo = i + 1
	}
	return items, nil
}

func parseText(source internal.ItemSource, text string) []internal.OrderItem {
	out := []internal.OrderItem{}
	for _, line := range splitLines(text) {
		if item, ok := lineToItem(source, line); ok {
			out = append(out, item)
		}
	}
	return out
}

// lineToItem splits one free-text line into item text and quantity.
func lineToItem(source internal.ItemSource, rawLine string) (internal.OrderItem, bool) {
	compact := normalizeSpaces(rawLine)
	if compact == "" || isLikelyNoise(compact) || !hasLetter.MatchString(compact) {
		return internal.OrderItem{}, false
	}
	compact = listMarker.ReplaceAllString(compact, "")

	parsed := util.ParseQty(compact)
	name := compact
	if parsed.QtyRaw != nil {
		if idx := strings.LastIndex(name, *parsed.QtyRaw); idx >= 0 {
			name = name[:idx] + " " + name[idx+len(*parsed.QtyRaw):]
		}
	}
	name = unitWords.ReplaceAllString(name, " ")
	name = normalizeSpaces(name)
	name = strings.TrimSpace(separators.ReplaceAllString(name, ""))
	if util.RuneLen(name) < 2 {
		name = compact
	}

	return internal.OrderItem{
		Source:   source,
		RawText:  name,
		Quantity: quantityOrDefault(parsed),
	}, true
}

func quantityOrDefault(p util.ParsedQty) int {
	if p.Qty == nil {
		return 1
	}
	return *p.Qty
}

func parseCSV(content []byte) ([]internal.OrderItem, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return tableToItems(internal.SourceCSV, records), nil
}

func parseHTML(html string) []internal.OrderItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	out := []internal.OrderItem{}
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		var rows [][]string
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, normalizeSpaces(cell.Text()))
			})
			rows = append(rows, cells)
		})
		out = append(out, tableToItems(internal.SourceHTML, rows)...)
	})
	if len(out) > 0 {
		return out
	}

	doc.Find("script,style").Remove()
	var text strings.Builder
	doc.Find("p,li,div").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Filter("p,li,div,ul,ol,table").Length() == 0 {
			text.WriteString(s.Text())
			text.WriteString("\n")
		}
	})
	if text.Len() == 0 {
		text.WriteString(doc.Text())
	}
	return parseText(internal.SourceHTML, text.String())
}

func parseXLSX(content []byte) ([]internal.OrderItem, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []internal.OrderItem{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		out = append(out, tableToItems(internal.SourceXLSX, rows)...)
	}
	return out, nil
}

func parsePDF(content []byte) ([]internal.OrderItem, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	out := []internal.OrderItem{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		out = append(out, parseText(internal.SourcePDF, text)...)
	}
	return out, nil
}

// parseEmail reads the text body, HTML tables and spreadsheet, CSV or PDF
// attachments of a MIME message.
func parseEmail(raw []byte) ([]internal.OrderItem, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	items := []internal.OrderItem{}
	if env.HTML != "" {
		items = append(items, parseHTML(env.HTML)...)
	}
	if len(items) == 0 && env.Text != "" {
		items = append(items, parseText(internal.SourceEmail, env.Text)...)
	}

	for _, att := range env.Attachments {
		var (
			extra []internal.OrderItem
			err   error
		)
		switch InputTypeFromPath(att.FileName) {
		case internal.SourceXLSX:
			extra, err = parseXLSX(att.Content)
		case internal.SourceCSV:
			extra, err = parseCSV(att.Content)
		case internal.SourcePDF:
			extra, err = parsePDF(att.Content)
		default:
			continue
		}
		if err != nil {
			continue
		}
		items = append(items, extra...)
	}

	for i := range items {
		items[i].Source = internal.SourceEmail
	}
	return items, nil
}

// tableToItems maps rows to items using a header row when one names the
// item and quantity columns, else the first two columns.
func tableToItems(source internal.ItemSource, rows [][]string) []internal.OrderItem {
	nameIdx, qtyIdx := -1, -1
	out := []internal.OrderItem{}
	for i, row := range rows {
		cells := normalizeCells(row)
		if len(cells) == 0 || strings.Join(cells, "") == "" {
			continue
		}
		if i < 3 && nameIdx < 0 {
			if n, q := inferColumns(cells); n >= 0 {
				nameIdx, qtyIdx = n, q
				continue
			}
		}

		n, q := nameIdx, qtyIdx
		if n < 0 {
			n, q = 0, 1
		}
		name := pickCell(cells, n, 0)
		if name == "" || !hasLetter.MatchString(name) || isLikelyNoise(name) {
			continue
		}
		qtyCell := pickCell(cells, q, -1)
		if qtyCell == "" && len(cells) == 1 {
			item, ok := lineToItem(source, name)
			if ok {
				out = append(out, item)
			}
			continue
		}
		qty, ok := util.ParseQtyValue(qtyCell)
		if !ok {
			qty = quantityOrDefault(util.ParseQty(qtyCell))
		}
		out = append(out, internal.OrderItem{
			Source:   source,
			RawText:  name,
			Quantity: qty,
		})
	}
	return out
}

func inferColumns(headers []string) (nameIdx, qtyIdx int) {
	norm := make([]string, 0, len(headers))
	for _, h := range headers {
		norm = append(norm, strings.ToLower(h))
	}
	nameIdx = findHeaderIndex(norm, []string{"item", "product", "description", "name", "article"})
	qtyIdx = findHeaderIndex(norm, []string{"qty", "quantity", "amount", "count"})
	if nameIdx < 0 && qtyIdx >= 0 {
		nameIdx = 0
		if qtyIdx == 0 {
			nameIdx = 1
		}
	}
	return nameIdx, qtyIdx
}

func findHeaderIndex(headers []string, probes []string) int {
	for i, h := range headers {
		for _, probe := range probes {
			if strings.Contains(h, probe) {
				return i
			}
		}
	}
	return -1
}

func pickCell(cells []string, idx int, fallback int) string {
	if idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	if fallback >= 0 && fallback < len(cells) {
		return strings.TrimSpace(cells[fallback])
	}
	return ""
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeSpaces(input string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(input, " "))
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, normalizeSpaces(c))
	}
	return out
}

func isLikelyNoise(line string) bool {
	for _, re := range ignorePatterns {
		if re.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

// dedupeItems collapses repeated lines with the same text and quantity.
func dedupeItems(items []internal.OrderItem) []internal.OrderItem {
	seen := map[string]struct{}{}
	out := make([]internal.OrderItem, 0, len(items))
	for _, item := range items {
		key := fmt.Sprintf("%s|%d", strings.ToLower(item.RawText), item.Quantity)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// ReadAllLimited reads r up to limit bytes; larger inputs are rejected.
func ReadAllLimited(r io.Reader, limit int64) ([]byte, error) {
	blob, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(blob)) > limit {
		return nil, fmt.Errorf("input exceeds %d bytes", limit)
	}
	return blob, nil
}
