package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	qtyWithUnit   = regexp.MustCompile(`(?i)(?:^|[^0-9.,])(\d{1,3}(?:[\s,]\d{3})+|\d+(?:[.,]\d+)?)\s*(pcs|pc|ea|each|units?|bottles?|boxes|box|packs?|sets?)\b`)
	qtyWithX      = regexp.MustCompile(`(?i)(?:^|\s)(?:x\s*(\d+)|(\d+)\s*x)(?:\s|$)`)
	qtyLabeled    = regexp.MustCompile(`(?i)\b(?:qty|quantity)\s*[:=]?\s*(\d+)`)
	qtyTrailing   = regexp.MustCompile(`(?:^|\s)(\d+)\s*$`)
	thousandComma = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
)

type ParsedQty struct {
	Qty    *int
	QtyRaw *string
}

// ParseQty finds an order quantity in a free text line. Labeled quantities win over
// unit-suffixed numbers, which win over "x3"/"3x" markers and a bare trailing number.
func ParseQty(input string) ParsedQty {
	line := strings.ReplaceAll(input, " ", " ")

	if m := qtyLabeled.FindStringSubmatch(line); len(m) > 1 {
		return toParsed(m[1], m[0])
	}
	if all := qtyWithUnit.FindAllStringSubmatch(line, -1); len(all) > 0 {
		last := all[len(all)-1]
		return toParsed(last[1], strings.TrimSpace(last[1]+" "+last[2]))
	}
	if m := qtyWithX.FindStringSubmatch(line); len(m) > 2 {
		token := m[1]
		if token == "" {
			token = m[2]
		}
		return toParsed(token, strings.TrimSpace(m[0]))
	}
	if m := qtyTrailing.FindStringSubmatch(line); len(m) > 1 {
		return toParsed(m[1], m[1])
	}
	return ParsedQty{}
}

func toParsed(token, raw string) ParsedQty {
	value, ok := parseNumericToken(token)
	if !ok || value <= 0 {
		return ParsedQty{}
	}
	qty := int(math.Ceil(value))
	raw = strings.TrimSpace(raw)
	return ParsedQty{Qty: &qty, QtyRaw: &raw}
}

func parseNumericToken(token string) (float64, bool) {
	compact := strings.ReplaceAll(strings.TrimSpace(token), " ", "")
	if thousandComma.MatchString(compact) {
		compact = strings.ReplaceAll(compact, ",", "")
	} else if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		compact = strings.ReplaceAll(compact, ",", ".")
	}
	v, err := strconv.ParseFloat(compact, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseQtyValue reads a cell holding only a number, rounding fractions up.
func ParseQtyValue(token string) (int, bool) {
	value, ok := parseNumericToken(token)
	if !ok || value <= 0 {
		return 0, false
	}
	return int(math.Ceil(value)), true
}
