package pipeline

import (
	"strings"

	"picklist/internal"
	"picklist/internal/util"
)

type DetectResult struct {
	IsOrder bool
	Score   float64
	Reason  string
}

var detectKeywords = []string{"order", "purchase", "po ", "restock", "reorder", "qty", "quantity", "please send", "need"}

// DetectOrder scores whether a message looks like a product order. Keywords
// in the subject weigh double; quantity-like lines, tables and spreadsheet
// or PDF attachments add to the score.
func DetectOrder(subject, text, html string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)
	html = strings.ToLower(html)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) || strings.Contains(html, kw) {
			score += 0.1
		}
	}

	qtyHits := 0
	for _, line := range splitLines(text) {
		if util.ParseQty(line).Qty != nil {
			qtyHits++
		}
	}
	if qtyHits >= 2 {
		score += 0.4
	} else if qtyHits == 1 {
		score += 0.2
	}

	for _, name := range attachmentNames {
		if isOrderAttachment(name) {
			score += 0.25
			break
		}
	}

	if strings.Contains(html, "<table") {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	isOrder := score >= 0.45
	reason := "rules_negative"
	if isOrder {
		reason = "rules_positive"
	}

	return DetectResult{IsOrder: isOrder, Score: score, Reason: reason}
}

func isOrderAttachment(name string) bool {
	switch InputTypeFromPath(name) {
	case internal.SourceXLSX, internal.SourceCSV, internal.SourcePDF:
		return true
	}
	return false
}
