package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	reBracketed = regexp.MustCompile(`\[[^\]]*\]`)
	reStarred   = regexp.MustCompile(`\*[^*]*\*`)
	reSpaces    = regexp.MustCompile(`\s+`)
)

// Normalize removes [..] and *..* spans, collapses whitespace and lower-cases.
// Removal runs to a fixed point so the result is stable under repeated calls.
func Normalize(input string) string {
	s := input
	for {
		next := reBracketed.ReplaceAllString(s, " ")
		next = reStarred.ReplaceAllString(next, " ")
		if next == s {
			break
		}
		s = next
	}
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// Prefix returns the first n runes of s.
func Prefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Words splits normalized text into tokens, dropping surrounding punctuation.
func Words(normalized string) []string {
	fields := strings.Fields(normalized)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `-_.,;:!?()"'/\|+&#`)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// SignificantWords keeps unique words longer than minLen that are not stop words.
func SignificantWords(normalized string, minLen int, stop map[string]struct{}) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, w := range Words(normalized) {
		if RuneLen(w) <= minLen {
			continue
		}
		if _, skip := stop[w]; skip {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func ContainsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// SplitList parses a comma separated list into trimmed lower-case entries.
func SplitList(input string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func SetOf(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
