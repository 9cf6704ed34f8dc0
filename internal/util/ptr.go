package util

import (
	"math"
	"strconv"
)

func StringPtr(v string) *string { return &v }

func FloatPtr(v float64) *float64 { return &v }

func IntPtr(v int) *int { return &v }

// RoundCents rounds a money amount to two decimals.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func FormatMoney(v float64) string {
	return strconv.FormatFloat(RoundCents(v), 'f', 2, 64)
}
