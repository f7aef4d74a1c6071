// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// FormatPrice formats a price with precision chosen by magnitude.
func FormatPrice(price float64) string {
	abs := math.Abs(price)
	switch {
	case abs == 0:
		return "0.00"
	case abs < 1:
		return fmt.Sprintf("%.5f", price)
	case abs < 100:
		return fmt.Sprintf("%.4f", price)
	default:
		return groupThousands(fmt.Sprintf("%.2f", price))
	}
}

// groupThousands inserts commas into the integer part of a formatted number.
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, decPart, hasDec := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasDec {
		return sign + b.String() + "." + decPart
	}
	return sign + b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatCompact formats a volume in compact form (K/M/B).
func FormatCompact(amount float64) string {
	abs := math.Abs(amount)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", amount/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", amount/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fK", amount/1e3)
	default:
		return fmt.Sprintf("%.0f", amount)
	}
}

// FormatRiskReward formats a risk/reward ratio as "1:2.50".
func FormatRiskReward(rr float64) string {
	return fmt.Sprintf("1:%.2f", rr)
}
