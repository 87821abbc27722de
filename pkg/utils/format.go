// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"
)

// FormatCurrency formats a number as New Taiwan dollars with thousands
// separators.
func FormatCurrency(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")
	result := "NT$" + groupThousands(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var groups []string
	for n > 3 {
		groups = append([]string{s[n-3:]}, groups...)
		s = s[:n-3]
		n = len(s)
	}
	return s + "," + strings.Join(groups, ",")
}

// FormatPercent formats a ratio as a signed percentage.
func FormatPercent(ratio float64) string {
	sign := ""
	if ratio > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, ratio*100)
}

// FormatPnL formats profit and loss with an explicit sign.
func FormatPnL(pnl float64) string {
	formatted := FormatCurrency(pnl)
	if pnl > 0 {
		return "+" + formatted
	}
	return formatted
}

// FormatQuantity formats a share count with thousands separators.
func FormatQuantity(qty int64) string {
	if qty < 0 {
		return "-" + groupThousands(fmt.Sprintf("%d", -qty))
	}
	return groupThousands(fmt.Sprintf("%d", qty))
}
