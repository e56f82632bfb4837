// Package core provides the expense model and money handling utilities.
//
// This file contains functions for parsing monetary amounts from chat text
// and formatting them back for replies.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places kept for every amount.
const AmountScale = 2

// ParseAmount converts a decimal string to an exact amount.
//
// It accepts both dot (12.34) and comma (12,34) separators. Values with more
// than two fractional digits are rounded half away from zero. Negative values
// are rejected; zero is allowed.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34
//	ParseAmount("12,5")  -> 12.50
//	ParseAmount("1.005") -> 1.01
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(AmountScale), nil
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}

// Sum adds amounts starting from zero.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
