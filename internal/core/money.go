// Package core provides the transaction record model and the value helpers
// shared by every other package: amount parsing, currency and date
// formatting, and the category registry.
package core

import (
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultCurrency is the symbol used when none is configured.
const DefaultCurrency = "₹"

var amountPrinter = message.NewPrinter(language.MustParse("en-IN"))

// ParseAmount converts a user-entered decimal string to a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs,
// exponents, grouping characters and zero are rejected.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	if parts[0] == "" && (len(parts) == 1 || parts[1] == "") {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// LenientAmount is the defensive read used on feed data: anything that is
// not a positive number counts as zero.
func LenientAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		return decimal.Zero
	}
	return d
}

// FormatCurrency renders the absolute value with two decimals and en-IN
// digit grouping, e.g. "₹12,34,567.50". An empty symbol uses
// DefaultCurrency. The digits are exact at any magnitude.
func FormatCurrency(amount decimal.Decimal, symbol string) string {
	if symbol == "" {
		symbol = DefaultCurrency
	}
	whole, frac, _ := strings.Cut(amount.Abs().StringFixed(2), ".")
	return symbol + groupWhole(whole) + "." + frac
}

var maxInt64 = decimal.NewFromInt(math.MaxInt64)

// groupWhole applies en-IN grouping to a string of digits.
func groupWhole(digits string) string {
	n, err := decimal.NewFromString(digits)
	if err == nil && n.LessThanOrEqual(maxInt64) {
		return amountPrinter.Sprintf("%d", n.IntPart())
	}
	// beyond int64: last three digits, then pairs
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var b strings.Builder
	lead := len(head) % 2
	if lead == 0 {
		lead = 2
	}
	b.WriteString(head[:lead])
	for i := lead; i < len(head); i += 2 {
		b.WriteByte(',')
		b.WriteString(head[i : i+2])
	}
	b.WriteByte(',')
	b.WriteString(tail)
	return b.String()
}
