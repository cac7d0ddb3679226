// Package money renders whole-unit prices for display.
package money

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Format renders amount with thousands grouping and two decimals, prefixed by label:
// Format("Rs.", 1234) == "Rs. 1,234.00".
func Format(label string, amount int64) string {
	number := printer.Sprintf("%.2f", float64(amount))
	label = strings.TrimSpace(label)
	if label == "" {
		return number
	}
	return label + " " + number
}

// DiscountPercent returns the whole-percent saving of price against original, rounded half up.
// It is zero when original is not above price.
func DiscountPercent(price, original int64) int {
	if original <= 0 || original <= price {
		return 0
	}
	saved := (original - price) * 100
	return int((saved*2 + original) / (original * 2))
}
