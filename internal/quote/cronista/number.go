package cronista

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var errEmptyNumber = errors.New("empty number")

// localized rewrites "$ 1.234,56" into "1234.56": the currency sign and
// thousands dots are dropped and the decimal comma becomes a dot.
var localized = strings.NewReplacer("$", "", ".", "", ",", ".", "\u00a0", " ")

// ParseNumber converts a price published in Argentine notation.
func ParseNumber(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(localized.Replace(s))
	if clean == "" {
		return decimal.Zero, errEmptyNumber
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(clean, " ", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse number %q: %w", s, err)
	}
	return d, nil
}

// ParsePercent converts a variation such as "+0,52%" or "-1,3 %".
func ParsePercent(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(strings.ReplaceAll(s, "%", ""))
	clean = strings.TrimPrefix(clean, "+")
	d, err := ParseNumber(clean)
	if err != nil && !errors.Is(err, errEmptyNumber) {
		return decimal.Zero, fmt.Errorf("parse percent %q: %w", s, err)
	}
	return d, err
}
