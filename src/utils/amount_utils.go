package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a feed amount into a decimal quantized to cents.
// Thousands separators are tolerated.
func ParseAmount(raw string) (decimal.Decimal, error) {
	normalized := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return d.Round(2), nil
}
