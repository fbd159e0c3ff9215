package orders

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

type CommissionType string

const (
	CommissionPercentage CommissionType = "percentage"
	CommissionFixed      CommissionType = "fixed"
)

// CommissionConfig is the per-product commission setting. A zero or
// negative Value means "not configured".
type CommissionConfig struct {
	Type  CommissionType
	Value decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

var whitespace = regexp.MustCompile(`\s+`)

// ParseAmount reads "R$ 1.234,56", "1234,56" or "1234" style values: '.'
// groups thousands and ',' separates decimals. Anything else is zero.
func ParseAmount(s string) decimal.Decimal {
	s = whitespace.ReplaceAllString(s, "")
	if len(s) >= 2 && strings.EqualFold(s[:2], "R$") {
		s = s[2:]
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ComputeCommission sums the seller commission of items. Items without an
// explicit positive config earn fallbackRate percent of their line value.
func ComputeCommission(items []Item, configs map[string]CommissionConfig, fallbackRate decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		quantity := it.Quantity.Decimal()
		kind, value := CommissionPercentage, fallbackRate
		if cfg, ok := configs[it.ID]; ok && cfg.Value.IsPositive() {
			kind, value = cfg.Type, cfg.Value
			if kind == "" {
				kind = CommissionPercentage
			}
		}

		switch kind {
		case CommissionFixed:
			total = total.Add(value.Mul(quantity))
		case CommissionPercentage:
			line := it.Price.Decimal().Mul(quantity)
			total = total.Add(line.Mul(value).Div(hundred))
		}
	}
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}
