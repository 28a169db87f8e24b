package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Cents converts a decimal dollar amount to integer cents, rounding
// half away from zero. All persisted money is integer cents; decimals
// exist only inside price computation.
func Cents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromCents converts integer cents back to a decimal dollar amount.
func FromCents(c int64) decimal.Decimal {
	return decimal.NewFromInt(c).Div(hundred)
}
