package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Minimum billing unit for rentals. A rental released inside its first
// hour still pays for that hour, including an immediate release.
const minBillingUnit = time.Hour

var half = decimal.NewFromFloat(0.5)

// RentalRefund computes the partial refund, in cents, for an early
// rental release:
//
//	refund = 50% * unused_fraction * original_cost
//
// with elapsed time floored at one billing unit. A fully consumed
// rental refunds nothing.
func RentalRefund(costCents int64, total, elapsed time.Duration) int64 {
	if total <= 0 || costCents <= 0 {
		return 0
	}
	if elapsed < minBillingUnit {
		elapsed = minBillingUnit
	}
	if elapsed >= total {
		return 0
	}

	unused := decimal.NewFromInt(int64(total - elapsed)).
		Div(decimal.NewFromInt(int64(total)))

	return Cents(half.Mul(unused).Mul(FromCents(costCents)))
}

// VerificationRefund computes the refund for a verification that
// failed, expired, or was cancelled before completion: always the full
// charge.
func VerificationRefund(costCents int64) int64 {
	if costCents < 0 {
		return 0
	}
	return costCents
}
