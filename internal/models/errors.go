package models

import "errors"

// Error constants for ledger and lifecycle operations
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrVerificationNotFound = errors.New("verification not found")
	ErrRentalNotFound       = errors.New("rental not found")
	ErrTerminalState        = errors.New("entity is in a terminal state")
	ErrRefundExceedsCharge  = errors.New("refund would exceed total charged")
	ErrInvalidPlan          = errors.New("invalid subscription plan")
	ErrInvalidCapability    = errors.New("invalid capability")
	ErrInvalidAddon         = errors.New("invalid addon")
	ErrInvalidRental        = errors.New("invalid rental parameters")
)

// Error constants for the provider client. Retry handling is internal
// to the client; callers receiving one of these saw the retry budget
// exhausted (or a terminal response) and should treat the operation as
// failed.
var (
	ErrProviderAuth        = errors.New("provider authentication failed")
	ErrProviderRateLimited = errors.New("provider rate limited")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderFailure     = errors.New("provider request failed")
)

// ProviderError reports whether err belongs to the provider error
// taxonomy. Lifecycle managers map any of these to a terminal failed
// transition with a full refund.
func ProviderError(err error) bool {
	return errors.Is(err, ErrProviderAuth) ||
		errors.Is(err, ErrProviderRateLimited) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrProviderFailure)
}
