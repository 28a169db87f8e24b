package models

import "time"

// TransactionReason classifies a ledger entry.
type TransactionReason string

const (
	ReasonTopUp              TransactionReason = "top_up"
	ReasonVerificationCharge TransactionReason = "verification_charge"
	ReasonVerificationRefund TransactionReason = "verification_refund"
	ReasonRentalCharge       TransactionReason = "rental_charge"
	ReasonRentalExtension    TransactionReason = "rental_extension"
	ReasonRentalRefund       TransactionReason = "rental_refund"
	ReasonAdjustment         TransactionReason = "adjustment"
)

// ChargeReasons are the debit reason codes; RefundReasons the credit
// reason codes that count against the refund bound for an entity.
var (
	ChargeReasons = []TransactionReason{ReasonVerificationCharge, ReasonRentalCharge, ReasonRentalExtension}
	RefundReasons = []TransactionReason{ReasonVerificationRefund, ReasonRentalRefund}
)

// Transaction is an immutable ledger entry. The sum of all transactions
// for an account equals its current balance; drift between the two is a
// bug surfaced by the ledger audit, never silently repaired.
type Transaction struct {
	ID                string            `bson:"_id" json:"id"`
	AccountID         string            `bson:"account_id" json:"account_id"`
	AmountCents       int64             `bson:"amount_cents" json:"amount_cents"` // signed: debits negative, credits positive
	Reason            TransactionReason `bson:"reason" json:"reason"`
	EntityID          string            `bson:"entity_id,omitempty" json:"entity_id,omitempty"`
	BalanceAfterCents int64             `bson:"balance_after_cents" json:"balance_after_cents"`
	CreatedAt         time.Time         `bson:"created_at" json:"created_at"`
}
