package models

import "time"

// Plan is the subscription tier an account is on. The plan determines
// the percentage discount applied to verification pricing.
type Plan string

const (
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanTurbo      Plan = "turbo"
	PlanEnterprise Plan = "enterprise"
)

// Valid reports whether p is a known subscription plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanStarter, PlanPro, PlanTurbo, PlanEnterprise:
		return true
	}
	return false
}

// Account holds the credit balance and subscription state for a user.
// The balance is stored in integer cents so Mongo $inc updates stay
// atomic; it is mutated only through ledger transactions.
type Account struct {
	ID                   string    `bson:"_id" json:"id"`
	Plan                 Plan      `bson:"plan" json:"plan"`
	BalanceCents         int64     `bson:"balance_cents" json:"balance_cents"`
	MonthlyVerifications int       `bson:"monthly_verifications" json:"monthly_verifications"`
	MonthKey             string    `bson:"month_key" json:"month_key"`
	CreatedAt            time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time `bson:"updated_at" json:"updated_at"`
}

// MonthKeyFor returns the calendar-month key (YYYY-MM) used to reset
// the monthly verification counter.
func MonthKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01")
}
