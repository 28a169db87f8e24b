package models

import "time"

// RentalScope distinguishes rentals locked to one service from
// general-purpose rentals that receive traffic for any service.
type RentalScope string

const (
	RentalScopeService RentalScope = "service"
	RentalScopeGeneral RentalScope = "general"
)

// RentalMode selects the activity model of a rented number.
type RentalMode string

const (
	RentalModeAlwaysActive RentalMode = "always_active"
	RentalModeManual       RentalMode = "manual"
)

// RentalStatus is the lifecycle state of a rental. A successful
// auto-renewal re-enters active with a new expiry; the extension itself
// is recorded as a RentalEventExtended event and a new charge
// transaction, never as a mutation of the original cost.
type RentalStatus string

const (
	RentalStatusActive   RentalStatus = "active"
	RentalStatusReleased RentalStatus = "released"
	RentalStatusExpired  RentalStatus = "expired"
)

// RentalEventExtended marks an auto-renewal extension on the rental's
// last_event field.
const RentalEventExtended = "extended"

// Terminal reports whether the status is final.
func (s RentalStatus) Terminal() bool {
	return s == RentalStatusReleased || s == RentalStatusExpired
}

// Rental is a time-boxed lease of a phone number. CostCents is the
// original charge, fixed at creation; each extension adds to
// ExtensionCostCents via its own transaction.
type Rental struct {
	ID                 string       `bson:"_id" json:"id"`
	AccountID          string       `bson:"account_id" json:"account_id"`
	PhoneNumber        string       `bson:"phone_number" json:"phone_number"`
	ReservationID      string       `bson:"reservation_id" json:"reservation_id"`
	Service            string       `bson:"service,omitempty" json:"service,omitempty"`
	Scope              RentalScope  `bson:"scope" json:"scope"`
	Mode               RentalMode   `bson:"mode" json:"mode"`
	DurationHours      int          `bson:"duration_hours" json:"duration_hours"`
	AutoExtend         bool         `bson:"auto_extend" json:"auto_extend"`
	BulkGroup          string       `bson:"bulk_group,omitempty" json:"bulk_group,omitempty"`
	Status             RentalStatus `bson:"status" json:"status"`
	CostCents          int64        `bson:"cost_cents" json:"cost_cents"`
	ExtensionCostCents int64        `bson:"extension_cost_cents" json:"extension_cost_cents"`
	Extensions         int          `bson:"extensions" json:"extensions"`
	LastEvent          string       `bson:"last_event,omitempty" json:"last_event,omitempty"`
	Warned             bool         `bson:"warned" json:"warned"`
	StartedAt          time.Time    `bson:"started_at" json:"started_at"`
	ExpiresAt          time.Time    `bson:"expires_at" json:"expires_at"`
	ReleasedAt         *time.Time   `bson:"released_at,omitempty" json:"released_at,omitempty"`
	CreatedAt          time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time    `bson:"updated_at" json:"updated_at"`
}

// Duration returns the original rental duration.
func (r *Rental) Duration() time.Duration {
	return time.Duration(r.DurationHours) * time.Hour
}
