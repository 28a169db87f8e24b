package models

import "time"

// Capability selects the kind of verification a reservation supports.
type Capability string

const (
	CapabilitySMS   Capability = "sms"
	CapabilityVoice Capability = "voice"
)

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	return c == CapabilitySMS || c == CapabilityVoice
}

// Addon is a flat-surcharge option applied to a verification.
type Addon string

const (
	AddonAreaCode      Addon = "area_code"
	AddonCarrier       Addon = "guaranteed_carrier"
	AddonPriorityQueue Addon = "priority_queue"
)

// VerificationStatus is the lifecycle state of a verification.
// pending is the only non-terminal state.
type VerificationStatus string

const (
	VerificationStatusPending   VerificationStatus = "pending"
	VerificationStatusCompleted VerificationStatus = "completed"
	VerificationStatusCancelled VerificationStatus = "cancelled"
	VerificationStatusExpired   VerificationStatus = "expired"
	VerificationStatusFailed    VerificationStatus = "failed"
)

// Terminal reports whether the status is final. Terminal states never
// transition again.
func (s VerificationStatus) Terminal() bool {
	return s != VerificationStatusPending
}

// Verification is a single-use verification attempt against the
// external provider. Cost is computed exactly once at creation and is
// never recalculated.
type Verification struct {
	ID            string             `bson:"_id" json:"id"`
	AccountID     string             `bson:"account_id" json:"account_id"`
	Service       string             `bson:"service" json:"service"`
	Capability    Capability         `bson:"capability" json:"capability"`
	Tier          string             `bson:"tier" json:"tier"`
	Addons        []Addon            `bson:"addons,omitempty" json:"addons,omitempty"`
	CostCents     int64              `bson:"cost_cents" json:"cost_cents"`
	Status        VerificationStatus `bson:"status" json:"status"`
	PhoneNumber   string             `bson:"phone_number" json:"phone_number"`
	ReservationID string             `bson:"reservation_id" json:"reservation_id"`
	Messages      []string           `bson:"messages,omitempty" json:"messages,omitempty"`
	DeadlineAt    time.Time          `bson:"deadline_at" json:"deadline_at"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}
