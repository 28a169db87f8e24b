package provider

import (
	"context"
	"time"
)

// Endpoint groups for circuit breaking. Reservation creation, status
// polling and cancellation fail independently upstream, so each group
// gets its own breaker.
const (
	EndpointReserve = "reserve"
	EndpointStatus  = "status"
	EndpointCancel  = "cancel"
)

// Provider-side reservation states.
const (
	ReservationWaiting   = "waiting"
	ReservationCompleted = "completed"
	ReservationCancelled = "cancelled"
	ReservationExpired   = "expired"
	ReservationFailed    = "failed"
)

// TerminalReservationState reports whether the provider considers the
// reservation finished.
func TerminalReservationState(state string) bool {
	switch state {
	case ReservationCompleted, ReservationCancelled, ReservationExpired, ReservationFailed:
		return true
	}
	return false
}

// ReservationRequest is the payload for POST /v1/reservations.
type ReservationRequest struct {
	Service    string   `json:"service"`
	Capability string   `json:"capability"`
	Addons     []string `json:"addons,omitempty"`

	// Rental reservations hold the number for a duration instead of a
	// single code.
	Rental        bool `json:"rental,omitempty"`
	DurationHours int  `json:"duration_hours,omitempty"`
}

// Reservation is the provider's view of a held number.
type Reservation struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	Status      string    `json:"status"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ReservationStatus is the polled state of a reservation.
type ReservationStatus struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Messages []string `json:"messages,omitempty"`
}

// API is the upstream verification provider contract. The concrete
// client wraps it with auth, retry and circuit breaking; fakes
// implement it directly in tests.
type API interface {
	CreateReservation(ctx context.Context, req ReservationRequest) (*Reservation, error)
	GetReservation(ctx context.Context, id string) (*ReservationStatus, error)
	CancelReservation(ctx context.Context, id string) error
}
