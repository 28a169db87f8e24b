package models

import "time"

// BreakerSnapshot is the persisted view of a circuit breaker for one
// provider endpoint group. The in-memory breaker is authoritative; the
// snapshot exists for operational visibility across instances.
type BreakerSnapshot struct {
	Endpoint            string    `bson:"_id" json:"endpoint"`
	State               string    `bson:"state" json:"state"`
	ConsecutiveFailures int       `bson:"consecutive_failures" json:"consecutive_failures"`
	Successes           int       `bson:"successes" json:"successes"`
	LastFailureAt       time.Time `bson:"last_failure_at,omitempty" json:"last_failure_at,omitempty"`
	UpdatedAt           time.Time `bson:"updated_at" json:"updated_at"`
}
