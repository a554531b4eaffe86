package activity

import (
	"time"

	"crm-telephony/internal/calls"
)

// Event is an immutable, append-only call activity record.
//
// Invariants:
// - Events are never updated or deleted.
// - call_id is required; every record hangs off a call.
// - Activity logging is best-effort; critical flows must not block on it.
//
// Storage recommendation (Postgres):
// - Table call_activity with an INSERT-only policy.
// - Optional: partition by time for retention.

type Event struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	Type EventType `json:"type" db:"type"`

	// ActorUserID and ActorRole identify the operator for control actions;
	// empty for carrier-driven lifecycle changes.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	FromStatus calls.CallStatus `json:"from_status,omitempty" db:"from_status"`
	ToStatus   calls.CallStatus `json:"to_status,omitempty" db:"to_status"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeStateChange EventType = "state_change"
	EventTypeRecording   EventType = "recording"
	EventTypeControl     EventType = "control_action"
	EventTypeCallStarted EventType = "call_started"
)
