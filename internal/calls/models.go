package calls

import "time"

// Call is the lifecycle record for a single carrier call leg.
//
// Lifecycle invariants:
// - Status only moves forward through the transition table in statemachine.go;
//   terminal statuses are absorbing.
// - ProviderCallID is assigned once (when the carrier accepts the call) and
//   never reassigned. ProviderConversationID is likewise immutable once set.
// - EndTime is set exactly when Status is terminal.
// - Recording.IsRecorded implies Recording.URL is non-empty.
//
// Concurrency invariant: lifecycle fields are mutated only inside the
// reconcile coordinator's per-call critical section. Version backs the
// optimistic check in Store.Save.

type Call struct {
	CallID string `json:"call_id" db:"call_id"`

	// ProviderCallID identifies the call leg at the carrier.
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`
	// ProviderConversationID is the carrier's correlation key for recordings.
	// It is a separate identifier from ProviderCallID.
	ProviderConversationID string `json:"provider_conversation_id,omitempty" db:"provider_conversation_id"`

	OwnerUserID string `json:"owner_user_id" db:"owner_user_id"`

	From string `json:"from" db:"from_number"`
	To   string `json:"to" db:"to_number"`

	Status CallStatus `json:"status" db:"status"`

	StartTime       time.Time  `json:"start_time" db:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty" db:"end_time"`
	DurationSeconds int        `json:"duration_seconds" db:"duration_seconds"`

	Recording Recording `json:"recording"`

	// LastEventAt is the timestamp of the most recently applied lifecycle
	// event. Status events carrying a strictly earlier timestamp are stale.
	LastEventAt time.Time `json:"last_event_at" db:"last_event_at"`

	Version int64 `json:"version" db:"version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Recording holds recording metadata correlated via ProviderConversationID.
// Duration is computed from the recording event's own start/end timestamps,
// not from the call's timing fields.
type Recording struct {
	URL             string `json:"url,omitempty" db:"recording_url"`
	IsRecorded      bool   `json:"is_recorded" db:"is_recorded"`
	DurationSeconds int    `json:"duration_seconds,omitempty" db:"recording_duration_seconds"`
}

type CallStatus string

const (
	StatusInitiated  CallStatus = "initiated"
	StatusRinging    CallStatus = "ringing"
	StatusInProgress CallStatus = "in_progress"
	StatusCompleted  CallStatus = "completed"
	StatusBusy       CallStatus = "busy"
	StatusFailed     CallStatus = "failed"
	StatusNoAnswer   CallStatus = "no_answer"
)

// Terminal reports whether no further lifecycle transition is permitted
// out of this status.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusBusy, StatusFailed, StatusNoAnswer:
		return true
	default:
		return false
	}
}
