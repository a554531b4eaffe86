package calls

import "time"

// Normalized carrier events. The webhook layer (internal/telephony) is the
// only place that handles untyped payloads; by the time an event reaches this
// package it is fully validated.

// EventStatus is the carrier's reported call status on a lifecycle event.
type EventStatus string

const (
	EventStarted    EventStatus = "started"
	EventRinging    EventStatus = "ringing"
	EventAnswered   EventStatus = "answered"
	EventCompleted  EventStatus = "completed"
	EventBusy       EventStatus = "busy"
	EventFailed     EventStatus = "failed"
	EventUnanswered EventStatus = "unanswered"
	EventCancelled  EventStatus = "cancelled"
)

// StatusEvent is a normalized call-status webhook event.
// Correlated to a Call by ProviderCallID.
type StatusEvent struct {
	ProviderCallID string
	Status         EventStatus
	Timestamp      time.Time

	// DurationSeconds is optional; carriers include it on completion events.
	DurationSeconds *int
}

// RecordingEvent is a normalized recording-completion webhook event.
// Correlated to a Call by ProviderConversationID, which is a different
// identifier than the one the call was created with. Recordings finalize
// after call teardown, so this event may target a terminal call.
type RecordingEvent struct {
	ProviderConversationID string
	URL                    string
	StartTime              time.Time
	EndTime                time.Time
}
