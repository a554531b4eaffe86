package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crm-telephony/internal/calls"
)

// Carrier webhook payload normalization.
//
// This is the only place untyped carrier input is handled. Parsing is a pure
// validating projection: no I/O, no state lookups. Anything missing or
// ill-shaped is ErrMalformedEvent; retrying a malformed payload never
// succeeds, so handlers acknowledge and drop it.

// ErrMalformedEvent marks a webhook payload that cannot be normalized.
var ErrMalformedEvent = errors.New("malformed event")

type statusPayload struct {
	ProviderCallID  string `json:"providerCallId"`
	Status          string `json:"status"`
	Timestamp       string `json:"timestamp"`
	DurationSeconds *int   `json:"durationSeconds,omitempty"`
}

// eventStatuses is the closed set of carrier statuses. An unrecognized
// status is malformed, not a silent no-op: dropping it quietly would hide
// carrier contract drift.
var eventStatuses = map[string]calls.EventStatus{
	"started":    calls.EventStarted,
	"ringing":    calls.EventRinging,
	"answered":   calls.EventAnswered,
	"completed":  calls.EventCompleted,
	"busy":       calls.EventBusy,
	"failed":     calls.EventFailed,
	"unanswered": calls.EventUnanswered,
	"cancelled":  calls.EventCancelled,
}

// ParseStatusEvent normalizes a call-status webhook body.
func ParseStatusEvent(body []byte) (calls.StatusEvent, error) {
	var p statusPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return calls.StatusEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if p.ProviderCallID == "" {
		return calls.StatusEvent{}, fmt.Errorf("%w: providerCallId required", ErrMalformedEvent)
	}
	status, ok := eventStatuses[p.Status]
	if !ok {
		return calls.StatusEvent{}, fmt.Errorf("%w: unrecognized status %q", ErrMalformedEvent, p.Status)
	}
	ts, err := parseTimestamp(p.Timestamp, "timestamp")
	if err != nil {
		return calls.StatusEvent{}, err
	}
	if p.DurationSeconds != nil && *p.DurationSeconds < 0 {
		return calls.StatusEvent{}, fmt.Errorf("%w: negative durationSeconds", ErrMalformedEvent)
	}

	return calls.StatusEvent{
		ProviderCallID:  p.ProviderCallID,
		Status:          status,
		Timestamp:       ts,
		DurationSeconds: p.DurationSeconds,
	}, nil
}

type recordingPayload struct {
	ProviderConversationID string `json:"providerConversationId"`
	RecordingURL           string `json:"recordingUrl"`
	StartTime              string `json:"startTime"`
	EndTime                string `json:"endTime"`
}

// ParseRecordingEvent normalizes a recording-completion webhook body.
func ParseRecordingEvent(body []byte) (calls.RecordingEvent, error) {
	var p recordingPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return calls.RecordingEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if p.ProviderConversationID == "" {
		return calls.RecordingEvent{}, fmt.Errorf("%w: providerConversationId required", ErrMalformedEvent)
	}
	if p.RecordingURL == "" {
		return calls.RecordingEvent{}, fmt.Errorf("%w: recordingUrl required", ErrMalformedEvent)
	}
	start, err := parseTimestamp(p.StartTime, "startTime")
	if err != nil {
		return calls.RecordingEvent{}, err
	}
	end, err := parseTimestamp(p.EndTime, "endTime")
	if err != nil {
		return calls.RecordingEvent{}, err
	}
	if end.Before(start) {
		return calls.RecordingEvent{}, fmt.Errorf("%w: endTime precedes startTime", ErrMalformedEvent)
	}

	return calls.RecordingEvent{
		ProviderConversationID: p.ProviderConversationID,
		URL:                    p.RecordingURL,
		StartTime:              start,
		EndTime:                end,
	}, nil
}

func parseTimestamp(s, field string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: %s required", ErrMalformedEvent, field)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unparsable %s %q", ErrMalformedEvent, field, s)
	}
	return t.UTC(), nil
}
