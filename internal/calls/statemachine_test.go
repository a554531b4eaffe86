package calls

import (
	"errors"
	"testing"
	"time"
)

func ts(sec int64) time.Time { return time.Unix(1700000000+sec, 0).UTC() }

func newTestCall() Call {
	return Call{
		CallID:         "c1",
		ProviderCallID: "PC1",
		OwnerUserID:    "u1",
		Status:         StatusInitiated,
		StartTime:      ts(0),
		Version:        1,
	}
}

func TestApplyStatusEvent_FullLifecycle(t *testing.T) {
	call := newTestCall()

	call, err := ApplyStatusEvent(call, StatusEvent{ProviderCallID: "PC1", Status: EventStarted, Timestamp: ts(1)})
	if err != nil {
		t.Fatalf("started: %v", err)
	}
	if call.Status != StatusRinging {
		t.Fatalf("expected ringing, got %q", call.Status)
	}

	call, err = ApplyStatusEvent(call, StatusEvent{ProviderCallID: "PC1", Status: EventAnswered, Timestamp: ts(2)})
	if err != nil {
		t.Fatalf("answered: %v", err)
	}
	if call.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %q", call.Status)
	}

	dur := 42
	call, err = ApplyStatusEvent(call, StatusEvent{ProviderCallID: "PC1", Status: EventCompleted, Timestamp: ts(44), DurationSeconds: &dur})
	if err != nil {
		t.Fatalf("completed: %v", err)
	}
	if call.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", call.Status)
	}
	if call.DurationSeconds != 42 {
		t.Fatalf("expected duration 42, got %d", call.DurationSeconds)
	}
	if call.EndTime == nil || !call.EndTime.Equal(ts(44)) {
		t.Fatalf("expected end time %v, got %v", ts(44), call.EndTime)
	}
}

func TestApplyStatusEvent_TerminalEventsEndAnyNonTerminalCall(t *testing.T) {
	terminalEvents := map[EventStatus]CallStatus{
		EventCompleted:  StatusCompleted,
		EventBusy:       StatusBusy,
		EventFailed:     StatusFailed,
		EventUnanswered: StatusNoAnswer,
		EventCancelled:  StatusFailed,
	}
	nonTerminal := []CallStatus{StatusInitiated, StatusRinging, StatusInProgress}

	for ev, want := range terminalEvents {
		for _, cur := range nonTerminal {
			call := newTestCall()
			call.Status = cur

			out, err := ApplyStatusEvent(call, StatusEvent{ProviderCallID: "PC1", Status: ev, Timestamp: ts(10)})
			if err != nil {
				t.Fatalf("%s on %s: %v", ev, cur, err)
			}
			if out.Status != want {
				t.Fatalf("%s on %s: expected %q, got %q", ev, cur, want, out.Status)
			}
			if !out.Status.Terminal() {
				t.Fatalf("%s on %s: expected terminal status", ev, cur)
			}
			if out.EndTime == nil {
				t.Fatalf("%s on %s: expected end time", ev, cur)
			}
		}
	}
}

func TestApplyStatusEvent_TerminalStateIsAbsorbing(t *testing.T) {
	call := newTestCall()
	call.Status = StatusRinging

	call, err := ApplyStatusEvent(call, StatusEvent{ProviderCallID: "PC1", Status: EventUnanswered, Timestamp: ts(30)})
	if err != nil {
		t.Fatalf("unanswered: %v", err)
	}
	if call.Status != StatusNoAnswer {
		t.Fatalf("expected no_answer, got %q", call.Status)
	}
	if call.EndTime == nil {
		t.Fatalf("expected end time")
	}

	// A late answered event must be rejected, not silently ignored.
	_, err = ApplyStatusEvent(call, StatusEvent{ProviderCallID: "PC1", Status: EventAnswered, Timestamp: ts(31)})
	if !errors.Is(err, ErrStaleEvent) {
		t.Fatalf("expected ErrStaleEvent, got %v", err)
	}
	if call.Status != StatusNoAnswer {
		t.Fatalf("status changed on rejected event: %q", call.Status)
	}

	// Terminal-on-terminal is likewise stale.
	_, err = ApplyStatusEvent(call, StatusEvent{ProviderCallID: "PC1", Status: EventCompleted, Timestamp: ts(32)})
	if !errors.Is(err, ErrStaleEvent) {
		t.Fatalf("expected ErrStaleEvent for terminal on terminal, got %v", err)
	}
}

func TestApplyStatusEvent_OutOfOrderTimestampRejected(t *testing.T) {
	call := newTestCall()

	call, err := ApplyStatusEvent(call, StatusEvent{ProviderCallID: "PC1", Status: EventAnswered, Timestamp: ts(10)})
	if err != nil {
		t.Fatalf("answered: %v", err)
	}

	_, err = ApplyStatusEvent(call, StatusEvent{ProviderCallID: "PC1", Status: EventRinging, Timestamp: ts(5)})
	if !errors.Is(err, ErrStaleEvent) {
		t.Fatalf("expected ErrStaleEvent for earlier timestamp, got %v", err)
	}
	if call.Status != StatusInProgress {
		t.Fatalf("expected in_progress after rejection, got %q", call.Status)
	}
}

func TestApplyStatusEvent_EqualTimestampAccepted(t *testing.T) {
	call := newTestCall()

	call, err := ApplyStatusEvent(call, StatusEvent{ProviderCallID: "PC1", Status: EventRinging, Timestamp: ts(10)})
	if err != nil {
		t.Fatalf("ringing: %v", err)
	}

	// Carriers emit distinct events within the same second; only strictly
	// earlier timestamps are stale.
	call, err = ApplyStatusEvent(call, StatusEvent{ProviderCallID: "PC1", Status: EventAnswered, Timestamp: ts(10)})
	if err != nil {
		t.Fatalf("answered with equal timestamp: %v", err)
	}
	if call.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %q", call.Status)
	}
}

func TestApplyStatusEvent_UnknownStatusRejected(t *testing.T) {
	call := newTestCall()
	_, err := ApplyStatusEvent(call, StatusEvent{ProviderCallID: "PC1", Status: "teleported", Timestamp: ts(1)})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestApplyRecordingEvent_ComputesDurationFromEventTimes(t *testing.T) {
	call := newTestCall()
	call.Status = StatusCompleted

	start := time.Date(2023, 11, 14, 10, 0, 0, 0, time.UTC)
	end := time.Date(2023, 11, 14, 10, 2, 30, 0, time.UTC)

	out, err := ApplyRecordingEvent(call, RecordingEvent{
		ProviderConversationID: "CONV1",
		URL:                    "https://cdn.example.com/rec/1.mp3",
		StartTime:              start,
		EndTime:                end,
	})
	if err != nil {
		t.Fatalf("recording: %v", err)
	}
	if !out.Recording.IsRecorded {
		t.Fatalf("expected is_recorded")
	}
	if out.Recording.URL == "" {
		t.Fatalf("expected recording url")
	}
	if out.Recording.DurationSeconds != 150 {
		t.Fatalf("expected duration 150, got %d", out.Recording.DurationSeconds)
	}
	// Recording never changes lifecycle status.
	if out.Status != StatusCompleted {
		t.Fatalf("status changed by recording event: %q", out.Status)
	}
}

func TestApplyRecordingEvent_AcceptedOnTerminalCall(t *testing.T) {
	for _, st := range []CallStatus{StatusCompleted, StatusBusy, StatusFailed, StatusNoAnswer, StatusRinging} {
		call := newTestCall()
		call.Status = st

		out, err := ApplyRecordingEvent(call, RecordingEvent{
			ProviderConversationID: "CONV1",
			URL:                    "https://cdn.example.com/rec/1.mp3",
			StartTime:              ts(0),
			EndTime:                ts(60),
		})
		if err != nil {
			t.Fatalf("recording on %s: %v", st, err)
		}
		if out.Status != st {
			t.Fatalf("recording on %s changed status to %s", st, out.Status)
		}
	}
}

func TestApplyRecordingEvent_DuplicateIsRejected(t *testing.T) {
	call := newTestCall()
	ev := RecordingEvent{
		ProviderConversationID: "CONV1",
		URL:                    "https://cdn.example.com/rec/1.mp3",
		StartTime:              ts(0),
		EndTime:                ts(90),
	}

	call, err := ApplyRecordingEvent(call, ev)
	if err != nil {
		t.Fatalf("first recording: %v", err)
	}

	_, err = ApplyRecordingEvent(call, ev)
	if !errors.Is(err, ErrDuplicateRecording) {
		t.Fatalf("expected ErrDuplicateRecording, got %v", err)
	}
	if call.Recording.DurationSeconds != 90 {
		t.Fatalf("recording changed by duplicate: %d", call.Recording.DurationSeconds)
	}
}
