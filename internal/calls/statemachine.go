package calls

import "fmt"

// The call state machine. Pure: no I/O, no clock, no retries. Given the
// current persisted Call and a normalized event it returns the next Call
// value or rejects the event.
//
// States: initiated -> ringing -> in_progress -> {completed, busy, failed,
// no_answer}. ringing may also jump straight to any terminal status (a call
// can fail or go unanswered before pickup). Terminal statuses are absorbing
// for status events; recording events are accepted regardless of status.

type transition struct {
	next     CallStatus
	terminal bool
}

// statusTransitions maps every recognized event status to its target.
// Non-terminal targets require the call to be non-terminal, which the
// absorbing-state check below enforces for the whole table.
var statusTransitions = map[EventStatus]transition{
	EventStarted:    {next: StatusRinging},
	EventRinging:    {next: StatusRinging},
	EventAnswered:   {next: StatusInProgress},
	EventCompleted:  {next: StatusCompleted, terminal: true},
	EventBusy:       {next: StatusBusy, terminal: true},
	EventFailed:     {next: StatusFailed, terminal: true},
	EventUnanswered: {next: StatusNoAnswer, terminal: true},
	EventCancelled:  {next: StatusFailed, terminal: true},
}

// ApplyStatusEvent computes the call's next state for a lifecycle event.
//
// Rejections:
// - ErrStaleEvent when the call is already terminal (late deliveries after
//   teardown, including terminal-on-terminal, must be observable, not
//   silently ignored).
// - ErrStaleEvent when the event timestamp is strictly earlier than the last
//   applied event (out-of-order delivery under at-least-once webhooks).
// Equal timestamps pass: carriers emit distinct events within one second.
func ApplyStatusEvent(call Call, ev StatusEvent) (Call, error) {
	if call.Status.Terminal() {
		return Call{}, fmt.Errorf("%w: call %s already %s", ErrStaleEvent, call.CallID, call.Status)
	}
	if !call.LastEventAt.IsZero() && ev.Timestamp.Before(call.LastEventAt) {
		return Call{}, fmt.Errorf("%w: event at %s precedes last applied %s",
			ErrStaleEvent, ev.Timestamp.Format("2006-01-02T15:04:05Z07:00"), call.LastEventAt.Format("2006-01-02T15:04:05Z07:00"))
	}

	tr, ok := statusTransitions[ev.Status]
	if !ok {
		// The normalizer owns input validation; reaching here is a bug.
		return Call{}, fmt.Errorf("%w: unrecognized event status %q", ErrInvalidArgument, ev.Status)
	}

	call.Status = tr.next
	call.LastEventAt = ev.Timestamp
	if tr.terminal {
		end := ev.Timestamp
		call.EndTime = &end
		if ev.Status == EventCompleted && ev.DurationSeconds != nil {
			call.DurationSeconds = *ev.DurationSeconds
		}
	}
	return call, nil
}

// ApplyRecordingEvent attaches recording metadata to the call. It never
// changes Status and is valid on terminal calls. Duration comes from the
// event's own start/stop timestamps since recording timing can differ from
// call timing.
func ApplyRecordingEvent(call Call, ev RecordingEvent) (Call, error) {
	if call.Recording.IsRecorded {
		return Call{}, fmt.Errorf("%w: call %s", ErrDuplicateRecording, call.CallID)
	}
	call.Recording = Recording{
		URL:             ev.URL,
		IsRecorded:      true,
		DurationSeconds: int(ev.EndTime.Sub(ev.StartTime).Seconds()),
	}
	return call, nil
}
