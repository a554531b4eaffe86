package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-telephony/internal/calls"
)

// Coordinator serializes event application per call.
//
// Two webhook deliveries for the same call can arrive concurrently (a retried
// delivery plus a genuinely new event). The state machine's staleness check
// handles out-of-order delivery, but not two concurrent reads of the same
// current state; the per-call critical section here closes that gap. Events
// for different calls proceed fully in parallel.
//
// Persist failures after a successful state decision are retried a bounded
// number of times with backoff; exhaustion surfaces ErrPersistenceFailure and
// the event counts as unprocessed, leaving redelivery to the sender.
type Coordinator struct {
	store    calls.Store
	notifier Notifier
	locks    *lockMap

	attempts int
	backoff  time.Duration

	// sleep is injectable for deterministic retry tests.
	sleep func(time.Duration)
}

// ErrPersistenceFailure means the store rejected the update after bounded
// retries. Webhook callers should leave the delivery unacknowledged.
var ErrPersistenceFailure = errors.New("persistence failure")

// StateChange is the typed fact emitted after an event is applied and
// persisted. Collaborators (activity log, notifications) consume it; the
// coordinator does not know who listens.
type StateChange struct {
	CallID string

	// Kind is "status" for lifecycle transitions, "recording" for recording
	// completion (which never changes status).
	Kind string

	From calls.CallStatus
	To   calls.CallStatus

	At time.Time
}

// Notifier consumes state-change facts. Implementations must not block on
// slow consumers; emission happens inside the call's critical section.
type Notifier interface {
	CallStateChanged(ctx context.Context, change StateChange)
}

type Config struct {
	// PersistAttempts bounds tries of the persist step. Zero means 3.
	PersistAttempts int
	// PersistBackoff is the delay between persist retries. Zero means 200ms.
	PersistBackoff time.Duration
}

func NewCoordinator(store calls.Store, notifier Notifier, cfg Config) *Coordinator {
	attempts := cfg.PersistAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.PersistBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &Coordinator{
		store:    store,
		notifier: notifier,
		locks:    newLockMap(),
		attempts: attempts,
		backoff:  backoff,
		sleep:    time.Sleep,
	}
}

// ApplyStatusEvent resolves the target call by provider call id and applies
// a lifecycle event under the call's critical section.
//
// Errors: calls.ErrNotFound when no call matches (no speculative creation),
// calls.ErrStaleEvent for superseded events, ErrPersistenceFailure when the
// store stays unavailable.
func (c *Coordinator) ApplyStatusEvent(ctx context.Context, ev calls.StatusEvent) (calls.Call, error) {
	if ev.ProviderCallID == "" {
		return calls.Call{}, fmt.Errorf("%w: provider call id required", calls.ErrInvalidArgument)
	}
	target, err := c.resolve(ctx, func() (calls.Call, error) {
		return c.store.FindByProviderCallID(ctx, ev.ProviderCallID)
	})
	if err != nil {
		return calls.Call{}, err
	}

	return c.apply(ctx, target.CallID, "status", func(cur calls.Call) (calls.Call, error) {
		return calls.ApplyStatusEvent(cur, ev)
	})
}

// ApplyRecordingEvent resolves the target call by provider conversation id.
// Recording completion is valid on terminal calls, but still runs under the
// same per-call critical section to avoid racing a concurrently-arriving
// terminal status event.
func (c *Coordinator) ApplyRecordingEvent(ctx context.Context, ev calls.RecordingEvent) (calls.Call, error) {
	if ev.ProviderConversationID == "" {
		return calls.Call{}, fmt.Errorf("%w: provider conversation id required", calls.ErrInvalidArgument)
	}
	target, err := c.resolve(ctx, func() (calls.Call, error) {
		return c.store.FindByProviderConversationID(ctx, ev.ProviderConversationID)
	})
	if err != nil {
		return calls.Call{}, err
	}

	return c.apply(ctx, target.CallID, "recording", func(cur calls.Call) (calls.Call, error) {
		return calls.ApplyRecordingEvent(cur, ev)
	})
}

// resolve looks the target call up by provider key with the same bounded
// retry as the persist step. A transient store error here must surface as
// ErrPersistenceFailure, not as an unclassified error: webhook callers key
// their acknowledge-or-retry decision on it.
func (c *Coordinator) resolve(ctx context.Context, find func() (calls.Call, error)) (calls.Call, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			c.sleep(time.Duration(attempt) * c.backoff)
		}

		target, err := find()
		if err == nil {
			return target, nil
		}
		if errors.Is(err, calls.ErrNotFound) || errors.Is(err, calls.ErrInvalidArgument) {
			return calls.Call{}, err
		}
		lastErr = err
	}
	return calls.Call{}, fmt.Errorf("%w: %v", ErrPersistenceFailure, lastErr)
}

// apply runs load -> decide -> persist under the call's lock. The state is
// re-read inside the critical section: the resolve step's snapshot may
// already be stale by the time the lock is held.
func (c *Coordinator) apply(ctx context.Context, callID, kind string, decide func(calls.Call) (calls.Call, error)) (calls.Call, error) {
	lock := c.locks.acquire(callID)
	defer c.locks.release(callID, lock)

	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			c.sleep(time.Duration(attempt) * c.backoff)
		}

		cur, err := c.store.FindByID(ctx, callID)
		if err != nil {
			if errors.Is(err, calls.ErrNotFound) {
				return calls.Call{}, err
			}
			lastErr = err
			continue
		}

		next, err := decide(cur)
		if err != nil {
			// Rejections (stale, duplicate) are final; never retried.
			return calls.Call{}, err
		}

		saved, err := c.store.Save(ctx, next)
		if err == nil {
			c.notify(ctx, StateChange{
				CallID: callID,
				Kind:   kind,
				From:   cur.Status,
				To:     saved.Status,
				At:     saved.UpdatedAt,
			})
			return saved, nil
		}
		// Version conflicts reload and re-decide: another writer may share
		// the store even though this process holds the in-memory lock.
		lastErr = err
	}
	return calls.Call{}, fmt.Errorf("%w: %v", ErrPersistenceFailure, lastErr)
}

func (c *Coordinator) notify(ctx context.Context, change StateChange) {
	if c.notifier == nil {
		return
	}
	c.notifier.CallStateChanged(ctx, change)
}
