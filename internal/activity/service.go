package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-telephony/internal/reconcile"
	"crm-telephony/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for activity events.
//
// It MUST be append-only. No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records call activity. Callers treat activity logging as
// best-effort: an append failure is logged, never propagated into the
// call flow.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("activity: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("activity: repository not configured")
	}
	if e.CallID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogControlAction records an operator control command (mute, unmute, hangup).
func (s *Service) LogControlAction(ctx context.Context, callID, actorUserID, actorRole, action string) error {
	return s.Append(ctx, Event{
		CallID:      callID,
		Type:        EventTypeControl,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		Message:     action,
	})
}

// LogCallStarted records call creation.
func (s *Service) LogCallStarted(ctx context.Context, callID, ownerUserID string) error {
	return s.Append(ctx, Event{
		CallID:      callID,
		Type:        EventTypeCallStarted,
		ActorUserID: ownerUserID,
		Message:     "call initiated",
	})
}

// CallStateChanged implements reconcile.Notifier, landing applied lifecycle
// and recording facts in the activity log.
func (s *Service) CallStateChanged(ctx context.Context, change reconcile.StateChange) {
	typ := EventTypeStateChange
	msg := fmt.Sprintf("status %s -> %s", change.From, change.To)
	if change.Kind == "recording" {
		typ = EventTypeRecording
		msg = "recording attached"
	}
	err := s.Append(ctx, Event{
		CallID:     change.CallID,
		Type:       typ,
		FromStatus: change.From,
		ToStatus:   change.To,
		Message:    msg,
		CreatedAt:  change.At,
	})
	if err != nil {
		logger.From(ctx).Warn("activity append failed", "call_id", change.CallID, "err", err)
	}
}
