package calls

import (
	"context"
	"fmt"
	"time"

	"crm-telephony/internal/auth"
	"crm-telephony/internal/carrier"
	"crm-telephony/internal/rbac"
	"crm-telephony/pkg/logger"

	"github.com/google/uuid"
)

// Service owns call creation and reads.
//
// Creation flow: persist the call as initiated, ask the carrier to
// originate, then attach the provider ids. Lifecycle mutation after that
// point belongs exclusively to the reconcile coordinator; this service
// never applies webhook events itself.
type Service struct {
	store     Store
	transport carrier.Transport
	activity  ActivityRecorder

	// callTimeout bounds the carrier originate request.
	callTimeout time.Duration

	// statusCallbackURL is handed to the carrier so lifecycle webhooks for
	// the new leg come back to this process.
	statusCallbackURL string

	clock func() time.Time
}

// ActivityRecorder is the optional audit hook for call creation.
type ActivityRecorder interface {
	LogCallStarted(ctx context.Context, callID, ownerUserID string) error
}

func NewService(store Store, transport carrier.Transport, activity ActivityRecorder, callTimeout time.Duration, statusCallbackURL string) *Service {
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Service{
		store:             store,
		transport:         transport,
		activity:          activity,
		callTimeout:       callTimeout,
		statusCallbackURL: statusCallbackURL,
		clock:             time.Now,
	}
}

type StartRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Record bool   `json:"record"`
}

// Start creates a call owned by the requester and originates it at the
// carrier. When origination fails the call is persisted as failed so the
// attempt stays visible, and the transport error is returned.
func (s *Service) Start(ctx context.Context, requester auth.Identity, req StartRequest) (Call, error) {
	if requester.UserID == "" {
		return Call{}, ErrInvalidArgument
	}
	if req.From == "" || req.To == "" {
		return Call{}, fmt.Errorf("%w: from and to are required", ErrInvalidArgument)
	}

	now := s.clock().UTC()
	call := Call{
		CallID:      uuid.NewString(),
		OwnerUserID: requester.UserID,
		From:        req.From,
		To:          req.To,
		Status:      StatusInitiated,
		StartTime:   now,
	}
	if err := s.store.Create(ctx, call); err != nil {
		return Call{}, err
	}
	call.Version = 1

	if s.activity != nil {
		// Best-effort; call creation must not fail on audit trouble.
		if err := s.activity.LogCallStarted(ctx, call.CallID, call.OwnerUserID); err != nil {
			logger.From(ctx).Warn("activity append failed", "call_id", call.CallID, "err", err)
		}
	}

	placeCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	res, err := s.transport.PlaceCall(placeCtx, carrier.PlaceCallRequest{
		From:              req.From,
		To:                req.To,
		Record:            req.Record,
		StatusCallbackURL: s.statusCallbackURL,
	})
	if err != nil {
		s.markFailed(ctx, call, now)
		return Call{}, fmt.Errorf("originate call %s: %w", call.CallID, err)
	}

	call.ProviderCallID = res.ProviderCallID
	call.ProviderConversationID = res.ProviderConversationID
	saved, err := s.store.Save(ctx, call)
	if err != nil {
		return Call{}, fmt.Errorf("attach provider ids to call %s: %w", call.CallID, err)
	}
	return saved, nil
}

// markFailed is best-effort: the carrier rejected the call before any
// webhook could exist, so no reconciliation will ever finalize it.
func (s *Service) markFailed(ctx context.Context, call Call, at time.Time) {
	call.Status = StatusFailed
	call.EndTime = &at
	call.LastEventAt = at
	if _, err := s.store.Save(ctx, call); err != nil {
		logger.From(ctx).Warn("failed to persist originate failure", "call_id", call.CallID, "err", err)
	}
}

// Get returns a call visible to the requester: its owner, or an admin.
func (s *Service) Get(ctx context.Context, requester auth.Identity, callID string) (Call, error) {
	if callID == "" {
		return Call{}, ErrInvalidArgument
	}
	call, err := s.store.FindByID(ctx, callID)
	if err != nil {
		return Call{}, err
	}
	if requester.UserID != call.OwnerUserID && !rbac.IsAdmin(requester.Role) {
		return Call{}, ErrForbidden
	}
	return call, nil
}
