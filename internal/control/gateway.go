package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-telephony/internal/auth"
	"crm-telephony/internal/calls"
	"crm-telephony/internal/carrier"
	"crm-telephony/internal/rbac"
	"crm-telephony/pkg/logger"
)

var (
	// ErrNoActiveSession means the call never reached the carrier, so there
	// is no session to control.
	ErrNoActiveSession = errors.New("no active carrier session")

	// ErrControlFailed wraps carrier-side failures, including timeouts.
	// The operator may retry manually; no local state was touched.
	ErrControlFailed = errors.New("control command failed")
)

// Gateway executes operator commands against a live call.
//
// Commands are ownership-checked and state-checked, then forwarded to the
// carrier transport with a bounded timeout. They never mutate local
// lifecycle state: mute/unmute are not lifecycle events, and hangup's
// terminal transition arrives through the status webhook. Keeping this path
// free of the reconciliation critical section means a burst of retried
// webhook deliveries cannot delay an operator's mute.
type Gateway struct {
	store     calls.Store
	transport carrier.Transport
	activity  ActivityLogger
	timeout   time.Duration
}

// ActivityLogger is the optional audit hook for control actions.
type ActivityLogger interface {
	LogControlAction(ctx context.Context, callID, actorUserID, actorRole, action string) error
}

func NewGateway(store calls.Store, transport carrier.Transport, activity ActivityLogger, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{store: store, transport: transport, activity: activity, timeout: timeout}
}

func (g *Gateway) Mute(ctx context.Context, callID string, requester auth.Identity) error {
	return g.command(ctx, callID, requester, carrier.ActionMute)
}

func (g *Gateway) Unmute(ctx context.Context, callID string, requester auth.Identity) error {
	return g.command(ctx, callID, requester, carrier.ActionUnmute)
}

// Hangup asks the carrier to tear the call down. The resulting terminal
// status is applied later by the reconcile coordinator when the carrier's
// completion webhook arrives.
func (g *Gateway) Hangup(ctx context.Context, callID string, requester auth.Identity) error {
	return g.command(ctx, callID, requester, carrier.ActionHangup)
}

func (g *Gateway) command(ctx context.Context, callID string, requester auth.Identity, action carrier.Action) error {
	if callID == "" || requester.UserID == "" {
		return calls.ErrInvalidArgument
	}

	call, err := g.store.FindByID(ctx, callID)
	if err != nil {
		return err
	}

	if requester.UserID != call.OwnerUserID && !rbac.IsAdmin(requester.Role) {
		return calls.ErrForbidden
	}
	if call.ProviderCallID == "" {
		return fmt.Errorf("%w: call %s", ErrNoActiveSession, callID)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.transport.ModifyCall(cmdCtx, call.ProviderCallID, action); err != nil {
		return fmt.Errorf("%w: %s on call %s: %v", ErrControlFailed, action, callID, err)
	}

	if g.activity != nil {
		// Best-effort; the command already succeeded at the carrier.
		if err := g.activity.LogControlAction(ctx, callID, requester.UserID, requester.Role, string(action)); err != nil {
			logger.From(ctx).Warn("activity append failed", "call_id", callID, "action", action, "err", err)
		}
	}
	return nil
}
