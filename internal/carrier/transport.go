package carrier

import (
	"context"
	"errors"
)

// Transport is the provider-agnostic contract for outbound carrier actions.
//
// Rules (mirrors the adapter boundary discipline used elsewhere in the CRM):
// - No provider SDK outside this package.
// - Callers bound every invocation with a context deadline; a deadline hit is
//   a transport failure, never a silent success.
type Transport interface {
	Name() string

	// PlaceCall asks the carrier to originate a call leg, returning the
	// carrier-assigned identifiers.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)

	// ModifyCall applies an in-call action (mute, unmute, hangup) to a live
	// carrier session.
	ModifyCall(ctx context.Context, providerCallID string, action Action) error
}

// ErrTransport wraps any carrier-side failure, including timeouts.
var ErrTransport = errors.New("carrier transport failure")

type Action string

const (
	ActionMute   Action = "mute"
	ActionUnmute Action = "unmute"
	ActionHangup Action = "hangup"
)

type PlaceCallRequest struct {
	// From and To are E.164 where possible.
	From string `json:"from"`
	To   string `json:"to"`

	// Record asks the carrier to record the call; the recording arrives later
	// via the recording-completion webhook.
	Record bool `json:"record"`

	// StatusCallbackURL receives lifecycle webhooks for this leg.
	StatusCallbackURL string `json:"status_callback_url,omitempty"`
}

type PlaceCallResult struct {
	// ProviderCallID identifies the call leg at the carrier.
	ProviderCallID string `json:"provider_call_id"`

	// ProviderConversationID correlates the leg with its recording. Some
	// carriers only assign it once media starts; empty is valid here.
	ProviderConversationID string `json:"provider_conversation_id,omitempty"`
}
