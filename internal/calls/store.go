package calls

import "context"

// Store is the persistence contract for call records.
//
// Save performs an optimistic update: it matches on the Version the caller
// read and fails with ErrVersionConflict when the stored row has moved on.
// Implementations must also hold the set-once invariants for
// ProviderCallID and ProviderConversationID.
type Store interface {
	Create(ctx context.Context, call Call) error

	FindByID(ctx context.Context, callID string) (Call, error)
	FindByProviderCallID(ctx context.Context, providerCallID string) (Call, error)
	FindByProviderConversationID(ctx context.Context, providerConversationID string) (Call, error)

	// Save persists the new state and returns the stored call with its
	// bumped version.
	Save(ctx context.Context, call Call) (Call, error)
}
