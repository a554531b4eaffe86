package calls

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests. It enforces the same version
// and set-once checks as the Postgres store so coordinator behavior under
// conflict is testable without a database.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]Call
	clock func() time.Time

	// SaveHook, when set, runs inside Save before the version check.
	// Tests use it to inject latency or transient failures.
	SaveHook func(call Call) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: make(map[string]Call), clock: time.Now}
}

func (s *MemoryStore) Create(ctx context.Context, call Call) error {
	if call.CallID == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.calls[call.CallID]; exists {
		return fmt.Errorf("%w: call %s already exists", ErrInvalidArgument, call.CallID)
	}
	now := s.clock().UTC()
	call.Version = 1
	call.CreatedAt = now
	call.UpdatedAt = now
	s.calls[call.CallID] = call
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, callID string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[callID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) FindByProviderCallID(ctx context.Context, providerCallID string) (Call, error) {
	if providerCallID == "" {
		return Call{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.ProviderCallID == providerCallID {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}

func (s *MemoryStore) FindByProviderConversationID(ctx context.Context, providerConversationID string) (Call, error) {
	if providerConversationID == "" {
		return Call{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.ProviderConversationID == providerConversationID {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}

func (s *MemoryStore) Save(ctx context.Context, call Call) (Call, error) {
	if hook := s.SaveHook; hook != nil {
		if err := hook(call); err != nil {
			return Call{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.calls[call.CallID]
	if !ok {
		return Call{}, ErrNotFound
	}
	if stored.Version != call.Version {
		return Call{}, fmt.Errorf("%w: call %s read v%d, stored v%d", ErrVersionConflict, call.CallID, call.Version, stored.Version)
	}
	if stored.ProviderCallID != "" && call.ProviderCallID != stored.ProviderCallID {
		return Call{}, fmt.Errorf("%w: provider_call_id is set once", ErrInvalidArgument)
	}
	if stored.ProviderConversationID != "" && call.ProviderConversationID != stored.ProviderConversationID {
		return Call{}, fmt.Errorf("%w: provider_conversation_id is immutable", ErrInvalidArgument)
	}

	call.Version = stored.Version + 1
	call.CreatedAt = stored.CreatedAt
	call.UpdatedAt = s.clock().UTC()
	s.calls[call.CallID] = call
	return call, nil
}
