package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/repository"
)

const identityKey = "user-did-storage"

// IdentityStore holds the signed-in identity. It lives in the global storage scope.
type IdentityStore struct {
	store repository.Store
	queue *writeBehind

	mu       sync.RWMutex
	identity domain.Identity
	changes  notifier[domain.Identity]
}

func NewIdentityStore(store repository.Store) *IdentityStore {
	return &IdentityStore{
		store: store,
		queue: newWriteBehind("identity"),
	}
}

func (s *IdentityStore) Load(ctx context.Context) error {
	raw, err := s.store.GetItem(ctx, "", identityKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load identity: %w", err)
	}

	var id domain.Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return fmt.Errorf("decode identity: %w", err)
	}
	if id.DID != "" && domain.ValidateDID(id.DID) != nil {
		return nil
	}

	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
	return nil
}

// SetDID signs in as did. Invalid input is rejected before any state changes.
func (s *IdentityStore) SetDID(did string) error {
	if err := domain.ValidateDID(did); err != nil {
		return err
	}
	s.set(domain.Identity{DID: did, Authenticated: true})
	return nil
}

func (s *IdentityStore) Logout() {
	s.set(domain.Identity{})
}

func (s *IdentityStore) set(id domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id

	data, _ := json.Marshal(id)
	s.queue.enqueue("set identity", func(ctx context.Context) error {
		if id.DID == "" {
			return s.store.RemoveItem(ctx, "", identityKey)
		}
		return s.store.SetItem(ctx, "", identityKey, string(data))
	})
	s.changes.publish(id)
}

func (s *IdentityStore) Identity() domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *IdentityStore) DID() string {
	return s.Identity().DID
}

func (s *IdentityStore) IsAuthenticated() bool {
	return s.Identity().Authenticated
}

func (s *IdentityStore) Subscribe() (<-chan domain.Identity, func()) {
	return s.changes.Subscribe()
}

func (s *IdentityStore) Flush(ctx context.Context) error {
	return s.queue.Flush(ctx)
}

func (s *IdentityStore) Close() {
	s.queue.Close()
}
