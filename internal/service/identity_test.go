package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/mindcanvas/internal/domain"
)

func TestSetDIDValid(t *testing.T) {
	for _, did := range []string{"did:nuwa:alice", "did:nuwa:A_b-9", "did:nuwa:x"} {
		s := NewIdentityStore(openStore(t))
		require.NoError(t, s.SetDID(did))
		assert.True(t, s.IsAuthenticated())
		assert.Equal(t, did, s.DID())
		s.Close()
	}
}

func TestSetDIDInvalidLeavesStateUnchanged(t *testing.T) {
	s := NewIdentityStore(openStore(t))
	defer s.Close()
	require.NoError(t, s.SetDID("did:nuwa:alice"))

	for _, did := range []string{"", "alice", "did:other:alice", "did:nuwa:", "did:nuwa:a b", "did:nuwa:a:b"} {
		err := s.SetDID(did)
		assert.ErrorIs(t, err, domain.ErrInvalidDID, did)
		assert.Equal(t, domain.Identity{DID: "did:nuwa:alice", Authenticated: true}, s.Identity())
	}
}

func TestIdentityPersistsAndLogsOut(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	s := NewIdentityStore(store)
	require.NoError(t, s.SetDID(testDID))
	require.NoError(t, s.Flush(ctx))
	s.Close()

	reloaded := NewIdentityStore(store)
	defer reloaded.Close()
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, testDID, reloaded.DID())
	assert.True(t, reloaded.IsAuthenticated())

	reloaded.Logout()
	assert.False(t, reloaded.IsAuthenticated())
	require.NoError(t, reloaded.Flush(ctx))

	again := NewIdentityStore(store)
	defer again.Close()
	require.NoError(t, again.Load(ctx))
	assert.Equal(t, domain.Identity{}, again.Identity())
}

func TestIdentitySubscribe(t *testing.T) {
	s := NewIdentityStore(openStore(t))
	defer s.Close()

	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.SetDID("did:nuwa:one"))
	require.NoError(t, s.SetDID("did:nuwa:two"))
	got := <-ch
	assert.Equal(t, "did:nuwa:two", got.DID)
}
