package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/set-night/mindcanvas/internal/repository"
)

const testDID = "did:nuwa:alice"

func openStore(t *testing.T) repository.Store {
	t.Helper()
	store, err := repository.Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type fakeTitles struct {
	mu    sync.Mutex
	title string
	err   error
	calls []string
}

func (f *fakeTitles) GenerateTitle(_ context.Context, first string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, first)
	return f.title, f.err
}

func (f *fakeTitles) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var errTitleDown = errors.New("title model down")
