package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/set-night/mindcanvas/internal/repository"
)

// Workspace groups the stores of one identity.
type Workspace struct {
	Owner     string
	Settings  *SettingsStore
	Documents *DocumentStore
	Chats     *ChatStore
	Files     *FileStore
}

func NewWorkspace(store repository.Store, owner string, titles TitleGenerator, maxStreams int) *Workspace {
	return &Workspace{
		Owner:     owner,
		Settings:  NewSettingsStore(store, owner),
		Documents: NewDocumentStore(store, owner),
		Chats:     NewChatStore(store, owner, titles, maxStreams),
		Files:     NewFileStore(store, owner),
	}
}

func (w *Workspace) Load(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Settings.Load(ctx) })
	g.Go(func() error { return w.Documents.Load(ctx) })
	g.Go(func() error { return w.Chats.Load(ctx) })
	g.Go(func() error { return w.Files.Load(ctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load workspace %s: %w", w.Owner, err)
	}
	return nil
}

// Flush waits until storage mirrors every mutation made so far.
func (w *Workspace) Flush(ctx context.Context) error {
	return errors.Join(
		w.Settings.Flush(ctx),
		w.Documents.Flush(ctx),
		w.Chats.Flush(ctx),
		w.Files.Flush(ctx),
	)
}

func (w *Workspace) Clear() {
	w.Files.Clear()
	w.Chats.Clear()
	w.Documents.Clear()
	w.Settings.Clear()
}

func (w *Workspace) Close() {
	w.Chats.Close()
	w.Files.Close()
	w.Documents.Close()
	w.Settings.Close()
}
