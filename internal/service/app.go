package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/repository"
)

type AppDeps struct {
	Store                repository.Store
	Titles               TitleGenerator
	MaxStreamsPerSession int
	// MaxWorkspaces caps the loaded workspaces; zero means no cap.
	MaxWorkspaces int
}

type workspaceEntry struct {
	ws       *Workspace
	lastUsed time.Time
	leases   int
}

// App owns the storage handle and the identity store and hands out one
// Workspace per identity. Idle workspaces are unloaded and reload from
// storage on next use.
type App struct {
	store         repository.Store
	identity      *IdentityStore
	titles        TitleGenerator
	maxStreams    int
	maxWorkspaces int
	now           func() time.Time

	mu         sync.Mutex
	workspaces map[string]*workspaceEntry
	// unloading holds identities whose write queues are still draining.
	unloading map[string]chan struct{}
}

func NewApp(deps AppDeps) *App {
	return &App{
		store:         deps.Store,
		identity:      NewIdentityStore(deps.Store),
		titles:        deps.Titles,
		maxStreams:    deps.MaxStreamsPerSession,
		maxWorkspaces: deps.MaxWorkspaces,
		now:           time.Now,
		workspaces:    make(map[string]*workspaceEntry),
		unloading:     make(map[string]chan struct{}),
	}
}

// Load restores the persisted identity.
func (a *App) Load(ctx context.Context) error {
	return a.identity.Load(ctx)
}

func (a *App) Identity() *IdentityStore {
	return a.identity
}

func (a *App) Store() repository.Store {
	return a.store
}

// Workspace returns the loaded workspace of did, creating it on first use.
// The workspace may be unloaded once idle; callers that keep it beyond a
// short call use Acquire.
func (a *App) Workspace(ctx context.Context, did string) (*Workspace, error) {
	ws, _, err := a.open(ctx, did, false)
	return ws, err
}

// Acquire is Workspace with a lease: the workspace stays loaded until release
// is called. release is safe to call more than once.
func (a *App) Acquire(ctx context.Context, did string) (*Workspace, func(), error) {
	ws, entry, err := a.open(ctx, did, true)
	if err != nil {
		return nil, func() {}, err
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			a.mu.Lock()
			entry.leases--
			entry.lastUsed = a.now()
			a.mu.Unlock()
		})
	}
	return ws, release, nil
}

func (a *App) open(ctx context.Context, did string, lease bool) (*Workspace, *workspaceEntry, error) {
	if err := domain.ValidateDID(did); err != nil {
		return nil, nil, err
	}

	a.mu.Lock()
	for {
		done, ok := a.unloading[did]
		if !ok {
			break
		}
		a.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		a.mu.Lock()
	}

	entry, ok := a.workspaces[did]
	if !ok {
		ws := NewWorkspace(a.store, did, a.titles, a.maxStreams)
		if err := ws.Load(ctx); err != nil {
			a.mu.Unlock()
			ws.Close()
			return nil, nil, err
		}
		entry = &workspaceEntry{ws: ws}
		a.workspaces[did] = entry
		slog.Debug("workspace loaded", "did", did)
	}
	entry.lastUsed = a.now()
	if lease {
		entry.leases++
	}

	var victims map[string]*Workspace
	if !ok && a.maxWorkspaces > 0 && len(a.workspaces) > a.maxWorkspaces {
		victims = a.detachLocked(a.lruLocked(len(a.workspaces)-a.maxWorkspaces, did))
	}
	a.mu.Unlock()

	a.unload(victims)
	return entry.ws, entry, nil
}

// lruLocked picks up to n unleased identities, least recently used first.
func (a *App) lruLocked(n int, keep string) []string {
	candidates := make([]string, 0, len(a.workspaces))
	for did, e := range a.workspaces {
		if did != keep && e.leases == 0 {
			candidates = append(candidates, did)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return a.workspaces[candidates[i]].lastUsed.Before(a.workspaces[candidates[j]].lastUsed)
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// detachLocked removes the identities from the cache and marks them unloading.
func (a *App) detachLocked(dids []string) map[string]*Workspace {
	if len(dids) == 0 {
		return nil
	}
	out := make(map[string]*Workspace, len(dids))
	for _, did := range dids {
		out[did] = a.workspaces[did].ws
		delete(a.workspaces, did)
		a.unloading[did] = make(chan struct{})
	}
	return out
}

// unload drains and stops detached workspaces.
func (a *App) unload(victims map[string]*Workspace) {
	for did, ws := range victims {
		ws.Close()
		a.mu.Lock()
		close(a.unloading[did])
		delete(a.unloading, did)
		a.mu.Unlock()
		slog.Debug("workspace unloaded", "did", did)
	}
}

// EvictIdle unloads the workspaces nobody holds that were last used more than
// idle ago. It reports how many went.
func (a *App) EvictIdle(idle time.Duration) int {
	cutoff := a.now().Add(-idle)

	a.mu.Lock()
	var dids []string
	for did, e := range a.workspaces {
		if e.leases == 0 && e.lastUsed.Before(cutoff) {
			dids = append(dids, did)
		}
	}
	victims := a.detachLocked(dids)
	a.mu.Unlock()

	a.unload(victims)
	return len(victims)
}

// Loaded reports how many workspaces are in memory.
func (a *App) Loaded() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.workspaces)
}

// Current returns the workspace of the signed-in identity.
func (a *App) Current(ctx context.Context) (*Workspace, error) {
	id := a.identity.Identity()
	if !id.Authenticated {
		return nil, domain.ErrNotAuthenticated
	}
	return a.Workspace(ctx, id.DID)
}

// ClearWorkspace empties every store of did, in memory and in storage.
func (a *App) ClearWorkspace(ctx context.Context, did string) error {
	ws, release, err := a.Acquire(ctx, did)
	if err != nil {
		return err
	}
	defer release()

	ws.Clear()
	if err := ws.Flush(ctx); err != nil {
		return fmt.Errorf("flush workspace: %w", err)
	}
	if err := a.store.Clear(ctx, did); err != nil {
		return fmt.Errorf("clear storage: %w", err)
	}
	return nil
}

// ClearAllStorage signs out, empties every loaded workspace and wipes storage.
func (a *App) ClearAllStorage(ctx context.Context) error {
	a.identity.Logout()

	a.mu.Lock()
	workspaces := make([]*Workspace, 0, len(a.workspaces))
	for _, e := range a.workspaces {
		workspaces = append(workspaces, e.ws)
	}
	pending := make([]chan struct{}, 0, len(a.unloading))
	for _, done := range a.unloading {
		pending = append(pending, done)
	}
	a.mu.Unlock()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	errs := []error{a.identity.Flush(ctx)}
	for _, ws := range workspaces {
		ws.Clear()
		errs = append(errs, ws.Flush(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("flush before clear: %w", err)
	}

	if err := a.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear all storage: %w", err)
	}
	slog.Info("all storage cleared", "workspaces", len(workspaces))
	return nil
}

// PruneStreams deletes stream records older than retention from storage and
// from every loaded workspace.
func (a *App) PruneStreams(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	n, err := a.store.DeleteBefore(ctx, repository.TableStreams, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune streams: %w", err)
	}

	a.mu.Lock()
	for _, e := range a.workspaces {
		e.ws.Chats.PruneStreams(cutoff)
	}
	a.mu.Unlock()
	return n, nil
}

func (a *App) Flush(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	errs := []error{a.identity.Flush(ctx)}
	for _, e := range a.workspaces {
		errs = append(errs, e.ws.Flush(ctx))
	}
	return errors.Join(errs...)
}

// Close drains every write queue. The storage handle stays open.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for did, e := range a.workspaces {
		e.ws.Close()
		delete(a.workspaces, did)
	}
	a.identity.Close()
}
