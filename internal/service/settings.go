package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/repository"
)

const settingsKey = "settings-storage"

type SettingsStore struct {
	owner string
	store repository.Store
	queue *writeBehind

	mu       sync.RWMutex
	settings domain.Settings
	changes  notifier[domain.Settings]
}

func NewSettingsStore(store repository.Store, owner string) *SettingsStore {
	return &SettingsStore{
		owner:    owner,
		store:    store,
		queue:    newWriteBehind("settings"),
		settings: domain.DefaultSettings(),
	}
}

func (s *SettingsStore) Load(ctx context.Context) error {
	raw, err := s.store.GetItem(ctx, s.owner, settingsKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load settings: %w", err)
	}

	loaded := domain.DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}

	s.mu.Lock()
	s.settings = loaded
	s.mu.Unlock()
	return nil
}

func (s *SettingsStore) Get() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.settings
	if out.Avatar != nil {
		a := *out.Avatar
		out.Avatar = &a
	}
	return out
}

// SetSettings replaces every field at once.
func (s *SettingsStore) SetSettings(next domain.Settings) error {
	if err := validateSettings(next); err != nil {
		return err
	}
	s.update(func(cur *domain.Settings) { *cur = next })
	return nil
}

func (s *SettingsStore) SetLanguage(lang string) error {
	if !slices.Contains(domain.Locales, lang) {
		return fmt.Errorf("%w: language %q", domain.ErrInvalidSetting, lang)
	}
	s.update(func(cur *domain.Settings) { cur.Language = lang })
	return nil
}

func (s *SettingsStore) SetName(name string) {
	s.update(func(cur *domain.Settings) { cur.Name = name })
}

// SetAvatar sets the avatar; nil removes it.
func (s *SettingsStore) SetAvatar(avatar *string) {
	s.update(func(cur *domain.Settings) { cur.Avatar = avatar })
}

func (s *SettingsStore) SetSidebarCollapsed(collapsed bool) {
	s.update(func(cur *domain.Settings) { cur.SidebarCollapsed = collapsed })
}

func (s *SettingsStore) SetSidebarMode(mode domain.SidebarMode) error {
	if mode != domain.SidebarPinned && mode != domain.SidebarFloating {
		return fmt.Errorf("%w: sidebar mode %q", domain.ErrInvalidSetting, mode)
	}
	s.update(func(cur *domain.Settings) { cur.SidebarMode = mode })
	return nil
}

func (s *SettingsStore) Reset() {
	s.update(func(cur *domain.Settings) { *cur = domain.DefaultSettings() })
}

// Clear resets to defaults and removes the persisted blob.
func (s *SettingsStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = domain.DefaultSettings()
	s.queue.enqueue("clear settings", func(ctx context.Context) error {
		return s.store.RemoveItem(ctx, s.owner, settingsKey)
	})
	s.changes.publish(s.settings)
}

func (s *SettingsStore) Subscribe() (<-chan domain.Settings, func()) {
	return s.changes.Subscribe()
}

func (s *SettingsStore) Flush(ctx context.Context) error {
	return s.queue.Flush(ctx)
}

func (s *SettingsStore) Close() {
	s.queue.Close()
}

func (s *SettingsStore) update(fn func(cur *domain.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.settings)

	snapshot := s.settings
	data, _ := json.Marshal(snapshot)
	s.queue.enqueue("save settings", func(ctx context.Context) error {
		return s.store.SetItem(ctx, s.owner, settingsKey, string(data))
	})
	s.changes.publish(snapshot)
}

func validateSettings(st domain.Settings) error {
	if !slices.Contains(domain.Locales, st.Language) {
		return fmt.Errorf("%w: language %q", domain.ErrInvalidSetting, st.Language)
	}
	if st.SidebarMode != domain.SidebarPinned && st.SidebarMode != domain.SidebarFloating {
		return fmt.Errorf("%w: sidebar mode %q", domain.ErrInvalidSetting, st.SidebarMode)
	}
	return nil
}
