package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/set-night/mindcanvas/internal/config"
	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/llm"
)

// TitleGenerator produces a short chat title from the first user message.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, firstMessage string) (string, error)
}

var errNoTitleGenerator = errors.New("title generator not configured")

// UpdateTitle asks the generator for a title and stores it on the session.
// On failure the session keeps its current title.
func (s *ChatStore) UpdateTitle(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	var first domain.Message
	var hasUser bool
	if ok {
		first, hasUser = sess.FirstUserMessage()
	}
	s.mu.RUnlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	if !hasUser {
		return fmt.Errorf("no user message: %w", domain.ErrMessageNotFound)
	}
	if s.titles == nil {
		return errNoTitleGenerator
	}

	raw, err := s.titles.GenerateTitle(ctx, messageText(first))
	if err != nil {
		return fmt.Errorf("generate title: %w", err)
	}
	title := llm.CleanTitle(raw, config.MaxTitleLen)
	if title == "" {
		return fmt.Errorf("generate title: empty result")
	}

	if _, err := s.UpdateSession(sessionID, SessionUpdate{Title: &title}); err != nil {
		return fmt.Errorf("save title: %w", err)
	}
	slog.Debug("chat title generated", "session_id", sessionID, "title", title)
	return nil
}

// EnsureTitle schedules title generation when the session still has the default title.
func (s *ChatStore) EnsureTitle(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.Title != domain.DefaultChatTitle {
		return
	}
	if _, hasUser := sess.FirstUserMessage(); !hasUser {
		return
	}
	s.scheduleTitleLocked(sessionID)
}

// scheduleTitleLocked starts at most one background title job per session.
// Caller holds s.mu.
func (s *ChatStore) scheduleTitleLocked(sessionID uuid.UUID) {
	if s.closed || s.titling[sessionID] {
		return
	}
	s.titling[sessionID] = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.bgCtx, config.TitleTimeout)
		defer cancel()
		if err := s.UpdateTitle(ctx, sessionID); err != nil {
			slog.Warn("failed to update chat title", "session_id", sessionID, "error", err)
		}
	}()
}

// Wait blocks until scheduled title jobs are done.
func (s *ChatStore) Wait() {
	s.wg.Wait()
}

func messageText(m domain.Message) string {
	if m.Content != "" {
		return m.Content
	}
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == domain.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
