package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/repository"
)

type SessionUpdate struct {
	Title *string
}

// MessageUpdate carries the message fields to replace; nil fields are kept.
type MessageUpdate struct {
	Content *string
	Parts   []domain.Part
	Usage   *domain.Usage
}

// ChatStore owns the chat sessions and stream records of one identity.
type ChatStore struct {
	owner      string
	store      repository.Store
	queue      *writeBehind
	titles     TitleGenerator
	maxStreams int

	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.ChatSession
	streams  map[uuid.UUID][]domain.StreamRecord
	current  uuid.UUID
	titling  map[uuid.UUID]bool
	closed   bool
	changes  notifier[struct{}]

	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// NewChatStore creates an empty store. maxStreams caps the stream records kept
// per session; zero disables the cap.
func NewChatStore(store repository.Store, owner string, titles TitleGenerator, maxStreams int) *ChatStore {
	ctx, cancel := context.WithCancel(context.Background())
	return &ChatStore{
		owner:      owner,
		store:      store,
		queue:      newWriteBehind("chats"),
		titles:     titles,
		maxStreams: maxStreams,
		sessions:   make(map[uuid.UUID]*domain.ChatSession),
		streams:    make(map[uuid.UUID][]domain.StreamRecord),
		titling:    make(map[uuid.UUID]bool),
		bgCtx:      ctx,
		bgCancel:   cancel,
	}
}

func (s *ChatStore) Load(ctx context.Context) error {
	sessRecs, err := s.store.List(ctx, repository.TableChats, s.owner, repository.Query{Order: repository.OrderUpdatedDesc})
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	streamRecs, err := s.store.List(ctx, repository.TableStreams, s.owner, repository.Query{Order: repository.OrderCreatedAsc})
	if err != nil {
		return fmt.Errorf("load streams: %w", err)
	}

	sessions := make(map[uuid.UUID]*domain.ChatSession, len(sessRecs))
	var current uuid.UUID
	for i, rec := range sessRecs {
		var sess domain.ChatSession
		if err := json.Unmarshal(rec.Data, &sess); err != nil {
			return fmt.Errorf("decode session %s: %w", rec.ID, err)
		}
		if sess.Messages == nil {
			sess.Messages = []domain.Message{}
		}
		sessions[sess.ID] = &sess
		if i == 0 {
			current = sess.ID
		}
	}

	streams := make(map[uuid.UUID][]domain.StreamRecord)
	for _, rec := range streamRecs {
		var sr domain.StreamRecord
		if err := json.Unmarshal(rec.Data, &sr); err != nil {
			return fmt.Errorf("decode stream record %s: %w", rec.ID, err)
		}
		streams[sr.ChatID] = append(streams[sr.ChatID], sr)
	}

	s.mu.Lock()
	s.sessions = sessions
	s.streams = streams
	s.current = current
	for id, sess := range sessions {
		// Sessions that already left the default title never need another one.
		if sess.Title != domain.DefaultChatTitle {
			s.titling[id] = true
		}
	}
	s.mu.Unlock()
	s.changes.publish(struct{}{})
	return nil
}

// CreateSession starts an empty chat. It becomes current when none is set.
func (s *ChatStore) CreateSession() *domain.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.newSessionLocked(uuid.New())
	s.saveSessionLocked("create session", sess)
	return sess.Clone()
}

func (s *ChatStore) newSessionLocked(id uuid.UUID) *domain.ChatSession {
	now := nowUTC()
	sess := &domain.ChatSession{
		ID:        id,
		OwnerID:   s.owner,
		Title:     domain.DefaultChatTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []domain.Message{},
	}
	s.sessions[id] = sess
	if _, ok := s.sessions[s.current]; !ok {
		s.current = id
	}
	return sess
}

func (s *ChatStore) GetSession(id uuid.UUID) (*domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// ListSessions returns every session, most recently updated first.
func (s *ChatStore) ListSessions() []*domain.ChatSession {
	s.mu.RLock()
	out := make([]*domain.ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (s *ChatStore) CurrentSession() (*domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[s.current]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *ChatStore) SetCurrentSessionID(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	s.current = id
	s.changes.publish(struct{}{})
	return nil
}

func (s *ChatStore) UpdateSession(id uuid.UUID, upd SessionUpdate) (*domain.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if upd.Title != nil {
		sess.Title = *upd.Title
		s.titling[id] = true
	}
	sess.UpdatedAt = nextUpdate(sess.UpdatedAt)
	s.saveSessionLocked("update session", sess)
	return sess.Clone(), nil
}

// UpdateMessages replaces the message list of a session, creating the session
// when it does not exist. The list is only written when it carries a message
// id the session has not seen, or when the session is new. It reports whether
// anything was written.
func (s *ChatStore) UpdateMessages(sessionID uuid.UUID, msgs []domain.Message) (bool, error) {
	for i, m := range msgs {
		if m.ID == uuid.Nil {
			return false, fmt.Errorf("update messages: message %d has no id", i)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	created := !ok
	if created {
		sess = s.newSessionLocked(sessionID)
	}
	if !created && !hasNewMessage(sess.Messages, msgs) {
		return false, nil
	}

	_, hadUser := sess.FirstUserMessage()
	sess.Messages = domain.CloneMessages(msgs)
	sess.UpdatedAt = nextUpdate(sess.UpdatedAt)
	s.saveSessionLocked("update messages", sess)

	_, hasUser := sess.FirstUserMessage()
	if (created && len(msgs) > 0) || (!hadUser && hasUser && sess.Title == domain.DefaultChatTitle) {
		s.scheduleTitleLocked(sessionID)
	}
	return true, nil
}

// AppendMessage adds msg at the end of a session in one step, creating the
// session when it does not exist. A message whose id is already there is
// replaced in place.
func (s *ChatStore) AppendMessage(sessionID uuid.UUID, msg domain.Message) error {
	if msg.ID == uuid.Nil {
		return fmt.Errorf("append message: message has no id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	created := !ok
	if created {
		sess = s.newSessionLocked(sessionID)
	}

	_, hadUser := sess.FirstUserMessage()
	m := domain.CloneMessages([]domain.Message{msg})[0]
	if idx := messageIndex(sess.Messages, msg.ID); idx >= 0 {
		sess.Messages[idx] = m
	} else {
		sess.Messages = append(sess.Messages, m)
	}
	sess.UpdatedAt = nextUpdate(sess.UpdatedAt)
	s.saveSessionLocked("append message", sess)

	_, hasUser := sess.FirstUserMessage()
	if created || (!hadUser && hasUser && sess.Title == domain.DefaultChatTitle) {
		s.scheduleTitleLocked(sessionID)
	}
	return nil
}

func hasNewMessage(existing, incoming []domain.Message) bool {
	seen := make(map[uuid.UUID]struct{}, len(existing))
	for _, m := range existing {
		seen[m.ID] = struct{}{}
	}
	for _, m := range incoming {
		if _, ok := seen[m.ID]; !ok {
			return true
		}
	}
	return false
}

func (s *ChatStore) UpdateSingleMessage(sessionID, messageID uuid.UUID, upd MessageUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	idx := messageIndex(sess.Messages, messageID)
	if idx < 0 {
		return domain.ErrMessageNotFound
	}

	m := &sess.Messages[idx]
	if upd.Content != nil {
		m.Content = *upd.Content
	}
	if upd.Parts != nil {
		m.Parts = append([]domain.Part(nil), upd.Parts...)
	}
	if upd.Usage != nil {
		u := *upd.Usage
		m.Usage = &u
	}
	sess.UpdatedAt = nextUpdate(sess.UpdatedAt)
	s.saveSessionLocked("update message", sess)
	return nil
}

func (s *ChatStore) DeleteMessage(sessionID, messageID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	idx := messageIndex(sess.Messages, messageID)
	if idx < 0 {
		return domain.ErrMessageNotFound
	}
	sess.Messages = append(sess.Messages[:idx:idx], sess.Messages[idx+1:]...)
	sess.UpdatedAt = nextUpdate(sess.UpdatedAt)
	s.saveSessionLocked("delete message", sess)
	return nil
}

// DeleteMessagesAfter keeps only the messages created strictly before t.
func (s *ChatStore) DeleteMessagesAfter(sessionID uuid.UUID, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	kept := make([]domain.Message, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		if m.CreatedAt.Before(t) {
			kept = append(kept, m)
		}
	}
	sess.Messages = kept
	sess.UpdatedAt = nextUpdate(sess.UpdatedAt)
	s.saveSessionLocked("truncate messages", sess)
	return nil
}

func (s *ChatStore) GetMessages(sessionID uuid.UUID) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return domain.CloneMessages(sess.Messages), nil
}

// DeleteSession removes the session and every stream record that points at it.
func (s *ChatStore) DeleteSession(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(s.sessions, id)
	delete(s.streams, id)
	delete(s.titling, id)
	if s.current == id {
		s.current = s.latestSessionLocked()
	}

	key := id.String()
	s.queue.enqueue("delete session", func(ctx context.Context) error {
		if _, err := s.store.DeleteByParent(ctx, repository.TableStreams, s.owner, key); err != nil {
			return err
		}
		return s.store.Delete(ctx, repository.TableChats, s.owner, key)
	})
	s.changes.publish(struct{}{})
	return nil
}

// CreateStreamID records a resumable stream for a chat. The oldest records
// beyond the per-session cap are dropped.
func (s *ChatStore) CreateStreamID(streamID, chatID uuid.UUID) {
	rec := domain.StreamRecord{
		ID:        streamID,
		ChatID:    chatID,
		OwnerID:   s.owner,
		CreatedAt: nowUTC(),
	}
	data, _ := json.Marshal(rec)
	row := repository.Record{
		Table:     repository.TableStreams,
		Owner:     s.owner,
		ID:        streamID.String(),
		ParentID:  chatID.String(),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.CreatedAt,
		Data:      data,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chain := append(s.streams[chatID], rec)
	var dropped []string
	if s.maxStreams > 0 && len(chain) > s.maxStreams {
		for _, old := range chain[:len(chain)-s.maxStreams] {
			dropped = append(dropped, old.ID.String())
		}
		chain = append([]domain.StreamRecord(nil), chain[len(chain)-s.maxStreams:]...)
	}
	s.streams[chatID] = chain

	s.queue.enqueue("create stream id", func(ctx context.Context) error {
		if err := s.store.Put(ctx, row); err != nil {
			return err
		}
		return s.store.Delete(ctx, repository.TableStreams, s.owner, dropped...)
	})
}

// GetStreamIDsByChatID returns the stream ids of a chat, oldest first.
func (s *ChatStore) GetStreamIDsByChatID(chatID uuid.UUID) []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.streams[chatID]
	ids := make([]uuid.UUID, len(chain))
	for i, r := range chain {
		ids[i] = r.ID
	}
	return ids
}

// PruneStreams drops stream records created before the cutoff and reports how many went.
func (s *ChatStore) PruneStreams(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped []string
	for chatID, chain := range s.streams {
		kept := chain[:0]
		for _, r := range chain {
			if r.CreatedAt.Before(before) {
				dropped = append(dropped, r.ID.String())
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(s.streams, chatID)
		} else {
			s.streams[chatID] = kept
		}
	}
	if len(dropped) > 0 {
		s.queue.enqueue("prune streams", func(ctx context.Context) error {
			return s.store.Delete(ctx, repository.TableStreams, s.owner, dropped...)
		})
	}
	return len(dropped)
}

// Clear removes every session and stream record of the identity.
func (s *ChatStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessIDs := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		sessIDs = append(sessIDs, id.String())
	}
	var streamIDs []string
	for _, chain := range s.streams {
		for _, r := range chain {
			streamIDs = append(streamIDs, r.ID.String())
		}
	}
	s.sessions = make(map[uuid.UUID]*domain.ChatSession)
	s.streams = make(map[uuid.UUID][]domain.StreamRecord)
	s.titling = make(map[uuid.UUID]bool)
	s.current = uuid.Nil

	s.queue.enqueue("clear sessions", func(ctx context.Context) error {
		if err := s.store.Delete(ctx, repository.TableStreams, s.owner, streamIDs...); err != nil {
			return err
		}
		return s.store.Delete(ctx, repository.TableChats, s.owner, sessIDs...)
	})
	s.changes.publish(struct{}{})
}

func (s *ChatStore) Subscribe() (<-chan struct{}, func()) {
	return s.changes.Subscribe()
}

func (s *ChatStore) Flush(ctx context.Context) error {
	return s.queue.Flush(ctx)
}

// Close cancels pending title jobs, waits for them and drains the write queue.
func (s *ChatStore) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.bgCancel()
	s.wg.Wait()
	s.queue.Close()
}

func (s *ChatStore) saveSessionLocked(op string, sess *domain.ChatSession) {
	data, _ := json.Marshal(sess)
	rec := repository.Record{
		Table:     repository.TableChats,
		Owner:     s.owner,
		ID:        sess.ID.String(),
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		Data:      data,
	}
	s.queue.enqueue(op, func(ctx context.Context) error {
		return s.store.Put(ctx, rec)
	})
	s.changes.publish(struct{}{})
}

func (s *ChatStore) latestSessionLocked() uuid.UUID {
	var (
		latest uuid.UUID
		at     time.Time
	)
	for id, sess := range s.sessions {
		if latest == uuid.Nil || sess.UpdatedAt.After(at) {
			latest, at = id, sess.UpdatedAt
		}
	}
	return latest
}

func messageIndex(msgs []domain.Message, id uuid.UUID) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}
