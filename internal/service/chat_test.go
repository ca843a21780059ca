package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/mindcanvas/internal/domain"
)

func newChats(t *testing.T, titles TitleGenerator, maxStreams int) *ChatStore {
	t.Helper()
	s := NewChatStore(openStore(t), testDID, titles, maxStreams)
	t.Cleanup(s.Close)
	return s
}

func TestCreateSession(t *testing.T) {
	s := newChats(t, nil, 0)

	sess := s.CreateSession()
	assert.Empty(t, sess.Messages)
	assert.NotNil(t, sess.Messages)
	assert.Equal(t, domain.DefaultChatTitle, sess.Title)
	assert.Equal(t, testDID, sess.OwnerID)

	cur, err := s.CurrentSession()
	require.NoError(t, err)
	assert.Equal(t, sess.ID, cur.ID)

	second := s.CreateSession()
	cur, err = s.CurrentSession()
	require.NoError(t, err)
	assert.Equal(t, sess.ID, cur.ID)

	require.NoError(t, s.SetCurrentSessionID(second.ID))
	cur, err = s.CurrentSession()
	require.NoError(t, err)
	assert.Equal(t, second.ID, cur.ID)
	assert.ErrorIs(t, s.SetCurrentSessionID(uuid.New()), domain.ErrSessionNotFound)
}

func TestUpdateMessagesAppendSequence(t *testing.T) {
	s := newChats(t, nil, 0)
	id := uuid.New()

	var msgs []domain.Message
	var lastUpdated time.Time
	for i := 0; i < 5; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		msgs = append(msgs, domain.NewMessage(role, "m"))

		changed, err := s.UpdateMessages(id, msgs)
		require.NoError(t, err)
		assert.True(t, changed)

		sess, err := s.GetSession(id)
		require.NoError(t, err)
		assert.Equal(t, len(msgs), len(sess.Messages))
		for j := range msgs {
			assert.Equal(t, msgs[j].ID, sess.Messages[j].ID)
		}
		assert.False(t, sess.UpdatedAt.Before(lastUpdated))
		lastUpdated = sess.UpdatedAt
	}
}

func TestUpdateMessagesDiffGate(t *testing.T) {
	s := newChats(t, nil, 0)
	id := uuid.New()
	msgs := []domain.Message{domain.NewMessage(domain.RoleUser, "hi")}

	changed, err := s.UpdateMessages(id, msgs)
	require.NoError(t, err)
	assert.True(t, changed)

	edited := domain.CloneMessages(msgs)
	edited[0].Content = "changed"
	changed, err = s.UpdateMessages(id, edited)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := s.GetMessages(id)
	require.NoError(t, err)
	assert.Equal(t, "hi", got[0].Content)

	// an empty list on a new session still creates it
	empty := uuid.New()
	changed, err = s.UpdateMessages(empty, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	_, err = s.GetSession(empty)
	assert.NoError(t, err)

	_, err = s.UpdateMessages(id, []domain.Message{{Role: domain.RoleUser}})
	assert.Error(t, err)
}

func TestNewChatGetsGeneratedTitle(t *testing.T) {
	titles := &fakeTitles{title: `"Friendly greeting"`}
	s := newChats(t, titles, 0)

	sess := s.CreateSession()
	_, err := s.UpdateMessages(sess.ID, []domain.Message{domain.NewMessage(domain.RoleUser, "Hi")})
	require.NoError(t, err)
	s.Wait()

	got, err := s.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Friendly greeting", got.Title)
	assert.Equal(t, []string{"Hi"}, titles.Calls())

	// later messages do not ask again
	_, err = s.UpdateMessages(sess.ID, append(got.Messages, domain.NewMessage(domain.RoleAssistant, "Hello!")))
	require.NoError(t, err)
	s.EnsureTitle(sess.ID)
	s.Wait()
	assert.Len(t, titles.Calls(), 1)
}

func TestLazySessionGetsTitleOnce(t *testing.T) {
	titles := &fakeTitles{title: "Weather"}
	s := newChats(t, titles, 0)
	id := uuid.New()

	first := domain.NewMessage(domain.RoleUser, "weather in paris?")
	_, err := s.UpdateMessages(id, []domain.Message{first})
	require.NoError(t, err)
	_, err = s.UpdateMessages(id, []domain.Message{first, domain.NewMessage(domain.RoleAssistant, "sunny")})
	require.NoError(t, err)
	s.Wait()

	got, err := s.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, "Weather", got.Title)
	assert.Len(t, titles.Calls(), 1)
}

func TestTitleFailureKeepsDefault(t *testing.T) {
	s := newChats(t, &fakeTitles{err: errTitleDown}, 0)
	id := uuid.New()

	_, err := s.UpdateMessages(id, []domain.Message{domain.NewMessage(domain.RoleUser, "Hi")})
	require.NoError(t, err)
	s.Wait()

	got, err := s.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultChatTitle, got.Title)

	assert.ErrorIs(t, s.UpdateTitle(context.Background(), id), errTitleDown)
	assert.ErrorIs(t, s.UpdateTitle(context.Background(), uuid.New()), domain.ErrSessionNotFound)
}

func TestSingleMessageEdits(t *testing.T) {
	s := newChats(t, nil, 0)
	id := uuid.New()
	u := domain.NewMessage(domain.RoleUser, "q")
	a := domain.NewMessage(domain.RoleAssistant, "")
	_, err := s.UpdateMessages(id, []domain.Message{u, a})
	require.NoError(t, err)

	content := "answer"
	usage := domain.Usage{PromptTokens: 1, CompletionTokens: 2}
	require.NoError(t, s.UpdateSingleMessage(id, a.ID, MessageUpdate{
		Content: &content,
		Parts:   []domain.Part{{Type: domain.PartText, Text: content}},
		Usage:   &usage,
	}))

	msgs, err := s.GetMessages(id)
	require.NoError(t, err)
	assert.Equal(t, "answer", msgs[1].Content)
	require.NotNil(t, msgs[1].Usage)
	assert.Equal(t, 2, msgs[1].Usage.CompletionTokens)

	assert.ErrorIs(t, s.UpdateSingleMessage(id, uuid.New(), MessageUpdate{}), domain.ErrMessageNotFound)
	assert.ErrorIs(t, s.UpdateSingleMessage(uuid.New(), a.ID, MessageUpdate{}), domain.ErrSessionNotFound)

	require.NoError(t, s.DeleteMessage(id, u.ID))
	msgs, err = s.GetMessages(id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, a.ID, msgs[0].ID)
}

func TestDeleteMessagesAfter(t *testing.T) {
	s := newChats(t, nil, 0)
	id := uuid.New()
	base := time.Now().UTC()

	var msgs []domain.Message
	for i := 0; i < 4; i++ {
		m := domain.NewMessage(domain.RoleUser, "m")
		m.CreatedAt = base.Add(time.Duration(i) * time.Second)
		msgs = append(msgs, m)
	}
	_, err := s.UpdateMessages(id, msgs)
	require.NoError(t, err)

	require.NoError(t, s.DeleteMessagesAfter(id, msgs[2].CreatedAt))
	got, err := s.GetMessages(id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, msgs[1].ID, got[1].ID)
}

func TestDeleteSessionCascadesStreams(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	s := NewChatStore(store, testDID, nil, 0)
	defer s.Close()

	a := s.CreateSession()
	b := s.CreateSession()
	for i := 0; i < 3; i++ {
		s.CreateStreamID(uuid.New(), a.ID)
	}
	keep := uuid.New()
	s.CreateStreamID(keep, b.ID)

	require.NoError(t, s.DeleteSession(a.ID))
	assert.Empty(t, s.GetStreamIDsByChatID(a.ID))
	assert.Equal(t, []uuid.UUID{keep}, s.GetStreamIDsByChatID(b.ID))
	assert.ErrorIs(t, s.DeleteSession(a.ID), domain.ErrSessionNotFound)

	require.NoError(t, s.Flush(ctx))
	reloaded := NewChatStore(store, testDID, nil, 0)
	defer reloaded.Close()
	require.NoError(t, reloaded.Load(ctx))
	assert.Empty(t, reloaded.GetStreamIDsByChatID(a.ID))
	assert.Equal(t, []uuid.UUID{keep}, reloaded.GetStreamIDsByChatID(b.ID))
	_, err := reloaded.GetSession(a.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStreamIDsOrderAndCap(t *testing.T) {
	s := newChats(t, nil, 3)
	chat := s.CreateSession()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		id := uuid.New()
		ids = append(ids, id)
		s.CreateStreamID(id, chat.ID)
	}
	assert.Equal(t, ids[2:], s.GetStreamIDsByChatID(chat.ID))
}

func TestPruneStreams(t *testing.T) {
	s := newChats(t, nil, 0)
	chat := s.CreateSession()
	s.CreateStreamID(uuid.New(), chat.ID)
	s.CreateStreamID(uuid.New(), chat.ID)

	assert.Equal(t, 0, s.PruneStreams(time.Now().Add(-time.Hour)))
	assert.Equal(t, 2, s.PruneStreams(time.Now().Add(time.Second)))
	assert.Empty(t, s.GetStreamIDsByChatID(chat.ID))
}

func TestListSessionsOrder(t *testing.T) {
	s := newChats(t, nil, 0)
	a := s.CreateSession()
	b := s.CreateSession()
	time.Sleep(2 * time.Millisecond)
	title := "renamed"
	_, err := s.UpdateSession(a.ID, SessionUpdate{Title: &title})
	require.NoError(t, err)

	list := s.ListSessions()
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}

func TestChatsReload(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	s := NewChatStore(store, testDID, nil, 0)
	id := uuid.New()
	msgs := []domain.Message{domain.NewMessage(domain.RoleUser, "hello")}
	_, err := s.UpdateMessages(id, msgs)
	require.NoError(t, err)
	stream := uuid.New()
	s.CreateStreamID(stream, id)
	require.NoError(t, s.Flush(ctx))
	s.Close()

	reloaded := NewChatStore(store, testDID, nil, 0)
	defer reloaded.Close()
	require.NoError(t, reloaded.Load(ctx))

	sess, err := reloaded.GetSession(id)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, "hello", sess.Messages[0].Content)
	assert.Equal(t, []uuid.UUID{stream}, reloaded.GetStreamIDsByChatID(id))

	cur, err := reloaded.CurrentSession()
	require.NoError(t, err)
	assert.Equal(t, id, cur.ID)
}

func TestChatsClear(t *testing.T) {
	s := newChats(t, nil, 0)
	a := s.CreateSession()
	s.CreateStreamID(uuid.New(), a.ID)

	s.Clear()
	assert.Empty(t, s.ListSessions())
	assert.Empty(t, s.GetStreamIDsByChatID(a.ID))
	_, err := s.CurrentSession()
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestAppendMessageConcurrent(t *testing.T) {
	titles := &fakeTitles{title: "Greeting"}
	s := newChats(t, titles, 0)
	id := uuid.New()

	var wg sync.WaitGroup
	sent := make([]domain.Message, 20)
	for i := range sent {
		sent[i] = domain.NewMessage(domain.RoleUser, "m")
		wg.Add(1)
		go func(m domain.Message) {
			defer wg.Done()
			assert.NoError(t, s.AppendMessage(id, m))
		}(sent[i])
	}
	wg.Wait()

	msgs, err := s.GetMessages(id)
	require.NoError(t, err)
	require.Len(t, msgs, len(sent))
	got := make(map[uuid.UUID]bool, len(msgs))
	for _, m := range msgs {
		got[m.ID] = true
	}
	for _, m := range sent {
		assert.True(t, got[m.ID])
	}

	s.Wait()
	assert.Len(t, titles.Calls(), 1, "one title job per session")
}

func TestAppendMessageReplacesSameID(t *testing.T) {
	s := newChats(t, nil, 0)
	id := uuid.New()
	first := domain.NewMessage(domain.RoleUser, "hi")
	reply := domain.NewMessage(domain.RoleAssistant, "")

	require.NoError(t, s.AppendMessage(id, first))
	require.NoError(t, s.AppendMessage(id, reply))
	reply.Content = "hello"
	require.NoError(t, s.AppendMessage(id, reply))

	msgs, err := s.GetMessages(id)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, "hello", msgs[1].Content)

	assert.Error(t, s.AppendMessage(id, domain.Message{Role: domain.RoleUser}))
}
