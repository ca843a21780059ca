package streamhub

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/mindcanvas/internal/domain"
)

func drain(sub *Subscription) []Frame {
	frames := append([]Frame(nil), sub.Replay...)
	for f := range sub.Live {
		frames = append(frames, f)
	}
	return frames
}

func TestAttachMidStreamGetsEveryFrameOnce(t *testing.T) {
	hub := New()
	id := uuid.New()
	s := hub.Open(id, nil)

	for i := 0; i < 3; i++ {
		s.Publish("text-delta", json.RawMessage(fmt.Sprintf(`{"i":%d}`, i)))
	}
	sub, err := hub.Attach(id)
	require.NoError(t, err)
	assert.Len(t, sub.Replay, 3)

	done := make(chan []Frame)
	go func() { done <- drain(sub) }()

	for i := 3; i < 10; i++ {
		s.Publish("text-delta", json.RawMessage(fmt.Sprintf(`{"i":%d}`, i)))
	}
	s.Publish("finish", nil)
	s.Close()

	frames := <-done
	require.Len(t, frames, 11)
	for i, f := range frames {
		assert.Equal(t, i+1, f.Seq)
	}
	assert.Equal(t, "finish", frames[10].Type)
}

func TestAttachAfterCloseReplays(t *testing.T) {
	hub := New()
	id := uuid.New()
	s := hub.Open(id, nil)
	s.Publish("start", nil)
	s.Publish("finish", nil)
	s.Close()
	s.Publish("late", nil)

	sub, err := hub.Attach(id)
	require.NoError(t, err)
	frames := drain(sub)
	require.Len(t, frames, 2)
	assert.False(t, hub.Active(id))

	_, err = hub.Attach(uuid.New())
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	hub := New()
	id := uuid.New()
	s := hub.Open(id, nil)

	sub, err := hub.Attach(id)
	require.NoError(t, err)
	for i := 0; i < subscriberBuffer+5; i++ {
		s.Publish("text-delta", nil)
	}

	n := 0
	for range sub.Live {
		n++
	}
	assert.Equal(t, subscriberBuffer, n)

	again, err := hub.Attach(id)
	require.NoError(t, err)
	assert.Len(t, again.Replay, subscriberBuffer+5)
	again.Close()
	s.Close()
}

func TestStopCancels(t *testing.T) {
	hub := New()
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New()
	hub.Open(id, cancel)

	require.NoError(t, hub.Stop(id))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.ErrorIs(t, hub.Stop(uuid.New()), domain.ErrStreamNotFound)
}

func TestPrune(t *testing.T) {
	hub := New()
	finished := hub.Open(uuid.New(), nil)
	finished.Close()
	running := hub.Open(uuid.New(), nil)

	assert.Equal(t, 0, hub.Prune(time.Hour))
	assert.Equal(t, 1, hub.Prune(-time.Second))
	assert.True(t, hub.Active(running.ID()))
	_, err := hub.Attach(finished.ID())
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}
