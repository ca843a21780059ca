// Package streamhub keeps generation streams attachable after the client that
// started them went away.
package streamhub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/set-night/mindcanvas/internal/domain"
)

const subscriberBuffer = 256

// Frame is one published event. Seq starts at 1 and has no gaps.
type Frame struct {
	Seq  int             `json:"seq"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Hub struct {
	mu      sync.Mutex
	streams map[uuid.UUID]*Stream
}

func New() *Hub {
	return &Hub{streams: make(map[uuid.UUID]*Stream)}
}

// Stream is the publishing side of one generation.
type Stream struct {
	id     uuid.UUID
	cancel context.CancelFunc

	mu         sync.Mutex
	frames     []Frame
	subs       map[int]chan Frame
	nextSub    int
	done       bool
	finishedAt time.Time
}

// Open registers a stream. cancel is called by Stop.
func (h *Hub) Open(id uuid.UUID, cancel context.CancelFunc) *Stream {
	s := &Stream{
		id:     id,
		cancel: cancel,
		subs:   make(map[int]chan Frame),
	}
	h.mu.Lock()
	h.streams[id] = s
	h.mu.Unlock()
	return s
}

func (s *Stream) ID() uuid.UUID {
	return s.id
}

// Publish appends a frame and fans it out. A subscriber whose buffer is full
// is dropped; it can attach again and replay.
func (s *Stream) Publish(typ string, data json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}

	f := Frame{Seq: len(s.frames) + 1, Type: typ, Data: data}
	s.frames = append(s.frames, f)
	for id, ch := range s.subs {
		select {
		case ch <- f:
		default:
			slog.Debug("dropping slow stream subscriber", "stream_id", s.id, "seq", f.Seq)
			close(ch)
			delete(s.subs, id)
		}
	}
}

// Close marks the stream finished and ends every live subscription.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.finishedAt = time.Now()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// Subscription is an attached reader: Replay holds every frame published so
// far, Live carries the following ones and is closed when the stream ends.
type Subscription struct {
	Replay []Frame
	Live   <-chan Frame

	stream *Stream
	id     int
}

func (sub *Subscription) Close() {
	if sub.stream == nil {
		return
	}
	s := sub.stream
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[sub.id]; ok {
		close(ch)
		delete(s.subs, sub.id)
	}
}

// Attach subscribes to a stream. Each frame is delivered exactly once across
// Replay and Live, in order.
func (h *Hub) Attach(id uuid.UUID) (*Subscription, error) {
	h.mu.Lock()
	s, ok := h.streams[id]
	h.mu.Unlock()
	if !ok {
		return nil, domain.ErrStreamNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replay := append([]Frame(nil), s.frames...)
	ch := make(chan Frame, subscriberBuffer)
	if s.done {
		close(ch)
		return &Subscription{Replay: replay, Live: ch}, nil
	}

	subID := s.nextSub
	s.nextSub++
	s.subs[subID] = ch
	return &Subscription{Replay: replay, Live: ch, stream: s, id: subID}, nil
}

// Stop aborts a running stream.
func (h *Hub) Stop(id uuid.UUID) error {
	h.mu.Lock()
	s, ok := h.streams[id]
	h.mu.Unlock()
	if !ok {
		return domain.ErrStreamNotFound
	}

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if !done && s.cancel != nil {
		s.cancel()
	}
	return nil
}

// Active reports whether the stream exists and has not finished.
func (h *Hub) Active(id uuid.UUID) bool {
	h.mu.Lock()
	s, ok := h.streams[id]
	h.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.done
}

// Prune forgets finished streams older than maxAge and returns how many went.
func (h *Hub) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for id, s := range h.streams {
		s.mu.Lock()
		expired := s.done && s.finishedAt.Before(cutoff)
		s.mu.Unlock()
		if expired {
			delete(h.streams, id)
			n++
		}
	}
	return n
}
