package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/set-night/mindcanvas/internal/domain"
)

// maxEventSize bounds one SSE event.
const maxEventSize = 1 << 20

type EventType string

const (
	EventTextDelta EventType = "text-delta"
	EventReasoning EventType = "reasoning"
	EventToolCall  EventType = "tool-call"
	EventFinish    EventType = "finish"
)

// Event is one item of a streamed completion. Finish is always the last event.
type Event struct {
	Type         EventType
	Text         string
	ToolCall     *ToolCall
	FinishReason string
	Usage        *domain.Usage
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *apiUsage     `json:"usage"`
	Error *apiErrorBody `json:"error"`
}

// Stream runs a streaming chat completion and calls fn for every event.
// Tool call fragments are assembled and delivered as whole calls before finish.
// An error returned by fn stops the stream and is returned as is.
func (c *Client) Stream(ctx context.Context, req Request, fn func(Event) error) error {
	req.Stream = true
	req.StreamOptions = &streamOptions{IncludeUsage: true}

	resp, err := c.post(ctx, c.streamClient, "/chat/completions", req.DID, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return readStream(ctx, resp.Body, fn)
}

func readStream(ctx context.Context, body io.Reader, fn func(Event) error) error {
	reader := newSSEReader(body)

	var (
		partial      strings.Builder
		calls        = map[int]*ToolCall{}
		finishReason string
		usage        *domain.Usage
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := reader.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return &StreamError{Partial: partial.String(), Err: err}
		}
		if bytes.Equal(data, []byte("[DONE]")) {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			return &StreamError{
				Partial: partial.String(),
				Err:     &APIError{Code: chunk.Error.code(), Message: chunk.Error.Message},
			}
		}
		if chunk.Usage != nil {
			u := chunk.Usage.toDomain()
			usage = &u
		}

		for _, choice := range chunk.Choices {
			d := choice.Delta
			if d.Reasoning != "" {
				if err := fn(Event{Type: EventReasoning, Text: d.Reasoning}); err != nil {
					return err
				}
			}
			if d.Content != "" {
				partial.WriteString(d.Content)
				if err := fn(Event{Type: EventTextDelta, Text: d.Content}); err != nil {
					return err
				}
			}
			for _, tc := range d.ToolCalls {
				call, ok := calls[tc.Index]
				if !ok {
					call = &ToolCall{Type: "function"}
					calls[tc.Index] = call
				}
				if tc.ID != "" {
					call.ID = tc.ID
				}
				if tc.Function.Name != "" {
					call.Function.Name = tc.Function.Name
				}
				call.Function.Arguments += tc.Function.Arguments
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				finishReason = *choice.FinishReason
			}
		}
	}

	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		call := calls[i]
		if call.Function.Name == "" {
			continue
		}
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d", i)
		}
		if err := fn(Event{Type: EventToolCall, ToolCall: call}); err != nil {
			return err
		}
	}

	if finishReason == "" {
		finishReason = "stop"
	}
	return fn(Event{Type: EventFinish, FinishReason: finishReason, Usage: usage})
}

// sseReader yields the data payload of each server-sent event.
type sseReader struct {
	r *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{r: bufio.NewReaderSize(r, 64*1024)}
}

func (s *sseReader) next() ([]byte, error) {
	var data [][]byte
	size := 0
	for {
		line, err := s.r.ReadBytes('\n')
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			if errors.Is(err, io.EOF) && len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}
			continue
		}
		// id:, event:, retry: and ": comment" lines carry nothing we use.
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}

		payload := bytes.TrimPrefix(line[5:], []byte(" "))
		size += len(payload)
		if size > maxEventSize {
			return nil, fmt.Errorf("sse event exceeds %d bytes", maxEventSize)
		}
		data = append(data, payload)
	}
}
