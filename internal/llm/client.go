package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/set-night/mindcanvas/internal/config"
	"github.com/set-night/mindcanvas/internal/domain"
)

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	cache        *modelsCache
}

func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: config.RequestTimeout},
		streamClient: &http.Client{}, // bounded by the caller's context
		cache:        newModelsCache(config.ModelCacheDuration),
	}
}

type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

// JSONObject asks the provider to answer with a single JSON object.
var JSONObject = &ResponseFormat{Type: "json_object"}

type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Tools          []Tool          `json:"tools,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	StreamOptions  *streamOptions  `json:"stream_options,omitempty"`

	// DID is sent as the X-Did header.
	DID string `json:"-"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type Completion struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        domain.Usage
}

type apiUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Cost             float64 `json:"cost"`
	TotalCost        float64 `json:"total_cost"`
}

func (u *apiUsage) toDomain() domain.Usage {
	cost := u.Cost
	if cost == 0 {
		cost = u.TotalCost
	}
	return domain.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		Cost:             decimal.NewFromFloat(cost),
	}
}

func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// Complete runs a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	req.Stream = false
	req.StreamOptions = nil

	resp, err := c.post(ctx, c.httpClient, "/chat/completions", req.DID, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var chatResp struct {
		Choices []struct {
			Message struct {
				Content   string     `json:"content"`
				ToolCalls []ToolCall `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage apiUsage `json:"usage"`
	}
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("parse response: no choices")
	}

	choice := chatResp.Choices[0]
	return &Completion{
		Content:      choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		Usage:        chatResp.Usage.toDomain(),
	}, nil
}

// post sends a JSON body and returns the response when the status is 2xx.
func (c *Client) post(ctx context.Context, hc *http.Client, path, did string, payload any) (*http.Response, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req, did)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, errorFromResponse(resp.StatusCode, body)
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request, did string) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if did != "" {
		req.Header.Set("X-Did", did)
		req.Header.Set("X-Did-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	}
}
