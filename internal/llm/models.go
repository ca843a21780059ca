package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/set-night/mindcanvas/internal/domain"
)

var perMillion = decimal.NewFromInt(1_000_000)

// ProviderModel is one entry of the provider's model listing. Prices are USD
// per million tokens.
type ProviderModel struct {
	ID              string
	Name            string
	ContextLength   int
	PromptPrice     decimal.Decimal
	CompletionPrice decimal.Decimal
	Vision          bool
	ImageOutput     bool
}

func (m ProviderModel) IsFree() bool {
	return m.PromptPrice.IsZero() && m.CompletionPrice.IsZero()
}

type modelsCache struct {
	mu       sync.RWMutex
	models   []ProviderModel
	cachedAt time.Time
	ttl      time.Duration
}

func newModelsCache(ttl time.Duration) *modelsCache {
	return &modelsCache{ttl: ttl}
}

func (c *modelsCache) get() []ProviderModel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.models == nil || time.Since(c.cachedAt) > c.ttl {
		return nil
	}
	return c.models
}

func (c *modelsCache) set(models []ProviderModel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = models
	c.cachedAt = time.Now()
}

type apiModel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Pricing struct {
		Prompt     string `json:"prompt"`
		Completion string `json:"completion"`
	} `json:"pricing"`
	ContextLength int `json:"context_length"`
	TopProvider   struct {
		ContextLength int `json:"context_length"`
	} `json:"top_provider"`
	Architecture struct {
		Modality string `json:"modality"`
	} `json:"architecture"`
}

func (m apiModel) toProviderModel() ProviderModel {
	ctxLen := m.ContextLength
	if m.TopProvider.ContextLength > 0 {
		ctxLen = m.TopProvider.ContextLength
	}
	in, out, _ := strings.Cut(m.Architecture.Modality, "->")
	return ProviderModel{
		ID:              m.ID,
		Name:            m.Name,
		ContextLength:   ctxLen,
		PromptPrice:     pricePerMillion(m.Pricing.Prompt),
		CompletionPrice: pricePerMillion(m.Pricing.Completion),
		Vision:          strings.Contains(in, "image"),
		ImageOutput:     strings.Contains(out, "image"),
	}
}

// pricePerMillion converts a per-token price string. Unparseable prices count as zero.
func pricePerMillion(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d.Mul(perMillion)
}

// ListModels returns the provider's model list, cached for ModelCacheDuration.
func (c *Client) ListModels(ctx context.Context) ([]ProviderModel, error) {
	if cached := c.cache.get(); cached != nil {
		return cached, nil
	}
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch models: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp.StatusCode, body)
	}

	var result struct {
		Data []apiModel `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse models: %w", err)
	}

	models := make([]ProviderModel, 0, len(result.Data))
	for _, m := range result.Data {
		models = append(models, m.toProviderModel())
	}
	c.cache.set(models)
	return models, nil
}

func (c *Client) GetModel(ctx context.Context, modelID string) (*ProviderModel, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		if m.ID == modelID {
			return &m, nil
		}
	}
	return nil, domain.ErrModelNotFound
}
