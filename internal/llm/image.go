package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

type ImageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
	N      int    `json:"n"`
	Format string `json:"response_format"`

	DID string `json:"-"`
}

// GenerateImage returns one base64-encoded image for the prompt.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	req.N = 1
	req.Format = "b64_json"
	if req.Size == "" {
		req.Size = "1024x1024"
	}

	resp, err := c.post(ctx, c.httpClient, "/images/generations", req.DID, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var result struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse image response: %w", err)
	}
	if len(result.Data) == 0 || result.Data[0].B64JSON == "" {
		return "", fmt.Errorf("parse image response: no image data")
	}
	return result.Data[0].B64JSON, nil
}
