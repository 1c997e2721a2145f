package ollama

import (
	"context"
	"fmt"
	"time"
)

// GenerateClient calls Ollama's /api/generate endpoint without streaming.
type GenerateClient struct {
	client
}

// NewGenerateClient creates an Ollama text generation client.
func NewGenerateClient(baseURL, model string, timeout time.Duration) *GenerateClient {
	return &GenerateClient{client: newClient(baseURL, model, timeout)}
}

type generateReq struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResp struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate returns the model's completion for prompt.
func (c *GenerateClient) Generate(ctx context.Context, prompt string) (string, error) {
	req := generateReq{
		Model:   c.model,
		Prompt:  prompt,
		Options: map[string]any{"temperature": 0},
	}
	var resp generateResp
	if err := c.post(ctx, "/api/generate", req, &resp); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if !resp.Done {
		return "", fmt.Errorf("ollama generate: incomplete response")
	}
	return resp.Response, nil
}
