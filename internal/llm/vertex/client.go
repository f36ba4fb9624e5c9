// Package vertex implements llm.Completer on Vertex AI Gemini models.
package vertex

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/joseph-ayodele/docflow/internal/llm"
)

type Config struct {
	ProjectID   string
	Region      string  // default us-central1
	Model       string  // default gemini-1.5-pro
	Temperature float32
	MaxTokens   int32
}

type Client struct {
	cfg    Config
	base   *genai.Client
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("vertex: project id is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-central1"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-pro"
	}
	base, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &Client{cfg: cfg, base: base, logger: logger}, nil
}

func (c *Client) Close() error {
	if c.base != nil {
		return c.base.Close()
	}
	return nil
}

// Complete implements llm.Completer.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()

	model := c.base.GenerativeModel(c.cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr(c.cfg.Temperature),
	}
	if c.cfg.MaxTokens > 0 {
		model.GenerationConfig.MaxOutputTokens = genai.Ptr(c.cfg.MaxTokens)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		c.logger.Error("llm.vertex.generate_error", "model", c.cfg.Model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("vertex generate: %w", err)
	}

	text, ok := replyText(resp)
	if !ok {
		return "", fmt.Errorf("%w: no text candidates", llm.ErrMalformedResponse)
	}
	c.logger.Info("llm.vertex.ok", "model", c.cfg.Model, "reply_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}

func replyText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", false
	}
	var b strings.Builder
	found := false
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
			found = true
		}
	}
	return b.String(), found
}
