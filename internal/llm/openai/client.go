package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joseph-ayodele/docflow/internal/llm"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete implements llm.Completer with a single chat/completions call.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	body := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, _, err := llm.SendJSON(ctx, c.http, c.cfg.BaseURL+"/chat/completions", body, headers, c.logger)
	if err != nil {
		return "", err
	}

	content, err := decodeContent(raw)
	if err != nil {
		c.logger.Error("llm.openai.decode_error",
			"error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}
	c.logger.Debug("llm.openai.ok", "model", c.cfg.Model, "reply_len", len(content))
	return content, nil
}

func decodeContent(raw []byte) (string, error) {
	var cc chatCompletionResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", llm.ErrMalformedResponse)
	}
	if cc.Choices[0].Message.Content == nil {
		return "", fmt.Errorf("%w: choice has no message content", llm.ErrMalformedResponse)
	}
	return *cc.Choices[0].Message.Content, nil
}
