package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/internal/common"
)

type readResponse struct {
	Status        string `json:"status"`
	AnalyzeResult *struct {
		ReadResults []struct {
			Page  int `json:"page"`
			Lines []struct {
				Text string `json:"text"`
			} `json:"lines"`
		} `json:"readResults"`
	} `json:"analyzeResult"`
}

// text joins lines with newlines per page, then pages with newlines.
func (r readResponse) text() string {
	if r.AnalyzeResult == nil {
		return ""
	}
	pages := make([]string, 0, len(r.AnalyzeResult.ReadResults))
	for _, page := range r.AnalyzeResult.ReadResults {
		lines := make([]string, 0, len(page.Lines))
		for _, line := range page.Lines {
			lines = append(lines, line.Text)
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return strings.Join(pages, "\n")
}

// Extract submits image bytes and polls until the provider reports a result.
func (c *Client) Extract(ctx context.Context, image []byte) (string, error) {
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	log := c.logger.With("req_id", rid)
	start := time.Now()

	op, err := c.submit(ctx, image)
	if err != nil {
		log.Error("ocr.submit.error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}
	log.Info("ocr.submit.ok", "bytes", len(image))

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := sleep(ctx, c.interval); err != nil {
			return "", err
		}
		res, err := c.poll(ctx, op)
		if err != nil {
			log.Error("ocr.poll.error", "attempt", attempt, "error", err)
			return "", err
		}
		switch res.Status {
		case "succeeded":
			if res.AnalyzeResult == nil {
				log.Error("ocr.result.missing", "attempts", attempt)
				return "", fmt.Errorf("%w: succeeded without analyzeResult", ErrOCRFailed)
			}
			text := res.text()
			log.Info("ocr.ok",
				"attempts", attempt,
				"chars", len(text),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return text, nil
		case "failed":
			log.Error("ocr.failed", "attempts", attempt)
			return "", ErrOCRFailed
		default:
			log.Debug("ocr.poll.pending", "attempt", attempt, "status", res.Status)
		}
	}

	log.Error("ocr.timeout", "attempts", c.attempts, "elapsed_ms", time.Since(start).Milliseconds())
	return "", ErrOCRTimeout
}

func (c *Client) submit(ctx context.Context, image []byte) (string, error) {
	endpoint := c.cfg.Endpoint + readAnalyzePath
	if c.cfg.Language != "" {
		endpoint += "?" + url.Values{"language": {c.cfg.Language}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set(keyHeader, c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr submit: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("ocr.http.response_body_close_error", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return "", fmt.Errorf("ocr submit status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	op := resp.Header.Get(operationHeader)
	if op == "" {
		return "", ErrNoOperation
	}
	return op, nil
}

func (c *Client) poll(ctx context.Context, op string) (readResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, op, nil)
	if err != nil {
		return readResponse{}, fmt.Errorf("build poll request: %w", err)
	}
	req.Header.Set(keyHeader, c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return readResponse{}, fmt.Errorf("ocr poll: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("ocr.http.response_body_close_error", "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return readResponse{}, fmt.Errorf("read poll response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return readResponse{}, fmt.Errorf("ocr poll status %d: %s", resp.StatusCode, truncate(string(raw), 8<<10))
	}

	var out readResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return readResponse{}, fmt.Errorf("decode poll response: %w", err)
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
