package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/docflow/internal/common"
)

// Client structures text through a Completer. A reply without a parseable JSON object is retried
// once; a second miss yields a Fallback, never an error. Completer errors are returned as-is.
type Client struct {
	completer Completer
	logger    *slog.Logger
}

func NewClient(completer Completer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{completer: completer, logger: logger}
}

func (c *Client) Structure(ctx context.Context, text string) (Result, error) {
	log := common.LoggerFromContext(ctx, c.logger)
	start := time.Now()
	log.Info("llm.structure.start", "text_len", len(text))

	res, err := c.structure(ctx, log, text, true)
	if err != nil {
		log.Error("llm.structure.error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return Result{}, err
	}
	if res.Fallback != nil {
		log.Warn("llm.structure.fallback",
			"attempts", res.Attempts,
			"reply_len", len(res.Fallback.StructuredData),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return res, nil
	}
	log.Info("llm.structure.ok",
		"attempts", res.Attempts,
		"fields", res.Record.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (c *Client) structure(ctx context.Context, log *slog.Logger, text string, retry bool) (Result, error) {
	reply, err := c.completer.Complete(ctx, SystemPrompt, UserPrompt(text))
	if err != nil {
		return Result{}, err
	}
	if rec, ok := ExtractJSON(reply); ok {
		return Result{Record: rec, Attempts: 1}, nil
	}
	if retry {
		log.Warn("llm.structure.retry", "reason", "reply not in JSON format")
		res, err := c.structure(ctx, log, text, false)
		res.Attempts++
		return res, err
	}
	return Result{
		Fallback: &Fallback{RawText: text, StructuredData: reply, Error: NotJSONMarker},
		Attempts: 1,
	}, nil
}
