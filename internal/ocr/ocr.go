// Package ocr talks to a hosted read (OCR) API: submit an image, then poll the returned
// operation until the provider reports a result.
package ocr

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// PollInterval is the wait before each poll of a submitted operation.
	PollInterval = time.Second
	// MaxPollAttempts caps the number of polls per image.
	MaxPollAttempts = 15

	readAnalyzePath = "/vision/v3.2/read/analyze"
	keyHeader       = "Ocp-Apim-Subscription-Key"
	operationHeader = "Operation-Location"
)

var (
	ErrOCRFailed   = errors.New("ocr: provider reported failure")
	ErrOCRTimeout  = errors.New("ocr: no result within polling budget")
	ErrNoOperation = errors.New("ocr: submit response has no Operation-Location header")
)

type Config struct {
	Endpoint string        // e.g. https://<resource>.cognitiveservices.azure.com
	APIKey   string        // subscription key
	Language string        // optional BCP-47 hint, empty lets the provider detect
	Timeout  time.Duration // per HTTP call, default 30s
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	interval time.Duration
	attempts int
}

type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for submit and poll calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	c := &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
		interval: PollInterval,
		attempts: MaxPollAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExtractFile reads the image at path and returns its recognized text.
func (c *Client) ExtractFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return c.Extract(ctx, data)
}
