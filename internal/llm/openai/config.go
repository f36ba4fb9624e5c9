package openai

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config for an OpenAI-compatible chat/completions endpoint (OpenAI, Groq, ...).
type Config struct {
	APIKey      string
	BaseURL     string        // default https://api.groq.com/openai/v1
	Model       string        // default "llama3-70b-8192"
	Temperature float32       // 0..2
	MaxTokens   int           // default 1024
	Timeout     time.Duration // http client timeout
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com/openai/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "llama3-70b-8192"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}
