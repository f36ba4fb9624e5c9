package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	OCR      OCRConfig      `yaml:"ocr"`
	PDF      PDFConfig      `yaml:"pdf"`
	LLM      LLMConfig      `yaml:"llm"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	UploadDir       string        `yaml:"upload_dir"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `yaml:"driver"`
	StagingDSN       string        `yaml:"staging_dsn"`
	VerifiedDSN      string        `yaml:"verified_dsn"`
	StagingTable     string        `yaml:"staging_table"`
	VerifiedTable    string        `yaml:"verified_table"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Language string        `yaml:"language"`
	Timeout  time.Duration `yaml:"timeout"`
}

// PDFConfig holds rasterization configuration
type PDFConfig struct {
	Rasterizer string `yaml:"rasterizer"`
	Pdftoppm   string `yaml:"pdftoppm"`
	DPI        int    `yaml:"dpi"`
	MaxPages   int    `yaml:"max_pages"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider      string        `yaml:"provider"`
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"` // empty: provider default
	APIKey        string        `yaml:"api_key"`
	Temperature   float32       `yaml:"temperature"`
	MaxTokens     int           `yaml:"max_tokens"`
	Timeout       time.Duration `yaml:"timeout"`
	VertexProject string        `yaml:"vertex_project"`
	VertexRegion  string        `yaml:"vertex_region"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":5000",
			UploadDir:       "uploads",
			MaxUploadBytes:  50 << 20,
			CORSOrigins:     []string{"http://localhost:5173"},
			RequestTimeout:  10 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			StagingTable:    "documents",
			VerifiedTable:   "documents",
			MaxConns:        20,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		OCR: OCRConfig{
			Timeout: 30 * time.Second,
		},
		PDF: PDFConfig{
			Rasterizer: "pdftoppm",
			Pdftoppm:   "pdftoppm",
			DPI:        300,
		},
		LLM: LLMConfig{
			Provider:     "openai",
			BaseURL:      "https://api.groq.com/openai/v1",
			Temperature:  0.5,
			MaxTokens:    1024,
			Timeout:      60 * time.Second,
			VertexRegion: "us-central1",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from .env, an optional YAML file named by CONFIG_FILE,
// and environment variables, in that order of increasing precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, NewAppError(CodeConfig, "load .env", err)
	}

	cfg := DefaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewAppError(CodeConfig, "read config file", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return NewAppError(CodeConfig, fmt.Sprintf("parse config file %s", path), err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.HTTPAddr = getEnv("HTTP_ADDR", s.HTTPAddr)
	s.GRPCAddr = getEnv("GRPC_ADDR", s.GRPCAddr)
	s.UploadDir = getEnv("UPLOAD_DIR", s.UploadDir)
	s.MaxUploadBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", s.MaxUploadBytes)
	s.CORSOrigins = getEnvAsList("CORS_ORIGINS", s.CORSOrigins)
	s.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", s.RequestTimeout)
	s.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", s.ShutdownTimeout)

	d := &c.Database
	d.Driver = getEnv("DB_DRIVER", d.Driver)
	d.StagingDSN = getEnv("STAGING_DB_URL", d.StagingDSN)
	d.VerifiedDSN = getEnv("VERIFIED_DB_URL", d.VerifiedDSN)
	d.StagingTable = getEnv("STAGING_TABLE", d.StagingTable)
	d.VerifiedTable = getEnv("VERIFIED_TABLE", d.VerifiedTable)
	d.MaxConns = getEnvAsInt32("DB_MAX_CONNS", d.MaxConns)
	d.MinConns = getEnvAsInt32("DB_MIN_CONNS", d.MinConns)
	d.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", d.MaxConnLifetime)
	d.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", d.MaxConnIdleTime)
	d.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", d.DialTimeout)
	d.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", d.StatementTimeout)

	o := &c.OCR
	o.Endpoint = getEnv("OCR_ENDPOINT", o.Endpoint)
	o.APIKey = getEnv("OCR_API_KEY", o.APIKey)
	o.Language = getEnv("OCR_LANGUAGE", o.Language)
	o.Timeout = getEnvAsDuration("OCR_TIMEOUT", o.Timeout)

	p := &c.PDF
	p.Rasterizer = getEnv("PDF_RASTERIZER", p.Rasterizer)
	p.Pdftoppm = getEnv("PDFTOPPM_BIN", p.Pdftoppm)
	p.DPI = getEnvAsInt("PDF_DPI", p.DPI)
	p.MaxPages = getEnvAsInt("PDF_MAX_PAGES", p.MaxPages)

	l := &c.LLM
	l.Provider = getEnv("LLM_PROVIDER", l.Provider)
	l.BaseURL = getEnv("LLM_BASE_URL", l.BaseURL)
	l.Model = getEnv("LLM_MODEL", l.Model)
	l.APIKey = getEnv("LLM_API_KEY", l.APIKey)
	l.Temperature = getEnvAsFloat32("LLM_TEMPERATURE", l.Temperature)
	l.MaxTokens = getEnvAsInt("LLM_MAX_TOKENS", l.MaxTokens)
	l.Timeout = getEnvAsDuration("LLM_TIMEOUT", l.Timeout)
	l.VertexProject = getEnv("VERTEX_PROJECT", l.VertexProject)
	l.VertexRegion = getEnv("VERTEX_REGION", l.VertexRegion)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("HTTP_ADDR", c.Server.HTTPAddr, Required()).
		Field("UPLOAD_DIR", c.Server.UploadDir, Required()).
		Field("MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes, Positive()).
		Field("DB_DRIVER", c.Database.Driver, OneOf("postgres", "sqlite")).
		Field("STAGING_DB_URL", c.Database.StagingDSN, Required()).
		Field("VERIFIED_DB_URL", c.Database.VerifiedDSN, Required()).
		Field("STAGING_TABLE", c.Database.StagingTable, Required()).
		Field("VERIFIED_TABLE", c.Database.VerifiedTable, Required()).
		Field("OCR_ENDPOINT", c.OCR.Endpoint, Required(), AbsoluteURL()).
		Field("OCR_API_KEY", c.OCR.APIKey, Required()).
		Field("PDF_RASTERIZER", c.PDF.Rasterizer, OneOf("pdftoppm", "fitz")).
		Field("PDF_DPI", c.PDF.DPI, Positive()).
		Field("LLM_PROVIDER", c.LLM.Provider, OneOf("openai", "vertex")).
		Field("LLM_MAX_TOKENS", c.LLM.MaxTokens, Positive()).
		Field("LOG_LEVEL", c.Log.Level, OneOf("debug", "info", "warn", "error"))

	switch c.LLM.Provider {
	case "openai":
		v.Field("LLM_API_KEY", c.LLM.APIKey, Required()).
			Field("LLM_BASE_URL", c.LLM.BaseURL, Required(), AbsoluteURL())
	case "vertex":
		v.Field("VERTEX_PROJECT", c.LLM.VertexProject, Required()).
			Field("VERTEX_REGION", c.LLM.VertexRegion, Required())
	}

	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
