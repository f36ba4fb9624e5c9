package common

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Database.StagingDSN = "postgres://localhost/staging"
	cfg.Database.VerifiedDSN = "postgres://localhost/verified"
	cfg.OCR.Endpoint = "https://ocr.example.com"
	cfg.OCR.APIKey = "ocr-key"
	cfg.LLM.APIKey = "llm-key"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":5000", cfg.Server.HTTPAddr)
	assert.Equal(t, int64(50<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 300, cfg.PDF.DPI)
	assert.Empty(t, cfg.LLM.Model, "each provider picks its own default model")
	assert.InDelta(t, 0.5, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docflow.yaml")
	yml := `
server:
  http_addr: ":7000"
  upload_dir: /var/uploads
database:
  driver: sqlite
  staging_dsn: file:staging.db
ocr:
  endpoint: https://file.example.com
llm:
  model: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Chdir(dir)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LLM_MODEL", "from-env")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("OCR_TIMEOUT", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.HTTPAddr)
	assert.Equal(t, "/var/uploads", cfg.Server.UploadDir)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:staging.db", cfg.Database.StagingDSN)
	assert.Equal(t, "https://file.example.com", cfg.OCR.Endpoint)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 5*time.Second, cfg.OCR.Timeout)
	// untouched values keep their defaults
	assert.Equal(t, "documents", cfg.Database.VerifiedTable)
}

func TestLoadConfig_BadFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadConfig()
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, CodeConfig, appErr.Code)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.OCR.Endpoint = "not a url"
	cfg.Database.Driver = "mysql"
	cfg.LLM.APIKey = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	for _, field := range []string{"OCR_ENDPOINT", "DB_DRIVER", "LLM_API_KEY"} {
		assert.Contains(t, err.Error(), field)
	}

	vertex := validConfig()
	vertex.LLM.Provider = "vertex"
	vertex.LLM.APIKey = ""
	err = vertex.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VERTEX_PROJECT")
	vertex.LLM.VertexProject = "proj"
	assert.NoError(t, vertex.Validate())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ValidationError("No file uploaded")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(ExtractionError("ocr", errors.New("boom"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(ShapeError("nested", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))

	wrapped := fmt.Errorf("staging: %w", PersistenceError("insert", errors.New("conn reset")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(wrapped))
	assert.ErrorIs(t, wrapped, ErrPersistence)
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(LogConfig{Level: "debug"}, &buf).Debug("upload.received", "file", "a.png")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "non-terminal writers default to JSON")

	buf.Reset()
	NewLogger(LogConfig{Format: "text", Level: "warn"}, &buf).Info("hidden")
	assert.Empty(t, buf.String())
}
