package server

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/export"
	"github.com/joseph-ayodele/docflow/internal/pipeline"
	"github.com/joseph-ayodele/docflow/internal/record"
	"github.com/joseph-ayodele/docflow/internal/repository"
)

// Processor turns saved uploads into flat records.
type Processor interface {
	Process(ctx context.Context, kind constants.FileKind, path string) (*pipeline.Outcome, error)
	ProcessBatch(ctx context.Context, kind constants.FileKind, uploads []pipeline.Upload) ([]pipeline.FileResult, []record.Flat)
}

// Pinger reports whether a backing store answers.
type Pinger func(ctx context.Context) error

type Config struct {
	UploadDir      string
	MaxUploadBytes int64
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// Deps are the collaborators built once in main.
type Deps struct {
	Processor Processor
	Staging   repository.DocumentRepository
	Verified  repository.DocumentRepository
	Exporter  *export.Service
	Pingers   map[string]Pinger
	UI        fs.FS // serves index.html at /; nil disables the page
}

// Server is the HTTP API over the upload pipeline and both document stores.
type Server struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if deps.Exporter == nil {
		deps.Exporter = export.NewService(logger)
	}
	return &Server{cfg: cfg, deps: deps, logger: logger}
}

// Handler builds the router with all routes configured.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestContext)
	r.Use(accessLog(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors(s.cfg.CORSOrigins))
	if s.cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/health", s.handleHealth)
	if s.deps.UI != nil {
		r.Get("/", s.handleIndex)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.RequestSize(s.cfg.MaxUploadBytes))
			r.Post("/upload-image", s.handleUpload(constants.IMAGE))
			r.Post("/upload-scanned-pdf", s.handleUpload(constants.PDF))
			r.Post("/upload-images", s.handleUploadBatch(constants.IMAGE))
			r.Post("/upload-scanned-pdfs", s.handleUploadBatch(constants.PDF))
			r.Post("/save-verified", s.handleSaveVerified)
		})

		r.Get("/all-documents", s.handleList(s.deps.Staging))
		r.Get("/all-documents/export", s.handleExport(s.deps.Staging, "Documents", "documents.xlsx"))
		r.Get("/verified-documents", s.handleList(s.deps.Verified))
		r.Get("/verified-documents/export", s.handleExport(s.deps.Verified, "Verified", "verified-documents.xlsx"))
	})

	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, s.deps.UI, "index.html")
}
