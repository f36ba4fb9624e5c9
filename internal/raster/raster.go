// Package raster renders PDF pages to JPEG images for OCR.
package raster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrNoPagesRendered is returned when a PDF yields no page images.
var ErrNoPagesRendered = errors.New("no pages rendered")

const (
	BackendPdftoppm = "pdftoppm"
	BackendFitz     = "fitz"

	defaultDPI = 300
)

type Config struct {
	Backend  string // "pdftoppm" (default) | "fitz"
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // default 300
	MaxPages int    // 0 = no limit
}

// Pages is the output of a rasterization: page images in page order inside Dir.
type Pages struct {
	Dir   string
	Paths []string
}

// Cleanup removes the page images and their directory.
func (p Pages) Cleanup() error {
	if p.Dir == "" {
		return nil
	}
	return os.RemoveAll(p.Dir)
}

// Rasterizer renders every page of a PDF into a fresh temporary directory.
// On success the caller owns the returned Pages and must call Cleanup.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string) (Pages, error)
}

type renderer interface {
	// render writes pages 1..pages of pdfPath into dir.
	render(ctx context.Context, pdfPath, dir string, pages int) ([]string, error)
}

// PDFRasterizer checks the document with pdfcpu, then hands rendering to a backend.
type PDFRasterizer struct {
	cfg     Config
	backend renderer
	logger  *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*PDFRasterizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DPI <= 0 {
		cfg.DPI = defaultDPI
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}

	r := &PDFRasterizer{cfg: cfg, logger: logger}
	switch cfg.Backend {
	case "", BackendPdftoppm:
		r.backend = &pdftoppm{bin: cfg.Pdftoppm, dpi: cfg.DPI, runner: execRunner{logger: logger}}
	case BackendFitz:
		r.backend = &fitzRenderer{dpi: cfg.DPI}
	default:
		return nil, fmt.Errorf("unknown rasterizer backend %q", cfg.Backend)
	}
	return r, nil
}

// WithRunner swaps the command runner used by the pdftoppm backend.
func (r *PDFRasterizer) WithRunner(runner Runner) *PDFRasterizer {
	if p, ok := r.backend.(*pdftoppm); ok {
		p.runner = runner
	}
	return r
}

func (r *PDFRasterizer) Rasterize(ctx context.Context, pdfPath string) (Pages, error) {
	count, err := api.PageCountFile(pdfPath)
	if err != nil {
		r.logger.Error("raster.page_count_failed", "path", pdfPath, "error", err)
		return Pages{}, fmt.Errorf("%w: unreadable pdf: %v", ErrNoPagesRendered, err)
	}
	if count == 0 {
		return Pages{}, ErrNoPagesRendered
	}

	limit := count
	if r.cfg.MaxPages > 0 && count > r.cfg.MaxPages {
		r.logger.Warn("raster.pages_truncated", "path", pdfPath, "pages", count, "max_pages", r.cfg.MaxPages)
		limit = r.cfg.MaxPages
	}

	dir, err := os.MkdirTemp("", "docflow-pages-*")
	if err != nil {
		return Pages{}, err
	}

	paths, err := r.backend.render(ctx, pdfPath, dir, limit)
	if err == nil && len(paths) == 0 {
		err = ErrNoPagesRendered
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return Pages{}, err
	}

	r.logger.Info("raster.ok", "path", pdfPath, "pages", len(paths), "dpi", r.cfg.DPI, "backend", r.backendName())
	return Pages{Dir: dir, Paths: paths}, nil
}

// pageLimit caps the document's page count at pages when pages is positive.
func pageLimit(numPages, pages int) int {
	if pages > 0 && pages < numPages {
		return pages
	}
	return numPages
}

func (r *PDFRasterizer) backendName() string {
	if _, ok := r.backend.(*fitzRenderer); ok {
		return BackendFitz
	}
	return BackendPdftoppm
}
