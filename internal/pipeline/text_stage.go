package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/raster"
)

// TextStage reads an image directly, or rasterizes a PDF and reads it page by page.
type TextStage struct {
	OCR    TextExtractor
	Raster raster.Rasterizer
	Logger *slog.Logger
}

func NewTextStage(ocr TextExtractor, rast raster.Rasterizer, logger *slog.Logger) *TextStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextStage{OCR: ocr, Raster: rast, Logger: logger}
}

// Run returns the document text and the number of pages read.
func (s *TextStage) Run(ctx context.Context, kind constants.FileKind, path string) (string, int, error) {
	switch kind {
	case constants.IMAGE:
		text, err := s.OCR.ExtractFile(ctx, path)
		if err != nil {
			return "", 0, err
		}
		return text, 1, nil
	case constants.PDF:
		return s.runPDF(ctx, path)
	default:
		return "", 0, fmt.Errorf("unsupported file kind %q", kind)
	}
}

// runPDF appends each page's text followed by a newline. Page images are removed before returning.
func (s *TextStage) runPDF(ctx context.Context, path string) (string, int, error) {
	log := common.LoggerFromContext(ctx, s.Logger)

	pages, err := s.Raster.Rasterize(ctx, path)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		if err := pages.Cleanup(); err != nil {
			log.Warn("pdf.pages.cleanup_failed", "dir", pages.Dir, "error", err)
		}
	}()

	var sb strings.Builder
	for i, page := range pages.Paths {
		text, err := s.OCR.ExtractFile(ctx, page)
		if err != nil {
			return "", 0, fmt.Errorf("page %d: %w", i+1, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
		log.Debug("pdf.page.ok", "page", i+1, "text_len", len(text))
	}
	return sb.String(), len(pages.Paths), nil
}
