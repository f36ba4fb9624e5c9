package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/llm"
	"github.com/joseph-ayodele/docflow/internal/raster"
	"github.com/joseph-ayodele/docflow/internal/record"
)

// TextExtractor reads the text out of one image file.
type TextExtractor interface {
	ExtractFile(ctx context.Context, path string) (string, error)
}

// NotFlatMessage is returned when the model answers with nested values.
const NotFlatMessage = "AI did not return a flat JSON object"

// Outcome is a processed file ready for the staging store.
type Outcome struct {
	Text   string
	Pages  int
	Record *record.Record
	Flat   record.Flat
}

// Processor coordinates text extraction, then LLM structuring, then the shape check.
type Processor struct {
	Logger     *slog.Logger
	Text       *TextStage
	Structurer llm.Structurer
}

func NewProcessor(logger *slog.Logger, ocr TextExtractor, rast raster.Rasterizer, structurer llm.Structurer) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		Logger:     logger,
		Text:       NewTextStage(ocr, rast, logger),
		Structurer: structurer,
	}
}

// Process turns the file at path into a flat record. Errors are *common.AppError values whose
// Message is the text an API caller should see. A nested reply is a ShapeError.
func (p *Processor) Process(ctx context.Context, kind constants.FileKind, path string) (*Outcome, error) {
	return p.process(ctx, kind, path, true)
}

// process runs one file. With requireFlat unset, nested values are serialized to JSON text
// instead of rejecting the file.
func (p *Processor) process(ctx context.Context, kind constants.FileKind, path string, requireFlat bool) (*Outcome, error) {
	log := common.LoggerFromContext(ctx, p.Logger).With("kind", string(kind))
	start := time.Now()

	// 1) text extraction
	text, pages, err := p.Text.Run(ctx, kind, path)
	if err != nil {
		log.Error("processor.extract.failed", "error", err)
		return nil, common.ExtractionError(kind.FailureMessage(), err).WithDetails(err.Error())
	}
	log.Info("processor.extract.ok", "pages", pages, "text_len", len(text))

	// 2) structuring
	res, err := p.Structurer.Structure(ctx, text)
	if err != nil {
		log.Error("processor.structure.failed", "error", err)
		return nil, common.NewAppError(common.CodeExtraction, "Error processing file",
			errors.Join(common.ErrExtraction, err)).WithDetails(err.Error())
	}
	if !res.OK() {
		fb := res.Fallback
		return nil, common.StructuringError(fb.Error, map[string]string{
			"raw_text":        fb.RawText,
			"structured_data": fb.StructuredData,
		})
	}

	// 3) shape check, then flatten
	if requireFlat {
		if err := record.ValidateFlat(res.Record); err != nil {
			log.Warn("processor.shape.nested", "keys", record.NestedKeys(res.Record))
			return nil, common.ShapeError(NotFlatMessage, res.Record)
		}
	} else if !record.IsFlat(res.Record) {
		log.Info("processor.shape.flattened", "keys", record.NestedKeys(res.Record))
	}
	flat, err := record.Flatten(res.Record)
	if err != nil {
		return nil, common.ShapeError(NotFlatMessage, res.Record)
	}

	log.Info("processor.ok",
		"fields", len(flat.Fields),
		"attempts", res.Attempts,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Outcome{Text: text, Pages: pages, Record: res.Record, Flat: flat}, nil
}
