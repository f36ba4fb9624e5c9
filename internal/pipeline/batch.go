package pipeline

import (
	"context"
	"errors"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/record"
)

// Upload is one saved file of a batch request.
type Upload struct {
	Name string // client file name
	Path string
	// Rejected is set when the file failed validation before processing.
	Rejected error
}

// FileResult is the per-file outcome of a batch.
type FileResult struct {
	File    string               `json:"file"`
	Status  constants.FileStatus `json:"status"`
	Error   string               `json:"error,omitempty"`
	Details any                  `json:"details,omitempty"`
}

// ResultFor builds a FileResult from a processing error; nil means success.
func ResultFor(name string, err error) FileResult {
	if err == nil {
		return FileResult{File: name, Status: constants.FileStatusOK}
	}
	res := FileResult{File: name, Status: constants.FileStatusError, Error: err.Error()}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		res.Error = appErr.Message
		res.Details = appErr.Details
	}
	return res
}

// ProcessBatch processes uploads one after another. A failed file is recorded in its result and
// the batch moves on. Nested values are stored as JSON text rather than failing the file. The
// returned records are the successful files in upload order.
func (p *Processor) ProcessBatch(ctx context.Context, kind constants.FileKind, uploads []Upload) ([]FileResult, []record.Flat) {
	log := common.LoggerFromContext(ctx, p.Logger)
	results := make([]FileResult, 0, len(uploads))
	var flats []record.Flat

	for _, u := range uploads {
		if err := ctx.Err(); err != nil {
			results = append(results, ResultFor(u.Name, common.ExtractionError(kind.FailureMessage(), err).WithDetails(err.Error())))
			continue
		}
		if u.Rejected != nil {
			results = append(results, ResultFor(u.Name, u.Rejected))
			continue
		}
		out, err := p.process(common.WithFileName(ctx, u.Name), kind, u.Path, false)
		if err != nil {
			log.Warn("upload.batch.file_failed", "file", u.Name, "error", err)
			results = append(results, ResultFor(u.Name, err))
			continue
		}
		flats = append(flats, out.Flat)
		results = append(results, ResultFor(u.Name, nil))
	}
	log.Info("upload.batch.processed", "files", len(uploads), "ok", len(flats))
	return results, flats
}
