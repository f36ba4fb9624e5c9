package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docflow/internal/record"
)

// Lister is the read side of a document store.
type Lister interface {
	ListAll(ctx context.Context) ([]*record.Record, error)
}

// Service is a tiny façade over a document store that produces XLSX bytes for exports.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

const (
	maxCellLen  = 32767 // excel cell limit
	maxColWidth = 60
	minColWidth = 10
)

// ExportXLSX writes every row of src to a single sheet. The header is the union of row keys in
// first-seen order; NULLs are empty cells.
func (s *Service) ExportXLSX(ctx context.Context, src Lister, sheet string) ([]byte, error) {
	start := time.Now()

	recs, err := src.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	buf, err := s.WorkbookBytes(recs, sheet)
	if err != nil {
		return nil, err
	}

	s.logger.Info("export.xlsx.ok",
		"sheet", sheet,
		"rows", len(recs),
		"bytes", len(buf),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf, nil
}

// WorkbookBytes renders recs into an XLSX workbook.
func (s *Service) WorkbookBytes(recs []*record.Record, sheet string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheet = "Documents"
	}
	// the default workbook carries "Sheet1"; rename it instead of adding a second sheet
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := header(recs)
	widths := make([]int, len(headers))
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
		widths[i] = len(h)
	}
	if len(headers) > 0 {
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err == nil {
			last, _ := excelize.CoordinatesToCellName(len(headers), 1)
			_ = f.SetCellStyle(sheet, "A1", last, style)
		}
	}

	for r, rec := range recs {
		row := r + 2
		for i, h := range headers {
			v, ok := rec.Get(h)
			if !ok {
				continue
			}
			text := cellText(v)
			if text == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(sheet, cell, truncate(text, maxCellLen))
			widths[i] = max(widths[i], len(text))
		}
	}

	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, col, col, float64(min(max(w+2, minColWidth), maxColWidth)))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func header(recs []*record.Record) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range recs {
		for _, k := range r.Keys() {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

func cellText(v record.Value) string {
	if s, ok := v.Text(); ok {
		return s
	}
	if v.IsPrimitive() {
		return ""
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
