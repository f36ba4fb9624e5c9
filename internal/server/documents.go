package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/record"
	"github.com/joseph-ayodele/docflow/internal/repository"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// saveVerifiedSchema accepts {data: [object, ...]} with at least one row.
var saveVerifiedSchema = map[string]any{
	"type":     "object",
	"required": []string{"data"},
	"properties": map[string]any{
		"data": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]any{"type": "object"},
		},
	},
}

type saveVerifiedRequest struct {
	Data []json.RawMessage `json:"data"`
}

func (s *Server) handleList(store repository.DocumentRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respondAll(w, r, store, nil)
	}
}

// handleSaveVerified commits reviewed rows to the verified store, flattening nested values.
func (s *Server) handleSaveVerified(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := common.LoggerFromContext(ctx, s.logger)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeParseError(w, err, "No data provided")
		return
	}

	var req saveVerifiedRequest
	if err := json.Unmarshal(body, &req); err != nil || len(req.Data) == 0 {
		writeError(w, common.ValidationError("No data provided"), log)
		return
	}
	if err := record.ValidateJSONAgainstSchema(saveVerifiedSchema, body); err != nil {
		writeError(w, common.ValidationError("Each row must be a JSON object").WithDetails(err.Error()), log)
		return
	}

	flats := make([]record.Flat, 0, len(req.Data))
	for i, raw := range req.Data {
		rec, err := record.Decode(raw)
		if err != nil {
			writeError(w, common.ValidationError(fmt.Sprintf("Row %d is not a JSON object", i)).WithDetails(err.Error()), log)
			return
		}
		flat, err := record.Flatten(rec)
		if err != nil {
			writeError(w, common.ValidationError(fmt.Sprintf("Row %d could not be flattened", i)).WithDetails(err.Error()), log)
			return
		}
		flats = append(flats, flat)
	}

	n, err := s.deps.Verified.InsertEach(ctx, flats)
	if err != nil {
		log.Error("verified.save.failed", "rows", len(flats), "committed", n, "error", err)
		writeError(w, common.PersistenceError("Failed to save verified data", err), log)
		return
	}
	log.Info("verified.save.ok", "rows", n)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true}, log)
}

func (s *Server) handleExport(store repository.DocumentRepository, sheet, filename string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := common.LoggerFromContext(r.Context(), s.logger)
		xlsx, err := s.deps.Exporter.ExportXLSX(r.Context(), store, sheet)
		if err != nil {
			log.Error("export.xlsx.failed", "sheet", sheet, "error", err)
			writeError(w, common.PersistenceError("Failed to fetch documents", err), log)
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(xlsx); err != nil {
			log.Warn("export.xlsx.write_failed", "error", err)
		}
	}
}
