package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joseph-ayodele/docflow/internal/common"
)

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("http.response.encode_error", "error", err)
	}
}

// writeError renders err as {error, details?}. AppErrors carry their own message and details;
// anything else is reported as a bare internal error.
func writeError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, common.HTTPStatus(err), errorBody{Error: appErr.Message, Details: appErr.Details}, logger)
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"}, logger)
}
