package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/churchdesk/internal/forms"
	"github.com/kalambet/churchdesk/internal/session"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeError maps a domain error to its HTTP status and error type.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ve *forms.ValidationError
	var ie *forms.IndexError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": map[string]any{
				"message":  ve.Message,
				"type":     "validation_error",
				"problems": ve.Problems,
			},
		})
	case errors.As(err, &ie):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", ie)
	case errors.Is(err, forms.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "form not found")
	case errors.Is(err, session.ErrUnknown):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, forms.ErrAlreadySubmitted):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	case errors.Is(err, forms.ErrInactive):
		httpError(w, http.StatusGone, "gone_error", "%v", err)
	case forms.IsStorage(err):
		logger.Warn("storage failure", "error", err)
		httpError(w, http.StatusInternalServerError, "storage_error", "could not save, please try again")
	default:
		logger.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
