package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pointsource/checkit/internal/asset"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// serviceError maps asset service errors onto HTTP responses. Conflicts are
// rendered as 202 with the asset's current view so clients can retry with
// fresh state; they must never look like a 404.
func serviceError(w http.ResponseWriter, err error) {
	var conflict *asset.ConflictError
	var notFound *asset.NotFoundError
	var validation *asset.ValidationError

	switch {
	case errors.As(err, &conflict):
		jsonResponse(w, http.StatusAccepted, map[string]any{
			"message": "Processing not completed. Someone else is currently processing this asset.",
			"asset":   conflict.Asset,
		})
	case errors.As(err, &notFound):
		jsonError(w, http.StatusNotFound, notFound.Message)
	case errors.As(err, &validation):
		jsonError(w, http.StatusBadRequest, validation.Message)
	default:
		slog.Error("request failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}
