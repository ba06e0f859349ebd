// Package httputil holds the JSON response helpers shared by the host
// routes and declarative addon handlers.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	hosterrors "github.com/tombee/addonhost/pkg/errors"
)

// WriteJSON writes a JSON response with the given status code and data.
// If encoding fails, it logs the error.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusNoContent || status == http.StatusNotModified {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", slog.Any("error", err))
	}
}

// WriteError writes a JSON error response with the given status code and message.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{
		"error": message,
	})
}

// WriteErr writes err as a JSON error payload, with the status derived
// from its error type.
func WriteErr(w http.ResponseWriter, err error) {
	WriteError(w, StatusFor(err), err.Error())
}

// StatusFor maps the host error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch hosterrors.TypeOf(err) {
	case hosterrors.TypeNotFound:
		return http.StatusNotFound
	case hosterrors.TypeValidation:
		return http.StatusBadRequest
	case hosterrors.TypeConflict, hosterrors.TypeCollision:
		return http.StatusConflict
	case hosterrors.TypeManifest, hosterrors.TypeLoad:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
