package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bcnelson/gitops-stack-manager/internal/domain"
)

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, &domain.APIError{
		Code:    status,
		Message: message,
	})
}

// handleError converts domain errors to HTTP errors.
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
