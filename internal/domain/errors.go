package domain

import "errors"

// Common errors used throughout the application.
var (
	ErrNotFound                = errors.New("not found")
	ErrManifestInvalid         = errors.New("manifest invalid")
	ErrSourceUnavailable       = errors.New("source unavailable")
	ErrOrchestratorUnavailable = errors.New("orchestrator unavailable")
)

// APIError represents an error response from the status API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}
