package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/models"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// errorStatus maps caller-facing sentinels to HTTP status codes.
var errorStatus = []struct {
	err    error
	status int
}{
	{models.ErrInvalidURL, http.StatusBadRequest},
	{models.ErrMalformedRequest, http.StatusBadRequest},
	{models.ErrUnsupportedKind, http.StatusBadRequest},
	{models.ErrInvalidAmount, http.StatusBadRequest},
	{models.ErrUnauthenticated, http.StatusUnauthorized},
	{models.ErrUnauthorized, http.StatusUnauthorized},
	{models.ErrInsufficientCredits, http.StatusPaymentRequired},
	{models.ErrProfileNotFound, http.StatusNotFound},
	{models.ErrAccountNotFound, http.StatusNotFound},
	{models.ErrTestNotFound, http.StatusNotFound},
	{models.ErrScreenshotMissing, http.StatusNotFound},
	{models.ErrProfileExists, http.StatusConflict},
}

// StatusForError returns the HTTP status for err and the message shown to
// the caller. Unknown errors are 500 with a generic message.
func StatusForError(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.err.Error()
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

// WriteDomainError writes err using the sentinel taxonomy. Server errors
// are logged with their full text.
func WriteDomainError(w http.ResponseWriter, err error, logger arbor.ILogger) {
	status, message := StatusForError(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("Request failed")
	}
	WriteError(w, status, message)
}

// decodeJSON decodes the request body into v. Unknown fields are ignored.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.ErrMalformedRequest
	}
	return nil
}

// queryLimit reads ?limit=, clamped to [1, max]. Missing or invalid values
// return max.
func queryLimit(r *http.Request, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return max
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return max
	}
	return n
}
