package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/book-expert/chapter-audio-service/internal/core"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		s.log.Warn("Failed to encode response: %v", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Storage and
// unclassified errors are logged and reported without internal detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()

	if status == http.StatusInternalServerError {
		s.log.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
		message = "internal error"

		if errors.Is(err, core.ErrStorage) {
			message = "audio storage is unavailable"
		}
	}

	s.writeJSON(w, status, errorResponse{Success: false, Error: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
