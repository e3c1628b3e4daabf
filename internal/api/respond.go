// ABOUTME: JSON response envelope and status helpers for the HTTP API
// ABOUTME: Every handler answers {success, message, data?, errors?}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rosterhq/roster/internal/store"
)

// Envelope is the uniform response body for every API endpoint.
type Envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func (s *Server) writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.logger.Debug("failed to encode response", "error", err)
	}
}

func (s *Server) respondSuccess(w http.ResponseWriter, status int, message string, data any) {
	s.writeEnvelope(w, status, Envelope{Success: true, Message: message, Data: data})
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.writeEnvelope(w, status, Envelope{Success: false, Message: message})
}

// respondFieldErrors answers 400 with per-field validation messages.
func (s *Server) respondFieldErrors(w http.ResponseWriter, fieldErrors map[string]string) {
	s.writeEnvelope(w, http.StatusBadRequest, Envelope{
		Success: false,
		Message: "validation failed",
		Errors:  fieldErrors,
	})
}

// respondStoreError maps uniqueness violations to 409 naming the conflicting
// field and everything else to a generic 500. Details go to the log only.
func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrEmailExists):
		s.writeEnvelope(w, http.StatusConflict, Envelope{
			Success: false,
			Message: "email already in use",
			Errors:  map[string]string{"email": "This email is already registered"},
		})
	case errors.Is(err, store.ErrUsernameExists):
		s.writeEnvelope(w, http.StatusConflict, Envelope{
			Success: false,
			Message: "username already in use",
			Errors:  map[string]string{"username": "This username is already taken"},
		})
	default:
		s.logger.Error("storage error", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
