// Package handlers implements the HTTP API request handlers.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/modelcached/modelcached/internal/logger"
	"github.com/modelcached/modelcached/pkg/controlplane/models"
	"github.com/modelcached/modelcached/pkg/model"
)

// Response is the standard envelope for JSON API responses.
type Response struct {
	// Status is "ok" or "error".
	Status string `json:"status"`

	// Timestamp is when the response was generated.
	Timestamp time.Time `json:"timestamp"`

	// Data holds the response payload, if any.
	Data interface{} `json:"data,omitempty"`

	// Error holds the error message when Status is "error".
	Error string `json:"error,omitempty"`
}

// writeJSON encodes the response to a buffer first so an encoding failure
// never produces a half-written body.
func writeJSON(w http.ResponseWriter, statusCode int, resp Response) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(resp); err != nil {
		logger.Error("failed to encode response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Debug("failed to write response", "error", err)
	}
}

// writeOK writes a 200 response with the given payload.
func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Response{
		Status:    "ok",
		Timestamp: time.Now(),
		Data:      data,
	})
}

// writeCreated writes a 201 response with the given payload.
func writeCreated(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusCreated, Response{
		Status:    "ok",
		Timestamp: time.Now(),
		Data:      data,
	})
}

// writeError maps an error to its HTTP status and writes the error envelope.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), Response{
		Status:    "error",
		Timestamp: time.Now(),
		Error:     err.Error(),
	})
}

// writeErrorStatus writes the error envelope with an explicit status.
func writeErrorStatus(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, Response{
		Status:    "error",
		Timestamp: time.Now(),
		Error:     message,
	})
}

// statusOf maps the serving error taxonomy to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrModelNotFound),
		errors.Is(err, models.ErrEndpointNotFound),
		errors.Is(err, models.ErrEndpointModelNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidIdentity):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidPackage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrIdentityExists),
		errors.Is(err, models.ErrDuplicateEndpoint):
		return http.StatusConflict
	case errors.Is(err, model.ErrOverloaded):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrCorruptArtifact):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrTransientStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrModelTooLarge):
		return http.StatusInsufficientStorage
	case errors.Is(err, model.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
