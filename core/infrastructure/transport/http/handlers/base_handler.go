package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/hyperterse/queryengine/core/logger"
	"github.com/hyperterse/queryengine/core/shared/errors"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	logger *logger.Logger
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(tag string) *BaseHandler {
	return &BaseHandler{
		logger: logger.New(tag),
	}
}

// Logger returns the handler's tagged logger
func (h *BaseHandler) Logger() *logger.Logger {
	return h.logger
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

// WriteRaw writes an already encoded JSON body
func (h *BaseHandler) WriteRaw(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(body)); err != nil {
		h.logger.Errorf("Failed to write response: %v", err)
	}
}

// WriteError renders err as an ApiError with the status of its kind
func (h *BaseHandler) WriteError(w http.ResponseWriter, err error) {
	apiErr := errors.From(err)
	if apiErr == nil {
		apiErr = errors.New(errors.KindCore, "unknown error")
	}
	status := apiErr.Status()
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("Request failed: %v", apiErr)
	} else {
		h.logger.Debugf("Request rejected: %v", apiErr)
	}
	h.WriteJSON(w, status, apiErr)
}

// WriteSuccess writes a success response
func (h *BaseHandler) WriteSuccess(w http.ResponseWriter, data any) {
	h.WriteJSON(w, http.StatusOK, data)
}
