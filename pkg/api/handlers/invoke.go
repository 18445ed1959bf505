package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/modelcached/modelcached/internal/logger"
	cpruntime "github.com/modelcached/modelcached/pkg/controlplane/runtime"
)

// HeaderTargetModel names the model (or raw artifact identity) an
// invocation targets within its endpoint.
const HeaderTargetModel = "X-Target-Model"

// InvokeHandler serves the data-plane invocation route.
type InvokeHandler struct {
	manager *cpruntime.Manager

	// maxPayloadBytes caps request bodies. Zero means no cap.
	maxPayloadBytes int64
}

// NewInvokeHandler creates an invocation handler.
func NewInvokeHandler(manager *cpruntime.Manager, maxPayloadBytes int64) *InvokeHandler {
	return &InvokeHandler{manager: manager, maxPayloadBytes: maxPayloadBytes}
}

// Invoke handles POST /v1/endpoints/{endpoint}/invocations.
//
// The request body is passed to the model verbatim and the model's output is
// returned as the response body. Successful responses echo the request ID in
// X-Request-Id so clients can correlate logs.
func (h *InvokeHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	endpoint := chi.URLParam(r, "endpoint")
	requestID := middleware.GetReqID(r.Context())

	target := r.Header.Get(HeaderTargetModel)
	if target == "" {
		writeErrorStatus(w, http.StatusBadRequest, HeaderTargetModel+" header is required")
		return
	}

	body := r.Body
	if h.maxPayloadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxPayloadBytes)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		writeErrorStatus(w, http.StatusRequestEntityTooLarge, "failed to read request body: "+err.Error())
		return
	}

	out, err := h.manager.Invoke(r.Context(), endpoint, requestID, target, r.Header.Get("Content-Type"), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Request-Id", requestID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		logger.Debug("failed to write invocation response",
			"endpoint", endpoint, "request_id", requestID, "error", err)
	}
}
