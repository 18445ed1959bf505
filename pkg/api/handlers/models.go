package handlers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/modelcached/modelcached/internal/logger"
	"github.com/modelcached/modelcached/pkg/model"
	"github.com/modelcached/modelcached/pkg/store"
)

// HeaderModelID names the artifact identity a publish targets.
const HeaderModelID = "X-Model-Id"

// ModelHandler serves the admin model publish and list routes.
type ModelHandler struct {
	remote store.Store

	// maxArtifactBytes caps publish bodies. Zero means no cap.
	maxArtifactBytes int64
}

// NewModelHandler creates a model handler.
func NewModelHandler(remote store.Store, maxArtifactBytes int64) *ModelHandler {
	return &ModelHandler{remote: remote, maxArtifactBytes: maxArtifactBytes}
}

// artifactResponse describes one published artifact.
type artifactResponse struct {
	ID       string `json:"id"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// Publish handles POST /v1/models. The request body is the packaged
// artifact (gzipped tar) and X-Model-Id carries its identity. The package
// is validated before it reaches the remote store so a malformed upload
// never becomes a published artifact.
func (h *ModelHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id := model.ID(r.Header.Get(HeaderModelID))
	if id == "" {
		writeErrorStatus(w, http.StatusBadRequest, HeaderModelID+" header is required")
		return
	}
	if err := id.Validate(); err != nil {
		writeError(w, err)
		return
	}

	body := r.Body
	if h.maxArtifactBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxArtifactBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		writeErrorStatus(w, http.StatusRequestEntityTooLarge, "failed to read artifact: "+err.Error())
		return
	}

	if err := model.ValidatePackage(bytes.NewReader(data)); err != nil {
		writeError(w, err)
		return
	}

	if err := h.remote.Put(r.Context(), id, data); err != nil {
		writeError(w, err)
		return
	}

	logger.Info("model artifact published", "model", id, "size", len(data))
	writeCreated(w, artifactResponse{
		ID:       id.String(),
		Size:     int64(len(data)),
		Checksum: string(model.ComputeChecksum(data)),
	})
}

// List handles GET /v1/models.
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	infos, err := h.remote.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]artifactResponse, 0, len(infos))
	for _, info := range infos {
		resp = append(resp, artifactResponse{
			ID:       info.ID.String(),
			Size:     info.Size,
			Checksum: string(info.Checksum),
		})
	}
	writeOK(w, resp)
}
