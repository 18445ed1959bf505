package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/modelcached/modelcached/pkg/controlplane/models"
	cpruntime "github.com/modelcached/modelcached/pkg/controlplane/runtime"
	cpstore "github.com/modelcached/modelcached/pkg/controlplane/store"
)

// EndpointHandler serves the admin endpoint CRUD routes.
type EndpointHandler struct {
	store   cpstore.Store
	manager *cpruntime.Manager
}

// NewEndpointHandler creates an endpoint handler.
func NewEndpointHandler(store cpstore.Store, manager *cpruntime.Manager) *EndpointHandler {
	return &EndpointHandler{store: store, manager: manager}
}

// endpointRequest is the create/update request body.
type endpointRequest struct {
	Name         string             `json:"name"`
	MemoryBudget uint64             `json:"memory_budget"`
	DiskBudget   uint64             `json:"disk_budget"`
	Runtime      string             `json:"runtime"`
	Models       []modelMappingBody `json:"models"`
}

type modelMappingBody struct {
	Name        string `json:"name"`
	ArtifactID  string `json:"artifact_id"`
	ContentType string `json:"content_type"`
}

// endpointResponse is the endpoint representation returned to clients.
type endpointResponse struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	MemoryBudget uint64             `json:"memory_budget"`
	DiskBudget   uint64             `json:"disk_budget"`
	Runtime      string             `json:"runtime"`
	Models       []modelMappingBody `json:"models"`
}

func (r *endpointRequest) toModel() *models.Endpoint {
	ep := &models.Endpoint{
		Name:         r.Name,
		MemoryBudget: r.MemoryBudget,
		DiskBudget:   r.DiskBudget,
		Runtime:      r.Runtime,
	}
	for _, m := range r.Models {
		ep.Models = append(ep.Models, models.EndpointModel{
			Name:        m.Name,
			ArtifactID:  m.ArtifactID,
			ContentType: m.ContentType,
		})
	}
	return ep
}

func endpointToResponse(ep *models.Endpoint) endpointResponse {
	resp := endpointResponse{
		ID:           ep.ID,
		Name:         ep.Name,
		MemoryBudget: ep.MemoryBudget,
		DiskBudget:   ep.DiskBudget,
		Runtime:      ep.Runtime,
		Models:       make([]modelMappingBody, 0, len(ep.Models)),
	}
	for _, m := range ep.Models {
		resp.Models = append(resp.Models, modelMappingBody{
			Name:        m.Name,
			ArtifactID:  m.ArtifactID,
			ContentType: m.ContentType,
		})
	}
	return resp
}

func (r *endpointRequest) validate() string {
	if r.Name == "" {
		return "endpoint name is required"
	}
	if r.MemoryBudget == 0 {
		return "memory_budget must be greater than zero"
	}
	for _, m := range r.Models {
		if m.Name == "" || m.ArtifactID == "" {
			return "each model mapping needs a name and an artifact_id"
		}
	}
	return ""
}

// List handles GET /v1/endpoints.
func (h *EndpointHandler) List(w http.ResponseWriter, r *http.Request) {
	eps, err := h.store.ListEndpoints(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]endpointResponse, 0, len(eps))
	for _, ep := range eps {
		resp = append(resp, endpointToResponse(ep))
	}
	writeOK(w, resp)
}

// Get handles GET /v1/endpoints/{endpoint}.
func (h *EndpointHandler) Get(w http.ResponseWriter, r *http.Request) {
	ep, err := h.store.GetEndpoint(r.Context(), chi.URLParam(r, "endpoint"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, endpointToResponse(ep))
}

// Create handles POST /v1/endpoints.
func (h *EndpointHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		writeErrorStatus(w, http.StatusBadRequest, msg)
		return
	}

	ep := req.toModel()
	if err := h.manager.CreateEndpoint(r.Context(), ep); err != nil {
		writeError(w, err)
		return
	}
	writeCreated(w, endpointToResponse(ep))
}

// Update handles PUT /v1/endpoints/{endpoint}.
func (h *EndpointHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Name = chi.URLParam(r, "endpoint")
	if msg := req.validate(); msg != "" {
		writeErrorStatus(w, http.StatusBadRequest, msg)
		return
	}

	ep := req.toModel()
	if err := h.manager.UpdateEndpoint(r.Context(), ep); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, endpointToResponse(ep))
}

// Delete handles DELETE /v1/endpoints/{endpoint}.
func (h *EndpointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "endpoint")
	if err := h.manager.DeleteEndpoint(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]string{"deleted": name})
}

// Models handles GET /v1/endpoints/{endpoint}/models.
func (h *EndpointHandler) Models(w http.ResponseWriter, r *http.Request) {
	ep, err := h.store.GetEndpoint(r.Context(), chi.URLParam(r, "endpoint"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, endpointToResponse(ep).Models)
}

// Stats handles GET /v1/endpoints/{endpoint}/stats.
func (h *EndpointHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.GetStats(chi.URLParam(r, "endpoint"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, stats)
}

// ListStats handles GET /v1/stats.
func (h *EndpointHandler) ListStats(w http.ResponseWriter, r *http.Request) {
	writeOK(w, h.manager.ListStats())
}
