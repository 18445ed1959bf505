package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	cpruntime "github.com/modelcached/modelcached/pkg/controlplane/runtime"
	cpstore "github.com/modelcached/modelcached/pkg/controlplane/store"
	"github.com/modelcached/modelcached/pkg/model"
	"github.com/modelcached/modelcached/pkg/store"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the server ready to accept requests?
//   - Store health: Control plane, remote store, and cache utilization
type HealthHandler struct {
	store   cpstore.Store
	manager *cpruntime.Manager
	remote  store.Store
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(cpStore cpstore.Store, manager *cpruntime.Manager, remote store.Store) *HealthHandler {
	return &HealthHandler{store: cpStore, manager: manager, remote: remote}
}

// Liveness handles GET /health - simple liveness probe.
// Always 200 as long as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"service": "modelcached", "state": "alive"})
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 200 OK if the server can serve traffic: the control plane
// database must answer a ping. Returns 503 otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.Healthcheck(ctx); err != nil {
		writeErrorStatus(w, http.StatusServiceUnavailable, "control plane store unavailable: "+err.Error())
		return
	}

	writeOK(w, map[string]interface{}{
		"state":     "ready",
		"endpoints": len(h.manager.ListStats()),
	})
}

// StoreHealth represents the health status of one dependency.
type StoreHealth struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// CacheUtilization summarizes one endpoint's cache occupancy.
type CacheUtilization struct {
	Endpoint     string `json:"endpoint"`
	PoolBytes    uint64 `json:"pool_bytes"`
	MemoryBudget uint64 `json:"memory_budget"`
	DiskBytes    uint64 `json:"disk_bytes"`
	DiskBudget   uint64 `json:"disk_budget"`
}

// StoresResponse is the detailed store health response.
type StoresResponse struct {
	Stores []StoreHealth      `json:"stores"`
	Caches []CacheUtilization `json:"caches"`
}

// Stores handles GET /health/stores - detailed dependency health.
//
// Checks the control plane database and the remote artifact store, and
// reports cache utilization per live endpoint. Returns 200 OK if all
// dependencies are healthy, 503 if any is not.
func (h *HealthHandler) Stores(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := StoresResponse{
		Stores: make([]StoreHealth, 0, 2),
		Caches: make([]CacheUtilization, 0),
	}
	allHealthy := true

	cpHealth := StoreHealth{Name: "controlplane", Type: "database", Status: "healthy"}
	start := time.Now()
	if err := h.store.Healthcheck(ctx); err != nil {
		cpHealth.Status = "unhealthy"
		cpHealth.Error = err.Error()
		allHealthy = false
	}
	cpHealth.Latency = time.Since(start).String()
	response.Stores = append(response.Stores, cpHealth)

	// A Head on a reserved identity doubles as a reachability probe: the
	// store is healthy when it answers at all, including with NotFound.
	remoteHealth := StoreHealth{Name: "remote", Type: "artifact-store", Status: "healthy"}
	start = time.Now()
	if _, err := h.remote.Head(ctx, model.ID("__healthcheck__")); err != nil && !errors.Is(err, model.ErrModelNotFound) {
		remoteHealth.Status = "unhealthy"
		remoteHealth.Error = err.Error()
		allHealthy = false
	}
	remoteHealth.Latency = time.Since(start).String()
	response.Stores = append(response.Stores, remoteHealth)

	for _, stats := range h.manager.ListStats() {
		response.Caches = append(response.Caches, CacheUtilization{
			Endpoint:     stats.Endpoint,
			PoolBytes:    stats.PoolBytes,
			MemoryBudget: stats.MemoryBudget,
			DiskBytes:    stats.DiskBytes,
			DiskBudget:   stats.DiskBudget,
		})
	}

	if !allHealthy {
		writeJSON(w, http.StatusServiceUnavailable, Response{
			Status:    "error",
			Timestamp: time.Now(),
			Data:      response,
			Error:     "one or more dependencies are unhealthy",
		})
		return
	}
	writeOK(w, response)
}
