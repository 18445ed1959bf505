package apiclient

import (
	"fmt"
	"net/url"
)

// ModelMapping maps a model name to an artifact identity within an endpoint.
type ModelMapping struct {
	Name        string `json:"name"`
	ArtifactID  string `json:"artifact_id"`
	ContentType string `json:"content_type,omitempty"`
}

// Endpoint represents a serving endpoint.
type Endpoint struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	MemoryBudget uint64         `json:"memory_budget"`
	DiskBudget   uint64         `json:"disk_budget"`
	Runtime      string         `json:"runtime"`
	Models       []ModelMapping `json:"models"`
}

// EndpointRequest is the request to create or update an endpoint.
type EndpointRequest struct {
	Name         string         `json:"name"`
	MemoryBudget uint64         `json:"memory_budget"`
	DiskBudget   uint64         `json:"disk_budget,omitempty"`
	Runtime      string         `json:"runtime,omitempty"`
	Models       []ModelMapping `json:"models,omitempty"`
}

// EndpointStats summarizes an endpoint's cache occupancy.
type EndpointStats struct {
	Endpoint      string `json:"endpoint"`
	PoolResident  int    `json:"pool_resident"`
	PoolBytes     uint64 `json:"pool_bytes"`
	MemoryBudget  uint64 `json:"memory_budget"`
	DiskEntries   int    `json:"disk_entries"`
	DiskBytes     uint64 `json:"disk_bytes"`
	DiskBudget    uint64 `json:"disk_budget"`
	ModelMappings int    `json:"model_mappings"`
}

// ListEndpoints returns all endpoints.
func (c *Client) ListEndpoints() ([]Endpoint, error) {
	var eps []Endpoint
	if err := c.get("/v1/endpoints", &eps); err != nil {
		return nil, err
	}
	return eps, nil
}

// GetEndpoint returns an endpoint by name.
func (c *Client) GetEndpoint(name string) (*Endpoint, error) {
	var ep Endpoint
	if err := c.get(fmt.Sprintf("/v1/endpoints/%s", url.PathEscape(name)), &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

// CreateEndpoint creates a new endpoint.
func (c *Client) CreateEndpoint(req *EndpointRequest) (*Endpoint, error) {
	var ep Endpoint
	if err := c.post("/v1/endpoints", req, &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

// UpdateEndpoint updates an existing endpoint.
func (c *Client) UpdateEndpoint(name string, req *EndpointRequest) (*Endpoint, error) {
	var ep Endpoint
	if err := c.put(fmt.Sprintf("/v1/endpoints/%s", url.PathEscape(name)), req, &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

// DeleteEndpoint deletes an endpoint.
func (c *Client) DeleteEndpoint(name string) error {
	return c.delete(fmt.Sprintf("/v1/endpoints/%s", url.PathEscape(name)), nil)
}

// GetEndpointStats returns cache occupancy for one endpoint.
func (c *Client) GetEndpointStats(name string) (*EndpointStats, error) {
	var stats EndpointStats
	if err := c.get(fmt.Sprintf("/v1/endpoints/%s/stats", url.PathEscape(name)), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListStats returns cache occupancy for every live endpoint.
func (c *Client) ListStats() ([]EndpointStats, error) {
	var stats []EndpointStats
	if err := c.get("/v1/stats", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}
