// Package models defines the control plane's persisted entities.
package models

import (
	"time"
)

// Endpoint is a serving endpoint: a named unit of memory/disk budget that
// serves invocations for its attached models.
type Endpoint struct {
	ID   string `gorm:"primaryKey;size:36" json:"id"`
	Name string `gorm:"uniqueIndex;not null;size:255" json:"name"`

	// MemoryBudget caps the aggregate footprint of loaded models in bytes.
	MemoryBudget uint64 `gorm:"not null" json:"memory_budget"`

	// DiskBudget caps the aggregate size of staged artifacts in bytes.
	// 0 means unlimited.
	DiskBudget uint64 `gorm:"default:0" json:"disk_budget"`

	// Runtime selects the model runtime backend. Currently "stub".
	Runtime string `gorm:"default:stub;size:50" json:"runtime"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Models []EndpointModel `gorm:"foreignKey:EndpointID" json:"models,omitempty"`
}

// TableName returns the table name for Endpoint.
func (Endpoint) TableName() string {
	return "endpoints"
}

// EndpointModel maps a model name exposed by an endpoint to an immutable
// artifact identity in the remote store. Re-pointing a name to a new
// identity is how model versions are rolled out.
type EndpointModel struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	EndpointID string `gorm:"not null;size:36;index;uniqueIndex:idx_endpoint_model_name,priority:1" json:"endpoint_id"`

	// Name is the model name clients address, unique within the endpoint.
	Name string `gorm:"not null;size:255;uniqueIndex:idx_endpoint_model_name,priority:2" json:"name"`

	// ArtifactID is the artifact identity in the remote store.
	ArtifactID string `gorm:"not null;size:512" json:"artifact_id"`

	// ContentType is the default request content type hint.
	ContentType string `gorm:"default:application/json;size:255" json:"content_type"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for EndpointModel.
func (EndpointModel) TableName() string {
	return "endpoint_models"
}

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Endpoint{},
		&EndpointModel{},
	}
}
