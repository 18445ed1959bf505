package store

import (
	"context"

	"github.com/modelcached/modelcached/pkg/controlplane/models"
)

// Store is the control plane persistence interface.
type Store interface {
	GetEndpoint(ctx context.Context, name string) (*models.Endpoint, error)
	ListEndpoints(ctx context.Context) ([]*models.Endpoint, error)
	CreateEndpoint(ctx context.Context, ep *models.Endpoint) (string, error)
	UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error
	DeleteEndpoint(ctx context.Context, name string) error

	Healthcheck(ctx context.Context) error
	Close() error
}
