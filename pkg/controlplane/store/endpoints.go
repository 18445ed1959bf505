package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/modelcached/modelcached/pkg/controlplane/models"
)

// GetEndpoint returns an endpoint by name, with its models preloaded.
func (s *GORMStore) GetEndpoint(ctx context.Context, name string) (*models.Endpoint, error) {
	var ep models.Endpoint
	err := s.db.WithContext(ctx).
		Preload("Models").
		Where("name = ?", name).
		First(&ep).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrEndpointNotFound)
	}
	return &ep, nil
}

// ListEndpoints returns all endpoints with their models preloaded.
func (s *GORMStore) ListEndpoints(ctx context.Context) ([]*models.Endpoint, error) {
	var eps []*models.Endpoint
	if err := s.db.WithContext(ctx).
		Preload("Models").
		Order("name").
		Find(&eps).Error; err != nil {
		return nil, err
	}
	return eps, nil
}

// CreateEndpoint persists a new endpoint and its model mappings.
func (s *GORMStore) CreateEndpoint(ctx context.Context, ep *models.Endpoint) (string, error) {
	if ep.ID == "" {
		ep.ID = uuid.New().String()
	}
	now := time.Now()
	ep.CreatedAt = now
	ep.UpdatedAt = now
	for i := range ep.Models {
		if ep.Models[i].ID == "" {
			ep.Models[i].ID = uuid.New().String()
		}
		ep.Models[i].EndpointID = ep.ID
	}

	if err := s.db.WithContext(ctx).Create(ep).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", models.ErrDuplicateEndpoint
		}
		return "", err
	}
	return ep.ID, nil
}

// UpdateEndpoint updates an endpoint's budgets and replaces its model
// mappings in one transaction.
func (s *GORMStore) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	ep.UpdatedAt = time.Now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Endpoint{}).
			Where("id = ?", ep.ID).
			Updates(map[string]any{
				"memory_budget": ep.MemoryBudget,
				"disk_budget":   ep.DiskBudget,
				"runtime":       ep.Runtime,
				"updated_at":    ep.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrEndpointNotFound
		}

		if err := tx.Where("endpoint_id = ?", ep.ID).
			Delete(&models.EndpointModel{}).Error; err != nil {
			return err
		}
		for i := range ep.Models {
			if ep.Models[i].ID == "" {
				ep.Models[i].ID = uuid.New().String()
			}
			ep.Models[i].EndpointID = ep.ID
		}
		if len(ep.Models) > 0 {
			if err := tx.Create(&ep.Models).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteEndpoint removes an endpoint and its model mappings.
func (s *GORMStore) DeleteEndpoint(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ep models.Endpoint
		if err := tx.Where("name = ?", name).First(&ep).Error; err != nil {
			return convertNotFoundError(err, models.ErrEndpointNotFound)
		}
		if err := tx.Where("endpoint_id = ?", ep.ID).
			Delete(&models.EndpointModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&ep).Error
	})
}
