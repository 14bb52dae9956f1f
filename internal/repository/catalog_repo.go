package repository

import (
	"context"

	"github.com/manodhiambo/carwash-pos-sub000/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogRepository reads the externally owned service catalog and branches.
type CatalogRepository interface {
	FindService(ctx context.Context, id uuid.UUID) (*model.Service, error)
	// FindOverride returns the per-vehicle-type price, or gorm.ErrRecordNotFound.
	FindOverride(ctx context.Context, serviceID uuid.UUID, vehicleType string) (*model.ServicePricing, error)
	FindBranch(ctx context.Context, id uuid.UUID) (*model.Branch, error)
}

type catalogRepo struct{ db *gorm.DB }

func NewCatalogRepository(db *gorm.DB) CatalogRepository { return &catalogRepo{db: db} }

func (r *catalogRepo) FindService(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	var s model.Service
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *catalogRepo) FindOverride(ctx context.Context, serviceID uuid.UUID, vehicleType string) (*model.ServicePricing, error) {
	var p model.ServicePricing
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND vehicle_type = ?", serviceID, vehicleType).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *catalogRepo) FindBranch(ctx context.Context, id uuid.UUID) (*model.Branch, error) {
	var b model.Branch
	if err := r.db.WithContext(ctx).Where("id = ? AND active = ?", id, true).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}
