package repository

import (
	"context"

	"github.com/manodhiambo/carwash-pos-sub000/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ActivityRepository interface {
	Create(ctx context.Context, a *model.ActivityLog) error
	ListForEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]model.ActivityLog, error)
}

type activityRepo struct{ db *gorm.DB }

func NewActivityRepository(db *gorm.DB) ActivityRepository { return &activityRepo{db: db} }

func (r *activityRepo) Create(ctx context.Context, a *model.ActivityLog) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *activityRepo) ListForEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]model.ActivityLog, error) {
	var logs []model.ActivityLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").Find(&logs).Error
	return logs, err
}
