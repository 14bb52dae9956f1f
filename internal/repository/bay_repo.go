package repository

import (
	"context"

	"github.com/manodhiambo/carwash-pos-sub000/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BayRepository interface {
	Create(ctx context.Context, b *model.Bay) error
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Bay, error)
	List(ctx context.Context, f *Filter) ([]model.Bay, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	// Occupy flips an available bay of the given branch to occupied by jobID.
	// Returns false when the bay was not available (or not in that branch).
	Occupy(ctx context.Context, tx *gorm.DB, bayID, branchID, jobID uuid.UUID) (bool, error)
	// Release frees an occupied bay. Bays in other states are left alone.
	Release(ctx context.Context, tx *gorm.DB, bayID uuid.UUID) error
	// Deactivate soft-deletes a bay that is not occupied.
	Deactivate(ctx context.Context, id uuid.UUID) (bool, error)
	DB() *gorm.DB
}

type bayRepo struct{ db *gorm.DB }

func NewBayRepository(db *gorm.DB) BayRepository { return &bayRepo{db: db} }

func (r *bayRepo) DB() *gorm.DB { return r.db }

func (r *bayRepo) Create(ctx context.Context, b *model.Bay) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *bayRepo) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Bay, error) {
	var b model.Bay
	if err := conn(ctx, r.db, tx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bayRepo) List(ctx context.Context, f *Filter) ([]model.Bay, error) {
	var bays []model.Bay
	err := f.Apply(r.db.WithContext(ctx).Model(&model.Bay{})).
		Order("bay_number ASC").
		Find(&bays).Error
	return bays, err
}

func (r *bayRepo) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&model.Bay{}).Where("id = ?", id).Updates(fields).Error
}

func (r *bayRepo) Occupy(ctx context.Context, tx *gorm.DB, bayID, branchID, jobID uuid.UUID) (bool, error) {
	res := conn(ctx, r.db, tx).Model(&model.Bay{}).
		Where("id = ? AND branch_id = ? AND status = ?", bayID, branchID, model.BayAvailable).
		Updates(map[string]any{"status": model.BayOccupied, "current_job_id": jobID})
	return res.RowsAffected == 1, res.Error
}

func (r *bayRepo) Release(ctx context.Context, tx *gorm.DB, bayID uuid.UUID) error {
	return conn(ctx, r.db, tx).Model(&model.Bay{}).
		Where("id = ? AND status = ?", bayID, model.BayOccupied).
		Updates(map[string]any{"status": model.BayAvailable, "current_job_id": nil}).Error
}

func (r *bayRepo) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Bay{}).
		Where("id = ? AND status <> ?", id, model.BayOccupied).
		Update("status", model.BayInactive)
	return res.RowsAffected == 1, res.Error
}
