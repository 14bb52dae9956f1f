package repository

import (
	"context"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, p *model.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Payment, error)
	FindByReference(ctx context.Context, ref string) (*model.Payment, error)
	// LockPendingByReference returns the pending payment carrying ref, locked
	// for update. gorm.ErrRecordNotFound means there is nothing to reconcile.
	LockPendingByReference(ctx context.Context, tx *gorm.DB, ref string) (*model.Payment, error)
	ListForJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]model.Payment, error)
	Save(ctx context.Context, tx *gorm.DB, p *model.Payment) error
	// ListStalePending returns pending payments of method created before cutoff, oldest first.
	ListStalePending(ctx context.Context, method string, cutoff time.Time, limit int) ([]model.Payment, error)
	DB() *gorm.DB
}

type paymentRepo struct{ db *gorm.DB }

func NewPaymentRepository(db *gorm.DB) PaymentRepository { return &paymentRepo{db: db} }

func (r *paymentRepo) DB() *gorm.DB { return r.db }

func (r *paymentRepo) Create(ctx context.Context, tx *gorm.DB, p *model.Payment) error {
	return conn(ctx, r.db, tx).Create(p).Error
}

func (r *paymentRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var p model.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Payment, error) {
	var p model.Payment
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) FindByReference(ctx context.Context, ref string) (*model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).Where("reference_no = ?", ref).
		Order("created_at DESC").First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) LockPendingByReference(ctx context.Context, tx *gorm.DB, ref string) (*model.Payment, error) {
	var p model.Payment
	err := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference_no = ? AND status = ?", ref, model.PaymentPending).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) ListForJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]model.Payment, error) {
	var payments []model.Payment
	err := conn(ctx, r.db, tx).Where("job_id = ?", jobID).Order("created_at ASC").Find(&payments).Error
	return payments, err
}

func (r *paymentRepo) Save(ctx context.Context, tx *gorm.DB, p *model.Payment) error {
	return conn(ctx, r.db, tx).Save(p).Error
}

func (r *paymentRepo) ListStalePending(ctx context.Context, method string, cutoff time.Time, limit int) ([]model.Payment, error) {
	var payments []model.Payment
	err := r.db.WithContext(ctx).
		Where("method = ? AND status = ? AND created_at < ?", method, model.PaymentPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}
