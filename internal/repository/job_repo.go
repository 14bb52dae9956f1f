package repository

import (
	"context"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobRepository is the data access contract for jobs and their service lines.
// Methods taking a tx run on it when non-nil and on the base connection otherwise.
type JobRepository interface {
	Create(ctx context.Context, tx *gorm.DB, j *model.Job) error
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Job, error)
	FindByNumber(ctx context.Context, number string) (*model.Job, error)
	// LockByID loads the job with SELECT ... FOR UPDATE. tx is required.
	LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Job, error)
	List(ctx context.Context, f *Filter, page Page) ([]model.Job, int64, error)
	Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error
	// MarkPaid moves the job to paid unless it already is. Returns false when
	// another writer got there first.
	MarkPaid(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error)
	// RevertPaid moves a paid job back to completed. No-op for other states.
	RevertPaid(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error)
	ClearBay(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	FindActiveByBay(ctx context.Context, tx *gorm.DB, bayID uuid.UUID) (*model.Job, error)
	NextSequence(ctx context.Context, tx *gorm.DB, dayKey string) (int, error)

	// Service lines
	CreateService(ctx context.Context, tx *gorm.DB, s *model.JobService) error
	StartPendingServices(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, at time.Time) error
	CompleteServices(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, at time.Time) error

	DB() *gorm.DB
}

type jobRepo struct{ db *gorm.DB }

func NewJobRepository(db *gorm.DB) JobRepository { return &jobRepo{db: db} }

func (r *jobRepo) DB() *gorm.DB { return r.db }

func (r *jobRepo) Create(ctx context.Context, tx *gorm.DB, j *model.Job) error {
	return conn(ctx, r.db, tx).Create(j).Error
}

func (r *jobRepo) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Job, error) {
	var j model.Job
	err := conn(ctx, r.db, tx).
		Preload("Services", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).First(&j).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *jobRepo) FindByNumber(ctx context.Context, number string) (*model.Job, error) {
	var j model.Job
	err := r.db.WithContext(ctx).
		Preload("Services").Preload("Payments").
		Where("job_number = ?", number).First(&j).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *jobRepo) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Job, error) {
	var j model.Job
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&j).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *jobRepo) List(ctx context.Context, f *Filter, page Page) ([]model.Job, int64, error) {
	var jobs []model.Job
	var total int64

	q := f.Apply(r.db.WithContext(ctx).Model(&model.Job{}))
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Preload("Services").Preload("Payments").
		Order("created_at DESC").
		Offset(page.offset()).Limit(page.Limit).
		Find(&jobs).Error
	return jobs, total, err
}

func (r *jobRepo) Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	return conn(ctx, r.db, tx).Model(&model.Job{}).Where("id = ?", id).Updates(fields).Error
}

func (r *jobRepo) MarkPaid(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error) {
	res := conn(ctx, r.db, tx).Model(&model.Job{}).
		Where("id = ? AND status <> ? AND status <> ?", id, model.JobPaid, model.JobCancelled).
		Updates(map[string]any{"status": model.JobPaid, "bay_id": nil, "updated_at": at})
	return res.RowsAffected > 0, res.Error
}

func (r *jobRepo) RevertPaid(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	res := conn(ctx, r.db, tx).Model(&model.Job{}).
		Where("id = ? AND status = ?", id, model.JobPaid).
		Update("status", model.JobCompleted)
	return res.RowsAffected > 0, res.Error
}

func (r *jobRepo) ClearBay(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return conn(ctx, r.db, tx).Model(&model.Job{}).Where("id = ?", id).Update("bay_id", nil).Error
}

func (r *jobRepo) FindActiveByBay(ctx context.Context, tx *gorm.DB, bayID uuid.UUID) (*model.Job, error) {
	var j model.Job
	err := conn(ctx, r.db, tx).
		Where("bay_id = ? AND status IN ?", bayID, model.ActiveJobStatuses).
		First(&j).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// NextSequence bumps the per-day counter. The UPDATE takes the row lock, so
// concurrent check-ins for the same day queue behind each other until commit.
func (r *jobRepo) NextSequence(ctx context.Context, tx *gorm.DB, dayKey string) (int, error) {
	db := conn(ctx, r.db, tx)
	seed := model.JobSequence{DayKey: dayKey}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return 0, err
	}
	if err := db.Model(&model.JobSequence{}).
		Where("day_key = ?", dayKey).
		Update("last_seq", gorm.Expr("last_seq + 1")).Error; err != nil {
		return 0, err
	}
	var seq model.JobSequence
	if err := db.Where("day_key = ?", dayKey).First(&seq).Error; err != nil {
		return 0, err
	}
	return seq.LastSeq, nil
}

// ── Service lines ────────────────────────────────────────────────────────────

func (r *jobRepo) CreateService(ctx context.Context, tx *gorm.DB, s *model.JobService) error {
	return conn(ctx, r.db, tx).Create(s).Error
}

func (r *jobRepo) StartPendingServices(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, at time.Time) error {
	return conn(ctx, r.db, tx).Model(&model.JobService{}).
		Where("job_id = ? AND status = ?", jobID, model.LinePending).
		Updates(map[string]any{"status": model.LineInProgress, "started_at": at}).Error
}

func (r *jobRepo) CompleteServices(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, at time.Time) error {
	db := conn(ctx, r.db, tx)
	// Lines that never started get a start stamp too.
	if err := db.Model(&model.JobService{}).
		Where("job_id = ? AND started_at IS NULL", jobID).
		Update("started_at", at).Error; err != nil {
		return err
	}
	return db.Model(&model.JobService{}).
		Where("job_id = ? AND status <> ?", jobID, model.LineCompleted).
		Updates(map[string]any{"status": model.LineCompleted, "completed_at": at}).Error
}
