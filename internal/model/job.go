package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Job status values, in forward order. Cancelled is the single side exit.
const (
	JobCheckedIn = "checked_in"
	JobInQueue   = "in_queue"
	JobWashing   = "washing"
	JobDetailing = "detailing"
	JobCompleted = "completed"
	JobPaid      = "paid"
	JobCancelled = "cancelled"
)

// Job service line status values.
const (
	LinePending    = "pending"
	LineInProgress = "in_progress"
	LineCompleted  = "completed"
)

// ActiveJobStatuses are the states in which a job may hold a bay.
var ActiveJobStatuses = []string{JobCheckedIn, JobInQueue, JobWashing, JobDetailing}

// Job is one vehicle visit. Rows are never deleted; cancellation is a status.
// FinalAmount is always TotalAmount - DiscountAmount.
type Job struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey"`
	JobNumber           string          `gorm:"type:varchar(32);uniqueIndex;not null"`
	Status              string          `gorm:"type:varchar(20);not null;index"`
	VehicleID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	CustomerID          *uuid.UUID      `gorm:"type:uuid;index"`
	BranchID            uuid.UUID       `gorm:"type:uuid;not null;index"`
	BayID               *uuid.UUID      `gorm:"type:uuid;index"`
	AssignedStaffID     *uuid.UUID      `gorm:"type:uuid"`
	TotalAmount         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	DiscountAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	FinalAmount         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	IsRewash            bool            `gorm:"not null;default:false"`
	OriginalJobID       *uuid.UUID      `gorm:"type:uuid"`
	Notes               string          `gorm:"type:text;not null;default:''"`
	CreatedBy           uuid.UUID       `gorm:"type:uuid"`
	EstimatedCompletion *time.Time
	ActualCompletion    *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time

	Services []JobService `gorm:"foreignKey:JobID"`
	Payments []Payment    `gorm:"foreignKey:JobID"`
}

func (j *Job) BeforeCreate(_ *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// IsActive reports whether the job is in the bay-holding range.
func (j *Job) IsActive() bool {
	for _, s := range ActiveJobStatuses {
		if j.Status == s {
			return true
		}
	}
	return false
}

// JobService is one service line on a job. LineTotal = UnitPrice*Quantity - Discount.
type JobService struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	JobID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	ServiceID   uuid.UUID       `gorm:"type:uuid;not null"`
	ServiceName string          `gorm:"type:varchar(120);not null;default:''"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Quantity    int             `gorm:"not null;default:1"`
	Discount    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status      string          `gorm:"type:varchar(20);not null;default:'pending'"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

func (s *JobService) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// JobSequence is the per-day counter behind job numbers. Incrementing the row
// inside the check-in transaction serialises concurrent check-ins for the day.
type JobSequence struct {
	DayKey  string `gorm:"type:varchar(8);primaryKey"`
	LastSeq int    `gorm:"not null;default:0"`
}
