package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Bay status values. Inactive is the soft-delete state.
const (
	BayAvailable   = "available"
	BayOccupied    = "occupied"
	BayMaintenance = "maintenance"
	BayReserved    = "reserved"
	BayInactive    = "inactive"
)

// Bay is a physical service stall. Occupied iff CurrentJobID is set and that
// job references this bay back.
type Bay struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BranchID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_bays_branch_number"`
	BayNumber    string     `gorm:"type:varchar(20);not null;uniqueIndex:idx_bays_branch_number"`
	BayType      string     `gorm:"type:varchar(30);not null;default:'standard'"`
	Status       string     `gorm:"type:varchar(20);not null;default:'available';index"`
	CurrentJobID *uuid.UUID `gorm:"type:uuid"`
	Notes        *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (b *Bay) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
