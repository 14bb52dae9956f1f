package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Loyalty transaction types.
const (
	LoyaltyEarned   = "earned"
	LoyaltyRedeemed = "redeemed"
	LoyaltyExpired  = "expired"
)

// LoyaltyTransaction is an immutable points event. Points is signed and
// BalanceAfter mirrors customers.loyalty_points right after the event.
type LoyaltyTransaction struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CustomerID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	JobID        *uuid.UUID `gorm:"type:uuid"`
	Type         string     `gorm:"type:varchar(20);not null"`
	Points       int        `gorm:"not null"`
	BalanceAfter int        `gorm:"not null"`
	Description  string     `gorm:"not null;default:''"`
	CreatedAt    time.Time
}

func (t *LoyaltyTransaction) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// ActivityLog is the operator audit trail. Writes are best-effort.
type ActivityLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"type:uuid;index"`
	Action     string    `gorm:"type:varchar(50);not null"`
	EntityType string    `gorm:"type:varchar(30);not null"`
	EntityID   uuid.UUID `gorm:"type:uuid;index"`
	Detail     string    `gorm:"type:text;not null;default:''"`
	CreatedAt  time.Time
}

func (a *ActivityLog) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
