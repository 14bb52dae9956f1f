package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service catalog status values. Inactive services cannot be priced.
const (
	ServiceActive   = "active"
	ServiceInactive = "inactive"
)

// Service is a sellable wash or detailing service with a base price.
type Service struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Name            string          `gorm:"type:varchar(120);not null"`
	Category        string          `gorm:"type:varchar(50);not null;default:'wash'"`
	BasePrice       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DurationMinutes int             `gorm:"not null;default:30"`
	Status          string          `gorm:"type:varchar(20);not null;default:'active'"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Pricing []ServicePricing `gorm:"foreignKey:ServiceID"`
}

func (s *Service) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ServicePricing overrides a service's base price for one vehicle type.
type ServicePricing struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ServiceID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_service_pricing_type"`
	VehicleType string          `gorm:"type:varchar(20);not null;uniqueIndex:idx_service_pricing_type"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ServicePricing) TableName() string { return "service_pricing" }

func (p *ServicePricing) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Branch is a physical car-wash location.
type Branch struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"type:varchar(120);not null"`
	Code      string    `gorm:"type:varchar(20);uniqueIndex;not null"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (b *Branch) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
