package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Customer is owned by the customer directory. The engine only looks customers
// up by phone, creates them at check-in and keeps the spend/loyalty totals.
// Status: "active" | "inactive"
type Customer struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Name          string          `gorm:"type:varchar(120);not null;default:''"`
	Phone         string          `gorm:"type:varchar(20);uniqueIndex;not null"`
	LoyaltyPoints int             `gorm:"not null;default:0"`
	TotalSpent    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalVisits   int             `gorm:"not null;default:0"`
	Status        string          `gorm:"type:varchar(20);not null;default:'active'"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (c *Customer) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Vehicle types accepted by the pricing resolver.
const (
	VehicleSaloon     = "saloon"
	VehicleSUV        = "suv"
	VehicleVan        = "van"
	VehicleTruck      = "truck"
	VehiclePickup     = "pickup"
	VehicleMotorcycle = "motorcycle"
	VehicleBus        = "bus"
	VehicleTrailer    = "trailer"
)

var vehicleTypes = map[string]struct{}{
	VehicleSaloon: {}, VehicleSUV: {}, VehicleVan: {}, VehicleTruck: {},
	VehiclePickup: {}, VehicleMotorcycle: {}, VehicleBus: {}, VehicleTrailer: {},
}

// ValidVehicleType reports whether t belongs to the closed vehicle enumeration.
func ValidVehicleType(t string) bool {
	_, ok := vehicleTypes[t]
	return ok
}

// Vehicle is keyed by its upper-cased registration number. CustomerID is set
// once and never overwritten by check-in.
type Vehicle struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	RegistrationNo string     `gorm:"type:varchar(20);uniqueIndex;not null"`
	VehicleType    string     `gorm:"type:varchar(20);not null"`
	Make           *string    `gorm:"type:varchar(60)"`
	Model          *string    `gorm:"type:varchar(60)"`
	Color          *string    `gorm:"type:varchar(30)"`
	CustomerID     *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (v *Vehicle) BeforeCreate(_ *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
