package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Cash session status values.
const (
	SessionOpen   = "open"
	SessionClosed = "closed"
)

// CashSession represents one operator's drawer period for a branch.
// ExpectedClosing is kept current on every update:
// OpeningBalance + CashSales - ExpensesPaid.
type CashSession struct {
	ID              uuid.UUID        `gorm:"type:uuid;primaryKey"`
	BranchID        uuid.UUID        `gorm:"type:uuid;not null;index"`
	OperatorID      uuid.UUID        `gorm:"type:uuid;not null"`
	OpeningBalance  decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	CashSales       decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0"`
	MobileSales     decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0"`
	CardSales       decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0"`
	TotalSales      decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0"`
	ExpensesPaid    decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0"`
	ExpectedClosing decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0"`
	ActualClosing   *decimal.Decimal `gorm:"type:decimal(12,2)"`
	Variance        *decimal.Decimal `gorm:"type:decimal(12,2)"`
	// VarianceClass: "normal" | "warning" | "critical"
	VarianceClass *string `gorm:"type:varchar(20)"`
	Status        string  `gorm:"type:varchar(20);not null;default:'open';index"`
	Notes         *string
	OpenedAt      time.Time
	ClosedAt      *time.Time

	Movements []CashMovement `gorm:"foreignKey:CashSessionID"`
}

func (s *CashSession) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.OpenedAt.IsZero() {
		s.OpenedAt = time.Now()
	}
	return nil
}

// Cash movement types.
const (
	MovementSale    = "sale"
	MovementExpense = "expense"
	MovementRefund  = "refund"
)

// CashMovement is an immutable event in the drawer ledger. Amount is signed:
// sales are positive, expenses and refunds negative. Movements are never
// modified or deleted.
type CashMovement struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CashSessionID uuid.UUID       `gorm:"type:uuid;index;not null"`
	Type          string          `gorm:"type:varchar(20);not null"`
	Method        string          `gorm:"type:varchar(20);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Description   string          `gorm:"not null"`
	// ReferenceID links to the originating payment or expense
	ReferenceID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt   time.Time
}

func (m *CashMovement) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Expense is owned by the expenses collaborator; the drawer tracker writes it
// through RecordExpense so the session totals move in the same transaction.
type Expense struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	BranchID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	CashSessionID *uuid.UUID      `gorm:"type:uuid"`
	Category      string          `gorm:"type:varchar(50);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PaymentMethod string          `gorm:"type:varchar(20);not null"`
	Description   string          `gorm:"not null"`
	RecordedBy    uuid.UUID       `gorm:"type:uuid"`
	CreatedAt     time.Time
}

func (e *Expense) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
