package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payment methods.
const (
	MethodCash   = "cash"
	MethodMpesa  = "mpesa"
	MethodCard   = "card"
	MethodBank   = "bank"
	MethodCredit = "credit"
)

// Payment status values.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
	PaymentPartial   = "partial"
)

// Payment is one settlement attempt against a job. For mpesa payments
// ReferenceNo holds the gateway CheckoutRequestID, the callback correlation key.
type Payment struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	JobID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	BranchID        uuid.UUID       `gorm:"type:uuid;not null"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Method          string          `gorm:"type:varchar(20);not null"`
	Status          string          `gorm:"type:varchar(20);not null;index"`
	ReferenceNo     *string         `gorm:"type:varchar(64);index"`
	MpesaReceipt    *string         `gorm:"type:varchar(32)"`
	PhoneNumber     *string         `gorm:"type:varchar(20)"`
	RefundedAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	ReceivedBy      uuid.UUID       `gorm:"type:uuid"`
	Notes           string          `gorm:"type:text;not null;default:''"`
	GatewayPayload  datatypes.JSON
	TransactionDate *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (p *Payment) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// NetAmount is what the payment contributes to the job's settled total.
func (p *Payment) NetAmount() decimal.Decimal {
	switch p.Status {
	case PaymentCompleted:
		return p.Amount
	case PaymentPartial:
		return p.Amount.Sub(p.RefundedAmount)
	default:
		return decimal.Zero
	}
}

// NetPaid sums the settled contribution of payments.
func NetPaid(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for i := range payments {
		total = total.Add(payments[i].NetAmount())
	}
	return total
}
