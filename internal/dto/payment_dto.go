package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type RecordPaymentRequest struct {
	JobID       string          `json:"job_id"       validate:"required,uuid"`
	Amount      decimal.Decimal `json:"amount"       validate:"required"`
	Method      string          `json:"method"       validate:"required"`
	ReferenceNo *string         `json:"reference_no" validate:"omitempty,max=64"`
	Notes       *string         `json:"notes"        validate:"omitempty,max=300"`
}

type RefundRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Reason string          `json:"reason" validate:"required,min=3,max=300"`
}

type RedeemPointsRequest struct {
	Points int     `json:"points" validate:"required,min=1"`
	JobID  *string `json:"job_id" validate:"omitempty,uuid"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type PaymentResponse struct {
	ID              string          `json:"id"`
	JobID           string          `json:"job_id"`
	Amount          decimal.Decimal `json:"amount"`
	Method          string          `json:"method"`
	Status          string          `json:"status"`
	ReferenceNo     *string         `json:"reference_no"`
	MpesaReceipt    *string         `json:"mpesa_receipt"`
	PhoneNumber     *string         `json:"phone_number"`
	RefundedAmount  decimal.Decimal `json:"refunded_amount"`
	Notes           string          `json:"notes"`
	TransactionDate *string         `json:"transaction_date"`
	CreatedAt       string          `json:"created_at"`
	// JobStatus is the job's status right after this payment was applied
	JobStatus string `json:"job_status,omitempty"`
}

type BalanceResponse struct {
	JobID       string          `json:"job_id"`
	JobStatus   string          `json:"job_status"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Remaining   decimal.Decimal `json:"remaining"`
}

type LoyaltyResponse struct {
	CustomerID    string `json:"customer_id"`
	Points        int    `json:"points"`
	LoyaltyPoints int    `json:"loyalty_points"`
}
