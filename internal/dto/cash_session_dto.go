package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenSessionRequest struct {
	// BranchID defaults to the operator's branch
	BranchID       string          `json:"branch_id"       validate:"omitempty,uuid"`
	OpeningBalance decimal.Decimal `json:"opening_balance" validate:"min=0"`
}

type CloseSessionRequest struct {
	ActualClosing decimal.Decimal `json:"actual_closing" validate:"min=0"`
	Notes         *string         `json:"notes"          validate:"omitempty,max=500"`
}

type ExpenseRequest struct {
	BranchID      string          `json:"branch_id"      validate:"omitempty,uuid"`
	Category      string          `json:"category"       validate:"required,min=2,max=50"`
	Amount        decimal.Decimal `json:"amount"         validate:"required,gt=0"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=cash mpesa card bank"`
	Description   string          `json:"description"    validate:"required,min=3,max=300"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type VarianceResponse struct {
	Amount  decimal.Decimal `json:"amount"`
	Percent decimal.Decimal `json:"percent"`
	Class   string          `json:"class"` // normal | warning | critical
}

type CashMovementResponse struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Method      string          `json:"method"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ReferenceID *string         `json:"reference_id"`
	CreatedAt   string          `json:"created_at"`
}

type CashSessionResponse struct {
	ID              string                 `json:"id"`
	BranchID        string                 `json:"branch_id"`
	OperatorID      string                 `json:"operator_id"`
	OpeningBalance  decimal.Decimal        `json:"opening_balance"`
	CashSales       decimal.Decimal        `json:"cash_sales"`
	MobileSales     decimal.Decimal        `json:"mobile_sales"`
	CardSales       decimal.Decimal        `json:"card_sales"`
	TotalSales      decimal.Decimal        `json:"total_sales"`
	ExpensesPaid    decimal.Decimal        `json:"expenses_paid"`
	ExpectedClosing decimal.Decimal        `json:"expected_closing"`
	ActualClosing   *decimal.Decimal       `json:"actual_closing"`
	Variance        *VarianceResponse      `json:"variance"`
	Status          string                 `json:"status"`
	Notes           *string                `json:"notes"`
	OpenedAt        string                 `json:"opened_at"`
	ClosedAt        *string                `json:"closed_at"`
	Movements       []CashMovementResponse `json:"movements,omitempty"`
	// ByMethod is the signed movement total per payment method
	ByMethod map[string]decimal.Decimal `json:"by_method,omitempty"`
}

type CashSessionListResponse struct {
	Data  []CashSessionResponse `json:"data"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

type ExpenseResponse struct {
	ID            string          `json:"id"`
	BranchID      string          `json:"branch_id"`
	CashSessionID *string         `json:"cash_session_id"`
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Description   string          `json:"description"`
	CreatedAt     string          `json:"created_at"`
}
