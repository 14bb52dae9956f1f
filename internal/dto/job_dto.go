package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Filter / List ──────────────────────────────────────────────────────────

// JobFilter is bound from the query string of GET /v1/jobs.
type JobFilter struct {
	Status     string `form:"status"      validate:"omitempty,oneof=checked_in in_queue washing detailing completed paid cancelled active"`
	BranchID   string `form:"branch_id"   validate:"omitempty,uuid"`
	BayID      string `form:"bay_id"      validate:"omitempty,uuid"`
	CustomerID string `form:"customer_id" validate:"omitempty,uuid"`
	DateFrom   string `form:"date_from"   validate:"omitempty,datetime=2006-01-02"`
	DateTo     string `form:"date_to"     validate:"omitempty,datetime=2006-01-02"`
	// Search matches the job number or the vehicle registration prefix
	Search string `form:"search" validate:"omitempty,max=32"`
	Page   int    `form:"page,default=1"   validate:"min=1"`
	Limit  int    `form:"limit,default=50" validate:"min=1,max=200"`
}

type JobListResponse struct {
	Data  []JobResponse `json:"data"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// ─── Request DTOs ────────────────────────────────────────────────────────────

type JobServiceRequest struct {
	ServiceID string          `json:"service_id" validate:"required,uuid"`
	Quantity  int             `json:"quantity"   validate:"omitempty,min=1,max=20"`
	Discount  decimal.Decimal `json:"discount"   validate:"min=0"`
}

type CheckInRequest struct {
	RegistrationNo string  `json:"registration_no" validate:"required,min=2,max=20"`
	VehicleType    string  `json:"vehicle_type"    validate:"required"`
	VehicleMake    *string `json:"vehicle_make"    validate:"omitempty,max=60"`
	VehicleModel   *string `json:"vehicle_model"   validate:"omitempty,max=60"`
	VehicleColor   *string `json:"vehicle_color"   validate:"omitempty,max=30"`
	CustomerPhone  *string `json:"customer_phone"  validate:"omitempty,min=9,max=16"`
	CustomerName   *string `json:"customer_name"   validate:"omitempty,max=120"`
	// BranchID defaults to the operator's branch
	BranchID            string              `json:"branch_id"       validate:"omitempty,uuid"`
	BayID               *string             `json:"bay_id"          validate:"omitempty,uuid"`
	Services            []JobServiceRequest `json:"services"        validate:"required,min=1,dive"`
	IsRewash            bool                `json:"is_rewash"`
	OriginalJobID       *string             `json:"original_job_id" validate:"omitempty,uuid"`
	EstimatedCompletion *time.Time          `json:"estimated_completion"`
	Notes               *string             `json:"notes"           validate:"omitempty,max=500"`
}

type UpdateStatusRequest struct {
	Status string  `json:"status" validate:"required,oneof=checked_in in_queue washing detailing completed paid cancelled"`
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

type DiscountRequest struct {
	// Type: "percentage" | "fixed"
	Type   string          `json:"type"   validate:"required,oneof=percentage fixed"`
	Value  decimal.Decimal `json:"value"  validate:"required,gt=0"`
	Reason string          `json:"reason" validate:"required,min=3,max=200"`
}

type AssignBayRequest struct {
	BayID string `json:"bay_id" validate:"required,uuid"`
}

type AssignStaffRequest struct {
	StaffID string `json:"staff_id" validate:"required,uuid"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type JobServiceResponse struct {
	ID          string          `json:"id"`
	ServiceID   string          `json:"service_id"`
	ServiceName string          `json:"service_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Discount    decimal.Decimal `json:"discount"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Status      string          `json:"status"`
	StartedAt   *string         `json:"started_at"`
	CompletedAt *string         `json:"completed_at"`
}

type JobResponse struct {
	ID                  string               `json:"id"`
	JobNumber           string               `json:"job_number"`
	Status              string               `json:"status"`
	VehicleID           string               `json:"vehicle_id"`
	CustomerID          *string              `json:"customer_id"`
	BranchID            string               `json:"branch_id"`
	BayID               *string              `json:"bay_id"`
	AssignedStaffID     *string              `json:"assigned_staff_id"`
	TotalAmount         decimal.Decimal      `json:"total_amount"`
	DiscountAmount      decimal.Decimal      `json:"discount_amount"`
	FinalAmount         decimal.Decimal      `json:"final_amount"`
	PaidAmount          decimal.Decimal      `json:"paid_amount"`
	Balance             decimal.Decimal      `json:"balance"`
	IsRewash            bool                 `json:"is_rewash"`
	OriginalJobID       *string              `json:"original_job_id"`
	Notes               string               `json:"notes"`
	Services            []JobServiceResponse `json:"services"`
	EstimatedCompletion *string              `json:"estimated_completion"`
	ActualCompletion    *string              `json:"actual_completion"`
	CreatedAt           string               `json:"created_at"`
}
