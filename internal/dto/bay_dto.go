package dto

// BayFilter is bound from the query string of GET /v1/bays.
type BayFilter struct {
	BranchID        string `form:"branch_id"        validate:"omitempty,uuid"`
	Status          string `form:"status"           validate:"omitempty,oneof=available occupied maintenance reserved inactive"`
	IncludeInactive bool   `form:"include_inactive"`
}

type CreateBayRequest struct {
	BranchID  string  `json:"branch_id"  validate:"omitempty,uuid"`
	BayNumber string  `json:"bay_number" validate:"required,min=1,max=20"`
	BayType   string  `json:"bay_type"   validate:"omitempty,max=30"`
	Notes     *string `json:"notes"      validate:"omitempty,max=300"`
}

// UpdateBayRequest is a patch: nil fields are left untouched. Occupancy is
// owned by the allocator, so Status only accepts the manual states.
type UpdateBayRequest struct {
	BayNumber *string `json:"bay_number" validate:"omitempty,min=1,max=20"`
	BayType   *string `json:"bay_type"   validate:"omitempty,max=30"`
	Status    *string `json:"status"     validate:"omitempty,oneof=available maintenance reserved"`
	Notes     *string `json:"notes"      validate:"omitempty,max=300"`
}

type BayResponse struct {
	ID           string  `json:"id"`
	BranchID     string  `json:"branch_id"`
	BayNumber    string  `json:"bay_number"`
	BayType      string  `json:"bay_type"`
	Status       string  `json:"status"`
	CurrentJobID *string `json:"current_job_id"`
	Notes        *string `json:"notes"`
}
