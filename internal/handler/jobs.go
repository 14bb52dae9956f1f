package handler

import (
	"net/http"

	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"
	"github.com/manodhiambo/carwash-pos-sub000/internal/service"

	"github.com/gin-gonic/gin"
)

type JobsHandler struct {
	jobs     service.JobService
	bays     service.BayService
	payments service.PaymentService
}

func NewJobsHandler(jobs service.JobService, bays service.BayService, payments service.PaymentService) *JobsHandler {
	return &JobsHandler{jobs: jobs, bays: bays, payments: payments}
}

// CheckIn godoc
// @Summary      Check a vehicle in
// @Description  Creates a job with its service lines, resolving prices per vehicle type. Optionally claims a bay in the same transaction.
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CheckInRequest true "Vehicle and requested services"
// @Success      201  {object} dto.JobResponse
// @Failure      409  {object} apierror.APIError
// @Failure      422  {object} apierror.APIError
// @Router       /v1/jobs [post]
func (h *JobsHandler) CheckIn(c *gin.Context) {
	var req dto.CheckInRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.jobs.CheckIn(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary      List jobs
// @Tags         jobs
// @Produce      json
// @Security     BearerAuth
// @Param        status    query string false "Job status, or active"
// @Param        branch_id query string false "Branch UUID"
// @Param        bay_id    query string false "Bay UUID"
// @Param        date_from query string false "YYYY-MM-DD"
// @Param        date_to   query string false "YYYY-MM-DD"
// @Param        search    query string false "Job number or registration prefix"
// @Param        page      query int    false "Page (default 1)"
// @Param        limit     query int    false "Page size (default 50)"
// @Success      200 {object} dto.JobListResponse
// @Router       /v1/jobs [get]
func (h *JobsHandler) List(c *gin.Context) {
	var filter dto.JobFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.jobs.List(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary      Get a job with its service lines
// @Tags         jobs
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Job UUID"
// @Success      200 {object} dto.JobResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/jobs/{id} [get]
func (h *JobsHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetByNumber godoc
// @Summary      Look a job up by its ticket number
// @Tags         jobs
// @Produce      json
// @Security     BearerAuth
// @Param        number path string true "Job number, e.g. JOB-20240115-0001"
// @Success      200 {object} dto.JobResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/jobs/by-number/{number} [get]
func (h *JobsHandler) GetByNumber(c *gin.Context) {
	resp, err := h.jobs.GetByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateStatus godoc
// @Summary      Move a job through its lifecycle
// @Description  Only forward transitions are accepted. Completing or cancelling releases the bay.
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                  true "Job UUID"
// @Param        body body dto.UpdateStatusRequest true "Target status"
// @Success      200 {object} dto.JobResponse
// @Failure      422 {object} apierror.APIError
// @Router       /v1/jobs/{id}/status [patch]
func (h *JobsHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.jobs.UpdateStatus(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AddService godoc
// @Summary      Add a service line to an open job
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                true "Job UUID"
// @Param        body body dto.JobServiceRequest true "Service line"
// @Success      200 {object} dto.JobResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/jobs/{id}/services [post]
func (h *JobsHandler) AddService(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.JobServiceRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.jobs.AddService(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ApplyDiscount godoc
// @Summary      Apply a job-level discount
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string              true "Job UUID"
// @Param        body body dto.DiscountRequest true "Percentage or fixed discount"
// @Success      200 {object} dto.JobResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/jobs/{id}/discount [post]
func (h *JobsHandler) ApplyDiscount(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.DiscountRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.jobs.ApplyDiscount(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AssignBay godoc
// @Summary      Claim a bay for a job
// @Description  Exclusive: a bay already holding another job yields bay_unavailable.
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string               true "Job UUID"
// @Param        body body dto.AssignBayRequest true "Bay"
// @Success      200 {object} dto.BayResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/jobs/{id}/bay [post]
func (h *JobsHandler) AssignBay(c *gin.Context) {
	jobID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.AssignBayRequest
	if !bindAndValidate(c, &req) {
		return
	}
	bayID, err := parseUUID(req.BayID)
	if err != nil {
		fail(c, err)
		return
	}
	resp, err := h.bays.Assign(c.Request.Context(), actorFrom(c), jobID, bayID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AssignStaff godoc
// @Summary      Assign an attendant to a job
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                 true "Job UUID"
// @Param        body body dto.AssignStaffRequest true "Staff member"
// @Success      200 {object} dto.JobResponse
// @Router       /v1/jobs/{id}/staff [patch]
func (h *JobsHandler) AssignStaff(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.AssignStaffRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.jobs.AssignStaff(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Payments godoc
// @Summary      List payments recorded against a job
// @Tags         jobs
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Job UUID"
// @Success      200 {array} dto.PaymentResponse
// @Router       /v1/jobs/{id}/payments [get]
func (h *JobsHandler) Payments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := h.payments.ListForJob(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Balance godoc
// @Summary      Outstanding balance of a job
// @Tags         jobs
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Job UUID"
// @Success      200 {object} dto.BalanceResponse
// @Router       /v1/jobs/{id}/balance [get]
func (h *JobsHandler) Balance(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := h.payments.Balance(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
