package handler

import (
	"net/http"

	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"
	"github.com/manodhiambo/carwash-pos-sub000/internal/service"

	"github.com/gin-gonic/gin"
)

type CashSessionsHandler struct{ svc service.CashSessionService }

func NewCashSessionsHandler(svc service.CashSessionService) *CashSessionsHandler {
	return &CashSessionsHandler{svc: svc}
}

// Open godoc
// @Summary      Open the drawer session of a branch
// @Tags         cash-sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.OpenSessionRequest true "Opening float"
// @Success      201 {object} dto.CashSessionResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/cash-sessions/open [post]
func (h *CashSessionsHandler) Open(c *gin.Context) {
	var req dto.OpenSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Open(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Close godoc
// @Summary      Close a drawer session with the counted cash
// @Description  Computes the variance; notes explain a critical one.
// @Tags         cash-sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                  true "Session UUID"
// @Param        body body dto.CloseSessionRequest true "Counted cash"
// @Success      200 {object} dto.CashSessionResponse
// @Failure      409 {object} apierror.APIError
// @Failure      422 {object} apierror.APIError
// @Router       /v1/cash-sessions/{id}/close [post]
func (h *CashSessionsHandler) Close(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.CloseSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Close(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Current godoc
// @Summary      Open session of a branch
// @Tags         cash-sessions
// @Produce      json
// @Security     BearerAuth
// @Param        branch_id query string false "Branch UUID (default: operator branch)"
// @Success      200 {object} dto.CashSessionResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/cash-sessions/current [get]
func (h *CashSessionsHandler) Current(c *gin.Context) {
	resp, err := h.svc.Current(c.Request.Context(), actorFrom(c), c.Query("branch_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary      Session report with movements
// @Tags         cash-sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Session UUID"
// @Success      200 {object} dto.CashSessionResponse
// @Router       /v1/cash-sessions/{id} [get]
func (h *CashSessionsHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History godoc
// @Summary      Past sessions of a branch
// @Tags         cash-sessions
// @Produce      json
// @Security     BearerAuth
// @Param        branch_id query string false "Branch UUID (default: operator branch)"
// @Param        page      query int    false "Page (default 1)"
// @Param        limit     query int    false "Page size (default 20)"
// @Success      200 {object} dto.CashSessionListResponse
// @Router       /v1/cash-sessions [get]
func (h *CashSessionsHandler) History(c *gin.Context) {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 20)
	resp, err := h.svc.History(c.Request.Context(), actorFrom(c), c.Query("branch_id"), page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RecordExpense godoc
// @Summary      Record an expense
// @Description  Cash expenses need an open drawer session and reduce its expected closing.
// @Tags         expenses
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.ExpenseRequest true "Expense"
// @Success      201 {object} dto.ExpenseResponse
// @Failure      412 {object} apierror.APIError
// @Router       /v1/expenses [post]
func (h *CashSessionsHandler) RecordExpense(c *gin.Context) {
	var req dto.ExpenseRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RecordExpense(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
