package handler

import (
	"net/http"

	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"
	"github.com/manodhiambo/carwash-pos-sub000/internal/service"

	"github.com/gin-gonic/gin"
)

type BaysHandler struct{ svc service.BayService }

func NewBaysHandler(svc service.BayService) *BaysHandler { return &BaysHandler{svc: svc} }

// List godoc
// @Summary      List bays of a branch
// @Tags         bays
// @Produce      json
// @Security     BearerAuth
// @Param        branch_id        query string false "Branch UUID (default: operator branch)"
// @Param        status           query string false "Bay status"
// @Param        include_inactive query bool   false "Include deactivated bays"
// @Success      200 {array} dto.BayResponse
// @Router       /v1/bays [get]
func (h *BaysHandler) List(c *gin.Context) {
	var filter dto.BayFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.List(c.Request.Context(), actorFrom(c), filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Create godoc
// @Summary      Register a bay
// @Tags         bays
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CreateBayRequest true "Bay"
// @Success      201 {object} dto.BayResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/bays [post]
func (h *BaysHandler) Create(c *gin.Context) {
	var req dto.CreateBayRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Update godoc
// @Summary      Edit a bay
// @Tags         bays
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string               true "Bay UUID"
// @Param        body body dto.UpdateBayRequest true "Fields to change"
// @Success      200 {object} dto.BayResponse
// @Router       /v1/bays/{id} [put]
func (h *BaysHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateBayRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Update(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Deactivate godoc
// @Summary      Deactivate a bay
// @Tags         bays
// @Security     BearerAuth
// @Param        id path string true "Bay UUID"
// @Success      204
// @Failure      409 {object} apierror.APIError
// @Router       /v1/bays/{id} [delete]
func (h *BaysHandler) Deactivate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Deactivate(c.Request.Context(), actorFrom(c), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Release godoc
// @Summary      Free a bay
// @Description  Idempotent. Clears the bay reference of the job it held.
// @Tags         bays
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Bay UUID"
// @Success      200 {object} dto.BayResponse
// @Router       /v1/bays/{id}/release [post]
func (h *BaysHandler) Release(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Release(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
