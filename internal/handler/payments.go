package handler

import (
	"net/http"

	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"
	"github.com/manodhiambo/carwash-pos-sub000/internal/service"

	"github.com/gin-gonic/gin"
)

type PaymentsHandler struct{ svc service.PaymentService }

func NewPaymentsHandler(svc service.PaymentService) *PaymentsHandler {
	return &PaymentsHandler{svc: svc}
}

// Record godoc
// @Summary      Record a counter payment
// @Description  Cash, card, bank or credit. Settles the job when the balance reaches zero. Mobile money goes through the STK push endpoint.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.RecordPaymentRequest true "Payment"
// @Success      201 {object} dto.PaymentResponse
// @Failure      409 {object} apierror.APIError
// @Failure      422 {object} apierror.APIError
// @Router       /v1/payments [post]
func (h *PaymentsHandler) Record(c *gin.Context) {
	var req dto.RecordPaymentRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RecordPayment(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Refund godoc
// @Summary      Refund a completed payment
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string            true "Payment UUID"
// @Param        body body dto.RefundRequest true "Amount and reason"
// @Success      200 {object} dto.PaymentResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/payments/{id}/refund [post]
func (h *PaymentsHandler) Refund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.RefundRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Refund(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RedeemPoints godoc
// @Summary      Redeem loyalty points
// @Description  Redemption is capped at the customer's balance.
// @Tags         loyalty
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                  true "Customer UUID"
// @Param        body body dto.RedeemPointsRequest true "Points"
// @Success      200 {object} dto.LoyaltyResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/customers/{id}/loyalty/redeem [post]
func (h *PaymentsHandler) RedeemPoints(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.RedeemPointsRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RedeemPoints(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
