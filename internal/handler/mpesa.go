package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/apierror"
	"github.com/manodhiambo/carwash-pos-sub000/internal/dto"
	"github.com/manodhiambo/carwash-pos-sub000/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// CallbackQueue defers a gateway callback that could not be applied inline.
type CallbackQueue interface {
	EnqueueMpesaCallback(ctx context.Context, payload any) error
}

const callbackApplyTimeout = 10 * time.Second

var callbackAck = dto.MpesaAck{ResultCode: 0, ResultDesc: "Accepted"}

type MpesaHandler struct {
	svc   service.MpesaService
	queue CallbackQueue
}

func NewMpesaHandler(svc service.MpesaService, queue CallbackQueue) *MpesaHandler {
	return &MpesaHandler{svc: svc, queue: queue}
}

// STKPush godoc
// @Summary      Start a mobile-money payment
// @Description  Sends an STK push to the customer's handset and records a pending payment. The job settles when the gateway calls back.
// @Tags         mpesa
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.STKPushRequest true "Job, phone and amount"
// @Success      202 {object} dto.STKPushResponse
// @Failure      409 {object} apierror.APIError
// @Failure      502 {object} apierror.APIError
// @Router       /v1/payments/mpesa/stk-push [post]
func (h *MpesaHandler) STKPush(c *gin.Context) {
	var req dto.STKPushRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Initiate(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// Status godoc
// @Summary      Status of a mobile-money payment
// @Tags         mpesa
// @Produce      json
// @Security     BearerAuth
// @Param        checkout_id path string true "CheckoutRequestID"
// @Success      200 {object} dto.MpesaStatusResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/payments/mpesa/{checkout_id} [get]
func (h *MpesaHandler) Status(c *gin.Context) {
	resp, err := h.svc.Status(c.Request.Context(), c.Param("checkout_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Callback godoc
// @Summary      Gateway result callback (public)
// @Description  Always acknowledged. Results that cannot be applied right away are queued for the worker pool.
// @Tags         mpesa
// @Accept       json
// @Produce      json
// @Param        body body dto.MpesaCallbackEnvelope true "STK callback"
// @Success      200 {object} dto.MpesaAck
// @Router       /v1/mpesa/callback [post]
func (h *MpesaHandler) Callback(c *gin.Context) {
	var env dto.MpesaCallbackEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		log.Warn().Err(err).Str("ip", c.ClientIP()).Msg("mpesa callback: unreadable body")
		c.JSON(http.StatusOK, callbackAck)
		return
	}
	cb := env.Body.STKCallback

	// The gateway does not wait on our processing: apply with a bounded,
	// request-independent context.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), callbackApplyTimeout)
	defer cancel()

	outcome, err := h.svc.HandleCallback(ctx, cb)
	if err != nil {
		if apierror.Is(err, apierror.KindValidation) {
			log.Warn().Err(err).Str("checkout_request_id", cb.CheckoutRequestID).Msg("mpesa callback: rejected")
		} else if qErr := h.queue.EnqueueMpesaCallback(ctx, cb); qErr != nil {
			log.Error().Err(qErr).
				Str("checkout_request_id", cb.CheckoutRequestID).
				AnErr("apply_error", err).
				Msg("mpesa callback: could not apply or queue")
		} else {
			log.Warn().Err(err).Str("checkout_request_id", cb.CheckoutRequestID).Msg("mpesa callback: queued for retry")
		}
	} else {
		log.Debug().Str("checkout_request_id", cb.CheckoutRequestID).Str("outcome", outcome).Msg("mpesa callback handled")
	}
	c.JSON(http.StatusOK, callbackAck)
}
