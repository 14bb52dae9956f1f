package handler

import (
	"net/http"

	"github.com/manodhiambo/carwash-pos-sub000/internal/service"

	"github.com/gin-gonic/gin"
)

// PricesHandler answers counter price checks. Quotes come from the pricing
// resolver, which caches them in Redis.
type PricesHandler struct{ svc service.PricingService }

func NewPricesHandler(svc service.PricingService) *PricesHandler { return &PricesHandler{svc: svc} }

// Quote godoc
// @Summary      Price of a service for a vehicle type
// @Tags         services
// @Produce      json
// @Security     BearerAuth
// @Param        id           path  string true "Service UUID"
// @Param        vehicle_type query string true "saloon | suv | van | truck | pickup | motorcycle | bus | trailer"
// @Success      200 {object} service.PriceQuote
// @Failure      404 {object} apierror.APIError
// @Router       /v1/services/{id}/price [get]
func (h *PricesHandler) Quote(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	q, err := h.svc.Resolve(c.Request.Context(), id, c.Query("vehicle_type"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}
