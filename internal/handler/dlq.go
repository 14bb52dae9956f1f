package handler

import (
	"net/http"

	"github.com/manodhiambo/carwash-pos-sub000/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// DLQHandler lets a manager inspect and replay callbacks the worker pool gave
// up on.
type DLQHandler struct{ rdb *redis.Client }

func NewDLQHandler(rdb *redis.Client) *DLQHandler { return &DLQHandler{rdb: rdb} }

// Peek godoc
// @Summary      Dead-lettered gateway callbacks
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Entries to show (default 20)"
// @Success      200 {object} map[string]interface{}
// @Router       /v1/admin/dlq/mpesa-callbacks [get]
func (h *DLQHandler) Peek(c *gin.Context) {
	ctx := c.Request.Context()
	n := queryInt(c, "limit", 20)
	entries, err := worker.PeekDLQ(ctx, h.rdb, worker.QueueMpesaCallback, int64(n))
	if err != nil {
		fail(c, err)
		return
	}
	total, err := worker.DLQLength(ctx, h.rdb, worker.QueueMpesaCallback)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "data": entries})
}

// Replay godoc
// @Summary      Re-queue dead-lettered gateway callbacks
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Entries to replay (default 20)"
// @Success      200 {object} map[string]int
// @Router       /v1/admin/dlq/mpesa-callbacks/replay [post]
func (h *DLQHandler) Replay(c *gin.Context) {
	n := queryInt(c, "limit", 20)
	replayed, err := worker.ReplayDLQ(c.Request.Context(), h.rdb, worker.QueueMpesaCallback, n)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"replayed": replayed})
}
