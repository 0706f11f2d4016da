package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	pinger Pinger
	mirror string
}

// NewHealthHandler takes the mirror backend's pinger; a nil pinger means no
// mirror is configured and readiness depends on nothing local.
func NewHealthHandler(pinger Pinger, mirror string) *HealthHandler {
	return &HealthHandler{pinger: pinger, mirror: mirror}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "loangraph-reconciler",
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	if h.pinger == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready", "mirror": h.mirror})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"mirror": h.mirror,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"mirror": h.mirror,
	})
}
