package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	checks map[string]Pinger
}

// NewHandler builds a handler whose readiness probe pings every named
// dependency. Nil pingers are skipped.
func NewHandler(checks map[string]Pinger) *Handler {
	live := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			live[name] = p
		}
	}
	return &Handler{checks: live}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "DOWN",
				"reason": name + " unavailable",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}
