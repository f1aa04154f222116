package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/terrycain/backblaze-b2-storage/pkg/storage"
)

// HealthCheck lists the tiers that have a storage configured. It never
// contacts B2, so a slow upstream does not fail liveness probes.
func (h *Handlers) HealthCheck(c *gin.Context) {
	tiers := make([]string, 0, len(h.Storages))
	for _, tier := range storage.Tiers {
		if _, ok := h.Storages[tier]; ok {
			tiers = append(tiers, tier.String())
		}
	}
	if len(tiers) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"tiers": tiers})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

func PingEndpoint(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}
