package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Invalidator drops a cached slug.
type Invalidator interface {
	Delete(slug string) bool
}

// SweepTrigger starts an out-of-band sweep.
type SweepTrigger interface {
	Trigger() bool
}

type AdminHandler struct {
	cache   Invalidator
	sweeper SweepTrigger
	logger  *slog.Logger
}

func NewAdminHandler(cache Invalidator, sweeper SweepTrigger, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{cache: cache, sweeper: sweeper, logger: logger}
}

// Invalidate handles DELETE /admin/cache/:slug.
func (h *AdminHandler) Invalidate(c *gin.Context) {
	slug := c.Param("slug")
	removed := h.cache.Delete(slug)

	h.logger.Info("cache entry invalidated", "slug", slug, "removed", removed)
	c.JSON(http.StatusOK, gin.H{"slug": slug, "removed": removed})
}

// Sweep handles POST /admin/sweep.
func (h *AdminHandler) Sweep(c *gin.Context) {
	if !h.sweeper.Trigger() {
		c.JSON(http.StatusConflict, gin.H{"started": false, "message": "sweep already running or scheduler stopped"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"started": true})
}
