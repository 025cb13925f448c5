package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/muandane/slugcache/internal/resolver"
)

// Resolver is the resolution facade the redirect handler serves.
type Resolver interface {
	Resolve(ctx context.Context, slug string) resolver.Result
}

type RedirectHandler struct {
	resolver   Resolver
	logger     *slog.Logger
	retryAfter time.Duration
}

func NewRedirectHandler(r Resolver, logger *slog.Logger) *RedirectHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedirectHandler{
		resolver:   r,
		logger:     logger,
		retryAfter: 5 * time.Second,
	}
}

// ServeHTTP handles GET /:slug.
func (h *RedirectHandler) ServeHTTP(c *gin.Context) {
	slug := c.Param("slug")

	ctx := resolver.WithClient(c.Request.Context(), resolver.Client{
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
	})

	res := h.resolver.Resolve(ctx, slug)
	switch res.Status {
	case resolver.Found:
		c.Header("Cache-Control", "private, max-age=0")
		c.Redirect(http.StatusMovedPermanently, res.Destination)

	case resolver.OriginUnavailable:
		h.logger.Warn("serving unavailable",
			"slug", slug,
			"error", res.Err,
		)
		c.Header("Retry-After", strconv.Itoa(int(h.retryAfter.Seconds())))
		sendError(c, http.StatusServiceUnavailable, "origin_unavailable",
			"short url service temporarily unavailable, try again shortly", slug)

	default:
		sendError(c, http.StatusNotFound, "not_found", "short url not found", slug)
	}
}
