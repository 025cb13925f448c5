package router

import (
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/muandane/slugcache/internal/handlers"
	"github.com/muandane/slugcache/internal/middleware"
)

type Config struct {
	Domain    string
	AdminKey  string
	RateLimit middleware.RateLimitConfig
	// TrustedProxies may report the client address in forwarding headers.
	// Nil trusts none, so rate limiting keys on the connection's peer.
	TrustedProxies []string
}

type Handlers struct {
	Redirect *handlers.RedirectHandler
	Stats    *handlers.StatsHandler
	Admin    *handlers.AdminHandler
}

type Router struct {
	engine *gin.Engine
	logger *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		engine: gin.New(),
		logger: logger,
	}
}

func (r *Router) Setup(cfg Config, h Handlers) (*gin.Engine, error) {
	if err := r.engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	metricsMiddleware := middleware.NewMetricsMiddleware()
	limiter := middleware.NewRateLimiter(cfg.RateLimit)

	r.engine.SetHTMLTemplate(handlers.HomeTemplate)
	r.engine.Use(
		gin.Recovery(),
		middleware.WithLogging(r.logger),
		metricsMiddleware.WithMetrics,
	)

	// Register routes
	r.engine.GET("/", handlers.Home(cfg.Domain))
	r.engine.GET("/health", handlers.HealthCheck)
	r.engine.GET("/metrics", metricsMiddleware.ServeHTTP)
	r.engine.GET("/stats", h.Stats.ServeHTTP)

	admin := r.engine.Group("/admin", middleware.WithAPIKey(cfg.AdminKey, r.logger))
	admin.DELETE("/cache/:slug", h.Admin.Invalidate)
	admin.POST("/sweep", h.Admin.Sweep)

	r.engine.GET("/:slug", limiter.WithRateLimit, h.Redirect.ServeHTTP)
	r.engine.HEAD("/:slug", limiter.WithRateLimit, h.Redirect.ServeHTTP)

	return r.engine, nil
}
