package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/muandane/slugcache/internal/cache"
	"github.com/muandane/slugcache/internal/dispatch"
	"github.com/muandane/slugcache/internal/resolver"
	"github.com/muandane/slugcache/internal/sweep"
)

type StatsSource struct {
	Cache      func() cache.Stats
	Resolver   func() resolver.Stats
	Dispatcher func() dispatch.Stats
	Sweeper    func() sweep.Stats
}

type CacheStats struct {
	Cache         cache.Stats    `json:"cache"`
	Resolver      resolver.Stats `json:"resolver"`
	Events        dispatch.Stats `json:"events"`
	Sweeper       sweep.Stats    `json:"sweeper"`
	TotalRequests uint64         `json:"total_requests"`
	CacheHitRatio float64        `json:"cache_hit_ratio"`
}

type StatsHandler struct {
	src StatsSource
}

func NewStatsHandler(src StatsSource) *StatsHandler {
	return &StatsHandler{src: src}
}

func (h *StatsHandler) ServeHTTP(c *gin.Context) {
	var stats CacheStats
	if h.src.Cache != nil {
		stats.Cache = h.src.Cache()
	}
	if h.src.Resolver != nil {
		stats.Resolver = h.src.Resolver()
	}
	if h.src.Dispatcher != nil {
		stats.Events = h.src.Dispatcher()
	}
	if h.src.Sweeper != nil {
		stats.Sweeper = h.src.Sweeper()
	}

	r := stats.Resolver
	stats.TotalRequests = r.Hits + r.Resolved + r.NotFound + r.Unavailable + r.Rejected
	if lookups := r.Hits + r.Resolved + r.NotFound + r.Unavailable; lookups > 0 {
		stats.CacheHitRatio = float64(r.Hits) / float64(lookups) * 100
	}

	c.JSON(http.StatusOK, stats)
}
