package daemon

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"dealflow/internal/config"
	"dealflow/internal/platform"
)

// RouterOption customizes the HTTP router.
type RouterOption func(*handlers)

// WithStatus exposes daemon status at /api/status.
func WithStatus(fn func(context.Context) Status) RouterOption {
	return func(h *handlers) {
		h.status = fn
	}
}

// NewRouter builds the daemon HTTP handler.
func NewRouter(cfg *config.Config, svc Services, logger *slog.Logger, opts ...RouterOption) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	if svc.Registry == nil {
		svc.Registry = platform.NewRegistry()
	}
	h := &handlers{cfg: cfg, svc: svc, logger: logger}
	for _, opt := range opts {
		opt(h)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(logger))

	router.GET("/api/health", h.health)
	router.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))

	redirect := router.Group("/go")
	redirect.Use(botFilter(), rateLimit(cfg.API.RedirectRatePerMinute))
	redirect.GET("/:code", h.redirect)

	api := router.Group("/api")
	api.Use(bearerAuth(cfg.API.Token))
	api.GET("/status", h.daemonStatus)
	api.GET("/dashboard", h.dashboard)
	api.GET("/report", h.report)
	api.GET("/stats", h.dailyStats)
	api.POST("/stats/snapshot", h.snapshot)

	api.GET("/queue", h.listQueue)
	api.GET("/queue/stats", h.queueStats)
	api.POST("/tick", h.tick)

	api.GET("/products", h.listProducts)
	api.POST("/products", h.createProduct)
	api.GET("/products/:id", h.getProduct)
	api.PATCH("/products/:id", h.updateProduct)
	api.DELETE("/products/:id", h.withdrawProduct)

	api.GET("/links/:id", h.getLink)
	api.POST("/links/:id/clicks", h.recordClick)
	api.POST("/links/:id/conversions", h.recordConversion)

	return router
}
