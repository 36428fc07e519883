package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gotify-desk/deskd/internal/cache"
	"github.com/gotify-desk/deskd/internal/event"
	"github.com/gotify-desk/deskd/internal/settings"
	"github.com/gotify-desk/deskd/internal/stream"
)

// NewRouter builds the local control and diagnostics API. This is the
// surface a desktop UI shell consumes; the engine itself has no UI.
func NewRouter(logger *zap.Logger, sup *stream.Supervisor, c *cache.Cache, store *settings.FileStore, bus *event.Bus) *gin.Engine {
	h := &Handler{
		logger: logger.Named("api"),
		sup:    sup,
		cache:  c,
		store:  store,
		bus:    bus,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger))

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/diagnostics", h.Diagnostics)
		api.GET("/messages", h.ListMessages)
		api.DELETE("/messages/:id", h.DeleteMessage)
		api.POST("/stream/start", h.StartStream)
		api.POST("/stream/stop", h.StopStream)
		api.POST("/stream/restart", h.RestartStream)
		api.GET("/settings", h.GetSettings)
		api.PUT("/settings", h.PutSettings)
		api.POST("/settings/test", h.CheckConnection)
		api.POST("/pause", h.Pause)
		api.POST("/resume", h.Resume)
		api.GET("/events", h.Events)
	}

	return router
}

// requestLogger logs each request with latency and status.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
