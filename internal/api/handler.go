package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gotify-desk/deskd/internal/cache"
	"github.com/gotify-desk/deskd/internal/event"
	"github.com/gotify-desk/deskd/internal/gotify"
	"github.com/gotify-desk/deskd/internal/settings"
	"github.com/gotify-desk/deskd/internal/stream"
)

// Handler serves the local control API.
type Handler struct {
	logger *zap.Logger
	sup    *stream.Supervisor
	cache  *cache.Cache
	store  *settings.FileStore
	bus    *event.Bus
}

// Health reports process liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Diagnostics returns the current connection/cache health projection.
func (h *Handler) Diagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, h.sup.State().Diagnostics())
}

// ListMessages returns the cached messages, newest first.
func (h *Handler) ListMessages(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Snapshot())
}

// DeleteMessage removes a message from the server (best-effort) and from
// the local cache. The cache removal is idempotent.
func (h *Handler) DeleteMessage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	if stored, readErr := h.store.Read(); readErr == nil && stored.BaseURL != "" {
		client := gotify.NewClient(h.logger, stored.BaseURL, stored.Token)
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()
		if delErr := client.DeleteMessage(ctx, id); delErr != nil {
			h.logger.Warn("server-side message delete failed",
				zap.Int64("id", id),
				zap.Error(delErr))
		}
	}

	c.JSON(http.StatusOK, h.cache.Remove(id))
}

type startStreamRequest struct {
	Token string `json:"token"`
}

// StartStream starts the stream task; a no-op when already running.
func (h *Handler) StartStream(c *gin.Context) {
	var req startStreamRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.sup.Start(req.Token); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// StopStream requests a cooperative stream shutdown.
func (h *Handler) StopStream(c *gin.Context) {
	h.sup.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// RestartStream stops the current session and starts a new one.
func (h *Handler) RestartStream(c *gin.Context) {
	if err := h.sup.Restart(""); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "restarted"})
}

// GetSettings returns current settings without the token itself.
func (h *Handler) GetSettings(c *gin.Context) {
	stored, err := h.store.Read()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings.ViewOf(stored))
}

type putSettingsRequest struct {
	BaseURL         string `json:"base_url"`
	Token           string `json:"token"`
	MinPriority     *int64 `json:"min_priority"`
	CacheLimit      *int   `json:"cache_limit"`
	QuietHoursStart *int   `json:"quiet_hours_start"`
	QuietHoursEnd   *int   `json:"quiet_hours_end"`
}

// PutSettings updates stored settings; an empty token keeps the saved one.
func (h *Handler) PutSettings(c *gin.Context) {
	var req putSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.store.Update(req.BaseURL, req.Token, req.MinPriority, req.CacheLimit,
		req.QuietHoursStart, req.QuietHoursEnd)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stored, _ := h.store.Read()
	c.JSON(http.StatusOK, settings.ViewOf(stored))
}

type checkConnectionRequest struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
}

// CheckConnection probes the server with candidate credentials so the user
// can verify them before saving. An omitted token falls back to the stored
// one.
func (h *Handler) CheckConnection(c *gin.Context) {
	var req checkConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	baseURL, err := settings.NormalizeBaseURL(req.BaseURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		if stored, readErr := h.store.Read(); readErr == nil {
			token = strings.TrimSpace(stored.Token)
		}
	}

	client := gotify.NewClient(h.logger, baseURL, token)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	if err := client.CheckConnection(ctx); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type pauseRequest struct {
	Minutes int `json:"minutes"`
}

// Pause suppresses notifications; zero minutes means indefinitely.
func (h *Handler) Pause(c *gin.Context) {
	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	if req.Minutes <= 0 {
		err = h.store.PauseForever()
	} else {
		err = h.store.Pause(time.Duration(req.Minutes) * time.Minute)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	stored, _ := h.store.Read()
	c.JSON(http.StatusOK, gin.H{"pause_until": stored.PauseUntil, "pause_mode": stored.PauseMode})
}

// Resume clears any active notification pause.
func (h *Handler) Resume(c *gin.Context) {
	if err := h.store.Resume(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}
