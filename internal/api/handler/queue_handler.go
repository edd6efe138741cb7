package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/chat-relay/internal/api/dto"
	"github.com/cuongbtq/chat-relay/internal/domain"
)

// Status handles GET /api/v1/queue/status
func (h *QueueHandler) Status(c *gin.Context) {
	respondOK(c, http.StatusOK, h.queue.Status(c.Request.Context()))
}

// Pause handles POST /api/v1/queue/pause
func (h *QueueHandler) Pause(c *gin.Context) {
	h.queue.Pause()
	h.logger.Info("Queue paused", slog.String("caller", c.GetString(CallerKey)))
	respondOK(c, http.StatusOK, dto.QueueStateResponse{Paused: h.queue.IsPaused()})
}

// Resume handles POST /api/v1/queue/resume
func (h *QueueHandler) Resume(c *gin.Context) {
	h.queue.Resume()
	h.logger.Info("Queue resumed", slog.String("caller", c.GetString(CallerKey)))
	respondOK(c, http.StatusOK, dto.QueueStateResponse{Paused: h.queue.IsPaused()})
}

// Cleanup handles POST /api/v1/queue/cleanup
// Body: {"older_than": "24h", "status": "completed"}
func (h *QueueHandler) Cleanup(c *gin.Context) {
	var req dto.CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFail(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	olderThan, err := time.ParseDuration(req.OlderThan)
	if err != nil {
		respondFail(c, http.StatusBadRequest, "older_than must be a duration such as 24h", err.Error())
		return
	}

	status, err := domain.ParseJobStatus(req.Status)
	if err != nil {
		respondFail(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	removed, err := h.queue.Cleanup(c.Request.Context(), olderThan, status)
	if err != nil {
		respondError(c, h.logger, "Failed to clean up jobs", err)
		return
	}

	respondOK(c, http.StatusOK, dto.CleanupResponse{Removed: removed})
}
