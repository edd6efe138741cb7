package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/chat-relay/internal/api/dto"
	"github.com/cuongbtq/chat-relay/internal/domain"
)

// Register handles POST /api/v1/webhooks
func (h *WebhookHandler) Register(c *gin.Context) {
	var req dto.RegisterWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid webhook registration", slog.String("error", err.Error()))
		respondFail(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	now := time.Now().UTC()
	sub := domain.Subscription{
		ID:        uuid.New().String(),
		URL:       req.URL,
		Secret:    req.Secret,
		Events:    req.Events,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.subscriptions.SaveSubscription(c.Request.Context(), sub); err != nil {
		respondError(c, h.logger, "Failed to register webhook", err)
		return
	}

	h.logger.Info("Webhook registered",
		slog.String("subscription_id", sub.ID),
		slog.String("url", sub.URL),
		slog.Any("events", sub.Events),
		slog.String("caller", c.GetString(CallerKey)),
	)

	respondOK(c, http.StatusCreated, dto.NewWebhookDTO(sub))
}

// List handles GET /api/v1/webhooks
func (h *WebhookHandler) List(c *gin.Context) {
	subs, err := h.subscriptions.ListActiveSubscriptions(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Failed to list webhooks", err)
		return
	}

	out := make([]dto.WebhookDTO, len(subs))
	for i, s := range subs {
		out[i] = dto.NewWebhookDTO(s)
	}
	respondOK(c, http.StatusOK, out)
}

// Deactivate handles DELETE /api/v1/webhooks/:id
// Subscriptions are soft-deleted by clearing is_active.
func (h *WebhookHandler) Deactivate(c *gin.Context) {
	id := c.Param("id")
	if err := h.subscriptions.DeactivateSubscription(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "Failed to deactivate webhook", err)
		return
	}

	h.logger.Info("Webhook deactivated",
		slog.String("subscription_id", id),
		slog.String("caller", c.GetString(CallerKey)),
	)
	c.Status(http.StatusNoContent)
}

// Test handles POST /api/v1/webhooks/:id/test
// Sends a webhook.test event to one active subscription and reports the outcome.
func (h *WebhookHandler) Test(c *gin.Context) {
	var req dto.TestWebhookRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondFail(c, http.StatusBadRequest, "Invalid request body", err.Error())
			return
		}
	}

	sub, err := h.subscriptions.GetSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Failed to load webhook", err)
		return
	}
	if !sub.IsActive {
		respondFail(c, http.StatusConflict, "webhook is inactive", nil)
		return
	}

	var payload any = gin.H{"message": "test event from chat-relay"}
	if len(req.Data) > 0 {
		payload = req.Data
	}

	resp := dto.TestWebhookResponse{Delivered: true}
	if err := h.deliverer.Deliver(c.Request.Context(), sub, domain.EventWebhookTest, payload); err != nil {
		h.logger.Warn("Webhook test delivery failed",
			slog.String("subscription_id", sub.ID),
			slog.Any("error", err),
		)
		resp = dto.TestWebhookResponse{Delivered: false, Error: err.Error()}
	}
	respondOK(c, http.StatusOK, resp)
}
