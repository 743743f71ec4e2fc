package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/subrite/subkey/internal/metrics"
	"github.com/subrite/subkey/internal/webhooks"
)

// maxWebhookBody bounds webhook request bodies.
const maxWebhookBody = 1 << 20 // 1 MiB

// WebhooksHandler handles inbound payment-provider webhook deliveries.
type WebhooksHandler struct {
	verifier  *webhooks.Verifier
	processor *webhooks.Processor
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewWebhooksHandler creates a new WebhooksHandler.
func NewWebhooksHandler(verifier *webhooks.Verifier, processor *webhooks.Processor, m *metrics.Metrics, logger zerolog.Logger) *WebhooksHandler {
	return &WebhooksHandler{
		verifier:  verifier,
		processor: processor,
		metrics:   m,
		logger:    logger.With().Str("component", "webhooks_handler").Logger(),
	}
}

// RegisterRoutes registers webhook routes on the given router group.
func (h *WebhooksHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/paddle", h.Receive)
}

// Receive authenticates and processes a provider event delivery.
// POST /webhooks/paddle
//
// The body is consumed as raw bytes because the signature covers the exact
// byte stream. A 5xx answer makes the provider redeliver; the processor's
// idempotency checks make redelivery safe.
func (h *WebhooksHandler) Receive(c *gin.Context) {
	rawBody, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	signature := c.GetHeader(webhooks.SignatureHeader)
	if signature == "" {
		h.metrics.ObserveWebhookEvent("unknown", "missing_signature")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing signature"})
		return
	}

	if err := h.verifier.Verify(signature, rawBody); err != nil {
		h.logger.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("webhook signature rejected")
		h.metrics.ObserveWebhookEvent("unknown", "invalid_signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	result, err := h.processor.Process(c.Request.Context(), rawBody)
	if err != nil {
		h.logger.Error().Err(err).Msg("webhook processing failed")
		h.metrics.ObserveWebhookEvent("unknown", "failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	h.metrics.ObserveWebhookEvent(result.EventType, "processed")

	switch {
	case result.Ignored:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Event ignored"})
	case result.AlreadyProcessed:
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"message":     "Already processed",
			"license_key": result.LicenseKey,
		})
	case result.LicenseKey != "":
		c.JSON(http.StatusOK, gin.H{"success": true, "license_key": result.LicenseKey})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
