package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"stepwells-backend/internal/service"
	"stepwells-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookDeduper short-circuits redelivered webhook events. The
// conditional donation update remains the source of truth; this is a
// fast path only. Unmark releases the event id again so a delivery
// whose handling failed stays retryable.
type WebhookDeduper interface {
	MarkWebhookEvent(ctx context.Context, eventID string) (first bool, err error)
	UnmarkWebhookEvent(ctx context.Context, eventID string) error
}

// webhookPayload mirrors the gateway's event envelope.
type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// paymentWebhook handles the gateway's server-to-server confirmation.
// The signature covers the raw body, so the body is verified before
// any parsing.
func (h *Handler) paymentWebhook(c *gin.Context) {
	logger := util.GetLogger()

	signature := c.GetHeader("X-Razorpay-Signature")
	if signature == "" {
		c.String(http.StatusBadRequest, "Missing signature")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "Failed to read body")
		return
	}

	if !h.gateway.VerifyWebhookSignature(body, signature) {
		util.SignatureFailuresTotal.WithLabelValues(service.SourceWebhook).Inc()
		logger.Warn("Webhook signature verification failed")
		c.String(http.StatusUnauthorized, "Invalid signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		// A signed but unparseable body is acknowledged so the gateway
		// stops retrying a payload this version cannot handle.
		logger.Warn("Failed to parse webhook payload", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	eventID := c.GetHeader("X-Razorpay-Event-Id")
	marked := false
	if eventID != "" && h.dedupe != nil {
		first, err := h.dedupe.MarkWebhookEvent(c.Request.Context(), eventID)
		if err != nil {
			logger.Warn("Webhook dedupe check failed", zap.Error(err))
		} else if !first {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		} else {
			marked = true
		}
	}

	event := &service.WebhookEvent{
		EventID:        eventID,
		EventType:      payload.Event,
		GatewayOrderID: payload.Payload.Payment.Entity.OrderID,
		PaymentID:      payload.Payload.Payment.Entity.ID,
	}

	if err := h.donations.HandleWebhookEvent(c.Request.Context(), event); err != nil {
		logger.Error("Webhook handling failed", zap.Error(err))
		// Release the event id so the gateway's redelivery is not
		// swallowed by the dedupe fast path.
		if marked {
			if unmarkErr := h.dedupe.UnmarkWebhookEvent(c.Request.Context(), eventID); unmarkErr != nil {
				logger.Warn("Failed to release webhook event id", zap.Error(unmarkErr))
			}
		}
		c.String(http.StatusInternalServerError, "Internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
