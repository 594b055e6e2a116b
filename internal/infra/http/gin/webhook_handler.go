package ginserver

import (
	"io"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"helpdesk/internal/app/services/inbox"
	"helpdesk/internal/domain/webhook"
)

type WebhookHTTP interface {
	Verify(c *gin.Context)
	Receive(c *gin.Context)
}

// WebhookHandler is the public channel-facing surface. Both endpoints are
// unauthenticated: verification is guarded by the pre-shared token, delivery
// is acknowledged fast and unconditionally so the channel never retries into
// a storm.
type WebhookHandler struct {
	Ingestor *inbox.Ingestor
	Logger   *slog.Logger
}

func (h WebhookHandler) Verify(c *gin.Context) {
	challenge, ok := h.Ingestor.Verify(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if !ok {
		c.Status(http.StatusForbidden)
		return
	}
	c.String(http.StatusOK, challenge)
}

func (h WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	env, err := webhook.ParseEnvelope(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if !env.FromPage() {
		c.Status(http.StatusNotFound)
		return
	}
	stats := h.Ingestor.Ingest(c.Request.Context(), env)
	if h.Logger != nil && (stats.Failed > 0 || stats.Duplicates > 0) {
		h.Logger.Info("webhook delivery processed",
			"admitted", stats.Admitted, "duplicates", stats.Duplicates,
			"skipped", stats.Skipped, "failed", stats.Failed)
	}
	c.String(http.StatusOK, "EVENT_RECEIVED")
}

var _ WebhookHTTP = (*WebhookHandler)(nil)
