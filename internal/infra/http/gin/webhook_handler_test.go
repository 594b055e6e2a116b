package ginserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"helpdesk/internal/app/services/inbox"
	"helpdesk/internal/infra/storage/memory"
)

func newWebhookRouter() (*gin.Engine, *memory.ConversationRepository) {
	gin.SetMode(gin.TestMode)
	conversations := memory.NewConversationRepository()
	ingestor := &inbox.Ingestor{
		Resolver:    &inbox.Resolver{Conversations: conversations},
		Messages:    memory.NewMessageRepository(),
		VerifyToken: "secret-token",
	}
	handler := WebhookHandler{Ingestor: ingestor}
	router := gin.New()
	router.GET("/webhook", handler.Verify)
	router.POST("/webhook", handler.Receive)
	return router, conversations
}

func TestWebhookVerificationEchoesChallenge(t *testing.T) {
	router, _ := newWebhookRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "12345", rec.Body.String())
}

func TestWebhookVerificationRejectsBadToken(t *testing.T) {
	router, _ := newWebhookRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotContains(t, rec.Body.String(), "12345")
}

func TestWebhookDeliveryAcknowledged(t *testing.T) {
	router, conversations := newWebhookRouter()

	body := `{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"messaging": [{
				"sender": {"id": "cust-1"},
				"timestamp": 1748779200000,
				"message": {"mid": "mid-1", "text": "hello"}
			}]
		}]
	}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "EVENT_RECEIVED", rec.Body.String())

	convs, err := conversations.ListByPages(req.Context(), []string{"page-1"})
	require.NoError(t, err)
	require.Len(t, convs, 1)
}

func TestWebhookDeliveryNonPageObject(t *testing.T) {
	router, _ := newWebhookRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook",
		strings.NewReader(`{"object": "instagram", "entry": []}`))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookDeliveryMalformedBody(t *testing.T) {
	router, _ := newWebhookRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"object":`))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookDeliveryAcknowledgedDespiteBadEvents(t *testing.T) {
	router, _ := newWebhookRouter()

	// One event lacks a sender; the delivery is still acknowledged so the
	// channel does not retry the whole batch.
	body := `{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"messaging": [
				{"timestamp": 1748779200000, "message": {"mid": "mid-1", "text": "orphan"}},
				{"sender": {"id": "cust-1"}, "timestamp": 1748779201000, "message": {"mid": "mid-2", "text": "hello"}}
			]
		}]
	}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "EVENT_RECEIVED", rec.Body.String())
}
