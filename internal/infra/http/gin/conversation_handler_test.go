package ginserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"helpdesk/internal/app/dto"
	authsvc "helpdesk/internal/app/services/auth"
	"helpdesk/internal/app/services/inbox"
	replysvc "helpdesk/internal/app/services/reply"
	domainpage "helpdesk/internal/domain/page"
	"helpdesk/internal/domain/webhook"
	"helpdesk/internal/infra/security"
	"helpdesk/internal/infra/storage/memory"
)

type stubSender struct{ err error }

func (s stubSender) SendText(context.Context, string, string, string) error { return s.err }

type dashboardFixture struct {
	router        *gin.Engine
	conversations *memory.ConversationRepository
	messages      *memory.MessageRepository
	pages         *memory.PageRegistry
	ingestor      *inbox.Ingestor
	sender        *stubSender
	token         string
	otherToken    string
}

func newDashboardFixture(t *testing.T) *dashboardFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conversations := memory.NewConversationRepository()
	messages := memory.NewMessageRepository()
	pages := memory.NewPageRegistry()
	sender := &stubSender{}

	authService := &authsvc.Service{
		Users:     memory.NewUserRepository(),
		Sessions:  memory.NewSessionStore(),
		Passwords: security.BcryptHasher{},
		Tokens:    security.RandomTokenGenerator{},
	}
	agent, err := authService.Register(context.Background(), authsvc.RegisterParams{
		Name: "Agent", Email: "agent@example.com", Password: "longenough",
	})
	require.NoError(t, err)
	other, err := authService.Register(context.Background(), authsvc.RegisterParams{
		Name: "Other", Email: "other@example.com", Password: "longenough",
	})
	require.NoError(t, err)

	reg, err := domainpage.NewRegistration(domainpage.CreateParams{
		PageID:      "page-1",
		PageName:    "Support Page",
		AccessToken: "page-token",
		OwnerUserID: string(agent.User.ID),
		ConnectedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, pages.Save(context.Background(), reg))

	ingestor := &inbox.Ingestor{
		Resolver: &inbox.Resolver{Conversations: conversations},
		Messages: messages,
	}

	handler := ConversationHandler{
		Conversations: conversations,
		MessageStore:  messages,
		Pages:         pages,
		Replies: &replysvc.Service{
			Conversations: conversations,
			Messages:      messages,
			Pages:         pages,
			Channel:       sender,
		},
	}

	router := gin.New()
	router.Use(AuthMiddleware{Service: authService}.Handle)
	router.GET("/api/messages/conversations", handler.List)
	router.GET("/api/messages/conversations/:id/messages", handler.Messages)
	router.POST("/api/messages/conversations/:id/reply", handler.Reply)

	return &dashboardFixture{
		router:        router,
		conversations: conversations,
		messages:      messages,
		pages:         pages,
		ingestor:      ingestor,
		sender:        sender,
		token:         agent.Token,
		otherToken:    other.Token,
	}
}

func (fx *dashboardFixture) ingestText(t *testing.T, text string, at time.Time) {
	t.Helper()
	stats := fx.ingestor.Ingest(context.Background(), &webhook.Envelope{
		Object: webhook.ObjectPage,
		Entries: []webhook.Entry{{PageID: "page-1", Events: []webhook.Event{{
			Kind:      webhook.KindText,
			PageID:    "page-1",
			SenderID:  "cust-1",
			MessageID: "mid-" + text,
			Text:      text,
			Timestamp: at,
		}}}},
	})
	require.Equal(t, 1, stats.Admitted)
}

func (fx *dashboardFixture) request(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func TestListConversationsRequiresAuth(t *testing.T) {
	fx := newDashboardFixture(t)

	rec := fx.request(t, http.MethodGet, "/api/messages/conversations", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListConversationsWithPreview(t *testing.T) {
	fx := newDashboardFixture(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fx.ingestText(t, "first", base)
	fx.ingestText(t, "latest", base.Add(time.Minute))

	rec := fx.request(t, http.MethodGet, "/api/messages/conversations", fx.token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.ConversationList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Conversations, 1)
	require.Equal(t, "latest", resp.Conversations[0].LastMessage)
	require.Equal(t, "inbound", resp.Conversations[0].LastMessageFrom)
}

func TestListConversationsScopedToOwner(t *testing.T) {
	fx := newDashboardFixture(t)
	fx.ingestText(t, "hello", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	rec := fx.request(t, http.MethodGet, "/api/messages/conversations", fx.otherToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.ConversationList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.Conversations)
}

func TestMessagesForbiddenForNonOwner(t *testing.T) {
	fx := newDashboardFixture(t)
	fx.ingestText(t, "hello", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	convID := fx.firstConversationID(t)

	rec := fx.request(t, http.MethodGet, "/api/messages/conversations/"+convID+"/messages", fx.otherToken, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMessagesAscendingHistory(t *testing.T) {
	fx := newDashboardFixture(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fx.ingestText(t, "one", base)
	fx.ingestText(t, "two", base.Add(time.Minute))
	convID := fx.firstConversationID(t)

	rec := fx.request(t, http.MethodGet, "/api/messages/conversations/"+convID+"/messages", fx.token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.MessageList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	require.Equal(t, "one", resp.Messages[0].Text)
	require.Equal(t, "two", resp.Messages[1].Text)
}

func TestReplyRoundTrip(t *testing.T) {
	fx := newDashboardFixture(t)
	fx.ingestText(t, "hello", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	convID := fx.firstConversationID(t)

	rec := fx.request(t, http.MethodPost, "/api/messages/conversations/"+convID+"/reply",
		fx.token, `{"message": "how can I help?"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var msg dto.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	require.Equal(t, "how can I help?", msg.Text)
	require.Equal(t, "outbound", msg.Direction)
}

func TestReplyErrorMapping(t *testing.T) {
	fx := newDashboardFixture(t)
	fx.ingestText(t, "hello", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	convID := fx.firstConversationID(t)

	rec := fx.request(t, http.MethodPost, "/api/messages/conversations/"+convID+"/reply",
		fx.token, `{"message": "   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.request(t, http.MethodPost, "/api/messages/conversations/missing/reply",
		fx.token, `{"message": "hello"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = fx.request(t, http.MethodPost, "/api/messages/conversations/"+convID+"/reply",
		fx.otherToken, `{"message": "hello"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	fx.sender.err = errors.New("send api: status 500")
	rec = fx.request(t, http.MethodPost, "/api/messages/conversations/"+convID+"/reply",
		fx.token, `{"message": "hello"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func (fx *dashboardFixture) firstConversationID(t *testing.T) string {
	t.Helper()
	convs, err := fx.conversations.ListByPages(context.Background(), []string{"page-1"})
	require.NoError(t, err)
	require.NotEmpty(t, convs)
	return string(convs[0].ID)
}
