package facebook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(server *httptest.Server) *Client {
	return &Client{
		HTTP:        server.Client(),
		BaseURL:     server.URL,
		AppID:       "app-1",
		AppSecret:   "app-secret",
		RedirectURL: "https://helpdesk.example.com/callback",
	}
}

func TestSendText(t *testing.T) {
	var captured struct {
		path  string
		token string
		body  map[string]any
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.token = r.URL.Query().Get("access_token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.body))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server)
	err := client.SendText(context.Background(), "page-token", "cust-1", "hello")
	require.NoError(t, err)

	require.Equal(t, "/me/messages", captured.path)
	require.Equal(t, "page-token", captured.token)
	require.Equal(t, map[string]any{"id": "cust-1"}, captured.body["recipient"])
	require.Equal(t, map[string]any{"text": "hello"}, captured.body["message"])
}

func TestSendTextSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "Invalid OAuth access token"}}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	err := client.SendText(context.Background(), "bad-token", "cust-1", "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 400")
	require.Contains(t, err.Error(), "Invalid OAuth access token")
}

func TestExchangeCodeForPageTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/access_token":
			require.Equal(t, "app-1", r.URL.Query().Get("client_id"))
			require.Equal(t, "oauth-code", r.URL.Query().Get("code"))
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "user-token"})
		case "/me/accounts":
			require.Equal(t, "user-token", r.URL.Query().Get("access_token"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]string{
					{"id": "page-1", "name": "Support Page", "access_token": "page-token-1"},
					{"id": "page-2", "name": "Sales Page", "access_token": "page-token-2"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server)
	tokens, err := client.ExchangeCodeForPageTokens(context.Background(), "oauth-code")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	require.Equal(t, PageToken{PageID: "page-1", PageName: "Support Page", AccessToken: "page-token-1"}, tokens[0])
}

func TestExchangeCodeWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.ExchangeCodeForPageTokens(context.Background(), "oauth-code")
	require.Error(t, err)
}

func TestSubscribeWebhook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/page-1/subscribed_apps", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Contains(t, body["subscribed_fields"], "messages")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server)
	require.NoError(t, client.SubscribeWebhook(context.Background(), "page-1", "page-token"))
}

func TestLoginURL(t *testing.T) {
	client := &Client{AppID: "app-1", RedirectURL: "https://helpdesk.example.com/callback"}

	parsed, err := url.Parse(client.LoginURL())
	require.NoError(t, err)
	require.Equal(t, "www.facebook.com", parsed.Host)
	require.Equal(t, "app-1", parsed.Query().Get("client_id"))
	require.Equal(t, "https://helpdesk.example.com/callback", parsed.Query().Get("redirect_uri"))
	require.Equal(t, "code", parsed.Query().Get("response_type"))
	require.Contains(t, parsed.Query().Get("scope"), "pages_messaging")
}
