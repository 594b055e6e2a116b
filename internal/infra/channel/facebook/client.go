// Package facebook wraps the Graph API surface this service needs: the send
// API on the hot path and the OAuth/subscription calls of the connect flow.
// Calls are single attempts bounded by the client timeout; retry policy
// belongs to the caller.
package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const defaultDialogURL = "https://www.facebook.com/v18.0/dialog/oauth"

// oauthScope lists the page permissions requested during connect.
const oauthScope = "pages_show_list,pages_read_engagement,pages_manage_metadata,pages_read_user_content,pages_messaging"

type Client struct {
	HTTP        *http.Client
	BaseURL     string
	DialogURL   string
	AppID       string
	AppSecret   string
	RedirectURL string
	Logger      *slog.Logger
}

// PageToken is one page the connecting user administers, with its credential.
type PageToken struct {
	PageID      string
	PageName    string
	AccessToken string
}

// LoginURL builds the OAuth dialog URL the dashboard redirects the user to.
func (c *Client) LoginURL() string {
	dialog := c.DialogURL
	if dialog == "" {
		dialog = defaultDialogURL
	}
	query := url.Values{}
	query.Set("client_id", c.AppID)
	query.Set("redirect_uri", c.RedirectURL)
	query.Set("scope", oauthScope)
	query.Set("response_type", "code")
	return dialog + "?" + query.Encode()
}

// SendText delivers one outbound text through the send API. No retry built in.
func (c *Client) SendText(ctx context.Context, pageAccessToken, recipientID, text string) error {
	if err := c.ready(); err != nil {
		return err
	}
	payload := map[string]any{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]string{"text": text},
	}
	endpoint := c.endpoint("/me/messages", url.Values{"access_token": {pageAccessToken}})
	return c.postJSON(ctx, endpoint, payload, nil)
}

// ExchangeCodeForPageTokens turns an OAuth code into the user's page
// credentials: code -> user access token -> page list with page tokens.
func (c *Client) ExchangeCodeForPageTokens(ctx context.Context, code string) ([]PageToken, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	tokenQuery := url.Values{
		"client_id":     {c.AppID},
		"client_secret": {c.AppSecret},
		"redirect_uri":  {c.RedirectURL},
		"code":          {code},
	}
	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.getJSON(ctx, c.endpoint("/oauth/access_token", tokenQuery), &tokenResp); err != nil {
		return nil, fmt.Errorf("facebook: code exchange failed: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.New("facebook: code exchange returned no access token")
	}

	var accountsResp struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	accountsQuery := url.Values{"access_token": {tokenResp.AccessToken}}
	if err := c.getJSON(ctx, c.endpoint("/me/accounts", accountsQuery), &accountsResp); err != nil {
		return nil, fmt.Errorf("facebook: page listing failed: %w", err)
	}
	tokens := make([]PageToken, 0, len(accountsResp.Data))
	for _, page := range accountsResp.Data {
		tokens = append(tokens, PageToken{PageID: page.ID, PageName: page.Name, AccessToken: page.AccessToken})
	}
	return tokens, nil
}

// SubscribeWebhook subscribes the app to message events for one page.
func (c *Client) SubscribeWebhook(ctx context.Context, pageID, pageAccessToken string) error {
	if err := c.ready(); err != nil {
		return err
	}
	endpoint := c.endpoint("/"+pageID+"/subscribed_apps", url.Values{"access_token": {pageAccessToken}})
	payload := map[string]string{"subscribed_fields": "messages,messaging_postbacks"}
	return c.postJSON(ctx, endpoint, payload, nil)
}

// UnsubscribeWebhook removes the page subscription during disconnect.
func (c *Client) UnsubscribeWebhook(ctx context.Context, pageID, pageAccessToken string) error {
	if err := c.ready(); err != nil {
		return err
	}
	endpoint := c.endpoint("/"+pageID+"/subscribed_apps", url.Values{"access_token": {pageAccessToken}})
	request, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(request, nil)
}

func (c *Client) endpoint(path string, query url.Values) string {
	base := strings.TrimSuffix(c.BaseURL, "/")
	if len(query) == 0 {
		return base + path
	}
	return base + path + "?" + query.Encode()
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	return c.do(request, out)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(request, out)
}

func (c *Client) do(request *http.Request, out any) error {
	resp, err := c.HTTP.Do(request)
	if err != nil {
		c.logError("graph api request failed", request.URL.Path, err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("facebook: graph api returned status %d: %s", resp.StatusCode, string(snippet))
		c.logError("graph api returned error", request.URL.Path, err)
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logError("graph api decode failed", request.URL.Path, err)
		return err
	}
	return nil
}

func (c *Client) ready() error {
	if c == nil || c.HTTP == nil {
		return errors.New("facebook: http client not configured")
	}
	if c.BaseURL == "" {
		return errors.New("facebook: graph api base not configured")
	}
	return nil
}

func (c *Client) logError(msg, path string, err error) {
	if c.Logger == nil {
		return
	}
	c.Logger.Error(msg, "path", path, "error", err)
}
