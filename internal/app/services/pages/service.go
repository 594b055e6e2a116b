package pages

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"helpdesk/internal/domain/page"
	"helpdesk/internal/infra/channel/facebook"
)

var ErrCodeRequired = errors.New("pages: oauth code is required")

// Connector is the connect-flow slice of the channel adapter.
type Connector interface {
	ExchangeCodeForPageTokens(ctx context.Context, code string) ([]facebook.PageToken, error)
	SubscribeWebhook(ctx context.Context, pageID, pageAccessToken string) error
	UnsubscribeWebhook(ctx context.Context, pageID, pageAccessToken string) error
}

// Service owns the page connect/disconnect lifecycle.
type Service struct {
	Registry page.Registry
	Channel  Connector
	Logger   *slog.Logger
}

// Connect exchanges the OAuth code, registers every returned page for the
// caller and subscribes the webhook per page. Subscription failures are
// logged, not fatal: the registration still exists and can be resubscribed.
func (s *Service) Connect(ctx context.Context, ownerUserID, code string) ([]*page.Registration, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrCodeRequired
	}
	tokens, err := s.Channel.ExchangeCodeForPageTokens(ctx, code)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	registered := make([]*page.Registration, 0, len(tokens))
	for _, token := range tokens {
		reg, err := page.NewRegistration(page.CreateParams{
			PageID:      token.PageID,
			PageName:    token.PageName,
			AccessToken: token.AccessToken,
			OwnerUserID: ownerUserID,
			ConnectedAt: now,
		})
		if err != nil {
			s.logWarn("page registration rejected", token.PageID, err)
			continue
		}
		if err := s.Registry.Save(ctx, reg); err != nil {
			s.logWarn("page registration save failed", token.PageID, err)
			continue
		}
		if err := s.Channel.SubscribeWebhook(ctx, reg.PageID, reg.AccessToken); err != nil {
			s.logWarn("webhook subscription failed", reg.PageID, err)
		}
		registered = append(registered, reg)
	}
	return registered, nil
}

func (s *Service) List(ctx context.Context, ownerUserID string) ([]*page.Registration, error) {
	return s.Registry.ByOwner(ctx, ownerUserID)
}

// Disconnect unsubscribes the webhook best-effort, then removes the
// registration. Only the owning user may disconnect a page.
func (s *Service) Disconnect(ctx context.Context, ownerUserID, pageID string) error {
	reg, err := s.Registry.Lookup(ctx, pageID)
	if err != nil {
		return err
	}
	if reg.OwnerUserID != ownerUserID {
		return page.ErrNotFound
	}
	if err := s.Channel.UnsubscribeWebhook(ctx, reg.PageID, reg.AccessToken); err != nil {
		s.logWarn("webhook unsubscription failed", reg.PageID, err)
	}
	return s.Registry.Delete(ctx, pageID, ownerUserID)
}

func (s *Service) logWarn(msg, pageID string, err error) {
	if s.Logger != nil {
		s.Logger.Warn(msg, "page_id", pageID, "error", err)
	}
}
