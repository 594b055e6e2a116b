package page

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrIDRequired    = errors.New("page: page id is required")
	ErrOwnerRequired = errors.New("page: owner user id is required")
	ErrTokenRequired = errors.New("page: access token is required")
	ErrNotFound      = errors.New("page: not found")
)

// Registration links a business user to a connected channel page and the
// credential used to send on its behalf.
type Registration struct {
	PageID      string
	PageName    string
	AccessToken string
	OwnerUserID string
	ConnectedAt time.Time
}

type CreateParams struct {
	PageID      string
	PageName    string
	AccessToken string
	OwnerUserID string
	ConnectedAt time.Time
}

func NewRegistration(params CreateParams) (*Registration, error) {
	pageID := strings.TrimSpace(params.PageID)
	if pageID == "" {
		return nil, ErrIDRequired
	}
	owner := strings.TrimSpace(params.OwnerUserID)
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	token := strings.TrimSpace(params.AccessToken)
	if token == "" {
		return nil, ErrTokenRequired
	}
	name := strings.TrimSpace(params.PageName)
	if name == "" {
		name = pageID
	}
	connectedAt := params.ConnectedAt
	if connectedAt.IsZero() {
		connectedAt = time.Now()
	}
	return &Registration{
		PageID:      pageID,
		PageName:    name,
		AccessToken: token,
		OwnerUserID: owner,
		ConnectedAt: connectedAt.UTC(),
	}, nil
}

// Registry is the single point of page credential lookup. The channel adapter
// and the outbound dispatcher never reach the store directly.
type Registry interface {
	Lookup(ctx context.Context, pageID string) (*Registration, error)
	ByOwner(ctx context.Context, ownerUserID string) ([]*Registration, error)
	Save(ctx context.Context, reg *Registration) error
	Delete(ctx context.Context, pageID, ownerUserID string) error
}
