package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	appoutbox "helpdesk/internal/app/outbox"
	domainconv "helpdesk/internal/domain/conversation"
	domainpage "helpdesk/internal/domain/page"
)

var (
	// ErrValidation covers empty reply text.
	ErrValidation = errors.New("reply: message text is required")
	// ErrNotFound means the conversation does not exist.
	ErrNotFound = errors.New("reply: conversation not found")
	// ErrForbidden means the caller does not own the page behind the conversation.
	ErrForbidden = errors.New("reply: caller does not own this page")
	// ErrChannelUnavailable wraps send API failures and timeouts; the caller
	// may safely retry the user-facing action.
	ErrChannelUnavailable = errors.New("reply: channel unavailable")
)

const eventMessageSent = "message.sent"

// Sender is the single external call of the hot path. No retry built in.
type Sender interface {
	SendText(ctx context.Context, pageAccessToken, recipientID, text string) error
}

// Service dispatches agent replies: authorize, send, and only on confirmed
// acceptance persist the outbound message and advance the activity marker.
type Service struct {
	Conversations domainconv.Repository
	Messages      domainconv.MessageRepository
	Pages         domainpage.Registry
	Channel       Sender
	SendTimeout   time.Duration
	Outbox        appoutbox.Outbox
	Logger        *slog.Logger
	Now           func() time.Time
}

func (s *Service) Reply(ctx context.Context, conversationID domainconv.ID, callerUserID, text string) (*domainconv.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrValidation
	}

	conv, err := s.Conversations.ByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domainconv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	reg, err := s.Pages.Lookup(ctx, conv.PageID)
	if err != nil {
		// A conversation whose page nobody connected cannot be answered by anyone.
		if errors.Is(err, domainpage.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if reg.OwnerUserID != callerUserID {
		return nil, ErrForbidden
	}

	sendCtx := ctx
	if s.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.SendTimeout)
		defer cancel()
	}
	if err := s.Channel.SendText(sendCtx, reg.AccessToken, conv.CustomerID, text); err != nil {
		if s.Logger != nil {
			s.Logger.Error("send api call failed", "conversation_id", conv.ID, "page_id", conv.PageID, "error", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}

	sentAt := s.now()
	msg, err := domainconv.NewMessage(domainconv.CreateMessageParams{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       callerUserID,
		Text:           text,
		Direction:      domainconv.DirectionOutbound,
		CreatedAt:      sentAt,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Messages.InsertUnique(ctx, msg); err != nil {
		// The text already left through the channel; surface the store failure.
		return nil, err
	}
	if err := s.Conversations.AdvanceLastMessageAt(ctx, conv.ID, sentAt); err != nil && s.Logger != nil {
		s.Logger.Warn("activity marker advance failed", "conversation_id", conv.ID, "error", err)
	}
	s.publish(ctx, conv, msg)
	return msg, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) publish(ctx context.Context, conv *domainconv.Conversation, msg *domainconv.Message) {
	if s.Outbox == nil {
		return
	}
	record, err := appoutbox.NewRecord(eventMessageSent, string(conv.ID), map[string]any{
		"conversation_id": conv.ID,
		"page_id":         conv.PageID,
		"customer_id":     conv.CustomerID,
		"message_id":      msg.ID,
		"sender_id":       msg.SenderID,
		"created_at":      msg.CreatedAt.Format(time.RFC3339Nano),
	}, msg.CreatedAt)
	if err == nil {
		err = s.Outbox.Add(ctx, record)
	}
	if err != nil && s.Logger != nil {
		s.Logger.Warn("outbox append failed", "event", eventMessageSent, "error", err)
	}
}
