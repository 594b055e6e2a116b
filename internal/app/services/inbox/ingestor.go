package inbox

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	appoutbox "helpdesk/internal/app/outbox"
	domainconv "helpdesk/internal/domain/conversation"
	"helpdesk/internal/domain/webhook"
)

// SubscribeMode is the handshake mode value the channel sends on verification.
const SubscribeMode = "subscribe"

const eventMessageReceived = "message.received"

// Stats summarizes one delivery batch. Failed events were logged and skipped;
// they never abort their siblings.
type Stats struct {
	Admitted   int
	Duplicates int
	Skipped    int
	Failed     int
}

// Ingestor admits inbound webhook events into the message store.
type Ingestor struct {
	Resolver *Resolver
	Messages domainconv.MessageRepository
	Outbox   appoutbox.Outbox
	Logger   *slog.Logger

	// VerifyToken is the pre-shared handshake secret.
	VerifyToken string
}

// Verify handles the channel handshake: the challenge is echoed only when the
// mode is subscribe and the token matches the pre-shared secret.
func (i *Ingestor) Verify(mode, token, challenge string) (string, bool) {
	if mode != SubscribeMode {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(i.VerifyToken)) != 1 {
		return "", false
	}
	return challenge, true
}

// Ingest processes every event of a delivery independently. Internal failures
// are counted and logged, never returned: the transport is acknowledged
// regardless, and retry storms are left to the dedupe key to absorb.
func (i *Ingestor) Ingest(ctx context.Context, env *webhook.Envelope) Stats {
	var stats Stats
	if env == nil {
		return stats
	}
	for _, entry := range env.Entries {
		for _, event := range entry.Events {
			switch err := i.ingestEvent(ctx, event); {
			case err == nil:
				stats.Admitted++
			case errors.Is(err, errSkippable):
				stats.Skipped++
			case errors.Is(err, domainconv.ErrDuplicateMessage):
				stats.Duplicates++
			default:
				stats.Failed++
				if i.Logger != nil {
					i.Logger.Error("webhook event rejected",
						"page_id", event.PageID, "sender_id", event.SenderID, "error", err)
				}
			}
		}
	}
	return stats
}

var errSkippable = errors.New("inbox: event carries nothing to store")

func (i *Ingestor) ingestEvent(ctx context.Context, event webhook.Event) error {
	if event.PageID == "" || event.SenderID == "" {
		return errSkippable
	}
	text := storableText(event)
	if text == "" {
		return errSkippable
	}

	conv, err := i.Resolver.Resolve(ctx, event.PageID, event.SenderID, event.Timestamp)
	if err != nil {
		return fmt.Errorf("resolve conversation: %w", err)
	}

	msg, err := domainconv.NewMessage(domainconv.CreateMessageParams{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       event.SenderID,
		Text:           text,
		Direction:      domainconv.DirectionInbound,
		DedupeKey:      dedupeKey(event, text),
		CreatedAt:      event.Timestamp,
	})
	if err != nil {
		return err
	}
	if err := i.Messages.InsertUnique(ctx, msg); err != nil {
		return err
	}
	i.publish(ctx, conv, msg)
	return nil
}

// storableText maps the tagged variant to the text persisted for agents:
// plain text as-is, attachments by URL, postbacks by their payload.
func storableText(event webhook.Event) string {
	switch event.Kind {
	case webhook.KindText, webhook.KindAttachment:
		return event.Text
	case webhook.KindPostback:
		if event.Text == "" {
			return ""
		}
		return "[postback] " + event.Text
	default:
		return ""
	}
}

// dedupeKey prefers the channel's own delivery id; without one it derives a
// stable digest so redelivery of the identical event is indistinguishable.
func dedupeKey(event webhook.Event, text string) string {
	if event.MessageID != "" {
		return event.MessageID
	}
	sum := sha256.Sum256([]byte(
		event.PageID + "|" + event.SenderID + "|" +
			strconv.FormatInt(event.Timestamp.UnixMilli(), 10) + "|" + text,
	))
	return hex.EncodeToString(sum[:])
}

func (i *Ingestor) publish(ctx context.Context, conv *domainconv.Conversation, msg *domainconv.Message) {
	if i.Outbox == nil {
		return
	}
	record, err := appoutbox.NewRecord(eventMessageReceived, string(conv.ID), map[string]any{
		"conversation_id": conv.ID,
		"page_id":         conv.PageID,
		"customer_id":     conv.CustomerID,
		"message_id":      msg.ID,
		"created_at":      msg.CreatedAt.Format(time.RFC3339Nano),
	}, msg.CreatedAt)
	if err == nil {
		err = i.Outbox.Add(ctx, record)
	}
	if err != nil && i.Logger != nil {
		i.Logger.Warn("outbox append failed", "event", eventMessageReceived, "error", err)
	}
}
