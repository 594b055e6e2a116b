package inbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appoutbox "helpdesk/internal/app/outbox"
	domainconv "helpdesk/internal/domain/conversation"
	"helpdesk/internal/domain/webhook"
	"helpdesk/internal/infra/storage/memory"
)

type recordingOutbox struct {
	mu      sync.Mutex
	records []appoutbox.EventRecord
}

func (o *recordingOutbox) Add(_ context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, record)
	return nil
}

func newTestIngestor() (*Ingestor, *memory.ConversationRepository, *memory.MessageRepository, *recordingOutbox) {
	conversations := memory.NewConversationRepository()
	messages := memory.NewMessageRepository()
	outbox := &recordingOutbox{}
	ingestor := &Ingestor{
		Resolver:    &Resolver{Conversations: conversations},
		Messages:    messages,
		Outbox:      outbox,
		VerifyToken: "secret-token",
	}
	return ingestor, conversations, messages, outbox
}

func textEvent(pageID, senderID, mid, text string, at time.Time) webhook.Event {
	return webhook.Event{
		Kind:      webhook.KindText,
		PageID:    pageID,
		SenderID:  senderID,
		MessageID: mid,
		Text:      text,
		Timestamp: at,
	}
}

func envelopeOf(events ...webhook.Event) *webhook.Envelope {
	return &webhook.Envelope{
		Object:  webhook.ObjectPage,
		Entries: []webhook.Entry{{PageID: events[0].PageID, Events: events}},
	}
}

func TestVerify(t *testing.T) {
	ingestor, _, _, _ := newTestIngestor()

	challenge, ok := ingestor.Verify(SubscribeMode, "secret-token", "challenge-123")
	require.True(t, ok)
	require.Equal(t, "challenge-123", challenge)

	_, ok = ingestor.Verify(SubscribeMode, "wrong-token", "challenge-123")
	require.False(t, ok)

	_, ok = ingestor.Verify("unsubscribe", "secret-token", "challenge-123")
	require.False(t, ok)
}

func TestIngestOutOfOrderEventsShareConversation(t *testing.T) {
	ingestor, conversations, _, _ := newTestIngestor()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// The later event arrives first; the earlier one must still land in the
	// same conversation without winding the activity marker back.
	stats := ingestor.Ingest(context.Background(), envelopeOf(
		textEvent("page-1", "cust-1", "mid-2", "second", base.Add(5*time.Minute)),
		textEvent("page-1", "cust-1", "mid-1", "first", base),
	))
	require.Equal(t, 2, stats.Admitted)
	require.Zero(t, stats.Failed)

	convs, err := conversations.ListByPages(context.Background(), []string{"page-1"})
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, base.Add(5*time.Minute), convs[0].LastMessageAt)
}

func TestIngestOpensNewConversationAfterWindow(t *testing.T) {
	ingestor, conversations, messages, _ := newTestIngestor()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	stats := ingestor.Ingest(context.Background(), envelopeOf(
		textEvent("page-1", "cust-1", "mid-1", "hello", base),
	))
	require.Equal(t, 1, stats.Admitted)

	stats = ingestor.Ingest(context.Background(), envelopeOf(
		textEvent("page-1", "cust-1", "mid-2", "hello again", base.Add(25*time.Hour)),
	))
	require.Equal(t, 1, stats.Admitted)

	convs, err := conversations.ListByPages(context.Background(), []string{"page-1"})
	require.NoError(t, err)
	require.Len(t, convs, 2)

	for _, conv := range convs {
		msgs, err := messages.ListByConversation(context.Background(), conv.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
	}
}

func TestIngestWithinWindowReusesConversation(t *testing.T) {
	ingestor, conversations, messages, _ := newTestIngestor()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ingestor.Ingest(context.Background(), envelopeOf(
		textEvent("page-1", "cust-1", "mid-1", "hello", base),
	))
	ingestor.Ingest(context.Background(), envelopeOf(
		textEvent("page-1", "cust-1", "mid-2", "still here", base.Add(23*time.Hour)),
	))

	convs, err := conversations.ListByPages(context.Background(), []string{"page-1"})
	require.NoError(t, err)
	require.Len(t, convs, 1)

	msgs, err := messages.ListByConversation(context.Background(), convs[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "hello", msgs[0].Text)
	require.Equal(t, "still here", msgs[1].Text)
}

func TestIngestDuplicateDeliveryAdmitsOnce(t *testing.T) {
	ingestor, conversations, messages, outbox := newTestIngestor()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	event := textEvent("page-1", "cust-1", "mid-1", "hello", at)

	stats := ingestor.Ingest(context.Background(), envelopeOf(event))
	require.Equal(t, Stats{Admitted: 1}, stats)

	stats = ingestor.Ingest(context.Background(), envelopeOf(event))
	require.Equal(t, Stats{Duplicates: 1}, stats)

	convs, err := conversations.ListByPages(context.Background(), []string{"page-1"})
	require.NoError(t, err)
	require.Len(t, convs, 1)

	msgs, err := messages.ListByConversation(context.Background(), convs[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, outbox.records, 1)
}

func TestIngestDuplicateWithoutDeliveryID(t *testing.T) {
	ingestor, _, messages, _ := newTestIngestor()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	event := textEvent("page-1", "cust-1", "", "hello", at)

	first := ingestor.Ingest(context.Background(), envelopeOf(event))
	second := ingestor.Ingest(context.Background(), envelopeOf(event))
	require.Equal(t, 1, first.Admitted)
	require.Equal(t, 1, second.Duplicates)

	msg, err := messages.LatestByConversation(context.Background(), firstConversationID(t, ingestor))
	require.NoError(t, err)
	require.NotNil(t, msg)
}

func TestIngestDistinctCustomersGetDistinctConversations(t *testing.T) {
	ingestor, conversations, _, _ := newTestIngestor()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ingestor.Ingest(context.Background(), envelopeOf(
		textEvent("page-1", "cust-1", "mid-1", "hello", at),
		textEvent("page-1", "cust-2", "mid-2", "hi there", at),
	))

	convs, err := conversations.ListByPages(context.Background(), []string{"page-1"})
	require.NoError(t, err)
	require.Len(t, convs, 2)
}

func TestIngestAttachmentAndPostback(t *testing.T) {
	ingestor, conversations, messages, _ := newTestIngestor()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	stats := ingestor.Ingest(context.Background(), envelopeOf(
		webhook.Event{
			Kind:      webhook.KindAttachment,
			PageID:    "page-1",
			SenderID:  "cust-1",
			MessageID: "mid-1",
			Text:      "https://cdn.example.com/photo.jpg",
			Timestamp: at,
		},
		webhook.Event{
			Kind:      webhook.KindPostback,
			PageID:    "page-1",
			SenderID:  "cust-1",
			Text:      "GET_STARTED",
			Timestamp: at.Add(time.Minute),
		},
	))
	require.Equal(t, 2, stats.Admitted)

	convs, err := conversations.ListByPages(context.Background(), []string{"page-1"})
	require.NoError(t, err)
	require.Len(t, convs, 1)

	msgs, err := messages.ListByConversation(context.Background(), convs[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "https://cdn.example.com/photo.jpg", msgs[0].Text)
	require.Equal(t, "[postback] GET_STARTED", msgs[1].Text)
}

func TestIngestSkipsEventsWithNothingToStore(t *testing.T) {
	ingestor, _, _, outbox := newTestIngestor()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	stats := ingestor.Ingest(context.Background(), envelopeOf(
		webhook.Event{Kind: webhook.KindUnknown, PageID: "page-1", SenderID: "cust-1", Timestamp: at},
		webhook.Event{Kind: webhook.KindText, PageID: "page-1", Timestamp: at},
		textEvent("page-1", "cust-1", "mid-1", "hello", at),
	))
	require.Equal(t, 1, stats.Admitted)
	require.Equal(t, 2, stats.Skipped)
	require.Len(t, outbox.records, 1)
	require.Equal(t, "message.received", outbox.records[0].Name)
}

func firstConversationID(t *testing.T, ingestor *Ingestor) domainconv.ID {
	t.Helper()
	convs, err := ingestor.Resolver.Conversations.ListByPages(context.Background(), []string{"page-1"})
	require.NoError(t, err)
	require.NotEmpty(t, convs)
	return convs[0].ID
}
