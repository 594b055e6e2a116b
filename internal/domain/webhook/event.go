// Package webhook models the channel's delivery payload as a tagged variant
// parsed and validated at the ingestion boundary, so nothing downstream ever
// touches the raw duck-typed JSON.
package webhook

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ObjectPage is the only top-level object kind this service subscribes to.
const ObjectPage = "page"

var ErrInvalidPayload = errors.New("webhook: invalid payload")

type Kind string

const (
	KindText       Kind = "text"
	KindAttachment Kind = "attachment"
	KindPostback   Kind = "postback"
	KindUnknown    Kind = "unknown"
)

// Event is one messaging event, already attributed to its page.
type Event struct {
	Kind      Kind
	PageID    string
	SenderID  string
	MessageID string // channel-assigned delivery id, may be empty
	Text      string // message text, attachment URL or postback payload
	Timestamp time.Time
}

type Entry struct {
	PageID string
	Events []Event
}

type Envelope struct {
	Object  string
	Entries []Entry
}

// FromPage reports whether the delivery belongs to a page subscription.
func (e *Envelope) FromPage() bool {
	return e.Object == ObjectPage
}

type rawEnvelope struct {
	Object string     `json:"object"`
	Entry  []rawEntry `json:"entry"`
}

type rawEntry struct {
	ID        string     `json:"id"`
	Messaging []rawEvent `json:"messaging"`
}

type rawEvent struct {
	Sender    rawParty     `json:"sender"`
	Recipient rawParty     `json:"recipient"`
	Timestamp int64        `json:"timestamp"`
	Message   *rawMessage  `json:"message"`
	Postback  *rawPostback `json:"postback"`
}

type rawParty struct {
	ID string `json:"id"`
}

type rawMessage struct {
	MID         string          `json:"mid"`
	Text        string          `json:"text"`
	Attachments []rawAttachment `json:"attachments"`
}

type rawAttachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

type rawPostback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// ParseEnvelope decodes a delivery body. Malformed JSON is rejected; events
// the parser cannot classify are kept as KindUnknown so the caller can skip
// them without failing their siblings.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	env := &Envelope{Object: raw.Object}
	for _, entry := range raw.Entry {
		parsed := Entry{PageID: strings.TrimSpace(entry.ID)}
		for _, ev := range entry.Messaging {
			parsed.Events = append(parsed.Events, classify(ev, parsed.PageID))
		}
		env.Entries = append(env.Entries, parsed)
	}
	return env, nil
}

func classify(ev rawEvent, pageID string) Event {
	out := Event{
		Kind:      KindUnknown,
		PageID:    pageID,
		SenderID:  strings.TrimSpace(ev.Sender.ID),
		Timestamp: time.UnixMilli(ev.Timestamp).UTC(),
	}
	switch {
	case ev.Message != nil && strings.TrimSpace(ev.Message.Text) != "":
		out.Kind = KindText
		out.MessageID = ev.Message.MID
		out.Text = strings.TrimSpace(ev.Message.Text)
	case ev.Message != nil && len(ev.Message.Attachments) > 0:
		out.Kind = KindAttachment
		out.MessageID = ev.Message.MID
		out.Text = ev.Message.Attachments[0].Payload.URL
	case ev.Postback != nil:
		out.Kind = KindPostback
		out.Text = ev.Postback.Payload
	}
	return out
}
