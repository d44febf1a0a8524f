// Package webhook ingests asynchronous provider callbacks reporting delivery
// status changes. The HTTP layer always acknowledges receipt — a provider
// that keeps retrying a "failed" webhook would flood the service — so every
// internal error here ends in a log line, never in an error response.
package webhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/codesan-git/blasting-be/internal/messagelog"
	"github.com/codesan-git/blasting-be/internal/obs"
)

// Kind classifies an inbound payload.
type Kind string

const (
	KindStatus  Kind = "status"
	KindInbound Kind = "inbound"
	KindUnknown Kind = "unknown"
)

// Event is the normalised form of a provider payload.
type Event struct {
	Kind      Kind
	MessageID string
	Status    string
	Error     string
	From      string
	Text      string
}

// Classify maps a raw provider payload onto an Event. Shapes observed from
// WhatsApp BSPs: a flat status object, the same object nested under
// "payload" or "data", and inbound replies carrying "from" plus text.
// Anything else is KindUnknown and gets acknowledged without processing.
func Classify(raw []byte) Event {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Event{Kind: KindUnknown}
	}
	candidates := []map[string]any{doc}
	for _, key := range []string{"payload", "data"} {
		if nested, ok := doc[key].(map[string]any); ok {
			candidates = append(candidates, nested)
		}
	}
	for _, c := range candidates {
		messageID := str(c, "message_id")
		status := strings.ToLower(str(c, "status"))
		if messageID != "" && status != "" {
			return Event{
				Kind:      KindStatus,
				MessageID: messageID,
				Status:    status,
				Error:     str(c, "error"),
			}
		}
	}
	for _, c := range candidates {
		from := str(c, "from")
		text := str(c, "message")
		if text == "" {
			text = str(c, "text")
		}
		if from != "" && text != "" {
			return Event{Kind: KindInbound, From: from, Text: text}
		}
	}
	return Event{Kind: KindUnknown}
}

// Processor applies classified events to the delivery tracker.
type Processor struct {
	tracker *messagelog.Tracker
}

// NewProcessor constructs a Processor.
func NewProcessor(tracker *messagelog.Tracker) *Processor {
	return &Processor{tracker: tracker}
}

// Process classifies and handles one payload. It never returns an error to
// the caller; failures are logged and swallowed.
func (p *Processor) Process(ctx context.Context, raw []byte) Event {
	event := Classify(raw)
	obs.WebhookEvent(string(event.Kind))

	switch event.Kind {
	case KindStatus:
		if err := p.tracker.UpdateByMessageID(ctx, event.MessageID, event.Status, event.Error); err != nil {
			obs.Error("webhook status update failed", map[string]any{
				"message_id": event.MessageID,
				"status":     event.Status,
				"err":        err.Error(),
			})
		}
	case KindInbound:
		// Inbound replies are logged only in current scope.
		obs.Info("inbound message received", map[string]any{
			"from": event.From,
			"text": event.Text,
		})
	default:
		obs.Warn("unknown webhook payload", map[string]any{"size": len(raw)})
	}
	return event
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return strings.TrimSpace(v)
}
