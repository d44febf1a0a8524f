// Package dispatch runs the per-channel worker pools that pull jobs from the
// queue and hand them to the channel transports.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/codesan-git/blasting-be/internal/messagelog"
	"github.com/codesan-git/blasting-be/internal/queue"
)

// Message is the rendered payload a sender receives. Subject applies to
// email; RecipientPhone to whatsapp/sms.
type Message struct {
	JobID          string              `json:"job_id"`
	Channel        messagelog.Channel  `json:"channel"`
	RecipientEmail string              `json:"recipient_email,omitempty"`
	RecipientPhone string              `json:"recipient_phone,omitempty"`
	RecipientName  string              `json:"recipient_name,omitempty"`
	Subject        string              `json:"subject,omitempty"`
	Body           string              `json:"body"`
	From           string              `json:"from,omitempty"`
}

// Result is what a transport reports back on success.
type Result struct {
	// MessageID is the provider-assigned identifier, if the transport
	// returns one. Empty is valid: not all providers report ids.
	MessageID string
}

// Sender is the only contract the workers know about a transport. SMTP and
// WhatsApp BSP specifics live behind it.
type Sender interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) (Result, error)

func (f SenderFunc) Send(ctx context.Context, msg Message) (Result, error) {
	return f(ctx, msg)
}

// EncodeMessage serialises a message into a queue job payload.
func EncodeMessage(msg Message) (queue.Job, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return queue.Job{}, err
	}
	return queue.Job{
		ID:      msg.JobID,
		Channel: string(msg.Channel),
		Payload: payload,
	}, nil
}

// DecodeMessage deserialises a queue job payload.
func DecodeMessage(job queue.Job) (Message, error) {
	var msg Message
	if err := json.Unmarshal(job.Payload, &msg); err != nil {
		return Message{}, err
	}
	msg.JobID = job.ID
	return msg, nil
}
