// Package messagelog holds the per-message delivery state machine and the
// queryable log of every dispatch attempt. It is the authoritative record of
// blast outcomes; the queue's finished-job retention is advisory only.
package messagelog

import (
	"errors"
	"time"
)

// Status is the persisted delivery state.
// Transitions: queued -> processing -> {sent | failed}. A failed row is
// terminal; provider confirmations arriving later never reopen it.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a persistable status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusSent, StatusFailed:
		return true
	}
	return false
}

// Channel is the delivery medium.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelPush     Channel = "push"
)

// AllChannels is the fixed allow-list validated at the blast boundary.
var AllChannels = []Channel{ChannelEmail, ChannelWhatsApp, ChannelSMS, ChannelPush}

// ValidChannel reports whether c is on the allow-list.
func ValidChannel(c Channel) bool {
	for _, known := range AllChannels {
		if known == c {
			return true
		}
	}
	return false
}

var (
	ErrNotFound      = errors.New("messagelog: not found")
	ErrInvalidStatus = errors.New("messagelog: invalid status")
)

// Jakarta is the canonical timezone for stored timestamps and calendar-day
// bucketing. One consistent zone avoids off-by-one-day aggregation.
var Jakarta *time.Location

func init() {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		loc = time.FixedZone("WIB", 7*60*60)
	}
	Jakarta = loc
}

// MessageLog records one logical message through its delivery lifecycle.
// It is keyed two ways: JobID (queue-assigned, unique per enqueue) and
// MessageID (provider-assigned, set once known).
type MessageLog struct {
	ID             string    `json:"id"`
	JobID          string    `json:"job_id"`
	Channel        Channel   `json:"channel"`
	RecipientEmail string    `json:"recipient_email,omitempty"`
	RecipientPhone string    `json:"recipient_phone,omitempty"`
	RecipientName  string    `json:"recipient_name,omitempty"`
	TemplateID     string    `json:"template_id,omitempty"`
	TemplateName   string    `json:"template_name,omitempty"`
	Subject        string    `json:"subject,omitempty"`
	Status         Status    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	Attempts       int       `json:"attempts"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	CreatedBy      string    `json:"created_by,omitempty"`
}

// Update is a partial mutation applied by job id or message id. Nil fields
// are left untouched.
type Update struct {
	Status       *Status
	ErrorMessage *string
	MessageID    *string
	Attempts     *int
}

// Filter narrows Query results. Zero values mean "any".
type Filter struct {
	Status         Status
	Channel        Channel
	RecipientEmail string
	Limit          int
	Offset         int
}

// StatBucket is one (channel, status) aggregation row.
type StatBucket struct {
	Channel Channel `json:"channel"`
	Status  Status  `json:"status"`
	Count   int64   `json:"count"`
}

// DateStatBucket is one (date, channel, status) aggregation row; Date is a
// calendar day in the Jakarta timezone formatted as 2006-01-02.
type DateStatBucket struct {
	Date    string  `json:"date"`
	Channel Channel `json:"channel"`
	Status  Status  `json:"status"`
	Count   int64   `json:"count"`
}

// APILog is one append-only HTTP request record.
type APILog struct {
	ID        string    `json:"id"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	Duration  int64     `json:"duration_ms"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SystemLog is one append-only internal event record.
type SystemLog struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	ActorID   string    `json:"actor_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
