package dispatch

import (
	"context"

	"github.com/codesan-git/blasting-be/internal/ids"
	"github.com/codesan-git/blasting-be/internal/messagelog"
	"github.com/codesan-git/blasting-be/internal/obs"
)

// NewDevSender returns a sender that only logs and fabricates provider
// message ids. It stands in for real transports in development and tests;
// production deployments swap in a provider-backed Sender per channel.
func NewDevSender(channel messagelog.Channel) Sender {
	return SenderFunc(func(ctx context.Context, msg Message) (Result, error) {
		messageID := ids.New()
		obs.Info("dev send", map[string]any{
			"channel":    string(channel),
			"job_id":     msg.JobID,
			"recipient":  msg.RecipientEmail + msg.RecipientPhone,
			"message_id": messageID,
		})
		return Result{MessageID: messageID}, nil
	})
}
