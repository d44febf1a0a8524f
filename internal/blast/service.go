// Package blast validates bulk send requests and fans them out into
// individual channel jobs. It returns job ids synchronously and never waits
// for delivery.
package blast

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codesan-git/blasting-be/internal/dispatch"
	"github.com/codesan-git/blasting-be/internal/ids"
	"github.com/codesan-git/blasting-be/internal/messagelog"
	"github.com/codesan-git/blasting-be/internal/obs"
	"github.com/codesan-git/blasting-be/internal/queue"
)

// ErrInvalidRequest wraps every synchronous validation failure. Invalid
// requests are rejected before anything is enqueued.
var ErrInvalidRequest = errors.New("blast: invalid request")

// Recipient is one destination of a blast. Variables override the request's
// global variables during rendering; "name" is always bound.
type Recipient struct {
	Email     string            `json:"email,omitempty"`
	Phone     string            `json:"phone,omitempty"`
	Name      string            `json:"name"`
	Variables map[string]string `json:"variables,omitempty"`
}

// Request is a bulk send: every recipient is targeted on every channel.
type Request struct {
	Recipients      []Recipient          `json:"recipients"`
	Channels        []messagelog.Channel `json:"channels"`
	TemplateID      string               `json:"template_id"`
	GlobalVariables map[string]string    `json:"global_variables,omitempty"`
	From            string               `json:"from,omitempty"`
}

// Response carries the queue-assigned job ids, in fan-out order.
type Response struct {
	JobIDs []string `json:"job_ids"`
}

// Service performs the role-gated blast fan-out.
type Service struct {
	queue     queue.Queue
	logs      messagelog.Store
	templates TemplateRegistry
}

// NewService constructs a blast Service.
func NewService(q queue.Queue, logs messagelog.Store, templates TemplateRegistry) (*Service, error) {
	if q == nil {
		return nil, errors.New("queue is required")
	}
	if logs == nil {
		return nil, errors.New("message log store is required")
	}
	if templates == nil {
		return nil, errors.New("template registry is required")
	}
	return &Service{queue: q, logs: logs, templates: templates}, nil
}

// Send validates the request, renders the template per recipient, creates
// message log rows (status=queued) and enqueues one job per
// recipient-channel pair. actor is recorded as created_by.
func (s *Service) Send(ctx context.Context, req Request, actor string) (Response, error) {
	if err := validate(req); err != nil {
		return Response{}, err
	}
	tpl, err := s.templates.Find(ctx, req.TemplateID)
	if err != nil {
		return Response{}, err
	}

	var (
		rows []*messagelog.MessageLog
		jobs []queue.Job
	)
	for _, recipient := range req.Recipients {
		vars := mergeVars(req.GlobalVariables, recipient.Variables, recipient.Name)
		body := Render(tpl.Body, vars)
		subject := Render(tpl.Subject, vars)

		for _, channel := range req.Channels {
			jobID := ids.New()
			msg := dispatch.Message{
				JobID:          jobID,
				Channel:        channel,
				RecipientEmail: recipient.Email,
				RecipientPhone: recipient.Phone,
				RecipientName:  recipient.Name,
				Body:           body,
				From:           req.From,
			}
			row := &messagelog.MessageLog{
				JobID:          jobID,
				Channel:        channel,
				RecipientEmail: recipient.Email,
				RecipientPhone: recipient.Phone,
				RecipientName:  recipient.Name,
				TemplateID:     tpl.ID,
				TemplateName:   tpl.Name,
				Status:         messagelog.StatusQueued,
				CreatedBy:      actor,
			}
			if channel == messagelog.ChannelEmail {
				msg.Subject = subject
				row.Subject = subject
			}
			job, err := dispatch.EncodeMessage(msg)
			if err != nil {
				return Response{}, err
			}
			job.MaxAttempts = queue.DefaultMaxAttempts
			rows = append(rows, row)
			jobs = append(jobs, job)
		}
	}

	// Log rows first so a fast worker always finds its row.
	if err := s.logs.CreateBulk(ctx, rows); err != nil {
		return Response{}, err
	}
	jobIDs, err := s.queue.EnqueueBulk(ctx, jobs)
	if err != nil {
		// The rows exist but their jobs never reached the queue, so no
		// worker will ever touch them. Close them out instead of leaving
		// them queued forever.
		failed := messagelog.StatusFailed
		reason := "enqueue failed: " + err.Error()
		for _, row := range rows {
			upd := messagelog.Update{Status: &failed, ErrorMessage: &reason}
			if uerr := s.logs.UpdateByJobID(ctx, row.JobID, upd); uerr != nil {
				obs.Warn("failed to close out orphaned log row", map[string]any{
					"job_id": row.JobID,
					"err":    uerr.Error(),
				})
			}
		}
		return Response{}, err
	}
	return Response{JobIDs: jobIDs}, nil
}

func validate(req Request) error {
	if len(req.Recipients) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrInvalidRequest)
	}
	if len(req.Channels) == 0 {
		return fmt.Errorf("%w: at least one channel is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.TemplateID) == "" {
		return fmt.Errorf("%w: template_id is required", ErrInvalidRequest)
	}
	for _, channel := range req.Channels {
		if !messagelog.ValidChannel(channel) {
			return fmt.Errorf("%w: unsupported channel %q", ErrInvalidRequest, channel)
		}
	}
	for i, r := range req.Recipients {
		for _, channel := range req.Channels {
			switch channel {
			case messagelog.ChannelEmail:
				if !strings.Contains(r.Email, "@") {
					return fmt.Errorf("%w: recipient %d needs a valid email for channel email", ErrInvalidRequest, i)
				}
			case messagelog.ChannelWhatsApp, messagelog.ChannelSMS:
				if strings.TrimSpace(r.Phone) == "" {
					return fmt.Errorf("%w: recipient %d needs a phone number for channel %s", ErrInvalidRequest, i, channel)
				}
			}
		}
	}
	return nil
}

// mergeVars layers recipient variables over globals; "name" is always set.
func mergeVars(global, local map[string]string, name string) map[string]string {
	out := make(map[string]string, len(global)+len(local)+1)
	for k, v := range global {
		out[k] = v
	}
	for k, v := range local {
		out[k] = v
	}
	if name != "" {
		out["name"] = name
	}
	return out
}
