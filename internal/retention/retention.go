// Package retention prunes aged log rows and finished queue jobs on a
// schedule. The message log is the system of record, so deletion is gated
// on a configurable age and never touches unfinished work.
package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/codesan-git/blasting-be/internal/audit"
	"github.com/codesan-git/blasting-be/internal/messagelog"
	"github.com/codesan-git/blasting-be/internal/obs"
	"github.com/codesan-git/blasting-be/internal/queue"
)

// DefaultSchedule runs nightly at 02:00 Jakarta time, outside blast hours.
const DefaultSchedule = "0 2 * * *"

// Result reports how many rows each cleanup pass removed.
type Result struct {
	MessageLogs int64 `json:"message_logs"`
	APILogs     int64 `json:"api_logs"`
	SystemLogs  int64 `json:"system_logs"`
}

// Service owns the scheduled and on-demand cleanup passes.
type Service struct {
	logs       messagelog.Store
	apiLogs    messagelog.APILogStore
	systemLogs messagelog.SystemLogStore
	queue      queue.Queue
	channels   []string
	days       int
	cron       *cron.Cron
	now        func() time.Time
}

// NewService builds a retention service keeping the last days of logs.
// apiLogs and systemLogs may be nil when those stores are not wired.
func NewService(logs messagelog.Store, apiLogs messagelog.APILogStore, systemLogs messagelog.SystemLogStore, q queue.Queue, channels []string, days int) *Service {
	if days <= 0 {
		days = 30
	}
	return &Service{
		logs:       logs,
		apiLogs:    apiLogs,
		systemLogs: systemLogs,
		queue:      q,
		channels:   channels,
		days:       days,
		now:        time.Now,
	}
}

// Start schedules the nightly pass. Stop must be called on shutdown.
func (s *Service) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	s.cron = cron.New(cron.WithLocation(messagelog.Jakarta))
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.Cleanup(ctx, s.days); err != nil {
			obs.Error("scheduled cleanup failed", map[string]any{"err": err.Error()})
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish.
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Cleanup deletes log rows older than days and trims finished queue jobs.
// A zero or negative days falls back to the configured default.
func (s *Service) Cleanup(ctx context.Context, days int) (Result, error) {
	if days <= 0 {
		days = s.days
	}
	cutoff := s.now().In(messagelog.Jakarta).AddDate(0, 0, -days)

	var out Result
	var err error
	if out.MessageLogs, err = s.logs.Cleanup(ctx, cutoff); err != nil {
		return out, err
	}
	if s.apiLogs != nil {
		if out.APILogs, err = s.apiLogs.Cleanup(ctx, cutoff); err != nil {
			return out, err
		}
	}
	if s.systemLogs != nil {
		if out.SystemLogs, err = s.systemLogs.Cleanup(ctx, cutoff); err != nil {
			return out, err
		}
	}
	if s.queue != nil {
		if err := s.queue.Trim(ctx, queue.KeepCompleted, queue.KeepDead); err != nil {
			return out, err
		}
		for _, ch := range s.channels {
			if depth, derr := s.queue.Depth(ctx, ch); derr == nil {
				obs.SetQueueDepth(ch, depth)
			}
		}
	}

	audit.LogEvent(ctx, "retention.cleanup", map[string]any{
		"days":         days,
		"message_logs": out.MessageLogs,
		"api_logs":     out.APILogs,
		"system_logs":  out.SystemLogs,
	})
	return out, nil
}

// SetClock overrides the time source for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }
