package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/codesan-git/blasting-be/internal/messagelog"
	"github.com/codesan-git/blasting-be/internal/obs"
	"github.com/codesan-git/blasting-be/internal/queue"
)

// Config sizes one worker pool.
type Config struct {
	// Concurrency bounds in-flight jobs (default 5).
	Concurrency int
	// PerSecond throttles dispatches to a rate-limited provider
	// independently of concurrency (default 10; 0 disables the limiter).
	PerSecond int
	// BaseBackoff is the first retry delay (default 2s, doubling after).
	BaseBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.PerSecond < 0 {
		c.PerSecond = 0
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = queue.DefaultBaseBackoff
	}
	return c
}

// Pool consumes one channel's queue with bounded concurrency, invokes the
// channel sender and records each outcome in the message log. A job failure
// never crashes the process; exhausted jobs simply stay failed in the log.
type Pool struct {
	channel messagelog.Channel
	queue   queue.Queue
	tracker *messagelog.Tracker
	sender  Sender
	cfg     Config
	limiter *rate.Limiter
	now     func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool constructs a pool for one channel. sender may be nil when the
// channel has no transport configured; its jobs then fail without retry.
func NewPool(channel messagelog.Channel, q queue.Queue, tracker *messagelog.Tracker, sender Sender, cfg Config) (*Pool, error) {
	if q == nil {
		return nil, errors.New("queue is required")
	}
	if tracker == nil {
		return nil, errors.New("tracker is required")
	}
	cfg = cfg.withDefaults()
	p := &Pool{
		channel: channel,
		queue:   q,
		tracker: tracker,
		sender:  sender,
		cfg:     cfg,
		now:     time.Now,
	}
	if cfg.PerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.PerSecond)
	}
	return p, nil
}

// SetClock overrides the time source for tests.
func (p *Pool) SetClock(fn func() time.Time) {
	if fn != nil {
		p.now = fn
	}
}

// Start launches the workers. They run until Stop or ctx cancellation.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(runCtx)
		}()
	}
	obs.Info("dispatch pool started", map[string]any{
		"channel":     string(p.channel),
		"concurrency": p.cfg.Concurrency,
		"per_second":  p.cfg.PerSecond,
	})
}

// Stop cancels the workers and waits for in-flight jobs to settle.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context) {
	for {
		job, err := p.queue.Claim(ctx, string(p.channel))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			obs.Error("queue claim failed", map[string]any{
				"channel": string(p.channel),
				"err":     err.Error(),
			})
			continue
		}
		p.process(ctx, job)
	}
}

// process runs one attempt: mark processing, send, record outcome, settle.
func (p *Pool) process(ctx context.Context, job queue.Job) {
	msg, err := DecodeMessage(job)
	if err != nil {
		p.failTerminal(ctx, job, fmt.Sprintf("undecodable job payload: %v", err))
		return
	}
	if p.sender == nil || msg.Channel != p.channel {
		// Unknown or unconfigured channel: no retry benefit.
		p.failTerminal(ctx, job, fmt.Sprintf("unsupported channel %q", msg.Channel))
		return
	}

	if err := p.tracker.UpdateByJobID(ctx, job.ID, messagelog.StatusProcessing, messagelog.JobUpdate{
		Attempts: job.Attempts,
	}); err != nil {
		obs.Error("mark processing failed", map[string]any{"job_id": job.ID, "err": err.Error()})
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			// Shutdown mid-wait: requeue without consuming the attempt.
			job.Attempts--
			_ = p.queue.Fail(ctx, job, p.now())
			return
		}
	}

	result, sendErr := p.sender.Send(ctx, msg)
	if sendErr == nil {
		if err := p.tracker.UpdateByJobID(ctx, job.ID, messagelog.StatusSent, messagelog.JobUpdate{
			MessageID: result.MessageID,
			Attempts:  job.Attempts,
		}); err != nil {
			obs.Error("mark sent failed", map[string]any{"job_id": job.ID, "err": err.Error()})
		}
		obs.DispatchResult(string(p.channel), "sent")
		_ = p.queue.Complete(ctx, job)
		return
	}

	if err := p.tracker.UpdateByJobID(ctx, job.ID, messagelog.StatusFailed, messagelog.JobUpdate{
		ErrorMessage: sendErr.Error(),
		Attempts:     job.Attempts,
	}); err != nil {
		obs.Error("mark failed failed", map[string]any{"job_id": job.ID, "err": err.Error()})
	}
	obs.DispatchResult(string(p.channel), "failed")

	retryAt := p.now().Add(queue.RetryDelay(job.Attempts, p.cfg.BaseBackoff))
	_ = p.queue.Fail(ctx, job, retryAt)
	if job.Attempts >= job.MaxAttempts {
		obs.Warn("job exhausted retries", map[string]any{
			"job_id":   job.ID,
			"channel":  string(p.channel),
			"attempts": job.Attempts,
			"err":      sendErr.Error(),
		})
	}
}

// failTerminal marks the job failed and dead-letters it without retries.
func (p *Pool) failTerminal(ctx context.Context, job queue.Job, reason string) {
	if err := p.tracker.UpdateByJobID(ctx, job.ID, messagelog.StatusFailed, messagelog.JobUpdate{
		ErrorMessage: reason,
		Attempts:     job.Attempts,
	}); err != nil && !errors.Is(err, messagelog.ErrNotFound) {
		obs.Error("mark failed failed", map[string]any{"job_id": job.ID, "err": err.Error()})
	}
	obs.DispatchResult(string(p.channel), "failed")
	job.Attempts = job.MaxAttempts
	_ = p.queue.Fail(ctx, job, p.now())
}
