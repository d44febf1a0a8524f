package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codesan-git/blasting-be/internal/ids"
	"github.com/codesan-git/blasting-be/internal/obs"
)

// Memory is an in-process Queue used for tests and single-node deployments
// without a database. Jobs survive only for the process lifetime.
type Memory struct {
	mu       sync.Mutex
	channels map[string]*channelQueue
	now      func() time.Time
}

type channelQueue struct {
	pending   []pendingJob
	seq       uint64
	completed []Job
	dead      []Job
	notify    chan struct{}
}

type pendingJob struct {
	job     Job
	readyAt time.Time
	seq     uint64
}

// NewMemory constructs an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{
		channels: make(map[string]*channelQueue),
		now:      time.Now,
	}
}

// SetClock overrides the time source for tests.
func (m *Memory) SetClock(fn func() time.Time) {
	if fn != nil {
		m.now = fn
	}
}

func (m *Memory) channel(name string) *channelQueue {
	cq, ok := m.channels[name]
	if !ok {
		cq = &channelQueue{notify: make(chan struct{}, 1)}
		m.channels[name] = cq
	}
	return cq
}

// Enqueue adds one job.
func (m *Memory) Enqueue(ctx context.Context, job Job) (string, error) {
	idList, err := m.EnqueueBulk(ctx, []Job{job})
	if err != nil {
		return "", err
	}
	return idList[0], nil
}

// EnqueueBulk adds jobs in order, assigning ids where missing.
func (m *Memory) EnqueueBulk(ctx context.Context, jobs []Job) ([]string, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	now := m.now()
	out := make([]string, 0, len(jobs))

	m.mu.Lock()
	touched := make(map[string]*channelQueue)
	for _, job := range jobs {
		if job.ID == "" {
			job.ID = ids.New()
		}
		if job.MaxAttempts <= 0 {
			job.MaxAttempts = DefaultMaxAttempts
		}
		job.EnqueuedAt = now
		cq := m.channel(job.Channel)
		cq.seq++
		cq.pending = append(cq.pending, pendingJob{job: job, readyAt: now, seq: cq.seq})
		touched[job.Channel] = cq
		out = append(out, job.ID)
		obs.JobEnqueued(job.Channel)
	}
	for name, cq := range touched {
		sortPending(cq.pending)
		obs.SetQueueDepth(name, len(cq.pending))
		wake(cq)
	}
	m.mu.Unlock()
	return out, nil
}

// Claim blocks until a ready job exists for the channel or ctx is done.
func (m *Memory) Claim(ctx context.Context, channel string) (Job, error) {
	for {
		m.mu.Lock()
		cq := m.channel(channel)
		now := m.now()
		if job, ok := popReady(cq, now); ok {
			job.Attempts++
			obs.SetQueueDepth(channel, len(cq.pending))
			m.mu.Unlock()
			return job, nil
		}
		wait := nextReadyIn(cq, now)
		notify := cq.notify
		m.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Job{}, ctx.Err()
		case <-notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Complete settles a job into the completed ring.
func (m *Memory) Complete(ctx context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cq := m.channel(job.Channel)
	cq.completed = appendCapped(cq.completed, job, KeepCompleted)
	return nil
}

// Fail re-queues the job until attempts are exhausted, then dead-letters it.
func (m *Memory) Fail(ctx context.Context, job Job, retryAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cq := m.channel(job.Channel)
	if job.Attempts >= job.MaxAttempts {
		cq.dead = appendCapped(cq.dead, job, KeepDead)
		return nil
	}
	cq.seq++
	cq.pending = append(cq.pending, pendingJob{job: job, readyAt: retryAt, seq: cq.seq})
	sortPending(cq.pending)
	obs.SetQueueDepth(job.Channel, len(cq.pending))
	wake(cq)
	return nil
}

// Depth reports pending jobs for the channel.
func (m *Memory) Depth(ctx context.Context, channel string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channel(channel).pending), nil
}

// Trim evicts finished jobs beyond the given retention counts.
func (m *Memory) Trim(ctx context.Context, keepCompleted, keepDead int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cq := range m.channels {
		cq.completed = capTail(cq.completed, keepCompleted)
		cq.dead = capTail(cq.dead, keepDead)
	}
	return nil
}

// DeadJobs returns a copy of the dead set for one channel appraisal.
func (m *Memory) DeadJobs(channel string) []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	cq := m.channel(channel)
	out := make([]Job, len(cq.dead))
	copy(out, cq.dead)
	return out
}

// CompletedJobs returns a copy of the completed set for one channel.
func (m *Memory) CompletedJobs(channel string) []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	cq := m.channel(channel)
	out := make([]Job, len(cq.completed))
	copy(out, cq.completed)
	return out
}

// Ordering: higher priority first, then ready time, then enqueue order.
func sortPending(pending []pendingJob) {
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].job.Priority != pending[j].job.Priority {
			return pending[i].job.Priority > pending[j].job.Priority
		}
		if !pending[i].readyAt.Equal(pending[j].readyAt) {
			return pending[i].readyAt.Before(pending[j].readyAt)
		}
		return pending[i].seq < pending[j].seq
	})
}

func popReady(cq *channelQueue, now time.Time) (Job, bool) {
	for i, p := range cq.pending {
		if !p.readyAt.After(now) {
			cq.pending = append(cq.pending[:i], cq.pending[i+1:]...)
			return p.job, true
		}
	}
	return Job{}, false
}

func nextReadyIn(cq *channelQueue, now time.Time) time.Duration {
	wait := time.Minute
	for _, p := range cq.pending {
		if d := p.readyAt.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 10*time.Millisecond {
		wait = 10 * time.Millisecond
	}
	return wait
}

func wake(cq *channelQueue) {
	select {
	case cq.notify <- struct{}{}:
	default:
	}
}

func appendCapped(list []Job, job Job, keep int) []Job {
	list = append(list, job)
	return capTail(list, keep)
}

func capTail(list []Job, keep int) []Job {
	if keep < 0 || len(list) <= keep {
		return list
	}
	return append([]Job(nil), list[len(list)-keep:]...)
}
