package pg

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/codesan-git/blasting-be/internal/ids"
	"github.com/codesan-git/blasting-be/internal/obs"
	"github.com/codesan-git/blasting-be/internal/queue"
)

// claimPollInterval bounds how long a blocked Claim waits between scans for
// newly-ready jobs. Claims race via `for update skip locked`, so polling is
// contention-free across workers.
const claimPollInterval = 500 * time.Millisecond

// claimLease bounds how long a row may sit in state 'claimed'. A worker that
// dies mid-send never calls Complete or Fail, so claimed rows older than the
// lease are swept back to 'pending' and re-offered. The sweep runs from the
// claim loop, at most once per staleSweepInterval per queue instance.
const (
	claimLease         = 5 * time.Minute
	staleSweepInterval = 30 * time.Second
)

// JobQueue returns the Postgres-backed durable queue. Jobs survive restarts;
// a job stranded in 'claimed' by a crashed worker is returned to 'pending'
// once its lease expires.
func (s *Store) JobQueue() queue.Queue { return &jobQueue{db: s.db, now: time.Now} }

type jobQueue struct {
	db  *sql.DB
	now func() time.Time

	sweepMu   sync.Mutex
	lastSweep time.Time
}

var _ queue.Queue = (*jobQueue)(nil)

func (q *jobQueue) Enqueue(ctx context.Context, job queue.Job) (string, error) {
	ids, err := q.EnqueueBulk(ctx, []queue.Job{job})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (q *jobQueue) EnqueueBulk(ctx context.Context, jobs []queue.Job) ([]string, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if job.ID == "" {
			job.ID = ids.New()
		}
		if job.MaxAttempts <= 0 {
			job.MaxAttempts = queue.DefaultMaxAttempts
		}
		if _, err := tx.ExecContext(ctx, `
			insert into jobs
				(id, channel, payload, priority, attempts, max_attempts, state, ready_at)
			values ($1, $2, $3, $4, 0, $5, 'pending', now())
		`, job.ID, job.Channel, job.Payload, job.Priority, job.MaxAttempts); err != nil {
			return nil, err
		}
		out = append(out, job.ID)
		obs.JobEnqueued(job.Channel)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if depth, err := q.Depth(ctx, job.Channel); err == nil {
			obs.SetQueueDepth(job.Channel, depth)
		}
		break
	}
	return out, nil
}

func (q *jobQueue) Claim(ctx context.Context, channel string) (queue.Job, error) {
	for {
		q.requeueStale(ctx)
		job, ok, err := q.tryClaim(ctx, channel)
		if err != nil {
			return queue.Job{}, err
		}
		if ok {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return queue.Job{}, ctx.Err()
		case <-time.After(claimPollInterval):
		}
	}
}

// requeueStale returns expired claims to pending. The extra claim-time
// attempt increment stays on the row; at-least-once delivery is the contract,
// not exactly-once.
func (q *jobQueue) requeueStale(ctx context.Context) {
	q.sweepMu.Lock()
	if q.now().Sub(q.lastSweep) < staleSweepInterval {
		q.sweepMu.Unlock()
		return
	}
	q.lastSweep = q.now()
	q.sweepMu.Unlock()

	res, err := q.db.ExecContext(ctx, `
		update jobs set state = 'pending', ready_at = now(), updated_at = now()
		where state = 'claimed' and updated_at < now() - make_interval(secs => $1)
	`, claimLease.Seconds())
	if err != nil {
		obs.Error("stale claim sweep failed", map[string]any{"err": err.Error()})
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		obs.Warn("requeued stale claimed jobs", map[string]any{"count": n})
	}
}

// tryClaim atomically picks the highest-priority ready job and marks it
// claimed. `skip locked` lets concurrent workers claim distinct rows without
// waiting on each other.
func (q *jobQueue) tryClaim(ctx context.Context, channel string) (queue.Job, bool, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return queue.Job{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var job queue.Job
	err = tx.QueryRowContext(ctx, `
		select id, channel, payload, priority, attempts, max_attempts, enqueued_at
		from jobs
		where channel = $1 and state = 'pending' and ready_at <= now()
		order by priority desc, ready_at, enqueued_at
		limit 1
		for update skip locked
	`, channel).Scan(&job.ID, &job.Channel, &job.Payload, &job.Priority,
		&job.Attempts, &job.MaxAttempts, &job.EnqueuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return queue.Job{}, false, nil
	}
	if err != nil {
		return queue.Job{}, false, err
	}

	job.Attempts++
	if _, err := tx.ExecContext(ctx, `
		update jobs set state = 'claimed', attempts = $2, updated_at = now()
		where id = $1
	`, job.ID, job.Attempts); err != nil {
		return queue.Job{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return queue.Job{}, false, err
	}
	if depth, derr := q.Depth(ctx, channel); derr == nil {
		obs.SetQueueDepth(channel, depth)
	}
	return job, true, nil
}

func (q *jobQueue) Complete(ctx context.Context, job queue.Job) error {
	res, err := q.db.ExecContext(ctx, `
		update jobs set state = 'completed', updated_at = now(), finished_at = now()
		where id = $1 and state = 'claimed'
	`, job.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return queue.ErrNotFound
	}
	return nil
}

func (q *jobQueue) Fail(ctx context.Context, job queue.Job, retryAt time.Time) error {
	var (
		res sql.Result
		err error
	)
	if job.Attempts >= job.MaxAttempts {
		res, err = q.db.ExecContext(ctx, `
			update jobs set state = 'dead', updated_at = now(), finished_at = now()
			where id = $1 and state = 'claimed'
		`, job.ID)
	} else {
		res, err = q.db.ExecContext(ctx, `
			update jobs set state = 'pending', ready_at = $2, updated_at = now()
			where id = $1 and state = 'claimed'
		`, job.ID, retryAt)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return queue.ErrNotFound
	}
	return nil
}

func (q *jobQueue) Depth(ctx context.Context, channel string) (int, error) {
	var depth int
	err := q.db.QueryRowContext(ctx, `
		select count(*) from jobs where channel = $1 and state = 'pending'
	`, channel).Scan(&depth)
	return depth, err
}

// Trim keeps the newest finished jobs per channel and deletes the rest.
func (q *jobQueue) Trim(ctx context.Context, keepCompleted, keepDead int) error {
	if keepCompleted < 0 {
		keepCompleted = queue.KeepCompleted
	}
	if keepDead < 0 {
		keepDead = queue.KeepDead
	}
	for state, keep := range map[string]int{"completed": keepCompleted, "dead": keepDead} {
		if _, err := q.db.ExecContext(ctx, `
			delete from jobs
			where state = $1 and id not in (
				select id from (
					select id, row_number() over (
						partition by channel order by finished_at desc
					) as rn
					from jobs where state = $1
				) ranked
				where rn <= $2
			)
		`, state, keep); err != nil {
			return err
		}
	}
	return nil
}
