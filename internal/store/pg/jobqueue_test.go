package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/codesan-git/blasting-be/internal/queue"
)

func expectClaim(mock sqlmock.Sqlmock, jobID string, attempts int) {
	mock.ExpectBegin()
	mock.ExpectQuery(`select id, channel, payload, priority, attempts, max_attempts, enqueued_at`).
		WithArgs("email").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "channel", "payload", "priority", "attempts", "max_attempts", "enqueued_at",
		}).AddRow(jobID, "email", []byte(`{}`), 0, attempts, 3, time.Now()))
	mock.ExpectExec(`update jobs set state = 'claimed'`).
		WithArgs(jobID, attempts+1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`select count\(\*\) from jobs`).
		WithArgs("email").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
}

func TestClaimSweepsStaleClaimsBackToPending(t *testing.T) {
	store, mock := newMockStore(t)
	q := store.JobQueue()
	ctx := context.Background()

	// First claim runs the sweep: one expired claim goes back to pending.
	mock.ExpectExec(`update jobs set state = 'pending', ready_at = now\(\)`).
		WithArgs(claimLease.Seconds()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectClaim(mock, "job-1", 0)

	job, err := q.Claim(ctx, "email")
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, 1, job.Attempts)

	// A claim within the sweep interval must not sweep again; an unexpected
	// exec here would fail ExpectationsWereMet.
	expectClaim(mock, "job-2", 0)

	job, err = q.Claim(ctx, "email")
	require.NoError(t, err)
	require.Equal(t, "job-2", job.ID)
}

func TestFailRequeuesWithRetryAt(t *testing.T) {
	store, mock := newMockStore(t)
	q := store.JobQueue()
	retryAt := time.Now().Add(2 * time.Second)

	mock.ExpectExec(`update jobs set state = 'pending', ready_at = \$2`).
		WithArgs("job-1", retryAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := q.Fail(context.Background(), queue.Job{ID: "job-1", Attempts: 1, MaxAttempts: 3}, retryAt)
	require.NoError(t, err)
}

func TestFailExhaustedMarksDead(t *testing.T) {
	store, mock := newMockStore(t)
	q := store.JobQueue()

	mock.ExpectExec(`update jobs set state = 'dead'`).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := q.Fail(context.Background(), queue.Job{ID: "job-1", Attempts: 3, MaxAttempts: 3},
		time.Now())
	require.NoError(t, err)
}

func TestCompleteUnclaimedJobIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	q := store.JobQueue()

	mock.ExpectExec(`update jobs set state = 'completed'`).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := q.Complete(context.Background(), queue.Job{ID: "job-1"})
	require.ErrorIs(t, err, queue.ErrNotFound)
}
