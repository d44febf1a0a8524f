package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryDelayDoubles(t *testing.T) {
	base := 2 * time.Second
	require.Equal(t, 2*time.Second, RetryDelay(1, base))
	require.Equal(t, 4*time.Second, RetryDelay(2, base))
	require.Equal(t, 8*time.Second, RetryDelay(3, base))
	require.Equal(t, DefaultBaseBackoff, RetryDelay(1, 0))
}

func TestEnqueueClaimOrder(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	ids, err := q.EnqueueBulk(ctx, []Job{
		{Channel: "email", Payload: []byte("a")},
		{Channel: "email", Payload: []byte("b"), Priority: 5},
		{Channel: "email", Payload: []byte("c")},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	depth, err := q.Depth(ctx, "email")
	require.NoError(t, err)
	require.Equal(t, 3, depth)

	// Highest priority first, then FIFO.
	first, err := q.Claim(ctx, "email")
	require.NoError(t, err)
	require.Equal(t, []byte("b"), first.Payload)
	require.Equal(t, 1, first.Attempts)

	second, err := q.Claim(ctx, "email")
	require.NoError(t, err)
	require.Equal(t, []byte("a"), second.Payload)
}

func TestClaimBlocksUntilEnqueue(t *testing.T) {
	q := NewMemory()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan Job, 1)
	go func() {
		job, err := q.Claim(ctx, "email")
		if err == nil {
			done <- job
		}
	}()

	time.Sleep(50 * time.Millisecond)
	_, err := q.Enqueue(ctx, Job{Channel: "email", Payload: []byte("x")})
	require.NoError(t, err)

	select {
	case job := <-done:
		require.Equal(t, []byte("x"), job.Payload)
	case <-ctx.Done():
		t.Fatal("claim never returned")
	}
}

func TestClaimHonorsContextCancellation(t *testing.T) {
	q := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := q.Claim(ctx, "email")
	require.ErrorIs(t, err, context.Canceled)
}

func TestFailRequeuesUntilExhausted(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, Job{Channel: "email", Payload: []byte("x"), MaxAttempts: 2})
	require.NoError(t, err)

	job, err := q.Claim(ctx, "email")
	require.NoError(t, err)
	require.Equal(t, 1, job.Attempts)

	// First failure: retryable, immediately ready again.
	require.NoError(t, q.Fail(ctx, job, time.Now()))
	require.Empty(t, q.DeadJobs("email"))

	job, err = q.Claim(ctx, "email")
	require.NoError(t, err)
	require.Equal(t, 2, job.Attempts)

	// Second failure exhausts MaxAttempts: dead-lettered.
	require.NoError(t, q.Fail(ctx, job, time.Now()))
	dead := q.DeadJobs("email")
	require.Len(t, dead, 1)
	require.Equal(t, 2, dead[0].Attempts)

	depth, err := q.Depth(ctx, "email")
	require.NoError(t, err)
	require.Zero(t, depth)
}

func TestFailedJobNotClaimableBeforeRetryAt(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, Job{Channel: "email", Payload: []byte("x")})
	require.NoError(t, err)

	job, err := q.Claim(ctx, "email")
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, job, time.Now().Add(time.Hour)))

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = q.Claim(waitCtx, "email")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTrimCapsFinishedSets(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		id, err := q.Enqueue(ctx, Job{Channel: "email", Payload: []byte("x")})
		require.NoError(t, err)
		job, err := q.Claim(ctx, "email")
		require.NoError(t, err)
		require.Equal(t, id, job.ID)
		require.NoError(t, q.Complete(ctx, job))
	}
	require.Len(t, q.CompletedJobs("email"), 10)

	require.NoError(t, q.Trim(ctx, 3, 3))
	completed := q.CompletedJobs("email")
	require.Len(t, completed, 3)
}

func TestChannelsAreIsolated(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, Job{Channel: "whatsapp", Payload: []byte("wa")})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = q.Claim(waitCtx, "email")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	job, err := q.Claim(ctx, "whatsapp")
	require.NoError(t, err)
	require.Equal(t, []byte("wa"), job.Payload)
}
