package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codesan-git/blasting-be/internal/messagelog"
	"github.com/codesan-git/blasting-be/internal/queue"
)

func enqueueMessage(t *testing.T, q queue.Queue, store *messagelog.MemoryStore, msg Message) string {
	t.Helper()
	ctx := context.Background()
	job, err := EncodeMessage(msg)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, &messagelog.MessageLog{
		JobID:          msg.JobID,
		Channel:        msg.Channel,
		RecipientEmail: msg.RecipientEmail,
		RecipientPhone: msg.RecipientPhone,
	}))
	id, err := q.Enqueue(ctx, job)
	require.NoError(t, err)
	return id
}

func waitForStatus(t *testing.T, store *messagelog.MemoryStore, jobID string, want messagelog.Status) *messagelog.MessageLog {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		row, err := store.FindByJobID(context.Background(), jobID)
		require.NoError(t, err)
		if row.Status == want {
			return row
		}
		time.Sleep(10 * time.Millisecond)
	}
	row, _ := store.FindByJobID(context.Background(), jobID)
	t.Fatalf("job %s never reached %s (last: %s)", jobID, want, row.Status)
	return nil
}

func TestPoolDeliversAndRecordsSent(t *testing.T) {
	q := queue.NewMemory()
	store := messagelog.NewMemoryStore()
	tracker, err := messagelog.NewTracker(store)
	require.NoError(t, err)

	sender := SenderFunc(func(ctx context.Context, msg Message) (Result, error) {
		return Result{MessageID: "prov-" + msg.JobID}, nil
	})
	pool, err := NewPool(messagelog.ChannelEmail, q, tracker, sender, Config{
		Concurrency: 2,
		PerSecond:   0,
		BaseBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	pool.Start(context.Background())
	defer pool.Stop()

	enqueueMessage(t, q, store, Message{
		JobID:          "job-1",
		Channel:        messagelog.ChannelEmail,
		RecipientEmail: "a@example.com",
		Subject:        "hi",
		Body:           "hello",
	})

	row := waitForStatus(t, store, "job-1", messagelog.StatusSent)
	require.Equal(t, "prov-job-1", row.MessageID)
	require.Equal(t, 1, row.Attempts)
}

func TestPoolRetriesUntilSuccess(t *testing.T) {
	q := queue.NewMemory()
	store := messagelog.NewMemoryStore()
	tracker, err := messagelog.NewTracker(store)
	require.NoError(t, err)

	var calls atomic.Int32
	sender := SenderFunc(func(ctx context.Context, msg Message) (Result, error) {
		if calls.Add(1) < 3 {
			return Result{}, errors.New("smtp 421: try again")
		}
		return Result{MessageID: "prov-ok"}, nil
	})
	pool, err := NewPool(messagelog.ChannelEmail, q, tracker, sender, Config{
		Concurrency: 1,
		BaseBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	pool.Start(context.Background())
	defer pool.Stop()

	enqueueMessage(t, q, store, Message{
		JobID:          "job-1",
		Channel:        messagelog.ChannelEmail,
		RecipientEmail: "a@example.com",
	})

	row := waitForStatus(t, store, "job-1", messagelog.StatusSent)
	require.Equal(t, 3, row.Attempts)
	require.Equal(t, "prov-ok", row.MessageID)
	require.EqualValues(t, 3, calls.Load())
}

func TestPoolExhaustsRetriesAndDeadLetters(t *testing.T) {
	q := queue.NewMemory()
	store := messagelog.NewMemoryStore()
	tracker, err := messagelog.NewTracker(store)
	require.NoError(t, err)

	sender := SenderFunc(func(ctx context.Context, msg Message) (Result, error) {
		return Result{}, errors.New("permanent refusal")
	})
	pool, err := NewPool(messagelog.ChannelEmail, q, tracker, sender, Config{
		Concurrency: 1,
		BaseBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	pool.Start(context.Background())
	defer pool.Stop()

	enqueueMessage(t, q, store, Message{
		JobID:          "job-1",
		Channel:        messagelog.ChannelEmail,
		RecipientEmail: "a@example.com",
	})

	row := waitForStatus(t, store, "job-1", messagelog.StatusFailed)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && len(q.DeadJobs("email")) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	dead := q.DeadJobs("email")
	require.Len(t, dead, 1)
	require.Equal(t, queue.DefaultMaxAttempts, dead[0].Attempts)

	row, err = store.FindByJobID(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, messagelog.StatusFailed, row.Status)
	require.Equal(t, "permanent refusal", row.ErrorMessage)
}

func TestPoolWithoutSenderFailsTerminal(t *testing.T) {
	q := queue.NewMemory()
	store := messagelog.NewMemoryStore()
	tracker, err := messagelog.NewTracker(store)
	require.NoError(t, err)

	pool, err := NewPool(messagelog.ChannelPush, q, tracker, nil, Config{
		Concurrency: 1,
		BaseBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	pool.Start(context.Background())
	defer pool.Stop()

	enqueueMessage(t, q, store, Message{
		JobID:   "job-1",
		Channel: messagelog.ChannelPush,
	})

	waitForStatus(t, store, "job-1", messagelog.StatusFailed)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && len(q.DeadJobs("push")) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	require.Len(t, q.DeadJobs("push"), 1)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := Message{
		JobID:          "job-1",
		Channel:        messagelog.ChannelWhatsApp,
		RecipientPhone: "+628123",
		RecipientName:  "Ani",
		Body:           "halo Ani",
	}
	job, err := EncodeMessage(msg)
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, "whatsapp", job.Channel)

	decoded, err := DecodeMessage(job)
	require.NoError(t, err)
	require.Equal(t, msg, decoded)
}
