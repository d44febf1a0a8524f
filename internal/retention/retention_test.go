package retention

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codesan-git/blasting-be/internal/messagelog"
	"github.com/codesan-git/blasting-be/internal/queue"
)

// appendLog is a minimal in-memory append-only log keyed by creation time.
type appendLog struct {
	mu    sync.Mutex
	times []time.Time
}

func (l *appendLog) add(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.times = append(l.times, t)
}

func (l *appendLog) cleanup(olderThan time.Time) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var kept []time.Time
	var removed int64
	for _, ts := range l.times {
		if ts.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, ts)
	}
	l.times = kept
	return removed
}

type fakeAPILogs struct{ appendLog }

func (l *fakeAPILogs) Append(ctx context.Context, row *messagelog.APILog) error {
	l.add(row.CreatedAt)
	return nil
}

func (l *fakeAPILogs) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	return l.cleanup(olderThan), nil
}

type fakeSystemLogs struct{ appendLog }

func (l *fakeSystemLogs) Append(ctx context.Context, row *messagelog.SystemLog) error {
	l.add(row.CreatedAt)
	return nil
}

func (l *fakeSystemLogs) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	return l.cleanup(olderThan), nil
}

func seedRow(t *testing.T, store *messagelog.MemoryStore, createdAt time.Time) {
	t.Helper()
	store.SetClock(func() time.Time { return createdAt })
	require.NoError(t, store.Create(context.Background(), &messagelog.MessageLog{
		JobID:          "job-" + createdAt.Format("20060102T150405"),
		Channel:        messagelog.ChannelEmail,
		RecipientEmail: "a@example.com",
		Status:         messagelog.StatusSent,
	}))
}

func TestCleanupRemovesOnlyAgedRows(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, messagelog.Jakarta)
	store := messagelog.NewMemoryStore()
	seedRow(t, store, now.AddDate(0, 0, -40)) // past retention
	seedRow(t, store, now.AddDate(0, 0, -31)) // past retention
	seedRow(t, store, now.AddDate(0, 0, -5))  // recent

	apiLogs := &fakeAPILogs{}
	apiLogs.add(now.AddDate(0, 0, -35))
	apiLogs.add(now.Add(-time.Hour))
	sysLogs := &fakeSystemLogs{}
	sysLogs.add(now.AddDate(0, 0, -35))

	svc := NewService(store, apiLogs, sysLogs, nil, nil, 30)
	svc.SetClock(func() time.Time { return now })

	result, err := svc.Cleanup(context.Background(), 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, result.MessageLogs)
	require.EqualValues(t, 1, result.APILogs)
	require.EqualValues(t, 1, result.SystemLogs)

	rows, err := store.Query(context.Background(), messagelog.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestCleanupExplicitDaysOverridesDefault(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, messagelog.Jakarta)
	store := messagelog.NewMemoryStore()
	seedRow(t, store, now.AddDate(0, 0, -10))
	seedRow(t, store, now.AddDate(0, 0, -2))

	svc := NewService(store, nil, nil, nil, nil, 30)
	svc.SetClock(func() time.Time { return now })

	result, err := svc.Cleanup(context.Background(), 7)
	require.NoError(t, err)
	require.EqualValues(t, 1, result.MessageLogs)
}

func TestCleanupTrimsFinishedQueueJobs(t *testing.T) {
	q := queue.NewMemory()
	ctx := context.Background()
	for i := 0; i < queue.KeepCompleted+20; i++ {
		_, err := q.Enqueue(ctx, queue.Job{Channel: "email", Payload: []byte("{}")})
		require.NoError(t, err)
		job, err := q.Claim(ctx, "email")
		require.NoError(t, err)
		require.NoError(t, q.Complete(ctx, job))
	}

	store := messagelog.NewMemoryStore()
	svc := NewService(store, nil, nil, q, []string{"email"}, 30)

	_, err := svc.Cleanup(ctx, 30)
	require.NoError(t, err)
	require.LessOrEqual(t, len(q.CompletedJobs("email")), queue.KeepCompleted)
}

func TestDefaultDaysFloor(t *testing.T) {
	svc := NewService(messagelog.NewMemoryStore(), nil, nil, nil, nil, 0)
	require.Equal(t, 30, svc.days)
}
