package messagelog

import (
	"context"
	"time"
)

// Store persists message logs. Rows are created at enqueue time and only
// ever updated by job id or message id, never deleted outside Cleanup.
type Store interface {
	Create(ctx context.Context, row *MessageLog) error
	CreateBulk(ctx context.Context, rows []*MessageLog) error
	FindByJobID(ctx context.Context, jobID string) (*MessageLog, error)
	FindByMessageID(ctx context.Context, messageID string) (*MessageLog, error)
	UpdateByJobID(ctx context.Context, jobID string, upd Update) error
	UpdateByMessageID(ctx context.Context, messageID string, upd Update) error
	// Query returns rows newest-first.
	Query(ctx context.Context, f Filter) ([]*MessageLog, error)
	// Stats counts rows grouped by (channel, status).
	Stats(ctx context.Context) ([]StatBucket, error)
	// StatsByDate counts rows per Jakarta calendar day over the last days.
	StatsByDate(ctx context.Context, days int) ([]DateStatBucket, error)
	// Cleanup deletes rows created strictly before the cutoff.
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
}

// APILogStore persists the append-only HTTP request log.
type APILogStore interface {
	Append(ctx context.Context, row *APILog) error
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
}

// SystemLogStore persists the append-only internal event log.
type SystemLogStore interface {
	Append(ctx context.Context, row *SystemLog) error
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
}
