package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/codesan-git/blasting-be/internal/ids"
	"github.com/codesan-git/blasting-be/internal/messagelog"
)

// APILogs returns the append-only HTTP request log store.
func (s *Store) APILogs() messagelog.APILogStore { return &apiLogStore{db: s.db} }

// SystemLogs returns the append-only internal event log store.
func (s *Store) SystemLogs() messagelog.SystemLogStore { return &systemLogStore{db: s.db} }

// AppendSystemLog satisfies audit.Sink so audit entries land in the
// system_logs table alongside the stdout stream.
func (s *Store) AppendSystemLog(ctx context.Context, event string, actorID string, fields map[string]any) error {
	detail := ""
	if len(fields) > 0 {
		data, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		detail = string(data)
	}
	return (&systemLogStore{db: s.db}).Append(ctx, &messagelog.SystemLog{
		Event:   event,
		ActorID: actorID,
		Detail:  detail,
	})
}

type apiLogStore struct{ db *sql.DB }

var _ messagelog.APILogStore = (*apiLogStore)(nil)

func (s *apiLogStore) Append(ctx context.Context, row *messagelog.APILog) error {
	if row.ID == "" {
		row.ID = ids.New()
	}
	return s.db.QueryRowContext(ctx, `
		insert into api_logs
			(id, method, path, status, duration_ms, client_ip, user_id, request_id)
		values ($1, $2, $3, $4, $5, nullif($6, ''), nullif($7, ''), nullif($8, ''))
		returning created_at
	`, row.ID, row.Method, row.Path, row.Status, row.Duration,
		row.ClientIP, row.UserID, row.RequestID,
	).Scan(&row.CreatedAt)
}

func (s *apiLogStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from api_logs where created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type systemLogStore struct{ db *sql.DB }

var _ messagelog.SystemLogStore = (*systemLogStore)(nil)

func (s *systemLogStore) Append(ctx context.Context, row *messagelog.SystemLog) error {
	if row.ID == "" {
		row.ID = ids.New()
	}
	return s.db.QueryRowContext(ctx, `
		insert into system_logs (id, event, actor_id, detail)
		values ($1, $2, nullif($3, ''), nullif($4, ''))
		returning created_at
	`, row.ID, row.Event, row.ActorID, row.Detail,
	).Scan(&row.CreatedAt)
}

func (s *systemLogStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from system_logs where created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
