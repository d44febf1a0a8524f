package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codesan-git/blasting-be/internal/ids"
	"github.com/codesan-git/blasting-be/internal/messagelog"
)

// MessageLogs returns the Postgres-backed message log store.
func (s *Store) MessageLogs() messagelog.Store { return &messageLogStore{db: s.db} }

type messageLogStore struct{ db *sql.DB }

var _ messagelog.Store = (*messageLogStore)(nil)

const messageLogColumns = `id, job_id, channel, recipient_email, recipient_phone,
	recipient_name, template_id, template_name, subject, status, error_message,
	message_id, attempts, created_at, updated_at, created_by`

func (s *messageLogStore) Create(ctx context.Context, row *messagelog.MessageLog) error {
	return s.CreateBulk(ctx, []*messagelog.MessageLog{row})
}

func (s *messageLogStore) CreateBulk(ctx context.Context, rows []*messagelog.MessageLog) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range rows {
		if row.ID == "" {
			row.ID = ids.New()
		}
		if row.Status == "" {
			row.Status = messagelog.StatusQueued
		}
		if err := tx.QueryRowContext(ctx, `
			insert into message_logs
				(id, job_id, channel, recipient_email, recipient_phone,
				 recipient_name, template_id, template_name, subject, status,
				 created_by)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, nullif($11, ''))
			returning created_at, updated_at
		`, row.ID, row.JobID, row.Channel, row.RecipientEmail, row.RecipientPhone,
			row.RecipientName, row.TemplateID, row.TemplateName, row.Subject,
			row.Status, row.CreatedBy,
		).Scan(&row.CreatedAt, &row.UpdatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *messageLogStore) FindByJobID(ctx context.Context, jobID string) (*messagelog.MessageLog, error) {
	return s.findBy(ctx, `job_id = $1`, jobID)
}

func (s *messageLogStore) FindByMessageID(ctx context.Context, messageID string) (*messagelog.MessageLog, error) {
	if messageID == "" {
		return nil, messagelog.ErrNotFound
	}
	return s.findBy(ctx, `message_id = $1`, messageID)
}

func (s *messageLogStore) findBy(ctx context.Context, where string, arg any) (*messagelog.MessageLog, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+messageLogColumns+` from message_logs where `+where, arg)
	out, err := scanMessageLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, messagelog.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *messageLogStore) UpdateByJobID(ctx context.Context, jobID string, upd messagelog.Update) error {
	return s.updateBy(ctx, `job_id`, jobID, upd)
}

func (s *messageLogStore) UpdateByMessageID(ctx context.Context, messageID string, upd messagelog.Update) error {
	if messageID == "" {
		return messagelog.ErrNotFound
	}
	return s.updateBy(ctx, `message_id`, messageID, upd)
}

func (s *messageLogStore) updateBy(ctx context.Context, keyColumn, key string, upd messagelog.Update) error {
	var (
		set  []string
		args []any
		idx  = 1
	)
	if upd.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", idx))
		args = append(args, *upd.Status)
		idx++
	}
	if upd.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", idx))
		args = append(args, *upd.ErrorMessage)
		idx++
	}
	if upd.MessageID != nil {
		set = append(set, fmt.Sprintf("message_id = $%d", idx))
		args = append(args, *upd.MessageID)
		idx++
	}
	if upd.Attempts != nil {
		set = append(set, fmt.Sprintf("attempts = $%d", idx))
		args = append(args, *upd.Attempts)
		idx++
	}
	if len(set) == 0 {
		return nil
	}
	set = append(set, "updated_at = now()")
	args = append(args, key)

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`update message_logs set %s where %s = $%d`,
		strings.Join(set, ", "), keyColumn, idx), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return messagelog.ErrNotFound
	}
	return nil
}

func (s *messageLogStore) Query(ctx context.Context, f messagelog.Filter) ([]*messagelog.MessageLog, error) {
	var (
		where []string
		args  []any
		idx   = 1
	)
	if f.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	if f.Channel != "" {
		where = append(where, fmt.Sprintf("channel = $%d", idx))
		args = append(args, f.Channel)
		idx++
	}
	if f.RecipientEmail != "" {
		where = append(where, fmt.Sprintf("recipient_email = $%d", idx))
		args = append(args, f.RecipientEmail)
		idx++
	}
	query := `select ` + messageLogColumns + ` from message_logs`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by created_at desc`
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += fmt.Sprintf(` limit $%d`, idx)
	args = append(args, limit)
	idx++
	if f.Offset > 0 {
		query += fmt.Sprintf(` offset $%d`, idx)
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*messagelog.MessageLog
	for rows.Next() {
		row, err := scanMessageLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *messageLogStore) Stats(ctx context.Context) ([]messagelog.StatBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		select channel, status, count(*)
		from message_logs
		group by channel, status
		order by channel, status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []messagelog.StatBucket
	for rows.Next() {
		var b messagelog.StatBucket
		if err := rows.Scan(&b.Channel, &b.Status, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *messageLogStore) StatsByDate(ctx context.Context, days int) ([]messagelog.DateStatBucket, error) {
	if days <= 0 {
		days = 7
	}
	// Bucket by Jakarta calendar day so aggregation never straddles
	// midnight inconsistently with the stored timestamps.
	now := time.Now().In(messagelog.Jakarta)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, messagelog.Jakarta).
		AddDate(0, 0, -(days - 1))

	rows, err := s.db.QueryContext(ctx, `
		select to_char(created_at at time zone 'Asia/Jakarta', 'YYYY-MM-DD') as day,
		       channel, status, count(*)
		from message_logs
		where created_at >= $1
		group by day, channel, status
		order by day desc, channel, status
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []messagelog.DateStatBucket
	for rows.Next() {
		var b messagelog.DateStatBucket
		if err := rows.Scan(&b.Date, &b.Channel, &b.Status, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *messageLogStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from message_logs where created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanMessageLog(row rowScanner) (*messagelog.MessageLog, error) {
	var (
		out       messagelog.MessageLog
		errMsg    sql.NullString
		messageID sql.NullString
		createdBy sql.NullString
	)
	if err := row.Scan(&out.ID, &out.JobID, &out.Channel, &out.RecipientEmail,
		&out.RecipientPhone, &out.RecipientName, &out.TemplateID, &out.TemplateName,
		&out.Subject, &out.Status, &errMsg, &messageID, &out.Attempts,
		&out.CreatedAt, &out.UpdatedAt, &createdBy); err != nil {
		return nil, err
	}
	out.ErrorMessage = errMsg.String
	out.MessageID = messageID.String
	out.CreatedBy = createdBy.String
	return &out, nil
}
