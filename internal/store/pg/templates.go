package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/codesan-git/blasting-be/internal/blast"
	"github.com/codesan-git/blasting-be/internal/ids"
)

// Templates returns the Postgres-backed template registry.
func (s *Store) Templates() blast.TemplateRegistry { return &templateStore{db: s.db} }

type templateStore struct{ db *sql.DB }

var _ blast.TemplateRegistry = (*templateStore)(nil)

func (s *templateStore) Find(ctx context.Context, id string) (*blast.Template, error) {
	var tpl blast.Template
	err := s.db.QueryRowContext(ctx, `
		select id, name, subject, body from templates where id = $1
	`, id).Scan(&tpl.ID, &tpl.Name, &tpl.Subject, &tpl.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, blast.ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (s *templateStore) Upsert(ctx context.Context, tpl *blast.Template) error {
	if strings.TrimSpace(tpl.Body) == "" {
		return errors.New("template body is required")
	}
	if tpl.ID == "" {
		tpl.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into templates (id, name, subject, body)
		values ($1, $2, $3, $4)
		on conflict (id) do update
			set name = excluded.name,
			    subject = excluded.subject,
			    body = excluded.body,
			    updated_at = now()
	`, tpl.ID, tpl.Name, tpl.Subject, tpl.Body)
	return err
}

func (s *templateStore) List(ctx context.Context) ([]*blast.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, subject, body from templates order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*blast.Template
	for rows.Next() {
		var tpl blast.Template
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.Subject, &tpl.Body); err != nil {
			return nil, err
		}
		out = append(out, &tpl)
	}
	return out, rows.Err()
}
