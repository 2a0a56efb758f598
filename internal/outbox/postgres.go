package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Postgres stores entries in the outbox_entries table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS outbox_entries (
			id              TEXT PRIMARY KEY,
			kind            TEXT NOT NULL,
			fields          JSONB NOT NULL,
			attempts        INTEGER NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMPTZ NOT NULL,
			last_error      TEXT NOT NULL DEFAULT '',
			parked          BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			delivered_at    TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS outbox_entries_due
			ON outbox_entries (next_attempt_at)
			WHERE delivered_at IS NULL AND NOT parked;
	`)
	if err != nil {
		return fmt.Errorf("migrate outbox: %w", err)
	}
	return nil
}

func (p *Postgres) Add(ctx context.Context, e Entry) error {
	fields, err := encodeFields(e.Fields)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO outbox_entries (id, kind, fields, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.Kind, fields, e.Attempts, e.NextAttemptAt, e.CreatedAt)
	return err
}

func (p *Postgres) Claim(ctx context.Context, now, leaseUntil time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		UPDATE outbox_entries SET next_attempt_at = $2
		WHERE id IN (
			SELECT id FROM outbox_entries
			WHERE delivered_at IS NULL AND NOT parked AND next_attempt_at <= $1
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, fields, attempts, next_attempt_at, last_error, parked, created_at, delivered_at
	`, now, leaseUntil, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortByCreated(res)
	return res, nil
}

func (p *Postgres) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE outbox_entries
		SET delivered_at = $2, attempts = attempts + 1, last_error = ''
		WHERE id = $1
	`, id, at)
	return checkAffected(res, err)
}

func (p *Postgres) MarkFailed(ctx context.Context, id string, attempts int, next time.Time, lastErr string, parked bool) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE outbox_entries
		SET attempts = $2, next_attempt_at = $3, last_error = $4, parked = $5
		WHERE id = $1
	`, id, attempts, next, lastErr, parked)
	return checkAffected(res, err)
}

func (p *Postgres) Get(ctx context.Context, id string) (Entry, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, kind, fields, attempts, next_attempt_at, last_error, parked, created_at, delivered_at
		FROM outbox_entries WHERE id = $1
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (p *Postgres) Pending(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outbox_entries WHERE delivered_at IS NULL AND NOT parked
	`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e         Entry
		fields    []byte
		delivered sql.NullTime
	)
	if err := s.Scan(&e.ID, &e.Kind, &fields, &e.Attempts, &e.NextAttemptAt, &e.LastError, &e.Parked, &e.CreatedAt, &delivered); err != nil {
		return Entry{}, err
	}
	f, err := decodeFields(fields)
	if err != nil {
		return Entry{}, fmt.Errorf("decode outbox fields %s: %w", e.ID, err)
	}
	e.Fields = f
	if delivered.Valid {
		t := delivered.Time
		e.DeliveredAt = &t
	}
	return e, nil
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
