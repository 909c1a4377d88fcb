package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/sendnode/wagateway/pkg/storage/repository"
)

type sessionRepository struct {
	db dbExecutor
}

// dbExecutor is an interface that works with both *sql.DB and *sql.Tx
type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NewSessionRepository creates a new PostgreSQL session record repository.
func NewSessionRepository(db dbExecutor) repository.SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Save(ctx context.Context, record *repository.SessionRecord) error {
	query := `INSERT INTO gateway_sessions (id, owner_id, name, status, webhook_url, webhook_secret, webhook_events, last_activity_at, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          ON CONFLICT (id) DO UPDATE SET
	              owner_id = EXCLUDED.owner_id,
	              name = EXCLUDED.name,
	              status = EXCLUDED.status,
	              webhook_url = EXCLUDED.webhook_url,
	              webhook_secret = EXCLUDED.webhook_secret,
	              webhook_events = EXCLUDED.webhook_events,
	              last_activity_at = EXCLUDED.last_activity_at,
	              updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.OwnerID,
		record.Name,
		record.Status,
		record.WebhookURL,
		record.WebhookSecret,
		pq.Array(record.WebhookEvents),
		record.LastActivityAt,
		record.Created,
		record.Updated,
	)
	return err
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*repository.SessionRecord, error) {
	query := `SELECT id, owner_id, name, status, webhook_url, webhook_secret, webhook_events, last_activity_at, created_at, updated_at
	          FROM gateway_sessions WHERE id = $1`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	return record, err
}

func (r *sessionRepository) List(ctx context.Context) ([]*repository.SessionRecord, error) {
	query := `SELECT id, owner_id, name, status, webhook_url, webhook_secret, webhook_events, last_activity_at, created_at, updated_at
	          FROM gateway_sessions ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (r *sessionRepository) ListByOwner(ctx context.Context, ownerID string) ([]*repository.SessionRecord, error) {
	query := `SELECT id, owner_id, name, status, webhook_url, webhook_secret, webhook_events, last_activity_at, created_at, updated_at
	          FROM gateway_sessions WHERE owner_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (r *sessionRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE gateway_sessions SET status = $1, updated_at = $2 WHERE id = $3`
	return execExpectingRow(ctx, r.db, query, status, time.Now(), id)
}

func (r *sessionRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE gateway_sessions SET last_activity_at = $1, updated_at = $1 WHERE id = $2`
	return execExpectingRow(ctx, r.db, query, at, id)
}

func (r *sessionRepository) SetWebhook(ctx context.Context, id string, webhook repository.WebhookConfig) error {
	query := `UPDATE gateway_sessions SET webhook_url = $1, webhook_secret = $2, webhook_events = $3, updated_at = $4 WHERE id = $5`
	return execExpectingRow(ctx, r.db, query, webhook.URL, webhook.Secret, pq.Array(webhook.Events), time.Now(), id)
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM gateway_sessions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*repository.SessionRecord, error) {
	var record repository.SessionRecord
	err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&record.Name,
		&record.Status,
		&record.WebhookURL,
		&record.WebhookSecret,
		pq.Array(&record.WebhookEvents),
		&record.LastActivityAt,
		&record.Created,
		&record.Updated,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func collectRecords(rows *sql.Rows) ([]*repository.SessionRecord, error) {
	var records []*repository.SessionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func execExpectingRow(ctx context.Context, db dbExecutor, query string, args ...interface{}) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
