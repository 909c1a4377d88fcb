package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/sendnode/wagateway/pkg/storage/repository"
)

type credentialsRepository struct {
	db dbExecutor
}

// NewCredentialsRepository creates a new PostgreSQL credentials repository.
func NewCredentialsRepository(db dbExecutor) repository.CredentialsRepository {
	return &credentialsRepository{db: db}
}

func (r *credentialsRepository) SaveOwner(ctx context.Context, sessionID, ownerID string) error {
	query := `INSERT INTO gateway_credentials (session_id, owner_id, updated_at)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (session_id) DO UPDATE SET
	              owner_id = EXCLUDED.owner_id,
	              updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query, sessionID, ownerID, time.Now())
	return err
}

func (r *credentialsRepository) Owner(ctx context.Context, sessionID string) (string, error) {
	query := `SELECT owner_id FROM gateway_credentials WHERE session_id = $1`

	var ownerID string
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", repository.ErrNotFound
	}
	return ownerID, err
}

func (r *credentialsRepository) Save(ctx context.Context, sessionID string, blob []byte) error {
	query := `INSERT INTO gateway_credentials (session_id, owner_id, blob, updated_at)
	          VALUES ($1, '', $2, $3)
	          ON CONFLICT (session_id) DO UPDATE SET
	              blob = EXCLUDED.blob,
	              updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query, sessionID, blob, time.Now())
	return err
}

func (r *credentialsRepository) Get(ctx context.Context, sessionID string) ([]byte, error) {
	query := `SELECT blob FROM gateway_credentials WHERE session_id = $1`

	var blob []byte
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, repository.ErrNotFound
	}
	return blob, nil
}

func (r *credentialsRepository) Delete(ctx context.Context, sessionID string) error {
	query := `DELETE FROM gateway_credentials WHERE session_id = $1`
	_, err := r.db.ExecContext(ctx, query, sessionID)
	return err
}

func (r *credentialsRepository) List(ctx context.Context) ([]string, error) {
	query := `SELECT session_id FROM gateway_credentials WHERE blob IS NOT NULL ORDER BY session_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
