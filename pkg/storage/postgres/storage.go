package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/sendnode/wagateway/pkg/storage/repository"
)

// PostgresStorage implements the storage.Storage interface for PostgreSQL.
type PostgresStorage struct {
	db          *sql.DB
	sessions    repository.SessionRepository
	credentials repository.CredentialsRepository
}

// NewPostgresStorage creates a new PostgreSQL storage instance.
func NewPostgresStorage(databaseURL string, sslEnabled bool, maxIdleConns, maxOpenConns int, maxLifetime time.Duration) (*PostgresStorage, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required for PostgreSQL storage")
	}

	// Add sslmode only when the connection string does not already carry one
	if !strings.Contains(databaseURL, "sslmode=") {
		sep := "?"
		if strings.Contains(databaseURL, "?") {
			sep = "&"
		}

		if sslEnabled {
			databaseURL = databaseURL + sep + "sslmode=require"
		} else {
			databaseURL = databaseURL + sep + "sslmode=disable"
		}
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}

	s := &PostgresStorage{
		db: db,
	}
	s.sessions = NewSessionRepository(db)
	s.credentials = NewCredentialsRepository(db)

	return s, nil
}

// Connect establishes connection and runs migrations.
func (s *PostgresStorage) Connect(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(s.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *PostgresStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Sessions returns the session record repository.
func (s *PostgresStorage) Sessions() repository.SessionRepository {
	return s.sessions
}

// Credentials returns the credentials repository.
func (s *PostgresStorage) Credentials() repository.CredentialsRepository {
	return s.credentials
}

// Ping checks if the database connection is alive.
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
