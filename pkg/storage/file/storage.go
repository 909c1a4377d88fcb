package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sendnode/wagateway/pkg/storage/repository"
)

// FileStorage implements the storage.Storage interface using file-based
// persistence. Session records live as one JSON file each under sessions/,
// credentials under credentials/<session-id>/.
type FileStorage struct {
	rootPath    string
	sessions    repository.SessionRepository
	credentials repository.CredentialsRepository
}

// NewFileStorage creates a new file-based storage instance.
func NewFileStorage(rootPath string) (*FileStorage, error) {
	if rootPath == "" {
		return nil, fmt.Errorf("root path is required for file-based storage")
	}

	fs := &FileStorage{rootPath: rootPath}
	fs.sessions = NewSessionRepository(filepath.Join(rootPath, "sessions"))
	fs.credentials = NewCredentialsRepository(filepath.Join(rootPath, "credentials"))

	return fs, nil
}

// Connect ensures the storage directories exist.
func (fs *FileStorage) Connect(ctx context.Context) error {
	for _, dir := range []string{
		filepath.Join(fs.rootPath, "sessions"),
		filepath.Join(fs.rootPath, "credentials"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return nil
}

// Close closes the file-based storage (no-op for files).
func (fs *FileStorage) Close() error {
	return nil
}

// Sessions returns the session record repository.
func (fs *FileStorage) Sessions() repository.SessionRepository {
	return fs.sessions
}

// Credentials returns the credentials repository.
func (fs *FileStorage) Credentials() repository.CredentialsRepository {
	return fs.credentials
}

// Ping checks if the storage root is accessible.
func (fs *FileStorage) Ping(ctx context.Context) error {
	if _, err := os.Stat(fs.rootPath); err != nil {
		return fmt.Errorf("storage root not accessible: %w", err)
	}
	return nil
}
