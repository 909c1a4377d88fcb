package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sendnode/wagateway/pkg/storage/repository"
)

type credentialsRepository struct {
	dir string
	mu  sync.Mutex
}

// NewCredentialsRepository creates a new file-based credentials repository.
// Each session owns a directory holding an owner file and a creds blob.
func NewCredentialsRepository(dir string) repository.CredentialsRepository {
	return &credentialsRepository{dir: dir}
}

func (r *credentialsRepository) sessionDir(sessionID string) string {
	return filepath.Join(r.dir, sanitizeName(sessionID))
}

func (r *credentialsRepository) SaveOwner(ctx context.Context, sessionID, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir := r.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "owner"), []byte(ownerID), 0600)
}

func (r *credentialsRepository) Owner(ctx context.Context, sessionID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(r.sessionDir(sessionID), "owner"))
	if os.IsNotExist(err) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (r *credentialsRepository) Save(ctx context.Context, sessionID string, blob []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir := r.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "creds.bin"), blob, 0600)
}

func (r *credentialsRepository) Get(ctx context.Context, sessionID string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(r.sessionDir(sessionID), "creds.bin"))
	if os.IsNotExist(err) {
		return nil, repository.ErrNotFound
	}
	return data, err
}

func (r *credentialsRepository) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.RemoveAll(r.sessionDir(sessionID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (r *credentialsRepository) List(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.dir, entry.Name(), "creds.bin")); err != nil {
			continue
		}
		ids = append(ids, entry.Name())
	}
	return ids, nil
}
