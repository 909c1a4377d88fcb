package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sendnode/wagateway/pkg/storage/repository"
)

type sessionRepository struct {
	dir string
	mu  sync.Mutex
}

// NewSessionRepository creates a new file-based session record repository.
func NewSessionRepository(dir string) repository.SessionRepository {
	return &sessionRepository{dir: dir}
}

func (r *sessionRepository) path(id string) string {
	return filepath.Join(r.dir, sanitizeName(id)+".json")
}

func (r *sessionRepository) Save(ctx context.Context, record *repository.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.write(record)
}

func (r *sessionRepository) write(record *repository.SessionRecord) error {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	return os.WriteFile(r.path(record.ID), data, 0644)
}

func (r *sessionRepository) read(id string) (*repository.SessionRecord, error) {
	data, err := os.ReadFile(r.path(id))
	if os.IsNotExist(err) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var record repository.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return &record, nil
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*repository.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read(id)
}

func (r *sessionRepository) List(ctx context.Context) ([]*repository.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []*repository.SessionRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		record, err := r.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Created.Before(records[j].Created)
	})
	return records, nil
}

func (r *sessionRepository) ListByOwner(ctx context.Context, ownerID string) ([]*repository.SessionRecord, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var records []*repository.SessionRecord
	for _, record := range all {
		if record.OwnerID == ownerID {
			records = append(records, record)
		}
	}
	return records, nil
}

func (r *sessionRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.mutate(id, func(record *repository.SessionRecord) {
		record.Status = status
	})
}

func (r *sessionRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	return r.mutate(id, func(record *repository.SessionRecord) {
		record.LastActivityAt = at
	})
}

func (r *sessionRepository) SetWebhook(ctx context.Context, id string, webhook repository.WebhookConfig) error {
	return r.mutate(id, func(record *repository.SessionRecord) {
		record.WebhookURL = webhook.URL
		record.WebhookSecret = webhook.Secret
		record.WebhookEvents = webhook.Events
	})
}

func (r *sessionRepository) mutate(id string, fn func(*repository.SessionRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.read(id)
	if err != nil {
		return err
	}
	fn(record)
	record.Updated = time.Now()
	return r.write(record)
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// sanitizeName keeps session IDs filesystem-safe.
func sanitizeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}
