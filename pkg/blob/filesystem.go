package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStore writes attachments below a base directory and builds URLs
// by joining the key onto a base URL served by something else (nginx, the
// embedded file server, a CDN).
type FilesystemStore struct {
	basePath string
	baseURL  string
}

// NewFilesystemStore creates a filesystem-backed blob store.
func NewFilesystemStore(basePath, baseURL string) (*FilesystemStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path is required for filesystem blob store")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FilesystemStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *FilesystemStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	clean := filepath.Clean("/" + key)
	target := filepath.Join(s.basePath, clean)

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create blob subdirectory: %w", err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	return s.baseURL + clean, nil
}
