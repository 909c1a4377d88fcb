// Package blob stores downloaded media attachments and hands back URLs that
// event consumers can fetch.
package blob

import (
	"context"
	"fmt"
)

// Store persists binary attachments under hierarchical keys.
type Store interface {
	// Put writes data under key and returns a URL the object is
	// reachable at.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Config selects and configures a blob backend.
type Config struct {
	Type string // "filesystem" or "s3"

	// Filesystem backend
	BasePath string
	BaseURL  string

	// S3 backend
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewStore creates a Store implementation based on the provided configuration.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Type {
	case "filesystem", "":
		return NewFilesystemStore(cfg.BasePath, cfg.BaseURL)
	case "s3":
		return NewS3Store(cfg)
	default:
		return nil, fmt.Errorf("unsupported blob store type: %s (supported: filesystem, s3)", cfg.Type)
	}
}
