package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SessionRecord is the persisted description of one gateway session.
type SessionRecord struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Name           string    `json:"name,omitempty"`
	Status         string    `json:"status"`
	WebhookURL     string    `json:"webhook_url,omitempty"`
	WebhookSecret  string    `json:"webhook_secret,omitempty"`
	WebhookEvents  []string  `json:"webhook_events,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Created        time.Time `json:"created"`
	Updated        time.Time `json:"updated"`
}

// WebhookConfig is a session's webhook registration. An empty Events list
// subscribes the URL to every event kind; an empty Secret falls back to the
// gateway-wide signing secret.
type WebhookConfig struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret,omitempty"`
	Events []string `json:"events,omitempty"`
}

// SessionRepository defines the interface for session record persistence.
type SessionRepository interface {
	// Save persists a complete record (insert or replace).
	Save(ctx context.Context, record *SessionRecord) error

	// Get retrieves a record by session ID.
	// Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (*SessionRecord, error)

	// List returns all records.
	List(ctx context.Context) ([]*SessionRecord, error)

	// ListByOwner returns all records belonging to one owner.
	ListByOwner(ctx context.Context, ownerID string) ([]*SessionRecord, error)

	// UpdateStatus records the session's current connection status.
	UpdateStatus(ctx context.Context, id, status string) error

	// TouchActivity bumps the record's last activity timestamp.
	TouchActivity(ctx context.Context, id string, at time.Time) error

	// SetWebhook stores the session's webhook registration. A zero-value
	// config clears it.
	SetWebhook(ctx context.Context, id string, webhook WebhookConfig) error

	// Delete removes a record permanently.
	Delete(ctx context.Context, id string) error
}
