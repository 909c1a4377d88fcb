package repository

import "context"

// CredentialsRepository defines the interface for pairing credential
// persistence. The owner mapping and the credential blob are written
// separately: callers record the owner first so a blob is never stored
// without an owner attached.
type CredentialsRepository interface {
	// SaveOwner records which owner a session's credentials belong to.
	SaveOwner(ctx context.Context, sessionID, ownerID string) error

	// Owner returns the owner recorded for a session.
	// Returns ErrNotFound if no owner mapping exists.
	Owner(ctx context.Context, sessionID string) (string, error)

	// Save persists the session's credential blob (insert or replace).
	Save(ctx context.Context, sessionID string, blob []byte) error

	// Get retrieves the session's credential blob.
	// Returns ErrNotFound if no blob is stored.
	Get(ctx context.Context, sessionID string) ([]byte, error)

	// Delete removes the blob and the owner mapping.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all sessions with stored credentials.
	List(ctx context.Context) ([]string, error)
}
