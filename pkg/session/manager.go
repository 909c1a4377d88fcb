package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sendnode/wagateway/pkg/bus"
	"github.com/sendnode/wagateway/pkg/event"
	"github.com/sendnode/wagateway/pkg/logger"
	"github.com/sendnode/wagateway/pkg/storage"
	"github.com/sendnode/wagateway/pkg/storage/repository"
	"github.com/sendnode/wagateway/pkg/wasock"
)

const (
	defaultRetryDelay   = 5 * time.Second
	defaultCloseTimeout = 10 * time.Second
)

// Manager owns the session registry and drives each session's connection
// lifecycle: pairing, reconnects, credential persistence, and normalization
// of the transport's event streams onto the bus.
type Manager struct {
	registry  *Registry
	dialer    wasock.Dialer
	store     storage.Storage
	events    *bus.EventBus
	processor *Processor

	retryDelay   time.Duration
	closeTimeout time.Duration
}

// Option tweaks manager construction.
type Option func(*Manager)

// WithRetryDelay overrides the delay before a stream-error socket rebuild.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

// WithCloseTimeout overrides how long a socket teardown may block.
func WithCloseTimeout(d time.Duration) Option {
	return func(m *Manager) { m.closeTimeout = d }
}

func NewManager(dialer wasock.Dialer, store storage.Storage, events *bus.EventBus, processor *Processor, opts ...Option) *Manager {
	m := &Manager{
		registry:     NewRegistry(),
		dialer:       dialer,
		store:        store,
		events:       events,
		processor:    processor,
		retryDelay:   defaultRetryDelay,
		closeTimeout: defaultCloseTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry exposes the live session registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// StartSession registers and connects a new session. The registry insert is
// the serialization point: a second start for the same ID fails with
// ErrSessionExists before any side effect happens.
func (m *Manager) StartSession(ctx context.Context, id, ownerID, name string) (*Session, error) {
	s := newSession(id, ownerID, name)
	if err := m.registry.Add(s); err != nil {
		return nil, err
	}

	logger.InfoCF("session", "Starting session", map[string]interface{}{
		"session": id,
		"owner":   ownerID,
	})

	record := &repository.SessionRecord{
		ID:             id,
		OwnerID:        ownerID,
		Name:           name,
		Status:         string(event.StatusStarting),
		LastActivityAt: s.Created,
		Created:        s.Created,
		Updated:        s.Created,
	}
	if err := m.store.Sessions().Save(ctx, record); err != nil {
		m.registry.Remove(id)
		return nil, fmt.Errorf("failed to persist session record: %w", err)
	}

	m.publishStatus(s, event.StatusStarting, "")

	creds, err := m.store.Credentials().Get(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		m.registry.Remove(id)
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	if err := m.open(ctx, s, creds); err != nil {
		m.registry.Remove(id)
		m.transition(s, event.StatusFailed, err.Error())
		return nil, err
	}

	return s, nil
}

func (m *Manager) open(ctx context.Context, s *Session, creds []byte) error {
	sock, err := m.dialer.Open(ctx, s.ID, creds, wasock.Handlers{
		ConnectionUpdate: func(u wasock.ConnectionUpdate) { m.onConnectionUpdate(s, u) },
		CredsUpdate:      func(blob []byte) { m.onCredsUpdate(s, blob) },
		MessagesUpsert:   func(batch wasock.MessageBatch) { m.onMessages(s, batch) },
		MessagesUpdate:   func(updates []wasock.StatusUpdate) { m.onStatusUpdates(s, updates) },
	})
	if err != nil {
		return fmt.Errorf("failed to open socket: %w", err)
	}
	s.swapSocket(sock)
	return nil
}

// StopSession detaches the session from the registry first, then tears the
// socket down and purges its credentials. The ordering keeps a 515 rebuild
// scheduled in between from resurrecting a session the caller asked to stop;
// the purge keeps a boot-time restore from doing the same.
func (m *Manager) StopSession(ctx context.Context, id string) error {
	s, ok := m.registry.Remove(id)
	if !ok {
		return ErrSessionNotFound
	}

	logger.InfoCF("session", "Stopping session", map[string]interface{}{
		"session": id,
	})

	m.closeSocket(s, nil)
	if err := m.store.Credentials().Delete(ctx, id); err != nil {
		logger.ErrorCF("session", "Credential purge failed", map[string]interface{}{
			"session": id,
			"error":   err.Error(),
		})
	}
	m.transition(s, event.StatusStopped, "")
	return nil
}

// Get returns the live session for an ID.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.registry.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// closeSocket detaches and closes the session's socket, bounded by the close
// timeout so a wedged transport cannot hang the caller.
func (m *Manager) closeSocket(s *Session, reason error) {
	sock := s.swapSocket(nil)
	if sock == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sock.Close(reason); err != nil {
			logger.WarnCF("session", "Socket close failed", map[string]interface{}{
				"session": s.ID,
				"error":   err.Error(),
			})
		}
	}()

	select {
	case <-done:
	case <-time.After(m.closeTimeout):
		logger.WarnCF("session", "Socket close timed out", map[string]interface{}{
			"session": s.ID,
		})
	}
}

func (m *Manager) onConnectionUpdate(s *Session, u wasock.ConnectionUpdate) {
	if u.QR != "" && s.observeQR(u.QR) {
		m.transition(s, event.StatusScanningQR, "")
		m.publishQR(s, u.QR)
	}

	if u.PairingConfirmed {
		s.confirmPairing()
		logger.InfoCF("session", "Pairing confirmed", map[string]interface{}{
			"session": s.ID,
		})
		// The transport restarts its connection after pairing; tell
		// consumers before the reconnect churn begins.
		m.transition(s, event.StatusConnecting, "pairing successful, restarting")
	}

	switch u.Connection {
	case wasock.ConnConnecting:
		// A rebuild already announced connecting; don't repeat it.
		if !s.Reconnecting() {
			m.transition(s, event.StatusConnecting, "")
		}
	case wasock.ConnOpen:
		s.markOnline()
		m.transition(s, event.StatusConnected, "")
	case wasock.ConnClose:
		m.onClose(s, u.DisconnectCode)
	}
}

func (m *Manager) onClose(s *Session, code int) {
	switch {
	case code == wasock.CodeStreamError:
		// Stream conflict: the server wants a fresh socket. One delayed
		// rebuild attempt, never concurrent with another.
		if !s.beginReconnect() {
			return
		}
		logger.WarnCF("session", "Stream error, scheduling socket rebuild", map[string]interface{}{
			"session": s.ID,
			"delay":   m.retryDelay.String(),
		})
		m.transition(s, event.StatusConnecting, "stream error")
		time.AfterFunc(m.retryDelay, func() { m.rebuild(s) })

	case code == wasock.CodeLoggedOut:
		logger.WarnCF("session", "Device logged out, purging credentials", map[string]interface{}{
			"session": s.ID,
		})
		m.purge(s, event.StatusStopped, "logged out")

	case wasock.TerminalCode(code):
		logger.ErrorCF("session", "Connection terminally rejected", map[string]interface{}{
			"session": s.ID,
			"code":    code,
		})
		m.purge(s, event.StatusFailed, fmt.Sprintf("connection closed with code %d", code))

	default:
		// Transient: the transport reconnects on its own.
		m.transition(s, event.StatusDisconnected, fmt.Sprintf("connection closed with code %d", code))
	}
}

// rebuild replaces the session's socket after a stream error. It is a single
// attempt: a failure is terminal and the session is purged.
func (m *Manager) rebuild(s *Session) {
	if !m.registry.Contains(s) {
		// Stopped or purged while the rebuild was pending.
		return
	}

	m.closeSocket(s, nil)

	ctx := context.Background()
	creds, err := m.store.Credentials().Get(ctx, s.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.ErrorCF("session", "Rebuild aborted, cannot load credentials", map[string]interface{}{
			"session": s.ID,
			"error":   err.Error(),
		})
		s.endReconnect()
		m.purge(s, event.StatusFailed, "credential load failed")
		return
	}

	if err := m.open(ctx, s, creds); err != nil {
		logger.ErrorCF("session", "Socket rebuild failed", map[string]interface{}{
			"session": s.ID,
			"error":   err.Error(),
		})
		s.endReconnect()
		m.purge(s, event.StatusFailed, "reconnect failed")
	}
	// On success the reconnect flag clears when the connection opens.
}

// purge removes the session's credentials and registry entry after the
// transport rejected them for good.
func (m *Manager) purge(s *Session, status event.Status, detail string) {
	ctx := context.Background()
	if err := m.store.Credentials().Delete(ctx, s.ID); err != nil {
		logger.ErrorCF("session", "Credential purge failed", map[string]interface{}{
			"session": s.ID,
			"error":   err.Error(),
		})
	}

	m.registry.Remove(s.ID)
	m.closeSocket(s, errors.New(detail))
	m.transition(s, status, detail)
}

// onCredsUpdate persists refreshed credentials. The owner mapping is written
// first so a stored blob always has an owner attached.
func (m *Manager) onCredsUpdate(s *Session, blob []byte) {
	ctx := context.Background()
	if err := m.store.Credentials().SaveOwner(ctx, s.ID, s.OwnerID); err != nil {
		logger.ErrorCF("session", "Owner mapping save failed", map[string]interface{}{
			"session": s.ID,
			"error":   err.Error(),
		})
		return
	}
	if err := m.store.Credentials().Save(ctx, s.ID, blob); err != nil {
		logger.ErrorCF("session", "Credential save failed", map[string]interface{}{
			"session": s.ID,
			"error":   err.Error(),
		})
	}
}

// onMessages normalizes a live batch. History backfill batches are dropped;
// so are our own outbound echoes, which surface via delivery acks instead.
func (m *Manager) onMessages(s *Session, batch wasock.MessageBatch) {
	if batch.Type != wasock.UpsertNotify {
		return
	}

	ctx := context.Background()
	sock := s.Socket()
	for _, raw := range batch.Messages {
		if raw == nil || raw.Key.FromMe {
			continue
		}
		if evt := m.processor.Classify(ctx, s, sock, raw); evt != nil {
			m.events.Publish(*evt)
		}
	}
	m.touch(s)
}

func (m *Manager) onStatusUpdates(s *Session, updates []wasock.StatusUpdate) {
	for _, u := range updates {
		if evt := m.processor.ClassifyAck(s, u); evt != nil {
			m.events.Publish(*evt)
		}
	}
	m.touch(s)
}

func (m *Manager) touch(s *Session) {
	at := s.Touch()
	if err := m.store.Sessions().TouchActivity(context.Background(), s.ID, at); err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.WarnCF("session", "Activity timestamp update failed", map[string]interface{}{
			"session": s.ID,
			"error":   err.Error(),
		})
	}
}

// transition records and announces a lifecycle change.
func (m *Manager) transition(s *Session, status event.Status, detail string) {
	s.setStatus(status)

	err := m.store.Sessions().UpdateStatus(context.Background(), s.ID, string(status))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.WarnCF("session", "Status persist failed", map[string]interface{}{
			"session": s.ID,
			"status":  string(status),
			"error":   err.Error(),
		})
	}

	m.publishStatus(s, status, detail)
}

func (m *Manager) publishStatus(s *Session, status event.Status, detail string) {
	m.events.Publish(event.SessionStatusEvent{
		SessionID: s.ID,
		Status:    status,
		Detail:    detail,
	})
}

func (m *Manager) publishQR(s *Session, code string) {
	img, err := wasock.EncodeQRSVG(code, 256)
	if err != nil {
		logger.ErrorCF("session", "QR encode failed", map[string]interface{}{
			"session": s.ID,
			"error":   err.Error(),
		})
		img = code
	}
	m.events.Publish(event.QREvent{
		SessionID: s.ID,
		QRImage:   img,
		Code:      code,
	})
}
