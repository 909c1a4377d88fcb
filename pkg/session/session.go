package session

import (
	"sync"
	"time"

	"github.com/sendnode/wagateway/pkg/event"
	"github.com/sendnode/wagateway/pkg/wasock"
)

// Session is the live handle for one managed connection. The socket slot is
// swappable so a reconnect can rebuild the transport without replacing the
// handle other goroutines already hold.
type Session struct {
	ID      string
	OwnerID string
	Name    string
	Created time.Time

	mu           sync.RWMutex
	sock         wasock.Socket
	status       event.Status
	lastQR       string
	pairing      bool
	reconnecting bool
	lastActivity time.Time
}

func newSession(id, ownerID, name string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		OwnerID:      ownerID,
		Name:         name,
		Created:      now,
		status:       event.StatusStarting,
		lastActivity: now,
	}
}

// Socket returns the current transport, nil while a rebuild is in flight.
func (s *Session) Socket() wasock.Socket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sock
}

// swapSocket installs a new transport and returns the previous one.
func (s *Session) swapSocket(sock wasock.Socket) wasock.Socket {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.sock
	s.sock = sock
	return old
}

// Status returns the session's current lifecycle state.
func (s *Session) Status() event.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) setStatus(status event.Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Connected reports whether the session is paired and online.
func (s *Session) Connected() bool {
	return s.Status() == event.StatusConnected
}

// observeQR records a pairing challenge. It returns false when the challenge
// should not be surfaced: a repeat of the current code, or pairing already
// confirmed. The repeat check assumes the transport rotates challenge codes
// on expiry; a reissued identical code stays suppressed until a connect
// clears lastQR.
func (s *Session) observeQR(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pairing || code == s.lastQR {
		return false
	}
	s.lastQR = code
	return true
}

// confirmPairing marks the QR scan as acknowledged so trailing challenge
// ticks are dropped.
func (s *Session) confirmPairing() {
	s.mu.Lock()
	s.pairing = true
	s.mu.Unlock()
}

// markOnline clears the pairing and reconnect bookkeeping after the
// connection opens.
func (s *Session) markOnline() {
	s.mu.Lock()
	s.pairing = false
	s.reconnecting = false
	s.lastQR = ""
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// beginReconnect sets the reconnect flag. It returns false when a rebuild is
// already in flight.
func (s *Session) beginReconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reconnecting {
		return false
	}
	s.reconnecting = true
	return true
}

func (s *Session) endReconnect() {
	s.mu.Lock()
	s.reconnecting = false
	s.mu.Unlock()
}

// Reconnecting reports whether a socket rebuild is in flight.
func (s *Session) Reconnecting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reconnecting
}

// Touch bumps the session's last activity timestamp.
func (s *Session) Touch() time.Time {
	now := time.Now()
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
	return now
}

// LastActivity returns when the session last saw traffic.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}
