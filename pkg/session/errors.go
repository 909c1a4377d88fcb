package session

import "errors"

var (
	// ErrSessionExists is returned when starting a session whose ID is
	// already live in the registry.
	ErrSessionExists = errors.New("session already started")

	// ErrSessionNotFound is returned when the requested session is not in
	// the registry.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotConnected is returned for operations that need an open,
	// paired connection.
	ErrNotConnected = errors.New("session is not connected")
)
