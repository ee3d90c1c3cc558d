package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials marks a roster entry without username or
	// password. Fatal for that session only.
	ErrMissingCredentials = errors.New("username or password missing")

	// ErrNoSyncCursor marks a sync response that carried no next-batch
	// cursor. The sync counts as failed and the old cursor is kept.
	ErrNoSyncCursor = errors.New("sync response missing next-batch cursor")
)

// RegistrationError is terminal for a user: the server demanded an
// interactive-auth flow this engine does not support, or the response was
// unparseable. Never retried.
type RegistrationError struct {
	Username string
	Reason   string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration failed for %s: %s", e.Username, e.Reason)
}

// RoomOperationError reports a create or join that exhausted its retry
// budget. Non-fatal: the session logs it and moves on.
type RoomOperationError struct {
	Op       string
	Room     string
	Attempts int
	Err      error
}

func (e *RoomOperationError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Op, e.Room, e.Attempts, e.Err)
}

func (e *RoomOperationError) Unwrap() error { return e.Err }
