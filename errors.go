package stash

import (
	"errors"
	"fmt"
)

// Common errors returned by the Stash client.
var (
	// ErrNotFound is returned when an article is not found.
	ErrNotFound = errors.New("article not found")

	// ErrEmptyURL is returned when an article is saved without a URL.
	ErrEmptyURL = errors.New("article URL cannot be empty")

	// ErrEmptyTitle is returned when an article is saved without a title.
	ErrEmptyTitle = errors.New("article title cannot be empty")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrSyncInProgress is returned when SyncNow is called while a sync
	// cycle is already running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrSyncTimeout is returned when a sync cycle exceeds its budget.
	ErrSyncTimeout = errors.New("sync cycle timed out")

	// ErrAuthRequired is returned when no valid credential is available.
	// Queue draining halts immediately on this error.
	ErrAuthRequired = errors.New("authentication required")

	// ErrOffline is returned when a network operation is attempted without
	// a configured remote.
	ErrOffline = errors.New("operation unavailable in offline mode")

	// ErrOperationNotFound is returned when a queued sync operation does
	// not exist.
	ErrOperationNotFound = errors.New("sync operation not found")
)

// ValidationError is returned when configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// SyncError is returned when a remote operation fails with details.
// Extractable via errors.As(). Supports Unwrap().
type SyncError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync: %s failed (status %d): %v", e.Operation, e.StatusCode, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsAuthError reports whether err signals an authentication failure,
// either the ErrAuthRequired sentinel or a SyncError carrying a 401/403.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrAuthRequired) {
		return true
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.StatusCode == 401 || se.StatusCode == 403
	}
	return false
}

// RemotePayloadError is returned when a fetched remote payload fails
// structural validation. The pull phase aborts without applying anything.
type RemotePayloadError struct {
	Total   int
	Invalid int
	Reason  string
}

func (e *RemotePayloadError) Error() string {
	if e.Total > 0 {
		return fmt.Sprintf("remote payload rejected: %s (%d of %d entries invalid)", e.Reason, e.Invalid, e.Total)
	}
	return fmt.Sprintf("remote payload rejected: %s", e.Reason)
}
