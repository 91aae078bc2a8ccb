package sitesync

import "github.com/hazyhaar/sitesync/sitesync/internal/store"

// Caller-facing errors. Test with errors.Is.
var (
	ErrInvalidInput       = store.ErrInvalidInput
	ErrNotConfigured      = store.ErrNotConfigured
	ErrAlreadyRunning     = store.ErrAlreadyRunning
	ErrJobNotFound        = store.ErrJobNotFound
	ErrConflictNotFound   = store.ErrConflictNotFound
	ErrConflictNotPending = store.ErrConflictNotPending
	ErrEntryMissing       = store.ErrEntryMissing
	ErrEntryNotFound      = store.ErrEntryNotFound
	ErrConcurrentEdit     = store.ErrConcurrentEdit
	ErrInvalidResolution  = store.ErrInvalidResolution
)
