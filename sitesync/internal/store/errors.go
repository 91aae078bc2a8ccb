package store

import "errors"

// Caller-facing errors. The sitesync package re-exports them.
var (
	ErrInvalidInput       = errors.New("sitesync: invalid input")
	ErrNotConfigured      = errors.New("sitesync: website sync is not configured")
	ErrAlreadyRunning     = errors.New("sitesync: a sync job is already running for this company")
	ErrJobNotFound        = errors.New("sitesync: job not found")
	ErrJobNotActive       = errors.New("sitesync: job already reached a terminal status")
	ErrConflictNotFound   = errors.New("sitesync: conflict not found")
	ErrConflictNotPending = errors.New("sitesync: conflict is not pending")
	ErrEntryMissing       = errors.New("sitesync: knowledge entry no longer exists")
	ErrEntryNotFound      = errors.New("sitesync: knowledge entry not found")
	ErrConcurrentEdit     = errors.New("sitesync: knowledge entry was modified concurrently")
	ErrInvalidResolution  = errors.New("sitesync: invalid resolution")
)
