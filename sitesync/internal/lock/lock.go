// Package lock provides the per-company exclusive lock held for the whole
// duration of a sync run. Two implementations share the Locker interface:
// a row in the sync_locks table and a Redis key. Both carry a TTL so a
// crashed holder cannot block a company forever.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/hazyhaar/sitesync/idgen"
)

// ErrHeld is returned when another holder owns an unexpired lock.
var ErrHeld = errors.New("lock: held by another run")

// Lease is a held lock.
type Lease interface {
	// Release frees the lock if this lease still owns it. Releasing an
	// expired or taken-over lease is not an error.
	Release(ctx context.Context) error
	Token() string
}

// Locker acquires per-company leases.
type Locker interface {
	Acquire(ctx context.Context, companyID string, ttl time.Duration) (Lease, error)
}

var newToken = idgen.NanoID(16)
