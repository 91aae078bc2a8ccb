package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/sitesync/dbopen"
)

// SQLiteLocker stores leases in the sync_locks table. An expired row is
// taken over atomically by the next Acquire.
type SQLiteLocker struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite returns a locker on db. The sitesync schema must be applied.
func NewSQLite(db *sql.DB) *SQLiteLocker {
	return &SQLiteLocker{db: db, now: time.Now}
}

// Acquire takes the company's lock for ttl or returns ErrHeld.
func (l *SQLiteLocker) Acquire(ctx context.Context, companyID string, ttl time.Duration) (Lease, error) {
	token := newToken()
	now := l.now().UnixMilli()
	res, err := dbopen.Exec(ctx, l.db,
		`INSERT INTO sync_locks (company_id, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(company_id) DO UPDATE SET
			holder = excluded.holder,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE sync_locks.expires_at <= ?`,
		companyID, token, now, now+ttl.Milliseconds(), now)
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", companyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", companyID, err)
	}
	if n == 0 {
		return nil, ErrHeld
	}
	return &sqliteLease{db: l.db, companyID: companyID, token: token}, nil
}

type sqliteLease struct {
	db        *sql.DB
	companyID string
	token     string
}

func (s *sqliteLease) Token() string { return s.token }

func (s *sqliteLease) Release(ctx context.Context) error {
	_, err := dbopen.Exec(ctx, s.db,
		`DELETE FROM sync_locks WHERE company_id = ? AND holder = ?`, s.companyID, s.token)
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", s.companyID, err)
	}
	return nil
}
