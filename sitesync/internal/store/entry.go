package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const entryColumns = `id, company_id, question, answer, source, status, confirmed, version, created_at, updated_at`

// InsertEntry adds a knowledge entry.
func (s *Store) InsertEntry(ctx context.Context, e *Entry) error {
	return insertEntry(ctx, s.DB, e)
}

func insertEntry(ctx context.Context, x execer, e *Entry) error {
	now := time.Now().UnixMilli()
	if e.CreatedAt == 0 {
		e.CreatedAt = now
	}
	if e.UpdatedAt == 0 {
		e.UpdatedAt = now
	}
	if e.Source == "" {
		e.Source = SourceManual
	}
	if e.Status == "" {
		e.Status = EntryActive
	}
	if e.Version == 0 {
		e.Version = 1
	}
	_, err := x.ExecContext(ctx,
		`INSERT INTO knowledge_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CompanyID, e.Question, e.Answer, e.Source, e.Status, boolInt(e.Confirmed),
		e.Version, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert entry %s: %w", e.ID, err)
	}
	return nil
}

// GetEntry returns an entry of the company, or nil.
func (s *Store) GetEntry(ctx context.Context, companyID, id string) (*Entry, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM knowledge_entries WHERE id = ? AND company_id = ?`, id, companyID)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// ListEntries returns the company's entries, optionally filtered by status.
func (s *Store) ListEntries(ctx context.Context, companyID, status string) ([]*Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM knowledge_entries WHERE company_id = ?`
	args := []any{companyID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at, id`
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ActiveEntries returns the entries a sync run matches candidates against.
func (s *Store) ActiveEntries(ctx context.Context, companyID string) ([]*Entry, error) {
	return s.ListEntries(ctx, companyID, EntryActive)
}

// DeleteEntry removes an entry. Deletion is a human action; the sync engine
// never calls it. Open conflicts that reference the entry stay in place.
func (s *Store) DeleteEntry(ctx context.Context, companyID, id string) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM knowledge_entries WHERE id = ? AND company_id = ?`, id, companyID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return expectOne(res, ErrEntryNotFound)
}

func scanEntry(r rowScanner) (*Entry, error) {
	var e Entry
	var confirmed int
	err := r.Scan(&e.ID, &e.CompanyID, &e.Question, &e.Answer, &e.Source, &e.Status,
		&confirmed, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	e.Confirmed = confirmed != 0
	return &e, nil
}
