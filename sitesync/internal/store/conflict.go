package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const conflictColumns = `id, company_id, job_id, entry_id, current_question, current_answer,
	website_question, website_answer, similarity_score, status, resolution,
	resolved_entry_id, resolved_by, resolved_at, created_at`

func insertConflict(ctx context.Context, x execer, c *Conflict) error {
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UnixMilli()
	}
	if c.Status == "" {
		c.Status = ConflictPending
	}
	_, err := x.ExecContext(ctx,
		`INSERT INTO knowledge_conflicts (id, company_id, job_id, entry_id,
			current_question, current_answer, website_question, website_answer,
			similarity_score, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CompanyID, c.JobID, c.EntryID, c.CurrentQuestion, c.CurrentAnswer,
		c.WebsiteQuestion, c.WebsiteAnswer, c.SimilarityScore, c.Status, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert conflict %s: %w", c.ID, err)
	}
	return nil
}

// GetConflict returns a conflict of the company, or nil.
func (s *Store) GetConflict(ctx context.Context, companyID, id string) (*Conflict, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM knowledge_conflicts WHERE id = ? AND company_id = ?`, id, companyID)
	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListConflicts returns the company's conflicts, newest first, optionally
// filtered by status.
func (s *Store) ListConflicts(ctx context.Context, companyID, status string, limit int) ([]*Conflict, error) {
	q := `SELECT ` + conflictColumns + ` FROM knowledge_conflicts WHERE company_id = ?`
	args := []any{companyID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var out []*Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PendingConflictKeys returns, for the company's pending conflicts, the set
// of entry_id + website question + website answer keys. A run uses it to
// avoid reopening a conflict that is still waiting for a human.
func (s *Store) PendingConflictKeys(ctx context.Context, companyID string) (map[string]bool, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT entry_id, website_question, website_answer FROM knowledge_conflicts
		WHERE company_id = ? AND status = ?`, companyID, ConflictPending)
	if err != nil {
		return nil, fmt.Errorf("pending conflict keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var entryID, q, a string
		if err := rows.Scan(&entryID, &q, &a); err != nil {
			return nil, fmt.Errorf("scan conflict key: %w", err)
		}
		keys[ConflictKey(entryID, q, a)] = true
	}
	return keys, rows.Err()
}

// DecidedConflictKeys returns the keys of conflicts a human already decided.
// A dismissed or keep_current conflict is keyed with DecidedKey, so it only
// stays quiet while the entry still reads as it did when the conflict was
// raised. A merge or use_website resolution folded the website text into the
// entry and is keyed with ConflictKey.
func (s *Store) DecidedConflictKeys(ctx context.Context, companyID string) (map[string]bool, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT entry_id, current_question, current_answer, website_question, website_answer, resolution
		FROM knowledge_conflicts WHERE company_id = ? AND status IN (?, ?)`,
		companyID, ConflictResolved, ConflictDismissed)
	if err != nil {
		return nil, fmt.Errorf("decided conflict keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var entryID, cq, ca, wq, wa, resolution string
		if err := rows.Scan(&entryID, &cq, &ca, &wq, &wa, &resolution); err != nil {
			return nil, fmt.Errorf("scan conflict key: %w", err)
		}
		switch resolution {
		case "merge", "use_website":
			keys[ConflictKey(entryID, wq, wa)] = true
		default:
			keys[DecidedKey(entryID, cq, ca, wq, wa)] = true
		}
	}
	return keys, rows.Err()
}

// ConflictKey identifies a conflict by what it is about.
func ConflictKey(entryID, websiteQuestion, websiteAnswer string) string {
	return entryID + "\x00" + websiteQuestion + "\x00" + websiteAnswer
}

// DecidedKey is ConflictKey plus the entry text the decision was made against.
func DecidedKey(entryID, currentQuestion, currentAnswer, websiteQuestion, websiteAnswer string) string {
	return ConflictKey(entryID, websiteQuestion, websiteAnswer) + "\x00" + currentQuestion + "\x00" + currentAnswer
}

func scanConflict(r rowScanner) (*Conflict, error) {
	var c Conflict
	var resolvedAt sql.NullInt64
	err := r.Scan(&c.ID, &c.CompanyID, &c.JobID, &c.EntryID, &c.CurrentQuestion, &c.CurrentAnswer,
		&c.WebsiteQuestion, &c.WebsiteAnswer, &c.SimilarityScore, &c.Status, &c.Resolution,
		&c.ResolvedEntryID, &c.ResolvedBy, &resolvedAt, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan conflict: %w", err)
	}
	if resolvedAt.Valid {
		v := resolvedAt.Int64
		c.ResolvedAt = &v
	}
	return &c, nil
}
