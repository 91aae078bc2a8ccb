package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/sitesync/dbopen"
)

// RunBatch is everything one sync run writes to the knowledge base.
type RunBatch struct {
	JobID             string
	CompanyID         string
	NewEntries        []*Entry
	Conflicts         []*Conflict
	OutdatedIDs       []string
	CandidatesFound   int
	CandidatesSkipped int
}

// CommitRun applies a run's batch and completes its job in one transaction.
// Either every entry, conflict, outdated marking and the job completion land,
// or none do. The returned job carries the final counts.
func (s *Store) CommitRun(ctx context.Context, b *RunBatch) (*Job, error) {
	var outdated int
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		outdated = 0
		for _, e := range b.NewEntries {
			if err := insertEntry(ctx, tx, e); err != nil {
				return err
			}
		}
		for _, c := range b.Conflicts {
			if err := insertConflict(ctx, tx, c); err != nil {
				return err
			}
		}

		now := time.Now().UnixMilli()
		for _, id := range b.OutdatedIDs {
			res, err := tx.ExecContext(ctx,
				`UPDATE knowledge_entries SET status = ?, version = version + 1, updated_at = ?
				WHERE id = ? AND company_id = ? AND status = ? AND source = ?`,
				EntryOutdated, now, id, b.CompanyID, EntryActive, SourceWebsite)
			if err != nil {
				return fmt.Errorf("mark outdated %s: %w", id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			outdated += int(n)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE sync_jobs SET status = ?, completed_at = ?,
				new_faqs_found = ?, conflicts_found = ?, faqs_marked_outdated = ?,
				candidates_found = ?, candidates_skipped = ?
			WHERE id = ? AND status = ?`,
			JobCompleted, now, len(b.NewEntries), len(b.Conflicts), outdated,
			b.CandidatesFound, b.CandidatesSkipped, b.JobID, JobRunning)
		if err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		return expectOne(res, ErrJobNotActive)
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, b.JobID)
}

// ResolutionWrite is the mutation a conflict resolution applies.
type ResolutionWrite struct {
	CompanyID  string
	ConflictID string
	Status     string // resolved or dismissed
	Resolution string
	ResolvedBy string

	// Update, when set, overwrites the entry's question, answer, source,
	// status and confirmed flag. Update.Version must be the version read
	// before the resolution was computed.
	Update *Entry
	// Insert, when set, is created as a new entry.
	Insert *Entry
	// RequireEntry, when set, fails with ErrEntryMissing unless that entry
	// still exists at commit time.
	RequireEntry string

	ResolvedEntryID string
}

// ApplyResolution moves a pending conflict to its terminal status and
// applies the entry mutation in the same transaction.
func (s *Store) ApplyResolution(ctx context.Context, w *ResolutionWrite) error {
	now := time.Now().UnixMilli()
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE knowledge_conflicts SET status = ?, resolution = ?, resolved_entry_id = ?,
				resolved_by = ?, resolved_at = ?
			WHERE id = ? AND company_id = ? AND status = ?`,
			w.Status, w.Resolution, w.ResolvedEntryID, w.ResolvedBy, now,
			w.ConflictID, w.CompanyID, ConflictPending)
		if err != nil {
			return fmt.Errorf("resolve conflict: %w", err)
		}
		if err := expectOne(res, ErrConflictNotPending); err != nil {
			return err
		}

		if w.RequireEntry != "" {
			if err := entryExists(ctx, tx, w.CompanyID, w.RequireEntry); err != nil {
				return err
			}
		}

		if u := w.Update; u != nil {
			res, err := tx.ExecContext(ctx,
				`UPDATE knowledge_entries SET question = ?, answer = ?, source = ?, status = ?,
					confirmed = ?, version = version + 1, updated_at = ?
				WHERE id = ? AND company_id = ? AND version = ?`,
				u.Question, u.Answer, u.Source, u.Status, boolInt(u.Confirmed), now,
				u.ID, w.CompanyID, u.Version)
			if err != nil {
				return fmt.Errorf("update entry: %w", err)
			}
			if err := expectOne(res, ErrConcurrentEdit); err != nil {
				if missing := entryExists(ctx, tx, w.CompanyID, u.ID); missing != nil {
					return missing
				}
				return err
			}
		}

		if w.Insert != nil {
			if err := insertEntry(ctx, tx, w.Insert); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if w.Update != nil {
		w.Update.Version++
		w.Update.UpdatedAt = now
	}
	return nil
}

func entryExists(ctx context.Context, tx *sql.Tx, companyID, id string) error {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM knowledge_entries WHERE id = ? AND company_id = ?`, id, companyID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrEntryMissing
	}
	return err
}
