package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const jobColumns = `id, company_id, status, trigger_type, started_at, completed_at,
	new_faqs_found, conflicts_found, faqs_marked_outdated,
	candidates_found, candidates_skipped, error`

// InsertJob records a new pending job.
func (s *Store) InsertJob(ctx context.Context, j *Job) error {
	if j.StartedAt == 0 {
		j.StartedAt = time.Now().UnixMilli()
	}
	if j.Status == "" {
		j.Status = JobPending
	}
	if j.Trigger == "" {
		j.Trigger = TriggerManual
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO sync_jobs (id, company_id, status, trigger_type, started_at) VALUES (?, ?, ?, ?, ?)`,
		j.ID, j.CompanyID, j.Status, j.Trigger, j.StartedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// MarkJobRunning moves a pending job to running.
func (s *Store) MarkJobRunning(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE sync_jobs SET status = ? WHERE id = ? AND status = ?`,
		JobRunning, id, JobPending)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	return expectOne(res, ErrJobNotActive)
}

// FailJob writes the failed terminal state. Jobs already terminal are left
// untouched and ErrJobNotActive is returned.
func (s *Store) FailJob(ctx context.Context, id, msg string, found, skipped int) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE sync_jobs SET status = ?, completed_at = ?, error = ?,
			candidates_found = ?, candidates_skipped = ?
		WHERE id = ? AND status IN (?, ?)`,
		JobFailed, time.Now().UnixMilli(), msg, found, skipped, id, JobPending, JobRunning)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return expectOne(res, ErrJobNotActive)
}

// GetJob returns a job by id, or nil.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// ListJobs returns the company's most recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, companyID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM sync_jobs WHERE company_id = ?
		ORDER BY started_at DESC, id DESC LIMIT ?`, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// FailStaleJobs marks jobs left pending or running by a crashed process as
// failed. Called at startup before the scheduler runs.
func (s *Store) FailStaleJobs(ctx context.Context, olderThan time.Time, msg string) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE sync_jobs SET status = ?, completed_at = ?, error = ?
		WHERE status IN (?, ?) AND started_at < ?`,
		JobFailed, time.Now().UnixMilli(), msg, JobPending, JobRunning, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func scanJob(r rowScanner) (*Job, error) {
	var j Job
	var completed sql.NullInt64
	err := r.Scan(&j.ID, &j.CompanyID, &j.Status, &j.Trigger, &j.StartedAt, &completed,
		&j.NewFAQsFound, &j.ConflictsFound, &j.FAQsMarkedOutdated,
		&j.CandidatesFound, &j.CandidatesSkipped, &j.Error)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if completed.Valid {
		v := completed.Int64
		j.CompletedAt = &v
	}
	return &j, nil
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return notFound
	}
	return nil
}
