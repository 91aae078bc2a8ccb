package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const configColumns = `company_id, enabled, website_url, sync_interval_hours,
	auto_approve_website_faqs, notify_on_conflicts, notify_on_new_faqs, created_at, updated_at`

// UpsertConfig inserts or replaces a company's configuration. created_at is
// preserved on update.
func (s *Store) UpsertConfig(ctx context.Context, c *SyncConfig) error {
	now := time.Now().UnixMilli()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.SyncIntervalHours < 1 {
		c.SyncIntervalHours = 24
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO sync_configs (`+configColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id) DO UPDATE SET
			enabled=excluded.enabled, website_url=excluded.website_url,
			sync_interval_hours=excluded.sync_interval_hours,
			auto_approve_website_faqs=excluded.auto_approve_website_faqs,
			notify_on_conflicts=excluded.notify_on_conflicts,
			notify_on_new_faqs=excluded.notify_on_new_faqs,
			updated_at=excluded.updated_at`,
		c.CompanyID, boolInt(c.Enabled), c.WebsiteURL, c.SyncIntervalHours,
		boolInt(c.AutoApproveWebsiteFAQs), boolInt(c.NotifyOnConflicts), boolInt(c.NotifyOnNewFAQs),
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert config: %w", err)
	}
	return nil
}

// GetConfig returns the company's configuration, or nil if none was saved.
func (s *Store) GetConfig(ctx context.Context, companyID string) (*SyncConfig, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM sync_configs WHERE company_id = ?`, companyID)
	c, err := scanConfig(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// DueConfigs returns enabled configurations whose interval has elapsed since
// their most recent job started, or that never ran. Oldest first.
func (s *Store) DueConfigs(ctx context.Context, now time.Time) ([]*SyncConfig, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT c.company_id, c.enabled, c.website_url, c.sync_interval_hours,
			c.auto_approve_website_faqs, c.notify_on_conflicts, c.notify_on_new_faqs,
			c.created_at, c.updated_at
		FROM sync_configs c
		LEFT JOIN (
			SELECT company_id, MAX(started_at) AS last_started
			FROM sync_jobs GROUP BY company_id
		) j ON j.company_id = c.company_id
		WHERE c.enabled = 1 AND c.website_url != ''
		  AND (j.last_started IS NULL OR j.last_started + c.sync_interval_hours * 3600000 <= ?)
		ORDER BY COALESCE(j.last_started, 0), c.company_id`,
		now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("due configs: %w", err)
	}
	defer rows.Close()

	var out []*SyncConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(r rowScanner) (*SyncConfig, error) {
	var c SyncConfig
	var enabled, auto, notifyConf, notifyNew int
	err := r.Scan(&c.CompanyID, &enabled, &c.WebsiteURL, &c.SyncIntervalHours,
		&auto, &notifyConf, &notifyNew, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan config: %w", err)
	}
	c.Enabled = enabled != 0
	c.AutoApproveWebsiteFAQs = auto != 0
	c.NotifyOnConflicts = notifyConf != 0
	c.NotifyOnNewFAQs = notifyNew != 0
	return &c, nil
}
