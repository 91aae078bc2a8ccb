package store

import (
	"database/sql"
	"fmt"
)

// Schema is the complete sitesync schema.
const Schema = `
-- One row per company
CREATE TABLE IF NOT EXISTS sync_configs (
    company_id                TEXT PRIMARY KEY,
    enabled                   INTEGER NOT NULL DEFAULT 0,
    website_url               TEXT NOT NULL DEFAULT '',
    sync_interval_hours       INTEGER NOT NULL DEFAULT 24,
    auto_approve_website_faqs INTEGER NOT NULL DEFAULT 0,
    notify_on_conflicts       INTEGER NOT NULL DEFAULT 1,
    notify_on_new_faqs        INTEGER NOT NULL DEFAULT 1,
    created_at                INTEGER NOT NULL,
    updated_at                INTEGER NOT NULL
);

-- Append-only job log
CREATE TABLE IF NOT EXISTS sync_jobs (
    id                   TEXT PRIMARY KEY,
    company_id           TEXT NOT NULL,
    status               TEXT NOT NULL DEFAULT 'pending',
    trigger_type         TEXT NOT NULL DEFAULT 'manual',
    started_at           INTEGER NOT NULL,
    completed_at         INTEGER,
    new_faqs_found       INTEGER NOT NULL DEFAULT 0,
    conflicts_found      INTEGER NOT NULL DEFAULT 0,
    faqs_marked_outdated INTEGER NOT NULL DEFAULT 0,
    candidates_found     INTEGER NOT NULL DEFAULT 0,
    candidates_skipped   INTEGER NOT NULL DEFAULT 0,
    error                TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sync_jobs_company ON sync_jobs(company_id, started_at DESC);

-- Knowledge base
CREATE TABLE IF NOT EXISTS knowledge_entries (
    id          TEXT PRIMARY KEY,
    company_id  TEXT NOT NULL,
    question    TEXT NOT NULL,
    answer      TEXT NOT NULL,
    source      TEXT NOT NULL DEFAULT 'manual',
    status      TEXT NOT NULL DEFAULT 'active',
    confirmed   INTEGER NOT NULL DEFAULT 1,
    version     INTEGER NOT NULL DEFAULT 1,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_company ON knowledge_entries(company_id, status);

-- Conflicts; entry_id is deliberately not a foreign key, entries may be deleted
CREATE TABLE IF NOT EXISTS knowledge_conflicts (
    id                TEXT PRIMARY KEY,
    company_id        TEXT NOT NULL,
    job_id            TEXT NOT NULL REFERENCES sync_jobs(id),
    entry_id          TEXT NOT NULL,
    current_question  TEXT NOT NULL,
    current_answer    TEXT NOT NULL,
    website_question  TEXT NOT NULL,
    website_answer    TEXT NOT NULL,
    similarity_score  REAL NOT NULL,
    status            TEXT NOT NULL DEFAULT 'pending',
    resolution        TEXT NOT NULL DEFAULT '',
    resolved_entry_id TEXT NOT NULL DEFAULT '',
    resolved_by       TEXT NOT NULL DEFAULT '',
    resolved_at       INTEGER,
    created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conflicts_company ON knowledge_conflicts(company_id, status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_conflicts_entry ON knowledge_conflicts(entry_id, status);

-- Per-company run lock
CREATE TABLE IF NOT EXISTS sync_locks (
    company_id  TEXT PRIMARY KEY,
    holder      TEXT NOT NULL,
    acquired_at INTEGER NOT NULL,
    expires_at  INTEGER NOT NULL
);
`

type columnMigration struct {
	table, column, ddl string
}

// migrations adds columns introduced after the first schema release to
// databases created before them.
var migrations = []columnMigration{
	{"sync_jobs", "candidates_skipped", `ALTER TABLE sync_jobs ADD COLUMN candidates_skipped INTEGER NOT NULL DEFAULT 0`},
	{"knowledge_conflicts", "resolved_by", `ALTER TABLE knowledge_conflicts ADD COLUMN resolved_by TEXT NOT NULL DEFAULT ''`},
}

// ApplySchema creates all tables and runs column migrations.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for _, m := range migrations {
		if err := applyColumnMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

// applyColumnMigration adds a column if it doesn't exist (idempotent).
func applyColumnMigration(db *sql.DB, m columnMigration) error {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&count)
	if err != nil {
		return fmt.Errorf("migration %s.%s: %w", m.table, m.column, err)
	}
	if count > 0 {
		return nil
	}
	if _, err := db.Exec(m.ddl); err != nil {
		return fmt.Errorf("migration %s.%s: %w", m.table, m.column, err)
	}
	return nil
}
