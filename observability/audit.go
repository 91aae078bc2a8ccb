// Package observability records what the sync engine did: an audit row per
// sync run and per conflict resolution, and timeseries metrics about runs.
//
// Persistence is asynchronous. A failing observability store never blocks
// a sync run; errors are logged through slog and dropped.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/sitesync/idgen"
	"github.com/hazyhaar/sitesync/kit"
)

// AuditEntry is a single operation record in the audit trail.
type AuditEntry struct {
	EntryID   string    `json:"entry_id"`
	Timestamp time.Time `json:"timestamp"`
	CompanyID string    `json:"company_id"`
	Component string    `json:"component"` // "syncjob", "resolve", "config"
	Operation string    `json:"operation"` // "run_sync", "resolve_conflict", ...

	UserID    string `json:"user_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Parameters   string `json:"parameters"` // JSON
	Result       string `json:"result,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	Status       string `json:"status"` // "success", "error"
}

// AuditFilter narrows Query results. Empty fields match everything.
type AuditFilter struct {
	CompanyID string
	Component string
	Operation string
	Status    string
	Since     time.Time
	Limit     int // default 100
}

// AuditLogger persists audit entries in batches from a background goroutine.
type AuditLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	ch     chan *AuditEntry
	stop   chan struct{}
	done   chan struct{}
}

// AuditOption configures an AuditLogger.
type AuditOption func(*AuditLogger)

// WithAuditIDGenerator sets a custom ID generator for audit entry IDs.
func WithAuditIDGenerator(gen idgen.Generator) AuditOption {
	return func(a *AuditLogger) { a.newID = gen }
}

// WithAuditLogger sets the slog logger used for persistence failures.
func WithAuditLogger(l *slog.Logger) AuditOption {
	return func(a *AuditLogger) { a.logger = l }
}

// NewAuditLogger starts an async audit logger. bufferSize bounds the queue.
func NewAuditLogger(db *sql.DB, bufferSize int, opts ...AuditOption) *AuditLogger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	a := &AuditLogger{
		db:     db,
		newID:  idgen.Prefixed(idgen.PrefixAudit, idgen.Default),
		logger: slog.Default(),
		ch:     make(chan *AuditEntry, bufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	go a.flushLoop()
	return a
}

// Log inserts an entry synchronously.
func (a *AuditLogger) Log(ctx context.Context, entry *AuditEntry) error {
	a.fillDefaults(entry)
	return a.insert(ctx, entry)
}

// LogAsync queues an entry. When the buffer is full it falls back to a
// synchronous insert.
func (a *AuditLogger) LogAsync(entry *AuditEntry) {
	a.fillDefaults(entry)
	select {
	case a.ch <- entry:
	default:
		a.logger.Warn("observability: audit buffer full, sync fallback", "operation", entry.Operation)
		if err := a.insert(context.Background(), entry); err != nil {
			a.logger.Error("observability: audit sync fallback", "error", err)
		}
	}
}

// NewEntry builds an entry from an operation's parameters, result and error.
// The acting user and request id are read from ctx.
func NewEntry(ctx context.Context, companyID, component, operation string, params, result any, err error, d time.Duration) *AuditEntry {
	e := &AuditEntry{
		Timestamp:  time.Now(),
		CompanyID:  companyID,
		Component:  component,
		Operation:  operation,
		UserID:     kit.GetUserID(ctx),
		RequestID:  kit.GetRequestID(ctx),
		Parameters: "{}",
		DurationMs: d.Milliseconds(),
	}
	if params != nil {
		if b, mErr := json.Marshal(params); mErr == nil {
			e.Parameters = string(b)
		}
	}
	if err != nil {
		e.Status = "error"
		e.ErrorMessage = err.Error()
		return e
	}
	e.Status = "success"
	if result != nil {
		if b, mErr := json.Marshal(result); mErr == nil {
			e.Result = string(b)
		}
	}
	return e
}

// Query returns entries matching f, newest first.
func (a *AuditLogger) Query(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	q := `SELECT entry_id, timestamp, company_id, component, operation,
		user_id, request_id, parameters, result, error_message, duration_ms, status
		FROM audit_log WHERE 1=1`
	var args []any
	if f.CompanyID != "" {
		q += " AND company_id = ?"
		args = append(args, f.CompanyID)
	}
	if f.Component != "" {
		q += " AND component = ?"
		args = append(args, f.Component)
	}
	if f.Operation != "" {
		q += " AND operation = ?"
		args = append(args, f.Operation)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	q += " ORDER BY timestamp DESC, entry_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts int64
		if err := rows.Scan(&e.EntryID, &ts, &e.CompanyID, &e.Component, &e.Operation,
			&e.UserID, &e.RequestID, &e.Parameters, &e.Result, &e.ErrorMessage,
			&e.DurationMs, &e.Status); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than retentionDays.
func (a *AuditLogger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	res, err := a.db.ExecContext(ctx, "DELETE FROM audit_log WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup audit log: %w", err)
	}
	return res.RowsAffected()
}

// Close drains the queue and stops the flush goroutine.
func (a *AuditLogger) Close() error {
	close(a.stop)
	<-a.done
	return nil
}

func (a *AuditLogger) fillDefaults(e *AuditEntry) {
	if e.EntryID == "" {
		e.EntryID = a.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Parameters == "" {
		e.Parameters = "{}"
	}
	if e.Status == "" {
		if e.ErrorMessage != "" {
			e.Status = "error"
		} else {
			e.Status = "success"
		}
	}
}

const insertAudit = `INSERT INTO audit_log
	(entry_id, timestamp, company_id, component, operation, user_id, request_id,
	 parameters, result, error_message, duration_ms, status)
	VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`

func (a *AuditLogger) flushLoop() {
	defer close(a.done)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	batch := make([]*AuditEntry, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			a.logger.Error("observability: audit begin tx", "error", err)
			return
		}
		stmt, err := tx.PrepareContext(ctx, insertAudit)
		if err != nil {
			tx.Rollback()
			a.logger.Error("observability: audit prepare", "error", err)
			return
		}
		defer stmt.Close()

		for _, e := range batch {
			if _, err := stmt.ExecContext(ctx, a.args(e)...); err != nil {
				a.logger.Error("observability: audit insert", "error", err, "entry_id", e.EntryID)
			}
		}
		if err := tx.Commit(); err != nil {
			a.logger.Error("observability: audit commit", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-a.stop:
			for {
				select {
				case e := <-a.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-a.ch:
			batch = append(batch, e)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (a *AuditLogger) args(e *AuditEntry) []any {
	return []any{
		e.EntryID, e.Timestamp.UnixMilli(), e.CompanyID, e.Component, e.Operation,
		e.UserID, e.RequestID, e.Parameters, e.Result, e.ErrorMessage, e.DurationMs, e.Status,
	}
}

func (a *AuditLogger) insert(ctx context.Context, e *AuditEntry) error {
	_, err := a.db.ExecContext(ctx, insertAudit, a.args(e)...)
	return err
}
