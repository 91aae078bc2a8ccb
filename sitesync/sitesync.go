// Package sitesync keeps each company's question/answer knowledge base in
// step with the company's public website. A scheduler runs due syncs; each
// run creates entries for new FAQs, raises conflicts where the website
// disagrees with an existing entry and marks website entries that
// disappeared as outdated. Conflicts wait for a human decision.
package sitesync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hazyhaar/sitesync/extract"
	"github.com/hazyhaar/sitesync/idgen"
	"github.com/hazyhaar/sitesync/kit"
	"github.com/hazyhaar/sitesync/observability"
	"github.com/hazyhaar/sitesync/sitesync/internal/classify"
	"github.com/hazyhaar/sitesync/sitesync/internal/fetch"
	"github.com/hazyhaar/sitesync/sitesync/internal/lock"
	"github.com/hazyhaar/sitesync/sitesync/internal/match"
	"github.com/hazyhaar/sitesync/sitesync/internal/resolve"
	"github.com/hazyhaar/sitesync/sitesync/internal/scheduler"
	"github.com/hazyhaar/sitesync/sitesync/internal/store"
	"github.com/hazyhaar/sitesync/sitesync/internal/syncjob"
)

// Service is the sitesync orchestrator.
type Service struct {
	store     *store.Store
	orch      *syncjob.Orchestrator
	resolver  *resolve.Resolver
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	config    *Config

	fetcher      Fetcher
	extractor    Extractor
	merger       Merger
	notifier     Notifier
	matcher      syncjob.Matcher
	rdb          goredis.UniversalClient
	ownsRedis    bool
	audit        *observability.AuditLogger
	metrics      *observability.MetricsManager
	urlValidator func(string) error
	newEntryID   idgen.Generator

	stop context.CancelFunc
	wg   sync.WaitGroup
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) ServiceOption {
	return func(s *Service) { s.fetcher = f }
}

// WithExtractor replaces the extractor. When it also implements Merger and
// no merger is set, it is used for merge resolutions.
func WithExtractor(x Extractor) ServiceOption {
	return func(s *Service) { s.extractor = x }
}

// WithMerger sets the merger used by merge resolutions.
func WithMerger(m Merger) ServiceOption {
	return func(s *Service) { s.merger = m }
}

// WithNotifier sets the notifier. Default: a LogNotifier, or a
// RedisNotifier when Redis and Notify.RedisChannel are configured.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithRedis uses rdb for the per-company lock and notifications. The
// caller keeps ownership of rdb.
func WithRedis(rdb goredis.UniversalClient) ServiceOption {
	return func(s *Service) { s.rdb = rdb }
}

// WithAudit records runs and resolutions in the audit log.
func WithAudit(a *observability.AuditLogger) ServiceOption {
	return func(s *Service) { s.audit = a }
}

// WithMetrics records run and resolution metrics.
func WithMetrics(m *observability.MetricsManager) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithURLValidator overrides the URL check applied before every fetch and
// redirect. Default: horosafe.ValidateURL.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(s *Service) { s.urlValidator = fn }
}

func withMatcher(m syncjob.Matcher) ServiceOption {
	return func(s *Service) { s.matcher = m }
}

// New creates a Service on db and applies the sitesync schema.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("sitesync: apply schema: %w", err)
	}

	svc := &Service{
		store:      store.NewStore(db),
		logger:     logger,
		config:     cfg,
		newEntryID: idgen.Prefixed(idgen.PrefixEntry, idgen.Default),
	}
	for _, opt := range opts {
		opt(svc)
	}

	if svc.fetcher == nil {
		fc := cfg.Fetch
		if svc.urlValidator != nil {
			fc.URLValidator = svc.urlValidator
		}
		svc.fetcher = fetch.New(fc)
	}
	if svc.extractor == nil {
		if cfg.ExtractorURL != "" {
			svc.extractor = extract.NewRemote(cfg.ExtractorURL, nil)
		} else {
			svc.extractor = extract.NewHTML()
		}
	}
	if svc.merger == nil {
		if m, ok := svc.extractor.(Merger); ok {
			svc.merger = m
		} else {
			svc.merger = extract.NewHTML()
		}
	}
	if svc.rdb == nil && cfg.Lock.RedisAddr != "" {
		rdb, err := lock.DialRedis(context.Background(), cfg.Lock.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("sitesync: %w", err)
		}
		svc.rdb = rdb
		svc.ownsRedis = true
	}
	if svc.notifier == nil {
		if svc.rdb != nil && cfg.Notify.RedisChannel != "" {
			svc.notifier = NewRedisNotifier(svc.rdb, cfg.Notify.RedisChannel, logger)
		} else {
			svc.notifier = NewLogNotifier(logger)
		}
	}

	var locker lock.Locker = lock.NewSQLite(db)
	if svc.rdb != nil {
		locker = lock.NewRedis(svc.rdb, cfg.Lock.Prefix)
	}
	if svc.matcher == nil {
		svc.matcher = match.New(cfg.Match)
	}

	orchOpts := []syncjob.Option{syncjob.WithNotifier(svc.notifier)}
	resOpts := []resolve.Option{}
	if svc.audit != nil {
		orchOpts = append(orchOpts, syncjob.WithAudit(svc.audit))
		resOpts = append(resOpts, resolve.WithAudit(svc.audit))
	}
	if svc.metrics != nil {
		orchOpts = append(orchOpts, syncjob.WithMetrics(svc.metrics))
		resOpts = append(resOpts, resolve.WithMetrics(svc.metrics))
	}
	if _, joined := svc.merger.(*extract.HTMLExtractor); joined {
		resOpts = append(resOpts, resolve.WithUnconfirmedMerge())
	}

	svc.orch = syncjob.New(syncjob.Deps{
		Store:      svc.store,
		Locker:     locker,
		Fetcher:    svc.fetcher,
		Extractor:  svc.extractor,
		Matcher:    svc.matcher,
		Classifier: classify.FromMatch(cfg.Match),
	}, cfg.Run, logger, orchOpts...)
	svc.resolver = resolve.New(svc.store, svc.merger, logger, resOpts...)
	svc.scheduler = scheduler.New(svc.store, svc.orch, cfg.Scheduler, logger)
	return svc, nil
}

// Start fails jobs left running by a previous process and starts the
// scheduler. Call Close to stop it.
func (svc *Service) Start(ctx context.Context) error {
	cutoff := time.Now().Add(-svc.config.Run.LockTTL)
	n, err := svc.store.FailStaleJobs(ctx, cutoff, "interrupted: process stopped during run")
	if err != nil {
		return fmt.Errorf("sitesync: fail stale jobs: %w", err)
	}
	if n > 0 {
		svc.logger.Warn("sitesync: failed stale jobs", "count", n)
	}

	ctx, svc.stop = context.WithCancel(ctx)
	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		svc.scheduler.Run(ctx)
	}()
	if svc.audit != nil {
		svc.wg.Add(1)
		go func() {
			defer svc.wg.Done()
			svc.auditCleanupLoop(ctx)
		}()
	}
	return nil
}

func (svc *Service) auditCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if n, err := svc.audit.Cleanup(ctx, svc.config.AuditRetentionDays); err != nil {
			svc.logger.Warn("sitesync: audit cleanup", "error", err)
		} else if n > 0 {
			svc.logger.Info("sitesync: audit cleanup", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close stops the scheduler and waits for it. In-flight runs end through
// their context and reach a terminal status.
func (svc *Service) Close() error {
	if svc.stop != nil {
		svc.stop()
	}
	svc.wg.Wait()
	if svc.ownsRedis {
		return svc.rdb.Close()
	}
	return nil
}

// GetConfig returns the company's configuration, or a disabled default
// when none was saved.
func (svc *Service) GetConfig(ctx context.Context, companyID string) (*SyncConfig, error) {
	if err := validateID("company_id", companyID); err != nil {
		return nil, err
	}
	c, err := svc.store.GetConfig(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = &SyncConfig{CompanyID: companyID, SyncIntervalHours: defaultInterval}
	}
	return c, nil
}

// SetConfig saves a configuration. Disabling sync cancels a run in flight
// in this process.
func (svc *Service) SetConfig(ctx context.Context, c *SyncConfig) error {
	if err := validateConfig(c); err != nil {
		return err
	}
	if err := svc.store.UpsertConfig(ctx, c); err != nil {
		return err
	}
	if !c.Enabled && svc.orch.Cancel(c.CompanyID) {
		svc.logger.Info("sitesync: run cancelled by config change", "company_id", c.CompanyID)
	}
	return nil
}

// RunSync runs a manual sync and returns the terminal job.
func (svc *Service) RunSync(ctx context.Context, companyID string) (*Job, error) {
	if err := validateID("company_id", companyID); err != nil {
		return nil, err
	}
	return svc.orch.RunSync(ctx, companyID, TriggerManual)
}

// Cancel cancels the company's run in flight in this process and reports
// whether one was found.
func (svc *Service) Cancel(ctx context.Context, companyID string) (bool, error) {
	if err := validateID("company_id", companyID); err != nil {
		return false, err
	}
	return svc.orch.Cancel(companyID), nil
}

// GetJob returns one job.
func (svc *Service) GetJob(ctx context.Context, companyID, jobID string) (*Job, error) {
	if err := validateID("company_id", companyID); err != nil {
		return nil, err
	}
	j, err := svc.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j == nil || j.CompanyID != companyID {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// ListJobs returns the company's jobs, newest first.
func (svc *Service) ListJobs(ctx context.Context, companyID string, limit int) ([]*Job, error) {
	if err := validateID("company_id", companyID); err != nil {
		return nil, err
	}
	return svc.store.ListJobs(ctx, companyID, clampLimit(limit))
}

// ListConflicts returns the company's conflicts, newest first. An empty
// status lists all.
func (svc *Service) ListConflicts(ctx context.Context, companyID, status string, limit int) ([]*Conflict, error) {
	if err := validateID("company_id", companyID); err != nil {
		return nil, err
	}
	if err := validateStatus("conflict status", status, ConflictPending, ConflictResolved, ConflictDismissed); err != nil {
		return nil, err
	}
	return svc.store.ListConflicts(ctx, companyID, status, clampLimit(limit))
}

// ResolveConflict applies a resolution. The acting user is read from ctx.
// It returns the resulting entry, nil for dismiss.
func (svc *Service) ResolveConflict(ctx context.Context, companyID, conflictID, resolution string) (*Entry, error) {
	if err := validateID("company_id", companyID); err != nil {
		return nil, err
	}
	if err := validateID("conflict_id", conflictID); err != nil {
		return nil, err
	}
	res, err := resolve.Parse(resolution)
	if err != nil {
		return nil, err
	}
	return svc.resolver.Resolve(ctx, companyID, conflictID, res, kit.GetUserID(ctx))
}

// ListEntries returns the company's knowledge entries. An empty status
// lists all.
func (svc *Service) ListEntries(ctx context.Context, companyID, status string) ([]*Entry, error) {
	if err := validateID("company_id", companyID); err != nil {
		return nil, err
	}
	if err := validateStatus("entry status", status, EntryActive, EntryOutdated); err != nil {
		return nil, err
	}
	return svc.store.ListEntries(ctx, companyID, status)
}

// AddEntry adds a confirmed manual entry.
func (svc *Service) AddEntry(ctx context.Context, companyID, question, answer string) (*Entry, error) {
	if err := validateID("company_id", companyID); err != nil {
		return nil, err
	}
	q, a, err := validateEntry(question, answer)
	if err != nil {
		return nil, err
	}
	e := &Entry{
		ID:        svc.newEntryID(),
		CompanyID: companyID,
		Question:  q,
		Answer:    a,
		Source:    SourceManual,
		Status:    EntryActive,
		Confirmed: true,
	}
	if err := svc.store.InsertEntry(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteEntry deletes an entry. Pending conflicts against it can then only
// be dismissed.
func (svc *Service) DeleteEntry(ctx context.Context, companyID, entryID string) error {
	if err := validateID("company_id", companyID); err != nil {
		return err
	}
	if err := validateID("entry_id", entryID); err != nil {
		return err
	}
	err := svc.store.DeleteEntry(ctx, companyID, entryID)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return fmt.Errorf("sitesync: %w", err)
	}
	return err
}
