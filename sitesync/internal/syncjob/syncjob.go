// Package syncjob runs one website sync for one company: fetch the site,
// extract candidates, match and classify each against the active knowledge
// base and commit every resulting mutation together with the job's terminal
// state in a single transaction.
package syncjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/sitesync/idgen"
	"github.com/hazyhaar/sitesync/observability"
	"github.com/hazyhaar/sitesync/sitesync/internal/candidate"
	"github.com/hazyhaar/sitesync/sitesync/internal/classify"
	"github.com/hazyhaar/sitesync/sitesync/internal/lock"
	"github.com/hazyhaar/sitesync/sitesync/internal/match"
	"github.com/hazyhaar/sitesync/sitesync/internal/store"
)

// Fetcher downloads a company website.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Extractor turns page content into loosely typed question/answer items.
type Extractor interface {
	Extract(ctx context.Context, content []byte, baseURL string) ([]map[string]any, error)
}

// Matcher finds the best existing entry for a candidate.
type Matcher interface {
	Match(c candidate.Candidate, entries []*store.Entry) match.Result
}

// Notifier is told about committed runs whose company asked for it.
type Notifier interface {
	NewFAQs(ctx context.Context, job *store.Job, entries []*store.Entry)
	Conflicts(ctx context.Context, job *store.Job, conflicts []*store.Conflict)
}

// Failure messages written on cancelled jobs.
var (
	errCancelled   = errors.New("cancelled")
	errMaxDuration = errors.New("cancelled: max run duration exceeded")
)

// Config bounds a run.
type Config struct {
	MaxRunDuration time.Duration `yaml:"max_run_duration"` // default 5m
	ExtractTimeout time.Duration `yaml:"extract_timeout"`  // default 60s
	// LockTTL must outlive MaxRunDuration. Default MaxRunDuration + 1m.
	LockTTL time.Duration `yaml:"lock_ttl"`
}

func (c *Config) defaults() {
	if c.MaxRunDuration <= 0 {
		c.MaxRunDuration = 5 * time.Minute
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = 60 * time.Second
	}
	if c.LockTTL <= c.MaxRunDuration {
		c.LockTTL = c.MaxRunDuration + time.Minute
	}
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store      *store.Store
	Locker     lock.Locker
	Fetcher    Fetcher
	Extractor  Extractor
	Matcher    Matcher
	Classifier classify.Classifier
}

// Orchestrator runs sync jobs. Safe for concurrent use; exclusivity per
// company comes from the Locker.
type Orchestrator struct {
	deps    Deps
	cfg     Config
	logger  *slog.Logger
	notify  Notifier
	audit   *observability.AuditLogger
	metrics *observability.MetricsManager

	newJobID      idgen.Generator
	newEntryID    idgen.Generator
	newConflictID idgen.Generator

	mu       sync.Mutex
	inFlight map[string]context.CancelCauseFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier sets the notifier. Default: none.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notify = n }
}

// WithAudit records one audit row per run.
func WithAudit(a *observability.AuditLogger) Option {
	return func(o *Orchestrator) { o.audit = a }
}

// WithMetrics records run metrics.
func WithMetrics(m *observability.MetricsManager) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithIDGenerators overrides the job, entry and conflict id generators.
// Nil generators keep the default.
func WithIDGenerators(job, entry, conflict idgen.Generator) Option {
	return func(o *Orchestrator) {
		if job != nil {
			o.newJobID = job
		}
		if entry != nil {
			o.newEntryID = entry
		}
		if conflict != nil {
			o.newConflictID = conflict
		}
	}
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		deps:          deps,
		cfg:           cfg,
		logger:        logger,
		newJobID:      idgen.Prefixed(idgen.PrefixJob, idgen.Default),
		newEntryID:    idgen.Prefixed(idgen.PrefixEntry, idgen.Default),
		newConflictID: idgen.Prefixed(idgen.PrefixConflict, idgen.Default),
		inFlight:      make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunSync runs a sync for companyID and returns its terminal job.
//
// ErrNotConfigured and ErrAlreadyRunning are returned before any job is
// created. Every other failure is recorded on the returned job, which is
// then failed with nothing from the run applied.
func (o *Orchestrator) RunSync(ctx context.Context, companyID, trigger string) (*store.Job, error) {
	cfg, err := o.deps.Store.GetConfig(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("syncjob: load config: %w", err)
	}
	if !cfg.Configured() {
		return nil, store.ErrNotConfigured
	}

	lease, err := o.deps.Locker.Acquire(ctx, companyID, o.cfg.LockTTL)
	if errors.Is(err, lock.ErrHeld) {
		return nil, store.ErrAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("syncjob: %w", err)
	}
	defer o.release(ctx, companyID, lease)

	runCtx, cancelTimeout := context.WithTimeoutCause(ctx, o.cfg.MaxRunDuration, errMaxDuration)
	defer cancelTimeout()
	runCtx, cancelRun := context.WithCancelCause(runCtx)
	defer cancelRun(nil)
	o.track(companyID, cancelRun)
	defer o.untrack(companyID)

	if trigger == "" {
		trigger = store.TriggerManual
	}
	job := &store.Job{
		ID:        o.newJobID(),
		CompanyID: companyID,
		Status:    store.JobPending,
		Trigger:   trigger,
		StartedAt: time.Now().UnixMilli(),
	}
	if err := o.deps.Store.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("syncjob: create job: %w", err)
	}

	start := time.Now()
	batch := &store.RunBatch{JobID: job.ID, CompanyID: companyID}
	done, runErr := o.run(runCtx, cfg, batch)
	if runErr != nil {
		done = o.fail(ctx, runCtx, job, batch, runErr)
	}
	o.report(ctx, cfg, done, batch, time.Since(start), runErr)
	return done, nil
}

func (o *Orchestrator) run(ctx context.Context, cfg *store.SyncConfig, batch *store.RunBatch) (*store.Job, error) {
	if err := o.deps.Store.MarkJobRunning(ctx, batch.JobID); err != nil {
		return nil, err
	}
	if err := o.classifyAll(ctx, cfg, batch); err != nil {
		return nil, err
	}
	return o.deps.Store.CommitRun(ctx, batch)
}

// classifyAll fills batch from the company's website. Nothing is written.
func (o *Orchestrator) classifyAll(ctx context.Context, cfg *store.SyncConfig, batch *store.RunBatch) error {
	content, err := o.deps.Fetcher.Fetch(ctx, cfg.WebsiteURL)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	exCtx, cancel := context.WithTimeout(ctx, o.cfg.ExtractTimeout)
	raw, err := o.deps.Extractor.Extract(exCtx, content, cfg.WebsiteURL)
	cancel()
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	cands, skips := candidate.Coerce(raw)
	batch.CandidatesFound = len(raw)
	batch.CandidatesSkipped = len(skips)
	for _, s := range skips {
		o.logger.Debug("syncjob: candidate skipped", "company_id", cfg.CompanyID, "index", s.Index, "reason", s.Reason)
	}

	active, err := o.deps.Store.ActiveEntries(ctx, cfg.CompanyID)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	pending, err := o.deps.Store.PendingConflictKeys(ctx, cfg.CompanyID)
	if err != nil {
		return fmt.Errorf("load conflicts: %w", err)
	}
	decided, err := o.deps.Store.DecidedConflictKeys(ctx, cfg.CompanyID)
	if err != nil {
		return fmt.Errorf("load conflicts: %w", err)
	}

	// An entry is claimed by the first candidate that reads the same as it.
	// Claims on existing entries are taken up front so a rerun sees the same
	// owners as the run that created them.
	claimedBy := make(map[string]int)
	for k, c := range cands {
		r := o.deps.Matcher.Match(c, active)
		if r.Entry == nil {
			continue
		}
		if _, ok := claimedBy[r.Entry.ID]; !ok && o.deps.Classifier.Classify(r, c) == classify.Unchanged {
			claimedBy[r.Entry.ID] = k
		}
	}

	pool := append([]*store.Entry(nil), active...)
	reconfirmed := make(map[string]bool)
	now := time.Now().UnixMilli()

	for k, c := range cands {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := o.deps.Matcher.Match(c, pool)
		if r.Entry != nil {
			owner, claimed := claimedBy[r.Entry.ID]
			if claimed && owner != k {
				if o.deps.Classifier.Classify(r, c) == classify.Unchanged {
					// Same text as a sibling already covers.
					batch.CandidatesSkipped++
					continue
				}
				r = o.deps.Matcher.Match(c, unclaimed(pool, claimedBy, k))
			}
		}

		switch o.deps.Classifier.Classify(r, c) {
		case classify.New:
			e := &store.Entry{
				ID:        o.newEntryID(),
				CompanyID: cfg.CompanyID,
				Question:  c.Question,
				Answer:    c.Answer,
				Source:    store.SourceWebsite,
				Status:    store.EntryActive,
				Confirmed: cfg.AutoApproveWebsiteFAQs,
				Version:   1,
				CreatedAt: now,
				UpdatedAt: now,
			}
			batch.NewEntries = append(batch.NewEntries, e)
			pool = append(pool, e)
			claimedBy[e.ID] = k

		case classify.Unchanged:
			if _, ok := claimedBy[r.Entry.ID]; !ok {
				claimedBy[r.Entry.ID] = k
			}
			reconfirmed[r.Entry.ID] = true

		case classify.Conflict:
			if r.Entry.Source == store.SourceWebsite {
				reconfirmed[r.Entry.ID] = true
			}
			key := store.ConflictKey(r.Entry.ID, c.Question, c.Answer)
			if pending[key] || decided[key] ||
				decided[store.DecidedKey(r.Entry.ID, r.Entry.Question, r.Entry.Answer, c.Question, c.Answer)] {
				continue
			}
			pending[key] = true
			batch.Conflicts = append(batch.Conflicts, &store.Conflict{
				ID:              o.newConflictID(),
				CompanyID:       cfg.CompanyID,
				JobID:           batch.JobID,
				EntryID:         r.Entry.ID,
				CurrentQuestion: r.Entry.Question,
				CurrentAnswer:   r.Entry.Answer,
				WebsiteQuestion: c.Question,
				WebsiteAnswer:   c.Answer,
				SimilarityScore: r.Score,
				Status:          store.ConflictPending,
				CreatedAt:       now,
			})
		}
	}

	for _, e := range classify.Outdated(active, reconfirmed) {
		batch.OutdatedIDs = append(batch.OutdatedIDs, e.ID)
	}
	return ctx.Err()
}

// unclaimed returns the entries of pool not claimed by a candidate other
// than k.
func unclaimed(pool []*store.Entry, claimedBy map[string]int, k int) []*store.Entry {
	out := make([]*store.Entry, 0, len(pool))
	for _, e := range pool {
		if owner, ok := claimedBy[e.ID]; ok && owner != k {
			continue
		}
		out = append(out, e)
	}
	return out
}

// fail writes the failed terminal state. The write is detached from ctx so
// a cancelled run still reaches a terminal status.
func (o *Orchestrator) fail(ctx, runCtx context.Context, job *store.Job, batch *store.RunBatch, err error) *store.Job {
	msg := failureMessage(runCtx, err)
	wctx := context.WithoutCancel(ctx)
	if ferr := o.deps.Store.FailJob(wctx, job.ID, msg, batch.CandidatesFound, batch.CandidatesSkipped); ferr != nil {
		o.logger.Error("syncjob: record failure", "job_id", job.ID, "error", ferr)
	}
	if j, gerr := o.deps.Store.GetJob(wctx, job.ID); gerr == nil && j != nil {
		return j
	}
	job.Status = store.JobFailed
	job.Error = msg
	return job
}

func failureMessage(runCtx context.Context, err error) string {
	if runCtx.Err() != nil {
		if cause := context.Cause(runCtx); errors.Is(cause, errMaxDuration) {
			return errMaxDuration.Error()
		}
		return errCancelled.Error()
	}
	return err.Error()
}

func (o *Orchestrator) report(ctx context.Context, cfg *store.SyncConfig, job *store.Job, batch *store.RunBatch, d time.Duration, runErr error) {
	attrs := []any{
		"company_id", job.CompanyID, "job_id", job.ID, "status", job.Status,
		"trigger", job.Trigger, "duration_ms", d.Milliseconds(),
	}
	if runErr != nil {
		o.logger.Warn("syncjob: run failed", append(attrs, "error", job.Error)...)
	} else {
		o.logger.Info("syncjob: run completed", append(attrs,
			"new_faqs", job.NewFAQsFound, "conflicts", job.ConflictsFound,
			"outdated", job.FAQsMarkedOutdated, "skipped", job.CandidatesSkipped)...)
	}

	if o.metrics != nil {
		labels := map[string]string{"company_id": job.CompanyID, "status": job.Status, "trigger": job.Trigger}
		o.metrics.Duration(observability.MetricRunDurationMs, d, labels)
		if runErr == nil {
			o.metrics.Count(observability.MetricNewFAQs, job.NewFAQsFound, labels)
			o.metrics.Count(observability.MetricConflicts, job.ConflictsFound, labels)
			o.metrics.Count(observability.MetricOutdated, job.FAQsMarkedOutdated, labels)
			o.metrics.Count(observability.MetricSkipped, job.CandidatesSkipped, labels)
		}
	}

	if o.audit != nil {
		params := map[string]string{"trigger": job.Trigger, "website_url": cfg.WebsiteURL}
		o.audit.LogAsync(observability.NewEntry(ctx, job.CompanyID, "syncjob", "run", params, job, runErr, d))
	}

	if runErr != nil || o.notify == nil {
		return
	}
	nctx := context.WithoutCancel(ctx)
	if cfg.NotifyOnNewFAQs && len(batch.NewEntries) > 0 {
		o.notify.NewFAQs(nctx, job, batch.NewEntries)
	}
	if cfg.NotifyOnConflicts && len(batch.Conflicts) > 0 {
		o.notify.Conflicts(nctx, job, batch.Conflicts)
	}
}

func (o *Orchestrator) release(ctx context.Context, companyID string, lease lock.Lease) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := lease.Release(rctx); err != nil {
		o.logger.Error("syncjob: release lock", "company_id", companyID, "error", err)
	}
}

// Cancel stops the company's in-flight run in this process. The job is
// failed with error "cancelled". Reports whether a run was found.
func (o *Orchestrator) Cancel(companyID string) bool {
	o.mu.Lock()
	cancel, ok := o.inFlight[companyID]
	o.mu.Unlock()
	if ok {
		cancel(errCancelled)
	}
	return ok
}

// InFlight reports whether this process is running a sync for companyID.
func (o *Orchestrator) InFlight(companyID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[companyID]
	return ok
}

func (o *Orchestrator) track(companyID string, cancel context.CancelCauseFunc) {
	o.mu.Lock()
	o.inFlight[companyID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) untrack(companyID string) {
	o.mu.Lock()
	delete(o.inFlight, companyID)
	o.mu.Unlock()
}
