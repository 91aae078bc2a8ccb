// Package resolve applies a human decision to a pending knowledge conflict.
//
// Each resolution is one handler in a table keyed by the closed Resolution
// type. A handler only describes the mutation; store.ApplyResolution
// performs it in one transaction guarded by the conflict's pending status
// and the entry's version.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/sitesync/idgen"
	"github.com/hazyhaar/sitesync/observability"
	"github.com/hazyhaar/sitesync/sitesync/internal/store"
)

// Resolution is a decision on a conflict.
type Resolution string

const (
	KeepCurrent Resolution = "keep_current"
	UseWebsite  Resolution = "use_website"
	KeepBoth    Resolution = "keep_both"
	Merge       Resolution = "merge"
	Dismiss     Resolution = "dismiss"
)

// All lists every resolution.
var All = []Resolution{KeepCurrent, UseWebsite, KeepBoth, Merge, Dismiss}

// Parse validates s.
func Parse(s string) (Resolution, error) {
	r := Resolution(s)
	if _, ok := table[r]; !ok {
		return "", fmt.Errorf("%w: %q", store.ErrInvalidResolution, s)
	}
	return r, nil
}

// Merger synthesizes one answer from the current and the website answer.
type Merger interface {
	Merge(ctx context.Context, question, current, website string) (string, error)
}

// handler fills w for conflict c whose entry e (nil when deleted) was just
// read, and returns the entry the caller sees once w is applied.
type handler func(ctx context.Context, r *Resolver, c *store.Conflict, e *store.Entry, w *store.ResolutionWrite) (*store.Entry, error)

var table = map[Resolution]handler{
	KeepCurrent: keepCurrent,
	UseWebsite:  useWebsite,
	KeepBoth:    keepBoth,
	Merge:       merge,
	Dismiss:     dismiss,
}

// Resolver resolves conflicts.
type Resolver struct {
	store      *store.Store
	merger     Merger
	logger     *slog.Logger
	audit      *observability.AuditLogger
	metrics    *observability.MetricsManager
	newEntryID idgen.Generator

	unconfirmedMerge bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithAudit records one audit row per resolution.
func WithAudit(a *observability.AuditLogger) Option {
	return func(r *Resolver) { r.audit = a }
}

// WithMetrics counts resolutions.
func WithMetrics(m *observability.MetricsManager) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithEntryIDGenerator overrides the id generator for keep_both entries.
func WithEntryIDGenerator(gen idgen.Generator) Option {
	return func(r *Resolver) { r.newEntryID = gen }
}

// WithUnconfirmedMerge leaves merged entries unconfirmed so a human reviews
// the text before it is served. Use it when the merger cannot rewrite the
// answers into one and only joins them.
func WithUnconfirmedMerge() Option {
	return func(r *Resolver) { r.unconfirmedMerge = true }
}

// New creates a Resolver. merger may be nil, in which case merge fails.
func New(st *store.Store, merger Merger, logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		store:      st,
		merger:     merger,
		logger:     logger,
		newEntryID: idgen.Prefixed(idgen.PrefixEntry, idgen.Default),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve applies res to the company's conflict. It returns the entry as it
// stands afterwards: the kept, updated or newly created entry, or nil for
// dismiss.
func (r *Resolver) Resolve(ctx context.Context, companyID, conflictID string, res Resolution, resolvedBy string) (*store.Entry, error) {
	start := time.Now()
	out, err := r.resolve(ctx, companyID, conflictID, res, resolvedBy)

	attrs := []any{"company_id", companyID, "conflict_id", conflictID, "resolution", string(res)}
	if err != nil {
		r.logger.Info("resolve: rejected", append(attrs, "error", err)...)
	} else {
		r.logger.Info("resolve: applied", attrs...)
		if r.metrics != nil {
			r.metrics.Count(observability.MetricResolutions, 1,
				map[string]string{"company_id": companyID, "resolution": string(res)})
		}
	}
	if r.audit != nil {
		params := map[string]string{"conflict_id": conflictID, "resolution": string(res)}
		r.audit.LogAsync(observability.NewEntry(ctx, companyID, "resolve", "resolve_conflict", params, out, err, time.Since(start)))
	}
	return out, err
}

func (r *Resolver) resolve(ctx context.Context, companyID, conflictID string, res Resolution, resolvedBy string) (*store.Entry, error) {
	h, ok := table[res]
	if !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrInvalidResolution, string(res))
	}
	c, err := r.store.GetConflict(ctx, companyID, conflictID)
	if err != nil {
		return nil, fmt.Errorf("resolve: load conflict: %w", err)
	}
	if c == nil {
		return nil, store.ErrConflictNotFound
	}
	if c.Status != store.ConflictPending {
		return nil, store.ErrConflictNotPending
	}

	e, err := r.store.GetEntry(ctx, companyID, c.EntryID)
	if err != nil {
		return nil, fmt.Errorf("resolve: load entry: %w", err)
	}

	w := &store.ResolutionWrite{
		CompanyID:  companyID,
		ConflictID: conflictID,
		Status:     store.ConflictResolved,
		Resolution: string(res),
		ResolvedBy: resolvedBy,
	}
	out, err := h(ctx, r, c, e, w)
	if err != nil {
		return nil, err
	}
	if err := r.store.ApplyResolution(ctx, w); err != nil {
		return nil, err
	}
	return out, nil
}

func keepCurrent(_ context.Context, _ *Resolver, _ *store.Conflict, e *store.Entry, w *store.ResolutionWrite) (*store.Entry, error) {
	if e == nil {
		return nil, store.ErrEntryMissing
	}
	w.RequireEntry = e.ID
	w.ResolvedEntryID = e.ID
	return e, nil
}

func useWebsite(_ context.Context, _ *Resolver, c *store.Conflict, e *store.Entry, w *store.ResolutionWrite) (*store.Entry, error) {
	if e == nil {
		return nil, store.ErrEntryMissing
	}
	u := *e
	u.Question = c.WebsiteQuestion
	u.Answer = c.WebsiteAnswer
	adopt(&u)
	w.Update = &u
	w.ResolvedEntryID = u.ID
	return &u, nil
}

func keepBoth(_ context.Context, r *Resolver, c *store.Conflict, e *store.Entry, w *store.ResolutionWrite) (*store.Entry, error) {
	if e == nil {
		return nil, store.ErrEntryMissing
	}
	n := &store.Entry{
		ID:        r.newEntryID(),
		CompanyID: c.CompanyID,
		Question:  c.WebsiteQuestion,
		Answer:    c.WebsiteAnswer,
	}
	adopt(n)
	w.RequireEntry = e.ID
	w.Insert = n
	w.ResolvedEntryID = n.ID
	return n, nil
}

func merge(ctx context.Context, r *Resolver, c *store.Conflict, e *store.Entry, w *store.ResolutionWrite) (*store.Entry, error) {
	if e == nil {
		return nil, store.ErrEntryMissing
	}
	if r.merger == nil {
		return nil, errors.New("resolve: no merger configured")
	}
	answer, err := r.merger.Merge(ctx, e.Question, e.Answer, c.WebsiteAnswer)
	if err != nil {
		return nil, fmt.Errorf("resolve: merge: %w", err)
	}
	u := *e
	u.Answer = answer
	adopt(&u)
	if r.unconfirmedMerge {
		u.Confirmed = false
	}
	w.Update = &u
	w.ResolvedEntryID = u.ID
	return &u, nil
}

func dismiss(_ context.Context, _ *Resolver, _ *store.Conflict, _ *store.Entry, w *store.ResolutionWrite) (*store.Entry, error) {
	w.Status = store.ConflictDismissed
	return nil, nil
}

// adopt marks e as confirmed website content.
func adopt(e *store.Entry) {
	e.Source = store.SourceWebsite
	e.Status = store.EntryActive
	e.Confirmed = true
}
