// Package scheduler starts sync runs for companies whose interval elapsed.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/sitesync/sitesync/internal/store"
)

// DueLister returns the enabled configurations due at now.
type DueLister interface {
	DueConfigs(ctx context.Context, now time.Time) ([]*store.SyncConfig, error)
}

// Runner runs one sync.
type Runner interface {
	RunSync(ctx context.Context, companyID, trigger string) (*store.Job, error)
	InFlight(companyID string) bool
}

// Config configures the scheduler.
type Config struct {
	// CheckInterval is how often due companies are looked up. Default: 5 minutes.
	CheckInterval time.Duration `yaml:"check_interval"`
	// Workers bounds concurrent runs per tick. Default: 4.
	Workers int `yaml:"workers"`
}

func (c *Config) defaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 5 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
}

// Scheduler periodically runs due syncs.
type Scheduler struct {
	due    DueLister
	runner Runner
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Scheduler.
func New(due DueLister, runner Runner, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		due:    due,
		runner: runner,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Run checks for due companies on a ticker. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	// Run once immediately on start.
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs every due company once, at most Workers at a time, and returns
// how many runs were started. A failing company never stops the others.
func (s *Scheduler) Tick(ctx context.Context) int {
	due, err := s.due.DueConfigs(ctx, s.now())
	if err != nil {
		s.logger.Error("scheduler: due configs", "error", err)
		return 0
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)
	started := 0
	for _, cfg := range due {
		companyID := cfg.CompanyID
		if s.runner.InFlight(companyID) {
			s.logger.Debug("scheduler: already in flight", "company_id", companyID)
			continue
		}
		if gctx.Err() != nil {
			break
		}
		started++
		g.Go(func() error {
			job, err := s.runner.RunSync(gctx, companyID, store.TriggerScheduled)
			switch {
			case errors.Is(err, store.ErrAlreadyRunning):
				s.logger.Debug("scheduler: locked elsewhere", "company_id", companyID)
			case err != nil:
				s.logger.Warn("scheduler: run", "company_id", companyID, "error", err)
			case job.Status == store.JobFailed:
				s.logger.Warn("scheduler: run failed", "company_id", companyID, "job_id", job.ID, "error", job.Error)
			}
			return nil
		})
	}
	g.Wait()

	if started > 0 {
		s.logger.Debug("scheduler: tick", "due", len(due), "started", started)
	}
	return started
}
