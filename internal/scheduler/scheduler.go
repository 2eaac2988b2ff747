// Package scheduler runs the periodic conversation maintenance jobs:
// reactivating expired takeovers and sweeping idle conversation memory.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pedidobot/pedidobot/internal/flow"
	"github.com/pedidobot/pedidobot/internal/store"
)

// Default maintenance schedule.
const (
	// DefaultIdleTTL is how long a conversation may sit untouched before
	// its memory row is deleted. Conversations under takeover are never
	// swept.
	DefaultIdleTTL = 30 * time.Minute

	// reactivateSchedule checks for expired takeovers every minute so the
	// bot resumes promptly even if the customer stays silent.
	reactivateSchedule = "* * * * *"

	// sweepSchedule runs the idle sweep every five minutes.
	sweepSchedule = "*/5 * * * *"
)

// Opts holds configuration options for the scheduler.
type Opts struct {
	IdleTTL time.Duration
}

// Option defines a configuration option for the scheduler.
type Option func(*Opts)

// WithIdleTTL overrides the idle conversation time-to-live.
func WithIdleTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.IdleTTL = ttl }
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RegisterMaintenanceJobs schedules takeover reactivation and the idle
// memory sweep against the given store.
func (s *Scheduler) RegisterMaintenanceJobs(st store.Store, mem *flow.MemoryManager, opts ...Option) error {
	cfg := Opts{IdleTTL: DefaultIdleTTL}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := s.AddJob(reactivateSchedule, func() {
		n, err := st.ReactivateExpiredTakeovers(time.Now())
		if err != nil {
			slog.Error("Scheduler: takeover reactivation failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("Scheduler: reactivated expired takeovers", "count", n)
		}
	}); err != nil {
		return err
	}

	if err := s.AddJob(sweepSchedule, func() {
		n, err := mem.SweepIdle(cfg.IdleTTL)
		if err != nil {
			slog.Error("Scheduler: idle sweep failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("Scheduler: swept idle conversations", "count", n, "ttl", cfg.IdleTTL)
		}
	}); err != nil {
		return err
	}

	slog.Debug("Scheduler: maintenance jobs registered", "idle_ttl", cfg.IdleTTL)
	return nil
}
