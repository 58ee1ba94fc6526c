// Package worker runs the periodic reconciliation and entitlement jobs.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/paasforest/proconnect-access/pkg/logging"
)

// FeedPoller pulls new bank transactions and applies them.
type FeedPoller interface {
	PollOnce(ctx context.Context) (int, error)
}

// EntitlementRepairer re-grants entitlements for completed deposits that
// never had them applied.
type EntitlementRepairer interface {
	RepairEntitlements(ctx context.Context) (int, error)
}

// PremiumSweeper clears premium flags on expired profiles.
type PremiumSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Schedules holds cron specs. An empty spec disables the job.
type Schedules struct {
	Reconcile   string
	Repair      string
	PremiumTidy string
}

// Scheduler wires the jobs onto a cron runner.
type Scheduler struct {
	cron    *cron.Cron
	poller  FeedPoller
	repair  EntitlementRepairer
	sweeper PremiumSweeper
	timeout time.Duration
	logger  *logging.Logger
}

func NewScheduler(poller FeedPoller, repair EntitlementRepairer, sweeper PremiumSweeper, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		poller:  poller,
		repair:  repair,
		sweeper: sweeper,
		timeout: 5 * time.Minute,
		logger:  logger,
	}
}

func (s *Scheduler) WithJobTimeout(d time.Duration) *Scheduler {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Setup registers every job whose collaborator and spec are present.
func (s *Scheduler) Setup(sched Schedules) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) (int, error)
	}{
		{"reconcile_poll", sched.Reconcile, pollFn(s.poller)},
		{"entitlement_repair", sched.Repair, repairFn(s.repair)},
		{"premium_expiry", sched.PremiumTidy, sweepFn(s.sweeper)},
	}
	for _, job := range jobs {
		if job.spec == "" || job.run == nil {
			continue
		}
		name, run := job.name, job.run
		if _, err := s.cron.AddFunc(job.spec, func() { s.RunJob(name, run) }); err != nil {
			return fmt.Errorf("worker: schedule %s (%q): %w", name, job.spec, err)
		}
		s.logger.Info("scheduled job", "job", name, "spec", job.spec)
	}
	return nil
}

// RunJob executes one job with a bounded context and logs the outcome.
func (s *Scheduler) RunJob(name string, run func(context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := run(ctx)
	if err != nil {
		s.logger.Error("job failed", "job", name, "processed", n, "error", err)
		return
	}
	s.logger.Info("job completed", "job", name, "processed", n, "duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func pollFn(p FeedPoller) func(context.Context) (int, error) {
	if p == nil {
		return nil
	}
	return p.PollOnce
}

func repairFn(r EntitlementRepairer) func(context.Context) (int, error) {
	if r == nil {
		return nil
	}
	return r.RepairEntitlements
}

func sweepFn(s PremiumSweeper) func(context.Context) (int, error) {
	if s == nil {
		return nil
	}
	return s.SweepExpired
}
