package sched

import (
	"context"
	"log/slog"
	"time"

	"github.com/labops/rigctl/internal/control"
)

// Scheduler applies the start_time/stop_time wall-clock hints on setup
// records: at start_time a ready or sleeping setup is moved to running,
// at stop_time a running or sleeping setup is moved to stop. Hints are
// advisory; an illegal edge at firing time is logged and skipped, never
// forced.
type Scheduler struct {
	guard    *control.Guard
	interval time.Duration
	logger   *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func New(guard *control.Guard, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		guard:    guard,
		interval: interval,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// SetLogger replaces the scheduler's logger.
func (s *Scheduler) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Run ticks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick fires every hint matching the current wall-clock minute.
func (s *Scheduler) Tick(ctx context.Context) {
	recs, err := s.guard.ListSetups(ctx)
	if err != nil {
		s.logger.Warn("scheduler list failed", "error", err)
		return
	}
	minute := s.now().Format("15:04")
	for _, rec := range recs {
		if next, ok := due(rec, minute); ok {
			s.apply(ctx, rec, next)
		}
	}
}

// due decides whether a record's hints fire at this minute and which
// status they request. stop_time wins when both hints name the same
// minute.
func due(rec control.SetupRecord, minute string) (control.Status, bool) {
	if rec.StopTime == minute && rec.Status != control.StatusStop {
		return control.StatusStop, true
	}
	if rec.StartTime == minute && rec.Status != control.StatusRunning {
		return control.StatusRunning, true
	}
	return "", false
}

func (s *Scheduler) apply(ctx context.Context, rec control.SetupRecord, next control.Status) {
	if !control.CanTransition(rec.Status, next) {
		s.logger.Info("scheduled transition skipped",
			"setup", rec.Setup, "from", rec.Status, "to", next)
		return
	}
	if _, err := s.guard.ApplyScheduled(ctx, rec.Setup, next); err != nil {
		// a concurrent write may have raced the listing; not fatal
		s.logger.Warn("scheduled transition failed",
			"setup", rec.Setup, "to", next, "error", err)
		return
	}
	s.logger.Info("scheduled transition applied", "setup", rec.Setup, "to", next)
}
