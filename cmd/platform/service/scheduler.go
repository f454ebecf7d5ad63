package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/cronspec"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/models"
)

// ReportRunner executes a report. *ReportService satisfies it.
type ReportRunner interface {
	Execute(ctx context.Context, reportID uuid.UUID, userID string, params map[string]any, scheduleID *uuid.UUID) (*ExecutionOutcome, error)
}

// Scheduler turns active report schedules into cron entries. The registry
// maps a schedule id to its entry; only the Scheduler mutates it.
type Scheduler struct {
	store    ReportStore
	runner   ReportRunner
	exporter *Exporter
	delivery *Delivery

	cron        *cron.Cron
	cleanupSpec string
	baseCtx     context.Context

	mu      sync.Mutex
	entries map[uuid.UUID]cron.EntryID

	log *logger.Logger
	now func() time.Time
}

// NewScheduler creates a scheduler. cleanupSpec is a cron expression in
// server time for the expired export sweep; empty disables it.
func NewScheduler(store ReportStore, runner ReportRunner, exporter *Exporter, delivery *Delivery, cleanupSpec string, log *logger.Logger) *Scheduler {
	cl := cronLogger{log: log}
	return &Scheduler{
		store:    store,
		runner:   runner,
		exporter: exporter,
		delivery: delivery,
		cron: cron.New(
			cron.WithParser(cronspec.Parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		cleanupSpec: cleanupSpec,
		baseCtx:     context.Background(),
		entries:     make(map[uuid.UUID]cron.EntryID),
		log:         log,
		now:         time.Now,
	}
}

// Start registers every active schedule and the cleanup job, then starts
// the cron runner. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.baseCtx = ctx

	schedules, err := s.store.ListActiveSchedules(ctx)
	if err != nil {
		return err
	}
	registered := 0
	for _, sched := range schedules {
		if s.StartSchedule(sched) {
			registered++
		}
	}

	if s.cleanupSpec != "" {
		if _, err := s.cron.AddFunc(s.cleanupSpec, func() {
			if _, err := s.CleanupExpired(s.baseCtx); err != nil {
				s.log.Error("export cleanup failed", "error", err)
			}
		}); err != nil {
			return apperr.Validation("invalid cleanup schedule %q: %v", s.cleanupSpec, err)
		}
	}

	s.cron.Start()
	s.log.Info("scheduler started", "schedules", len(schedules), "registered", registered)
	return nil
}

// StartSchedule (re)registers sched. Any prior entry for the same id is
// stopped first. An inactive schedule or one whose timing cannot be
// parsed stays dormant and false is returned.
func (s *Scheduler) StartSchedule(sched *models.ReportSchedule) bool {
	s.StopSchedule(sched.ID)
	if !sched.Active {
		return false
	}

	timing, err := scheduleTiming(sched)
	if err != nil {
		s.log.Warn("schedule left dormant", "schedule_id", sched.ID, "frequency", sched.Frequency, "error", err)
		return false
	}

	id := sched.ID
	entry := s.cron.Schedule(timing, cron.FuncJob(func() {
		if _, err := s.Fire(s.baseCtx, id); err != nil {
			s.log.Warn("scheduled report failed", "schedule_id", id, "error", err)
		}
	}))

	s.mu.Lock()
	s.entries[id] = entry
	s.mu.Unlock()

	s.log.Debug("schedule registered", "schedule_id", id, "frequency", sched.Frequency, "timezone", sched.Timezone)
	return true
}

// StopSchedule removes the entry of id, if any
func (s *Scheduler) StopSchedule(id uuid.UUID) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if ok {
		s.cron.Remove(entry)
	}
}

// IsRegistered reports whether id has a live entry
func (s *Scheduler) IsRegistered(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Shutdown stops every job and empties the registry. Running executions
// finish unless ctx expires first.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for id, entry := range s.entries {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fire runs the pipeline of a schedule: execute, export, deliver and
// record the outcome on the schedule. A missing or inactive schedule is
// skipped.
func (s *Scheduler) Fire(ctx context.Context, id uuid.UUID) (*models.ReportExecution, error) {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.log.Info("schedule vanished, unregistering", "schedule_id", id)
			s.StopSchedule(id)
			return nil, nil
		}
		return nil, err
	}
	if !sched.Active {
		s.log.Info("skipping inactive schedule", "schedule_id", id)
		return nil, nil
	}
	return s.fire(ctx, sched)
}

// RunNow fires a schedule immediately regardless of its timing
func (s *Scheduler) RunNow(ctx context.Context, id uuid.UUID) (*models.ReportExecution, error) {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.fire(ctx, sched)
}

func (s *Scheduler) fire(ctx context.Context, sched *models.ReportSchedule) (*models.ReportExecution, error) {
	log := s.log.WithScheduleID(sched.ID.String())
	ranAt := s.now().UTC()

	exec, err := s.run(ctx, sched)
	if err != nil {
		if rerr := s.store.RecordScheduleFailure(ctx, sched.ID, err.Error()); rerr != nil {
			log.Error("failed to record schedule failure", "error", rerr)
		}
		log.Warn("schedule run failed", "report_id", sched.ReportID, "error", err)
		return exec, err
	}

	next, err := cronspec.NextRun(cronspec.FromSchedule(sched), sched.Timezone, window(sched), s.now())
	if err != nil {
		log.Warn("could not compute next run", "error", err)
		next = nil
	}
	if err := s.store.RecordScheduleSuccess(ctx, sched.ID, ranAt, next); err != nil {
		log.Error("failed to record schedule success", "error", err)
	}

	log.Info("schedule run completed",
		"report_id", sched.ReportID,
		"execution_id", exec.ID,
		"delivery", sched.DeliveryMethod,
		"next_run_at", next,
	)
	return exec, nil
}

func (s *Scheduler) run(ctx context.Context, sched *models.ReportSchedule) (*models.ReportExecution, error) {
	outcome, err := s.runner.Execute(ctx, sched.ReportID, sched.OwnerID, sched.Parameters, &sched.ID)
	if err != nil {
		if outcome != nil {
			return outcome.Execution, err
		}
		return nil, err
	}
	exec := outcome.Execution

	file, err := s.exporter.Export(exec.ID, outcome.Report.Name, sched.ExportFormat, outcome.Result)
	if err != nil {
		return exec, err
	}

	method := sched.DeliveryMethod
	pending := models.DeliveryPending
	exec.ExportPath = &file.Path
	exec.ExportURL = &file.URL
	exec.ExportFormat = &file.Format
	exec.ExportExpiresAt = &file.ExpiresAt
	exec.DeliveryMethod = &method
	exec.DeliveryStatus = &pending
	if err := s.store.UpdateExecution(ctx, exec); err != nil {
		return exec, err
	}

	if err := s.delivery.Deliver(ctx, sched, outcome.Report.Name, file, exec.StartedAt); err != nil {
		failed, msg := models.DeliveryFailed, err.Error()
		exec.DeliveryStatus = &failed
		exec.DeliveryError = &msg
		if uerr := s.store.UpdateExecution(ctx, exec); uerr != nil {
			s.log.Error("failed to record delivery failure", "execution_id", exec.ID, "error", uerr)
		}
		return exec, err
	}

	sent, at := models.DeliverySent, s.now().UTC()
	exec.DeliveryStatus = &sent
	exec.DeliveredAt = &at
	if err := s.store.UpdateExecution(ctx, exec); err != nil {
		return exec, err
	}
	return exec, nil
}

// CleanupExpired removes every export file past its expiry and clears the
// export location on its execution
func (s *Scheduler) CleanupExpired(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredExports(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, exec := range expired {
		if exec.ExportPath == nil {
			continue
		}
		if err := s.exporter.Remove(*exec.ExportPath); err != nil {
			s.log.Warn("failed to remove export", "execution_id", exec.ID, "path", *exec.ExportPath, "error", err)
			continue
		}
		exec.ExportPath = nil
		exec.ExportURL = nil
		if err := s.store.UpdateExecution(ctx, exec); err != nil {
			s.log.Warn("failed to clear export location", "execution_id", exec.ID, "error", err)
		}
		removed++
	}

	s.log.Info("expired exports removed", "removed", removed, "candidates", len(expired))
	return removed, nil
}

// scheduleTiming builds the cron schedule of sched in its timezone,
// bounded by its start and end dates
func scheduleTiming(sched *models.ReportSchedule) (cron.Schedule, error) {
	if sched.Frequency == models.FrequencyOnce {
		if sched.StartDate == nil {
			return nil, apperr.Validation("startDate is required for a one-time schedule")
		}
		return cronspec.Once{At: *sched.StartDate}, nil
	}

	expr, err := cronspec.Synthesize(cronspec.FromSchedule(sched))
	if err != nil {
		return nil, err
	}
	timing, err := cronspec.ParseIn(expr, sched.Timezone)
	if err != nil {
		return nil, err
	}
	return cronspec.Bounded(timing, window(sched)), nil
}

func window(sched *models.ReportSchedule) cronspec.Window {
	return cronspec.Window{Start: sched.StartDate, End: sched.EndDate}
}

// cronLogger adapts the service logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
