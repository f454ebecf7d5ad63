package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/cronspec"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/models"
)

// ScheduleInput is the writable part of a report schedule
type ScheduleInput struct {
	ReportID       uuid.UUID             `json:"reportId"`
	Name           string                `json:"name"`
	Frequency      models.Frequency      `json:"frequency"`
	CronExpression *string               `json:"cronExpression,omitempty"`
	RunAt          string                `json:"runAt"`
	DayOfWeek      *int                  `json:"dayOfWeek,omitempty"`
	DayOfMonth     *int                  `json:"dayOfMonth,omitempty"`
	Timezone       string                `json:"timezone"`
	StartDate      *time.Time            `json:"startDate,omitempty"`
	EndDate        *time.Time            `json:"endDate,omitempty"`
	Parameters     map[string]any        `json:"parameters,omitempty"`
	ExportFormat   string                `json:"exportFormat"`
	DeliveryMethod string                `json:"deliveryMethod"`
	DeliveryConfig models.DeliveryConfig `json:"deliveryConfig"`
	Active         *bool                 `json:"active,omitempty"`
}

// ScheduleService manages report schedules and keeps the scheduler's
// registry in step with the store
type ScheduleService struct {
	store  ReportStore
	engine *Scheduler
	log    *logger.Logger
	now    func() time.Time
}

// NewScheduleService creates a schedule service. engine may be nil when
// scheduling is disabled.
func NewScheduleService(store ReportStore, engine *Scheduler, log *logger.Logger) *ScheduleService {
	return &ScheduleService{store: store, engine: engine, log: log, now: time.Now}
}

// Create validates and stores a schedule, then registers it
func (s *ScheduleService) Create(ctx context.Context, ownerID string, in ScheduleInput) (*models.ReportSchedule, error) {
	report, err := s.store.GetReport(ctx, in.ReportID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sched := &models.ReportSchedule{
		ID:        uuid.New(),
		ReportID:  report.ID,
		OwnerID:   ownerID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Name == "" {
		in.Name = report.Name
	}
	if err := s.apply(sched, in); err != nil {
		return nil, err
	}
	if err := s.store.CreateSchedule(ctx, sched); err != nil {
		return nil, err
	}

	s.register(sched)
	s.log.Info("schedule created", "schedule_id", sched.ID, "report_id", sched.ReportID, "frequency", sched.Frequency, "next_run_at", sched.NextRunAt)
	return sched, nil
}

// Get returns a schedule owned by ownerID
func (s *ScheduleService) Get(ctx context.Context, ownerID string, id uuid.UUID) (*models.ReportSchedule, error) {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.OwnerID != ownerID {
		return nil, apperr.Forbidden("schedule %s belongs to another user", id)
	}
	return sched, nil
}

// List returns the schedules of ownerID
func (s *ScheduleService) List(ctx context.Context, ownerID string) ([]*models.ReportSchedule, error) {
	return s.store.ListSchedules(ctx, ownerID)
}

// Update replaces the writable fields of a schedule and re-registers it
func (s *ScheduleService) Update(ctx context.Context, ownerID string, id uuid.UUID, in ScheduleInput) (*models.ReportSchedule, error) {
	sched, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if in.ReportID != uuid.Nil && in.ReportID != sched.ReportID {
		if _, err := s.store.GetReport(ctx, in.ReportID); err != nil {
			return nil, err
		}
		sched.ReportID = in.ReportID
	}
	if in.Name == "" {
		in.Name = sched.Name
	}
	if err := s.apply(sched, in); err != nil {
		return nil, err
	}
	sched.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSchedule(ctx, sched); err != nil {
		return nil, err
	}

	s.register(sched)
	return sched, nil
}

// Delete unregisters and removes a schedule
func (s *ScheduleService) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if s.engine != nil {
		s.engine.StopSchedule(id)
	}
	return s.store.DeleteSchedule(ctx, id)
}

// RunNow fires a schedule immediately
func (s *ScheduleService) RunNow(ctx context.Context, ownerID string, id uuid.UUID) (*models.ReportExecution, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	if s.engine == nil {
		return nil, apperr.Validation("scheduling is disabled")
	}
	return s.engine.RunNow(ctx, id)
}

func (s *ScheduleService) register(sched *models.ReportSchedule) {
	if s.engine != nil {
		s.engine.StartSchedule(sched)
	}
}

// apply validates in and copies it onto sched, computing nextRunAt. A
// custom expression that does not parse is kept but leaves the schedule
// dormant.
func (s *ScheduleService) apply(sched *models.ReportSchedule, in ScheduleInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("name is required")
	}
	switch in.Frequency {
	case models.FrequencyOnce, models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly,
		models.FrequencyQuarterly, models.FrequencyYearly, models.FrequencyCustom:
	default:
		return apperr.Validation("unknown frequency: %q", in.Frequency)
	}
	if in.Timezone == "" {
		in.Timezone = cronspec.DefaultTimezone
	}
	if _, err := cronspec.Location(in.Timezone); err != nil {
		return err
	}
	if _, _, err := cronspec.ParseRunAt(in.RunAt); err != nil {
		return err
	}
	if in.Frequency == models.FrequencyOnce && in.StartDate == nil {
		return apperr.Validation("startDate is required for a one-time schedule")
	}
	if in.StartDate != nil && in.EndDate != nil && !in.EndDate.After(*in.StartDate) {
		return apperr.Validation("endDate must be after startDate")
	}

	if in.ExportFormat == "" {
		in.ExportFormat = models.ExportCSV
	}
	if in.ExportFormat != models.ExportCSV && in.ExportFormat != models.ExportJSON {
		return apperr.Validation("unsupported export format: %s", in.ExportFormat)
	}
	if in.DeliveryMethod == "" {
		in.DeliveryMethod = models.DeliveryDownload
	}
	if err := validateDelivery(in.DeliveryMethod, in.DeliveryConfig); err != nil {
		return err
	}

	def := cronspec.Definition{
		Frequency:      in.Frequency,
		CronExpression: models.Deref(in.CronExpression),
		RunAt:          in.RunAt,
		DayOfWeek:      in.DayOfWeek,
		DayOfMonth:     in.DayOfMonth,
	}
	if in.Frequency == models.FrequencyCustom && def.CronExpression == "" {
		return apperr.Validation("cronExpression is required for custom frequency")
	}

	sched.Name = in.Name
	sched.Frequency = in.Frequency
	sched.CronExpression = in.CronExpression
	sched.RunAt = in.RunAt
	sched.DayOfWeek = in.DayOfWeek
	sched.DayOfMonth = in.DayOfMonth
	sched.Timezone = in.Timezone
	sched.StartDate = in.StartDate
	sched.EndDate = in.EndDate
	sched.Parameters = in.Parameters
	sched.ExportFormat = in.ExportFormat
	sched.DeliveryMethod = in.DeliveryMethod
	sched.DeliveryConfig = in.DeliveryConfig
	if in.Active != nil {
		sched.Active = *in.Active
	}

	if _, err := cronspec.Synthesize(def); err != nil {
		if in.Frequency != models.FrequencyCustom {
			return err
		}
		s.log.Warn("invalid cron expression, schedule stays dormant", "schedule_id", sched.ID, "cron", def.CronExpression, "error", err)
		sched.NextRunAt = nil
		return nil
	}

	next, err := cronspec.NextRun(def, in.Timezone, cronspec.Window{Start: in.StartDate, End: in.EndDate}, s.now())
	if err != nil {
		return err
	}
	sched.NextRunAt = next
	return nil
}

func validateDelivery(method string, cfg models.DeliveryConfig) error {
	switch method {
	case models.DeliveryStorage, models.DeliveryDownload:
		return nil
	case models.DeliveryEmail:
		if len(cfg.Recipients) == 0 {
			return apperr.Validation("email delivery requires recipients")
		}
		for _, r := range cfg.Recipients {
			if !strings.Contains(r, "@") {
				return apperr.Validation("invalid recipient: %s", r)
			}
		}
		return nil
	case models.DeliveryWebhook:
		u, err := url.Parse(cfg.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperr.Validation("webhook delivery requires an http(s) url")
		}
		return nil
	default:
		return apperr.Validation("unknown delivery method: %s", method)
	}
}
