package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/exprsn/platform/common/db"
	"github.com/exprsn/platform/common/models"
)

const (
	reportColumns = `id, owner_id, name, description, report_type, config, visualization, custom_query,
		timeout_seconds, cache_duration_minutes, execution_count, last_executed_at, created_at, updated_at`

	scheduleColumns = `id, report_id, owner_id, name, frequency, cron_expression, run_at, day_of_week, day_of_month,
		timezone, start_date, end_date, parameters, export_format, delivery_method, delivery_config, active,
		execution_count, failure_count, last_run_at, next_run_at, last_error, created_at, updated_at`

	executionColumns = `id, report_id, schedule_id, user_id, status, parameters, started_at, completed_at,
		duration_ms, row_count, result_size, export_path, export_url, export_format, export_expires_at,
		cache_key, cache_hit, delivery_method, delivery_status, delivered_at, delivery_error, error_message`
)

// ReportRepository handles database operations for reports, schedules and
// executions
type ReportRepository struct {
	db *db.DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(database *db.DB) *ReportRepository {
	return &ReportRepository{db: database}
}

func scanSchedule(row pgx.Row) (*models.ReportSchedule, error) {
	s := &models.ReportSchedule{}
	err := row.Scan(
		&s.ID,
		&s.ReportID,
		&s.OwnerID,
		&s.Name,
		&s.Frequency,
		&s.CronExpression,
		&s.RunAt,
		&s.DayOfWeek,
		&s.DayOfMonth,
		&s.Timezone,
		&s.StartDate,
		&s.EndDate,
		&s.Parameters,
		&s.ExportFormat,
		&s.DeliveryMethod,
		&s.DeliveryConfig,
		&s.Active,
		&s.ExecutionCount,
		&s.FailureCount,
		&s.LastRunAt,
		&s.NextRunAt,
		&s.LastError,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

func scanExecution(row pgx.Row) (*models.ReportExecution, error) {
	e := &models.ReportExecution{}
	err := row.Scan(
		&e.ID,
		&e.ReportID,
		&e.ScheduleID,
		&e.UserID,
		&e.Status,
		&e.Parameters,
		&e.StartedAt,
		&e.CompletedAt,
		&e.DurationMs,
		&e.RowCount,
		&e.ResultSize,
		&e.ExportPath,
		&e.ExportURL,
		&e.ExportFormat,
		&e.ExportExpiresAt,
		&e.CacheKey,
		&e.CacheHit,
		&e.DeliveryMethod,
		&e.DeliveryStatus,
		&e.DeliveredAt,
		&e.DeliveryError,
		&e.ErrorMessage,
	)
	return e, err
}

// GetReport retrieves a report definition
func (r *ReportRepository) GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	rep := &models.Report{}
	err := r.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM report WHERE id = $1`, id).Scan(
		&rep.ID,
		&rep.OwnerID,
		&rep.Name,
		&rep.Description,
		&rep.ReportType,
		&rep.Config,
		&rep.Visualization,
		&rep.CustomQuery,
		&rep.TimeoutSeconds,
		&rep.CacheDurationMinutes,
		&rep.ExecutionCount,
		&rep.LastExecutedAt,
		&rep.CreatedAt,
		&rep.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err, "get", "report", id)
	}
	return rep, nil
}

// TouchReport bumps the execution counter of a report
func (r *ReportRepository) TouchReport(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE report SET execution_count = execution_count + 1, last_executed_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch report: %w", err)
	}
	return nil
}

// CreateSchedule inserts a schedule
func (r *ReportRepository) CreateSchedule(ctx context.Context, s *models.ReportSchedule) error {
	_, err := r.db.Exec(ctx, `INSERT INTO report_schedule (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		s.ID, s.ReportID, s.OwnerID, s.Name, s.Frequency, s.CronExpression, s.RunAt, s.DayOfWeek, s.DayOfMonth,
		s.Timezone, s.StartDate, s.EndDate, jsonObject(s.Parameters), s.ExportFormat, s.DeliveryMethod, s.DeliveryConfig,
		s.Active, s.ExecutionCount, s.FailureCount, s.LastRunAt, s.NextRunAt, s.LastError, s.CreatedAt, s.UpdatedAt)
	return translate(err, "create", "report schedule", s.ID)
}

// GetSchedule retrieves a schedule
func (r *ReportRepository) GetSchedule(ctx context.Context, id uuid.UUID) (*models.ReportSchedule, error) {
	s, err := scanSchedule(r.db.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM report_schedule WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get", "report schedule", id)
	}
	return s, nil
}

func (r *ReportRepository) listSchedules(ctx context.Context, query string, args ...any) ([]*models.ReportSchedule, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list report schedules: %w", err)
	}
	schedules, err := collect(rows, scanSchedule)
	if err != nil {
		return nil, fmt.Errorf("failed to scan report schedules: %w", err)
	}
	return schedules, nil
}

// ListSchedules returns the schedules of an owner
func (r *ReportRepository) ListSchedules(ctx context.Context, ownerID string) ([]*models.ReportSchedule, error) {
	return r.listSchedules(ctx, `SELECT `+scheduleColumns+` FROM report_schedule WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
}

// ListActiveSchedules returns every active schedule, used to seed the engine
func (r *ReportRepository) ListActiveSchedules(ctx context.Context) ([]*models.ReportSchedule, error) {
	return r.listSchedules(ctx, `SELECT `+scheduleColumns+` FROM report_schedule WHERE active ORDER BY created_at`)
}

// UpdateSchedule writes the definition fields of a schedule
func (r *ReportRepository) UpdateSchedule(ctx context.Context, s *models.ReportSchedule) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE report_schedule
		SET name = $2, frequency = $3, cron_expression = $4, run_at = $5, day_of_week = $6, day_of_month = $7,
		    timezone = $8, start_date = $9, end_date = $10, parameters = $11, export_format = $12,
		    delivery_method = $13, delivery_config = $14, active = $15, next_run_at = $16, updated_at = $17
		WHERE id = $1
	`, s.ID, s.Name, s.Frequency, s.CronExpression, s.RunAt, s.DayOfWeek, s.DayOfMonth,
		s.Timezone, s.StartDate, s.EndDate, jsonObject(s.Parameters), s.ExportFormat,
		s.DeliveryMethod, s.DeliveryConfig, s.Active, s.NextRunAt, s.UpdatedAt)
	if err != nil {
		return translate(err, "update", "report schedule", s.ID)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "update", "report schedule", s.ID)
	}
	return nil
}

// DeleteSchedule removes a schedule
func (r *ReportRepository) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM report_schedule WHERE id = $1`, id)
	if err != nil {
		return translate(err, "delete", "report schedule", id)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "delete", "report schedule", id)
	}
	return nil
}

// RecordScheduleSuccess counts a delivered run and clears the last error
func (r *ReportRepository) RecordScheduleSuccess(ctx context.Context, id uuid.UUID, ranAt time.Time, next *time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE report_schedule
		SET execution_count = execution_count + 1, last_run_at = $2, next_run_at = $3,
		    last_error = NULL, updated_at = $2
		WHERE id = $1
	`, id, ranAt, next)
	if err != nil {
		return fmt.Errorf("failed to record schedule success: %w", err)
	}
	return nil
}

// RecordScheduleFailure counts a failed run
func (r *ReportRepository) RecordScheduleFailure(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE report_schedule SET failure_count = failure_count + 1, last_error = $2 WHERE id = $1
	`, id, message)
	if err != nil {
		return fmt.Errorf("failed to record schedule failure: %w", err)
	}
	return nil
}

// CreateExecution inserts an execution record
func (r *ReportRepository) CreateExecution(ctx context.Context, e *models.ReportExecution) error {
	_, err := r.db.Exec(ctx, `INSERT INTO report_execution (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		e.ID, e.ReportID, e.ScheduleID, e.UserID, e.Status, jsonObject(e.Parameters), e.StartedAt, e.CompletedAt,
		e.DurationMs, e.RowCount, e.ResultSize, e.ExportPath, e.ExportURL, e.ExportFormat, e.ExportExpiresAt,
		e.CacheKey, e.CacheHit, e.DeliveryMethod, e.DeliveryStatus, e.DeliveredAt, e.DeliveryError, e.ErrorMessage)
	return translate(err, "create", "report execution", e.ID)
}

// UpdateExecution writes every mutable field of an execution
func (r *ReportRepository) UpdateExecution(ctx context.Context, e *models.ReportExecution) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE report_execution
		SET status = $2, completed_at = $3, duration_ms = $4, row_count = $5, result_size = $6,
		    export_path = $7, export_url = $8, export_format = $9, export_expires_at = $10,
		    cache_key = $11, cache_hit = $12, delivery_method = $13, delivery_status = $14,
		    delivered_at = $15, delivery_error = $16, error_message = $17
		WHERE id = $1
	`, e.ID, e.Status, e.CompletedAt, e.DurationMs, e.RowCount, e.ResultSize,
		e.ExportPath, e.ExportURL, e.ExportFormat, e.ExportExpiresAt,
		e.CacheKey, e.CacheHit, e.DeliveryMethod, e.DeliveryStatus,
		e.DeliveredAt, e.DeliveryError, e.ErrorMessage)
	if err != nil {
		return translate(err, "update", "report execution", e.ID)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "update", "report execution", e.ID)
	}
	return nil
}

// GetExecution retrieves an execution record
func (r *ReportRepository) GetExecution(ctx context.Context, id uuid.UUID) (*models.ReportExecution, error) {
	e, err := scanExecution(r.db.QueryRow(ctx, `SELECT `+executionColumns+` FROM report_execution WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get", "report execution", id)
	}
	return e, nil
}

// ListExpiredExports returns executions whose export file outlived its TTL
func (r *ReportRepository) ListExpiredExports(ctx context.Context, now time.Time) ([]*models.ReportExecution, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+executionColumns+`
		FROM report_execution
		WHERE export_path IS NOT NULL AND export_expires_at < $1
		ORDER BY export_expires_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired exports: %w", err)
	}
	execs, err := collect(rows, scanExecution)
	if err != nil {
		return nil, fmt.Errorf("failed to scan expired exports: %w", err)
	}
	return execs, nil
}
