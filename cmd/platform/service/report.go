package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/cache"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/models"
)

// DataProvider runs a report query and returns its rows in column order
type DataProvider interface {
	Query(ctx context.Context, sql string, args []any) (*ReportResult, error)
}

// ReportResult is the tabular output of a report
type ReportResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"rowCount"`
}

// ExecutionOutcome pairs an execution record with its data
type ExecutionOutcome struct {
	Report    *models.Report          `json:"-"`
	Execution *models.ReportExecution `json:"execution"`
	Result    *ReportResult           `json:"result"`
}

// ReportService executes saved reports and records each run
type ReportService struct {
	store    ReportStore
	provider DataProvider
	cache    cache.Cache
	log      *logger.Logger
	now      func() time.Time
}

// NewReportService creates a report service. cache may be nil.
func NewReportService(store ReportStore, provider DataProvider, c cache.Cache, log *logger.Logger) *ReportService {
	return &ReportService{
		store:    store,
		provider: provider,
		cache:    c,
		log:      log,
		now:      time.Now,
	}
}

// Execute runs reportID for userID. The execution record moves from
// running to completed, failed or timeout; the record is returned with the
// error on failure.
func (s *ReportService) Execute(ctx context.Context, reportID uuid.UUID, userID string, params map[string]any, scheduleID *uuid.UUID) (*ExecutionOutcome, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.CustomQuery == nil || *report.CustomQuery == "" {
		return nil, apperr.Validation("report %s has no query", report.Name)
	}
	args, err := queryArgs(report.Config, params)
	if err != nil {
		return nil, err
	}

	key := cacheKey(report.ID, params)
	started := s.now().UTC()
	exec := &models.ReportExecution{
		ID:         uuid.New(),
		ReportID:   report.ID,
		ScheduleID: scheduleID,
		UserID:     userID,
		Status:     models.ExecutionRunning,
		Parameters: params,
		StartedAt:  started,
		CacheKey:   &key,
	}
	if err := s.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to record execution: %w", err)
	}

	log := s.log.WithFields(map[string]any{"report_id": report.ID, "execution_id": exec.ID})

	if result, ok := s.cached(ctx, report, key); ok {
		exec.CacheHit = true
		s.complete(ctx, exec, result, started)
		log.Info("report served from cache", "rows", result.RowCount)
		return &ExecutionOutcome{Report: report, Execution: exec, Result: result}, nil
	}

	qctx, cancel := context.WithTimeout(ctx, reportTimeout(report))
	defer cancel()

	result, err := s.provider.Query(qctx, *report.CustomQuery, args)
	if err != nil {
		status := models.ExecutionFailed
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(qctx.Err(), context.DeadlineExceeded) {
			status = models.ExecutionTimeout
			err = apperr.IO(err, "report %s exceeded %s", report.Name, reportTimeout(report))
		}
		s.fail(ctx, exec, status, err, started)
		log.Error("report execution failed", "status", status, "error", err)
		return &ExecutionOutcome{Report: report, Execution: exec}, err
	}

	s.remember(ctx, report, key, result)
	s.complete(ctx, exec, result, started)
	log.Info("report executed", "rows", result.RowCount, "duration_ms", exec.DurationMs)
	return &ExecutionOutcome{Report: report, Execution: exec, Result: result}, nil
}

// GetExecution returns one execution record
func (s *ReportService) GetExecution(ctx context.Context, id uuid.UUID) (*models.ReportExecution, error) {
	return s.store.GetExecution(ctx, id)
}

func (s *ReportService) cached(ctx context.Context, report *models.Report, key string) (*ReportResult, bool) {
	if s.cache == nil || cacheTTL(report) == 0 {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("report cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var result ReportResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.log.Warn("discarding unreadable cache entry", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (s *ReportService) remember(ctx context.Context, report *models.Report, key string, result *ReportResult) {
	ttl := cacheTTL(report)
	if s.cache == nil || ttl == 0 {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		s.log.Warn("failed to encode report result", "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, raw, ttl); err != nil {
		s.log.Warn("report cache write failed", "key", key, "error", err)
	}
}

func (s *ReportService) complete(ctx context.Context, exec *models.ReportExecution, result *ReportResult, started time.Time) {
	done := s.now().UTC()
	exec.Status = models.ExecutionCompleted
	exec.CompletedAt = &done
	exec.DurationMs = done.Sub(started).Milliseconds()
	exec.RowCount = result.RowCount
	if raw, err := json.Marshal(result); err == nil {
		exec.ResultSize = int64(len(raw))
	}
	if err := s.store.UpdateExecution(ctx, exec); err != nil {
		s.log.Error("failed to record execution result", "execution_id", exec.ID, "error", err)
	}
	if err := s.store.TouchReport(ctx, exec.ReportID, done); err != nil {
		s.log.Warn("failed to update report counters", "report_id", exec.ReportID, "error", err)
	}
}

func (s *ReportService) fail(ctx context.Context, exec *models.ReportExecution, status models.ExecutionStatus, cause error, started time.Time) {
	done := s.now().UTC()
	msg := cause.Error()
	exec.Status = status
	exec.CompletedAt = &done
	exec.DurationMs = done.Sub(started).Milliseconds()
	exec.ErrorMessage = &msg
	if err := s.store.UpdateExecution(ctx, exec); err != nil {
		s.log.Error("failed to record execution failure", "execution_id", exec.ID, "error", err)
	}
}

func reportTimeout(r *models.Report) time.Duration {
	secs := r.TimeoutSeconds
	switch {
	case secs <= 0:
		secs = models.DefaultReportTimeoutSeconds
	case secs > models.MaxReportTimeoutSeconds:
		secs = models.MaxReportTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}

func cacheTTL(r *models.Report) time.Duration {
	mins := r.CacheDurationMinutes
	if mins <= 0 {
		return 0
	}
	if mins > models.MaxCacheDurationMinutes {
		mins = models.MaxCacheDurationMinutes
	}
	return time.Duration(mins) * time.Minute
}

// cacheKey hashes the report id with its parameters. json.Marshal sorts
// map keys so equal parameter sets hash equally.
func cacheKey(reportID uuid.UUID, params map[string]any) string {
	raw, _ := json.Marshal(params)
	sum := sha256.Sum256(append([]byte(reportID.String()+":"), raw...))
	return "report:" + reportID.String() + ":" + hex.EncodeToString(sum[:16])
}

// queryArgs binds params to the positional placeholders declared by
// config.parameters, in declaration order. An entry is either a name or
// {name, default, required}.
func queryArgs(config map[string]any, params map[string]any) ([]any, error) {
	decl, _ := config["parameters"].([]any)
	args := make([]any, 0, len(decl))
	for i, d := range decl {
		var (
			name     string
			def      any
			required bool
		)
		switch v := d.(type) {
		case string:
			name = v
		case map[string]any:
			name, _ = v["name"].(string)
			def = v["default"]
			required, _ = v["required"].(bool)
		}
		if name == "" {
			return nil, apperr.Validation("report parameter %d has no name", i+1)
		}

		val, ok := params[name]
		if !ok {
			if required && def == nil {
				return nil, apperr.Validation("missing report parameter: %s", name)
			}
			val = def
		}
		args = append(args, val)
	}
	return args, nil
}
