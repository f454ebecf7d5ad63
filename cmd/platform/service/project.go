package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/cpm"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/models"
)

// maxAllocationDays bounds a resource allocation query
const maxAllocationDays = 366

// ProjectService exposes Gantt data, resource load and schedule
// suggestions for projects
type ProjectService struct {
	tasks TaskStore
	log   *logger.Logger
	now   func() time.Time
}

// NewProjectService creates a project service
func NewProjectService(tasks TaskStore, log *logger.Logger) *ProjectService {
	return &ProjectService{tasks: tasks, log: log, now: time.Now}
}

// Gantt computes the critical-path schedule of a project and persists the
// critical flag of every dependency
func (s *ProjectService) Gantt(ctx context.Context, projectID uuid.UUID) (*cpm.Schedule, error) {
	tasks, err := s.tasks.ListProjectTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sched, err := cpm.Compute(tasks, s.now())
	if err != nil {
		return nil, err
	}

	flags := make(map[uuid.UUID]bool)
	for _, n := range sched.Nodes {
		for _, d := range n.Dependencies {
			if d.ID != uuid.Nil {
				flags[d.ID] = d.IsCriticalPath
			}
		}
	}
	if len(flags) > 0 {
		if err := s.tasks.SetCriticalPath(ctx, flags); err != nil {
			return nil, fmt.Errorf("failed to persist critical path: %w", err)
		}
	}

	s.log.Debug("gantt computed",
		"project_id", projectID,
		"tasks", len(sched.Nodes),
		"critical", len(sched.CriticalPath),
		"duration_days", sched.Duration,
	)
	return sched, nil
}

// ResourceQuery selects the tasks and days of a resource allocation
type ResourceQuery struct {
	ProjectID *uuid.UUID
	UserIDs   []string
	StartDate time.Time
	EndDate   time.Time
}

// Resources sums per-user allocation for every day in the query range
func (s *ProjectService) Resources(ctx context.Context, q ResourceQuery) (cpm.Allocation, error) {
	if q.StartDate.IsZero() || q.EndDate.IsZero() {
		return nil, apperr.Validation("startDate and endDate are required")
	}
	if q.EndDate.Before(q.StartDate) {
		return nil, apperr.Validation("endDate must not be before startDate")
	}
	if cpm.Days(q.StartDate, q.EndDate) > maxAllocationDays {
		return nil, apperr.Validation("range may span at most %d days", maxAllocationDays)
	}
	if q.ProjectID == nil && len(q.UserIDs) == 0 {
		return nil, apperr.Validation("projectId or userIds is required")
	}

	var (
		tasks []models.Task
		err   error
	)
	if q.ProjectID != nil {
		tasks, err = s.tasks.ListProjectTasks(ctx, *q.ProjectID)
	} else {
		tasks, err = s.tasks.ListTasksForUsers(ctx, q.UserIDs, q.StartDate, q.EndDate)
	}
	if err != nil {
		return nil, err
	}

	return cpm.ResourceAllocation(tasks, cpm.AllocationQuery{
		UserIDs:   q.UserIDs,
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
	}, s.now()), nil
}

// Suggestions proposes later due dates for tasks whose dependencies end
// too late
func (s *ProjectService) Suggestions(ctx context.Context, projectID uuid.UUID) ([]cpm.Suggestion, error) {
	tasks, err := s.tasks.ListProjectTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return cpm.Suggestions(tasks, s.now()), nil
}
