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

const taskColumns = `id, project_id, parent_id, title, status, priority, start_date, due_date, completed_at,
	assignees, created_at, updated_at`

// TaskRepository loads project tasks and their dependency edges
type TaskRepository struct {
	db *db.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(database *db.DB) *TaskRepository {
	return &TaskRepository{db: database}
}

// ListProjectTasks returns every task of a project with its dependencies
func (r *TaskRepository) ListProjectTasks(ctx context.Context, projectID uuid.UUID) ([]models.Task, error) {
	return r.listTasks(ctx, `SELECT `+taskColumns+` FROM task WHERE project_id = $1 ORDER BY created_at`, projectID)
}

// ListTasksForUsers returns tasks assigned to any of userIDs that overlap
// the window [from, to]
func (r *TaskRepository) ListTasksForUsers(ctx context.Context, userIDs []string, from, to time.Time) ([]models.Task, error) {
	return r.listTasks(ctx, `
		SELECT `+taskColumns+`
		FROM task
		WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements(assignees) a WHERE a->>'userId' = ANY($1)
		)
		AND COALESCE(start_date, created_at) <= $3
		AND COALESCE(due_date, start_date, created_at) >= $2
		ORDER BY created_at
	`, textArray(userIDs), from, to)
}

func (r *TaskRepository) listTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	index := make(map[uuid.UUID]int)
	var ids []uuid.UUID
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(
			&t.ID,
			&t.ProjectID,
			&t.ParentID,
			&t.Title,
			&t.Status,
			&t.Priority,
			&t.StartDate,
			&t.DueDate,
			&t.CompletedAt,
			&t.Assignees,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		index[t.ID] = len(tasks)
		ids = append(ids, t.ID)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return tasks, nil
	}

	deps, err := r.db.Query(ctx, `
		SELECT id, task_id, depends_on_task_id, dependency_type, lag_days, is_critical_path
		FROM task_dependency
		WHERE task_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list task dependencies: %w", err)
	}
	defer deps.Close()

	for deps.Next() {
		var d models.Dependency
		if err := deps.Scan(&d.ID, &d.TaskID, &d.DependsOnTaskID, &d.DependencyType, &d.LagDays, &d.IsCriticalPath); err != nil {
			return nil, fmt.Errorf("failed to scan task dependency: %w", err)
		}
		i := index[d.TaskID]
		tasks[i].Dependencies = append(tasks[i].Dependencies, d)
	}
	return tasks, deps.Err()
}

// SetCriticalPath stores the critical flag of each dependency edge
func (r *TaskRepository) SetCriticalPath(ctx context.Context, flags map[uuid.UUID]bool) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for id, critical := range flags {
			batch.Queue(`UPDATE task_dependency SET is_critical_path = $2 WHERE id = $1`, id, critical)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to update critical path: %w", err)
		}
		return nil
	})
}
