package models

import (
	"time"

	"github.com/google/uuid"
)

// Task statuses
const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskReview     = "review"
	TaskCompleted  = "completed"
	TaskCancelled  = "cancelled"
)

// DependencyType is one of the four precedence relations
type DependencyType string

const (
	FinishToStart  DependencyType = "finish_to_start"
	StartToStart   DependencyType = "start_to_start"
	FinishToFinish DependencyType = "finish_to_finish"
	StartToFinish  DependencyType = "start_to_finish"
)

// Task is a unit of project work
type Task struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ProjectID   *uuid.UUID `db:"project_id" json:"projectId,omitempty"`
	ParentID    *uuid.UUID `db:"parent_id" json:"parentId,omitempty"`
	Title       string     `db:"title" json:"title"`
	Status      string     `db:"status" json:"status"`
	Priority    string     `db:"priority" json:"priority,omitempty"`
	StartDate   *time.Time `db:"start_date" json:"startDate,omitempty"`
	DueDate     *time.Time `db:"due_date" json:"dueDate,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`

	Assignees    []TaskAssignee `db:"assignees" json:"assignees,omitempty"`
	Dependencies []Dependency   `db:"-" json:"dependencies,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// TaskAssignee allocates a share of a user's day to a task
type TaskAssignee struct {
	UserID               string  `json:"userId"`
	AllocationPercentage float64 `json:"allocationPercentage"`
}

// Dependency says TaskID depends on DependsOnTaskID
type Dependency struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	TaskID          uuid.UUID      `db:"task_id" json:"taskId"`
	DependsOnTaskID uuid.UUID      `db:"depends_on_task_id" json:"dependsOnTaskId"`
	DependencyType  DependencyType `db:"dependency_type" json:"dependencyType"`
	LagDays         int            `db:"lag_days" json:"lagDays"`
	IsCriticalPath  bool           `db:"is_critical_path" json:"isCriticalPath"`
}
