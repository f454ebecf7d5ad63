// Package cpm computes critical-path schedules over a task graph. Times
// are whole days counted from the earliest task start.
package cpm

import (
	"time"

	"github.com/google/uuid"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/models"
)

// DefaultTaskDays is the span given to tasks missing one of their dates
const DefaultTaskDays = 7

const day = 24 * time.Hour

// Node is one task with its computed window
type Node struct {
	TaskID    uuid.UUID  `json:"id"`
	ParentID  *uuid.UUID `json:"parentId,omitempty"`
	Title     string     `json:"title"`
	Status    string     `json:"status"`
	StartDate time.Time  `json:"startDate"`
	EndDate   time.Time  `json:"endDate"`
	Duration  int        `json:"duration"`
	Progress  int        `json:"progress"`
	IsOverdue bool       `json:"isOverdue"`

	EarliestStart  int  `json:"earliestStart"`
	EarliestFinish int  `json:"earliestFinish"`
	LatestStart    int  `json:"latestStart"`
	LatestFinish   int  `json:"latestFinish"`
	Slack          int  `json:"slack"`
	Critical       bool `json:"isCritical"`

	Dependencies []models.Dependency `json:"dependencies"`

	index int
}

// Schedule is the result of Compute
type Schedule struct {
	ProjectStart time.Time   `json:"projectStart"`
	ProjectEnd   time.Time   `json:"projectEnd"`
	Duration     int         `json:"duration"`
	Nodes        []*Node     `json:"tasks"`
	CriticalPath []uuid.UUID `json:"criticalPath"`
}

// Node returns the node of a task
func (s *Schedule) Node(id uuid.UUID) *Node {
	for _, n := range s.Nodes {
		if n.TaskID == id {
			return n
		}
	}
	return nil
}

// Date converts a day offset into a calendar date
func (s *Schedule) Date(offset int) time.Time {
	return s.ProjectStart.Add(time.Duration(offset) * day)
}

// Compute runs the forward and backward passes over tasks. Passes follow
// dependency order, ties broken by input order. A dependency cycle is a
// validation error. Dependencies on tasks outside the input are ignored.
func Compute(tasks []models.Task, now time.Time) (*Schedule, error) {
	s := &Schedule{Nodes: make([]*Node, 0, len(tasks)), CriticalPath: []uuid.UUID{}}
	if len(tasks) == 0 {
		return s, nil
	}

	byID := make(map[uuid.UUID]*Node, len(tasks))
	children := make(map[uuid.UUID][]models.Task)
	for _, t := range tasks {
		if t.ParentID != nil {
			children[*t.ParentID] = append(children[*t.ParentID], t)
		}
	}

	for i, t := range tasks {
		start, end := Timeline(t, now)
		n := &Node{
			TaskID:       t.ID,
			ParentID:     t.ParentID,
			Title:        t.Title,
			Status:       t.Status,
			StartDate:    start,
			EndDate:      end,
			Duration:     Days(start, end) + 1,
			Progress:     Progress(t, children[t.ID], now),
			IsOverdue:    t.Status != models.TaskCompleted && end.Before(truncate(now)),
			Dependencies: append([]models.Dependency(nil), t.Dependencies...),
			index:        i,
		}
		if _, dup := byID[t.ID]; dup {
			return nil, apperr.Validation("task %s listed twice", t.ID)
		}
		byID[t.ID] = n
		s.Nodes = append(s.Nodes, n)
		if i == 0 || start.Before(s.ProjectStart) {
			s.ProjectStart = start
		}
	}

	order, err := topoOrder(s.Nodes, byID)
	if err != nil {
		return nil, err
	}

	forward(s, order, byID)
	backward(s, order, byID)

	for _, n := range s.Nodes {
		n.Slack = n.LatestStart - n.EarliestStart
		n.Critical = n.Slack == 0
		for i := range n.Dependencies {
			n.Dependencies[i].IsCriticalPath = n.Critical
		}
	}
	for _, n := range order {
		if n.Critical {
			s.CriticalPath = append(s.CriticalPath, n.TaskID)
		}
	}
	return s, nil
}

func forward(s *Schedule, order []*Node, byID map[uuid.UUID]*Node) {
	for _, n := range order {
		n.EarliestStart = Days(s.ProjectStart, n.StartDate)
		for _, d := range n.Dependencies {
			p, ok := byID[d.DependsOnTaskID]
			if !ok {
				continue
			}
			var candidate int
			switch d.DependencyType {
			case models.StartToStart:
				candidate = p.EarliestStart + d.LagDays
			case models.FinishToFinish:
				candidate = p.EarliestFinish - n.Duration + d.LagDays
			case models.StartToFinish:
				candidate = p.EarliestStart - n.Duration + d.LagDays
			default:
				candidate = p.EarliestFinish + d.LagDays
			}
			if candidate > n.EarliestStart {
				n.EarliestStart = candidate
			}
		}
		n.EarliestFinish = n.EarliestStart + n.Duration
		if n.EarliestFinish > s.Duration {
			s.Duration = n.EarliestFinish
		}
	}
	s.ProjectEnd = s.Date(s.Duration)
}

func backward(s *Schedule, order []*Node, byID map[uuid.UUID]*Node) {
	successors := make(map[uuid.UUID][]successor)
	for _, n := range order {
		for _, d := range n.Dependencies {
			if _, ok := byID[d.DependsOnTaskID]; ok {
				successors[d.DependsOnTaskID] = append(successors[d.DependsOnTaskID], successor{node: n, dep: d})
			}
		}
	}

	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		lf := s.Duration
		for _, sc := range successors[n.TaskID] {
			var limit int
			switch sc.dep.DependencyType {
			case models.StartToStart:
				limit = sc.node.LatestStart - sc.dep.LagDays + n.Duration
			case models.FinishToFinish:
				limit = sc.node.LatestFinish - sc.dep.LagDays
			case models.StartToFinish:
				limit = sc.node.LatestFinish - sc.dep.LagDays + n.Duration
			default:
				limit = sc.node.LatestStart - sc.dep.LagDays
			}
			if limit < lf {
				lf = limit
			}
		}
		n.LatestFinish = lf
		n.LatestStart = lf - n.Duration
	}
}

type successor struct {
	node *Node
	dep  models.Dependency
}

// topoOrder is Kahn's algorithm always taking the earliest ready task in
// input order
func topoOrder(nodes []*Node, byID map[uuid.UUID]*Node) ([]*Node, error) {
	indegree := make(map[uuid.UUID]int, len(nodes))
	dependents := make(map[uuid.UUID][]*Node)
	for _, n := range nodes {
		for _, d := range n.Dependencies {
			if d.DependsOnTaskID == n.TaskID {
				return nil, apperr.Validation("task %s depends on itself", n.TaskID)
			}
			if _, ok := byID[d.DependsOnTaskID]; !ok {
				continue
			}
			indegree[n.TaskID]++
			dependents[d.DependsOnTaskID] = append(dependents[d.DependsOnTaskID], n)
		}
	}

	done := make([]bool, len(nodes))
	order := make([]*Node, 0, len(nodes))
	for len(order) < len(nodes) {
		next := -1
		for i, n := range nodes {
			if !done[i] && indegree[n.TaskID] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, apperr.Validation("task dependencies contain a cycle")
		}
		n := nodes[next]
		done[next] = true
		order = append(order, n)
		for _, dep := range dependents[n.TaskID] {
			indegree[dep.TaskID]--
		}
	}
	return order, nil
}

// Timeline returns a task's day-aligned start and end. Missing dates are
// filled from now and a seven day span.
func Timeline(t models.Task, now time.Time) (start, end time.Time) {
	switch {
	case t.StartDate != nil && t.DueDate != nil:
		start, end = truncate(*t.StartDate), truncate(*t.DueDate)
	case t.StartDate != nil:
		start = truncate(*t.StartDate)
		end = start.Add(DefaultTaskDays * day)
	case t.DueDate != nil:
		end = truncate(*t.DueDate)
		start = end.Add(-DefaultTaskDays * day)
	default:
		start = truncate(now)
		end = start.Add(DefaultTaskDays * day)
	}
	if end.Before(start) {
		end = start
	}
	return start, end
}

// Days is the whole number of days from a to b
func Days(a, b time.Time) int {
	return int(truncate(b).Sub(truncate(a)).Round(day) / day)
}

func truncate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Progress estimates completion in percent. Subtasks decide when present;
// otherwise running tasks are estimated from elapsed time, capped at 90.
func Progress(t models.Task, subtasks []models.Task, now time.Time) int {
	switch t.Status {
	case models.TaskCompleted:
		return 100
	case models.TaskCancelled:
		return 0
	}

	if len(subtasks) > 0 {
		completed := 0
		for _, st := range subtasks {
			if st.Status == models.TaskCompleted {
				completed++
			}
		}
		return completed * 100 / len(subtasks)
	}

	running := t.Status == models.TaskInProgress || t.Status == models.TaskReview
	if running && t.StartDate != nil && t.DueDate != nil && t.DueDate.After(*t.StartDate) {
		total := t.DueDate.Sub(*t.StartDate)
		elapsed := now.Sub(*t.StartDate)
		if elapsed < 0 {
			return 0
		}
		pct := int(elapsed * 100 / total)
		if pct > 90 {
			pct = 90
		}
		return pct
	}

	if t.Status == models.TaskInProgress {
		return 50
	}
	return 0
}
