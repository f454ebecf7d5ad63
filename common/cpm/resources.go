package cpm

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/exprsn/platform/common/models"
)

// DateKeyFormat keys allocation days
const DateKeyFormat = "2006-01-02"

// DayLoad is one user's booked share of one day
type DayLoad struct {
	Tasks                []uuid.UUID `json:"tasks"`
	AllocationPercentage float64     `json:"allocationPercentage"`
}

// Allocation maps userId to dateKey to load
type Allocation map[string]map[string]*DayLoad

// AllocationQuery narrows ResourceAllocation
type AllocationQuery struct {
	UserIDs   []string
	StartDate time.Time
	EndDate   time.Time
}

// ResourceAllocation sums allocationPercentage per user and day over every
// day a task spans inside the query range
func ResourceAllocation(tasks []models.Task, q AllocationQuery, now time.Time) Allocation {
	wanted := make(map[string]bool, len(q.UserIDs))
	for _, u := range q.UserIDs {
		wanted[u] = true
	}
	from, to := truncate(q.StartDate), truncate(q.EndDate)

	out := make(Allocation)
	for _, t := range tasks {
		if len(t.Assignees) == 0 {
			continue
		}
		start, end := Timeline(t, now)
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}

		for d := start; !d.After(end); d = d.Add(day) {
			key := d.Format(DateKeyFormat)
			for _, a := range t.Assignees {
				if len(wanted) > 0 && !wanted[a.UserID] {
					continue
				}
				days, ok := out[a.UserID]
				if !ok {
					days = make(map[string]*DayLoad)
					out[a.UserID] = days
				}
				load, ok := days[key]
				if !ok {
					load = &DayLoad{Tasks: []uuid.UUID{}}
					days[key] = load
				}
				load.Tasks = append(load.Tasks, t.ID)
				load.AllocationPercentage += a.AllocationPercentage
			}
		}
	}
	return out
}

// Overallocated lists the user days booked above 100 percent, sorted
func (a Allocation) Overallocated() []string {
	var out []string
	for user, days := range a {
		for key, load := range days {
			if load.AllocationPercentage > 100 {
				out = append(out, user+"@"+key)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Suggestion proposes a later due date for a task blocked by dependencies
type Suggestion struct {
	TaskID           uuid.UUID  `json:"taskId"`
	CurrentDueDate   *time.Time `json:"currentDueDate"`
	SuggestedDueDate time.Time  `json:"suggestedDueDate"`
	Reason           string     `json:"reason"`
}

// Suggestions checks every open task against the end of its latest
// dependency plus lag and proposes a due date that fits its duration
func Suggestions(tasks []models.Task, now time.Time) []Suggestion {
	byID := make(map[uuid.UUID]models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	out := []Suggestion{}
	for _, t := range tasks {
		if t.Status == models.TaskCompleted || t.Status == models.TaskCancelled || len(t.Dependencies) == 0 {
			continue
		}

		var latest time.Time
		found := false
		for _, d := range t.Dependencies {
			p, ok := byID[d.DependsOnTaskID]
			if !ok {
				continue
			}
			_, pEnd := Timeline(p, now)
			candidate := pEnd.Add(time.Duration(d.LagDays) * day)
			if !found || candidate.After(latest) {
				latest, found = candidate, true
			}
		}
		if !found {
			continue
		}

		start, end := Timeline(t, now)
		suggested := latest.Add(time.Duration(Days(start, end)+1) * day)
		if !suggested.After(end) {
			continue
		}
		out = append(out, Suggestion{
			TaskID:           t.ID,
			CurrentDueDate:   t.DueDate,
			SuggestedDueDate: suggested,
			Reason:           "dependencies finish on " + latest.Format(DateKeyFormat),
		})
	}
	return out
}
