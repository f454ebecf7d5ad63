package cpm

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/models"
)

var day0 = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

func at(offset int) *time.Time {
	t := day0.Add(time.Duration(offset) * day)
	return &t
}

// task spans duration days starting at day0+offset
func task(title string, offset, duration int, deps ...models.Dependency) models.Task {
	return models.Task{
		ID:           uuid.New(),
		Title:        title,
		Status:       models.TaskTodo,
		StartDate:    at(offset),
		DueDate:      at(offset + duration - 1),
		Dependencies: deps,
	}
}

func dep(on models.Task, kind models.DependencyType, lag int) models.Dependency {
	return models.Dependency{ID: uuid.New(), DependsOnTaskID: on.ID, DependencyType: kind, LagDays: lag}
}

func TestCriticalPathTriangle(t *testing.T) {
	a := task("A", 0, 3)
	b := task("B", 0, 2, dep(a, models.FinishToStart, 0))
	c := task("C", 0, 4, dep(a, models.FinishToStart, 0))
	d := task("D", 0, 1, dep(b, models.FinishToStart, 0), dep(c, models.FinishToStart, 0))

	s, err := Compute([]models.Task{a, b, c, d}, day0)
	require.NoError(t, err)

	ef := map[string]int{}
	slack := map[string]int{}
	for _, n := range s.Nodes {
		ef[n.Title] = n.EarliestFinish
		slack[n.Title] = n.Slack
	}
	assert.Equal(t, map[string]int{"A": 3, "B": 5, "C": 7, "D": 8}, ef)
	assert.Equal(t, map[string]int{"A": 0, "B": 2, "C": 0, "D": 0}, slack)
	assert.Equal(t, []uuid.UUID{a.ID, c.ID, d.ID}, s.CriticalPath)
	assert.Equal(t, 8, s.Duration)
	assert.Equal(t, day0.Add(8*day), s.ProjectEnd)

	for _, dd := range s.Node(d.ID).Dependencies {
		assert.True(t, dd.IsCriticalPath)
	}
	assert.False(t, s.Node(b.ID).Dependencies[0].IsCriticalPath)
}

func TestInputOrderDoesNotMatter(t *testing.T) {
	a := task("A", 0, 3)
	b := task("B", 0, 2, dep(a, models.FinishToStart, 0))
	c := task("C", 0, 4, dep(a, models.FinishToStart, 0))
	d := task("D", 0, 1, dep(b, models.FinishToStart, 0), dep(c, models.FinishToStart, 0))

	s, err := Compute([]models.Task{d, c, b, a}, day0)
	require.NoError(t, err)
	assert.Equal(t, 8, s.Node(d.ID).EarliestFinish)
	assert.Equal(t, 2, s.Node(b.ID).Slack)
	assert.Equal(t, []uuid.UUID{a.ID, c.ID, d.ID}, s.CriticalPath)
}

func TestDependencyKinds(t *testing.T) {
	tests := []struct {
		kind    models.DependencyType
		lag     int
		wantES  int
		wantLFp int
	}{
		{models.FinishToStart, 0, 4, 4},
		{models.FinishToStart, 2, 6, 4},
		{models.FinishToStart, -1, 3, 4},
		{models.StartToStart, 1, 1, 4},
		{models.FinishToFinish, 0, 2, 4},
		{models.FinishToFinish, 3, 5, 4},
		{models.StartToFinish, 0, 0, 4},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			p := task("P", 0, 4)
			s := task("S", 0, 2, dep(p, tt.kind, tt.lag))

			sched, err := Compute([]models.Task{p, s}, day0)
			require.NoError(t, err)

			sn := sched.Node(s.ID)
			assert.Equal(t, tt.wantES, sn.EarliestStart)
			assert.Equal(t, tt.wantES+2, sn.EarliestFinish)
			assert.Equal(t, tt.wantLFp, sched.Node(p.ID).LatestFinish)
		})
	}
}

func TestWindowsNeverInvert(t *testing.T) {
	kinds := []models.DependencyType{models.FinishToStart, models.StartToStart, models.FinishToFinish, models.StartToFinish}
	for _, k1 := range kinds {
		for _, k2 := range kinds {
			for _, lag := range []int{-2, 0, 3} {
				a := task("A", 0, 3)
				b := task("B", 1, 5, dep(a, k1, lag))
				c := task("C", 0, 2, dep(a, k2, lag))
				d := task("D", 2, 1, dep(b, k1, 0), dep(c, k2, lag))

				s, err := Compute([]models.Task{a, b, c, d}, day0)
				require.NoError(t, err)

				hasCritical := false
				for _, n := range s.Nodes {
					assert.LessOrEqual(t, n.EarliestFinish, n.LatestFinish, "%s %s %s lag %d", n.Title, k1, k2, lag)
					assert.GreaterOrEqual(t, n.Slack, 0)
					assert.LessOrEqual(t, n.LatestFinish, s.Duration)
					if n.Critical {
						hasCritical = true
					}
				}
				assert.True(t, hasCritical, "some task must finish at project end")
			}
		}
	}
}

func TestCycleIsValidationError(t *testing.T) {
	a := task("A", 0, 1)
	b := task("B", 0, 1, dep(a, models.FinishToStart, 0))
	a.Dependencies = []models.Dependency{dep(b, models.FinishToStart, 0)}

	_, err := Compute([]models.Task{a, b}, day0)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	self := task("S", 0, 1)
	self.Dependencies = []models.Dependency{dep(self, models.FinishToStart, 0)}
	_, err = Compute([]models.Task{self}, day0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUnknownDependencyIgnored(t *testing.T) {
	a := task("A", 0, 2, models.Dependency{DependsOnTaskID: uuid.New(), DependencyType: models.FinishToStart})
	s, err := Compute([]models.Task{a}, day0)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Node(a.ID).EarliestStart)
	assert.True(t, s.Node(a.ID).Critical)
}

func TestTimelineDefaults(t *testing.T) {
	now := day0.Add(10 * time.Hour)

	start, end := Timeline(models.Task{}, now)
	assert.Equal(t, day0, start)
	assert.Equal(t, day0.Add(7*day), end)

	start, end = Timeline(models.Task{DueDate: at(10)}, now)
	assert.Equal(t, *at(3), start)
	assert.Equal(t, *at(10), end)

	start, end = Timeline(models.Task{StartDate: at(2)}, now)
	assert.Equal(t, *at(2), start)
	assert.Equal(t, *at(9), end)
}

func TestOverdue(t *testing.T) {
	late := task("late", 0, 2)
	done := task("done", 0, 2)
	done.Status = models.TaskCompleted

	s, err := Compute([]models.Task{late, done}, day0.Add(5*day))
	require.NoError(t, err)
	assert.True(t, s.Node(late.ID).IsOverdue)
	assert.False(t, s.Node(done.ID).IsOverdue)
}

func TestProgress(t *testing.T) {
	now := day0.Add(5 * day)

	assert.Equal(t, 100, Progress(models.Task{Status: models.TaskCompleted}, nil, now))
	assert.Equal(t, 0, Progress(models.Task{Status: models.TaskCancelled}, nil, now))

	subs := []models.Task{{Status: models.TaskCompleted}, {Status: models.TaskTodo}, {Status: models.TaskCompleted}, {Status: models.TaskInProgress}}
	assert.Equal(t, 50, Progress(models.Task{Status: models.TaskInProgress}, subs, now))

	running := models.Task{Status: models.TaskInProgress, StartDate: at(0), DueDate: at(10)}
	assert.Equal(t, 50, Progress(running, nil, now))
	assert.Equal(t, 90, Progress(running, nil, day0.Add(30*day)))

	assert.Equal(t, 50, Progress(models.Task{Status: models.TaskInProgress}, nil, now))
	assert.Equal(t, 0, Progress(models.Task{Status: models.TaskTodo}, nil, now))
}

func TestResourceAllocation(t *testing.T) {
	a := task("A", 0, 3)
	a.Assignees = []models.TaskAssignee{{UserID: "u1", AllocationPercentage: 60}, {UserID: "u2", AllocationPercentage: 100}}
	b := task("B", 2, 2)
	b.Assignees = []models.TaskAssignee{{UserID: "u1", AllocationPercentage: 50}}

	alloc := ResourceAllocation([]models.Task{a, b}, AllocationQuery{StartDate: day0, EndDate: day0.Add(10 * day)}, day0)

	u1 := alloc["u1"]
	require.Len(t, u1, 4)
	assert.Equal(t, 60.0, u1["2024-04-01"].AllocationPercentage)
	assert.Equal(t, 110.0, u1["2024-04-03"].AllocationPercentage)
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, u1["2024-04-03"].Tasks)
	assert.Equal(t, 50.0, u1["2024-04-04"].AllocationPercentage)
	assert.Len(t, alloc["u2"], 3)
	assert.Equal(t, []string{"u1@2024-04-03"}, alloc.Overallocated())

	filtered := ResourceAllocation([]models.Task{a, b}, AllocationQuery{UserIDs: []string{"u2"}, StartDate: day0.Add(day), EndDate: day0.Add(day)}, day0)
	assert.Len(t, filtered, 1)
	assert.Len(t, filtered["u2"], 1)
}

func TestSuggestions(t *testing.T) {
	a := task("A", 0, 5)
	b := task("B", 2, 2, dep(a, models.FinishToStart, 1))
	c := task("C", 10, 2, dep(a, models.FinishToStart, 0))
	done := task("done", 0, 1, dep(a, models.FinishToStart, 0))
	done.Status = models.TaskCompleted

	got := Suggestions([]models.Task{a, b, c, done}, day0)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].TaskID)
	assert.Equal(t, b.DueDate, got[0].CurrentDueDate)
	assert.Equal(t, *at(7), got[0].SuggestedDueDate)
	assert.NotEmpty(t, got[0].Reason)
}
