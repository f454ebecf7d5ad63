package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/clients"
	"github.com/exprsn/platform/common/gitrepo"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/models"
)

type prFixture struct {
	svc      *PullRequestService
	git      *memGit
	merger   *fakeMerger
	ci       *fakeCI
	notifier *recordingNotifier
	events   *recordingPublisher
	repo     *models.Repository
}

func newPRFixture(t *testing.T, pipelines ...*models.Pipeline) *prFixture {
	t.Helper()
	repo := &models.Repository{ID: uuid.New(), Name: "crm-app", DefaultBranch: "main"}
	git := newMemGit(repo)
	for _, b := range []string{"main", "feature/login", "feature/search"} {
		require.NoError(t, git.UpsertBranch(context.Background(), &models.Branch{
			ID: uuid.New(), RepositoryID: repo.ID, Name: b, CommitSHA: "sha-" + b,
		}))
	}
	for _, p := range pipelines {
		p.RepositoryID = repo.ID
	}
	git.pipelines = pipelines

	merger := &fakeMerger{check: &gitrepo.MergeResult{Mergeable: true, Conflicts: []string{}}, sha: "merge-sha"}
	ci := &fakeCI{}
	notifier := &recordingNotifier{}
	events := &recordingPublisher{}
	svc, err := NewPullRequestService(git, merger, ci, notifier, events, logger.Discard())
	require.NoError(t, err)
	svc.now = clock(t0)

	return &prFixture{svc: svc, git: git, merger: merger, ci: ci, notifier: notifier, events: events, repo: repo}
}

func (f *prFixture) open(t *testing.T, in CreatePullRequestInput) *models.PullRequest {
	t.Helper()
	if in.Title == "" {
		in.Title = "Add login"
	}
	if in.SourceBranch == "" {
		in.SourceBranch = "feature/login"
	}
	if in.TargetBranch == "" {
		in.TargetBranch = "main"
	}
	pr, err := f.svc.Create(context.Background(), f.repo.ID, "alice", in)
	require.NoError(t, err)
	return pr
}

func TestCreate_NumbersSequentiallyUnderConcurrency(t *testing.T) {
	f := newPRFixture(t)

	const n = 20
	var wg sync.WaitGroup
	numbers := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pr, err := f.svc.Create(context.Background(), f.repo.ID, "alice", CreatePullRequestInput{
				Title: "change", SourceBranch: "feature/login", TargetBranch: "main",
			})
			if assert.NoError(t, err) {
				numbers <- pr.Number
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int]bool)
	for num := range numbers {
		assert.False(t, seen[num], "duplicate number %d", num)
		seen[num] = true
	}
	for i := 1; i <= n; i++ {
		assert.True(t, seen[i], "missing number %d", i)
	}
	assert.Equal(t, n, f.git.openCount(f.repo.ID))
}

func TestCreate_ValidatesInput(t *testing.T) {
	f := newPRFixture(t)

	_, err := f.svc.Create(context.Background(), f.repo.ID, "alice", CreatePullRequestInput{Title: "x", SourceBranch: "main", TargetBranch: "main"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.svc.Create(context.Background(), f.repo.ID, "alice", CreatePullRequestInput{Title: "x", SourceBranch: "nope", TargetBranch: "main"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreate_MergeCheckFailureMarksUnmergeable(t *testing.T) {
	f := newPRFixture(t)
	f.merger.err = errors.New("no workspace")

	pr := f.open(t, CreatePullRequestInput{})
	assert.False(t, pr.Mergeable)
	assert.Equal(t, 1, pr.Number)
}

func TestCreate_NotifiesReviewersAndTriggersPipelines(t *testing.T) {
	checks := &models.Pipeline{ID: uuid.New(), Name: "pr-checks", TriggerOn: []string{models.TriggerPullRequest}, Branches: []string{"main"}, Active: true}
	f := newPRFixture(t,
		&models.Pipeline{ID: uuid.New(), Name: "zz-lint", TriggerOn: []string{models.TriggerPullRequest}, Active: true},
		checks,
		&models.Pipeline{ID: uuid.New(), Name: "release", TriggerOn: []string{models.TriggerPullRequest}, Branches: []string{"release/*"}, Active: true},
		&models.Pipeline{ID: uuid.New(), Name: "inactive", TriggerOn: []string{models.TriggerPullRequest}, Active: false},
		&models.Pipeline{ID: uuid.New(), Name: "conditional", TriggerOn: []string{models.TriggerPullRequest}, Active: true, Condition: `pr.title.startsWith("WIP")`},
	)

	pr := f.open(t, CreatePullRequestInput{Reviewers: []string{"bob", "carol", "bob"}})

	require.Len(t, f.ci.triggers, 1)
	assert.Equal(t, checks.ID.String(), f.ci.pipelines[0])
	assert.Equal(t, models.TriggerPullRequest, f.ci.triggers[0].Event)
	assert.Equal(t, "sha-feature/login", f.ci.triggers[0].CommitSHA)

	stored, err := f.svc.Get(context.Background(), f.repo.ID, pr.Number)
	require.NoError(t, err)
	assert.Equal(t, models.CIPending, stored.CIStatus)

	sent := f.notifier.notifications()
	require.Len(t, sent, 2)
	assert.Equal(t, "bob", sent[0].UserID)
	assert.Equal(t, NotifyReviewRequested, sent[0].Type)
	assert.Contains(t, f.events.names(), "pull_request.created")
}

func TestMerge_OpenMergeablePR(t *testing.T) {
	f := newPRFixture(t,
		&models.Pipeline{ID: uuid.New(), Name: "deploy", TriggerOn: []string{models.TriggerPush}, Branches: []string{"main"}, Active: true},
	)
	pr := f.open(t, CreatePullRequestInput{})
	require.Equal(t, 1, f.git.openCount(f.repo.ID))

	merged, err := f.svc.Merge(context.Background(), f.repo.ID, pr.Number, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, models.PRStateMerged, merged.State)
	require.NotNil(t, merged.MergeCommitSHA)
	assert.Equal(t, "merge-sha", *merged.MergeCommitSHA)
	assert.Equal(t, "bob", *merged.MergedBy)
	assert.Equal(t, 0, f.git.openCount(f.repo.ID))

	mainBranch, err := f.git.GetBranch(context.Background(), f.repo.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, "merge-sha", mainBranch.CommitSHA)

	require.Len(t, f.ci.triggers, 1)
	assert.Equal(t, models.TriggerPush, f.ci.triggers[0].Event)
	assert.Equal(t, "merge-sha", f.ci.triggers[0].CommitSHA)
}

func TestMerge_RejectsIllegalStates(t *testing.T) {
	f := newPRFixture(t)
	ctx := context.Background()

	draft := f.open(t, CreatePullRequestInput{Draft: true})
	_, err := f.svc.Merge(ctx, f.repo.ID, draft.Number, "bob", "")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	blocked := f.open(t, CreatePullRequestInput{SourceBranch: "feature/search"})
	_, err = f.svc.SubmitReview(ctx, f.repo.ID, blocked.Number, "bob", models.ReviewChangesRequested)
	require.NoError(t, err)
	_, err = f.svc.Merge(ctx, f.repo.ID, blocked.Number, "bob", "")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Zero(t, f.merger.merged)
}

func TestMerge_ConflictsAreRecorded(t *testing.T) {
	f := newPRFixture(t)
	pr := f.open(t, CreatePullRequestInput{})

	f.merger.check = &gitrepo.MergeResult{Mergeable: false, Conflicts: []string{"entities/customer.json"}}
	_, err := f.svc.Merge(context.Background(), f.repo.ID, pr.Number, "bob", "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, []string{"entities/customer.json"}, apperr.DetailsOf(err)["conflicts"])

	stored, err := f.svc.Get(context.Background(), f.repo.ID, pr.Number)
	require.NoError(t, err)
	assert.Equal(t, models.PRStateOpen, stored.State)
	assert.False(t, stored.Mergeable)
	assert.Equal(t, []string{"entities/customer.json"}, stored.Conflicts)
}

func TestClose_MergedIsRejected(t *testing.T) {
	f := newPRFixture(t)
	ctx := context.Background()
	pr := f.open(t, CreatePullRequestInput{})

	_, err := f.svc.Merge(ctx, f.repo.ID, pr.Number, "bob", "")
	require.NoError(t, err)

	_, err = f.svc.Close(ctx, f.repo.ID, pr.Number)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestDraftLifecycle_TracksOpenCount(t *testing.T) {
	f := newPRFixture(t)
	ctx := context.Background()

	draft := f.open(t, CreatePullRequestInput{Draft: true})
	assert.Equal(t, 0, f.git.openCount(f.repo.ID))

	ready, err := f.svc.MarkReady(ctx, f.repo.ID, draft.Number)
	require.NoError(t, err)
	assert.Equal(t, models.PRStateOpen, ready.State)
	assert.Equal(t, 1, f.git.openCount(f.repo.ID))

	_, err = f.svc.MarkReady(ctx, f.repo.ID, draft.Number)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	closed, err := f.svc.Close(ctx, f.repo.ID, draft.Number)
	require.NoError(t, err)
	assert.Equal(t, models.PRStateClosed, closed.State)
	assert.Equal(t, 0, f.git.openCount(f.repo.ID))
}

func TestUpdateCIStatus_FailureNotifiesAuthor(t *testing.T) {
	f := newPRFixture(t)
	pr := f.open(t, CreatePullRequestInput{})

	_, err := f.svc.UpdateCIStatus(context.Background(), f.repo.ID, pr.Number, models.CIFailure)
	require.NoError(t, err)

	sent := f.notifier.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice", sent[0].UserID)
	assert.Equal(t, clients.PriorityHigh, sent[0].Priority)
}

func TestBranchMatches(t *testing.T) {
	assert.True(t, branchMatches(nil, "main"))
	assert.True(t, branchMatches([]string{"release/*"}, "release/1.2"))
	assert.False(t, branchMatches([]string{"release/*"}, "main"))
}
