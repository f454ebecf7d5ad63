package service

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/clients"
	"github.com/exprsn/platform/common/condition"
	"github.com/exprsn/platform/common/gitrepo"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/models"
	"github.com/exprsn/platform/common/workspace"
)

// Merger runs dry-run and real merges against a repository
type Merger interface {
	MergeCheck(ctx context.Context, repo *models.Repository, source, target string) (*gitrepo.MergeResult, error)
	Merge(ctx context.Context, repo *models.Repository, source, target, message string, who gitrepo.Signature) (string, error)
}

// WorkspaceMerger merges branches of the repository checked out in the
// workspace
type WorkspaceMerger struct {
	ws *workspace.Workspace
}

// NewWorkspaceMerger creates a merger over ws
func NewWorkspaceMerger(ws *workspace.Workspace) *WorkspaceMerger {
	return &WorkspaceMerger{ws: ws}
}

func (m *WorkspaceMerger) open(repo *models.Repository) (*gitrepo.Repo, error) {
	fs, err := m.ws.Repo(repo.Name)
	if err != nil {
		return nil, err
	}
	return gitrepo.Open(fs)
}

// MergeCheck implements Merger
func (m *WorkspaceMerger) MergeCheck(ctx context.Context, repo *models.Repository, source, target string) (*gitrepo.MergeResult, error) {
	r, err := m.open(repo)
	if err != nil {
		return nil, err
	}
	return r.MergeCheck(ctx, source, target)
}

// Merge implements Merger
func (m *WorkspaceMerger) Merge(ctx context.Context, repo *models.Repository, source, target, message string, who gitrepo.Signature) (string, error) {
	r, err := m.open(repo)
	if err != nil {
		return "", err
	}
	return r.Merge(ctx, source, target, message, who)
}

// PipelineTrigger starts CI runs. *clients.CIClient satisfies it.
type PipelineTrigger interface {
	TriggerPipeline(ctx context.Context, pipelineID string, t clients.PipelineTrigger) (*clients.PipelineRun, error)
}

// NotificationSender enqueues in-app notifications
type NotificationSender interface {
	Send(ctx context.Context, n clients.Notification)
}

// Notification types emitted by the PR engine
const (
	NotifyReviewRequested = "pull_request.review_requested"
	NotifyReviewSubmitted = "pull_request.review_submitted"
	NotifyCIFailed        = "pull_request.ci_failed"
	NotifyMerged          = "pull_request.merged"
)

// PullRequestService drives the pull request state machine
type PullRequestService struct {
	git    GitStore
	merger Merger
	ci     PipelineTrigger
	notify NotificationSender
	events EventPublisher
	cond   *condition.Evaluator
	locks  *idLocks
	log    *logger.Logger
	now    func() time.Time
}

// NewPullRequestService creates a PR engine. ci, notify and events may be nil.
func NewPullRequestService(git GitStore, merger Merger, ci PipelineTrigger, notify NotificationSender, events EventPublisher, log *logger.Logger) (*PullRequestService, error) {
	cond, err := condition.NewEvaluator("pr")
	if err != nil {
		return nil, err
	}
	return &PullRequestService{
		git:    git,
		merger: merger,
		ci:     ci,
		notify: notify,
		events: events,
		cond:   cond,
		locks:  newIDLocks(),
		log:    log,
		now:    time.Now,
	}, nil
}

// CreatePullRequestInput is the body of a create request
type CreatePullRequestInput struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	SourceBranch string   `json:"sourceBranch"`
	TargetBranch string   `json:"targetBranch"`
	Draft        bool     `json:"draft"`
	Reviewers    []string `json:"reviewers"`
}

// Create opens a pull request with the next number of the repository
func (s *PullRequestService) Create(ctx context.Context, repositoryID uuid.UUID, authorID string, in CreatePullRequestInput) (*models.PullRequest, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperr.Validation("title is required")
	}
	if in.SourceBranch == "" || in.TargetBranch == "" {
		return nil, apperr.Validation("sourceBranch and targetBranch are required")
	}
	if in.SourceBranch == in.TargetBranch {
		return nil, apperr.Validation("source and target branch must differ")
	}

	repo, err := s.git.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	src, err := s.git.GetBranch(ctx, repo.ID, in.SourceBranch)
	if err != nil {
		return nil, err
	}
	tgt, err := s.git.GetBranch(ctx, repo.ID, in.TargetBranch)
	if err != nil {
		return nil, err
	}

	state := models.PRStateOpen
	if in.Draft {
		state = models.PRStateDraft
	}
	now := s.now().UTC()
	pr := &models.PullRequest{
		ID:           uuid.New(),
		RepositoryID: repo.ID,
		Title:        in.Title,
		Description:  in.Description,
		AuthorID:     authorID,
		SourceBranch: in.SourceBranch,
		TargetBranch: in.TargetBranch,
		SourceSHA:    src.CommitSHA,
		TargetSHA:    tgt.CommitSHA,
		State:        state,
		Conflicts:    []string{},
		ReviewStatus: models.ReviewNone,
		Reviewers:    dedupe(in.Reviewers),
		CIStatus:     models.CINone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	unlock := s.locks.lock(repo.ID)
	s.applyMergeCheck(ctx, repo, pr)
	err = s.git.CreatePullRequest(ctx, pr)
	unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}

	s.log.Info("pull request created",
		"repository", repo.Name,
		"number", pr.Number,
		"state", pr.State,
		"mergeable", pr.Mergeable,
	)

	s.triggerPipelines(ctx, repo, pr, authorID)
	for _, reviewer := range pr.Reviewers {
		s.send(ctx, reviewer, NotifyReviewRequested, pr, clients.PriorityNormal,
			fmt.Sprintf("Review requested on #%d: %s", pr.Number, pr.Title))
	}
	s.publish(ctx, pr, "pull_request.created")
	return pr, nil
}

// Get returns one pull request
func (s *PullRequestService) Get(ctx context.Context, repositoryID uuid.UUID, number int) (*models.PullRequest, error) {
	return s.git.GetPullRequest(ctx, repositoryID, number)
}

// List returns the pull requests of a repository, optionally by state
func (s *PullRequestService) List(ctx context.Context, repositoryID uuid.UUID, state models.PRState) ([]*models.PullRequest, error) {
	switch state {
	case "", models.PRStateDraft, models.PRStateOpen, models.PRStateMerged, models.PRStateClosed:
	default:
		return nil, apperr.Validation("unknown pull request state: %s", state)
	}
	return s.git.ListPullRequests(ctx, repositoryID, state)
}

// MarkReady moves a draft to open
func (s *PullRequestService) MarkReady(ctx context.Context, repositoryID uuid.UUID, number int) (*models.PullRequest, error) {
	pr, err := s.git.GetPullRequest(ctx, repositoryID, number)
	if err != nil {
		return nil, err
	}
	if pr.State != models.PRStateDraft {
		return nil, illegalTransition(pr, "mark ready")
	}

	pr.State = models.PRStateOpen
	pr.UpdatedAt = s.now().UTC()
	if err := s.git.TransitionPullRequest(ctx, pr, models.PRStateDraft); err != nil {
		return nil, err
	}
	s.publish(ctx, pr, "pull_request.ready")
	return pr, nil
}

// RequestReview adds reviewers and notifies the new ones
func (s *PullRequestService) RequestReview(ctx context.Context, repositoryID uuid.UUID, number int, reviewers []string) (*models.PullRequest, error) {
	if len(reviewers) == 0 {
		return nil, apperr.Validation("at least one reviewer is required")
	}
	pr, err := s.git.GetPullRequest(ctx, repositoryID, number)
	if err != nil {
		return nil, err
	}
	if pr.State != models.PRStateDraft && pr.State != models.PRStateOpen {
		return nil, illegalTransition(pr, "request review")
	}

	var added []string
	for _, r := range dedupe(reviewers) {
		if !slices.Contains(pr.Reviewers, r) {
			added = append(added, r)
		}
	}
	pr.Reviewers = append(pr.Reviewers, added...)
	pr.UpdatedAt = s.now().UTC()
	if err := s.git.UpdatePullRequest(ctx, pr); err != nil {
		return nil, err
	}

	for _, r := range added {
		s.send(ctx, r, NotifyReviewRequested, pr, clients.PriorityNormal,
			fmt.Sprintf("Review requested on #%d: %s", pr.Number, pr.Title))
	}
	return pr, nil
}

// SubmitReview records a reviewer verdict
func (s *PullRequestService) SubmitReview(ctx context.Context, repositoryID uuid.UUID, number int, reviewerID string, status models.ReviewStatus) (*models.PullRequest, error) {
	switch status {
	case models.ReviewApproved, models.ReviewChangesRequested, models.ReviewNone:
	default:
		return nil, apperr.Validation("unknown review status: %s", status)
	}
	pr, err := s.git.GetPullRequest(ctx, repositoryID, number)
	if err != nil {
		return nil, err
	}
	if pr.State != models.PRStateDraft && pr.State != models.PRStateOpen {
		return nil, illegalTransition(pr, "review")
	}

	pr.ReviewStatus = status
	if !slices.Contains(pr.Reviewers, reviewerID) {
		pr.Reviewers = append(pr.Reviewers, reviewerID)
	}
	pr.UpdatedAt = s.now().UTC()
	if err := s.git.UpdatePullRequest(ctx, pr); err != nil {
		return nil, err
	}

	s.send(ctx, pr.AuthorID, NotifyReviewSubmitted, pr, clients.PriorityNormal,
		fmt.Sprintf("%s reviewed #%d: %s", reviewerID, pr.Number, status))
	return pr, nil
}

// UpdateCIStatus records the latest pipeline outcome
func (s *PullRequestService) UpdateCIStatus(ctx context.Context, repositoryID uuid.UUID, number int, status models.CIStatus) (*models.PullRequest, error) {
	switch status {
	case models.CINone, models.CIPending, models.CISuccess, models.CIFailure:
	default:
		return nil, apperr.Validation("unknown ci status: %s", status)
	}
	pr, err := s.git.GetPullRequest(ctx, repositoryID, number)
	if err != nil {
		return nil, err
	}

	pr.CIStatus = status
	pr.UpdatedAt = s.now().UTC()
	if err := s.git.UpdatePullRequest(ctx, pr); err != nil {
		return nil, err
	}

	if status == models.CIFailure {
		s.send(ctx, pr.AuthorID, NotifyCIFailed, pr, clients.PriorityHigh,
			fmt.Sprintf("CI failed on #%d: %s", pr.Number, pr.Title))
	}
	s.publish(ctx, pr, "pull_request.ci_status")
	return pr, nil
}

// Merge merges an open, mergeable pull request that has no outstanding
// change request
func (s *PullRequestService) Merge(ctx context.Context, repositoryID uuid.UUID, number int, userID, message string) (*models.PullRequest, error) {
	repo, err := s.git.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(repo.ID)
	defer unlock()

	pr, err := s.git.GetPullRequest(ctx, repositoryID, number)
	if err != nil {
		return nil, err
	}
	if pr.State != models.PRStateOpen {
		return nil, illegalTransition(pr, "merge")
	}
	if pr.ReviewStatus == models.ReviewChangesRequested {
		return nil, apperr.Conflict("pull request #%d has changes requested", pr.Number)
	}

	check, err := s.merger.MergeCheck(ctx, repo, pr.SourceBranch, pr.TargetBranch)
	if err != nil {
		return nil, err
	}
	if !check.Mergeable {
		pr.Mergeable = false
		pr.Conflicts = check.Conflicts
		pr.UpdatedAt = s.now().UTC()
		if err := s.git.UpdatePullRequest(ctx, pr); err != nil {
			s.log.Warn("failed to record merge conflicts", "number", pr.Number, "error", err)
		}
		return nil, apperr.Conflict("pull request #%d is not mergeable", pr.Number).
			WithDetails(map[string]any{"conflicts": check.Conflicts})
	}

	if message == "" {
		message = fmt.Sprintf("Merge pull request #%d from %s\n\n%s", pr.Number, pr.SourceBranch, pr.Title)
	}
	sha, err := s.merger.Merge(ctx, repo, pr.SourceBranch, pr.TargetBranch, message, signatureFor(userID, s.now()))
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	pr.State = models.PRStateMerged
	pr.Mergeable = true
	pr.Conflicts = []string{}
	pr.MergeCommitSHA = &sha
	pr.MergedBy = &userID
	pr.MergedAt = &now
	pr.UpdatedAt = now
	if err := s.git.TransitionPullRequest(ctx, pr, models.PRStateOpen); err != nil {
		return nil, err
	}
	if err := s.git.UpsertBranch(ctx, &models.Branch{
		ID:           uuid.New(),
		RepositoryID: repo.ID,
		Name:         pr.TargetBranch,
		CommitSHA:    sha,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		s.log.Warn("failed to move target branch", "branch", pr.TargetBranch, "error", err)
	}

	s.log.Info("pull request merged", "repository", repo.Name, "number", pr.Number, "sha", sha, "merged_by", userID)
	s.send(ctx, pr.AuthorID, NotifyMerged, pr, clients.PriorityNormal,
		fmt.Sprintf("#%d was merged by %s", pr.Number, userID))
	s.triggerPush(ctx, repo, pr.TargetBranch, sha, userID)
	s.publish(ctx, pr, "pull_request.merged")
	return pr, nil
}

// Close closes a draft or open pull request
func (s *PullRequestService) Close(ctx context.Context, repositoryID uuid.UUID, number int) (*models.PullRequest, error) {
	pr, err := s.git.GetPullRequest(ctx, repositoryID, number)
	if err != nil {
		return nil, err
	}
	if pr.State == models.PRStateMerged || pr.State == models.PRStateClosed {
		return nil, illegalTransition(pr, "close")
	}

	prior := pr.State
	now := s.now().UTC()
	pr.State = models.PRStateClosed
	pr.ClosedAt = &now
	pr.UpdatedAt = now
	if err := s.git.TransitionPullRequest(ctx, pr, prior); err != nil {
		return nil, err
	}
	s.publish(ctx, pr, "pull_request.closed")
	return pr, nil
}

// applyMergeCheck records mergeability on pr. A repository without a
// workspace is reported as not mergeable.
func (s *PullRequestService) applyMergeCheck(ctx context.Context, repo *models.Repository, pr *models.PullRequest) {
	check, err := s.merger.MergeCheck(ctx, repo, pr.SourceBranch, pr.TargetBranch)
	if err != nil {
		s.log.Warn("merge check failed", "repository", repo.Name, "source", pr.SourceBranch, "target", pr.TargetBranch, "error", err)
		pr.Mergeable = false
		return
	}
	pr.Mergeable = check.Mergeable
	pr.Conflicts = check.Conflicts
}

func (s *PullRequestService) triggerPipelines(ctx context.Context, repo *models.Repository, pr *models.PullRequest, userID string) {
	if s.ci == nil {
		return
	}
	pipelines, err := s.git.ListPipelines(ctx, repo.ID)
	if err != nil {
		s.log.Warn("failed to list pipelines", "repository", repo.Name, "error", err)
		return
	}

	triggered := false
	for _, p := range pipelines {
		if !p.Active || !p.TriggersOn(models.TriggerPullRequest) || !branchMatches(p.Branches, pr.TargetBranch) {
			continue
		}
		if p.Condition != "" {
			ok, err := s.cond.Evaluate(p.Condition, map[string]any{"pr": prVars(pr)})
			if err != nil {
				s.log.Warn("pipeline condition failed", "pipeline", p.Name, "error", err)
				continue
			}
			if !ok {
				continue
			}
		}

		_, err := s.ci.TriggerPipeline(ctx, p.ID.String(), clients.PipelineTrigger{
			RepositoryID:  repo.ID.String(),
			PullRequestID: pr.ID.String(),
			PRNumber:      pr.Number,
			Branch:        pr.SourceBranch,
			CommitSHA:     pr.SourceSHA,
			Event:         models.TriggerPullRequest,
			TriggeredBy:   userID,
		})
		if err != nil {
			s.log.Warn("pipeline trigger failed", "pipeline", p.Name, "number", pr.Number, "error", err)
			continue
		}
		triggered = true
		break
	}

	if triggered {
		pr.CIStatus = models.CIPending
		if err := s.git.UpdatePullRequest(ctx, pr); err != nil {
			s.log.Warn("failed to record ci status", "number", pr.Number, "error", err)
		}
	}
}

func (s *PullRequestService) triggerPush(ctx context.Context, repo *models.Repository, branch, sha, userID string) {
	if s.ci == nil {
		return
	}
	pipelines, err := s.git.ListPipelines(ctx, repo.ID)
	if err != nil {
		s.log.Warn("failed to list pipelines", "repository", repo.Name, "error", err)
		return
	}
	for _, p := range pipelines {
		if !p.Active || !p.TriggersOn(models.TriggerPush) || !branchMatches(p.Branches, branch) {
			continue
		}
		if _, err := s.ci.TriggerPipeline(ctx, p.ID.String(), clients.PipelineTrigger{
			RepositoryID: repo.ID.String(),
			Branch:       branch,
			CommitSHA:    sha,
			Event:        models.TriggerPush,
			TriggeredBy:  userID,
		}); err != nil {
			s.log.Warn("pipeline trigger failed", "pipeline", p.Name, "branch", branch, "error", err)
		}
	}
}

func (s *PullRequestService) send(ctx context.Context, userID, kind string, pr *models.PullRequest, priority, message string) {
	if s.notify == nil || userID == "" {
		return
	}
	s.notify.Send(ctx, clients.Notification{
		UserID:   userID,
		Type:     kind,
		Title:    pr.Title,
		Message:  message,
		Priority: priority,
		Data: map[string]any{
			"repositoryId": pr.RepositoryID.String(),
			"number":       pr.Number,
		},
	})
}

func (s *PullRequestService) publish(ctx context.Context, pr *models.PullRequest, event string) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, "repository:"+pr.RepositoryID.String(), event, pr); err != nil {
		s.log.Warn("failed to publish pull request event", "event", event, "number", pr.Number, "error", err)
	}
}

func prVars(pr *models.PullRequest) map[string]any {
	return map[string]any{
		"number":       int64(pr.Number),
		"title":        pr.Title,
		"state":        string(pr.State),
		"authorId":     pr.AuthorID,
		"sourceBranch": pr.SourceBranch,
		"targetBranch": pr.TargetBranch,
		"reviewers":    pr.Reviewers,
		"mergeable":    pr.Mergeable,
	}
}

// branchMatches reports whether branch matches one of the glob patterns.
// No patterns matches every branch.
func branchMatches(patterns []string, branch string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := path.Match(p, branch); ok {
			return true
		}
	}
	return false
}

func illegalTransition(pr *models.PullRequest, action string) error {
	return apperr.Conflict("cannot %s pull request #%d in state %s", action, pr.Number, pr.State)
}

func signatureFor(userID string, when time.Time) gitrepo.Signature {
	return gitrepo.Signature{Name: userID, Email: userID + "@users.exprsn.local", When: when}
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
