package models

import (
	"time"

	"github.com/google/uuid"
)

// Repository is a managed Git repository whose working tree lives under
// the workspace root in a directory named after Name
// Maps to: git_repository table
type Repository struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description,omitempty"`
	RemoteURL     *string   `db:"remote_url" json:"remoteUrl,omitempty"`
	DefaultBranch string    `db:"default_branch" json:"defaultBranch"`
	OwnerID       string    `db:"owner_id" json:"ownerId"`
	OpenPRsCount  int       `db:"open_prs_count" json:"openPrsCount"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// Branch is unique per (repository, name)
type Branch struct {
	ID           uuid.UUID `db:"id" json:"id"`
	RepositoryID uuid.UUID `db:"repository_id" json:"repositoryId"`
	Name         string    `db:"name" json:"name"`
	CommitSHA    string    `db:"commit_sha" json:"commitSha"`
	Protected    bool      `db:"protected" json:"protected"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Commit is unique per (repository, sha)
type Commit struct {
	ID           uuid.UUID `db:"id" json:"id"`
	RepositoryID uuid.UUID `db:"repository_id" json:"repositoryId"`
	SHA          string    `db:"sha" json:"sha"`
	ParentSHAs   []string  `db:"parent_shas" json:"parentShas"`
	TreeSHA      string    `db:"tree_sha" json:"treeSha"`
	Message      string    `db:"message" json:"message"`
	AuthorName   string    `db:"author_name" json:"authorName"`
	AuthorEmail  string    `db:"author_email" json:"authorEmail"`
	Additions    int       `db:"additions" json:"additions"`
	Deletions    int       `db:"deletions" json:"deletions"`
	FilesChanged int       `db:"files_changed" json:"filesChanged"`
	CommittedAt  time.Time `db:"committed_at" json:"committedAt"`
}

// PRState is the lifecycle state of a pull request
type PRState string

const (
	PRStateDraft  PRState = "draft"
	PRStateOpen   PRState = "open"
	PRStateMerged PRState = "merged"
	PRStateClosed PRState = "closed"
)

// ReviewStatus aggregates reviewer verdicts
type ReviewStatus string

const (
	ReviewNone             ReviewStatus = "none"
	ReviewApproved         ReviewStatus = "approved"
	ReviewChangesRequested ReviewStatus = "changes_requested"
)

// CIStatus mirrors the latest pipeline outcome
type CIStatus string

const (
	CINone    CIStatus = "none"
	CIPending CIStatus = "pending"
	CISuccess CIStatus = "success"
	CIFailure CIStatus = "failure"
)

// PullRequest proposes merging SourceBranch into TargetBranch.
// Number is unique and monotonically increasing per repository.
type PullRequest struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	RepositoryID   uuid.UUID    `db:"repository_id" json:"repositoryId"`
	Number         int          `db:"number" json:"number"`
	Title          string       `db:"title" json:"title"`
	Description    string       `db:"description" json:"description,omitempty"`
	AuthorID       string       `db:"author_id" json:"authorId"`
	SourceBranch   string       `db:"source_branch" json:"sourceBranch"`
	TargetBranch   string       `db:"target_branch" json:"targetBranch"`
	SourceSHA      string       `db:"source_sha" json:"sourceSha"`
	TargetSHA      string       `db:"target_sha" json:"targetSha"`
	State          PRState      `db:"state" json:"state"`
	Mergeable      bool         `db:"mergeable" json:"mergeable"`
	Conflicts      []string     `db:"conflicts" json:"conflicts"`
	ReviewStatus   ReviewStatus `db:"review_status" json:"reviewStatus"`
	Reviewers      []string     `db:"reviewers" json:"reviewers"`
	CIStatus       CIStatus     `db:"ci_status" json:"ciStatus"`
	MergeCommitSHA *string      `db:"merge_commit_sha" json:"mergeCommitSha,omitempty"`
	MergedBy       *string      `db:"merged_by" json:"mergedBy,omitempty"`
	MergedAt       *time.Time   `db:"merged_at" json:"mergedAt,omitempty"`
	ClosedAt       *time.Time   `db:"closed_at" json:"closedAt,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updatedAt"`
}

// Pipeline trigger events
const (
	TriggerPush        = "push"
	TriggerPullRequest = "pull_request"
)

// Pipeline is a per-repository CI definition
type Pipeline struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	RepositoryID uuid.UUID      `db:"repository_id" json:"repositoryId"`
	Name         string         `db:"name" json:"name"`
	TriggerOn    []string       `db:"trigger_on" json:"triggerOn"`
	Branches     []string       `db:"branches" json:"branches"`
	Stages       map[string]any `db:"stages" json:"stages"`

	// Optional CEL expression over pr.* that must hold for a trigger
	Condition string `db:"condition" json:"condition,omitempty"`

	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// TriggersOn reports whether event is in TriggerOn
func (p *Pipeline) TriggersOn(event string) bool {
	for _, t := range p.TriggerOn {
		if t == event {
			return true
		}
	}
	return false
}
