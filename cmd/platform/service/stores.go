package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/exprsn/platform/common/models"
)

// Stores return apperr NotFound for missing rows and apperr Conflict for
// unique violations. Implementations live in cmd/platform/repository.

// ArtifactStore persists low-code artifacts of every kind
type ArtifactStore interface {
	Get(ctx context.Context, kind models.ArtifactKind, id uuid.UUID) (*models.Artifact, error)
	ListByApplication(ctx context.Context, applicationID uuid.UUID, kind models.ArtifactKind) ([]*models.Artifact, error)
	Create(ctx context.Context, a *models.Artifact) error
	Update(ctx context.Context, a *models.Artifact) error
}

// GitStore persists repositories, branches, commits, pull requests and
// pipelines
type GitStore interface {
	GetRepository(ctx context.Context, id uuid.UUID) (*models.Repository, error)

	GetBranch(ctx context.Context, repositoryID uuid.UUID, name string) (*models.Branch, error)
	UpsertBranch(ctx context.Context, b *models.Branch) error
	CreateCommit(ctx context.Context, c *models.Commit) error

	// CreatePullRequest assigns the next number of the repository under a
	// row lock and bumps openPrsCount when the new state is open
	CreatePullRequest(ctx context.Context, pr *models.PullRequest) error
	GetPullRequest(ctx context.Context, repositoryID uuid.UUID, number int) (*models.PullRequest, error)
	ListPullRequests(ctx context.Context, repositoryID uuid.UUID, state models.PRState) ([]*models.PullRequest, error)
	UpdatePullRequest(ctx context.Context, pr *models.PullRequest) error

	// TransitionPullRequest saves pr only if its stored state is still
	// prior and adjusts openPrsCount for moves into and out of open
	TransitionPullRequest(ctx context.Context, pr *models.PullRequest, prior models.PRState) error

	ListPipelines(ctx context.Context, repositoryID uuid.UUID) ([]*models.Pipeline, error)
}

// CredentialStore persists SSH keys, tokens, OAuth applications and the
// audit log
type CredentialStore interface {
	CreateSSHKey(ctx context.Context, k *models.SSHKey) error
	GetSSHKey(ctx context.Context, id uuid.UUID) (*models.SSHKey, error)
	GetSSHKeyByFingerprint(ctx context.Context, fingerprint string) (*models.SSHKey, error)
	ListSSHKeys(ctx context.Context, userID string) ([]*models.SSHKey, error)
	DeleteSSHKey(ctx context.Context, id uuid.UUID) error
	TouchSSHKey(ctx context.Context, id uuid.UUID, at time.Time) error

	CreateToken(ctx context.Context, t *models.PersonalAccessToken) error
	GetToken(ctx context.Context, id uuid.UUID) (*models.PersonalAccessToken, error)
	ListTokens(ctx context.Context, userID string) ([]*models.PersonalAccessToken, error)
	ListTokensByPrefix(ctx context.Context, prefix string) ([]*models.PersonalAccessToken, error)
	RevokeToken(ctx context.Context, id uuid.UUID, at time.Time) error
	TouchToken(ctx context.Context, id uuid.UUID, at time.Time) error

	CreateOAuthApp(ctx context.Context, a *models.OAuthApplication) error
	GetOAuthApp(ctx context.Context, id uuid.UUID) (*models.OAuthApplication, error)
	GetOAuthAppByClientID(ctx context.Context, clientID string) (*models.OAuthApplication, error)
	ListOAuthApps(ctx context.Context, userID string) ([]*models.OAuthApplication, error)
	UpdateOAuthApp(ctx context.Context, a *models.OAuthApplication) error
	DeleteOAuthApp(ctx context.Context, id uuid.UUID) error
	TouchOAuthApp(ctx context.Context, id uuid.UUID, at time.Time) error

	InsertAudit(ctx context.Context, entry *models.AuditLog) error
}

// ReportStore persists reports, schedules and executions
type ReportStore interface {
	GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error)
	TouchReport(ctx context.Context, id uuid.UUID, at time.Time) error

	CreateSchedule(ctx context.Context, s *models.ReportSchedule) error
	GetSchedule(ctx context.Context, id uuid.UUID) (*models.ReportSchedule, error)
	ListSchedules(ctx context.Context, ownerID string) ([]*models.ReportSchedule, error)
	ListActiveSchedules(ctx context.Context) ([]*models.ReportSchedule, error)
	UpdateSchedule(ctx context.Context, s *models.ReportSchedule) error
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
	RecordScheduleSuccess(ctx context.Context, id uuid.UUID, ranAt time.Time, next *time.Time) error
	RecordScheduleFailure(ctx context.Context, id uuid.UUID, message string) error

	CreateExecution(ctx context.Context, e *models.ReportExecution) error
	UpdateExecution(ctx context.Context, e *models.ReportExecution) error
	GetExecution(ctx context.Context, id uuid.UUID) (*models.ReportExecution, error)
	ListExpiredExports(ctx context.Context, now time.Time) ([]*models.ReportExecution, error)
}

// MigrationStore persists migrations
type MigrationStore interface {
	Create(ctx context.Context, m *models.Migration) error
	Get(ctx context.Context, id uuid.UUID) (*models.Migration, error)
	GetByName(ctx context.Context, name string) (*models.Migration, error)
	List(ctx context.Context) ([]*models.Migration, error)

	// ListPending orders by executionOrder then createdAt
	ListPending(ctx context.Context) ([]*models.Migration, error)

	// Save writes every mutable field
	Save(ctx context.Context, m *models.Migration) error

	// SetOrders rewrites executionOrder by migration name
	SetOrders(ctx context.Context, orders map[string]int) error

	// CompareAndSetStatus moves id to next only while its status is one
	// of from. ok is false when another caller got there first.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from []models.MigrationStatus, next models.MigrationStatus) (bool, error)
}

// SQLExecutor runs a migration script
type SQLExecutor interface {
	ExecScript(ctx context.Context, sql string) error
}

// TaskStore loads tasks with their dependencies
type TaskStore interface {
	ListProjectTasks(ctx context.Context, projectID uuid.UUID) ([]models.Task, error)
	ListTasksForUsers(ctx context.Context, userIDs []string, from, to time.Time) ([]models.Task, error)
	SetCriticalPath(ctx context.Context, flags map[uuid.UUID]bool) error
}

// DocumentStore persists documents and their version history
type DocumentStore interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	UpdateMetadata(ctx context.Context, id uuid.UUID, metadata map[string]any) error

	// AddVersion stores v as the only current version and sets the
	// document's version and content fields from it
	AddVersion(ctx context.Context, doc *models.Document, v *models.DocumentVersion) error
	ListVersions(ctx context.Context, documentID uuid.UUID) ([]*models.DocumentVersion, error)
	GetVersion(ctx context.Context, documentID uuid.UUID, number int) (*models.DocumentVersion, error)
	DeleteVersion(ctx context.Context, id uuid.UUID) error
}
