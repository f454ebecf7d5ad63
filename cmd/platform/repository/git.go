package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/db"
	"github.com/exprsn/platform/common/models"
)

const pullRequestColumns = `id, repository_id, number, title, description, author_id, source_branch,
	target_branch, source_sha, target_sha, state, mergeable, conflicts, review_status, reviewers,
	ci_status, merge_commit_sha, merged_by, merged_at, closed_at, created_at, updated_at`

// GitRepository handles database operations for repositories, branches,
// commits, pull requests and pipelines
type GitRepository struct {
	db *db.DB
}

// NewGitRepository creates a new git repository store
func NewGitRepository(database *db.DB) *GitRepository {
	return &GitRepository{db: database}
}

// GetRepository retrieves a repository by ID
func (r *GitRepository) GetRepository(ctx context.Context, id uuid.UUID) (*models.Repository, error) {
	query := `
		SELECT id, name, description, remote_url, default_branch, owner_id, open_prs_count, created_at, updated_at
		FROM git_repository
		WHERE id = $1
	`

	repo := &models.Repository{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&repo.ID,
		&repo.Name,
		&repo.Description,
		&repo.RemoteURL,
		&repo.DefaultBranch,
		&repo.OwnerID,
		&repo.OpenPRsCount,
		&repo.CreatedAt,
		&repo.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err, "get", "repository", id)
	}
	return repo, nil
}

// GetBranch retrieves a branch head
func (r *GitRepository) GetBranch(ctx context.Context, repositoryID uuid.UUID, name string) (*models.Branch, error) {
	query := `
		SELECT id, repository_id, name, commit_sha, protected, created_at, updated_at
		FROM git_branch
		WHERE repository_id = $1 AND name = $2
	`

	b := &models.Branch{}
	err := r.db.QueryRow(ctx, query, repositoryID, name).Scan(
		&b.ID,
		&b.RepositoryID,
		&b.Name,
		&b.CommitSHA,
		&b.Protected,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err, "get", "branch", name)
	}
	return b, nil
}

// UpsertBranch creates a branch or moves its head
func (r *GitRepository) UpsertBranch(ctx context.Context, b *models.Branch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	query := `
		INSERT INTO git_branch (id, repository_id, name, commit_sha, protected, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (repository_id, name)
		DO UPDATE SET commit_sha = EXCLUDED.commit_sha, updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		b.ID,
		b.RepositoryID,
		b.Name,
		b.CommitSHA,
		b.Protected,
		b.CreatedAt,
		b.UpdatedAt,
	).Scan(&b.ID)
	return translate(err, "upsert", "branch", b.Name)
}

// CreateCommit records a commit. Recording the same SHA twice is a no-op.
func (r *GitRepository) CreateCommit(ctx context.Context, c *models.Commit) error {
	query := `
		INSERT INTO git_commit (id, repository_id, sha, parent_shas, tree_sha, message, author_name,
		                        author_email, additions, deletions, files_changed, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (repository_id, sha) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		c.ID,
		c.RepositoryID,
		c.SHA,
		textArray(c.ParentSHAs),
		c.TreeSHA,
		c.Message,
		c.AuthorName,
		c.AuthorEmail,
		c.Additions,
		c.Deletions,
		c.FilesChanged,
		c.CommittedAt,
	)
	return translate(err, "create", "commit", c.SHA)
}

func scanPullRequest(row pgx.Row) (*models.PullRequest, error) {
	pr := &models.PullRequest{}
	err := row.Scan(
		&pr.ID,
		&pr.RepositoryID,
		&pr.Number,
		&pr.Title,
		&pr.Description,
		&pr.AuthorID,
		&pr.SourceBranch,
		&pr.TargetBranch,
		&pr.SourceSHA,
		&pr.TargetSHA,
		&pr.State,
		&pr.Mergeable,
		&pr.Conflicts,
		&pr.ReviewStatus,
		&pr.Reviewers,
		&pr.CIStatus,
		&pr.MergeCommitSHA,
		&pr.MergedBy,
		&pr.MergedAt,
		&pr.ClosedAt,
		&pr.CreatedAt,
		&pr.UpdatedAt,
	)
	return pr, err
}

func pullRequestArgs(pr *models.PullRequest) []any {
	return []any{
		pr.ID,
		pr.RepositoryID,
		pr.Number,
		pr.Title,
		pr.Description,
		pr.AuthorID,
		pr.SourceBranch,
		pr.TargetBranch,
		pr.SourceSHA,
		pr.TargetSHA,
		pr.State,
		pr.Mergeable,
		textArray(pr.Conflicts),
		pr.ReviewStatus,
		textArray(pr.Reviewers),
		pr.CIStatus,
		pr.MergeCommitSHA,
		pr.MergedBy,
		pr.MergedAt,
		pr.ClosedAt,
		pr.CreatedAt,
		pr.UpdatedAt,
	}
}

// CreatePullRequest numbers and inserts pr inside one transaction. The
// repository row lock serialises concurrent creators.
func (r *GitRepository) CreatePullRequest(ctx context.Context, pr *models.PullRequest) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var openCount int
		err := tx.QueryRow(ctx, `SELECT open_prs_count FROM git_repository WHERE id = $1 FOR UPDATE`, pr.RepositoryID).Scan(&openCount)
		if err != nil {
			return translate(err, "lock", "repository", pr.RepositoryID)
		}

		err = tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(number), 0) + 1 FROM git_pull_request WHERE repository_id = $1`,
			pr.RepositoryID,
		).Scan(&pr.Number)
		if err != nil {
			return fmt.Errorf("failed to allocate pull request number: %w", err)
		}

		query := `INSERT INTO git_pull_request (` + pullRequestColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
		if _, err := tx.Exec(ctx, query, pullRequestArgs(pr)...); err != nil {
			return translate(err, "create", "pull request", pr.Number)
		}

		if pr.State == models.PRStateOpen {
			if err := adjustOpenCount(ctx, tx, pr.RepositoryID, 1); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPullRequest retrieves a pull request by repository and number
func (r *GitRepository) GetPullRequest(ctx context.Context, repositoryID uuid.UUID, number int) (*models.PullRequest, error) {
	query := `SELECT ` + pullRequestColumns + ` FROM git_pull_request WHERE repository_id = $1 AND number = $2`

	pr, err := scanPullRequest(r.db.QueryRow(ctx, query, repositoryID, number))
	if err != nil {
		return nil, translate(err, "get", "pull request", number)
	}
	return pr, nil
}

// ListPullRequests returns the pull requests of a repository, newest
// first. An empty state lists all.
func (r *GitRepository) ListPullRequests(ctx context.Context, repositoryID uuid.UUID, state models.PRState) ([]*models.PullRequest, error) {
	query := `SELECT ` + pullRequestColumns + `
		FROM git_pull_request
		WHERE repository_id = $1 AND ($2 = '' OR state = $2)
		ORDER BY number DESC`

	rows, err := r.db.Query(ctx, query, repositoryID, string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to list pull requests: %w", err)
	}
	defer rows.Close()

	var out []*models.PullRequest
	for rows.Next() {
		pr, err := scanPullRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pull request: %w", err)
		}
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pull requests: %w", err)
	}
	return out, nil
}

const updatePullRequest = `
	UPDATE git_pull_request
	SET title = $2, description = $3, source_sha = $4, target_sha = $5, state = $6,
	    mergeable = $7, conflicts = $8, review_status = $9, reviewers = $10, ci_status = $11,
	    merge_commit_sha = $12, merged_by = $13, merged_at = $14, closed_at = $15, updated_at = $16
	WHERE id = $1`

func updateArgs(pr *models.PullRequest) []any {
	return []any{
		pr.ID,
		pr.Title,
		pr.Description,
		pr.SourceSHA,
		pr.TargetSHA,
		pr.State,
		pr.Mergeable,
		textArray(pr.Conflicts),
		pr.ReviewStatus,
		textArray(pr.Reviewers),
		pr.CIStatus,
		pr.MergeCommitSHA,
		pr.MergedBy,
		pr.MergedAt,
		pr.ClosedAt,
		pr.UpdatedAt,
	}
}

// UpdatePullRequest writes every mutable field of pr
func (r *GitRepository) UpdatePullRequest(ctx context.Context, pr *models.PullRequest) error {
	tag, err := r.db.Exec(ctx, updatePullRequest, updateArgs(pr)...)
	if err != nil {
		return translate(err, "update", "pull request", pr.Number)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("pull request", pr.Number)
	}
	return nil
}

// TransitionPullRequest saves pr only while its stored state is still
// prior, keeping openPrsCount in step
func (r *GitRepository) TransitionPullRequest(ctx context.Context, pr *models.PullRequest, prior models.PRState) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var current models.PRState
		err := tx.QueryRow(ctx,
			`SELECT state FROM git_pull_request WHERE id = $1 FOR UPDATE`, pr.ID,
		).Scan(&current)
		if err != nil {
			return translate(err, "lock", "pull request", pr.Number)
		}
		if current != prior {
			return apperr.Conflict("pull request #%d is %s, expected %s", pr.Number, current, prior)
		}

		if _, err := tx.Exec(ctx, updatePullRequest, updateArgs(pr)...); err != nil {
			return translate(err, "update", "pull request", pr.Number)
		}

		delta := 0
		if prior == models.PRStateOpen {
			delta--
		}
		if pr.State == models.PRStateOpen {
			delta++
		}
		if delta != 0 {
			return adjustOpenCount(ctx, tx, pr.RepositoryID, delta)
		}
		return nil
	})
}

func adjustOpenCount(ctx context.Context, tx pgx.Tx, repositoryID uuid.UUID, delta int) error {
	_, err := tx.Exec(ctx, `
		UPDATE git_repository
		SET open_prs_count = GREATEST(open_prs_count + $2, 0), updated_at = NOW()
		WHERE id = $1
	`, repositoryID, delta)
	if err != nil {
		return fmt.Errorf("failed to update open pull request count: %w", err)
	}
	return nil
}

// ListPipelines returns the pipelines of a repository
func (r *GitRepository) ListPipelines(ctx context.Context, repositoryID uuid.UUID) ([]*models.Pipeline, error) {
	query := `
		SELECT id, repository_id, name, trigger_on, branches, stages, condition, active, created_at
		FROM git_pipeline
		WHERE repository_id = $1
		ORDER BY name ASC
	`

	rows, err := r.db.Query(ctx, query, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}
	defer rows.Close()

	var out []*models.Pipeline
	for rows.Next() {
		p := &models.Pipeline{}
		if err := rows.Scan(
			&p.ID,
			&p.RepositoryID,
			&p.Name,
			&p.TriggerOn,
			&p.Branches,
			&p.Stages,
			&p.Condition,
			&p.Active,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipelines: %w", err)
	}
	return out, nil
}
