package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/exprsn/platform/common/db"
	"github.com/exprsn/platform/common/models"
)

const artifactColumns = `id, kind, application_id, name, display_name, version, metadata, spec,
	created_at, updated_at, created_by, updated_by, deleted_at`

// ArtifactRepository handles database operations for low-code artifacts
type ArtifactRepository struct {
	db *db.DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(database *db.DB) *ArtifactRepository {
	return &ArtifactRepository{db: database}
}

func scanArtifact(row pgx.Row) (*models.Artifact, error) {
	a := &models.Artifact{}
	err := row.Scan(
		&a.ID,
		&a.Kind,
		&a.ApplicationID,
		&a.Name,
		&a.DisplayName,
		&a.Version,
		&a.Metadata,
		&a.Spec,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.CreatedBy,
		&a.UpdatedBy,
		&a.DeletedAt,
	)
	return a, err
}

// Get retrieves a live artifact of kind by ID
func (r *ArtifactRepository) Get(ctx context.Context, kind models.ArtifactKind, id uuid.UUID) (*models.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifact WHERE kind = $1 AND id = $2 AND deleted_at IS NULL`

	a, err := scanArtifact(r.db.QueryRow(ctx, query, kind, id))
	if err != nil {
		return nil, translate(err, "get", string(kind), id)
	}
	return a, nil
}

// ListByApplication returns the live artifacts of kind owned by an
// application, ordered by name
func (r *ArtifactRepository) ListByApplication(ctx context.Context, applicationID uuid.UUID, kind models.ArtifactKind) ([]*models.Artifact, error) {
	query := `SELECT ` + artifactColumns + `
		FROM artifact
		WHERE application_id = $1 AND kind = $2 AND deleted_at IS NULL
		ORDER BY name ASC`

	rows, err := r.db.Query(ctx, query, applicationID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []*models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}
	return out, nil
}

// Create inserts an artifact keeping its ID and timestamps
func (r *ArtifactRepository) Create(ctx context.Context, a *models.Artifact) error {
	query := `
		INSERT INTO artifact (` + artifactColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Exec(ctx, query,
		a.ID,
		a.Kind,
		a.ApplicationID,
		a.Name,
		a.DisplayName,
		a.Version,
		jsonObject(a.Metadata),
		jsonObject(a.Spec),
		a.CreatedAt,
		a.UpdatedAt,
		a.CreatedBy,
		a.UpdatedBy,
		a.DeletedAt,
	)
	return translate(err, "create", string(a.Kind), a.Name)
}

// Update replaces every mutable field of a live artifact
func (r *ArtifactRepository) Update(ctx context.Context, a *models.Artifact) error {
	query := `
		UPDATE artifact
		SET application_id = $3, name = $4, display_name = $5, version = $6,
		    metadata = $7, spec = $8, updated_at = $9, updated_by = $10
		WHERE kind = $1 AND id = $2 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query,
		a.Kind,
		a.ID,
		a.ApplicationID,
		a.Name,
		a.DisplayName,
		a.Version,
		jsonObject(a.Metadata),
		jsonObject(a.Spec),
		a.UpdatedAt,
		a.UpdatedBy,
	)
	if err != nil {
		return translate(err, "update", string(a.Kind), a.ID)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "update", string(a.Kind), a.ID)
	}
	return nil
}
