package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/exprsn/platform/common/db"
	"github.com/exprsn/platform/common/models"
)

const versionColumns = `id, document_id, version_number, filename, title, content, mime_type, size, checksum,
	change_type, change_summary, is_current_version, created_by, created_at`

// DocumentRepository handles database operations for documents and their
// version history
type DocumentRepository struct {
	db *db.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(database *db.DB) *DocumentRepository {
	return &DocumentRepository{db: database}
}

func scanVersion(row pgx.Row) (*models.DocumentVersion, error) {
	v := &models.DocumentVersion{}
	err := row.Scan(
		&v.ID,
		&v.DocumentID,
		&v.VersionNumber,
		&v.Filename,
		&v.Title,
		&v.Content,
		&v.MimeType,
		&v.Size,
		&v.Checksum,
		&v.ChangeType,
		&v.ChangeSummary,
		&v.IsCurrentVersion,
		&v.CreatedBy,
		&v.CreatedAt,
	)
	return v, err
}

// GetDocument retrieves a document
func (r *DocumentRepository) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	d := &models.Document{}
	err := r.db.QueryRow(ctx, `
		SELECT id, owner_id, title, filename, content, mime_type, size, version, metadata, created_at, updated_at
		FROM document
		WHERE id = $1
	`, id).Scan(
		&d.ID,
		&d.OwnerID,
		&d.Title,
		&d.Filename,
		&d.Content,
		&d.MimeType,
		&d.Size,
		&d.Version,
		&d.Metadata,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err, "get", "document", id)
	}
	return d, nil
}

// UpdateMetadata replaces the metadata object of a document
func (r *DocumentRepository) UpdateMetadata(ctx context.Context, id uuid.UUID, metadata map[string]any) error {
	tag, err := r.db.Exec(ctx, `UPDATE document SET metadata = $2, updated_at = NOW() WHERE id = $1`, id, jsonObject(metadata))
	if err != nil {
		return translate(err, "update", "document", id)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "update", "document", id)
	}
	return nil
}

// AddVersion makes v the only current version and copies its content onto
// the document
func (r *DocumentRepository) AddVersion(ctx context.Context, doc *models.Document, v *models.DocumentVersion) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var stored int
		err := tx.QueryRow(ctx, `SELECT version FROM document WHERE id = $1 FOR UPDATE`, doc.ID).Scan(&stored)
		if err != nil {
			return translate(err, "lock", "document", doc.ID)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE document_version SET is_current_version = FALSE WHERE document_id = $1 AND is_current_version
		`, doc.ID); err != nil {
			return fmt.Errorf("failed to clear current version: %w", err)
		}

		_, err = tx.Exec(ctx, `INSERT INTO document_version (`+versionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE, $12, $13)`,
			v.ID, v.DocumentID, v.VersionNumber, v.Filename, v.Title, v.Content, v.MimeType, v.Size, v.Checksum,
			v.ChangeType, v.ChangeSummary, v.CreatedBy, v.CreatedAt)
		if err != nil {
			return translate(err, "create", "document version", v.VersionNumber)
		}

		_, err = tx.Exec(ctx, `
			UPDATE document
			SET version = $2, content = $3, title = $4, filename = $5, mime_type = $6, size = $7, updated_at = $8
			WHERE id = $1
		`, doc.ID, v.VersionNumber, v.Content, v.Title, v.Filename, v.MimeType, v.Size, v.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		return nil
	})
}

// ListVersions returns the history of a document, newest first
func (r *DocumentRepository) ListVersions(ctx context.Context, documentID uuid.UUID) ([]*models.DocumentVersion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+versionColumns+` FROM document_version WHERE document_id = $1 ORDER BY version_number DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list document versions: %w", err)
	}
	versions, err := collect(rows, scanVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to scan document versions: %w", err)
	}
	return versions, nil
}

// GetVersion retrieves one version by number
func (r *DocumentRepository) GetVersion(ctx context.Context, documentID uuid.UUID, number int) (*models.DocumentVersion, error) {
	v, err := scanVersion(r.db.QueryRow(ctx, `
		SELECT `+versionColumns+` FROM document_version WHERE document_id = $1 AND version_number = $2
	`, documentID, number))
	if err != nil {
		return nil, translate(err, "get", "document version", number)
	}
	return v, nil
}

// DeleteVersion removes a non-current version
func (r *DocumentRepository) DeleteVersion(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM document_version WHERE id = $1 AND NOT is_current_version`, id)
	if err != nil {
		return translate(err, "delete", "document version", id)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "delete", "document version", id)
	}
	return nil
}
