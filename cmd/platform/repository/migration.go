package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/exprsn/platform/common/db"
	"github.com/exprsn/platform/common/models"
)

const migrationColumns = `id, migration_name, description, migration_sql, rollback_sql, depends_on, execution_order,
	status, applied_at, applied_by, execution_time_ms, error_message, error_stack, created_at, updated_at`

// MigrationRepository handles database operations for migrations
type MigrationRepository struct {
	db *db.DB
}

// NewMigrationRepository creates a new migration repository
func NewMigrationRepository(database *db.DB) *MigrationRepository {
	return &MigrationRepository{db: database}
}

func scanMigration(row pgx.Row) (*models.Migration, error) {
	m := &models.Migration{}
	err := row.Scan(
		&m.ID,
		&m.MigrationName,
		&m.Description,
		&m.MigrationSQL,
		&m.RollbackSQL,
		&m.DependsOn,
		&m.ExecutionOrder,
		&m.Status,
		&m.AppliedAt,
		&m.AppliedBy,
		&m.ExecutionTimeMs,
		&m.ErrorMessage,
		&m.ErrorStack,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

// Create inserts a migration. A duplicate name is a conflict.
func (r *MigrationRepository) Create(ctx context.Context, m *models.Migration) error {
	_, err := r.db.Exec(ctx, `INSERT INTO migration (`+migrationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		m.ID, m.MigrationName, m.Description, m.MigrationSQL, m.RollbackSQL, textArray(m.DependsOn), m.ExecutionOrder,
		m.Status, m.AppliedAt, m.AppliedBy, m.ExecutionTimeMs, m.ErrorMessage, m.ErrorStack, m.CreatedAt, m.UpdatedAt)
	return translate(err, "create", "migration", m.MigrationName)
}

// Get retrieves a migration by ID
func (r *MigrationRepository) Get(ctx context.Context, id uuid.UUID) (*models.Migration, error) {
	m, err := scanMigration(r.db.QueryRow(ctx, `SELECT `+migrationColumns+` FROM migration WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get", "migration", id)
	}
	return m, nil
}

// GetByName retrieves a migration by its unique name
func (r *MigrationRepository) GetByName(ctx context.Context, name string) (*models.Migration, error) {
	m, err := scanMigration(r.db.QueryRow(ctx, `SELECT `+migrationColumns+` FROM migration WHERE migration_name = $1`, name))
	if err != nil {
		return nil, translate(err, "get", "migration", name)
	}
	return m, nil
}

func (r *MigrationRepository) list(ctx context.Context, query string) ([]*models.Migration, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	migrations, err := collect(rows, scanMigration)
	if err != nil {
		return nil, fmt.Errorf("failed to scan migrations: %w", err)
	}
	return migrations, nil
}

// List returns every migration in creation order
func (r *MigrationRepository) List(ctx context.Context) ([]*models.Migration, error) {
	return r.list(ctx, `SELECT `+migrationColumns+` FROM migration ORDER BY created_at, migration_name`)
}

// ListPending returns pending migrations in execution order
func (r *MigrationRepository) ListPending(ctx context.Context) ([]*models.Migration, error) {
	return r.list(ctx, `SELECT `+migrationColumns+` FROM migration WHERE status = 'pending' ORDER BY execution_order, created_at`)
}

// Save writes every mutable field
func (r *MigrationRepository) Save(ctx context.Context, m *models.Migration) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE migration
		SET description = $2, migration_sql = $3, rollback_sql = $4, depends_on = $5, execution_order = $6,
		    status = $7, applied_at = $8, applied_by = $9, execution_time_ms = $10,
		    error_message = $11, error_stack = $12, updated_at = $13
		WHERE id = $1
	`, m.ID, m.Description, m.MigrationSQL, m.RollbackSQL, textArray(m.DependsOn), m.ExecutionOrder,
		m.Status, m.AppliedAt, m.AppliedBy, m.ExecutionTimeMs,
		m.ErrorMessage, m.ErrorStack, m.UpdatedAt)
	if err != nil {
		return translate(err, "save", "migration", m.ID)
	}
	if tag.RowsAffected() == 0 {
		return translate(pgx.ErrNoRows, "save", "migration", m.ID)
	}
	return nil
}

// SetOrders rewrites execution_order for every named migration in one
// transaction
func (r *MigrationRepository) SetOrders(ctx context.Context, orders map[string]int) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for name, order := range orders {
			batch.Queue(`UPDATE migration SET execution_order = $2 WHERE migration_name = $1`, name, order)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to set execution order: %w", err)
		}
		return nil
	})
}

// CompareAndSetStatus moves a migration to next only while its status is in
// from
func (r *MigrationRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from []models.MigrationStatus, next models.MigrationStatus) (bool, error) {
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE migration SET status = $3, updated_at = NOW() WHERE id = $1 AND status = ANY($2)
	`, id, allowed, string(next))
	if err != nil {
		return false, fmt.Errorf("failed to swap migration status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ScriptExecutor runs migration scripts against the platform database
type ScriptExecutor struct {
	db *db.DB
}

// NewScriptExecutor creates a script executor
func NewScriptExecutor(database *db.DB) *ScriptExecutor {
	return &ScriptExecutor{db: database}
}

// ExecScript runs sql inside a transaction. Multi-statement scripts use the
// simple protocol so they execute as one unit.
func (e *ScriptExecutor) ExecScript(ctx context.Context, sql string) error {
	return e.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sql, pgx.QueryExecModeSimpleProtocol); err != nil {
			return fmt.Errorf("failed to execute script: %w", err)
		}
		return nil
	})
}
