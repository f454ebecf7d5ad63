package models

import (
	"time"

	"github.com/google/uuid"
)

// MigrationStatus is the lifecycle of a migration
type MigrationStatus string

const (
	MigrationPending    MigrationStatus = "pending"
	MigrationRunning    MigrationStatus = "running"
	MigrationCompleted  MigrationStatus = "completed"
	MigrationFailed     MigrationStatus = "failed"
	MigrationRolledBack MigrationStatus = "rolled_back"
)

// Migration is a named SQL change. MigrationName is globally unique and
// ExecutionOrder is its index in the topological order of DependsOn.
type Migration struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	MigrationName  string          `db:"migration_name" json:"migrationName"`
	Description    string          `db:"description" json:"description,omitempty"`
	MigrationSQL   string          `db:"migration_sql" json:"migrationSql"`
	RollbackSQL    *string         `db:"rollback_sql" json:"rollbackSql,omitempty"`
	DependsOn      []string        `db:"depends_on" json:"dependsOn,omitempty"`
	ExecutionOrder int             `db:"execution_order" json:"executionOrder"`
	Status         MigrationStatus `db:"status" json:"status"`

	AppliedAt       *time.Time `db:"applied_at" json:"appliedAt,omitempty"`
	AppliedBy       *string    `db:"applied_by" json:"appliedBy,omitempty"`
	ExecutionTimeMs *int64     `db:"execution_time_ms" json:"executionTimeMs,omitempty"`
	ErrorMessage    *string    `db:"error_message" json:"errorMessage,omitempty"`
	ErrorStack      *string    `db:"error_stack" json:"errorStack,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// AppliedMigration is a read-only view of a completed migration. It exposes
// no way to change the SQL that was applied.
type AppliedMigration struct {
	m Migration
}

// Applied returns the read-only view when the migration is completed
func (m Migration) Applied() (AppliedMigration, bool) {
	if m.Status != MigrationCompleted {
		return AppliedMigration{}, false
	}
	return AppliedMigration{m: m}, true
}

func (a AppliedMigration) ID() uuid.UUID        { return a.m.ID }
func (a AppliedMigration) Name() string         { return a.m.MigrationName }
func (a AppliedMigration) SQL() string          { return a.m.MigrationSQL }
func (a AppliedMigration) RollbackSQL() *string { return a.m.RollbackSQL }
func (a AppliedMigration) AppliedAt() *time.Time {
	return a.m.AppliedAt
}
