package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/exprsn/platform/cmd/platform/service"
	"github.com/exprsn/platform/common/db"
)

// QueryProvider runs report queries against the platform database
type QueryProvider struct {
	db *db.DB
}

// NewQueryProvider creates a report data provider
func NewQueryProvider(database *db.DB) *QueryProvider {
	return &QueryProvider{db: database}
}

// Query runs sql inside a read-only transaction and returns every row keyed
// by column name
func (p *QueryProvider) Query(ctx context.Context, sql string, args []any) (*service.ReportResult, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin report transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result := &service.ReportResult{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read report row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, c := range columns {
			row[c] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

var (
	_ service.ArtifactStore   = (*ArtifactRepository)(nil)
	_ service.GitStore        = (*GitRepository)(nil)
	_ service.CredentialStore = (*CredentialRepository)(nil)
	_ service.ReportStore     = (*ReportRepository)(nil)
	_ service.MigrationStore  = (*MigrationRepository)(nil)
	_ service.SQLExecutor     = (*ScriptExecutor)(nil)
	_ service.TaskStore       = (*TaskRepository)(nil)
	_ service.DocumentStore   = (*DocumentRepository)(nil)
	_ service.DataProvider    = (*QueryProvider)(nil)
)
