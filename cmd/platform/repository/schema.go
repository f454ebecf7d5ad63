package repository

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/exprsn/platform/common/db"
)

//go:embed schema.sql
var schema string

// ApplySchema creates missing tables and indexes. It is safe to run on
// every start.
func ApplySchema(database *db.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := database.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
