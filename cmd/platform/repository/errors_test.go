package repository

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/db"
)

func TestTranslate(t *testing.T) {
	routeTaken := &pgconn.PgError{Code: db.UniqueViolation, ConstraintName: apiRouteIndex}
	nameTaken := &pgconn.PgError{Code: db.UniqueViolation, ConstraintName: "artifact_name_live"}

	tests := []struct {
		name string
		err  error
		kind apperr.Kind
	}{
		{"no rows", pgx.ErrNoRows, apperr.KindNotFound},
		{"api route taken", fmt.Errorf("exec: %w", routeTaken), apperr.KindConflict},
		{"name taken", nameTaken, apperr.KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translate(tt.err, "create", "api", "list-orders")
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	assert.NoError(t, translate(nil, "create", "api", "x"))
	assert.Equal(t, "route_taken", apperr.DetailsOf(translate(routeTaken, "create", "api", "x"))["type"])
	assert.Nil(t, apperr.DetailsOf(translate(nameTaken, "create", "api", "x")))

	other := translate(fmt.Errorf("boom"), "update", "api", "x")
	assert.EqualError(t, other, "failed to update api: boom")
}
