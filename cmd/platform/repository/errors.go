package repository

import (
	"fmt"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/db"
)

const apiRouteIndex = "artifact_api_route_live"

// translate maps driver errors onto the domain taxonomy
func translate(err error, op, resource string, id any) error {
	switch {
	case err == nil:
		return nil
	case db.ViolatedConstraint(err) == apiRouteIndex:
		return apperr.Conflict("api %v: path and method already defined in this application", id).
			WithDetails(map[string]any{"type": "route_taken"})
	case db.IsNoRows(err):
		return apperr.NotFound(resource, id)
	case db.IsUniqueViolation(err):
		return apperr.Conflict("%s %v already exists", resource, id)
	default:
		return fmt.Errorf("failed to %s %s: %w", op, resource, err)
	}
}

// jsonObject keeps NOT NULL jsonb columns non-null
func jsonObject(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func textArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
