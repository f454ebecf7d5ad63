package models

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactKind represents the type of a low-code artifact
type ArtifactKind string

const (
	KindEntity      ArtifactKind = "entity"
	KindForm        ArtifactKind = "form"
	KindGrid        ArtifactKind = "grid"
	KindDashboard   ArtifactKind = "dashboard"
	KindQuery       ArtifactKind = "query"
	KindAPI         ArtifactKind = "api"
	KindProcess     ArtifactKind = "process"
	KindDataSource  ArtifactKind = "datasource"
	KindApplication ArtifactKind = "application"
)

// ArtifactKinds lists the kinds owned by an application, in export order
var ArtifactKinds = []ArtifactKind{
	KindEntity,
	KindForm,
	KindGrid,
	KindDashboard,
	KindQuery,
	KindAPI,
	KindProcess,
	KindDataSource,
}

// Artifact is a user-authored low-code definition
// Maps to: artifact table
type Artifact struct {
	ID   uuid.UUID    `db:"id" json:"id"`
	Kind ArtifactKind `db:"kind" json:"type"`

	// Owning application. Nil for application records.
	ApplicationID *uuid.UUID `db:"application_id" json:"applicationId,omitempty"`

	// Identifier-safe name, unique per (application, kind) among live rows
	Name        string `db:"name" json:"name"`
	DisplayName string `db:"display_name" json:"displayName,omitempty"`

	// Semver MAJOR.MINOR.PATCH
	Version string `db:"version" json:"version"`

	Metadata map[string]any `db:"metadata" json:"metadata,omitempty"`

	// Kind-specific body, see codec for the typed variants
	Spec map[string]any `db:"spec" json:"spec"`

	// Audit fields
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
	CreatedBy *string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy *string    `db:"updated_by" json:"updatedBy,omitempty"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// StringPtr returns a pointer to s, or nil for the empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or ""
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
