package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/exprsn/platform/common/codec"
	"github.com/exprsn/platform/common/models"
)

// ConflictType names why an import may not overwrite a record
type ConflictType string

const (
	ConflictVersionMismatch ConflictType = "version_mismatch"
	ConflictDatabaseNewer   ConflictType = "database_newer"
)

// ConflictDetails is returned to callers alongside a conflicting import
type ConflictDetails struct {
	Type              ConflictType `json:"type"`
	ExistingVersion   string       `json:"existingVersion"`
	FileVersion       string       `json:"fileVersion"`
	ExistingUpdatedAt time.Time    `json:"existingUpdatedAt"`
	FileUpdatedAt     *time.Time   `json:"fileUpdatedAt,omitempty"`
}

// Decision is what the orchestrator does with an incoming file
type Decision string

const (
	DecisionCreate Decision = "create"
	DecisionUpdate Decision = "update"
	DecisionDefer  Decision = "defer"
)

// ImportOptions control how an import treats an existing record
type ImportOptions struct {
	Overwrite     bool       `json:"overwrite"`
	CreateNew     bool       `json:"createNew"`
	ApplicationID *uuid.UUID `json:"applicationId,omitempty"`

	// reassign forces applicationId to ApplicationID; set by application imports
	reassign bool
}

// CheckConflict compares an existing record with a file payload carrying
// the same id. A version difference wins over timestamps. A payload with
// no readable updatedAt counts as older than the record.
func CheckConflict(existing *models.Artifact, payload codec.FilePayload) *ConflictDetails {
	fileVersion, _ := payload["version"].(string)
	if fileVersion == "" {
		fileVersion = codec.DefaultVersion
	}
	details := &ConflictDetails{
		ExistingVersion:   existing.Version,
		FileVersion:       fileVersion,
		ExistingUpdatedAt: existing.UpdatedAt,
	}
	fileTime, ok := codec.UpdatedAtOf(payload)
	if ok {
		details.FileUpdatedAt = &fileTime
	}

	switch {
	case existing.Version != fileVersion:
		details.Type = ConflictVersionMismatch
	case !ok || fileTime.Before(existing.UpdatedAt):
		details.Type = ConflictDatabaseNewer
	default:
		return nil
	}
	return details
}

// Decide picks create, update or defer. Overwrite skips the conflict check
// and createNew always creates.
func Decide(existing *models.Artifact, payload codec.FilePayload, opts ImportOptions) (Decision, *ConflictDetails) {
	if opts.CreateNew || existing == nil {
		return DecisionCreate, nil
	}
	if opts.Overwrite {
		return DecisionUpdate, nil
	}
	if c := CheckConflict(existing, payload); c != nil {
		return DecisionDefer, c
	}
	return DecisionUpdate, nil
}
