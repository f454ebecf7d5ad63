package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exprsn/platform/common/codec"
	"github.com/exprsn/platform/common/models"
)

func storedForm(version string, updated time.Time) *models.Artifact {
	return &models.Artifact{ID: uuid.New(), Kind: models.KindForm, Name: "Signup", Version: version, UpdatedAt: updated}
}

func payloadAt(version string, updated time.Time) codec.FilePayload {
	return codec.FilePayload{"version": version, "updatedAt": updated.Format(time.RFC3339Nano)}
}

func TestCheckConflict(t *testing.T) {
	tests := []struct {
		name     string
		existing *models.Artifact
		payload  codec.FilePayload
		want     ConflictType
	}{
		{"same version, file newer", storedForm("1.0.0", t0), payloadAt("1.0.0", t0.Add(time.Minute)), ""},
		{"same version, same time", storedForm("1.0.0", t0), payloadAt("1.0.0", t0), ""},
		{"same version, database newer", storedForm("1.0.0", t0), payloadAt("1.0.0", t0.Add(-time.Minute)), ConflictDatabaseNewer},
		{"version differs, file newer", storedForm("1.2.0", t0), payloadAt("1.0.0", t0.Add(time.Hour)), ConflictVersionMismatch},
		{"version differs, database newer", storedForm("1.2.0", t0), payloadAt("1.0.0", t0.Add(-time.Hour)), ConflictVersionMismatch},
		{"no updatedAt", storedForm("1.0.0", t0), codec.FilePayload{"version": "1.0.0"}, ConflictDatabaseNewer},
		{"unparseable updatedAt", storedForm("1.0.0", t0), codec.FilePayload{"version": "1.0.0", "updatedAt": "yesterday"}, ConflictDatabaseNewer},
		{"missing version defaults", storedForm(codec.DefaultVersion, t0), codec.FilePayload{"updatedAt": t0.Format(time.RFC3339)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckConflict(tt.existing, tt.payload)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, tt.existing.Version, got.ExistingVersion)
		})
	}
}

func TestDecide(t *testing.T) {
	older := payloadAt("1.0.0", t0.Add(-time.Hour))

	d, c := Decide(nil, older, ImportOptions{})
	assert.Equal(t, DecisionCreate, d)
	assert.Nil(t, c)

	d, c = Decide(storedForm("1.0.0", t0), older, ImportOptions{})
	assert.Equal(t, DecisionDefer, d)
	require.NotNil(t, c)

	d, c = Decide(storedForm("1.0.0", t0), older, ImportOptions{Overwrite: true})
	assert.Equal(t, DecisionUpdate, d)
	assert.Nil(t, c)

	d, _ = Decide(storedForm("1.0.0", t0), older, ImportOptions{CreateNew: true, Overwrite: true})
	assert.Equal(t, DecisionCreate, d)

	d, _ = Decide(storedForm("1.0.0", t0), payloadAt("1.0.0", t0.Add(time.Hour)), ImportOptions{})
	assert.Equal(t, DecisionUpdate, d)
}
