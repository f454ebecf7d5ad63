package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/models"
)

func newDocumentService(t *testing.T) (*DocumentService, *memDocs, *recordingPublisher, uuid.UUID) {
	t.Helper()
	doc := &models.Document{
		ID:       uuid.New(),
		OwnerID:  "ana",
		Title:    "Runbook",
		Filename: "runbook.md",
		Content:  "# v1",
		MimeType: "text/markdown",
	}
	store := newMemDocs(doc)
	events := &recordingPublisher{}
	svc := NewDocumentService(store, events, logger.Discard())
	svc.now = clock(t0)
	return svc, store, events, doc.ID
}

func TestVersions_CreateRestoreAndCompare(t *testing.T) {
	svc, _, events, id := newDocumentService(t)
	ctx := context.Background()

	v1, err := svc.CreateVersion(ctx, id, "ana", VersionInput{Content: models.StringPtr("# v2")})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.VersionNumber)
	assert.Equal(t, models.ChangeContentUpdated, v1.ChangeType)
	assert.Equal(t, Checksum("# v2"), v1.Checksum)

	v2, err := svc.CreateVersion(ctx, id, "ana", VersionInput{Filename: models.StringPtr("ops-runbook.md")})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.Equal(t, models.ChangeRenamed, v2.ChangeType)
	assert.Equal(t, "# v2", v2.Content)

	_, err = svc.RestoreVersion(ctx, id, 2, "ana")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	v3, err := svc.RestoreVersion(ctx, id, 1, "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, v3.VersionNumber)
	assert.Equal(t, models.ChangeRestored, v3.ChangeType)
	assert.Equal(t, "runbook.md", v3.Filename)
	assert.Equal(t, "Restored from version 1", v3.ChangeSummary)

	versions, err := svc.ListVersions(ctx, id)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[0].VersionNumber)
	assert.True(t, versions[0].IsCurrentVersion)
	assert.False(t, versions[1].IsCurrentVersion)

	doc, err := svc.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Version)
	assert.Equal(t, "runbook.md", doc.Filename)

	diff, err := svc.CompareVersions(ctx, id, 1, 2)
	require.NoError(t, err)
	assert.False(t, diff.ContentChanged)
	assert.True(t, diff.FilenameChanged)
	assert.Zero(t, diff.SizeDelta)

	assert.Equal(t, []string{
		"document.version_created",
		"document.version_created",
		"document.version_created",
	}, events.names())
}

func TestCreateVersion_Validation(t *testing.T) {
	svc, _, _, id := newDocumentService(t)
	ctx := context.Background()

	_, err := svc.CreateVersion(ctx, id, "ana", VersionInput{Filename: models.StringPtr("  ")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.CreateVersion(ctx, id, "ana", VersionInput{ChangeType: "shredded"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.CreateVersion(ctx, uuid.New(), "ana", VersionInput{})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDeleteVersion_CurrentIsProtected(t *testing.T) {
	svc, _, _, id := newDocumentService(t)
	ctx := context.Background()
	_, err := svc.CreateVersion(ctx, id, "ana", VersionInput{Content: models.StringPtr("a")})
	require.NoError(t, err)
	_, err = svc.CreateVersion(ctx, id, "ana", VersionInput{Content: models.StringPtr("b")})
	require.NoError(t, err)

	err = svc.DeleteVersion(ctx, id, 2)
	assert.Equal(t, apperr.KindIntegrity, apperr.KindOf(err))

	require.NoError(t, svc.DeleteVersion(ctx, id, 1))
	_, err = svc.GetVersion(ctx, id, 1)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestAnnotations(t *testing.T) {
	svc, store, events, id := newDocumentService(t)
	ctx := context.Background()

	first, err := svc.AddAnnotation(ctx, id, "ana", AnnotationInput{Content: "typo in step 2"})
	require.NoError(t, err)
	assert.Equal(t, AnnotationComment, first.Type)

	second, err := svc.AddAnnotation(ctx, id, "bob", AnnotationInput{
		Type:     AnnotationHighlight,
		Position: map[string]any{"page": float64(1)},
		Color:    "#ffee00",
	})
	require.NoError(t, err)

	list, err := svc.ListAnnotations(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, "#ffee00", list[1].Color)

	err = svc.DeleteAnnotation(ctx, id, first.ID, "bob")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	require.NoError(t, svc.DeleteAnnotation(ctx, id, first.ID, "ana"))
	list, err = svc.ListAnnotations(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)

	err = svc.DeleteAnnotation(ctx, id, first.ID, "ana")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.AddAnnotation(ctx, id, "ana", AnnotationInput{Type: AnnotationNote})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	doc, err := store.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Len(t, doc.Metadata["annotations"], 1)
	assert.Equal(t, []string{"annotation.added", "annotation.added", "annotation.deleted"}, events.names())
}
