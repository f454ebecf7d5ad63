package service

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/codec"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/models"
	"github.com/exprsn/platform/common/workspace"
)

type syncFixture struct {
	svc       *ArtifactSyncService
	artifacts *memArtifacts
	ws        *workspace.Workspace
	repo      *models.Repository
	app       *models.Artifact
	customer  *models.Artifact
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	appID := uuid.New()
	app := &models.Artifact{
		ID:        appID,
		Kind:      models.KindApplication,
		Name:      "crm",
		Version:   "1.0.0",
		Spec:      map[string]any{},
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	customer := &models.Artifact{
		ID:            uuid.New(),
		Kind:          models.KindEntity,
		ApplicationID: &appID,
		Name:          "Customer",
		Version:       "1.0.0",
		Spec: map[string]any{
			"schema": map[string]any{"fields": []any{
				map[string]any{"name": "email", "type": "string", "required": true},
				map[string]any{"name": "tier", "type": "string"},
			}},
			"sourceType": "custom",
		},
		CreatedAt: t0,
		UpdatedAt: t0.Add(time.Hour),
	}
	repo := &models.Repository{ID: uuid.New(), Name: "crm-app", DefaultBranch: "main"}

	artifacts := newMemArtifacts(app, customer)
	ws := workspace.New(memfs.New(), logger.Discard())
	svc := NewArtifactSyncService(artifacts, newMemGit(repo), ws, logger.Discard())
	svc.now = clock(t0.Add(48 * time.Hour))

	return &syncFixture{svc: svc, artifacts: artifacts, ws: ws, repo: repo, app: app, customer: customer}
}

func (f *syncFixture) exportCustomer(t *testing.T) string {
	t.Helper()
	out, err := f.svc.ExportArtifact(context.Background(), models.KindEntity, f.customer.ID, f.repo.ID)
	require.NoError(t, err)
	return out.RelativePath
}

func TestExportArtifact_WritesCanonicalPath(t *testing.T) {
	f := newSyncFixture(t)

	rel := f.exportCustomer(t)
	assert.Equal(t, "entities/customer.json", rel)

	payload, err := f.ws.ReadArtifactFile(f.repo.Name, rel)
	require.NoError(t, err)
	assert.Equal(t, f.customer.ID.String(), payload["id"])
	assert.Equal(t, "entity", payload["type"])
	assert.Equal(t, "Customer", payload["name"])
	assert.Equal(t, f.app.ID.String(), payload["applicationId"])
}

func TestExportImport_RoundTripIntoEmptyDatabase(t *testing.T) {
	f := newSyncFixture(t)
	rel := f.exportCustomer(t)

	fresh := newMemArtifacts()
	svc := NewArtifactSyncService(fresh, newMemGit(f.repo), f.ws, logger.Discard())

	res, err := svc.ImportArtifact(context.Background(), f.repo.ID, rel, ImportOptions{})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.True(t, res.Created)

	got := res.Artifact
	assert.Equal(t, f.customer.ID, got.ID)
	assert.Equal(t, f.customer.Name, got.Name)
	assert.Equal(t, f.customer.Version, got.Version)
	assert.Equal(t, *f.customer.ApplicationID, *got.ApplicationID)
	assert.Equal(t, f.customer.Spec["schema"], got.Spec["schema"])
	assert.Equal(t, "custom", got.Spec["sourceType"])
	assert.True(t, f.customer.UpdatedAt.Equal(got.UpdatedAt))
	assert.Len(t, fresh.byKind(models.KindEntity), 1)
}

func TestImportArtifact_DefersWhenDatabaseIsNewer(t *testing.T) {
	f := newSyncFixture(t)
	rel := f.exportCustomer(t)

	edited := *f.customer
	edited.UpdatedAt = f.customer.UpdatedAt.Add(time.Hour)
	edited.DisplayName = "Customers"
	require.NoError(t, f.artifacts.Update(context.Background(), &edited))

	res, err := f.svc.ImportArtifact(context.Background(), f.repo.ID, rel, ImportOptions{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.Conflict)
	require.NotNil(t, res.ConflictDetails)
	assert.Equal(t, ConflictDatabaseNewer, res.ConflictDetails.Type)

	stored, err := f.artifacts.Get(context.Background(), models.KindEntity, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, edited, *stored)
}

func TestImportArtifact_DefersOnVersionMismatch(t *testing.T) {
	f := newSyncFixture(t)
	rel := f.exportCustomer(t)

	bumped := *f.customer
	bumped.Version = "1.1.0"
	require.NoError(t, f.artifacts.Update(context.Background(), &bumped))

	res, err := f.svc.ImportArtifact(context.Background(), f.repo.ID, rel, ImportOptions{})
	require.NoError(t, err)
	assert.True(t, res.Conflict)
	assert.Equal(t, ConflictVersionMismatch, res.ConflictDetails.Type)
	assert.Equal(t, "1.1.0", res.ConflictDetails.ExistingVersion)
	assert.Equal(t, "1.0.0", res.ConflictDetails.FileVersion)

	stored, err := f.artifacts.Get(context.Background(), models.KindEntity, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", stored.Version)
}

func TestImportArtifact_OverwriteReplacesNewerRecord(t *testing.T) {
	f := newSyncFixture(t)
	rel := f.exportCustomer(t)

	bumped := *f.customer
	bumped.Version = "2.0.0"
	require.NoError(t, f.artifacts.Update(context.Background(), &bumped))

	res, err := f.svc.ImportArtifact(context.Background(), f.repo.ID, rel, ImportOptions{Overwrite: true})
	require.NoError(t, err)
	assert.True(t, res.Updated)

	stored, err := f.artifacts.Get(context.Background(), models.KindEntity, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", stored.Version)
	assert.Equal(t, f.customer.CreatedAt, stored.CreatedAt)
}

func TestImportArtifact_CreateNewAssignsFreshID(t *testing.T) {
	f := newSyncFixture(t)
	rel := f.exportCustomer(t)

	res, err := f.svc.ImportArtifact(context.Background(), f.repo.ID, rel, ImportOptions{CreateNew: true})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotEqual(t, f.customer.ID, res.Artifact.ID)
	assert.Len(t, f.artifacts.byKind(models.KindEntity), 2)
}

func TestImportArtifact_MissingFileIsNotFound(t *testing.T) {
	f := newSyncFixture(t)

	_, err := f.svc.ImportArtifact(context.Background(), f.repo.ID, "entities/nothing.json", ImportOptions{})
	require.Error(t, err)
}

func TestExportApplication_WritesEveryArtifact(t *testing.T) {
	f := newSyncFixture(t)

	res, err := f.svc.ExportApplication(context.Background(), f.app.ID, f.repo.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{codec.ApplicationFile, "entities/customer.json"}, res.ExportedFiles)
	assert.Empty(t, res.Errors)
}

// unreadableDir fails ReadDir on one directory with a non-ENOENT error
type unreadableDir struct {
	billy.Filesystem
	dir string
}

func (u unreadableDir) ReadDir(p string) ([]os.FileInfo, error) {
	if filepath.ToSlash(p) == u.dir {
		return nil, &os.PathError{Op: "readdir", Path: p, Err: syscall.EACCES}
	}
	return u.Filesystem.ReadDir(p)
}

func (u unreadableDir) Chroot(p string) (billy.Filesystem, error) {
	return chroot.New(u, p), nil
}

func (f *syncFixture) exportApplication(t *testing.T) {
	t.Helper()
	res, err := f.svc.ExportApplication(context.Background(), f.app.ID, f.repo.ID)
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestExportImportApplication_RoundTrip(t *testing.T) {
	f := newSyncFixture(t)
	f.exportApplication(t)

	fresh := newMemArtifacts()
	svc := NewArtifactSyncService(fresh, newMemGit(f.repo), f.ws, logger.Discard())

	res, err := svc.ImportApplication(context.Background(), f.repo.ID, ImportOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Updated)
	assert.Empty(t, res.Conflicts)
	assert.Empty(t, res.Errors)

	require.NotNil(t, res.Application)
	assert.Equal(t, f.app.ID, res.Application.ID)
	assert.Equal(t, "crm", res.Application.Name)

	entities := fresh.byKind(models.KindEntity)
	require.Len(t, entities, 1)
	assert.Equal(t, f.customer.ID, entities[0].ID)
	assert.Equal(t, res.Application.ID, *entities[0].ApplicationID)
	assert.Equal(t, f.customer.Spec["schema"], entities[0].Spec["schema"])
}

func TestImportApplication_CopiesIntoNewApplication(t *testing.T) {
	f := newSyncFixture(t)
	f.exportApplication(t)

	res, err := f.svc.ImportApplication(context.Background(), f.repo.ID, ImportOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Created)

	assert.NotEqual(t, f.app.ID, res.Application.ID)
	assert.Len(t, f.artifacts.byKind(models.KindApplication), 2)

	entities := f.artifacts.byKind(models.KindEntity)
	require.Len(t, entities, 2)
	for _, e := range entities {
		if e.ID == f.customer.ID {
			assert.Equal(t, f.app.ID, *e.ApplicationID)
			continue
		}
		assert.Equal(t, res.Application.ID, *e.ApplicationID)
		assert.Equal(t, "Customer", e.Name)
	}
}

func TestImportApplication_CollectsConflicts(t *testing.T) {
	f := newSyncFixture(t)
	f.exportApplication(t)

	bumped := *f.customer
	bumped.Version = "1.1.0"
	require.NoError(t, f.artifacts.Update(context.Background(), &bumped))

	res, err := f.svc.ImportApplication(context.Background(), f.repo.ID, ImportOptions{ApplicationID: &f.app.ID})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "entities/customer.json", res.Conflicts[0].Path)
	assert.Equal(t, ConflictVersionMismatch, res.Conflicts[0].Details.Type)

	stored, err := f.artifacts.Get(context.Background(), models.KindEntity, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", stored.Version)
}

func TestImportApplication_ReportsUnreadableFolder(t *testing.T) {
	f := newSyncFixture(t)
	entities := codec.FolderFor(models.KindEntity)

	root := unreadableDir{Filesystem: memfs.New(), dir: path.Join(f.repo.Name, entities)}
	ws := workspace.New(root, logger.Discard())
	exporter := NewArtifactSyncService(f.artifacts, newMemGit(f.repo), ws, logger.Discard())
	res, err := exporter.ExportApplication(context.Background(), f.app.ID, f.repo.ID)
	require.NoError(t, err)
	require.True(t, res.Success)

	fresh := newMemArtifacts()
	svc := NewArtifactSyncService(fresh, newMemGit(f.repo), ws, logger.Discard())
	out, err := svc.ImportApplication(context.Background(), f.repo.ID, ImportOptions{})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, 1, out.Created)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, entities, out.Errors[0].Path)
	assert.Empty(t, fresh.byKind(models.KindEntity))
}

func apiRecord(appID uuid.UUID, name, route string) *models.Artifact {
	return &models.Artifact{
		ID:            uuid.New(),
		Kind:          models.KindAPI,
		ApplicationID: &appID,
		Name:          name,
		Version:       "1.0.0",
		Spec: map[string]any{
			"path":          route,
			"method":        "GET",
			"handlerType":   "external_api",
			"handlerConfig": map[string]any{"url": "https://crm.example/orders"},
		},
		CreatedAt: t0,
		UpdatedAt: t0,
	}
}

func TestImportArtifact_RejectsDuplicateAPIRoute(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	listOrders := apiRecord(f.app.ID, "list-orders", "/orders")
	require.NoError(t, f.artifacts.Create(ctx, listOrders))

	for name, route := range map[string]string{"orders-again": "/orders", "list-invoices": "/invoices"} {
		rec := apiRecord(f.app.ID, name, route)
		payload, err := codec.ToFile(models.KindAPI, rec)
		require.NoError(t, err)
		_, err = f.ws.WriteArtifactFile(f.repo.Name, codec.PathFor(models.KindAPI, rec), payload)
		require.NoError(t, err)
	}

	_, err := f.svc.ImportArtifact(ctx, f.repo.ID, "apis/orders-again.json", ImportOptions{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, listOrders.ID.String(), apperr.DetailsOf(err)["artifactId"])

	res, err := f.svc.ImportArtifact(ctx, f.repo.ID, "apis/list-invoices.json", ImportOptions{})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Len(t, f.artifacts.byKind(models.KindAPI), 2)

	// re-importing the owner of a route is not a collision with itself
	own, err := f.svc.ExportArtifact(ctx, models.KindAPI, listOrders.ID, f.repo.ID)
	require.NoError(t, err)
	res, err = f.svc.ImportArtifact(ctx, f.repo.ID, own.RelativePath, ImportOptions{Overwrite: true})
	require.NoError(t, err)
	assert.True(t, res.Updated)
}
