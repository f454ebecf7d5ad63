package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/codec"
	"github.com/exprsn/platform/common/gitrepo"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/models"
	"github.com/exprsn/platform/common/workspace"
)

// ArtifactSyncService moves artifacts between the database and the Git
// workspace of a repository
type ArtifactSyncService struct {
	artifacts ArtifactStore
	git       GitStore
	ws        *workspace.Workspace
	locks     *idLocks
	log       *logger.Logger
	now       func() time.Time
}

// NewArtifactSyncService creates a new artifact sync service
func NewArtifactSyncService(artifacts ArtifactStore, git GitStore, ws *workspace.Workspace, log *logger.Logger) *ArtifactSyncService {
	return &ArtifactSyncService{
		artifacts: artifacts,
		git:       git,
		ws:        ws,
		locks:     newIDLocks(),
		log:       log,
		now:       time.Now,
	}
}

// ExportedFile describes one written artifact file
type ExportedFile struct {
	FilePath     string              `json:"filePath"`
	RelativePath string              `json:"relativePath"`
	ArtifactID   uuid.UUID           `json:"artifactId"`
	ArtifactType models.ArtifactKind `json:"artifactType"`
}

// ArtifactError is a per-artifact failure inside a bulk operation
type ArtifactError struct {
	ArtifactType models.ArtifactKind `json:"artifactType,omitempty"`
	ArtifactID   string              `json:"artifactId,omitempty"`
	Path         string              `json:"path,omitempty"`
	Error        string              `json:"error"`
}

// ExportResult aggregates an application export
type ExportResult struct {
	Success       bool            `json:"success"`
	ExportedFiles []string        `json:"exportedFiles"`
	Errors        []ArtifactError `json:"errors"`
}

// ImportResult is the outcome of importing one file
type ImportResult struct {
	Success         bool             `json:"success"`
	Artifact        *models.Artifact `json:"artifact,omitempty"`
	Conflict        bool             `json:"conflict"`
	ConflictDetails *ConflictDetails `json:"conflictDetails,omitempty"`
	Created         bool             `json:"created"`
	Updated         bool             `json:"updated"`
}

// ImportConflict is a deferred file inside an application import
type ImportConflict struct {
	Path    string           `json:"path"`
	Details *ConflictDetails `json:"details"`
}

// ApplicationImportResult aggregates an application import
type ApplicationImportResult struct {
	Success     bool             `json:"success"`
	Application *models.Artifact `json:"application"`
	Created     int              `json:"created"`
	Updated     int              `json:"updated"`
	Conflicts   []ImportConflict `json:"conflicts"`
	Errors      []ArtifactError  `json:"errors"`
}

// InitResult describes a prepared repository workspace
type InitResult struct {
	Files  []string `json:"files"`
	Branch string   `json:"branch"`
}

// ExportArtifact writes one artifact to its canonical path
func (s *ArtifactSyncService) ExportArtifact(ctx context.Context, kind models.ArtifactKind, id, repositoryID uuid.UUID) (*ExportedFile, error) {
	if _, err := codec.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	repo, err := s.git.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	rec, err := s.artifacts.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(repo.ID)
	defer unlock()
	return s.exportRecord(repo, rec)
}

func (s *ArtifactSyncService) exportRecord(repo *models.Repository, rec *models.Artifact) (*ExportedFile, error) {
	rel := codec.PathFor(rec.Kind, rec)
	if rec.Kind == models.KindApplication {
		rel = codec.ApplicationFile
	}

	payload, err := codec.ToFile(rec.Kind, rec)
	if err != nil {
		return nil, err
	}
	abs, err := s.ws.WriteArtifactFile(repo.Name, rel, payload)
	if err != nil {
		return nil, err
	}

	s.log.Debug("exported artifact", "repository", repo.Name, "kind", rec.Kind, "artifact_id", rec.ID, "path", rel)
	return &ExportedFile{FilePath: abs, RelativePath: rel, ArtifactID: rec.ID, ArtifactType: rec.Kind}, nil
}

// ExportApplication writes application.json and every artifact of the
// application. Per-artifact failures are collected and do not stop the
// export; only a missing application fails the call.
func (s *ArtifactSyncService) ExportApplication(ctx context.Context, applicationID, repositoryID uuid.UUID) (*ExportResult, error) {
	repo, err := s.git.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	app, err := s.artifacts.Get(ctx, models.KindApplication, applicationID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(repo.ID)
	defer unlock()

	result := &ExportResult{Success: true, ExportedFiles: []string{}, Errors: []ArtifactError{}}
	f, err := s.exportRecord(repo, app)
	if err != nil {
		return nil, fmt.Errorf("failed to export application record: %w", err)
	}
	result.ExportedFiles = append(result.ExportedFiles, f.RelativePath)

	for _, kind := range models.ArtifactKinds {
		records, err := s.artifacts.ListByApplication(ctx, applicationID, kind)
		if err != nil {
			result.Errors = append(result.Errors, ArtifactError{ArtifactType: kind, Error: err.Error()})
			continue
		}
		for _, rec := range records {
			f, err := s.exportRecord(repo, rec)
			if err != nil {
				result.Errors = append(result.Errors, ArtifactError{ArtifactType: kind, ArtifactID: rec.ID.String(), Error: err.Error()})
				continue
			}
			result.ExportedFiles = append(result.ExportedFiles, f.RelativePath)
		}
	}

	s.log.Info("exported application",
		"application_id", applicationID,
		"repository", repo.Name,
		"files", len(result.ExportedFiles),
		"errors", len(result.Errors),
	)
	return result, nil
}

// ImportArtifact reads one file and creates or updates its record. A
// conflict is returned as a result, not an error, and nothing changes.
func (s *ArtifactSyncService) ImportArtifact(ctx context.Context, repositoryID uuid.UUID, relativePath string, opts ImportOptions) (*ImportResult, error) {
	repo, err := s.git.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(repo.ID)
	defer unlock()
	return s.importFile(ctx, repo, relativePath, opts)
}

func (s *ArtifactSyncService) importFile(ctx context.Context, repo *models.Repository, relativePath string, opts ImportOptions) (*ImportResult, error) {
	payload, err := s.ws.ReadArtifactFile(repo.Name, relativePath)
	if err != nil {
		return nil, err
	}
	kind, err := codec.DetectKind(relativePath, payload)
	if err != nil {
		return nil, err
	}
	return s.importPayload(ctx, kind, payload, opts)
}

func (s *ArtifactSyncService) importPayload(ctx context.Context, kind models.ArtifactKind, payload codec.FilePayload, opts ImportOptions) (*ImportResult, error) {
	payloadID, hasID := codec.IDOf(payload)

	var existing *models.Artifact
	if hasID {
		rec, err := s.artifacts.Get(ctx, kind, payloadID)
		switch {
		case err == nil:
			existing = rec
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, err
		}
	}
	idTaken := existing != nil

	// a record owned by another application is imported as a copy
	if existing != nil && opts.reassign && opts.ApplicationID != nil && kind != models.KindApplication &&
		(existing.ApplicationID == nil || *existing.ApplicationID != *opts.ApplicationID) {
		existing = nil
	}

	decision, conflict := Decide(existing, payload, opts)
	if decision == DecisionDefer {
		s.log.Info("import deferred on conflict", "kind", kind, "artifact_id", existing.ID, "conflict", conflict.Type)
		return &ImportResult{Success: false, Conflict: true, ConflictDetails: conflict, Artifact: existing}, nil
	}

	patch, err := codec.FromFile(kind, payload, opts.ApplicationID)
	if err != nil {
		return nil, err
	}
	if opts.reassign && opts.ApplicationID != nil && kind != models.KindApplication {
		patch["applicationId"] = opts.ApplicationID.String()
	}

	if decision == DecisionCreate {
		id := uuid.New()
		if hasID && !idTaken {
			id = payloadID
		}
		rec, err := s.createFromPatch(ctx, kind, id, patch)
		if err != nil {
			return nil, err
		}
		return &ImportResult{Success: true, Artifact: rec, Created: true}, nil
	}

	rec, err := codec.ApplyPatch(existing, patch)
	if err != nil {
		return nil, err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now().UTC()
	}
	if err := s.checkRoute(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.artifacts.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info("imported artifact", "kind", kind, "artifact_id", rec.ID, "action", "update")
	return &ImportResult{Success: true, Artifact: rec, Updated: true}, nil
}

func (s *ArtifactSyncService) createFromPatch(ctx context.Context, kind models.ArtifactKind, id uuid.UUID, patch codec.Patch) (*models.Artifact, error) {
	rec, err := codec.NewRecord(kind, patch)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	rec.ID = id
	rec.CreatedAt = now
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if err := s.checkRoute(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.artifacts.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info("imported artifact", "kind", kind, "artifact_id", rec.ID, "action", "create")
	return rec, nil
}

// checkRoute rejects an API whose path and method are already served by
// another live API of the same application
func (s *ArtifactSyncService) checkRoute(ctx context.Context, rec *models.Artifact) error {
	if rec.Kind != models.KindAPI || rec.ApplicationID == nil {
		return nil
	}
	routePath, method := apiRoute(rec)
	siblings, err := s.artifacts.ListByApplication(ctx, *rec.ApplicationID, models.KindAPI)
	if err != nil {
		return err
	}
	for _, other := range siblings {
		if other.ID == rec.ID || other.DeletedAt != nil {
			continue
		}
		if p, m := apiRoute(other); p == routePath && m == method {
			return apperr.Conflict("api %s %s is already defined by %q", method, routePath, other.Name).
				WithDetails(map[string]any{"type": "route_taken", "artifactId": other.ID.String()})
		}
	}
	return nil
}

func apiRoute(rec *models.Artifact) (string, string) {
	p, _ := rec.Spec["path"].(string)
	m, _ := rec.Spec["method"].(string)
	return p, strings.ToUpper(m)
}

// ImportApplication imports application.json and then every artifact file
// of the canonical folders. With opts.ApplicationID the application record
// is updated in place; otherwise a new application is created and every
// artifact is attached to it.
func (s *ArtifactSyncService) ImportApplication(ctx context.Context, repositoryID uuid.UUID, opts ImportOptions) (*ApplicationImportResult, error) {
	repo, err := s.git.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(repo.ID)
	defer unlock()

	payload, err := s.ws.ReadArtifactFile(repo.Name, codec.ApplicationFile)
	if err != nil {
		return nil, err
	}

	result := &ApplicationImportResult{Conflicts: []ImportConflict{}, Errors: []ArtifactError{}}
	app, created, err := s.importApplicationRecord(ctx, payload, opts.ApplicationID)
	if err != nil {
		return nil, err
	}
	result.Application = app
	if created {
		result.Created++
	} else {
		result.Updated++
	}

	childOpts := ImportOptions{
		Overwrite:     opts.Overwrite,
		CreateNew:     opts.CreateNew,
		ApplicationID: &app.ID,
		reassign:      true,
	}

	for _, folder := range codec.Folders() {
		names, err := s.ws.ListDir(repo.Name, folder)
		if err != nil {
			if workspace.IsNotExist(err) {
				continue
			}
			result.Errors = append(result.Errors, ArtifactError{Path: folder, Error: err.Error()})
			continue
		}

		for _, name := range names {
			if !strings.HasSuffix(name, ".json") {
				continue
			}
			rel := path.Join(folder, name)
			res, err := s.importFile(ctx, repo, rel, childOpts)
			switch {
			case err != nil:
				result.Errors = append(result.Errors, ArtifactError{Path: rel, Error: err.Error()})
			case res.Conflict:
				result.Conflicts = append(result.Conflicts, ImportConflict{Path: rel, Details: res.ConflictDetails})
			case res.Created:
				result.Created++
			case res.Updated:
				result.Updated++
			}
		}
	}

	result.Success = len(result.Errors) == 0
	s.log.Info("imported application",
		"application_id", app.ID,
		"repository", repo.Name,
		"created", result.Created,
		"updated", result.Updated,
		"conflicts", len(result.Conflicts),
		"errors", len(result.Errors),
	)
	return result, nil
}

func (s *ArtifactSyncService) importApplicationRecord(ctx context.Context, payload codec.FilePayload, applicationID *uuid.UUID) (*models.Artifact, bool, error) {
	patch, err := codec.FromFile(models.KindApplication, payload, nil)
	if err != nil {
		return nil, false, err
	}

	if applicationID != nil {
		existing, err := s.artifacts.Get(ctx, models.KindApplication, *applicationID)
		if err != nil {
			return nil, false, err
		}
		rec, err := codec.ApplyPatch(existing, patch)
		if err != nil {
			return nil, false, err
		}
		if err := s.artifacts.Update(ctx, rec); err != nil {
			return nil, false, err
		}
		return rec, false, nil
	}

	id := uuid.New()
	if payloadID, ok := codec.IDOf(payload); ok {
		_, err := s.artifacts.Get(ctx, models.KindApplication, payloadID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			id = payloadID
		case err != nil:
			return nil, false, err
		}
	}
	rec, err := s.createFromPatch(ctx, models.KindApplication, id, patch)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// ChangedFiles lists the artifacts of an application whose file differs
// from the record
func (s *ArtifactSyncService) ChangedFiles(ctx context.Context, repositoryID, applicationID uuid.UUID) ([]workspace.ChangedFile, error) {
	repo, err := s.git.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	app, err := s.artifacts.Get(ctx, models.KindApplication, applicationID)
	if err != nil {
		return nil, err
	}

	records := []*models.Artifact{app}
	for _, kind := range models.ArtifactKinds {
		list, err := s.artifacts.ListByApplication(ctx, applicationID, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s artifacts: %w", kind, err)
		}
		records = append(records, list...)
	}

	changes, err := s.ws.ListChangedFiles(repo.Name, records)
	if err != nil {
		return nil, err
	}
	if changes == nil {
		changes = []workspace.ChangedFile{}
	}
	return changes, nil
}

// FileContent returns the parsed file at relativePath
func (s *ArtifactSyncService) FileContent(ctx context.Context, repositoryID uuid.UUID, relativePath string) (codec.FilePayload, error) {
	repo, err := s.git.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	return s.ws.ReadArtifactFile(repo.Name, relativePath)
}

// InitRepository writes the preamble files and initialises Git in the
// repository workspace
func (s *ArtifactSyncService) InitRepository(ctx context.Context, repositoryID uuid.UUID, applicationID *uuid.UUID) (*InitResult, error) {
	repo, err := s.git.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}

	var app *models.Artifact
	if applicationID != nil {
		if app, err = s.artifacts.Get(ctx, models.KindApplication, *applicationID); err != nil {
			return nil, err
		}
	}

	unlock := s.locks.lock(repo.ID)
	defer unlock()

	files, err := s.ws.GeneratePreamble(repo.Name, app)
	if err != nil {
		return nil, err
	}
	fs, err := s.ws.Repo(repo.Name)
	if err != nil {
		return nil, err
	}
	r, err := gitrepo.Init(fs, repo.DefaultBranch)
	if err != nil {
		return nil, err
	}
	branch, err := r.CurrentBranch()
	if err != nil {
		return nil, err
	}

	s.log.WithRepositoryID(repo.ID.String()).Info("initialised repository workspace", "repository", repo.Name, "branch", branch, "files", files)
	return &InitResult{Files: files, Branch: branch}, nil
}

// CommitWorkspace commits every pending workspace change, records the
// commit and moves the branch row to it
func (s *ArtifactSyncService) CommitWorkspace(ctx context.Context, repositoryID uuid.UUID, message string, author gitrepo.Signature) (*models.Commit, error) {
	repo, err := s.git.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(repo.ID)
	defer unlock()

	fs, err := s.ws.Repo(repo.Name)
	if err != nil {
		return nil, err
	}
	r, err := gitrepo.Open(fs)
	if err != nil {
		return nil, err
	}

	if author.When.IsZero() {
		author.When = s.now()
	}
	c, err := r.CommitAll(ctx, message, author)
	if err != nil {
		return nil, err
	}
	branch, err := r.CurrentBranch()
	if err != nil {
		return nil, err
	}

	c.ID = uuid.New()
	c.RepositoryID = repo.ID
	if err := s.git.CreateCommit(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to record commit: %w", err)
	}
	if err := s.git.UpsertBranch(ctx, &models.Branch{
		ID:           uuid.New(),
		RepositoryID: repo.ID,
		Name:         branch,
		CommitSHA:    c.SHA,
		CreatedAt:    s.now().UTC(),
		UpdatedAt:    s.now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("failed to move branch %s: %w", branch, err)
	}

	s.log.WithRepositoryID(repo.ID.String()).Info("committed workspace", "repository", repo.Name, "branch", branch, "sha", c.SHA, "files_changed", c.FilesChanged)
	return c, nil
}
