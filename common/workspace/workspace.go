// Package workspace owns the on-disk working tree of every managed
// repository. Each repository is a directory named after the repository
// under a shared root.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/codec"
	"github.com/exprsn/platform/common/models"
)

// Change statuses reported by ListChangedFiles
const (
	StatusAdded    = "added"
	StatusModified = "modified"
	StatusOutdated = "outdated"
)

// Logger interface for workspace logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Workspace provides file primitives scoped to one repository directory
type Workspace struct {
	root    billy.Filesystem
	rootDir string
	logger  Logger
}

// New creates a workspace over root. Tests pass a memfs.
func New(root billy.Filesystem, logger Logger) *Workspace {
	return &Workspace{root: root, rootDir: root.Root(), logger: logger}
}

// NewOS creates a workspace rooted at dir on the local disk
func NewOS(dir string, logger Logger) *Workspace {
	return New(osfs.New(dir), logger)
}

// ChangedFile describes how an artifact differs from its file on disk
type ChangedFile struct {
	ArtifactID   string              `json:"artifactId"`
	ArtifactType models.ArtifactKind `json:"artifactType"`
	Name         string              `json:"name"`
	RelativePath string              `json:"relativePath"`
	Status       string              `json:"status"`
}

// Repo returns the filesystem of repository repo, chrooted to its directory
func (w *Workspace) Repo(repo string) (billy.Filesystem, error) {
	if repo == "" || strings.ContainsAny(repo, `/\`) || repo == "." || repo == ".." {
		return nil, apperr.Validation("invalid repository directory %q", repo)
	}
	if err := w.root.MkdirAll(repo, 0o755); err != nil {
		return nil, apperr.IO(err, "create repository directory %s", repo)
	}
	return w.root.Chroot(repo)
}

// AbsPath returns the absolute location of relativePath inside repo
func (w *Workspace) AbsPath(repo, relativePath string) (string, error) {
	rel, err := cleanPath(relativePath)
	if err != nil {
		return "", err
	}
	return w.root.Join(w.rootDir, repo, rel), nil
}

// ReadArtifactFile parses the JSON file at relativePath
func (w *Workspace) ReadArtifactFile(repo, relativePath string) (codec.FilePayload, error) {
	fsys, rel, err := w.resolve(repo, relativePath)
	if err != nil {
		return nil, err
	}

	raw, err := util.ReadFile(fsys, rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.NotFound("file", rel)
		}
		return nil, apperr.IO(err, "read %s", rel)
	}
	return codec.Decode(raw)
}

// WriteArtifactFile writes payload as 2-space indented JSON. Parent
// directories are created and the file is replaced through a rename.
func (w *Workspace) WriteArtifactFile(repo, relativePath string, payload codec.FilePayload) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, err, "encode %s", relativePath)
	}
	data = append(data, '\n')

	if err := w.writeFile(repo, relativePath, data); err != nil {
		return "", err
	}
	return w.AbsPath(repo, relativePath)
}

func (w *Workspace) writeFile(repo, relativePath string, data []byte) error {
	fsys, rel, err := w.resolve(repo, relativePath)
	if err != nil {
		return err
	}

	dir := path.Dir(rel)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return apperr.IO(err, "create directory %s", dir)
	}

	tmp, err := util.TempFile(fsys, dir, ".tmp-"+path.Base(rel)+"-")
	if err != nil {
		return apperr.IO(err, "create temp file for %s", rel)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fsys.Remove(tmpName)
		return apperr.IO(err, "write %s", rel)
	}
	if err := tmp.Close(); err != nil {
		fsys.Remove(tmpName)
		return apperr.IO(err, "close %s", rel)
	}
	if err := fsys.Rename(tmpName, rel); err != nil {
		fsys.Remove(tmpName)
		return apperr.IO(err, "rename %s", rel)
	}

	w.logger.Debug("wrote workspace file", "repository", repo, "path", rel, "bytes", len(data))
	return nil
}

// RemoveFile deletes relativePath. A missing file is not an error.
func (w *Workspace) RemoveFile(repo, relativePath string) error {
	fsys, rel, err := w.resolve(repo, relativePath)
	if err != nil {
		return err
	}
	if err := fsys.Remove(rel); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.IO(err, "remove %s", rel)
	}
	return nil
}

// Exists reports whether relativePath is present
func (w *Workspace) Exists(repo, relativePath string) (bool, error) {
	fsys, rel, err := w.resolve(repo, relativePath)
	if err != nil {
		return false, err
	}
	if _, err := fsys.Stat(rel); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, apperr.IO(err, "stat %s", rel)
	}
	return true, nil
}

// ListDir returns the sorted file names in dir. A missing directory returns
// an error matching fs.ErrNotExist.
func (w *Workspace) ListDir(repo, dir string) ([]string, error) {
	fsys, rel, err := w.resolve(repo, dir)
	if err != nil {
		return nil, err
	}
	infos, err := fsys.ReadDir(rel)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", rel, err)
	}

	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		names = append(names, fi.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ListChangedFiles compares every artifact with its file on disk. Files
// that are missing are added; files older than the record are modified;
// files newer than the record are outdated. Equal timestamps are omitted.
func (w *Workspace) ListChangedFiles(repo string, artifacts []*models.Artifact) ([]ChangedFile, error) {
	var changes []ChangedFile
	for _, a := range artifacts {
		rel := codec.PathFor(a.Kind, a)
		if a.Kind == models.KindApplication {
			rel = codec.ApplicationFile
		}
		change := ChangedFile{
			ArtifactID:   a.ID.String(),
			ArtifactType: a.Kind,
			Name:         a.Name,
			RelativePath: rel,
		}

		payload, err := w.ReadArtifactFile(repo, rel)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			change.Status = StatusAdded
		case errors.Is(err, codec.ErrFileFormat):
			change.Status = StatusModified
		case err != nil:
			return nil, err
		default:
			fileTime, ok := codec.UpdatedAtOf(payload)
			change.Status = compareTimes(fileTime, ok, a.UpdatedAt)
		}

		if change.Status != "" {
			changes = append(changes, change)
		}
	}
	return changes, nil
}

func compareTimes(file time.Time, ok bool, record time.Time) string {
	switch {
	case !ok || file.Before(record):
		return StatusModified
	case file.After(record):
		return StatusOutdated
	default:
		return ""
	}
}

func (w *Workspace) resolve(repo, relativePath string) (billy.Filesystem, string, error) {
	rel, err := cleanPath(relativePath)
	if err != nil {
		return nil, "", err
	}
	fsys, err := w.Repo(repo)
	if err != nil {
		return nil, "", err
	}
	return fsys, rel, nil
}

// cleanPath rejects absolute paths and anything escaping the repository
func cleanPath(p string) (string, error) {
	if p == "" {
		return ".", nil
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return "", apperr.Validation("path %q must be relative", p)
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", apperr.Validation("path %q escapes the repository", p)
	}
	return clean, nil
}

// IsNotExist reports whether err came from a missing file or directory
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
