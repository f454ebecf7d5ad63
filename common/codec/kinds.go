package codec

import (
	"path"
	"regexp"
	"strings"

	"github.com/exprsn/platform/common/models"
)

// ApplicationFile is the repository-root file holding the application record
const ApplicationFile = "application.json"

// DefaultFolder receives artifacts of kinds without a folder of their own
const DefaultFolder = "artifacts"

var folders = map[models.ArtifactKind]string{
	models.KindEntity:     "entities",
	models.KindForm:       "forms",
	models.KindGrid:       "grids",
	models.KindDashboard:  "dashboards",
	models.KindQuery:      "queries",
	models.KindAPI:        "apis",
	models.KindProcess:    "processes",
	models.KindDataSource: "datasources",
}

var kindsByFolder = func() map[string]models.ArtifactKind {
	m := make(map[string]models.ArtifactKind, len(folders))
	for k, f := range folders {
		m[f] = k
	}
	return m
}()

// FolderFor maps a kind to its repository folder
func FolderFor(kind models.ArtifactKind) string {
	if f, ok := folders[kind]; ok {
		return f
	}
	return DefaultFolder
}

// Folders returns the artifact folders in export order
func Folders() []string {
	out := make([]string, 0, len(models.ArtifactKinds))
	for _, k := range models.ArtifactKinds {
		out = append(out, folders[k])
	}
	return out
}

// KindForFolder is the inverse of FolderFor
func KindForFolder(folder string) (models.ArtifactKind, bool) {
	k, ok := kindsByFolder[folder]
	return k, ok
}

// ParseKind validates a kind name
func ParseKind(s string) (models.ArtifactKind, error) {
	k := models.ArtifactKind(s)
	if _, ok := folders[k]; ok || k == models.KindApplication {
		return k, nil
	}
	return "", unknownKind(s)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s, collapses every run of characters outside [a-z0-9]
// into one "-" and trims leading and trailing "-".
func Slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// PathFor returns the repository-relative file of an artifact
func PathFor(kind models.ArtifactKind, rec *models.Artifact) string {
	return FolderFor(kind) + "/" + Slug(rec.Name) + ".json"
}

// DetectKind prefers payload.type and falls back to the first path segment
func DetectKind(relativePath string, payload FilePayload) (models.ArtifactKind, error) {
	if t, ok := payload["type"].(string); ok && t != "" {
		return ParseKind(t)
	}

	clean := path.Clean(strings.TrimPrefix(relativePath, "/"))
	if clean == ApplicationFile {
		return models.KindApplication, nil
	}

	first, _, _ := strings.Cut(clean, "/")
	if k, ok := KindForFolder(first); ok {
		return k, nil
	}
	return "", unknownKind(first)
}
