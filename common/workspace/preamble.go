package workspace

import (
	"fmt"
	"strings"
	"time"

	"github.com/exprsn/platform/common/codec"
	"github.com/exprsn/platform/common/models"
)

// GitignoreFile and ReadmeFile are written by GeneratePreamble
const (
	GitignoreFile = ".gitignore"
	ReadmeFile    = "README.md"
)

var gitignoreEntries = []string{
	"# Dependencies",
	"node_modules/",
	".npm/",
	".pnpm-store/",
	"",
	"# Environment",
	".env",
	".env.*",
	"",
	"# Logs",
	"logs/",
	"*.log",
	"npm-debug.log*",
	"",
	"# Temporary files",
	"tmp/",
	"temp/",
	"*.tmp",
	"*.swp",
	"",
	"# IDE",
	".idea/",
	".vscode/",
	"",
	"# OS",
	".DS_Store",
	"Thumbs.db",
	"",
	"# Build output",
	"dist/",
	"build/",
	"coverage/",
}

// GeneratePreamble writes .gitignore and, when app is given, a README
// describing the application and the artifact folder layout.
func (w *Workspace) GeneratePreamble(repo string, app *models.Artifact) ([]string, error) {
	written := []string{GitignoreFile}
	if err := w.writeFile(repo, GitignoreFile, []byte(strings.Join(gitignoreEntries, "\n")+"\n")); err != nil {
		return nil, err
	}

	if app == nil {
		return written, nil
	}
	if err := w.writeFile(repo, ReadmeFile, []byte(readme(app))); err != nil {
		return nil, err
	}
	return append(written, ReadmeFile), nil
}

func readme(app *models.Artifact) string {
	var b strings.Builder

	title := app.DisplayName
	if title == "" {
		title = app.Name
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if desc, _ := app.Spec["description"].(string); desc != "" {
		fmt.Fprintf(&b, "%s\n\n", desc)
	}

	b.WriteString("## Application\n\n")
	fmt.Fprintf(&b, "- **Name:** %s\n", app.Name)
	fmt.Fprintf(&b, "- **Version:** %s\n", app.Version)
	fmt.Fprintf(&b, "- **Created:** %s\n", app.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Updated:** %s\n\n", app.UpdatedAt.UTC().Format(time.RFC3339))

	b.WriteString("## Layout\n\n")
	b.WriteString("| Folder | Contents |\n")
	b.WriteString("|---|---|\n")
	fmt.Fprintf(&b, "| `%s` | Application record |\n", codec.ApplicationFile)
	for _, kind := range models.ArtifactKinds {
		fmt.Fprintf(&b, "| `%s/` | %s definitions |\n", codec.FolderFor(kind), kind)
	}
	return b.String()
}
