// Package gitrepo runs the Git operations behind workspace commits and pull
// request merges on top of go-git. Repositories live on a billy filesystem
// so tests can run fully in memory.
package gitrepo

import (
	"context"
	"errors"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/models"
)

// DefaultBranch is used by Init when no branch is given
const DefaultBranch = "main"

const dotGit = ".git"

// Signature identifies the author of a commit
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

func (s Signature) object() *object.Signature {
	when := s.When
	if when.IsZero() {
		when = time.Now()
	}
	return &object.Signature{Name: s.Name, Email: s.Email, When: when}
}

// Repo is a non-bare repository whose worktree is the given filesystem
type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
}

func storageFor(fs billy.Filesystem) (*filesystem.Storage, error) {
	dot, err := fs.Chroot(dotGit)
	if err != nil {
		return nil, wrapf(err, "chroot %s", dotGit)
	}
	return filesystem.NewStorage(dot, cache.NewObjectLRUDefault()), nil
}

// Init creates a repository in fs with branch as the initial HEAD
func Init(fs billy.Filesystem, branch string) (*Repo, error) {
	if branch == "" {
		branch = DefaultBranch
	}
	storage, err := storageFor(fs)
	if err != nil {
		return nil, apperr.IO(err, "init repository")
	}

	r, err := git.InitWithOptions(storage, fs, git.InitOptions{
		DefaultBranch: plumbing.NewBranchReferenceName(branch),
	})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryAlreadyExists) {
			return Open(fs)
		}
		return nil, apperr.IO(err, "init repository")
	}
	return wrap(r)
}

// Open opens the repository stored in fs
func Open(fs billy.Filesystem) (*Repo, error) {
	storage, err := storageFor(fs)
	if err != nil {
		return nil, apperr.IO(err, "open repository")
	}

	r, err := git.Open(storage, fs)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, apperr.Wrap(apperr.KindNotFound, ErrNotInitialized, "open repository")
		}
		return nil, apperr.IO(err, "open repository")
	}
	return wrap(r)
}

func wrap(r *git.Repository) (*Repo, error) {
	wt, err := r.Worktree()
	if err != nil {
		return nil, apperr.IO(err, "open worktree")
	}
	return &Repo{repo: r, worktree: wt}, nil
}

// CurrentBranch returns the short name of the branch HEAD points at
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", apperr.IO(err, "read HEAD")
	}
	if head.Type() == plumbing.SymbolicReference {
		return head.Target().Short(), nil
	}
	return head.Name().Short(), nil
}

// CommitAll stages every change in the worktree, including deletions, and
// commits it on the current branch.
func (r *Repo) CommitAll(ctx context.Context, message string, who Signature) (*models.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if message == "" {
		return nil, apperr.Validation("commit message cannot be empty")
	}
	if who.Name == "" || who.Email == "" {
		return nil, apperr.Validation("author name and email are required")
	}

	status, err := r.worktree.Status()
	if err != nil {
		return nil, apperr.IO(err, "worktree status")
	}

	staged := 0
	for path, st := range status {
		if st.Worktree == git.Unmodified && st.Staging == git.Unmodified {
			continue
		}
		if st.Worktree == git.Deleted {
			if _, err := r.worktree.Remove(path); err != nil {
				return nil, apperr.IO(err, "stage removal of %s", path)
			}
		} else if st.Worktree != git.Unmodified {
			if _, err := r.worktree.Add(path); err != nil {
				return nil, apperr.IO(err, "stage %s", path)
			}
		}
		staged++
	}
	if staged == 0 {
		return nil, apperr.Wrap(apperr.KindValidation, ErrNothingToCommit, "commit")
	}

	sig := who.object()
	hash, err := r.worktree.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return nil, apperr.Wrap(apperr.KindValidation, ErrNothingToCommit, "commit")
		}
		return nil, apperr.IO(err, "commit")
	}
	return r.Commit(hash.String())
}

// Commit loads sha and summarises it with line statistics
func (r *Repo) Commit(sha string) (*models.Commit, error) {
	c, err := r.repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, apperr.NotFound("commit", sha)
		}
		return nil, apperr.IO(err, "load commit %s", sha)
	}
	return summarize(c)
}

func summarize(c *object.Commit) (*models.Commit, error) {
	stats, err := c.Stats()
	if err != nil {
		return nil, apperr.IO(err, "commit stats %s", c.Hash)
	}

	out := &models.Commit{
		SHA:          c.Hash.String(),
		TreeSHA:      c.TreeHash.String(),
		Message:      c.Message,
		AuthorName:   c.Author.Name,
		AuthorEmail:  c.Author.Email,
		FilesChanged: len(stats),
		CommittedAt:  c.Committer.When.UTC(),
		ParentSHAs:   make([]string, 0, len(c.ParentHashes)),
	}
	for _, p := range c.ParentHashes {
		out.ParentSHAs = append(out.ParentSHAs, p.String())
	}
	for _, s := range stats {
		out.Additions += s.Addition
		out.Deletions += s.Deletion
	}
	return out, nil
}

// BranchHead returns the commit sha a branch points at
func (r *Repo) BranchHead(name string) (string, error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", apperr.Wrap(apperr.KindNotFound, ErrBranchMissing, "branch %s", name)
		}
		return "", apperr.IO(err, "resolve branch %s", name)
	}
	return ref.Hash().String(), nil
}

// CreateBranch points a new branch at the head of from
func (r *Repo) CreateBranch(ctx context.Context, name, from string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" {
		return "", apperr.Validation("branch name cannot be empty")
	}
	if err := plumbing.NewBranchReferenceName(name).Validate(); err != nil {
		return "", apperr.Wrap(apperr.KindValidation, err, "branch name %q", name)
	}

	sha, err := r.BranchHead(from)
	if err != nil {
		return "", err
	}
	refName := plumbing.NewBranchReferenceName(name)
	if _, err := r.repo.Reference(refName, true); err == nil {
		return "", apperr.Wrap(apperr.KindConflict, ErrBranchExists, "branch %s", name)
	}

	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(refName, plumbing.NewHash(sha))); err != nil {
		return "", apperr.IO(err, "create branch %s", name)
	}
	return sha, nil
}

// Checkout switches the worktree to an existing branch
func (r *Repo) Checkout(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := r.BranchHead(name); err != nil {
		return err
	}
	if err := r.worktree.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(name)}); err != nil {
		return apperr.IO(err, "checkout %s", name)
	}
	return nil
}
