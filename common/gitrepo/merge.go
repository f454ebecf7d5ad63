package gitrepo

import (
	"context"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/exprsn/platform/common/apperr"
)

// MergeResult is the outcome of a dry-run merge of Source into Target
type MergeResult struct {
	SourceSHA   string   `json:"sourceSha"`
	TargetSHA   string   `json:"targetSha"`
	BaseSHA     string   `json:"baseSha,omitempty"`
	Mergeable   bool     `json:"mergeable"`
	UpToDate    bool     `json:"upToDate"`
	FastForward bool     `json:"fastForward"`
	Conflicts   []string `json:"conflicts"`
}

type blobRef struct {
	hash plumbing.Hash
	mode filemode.FileMode
}

// MergeCheck compares both branches against their merge base. A path
// changed on both sides to different content is a conflict.
func (r *Repo) MergeCheck(ctx context.Context, source, target string) (*MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, _, err := r.plan(source, target)
	return res, err
}

type mergePlan struct {
	src, tgt *object.Commit
	srcSide  map[string]*blobRef
}

func (r *Repo) plan(source, target string) (*MergeResult, *mergePlan, error) {
	src, err := r.branchCommit(source)
	if err != nil {
		return nil, nil, err
	}
	tgt, err := r.branchCommit(target)
	if err != nil {
		return nil, nil, err
	}

	res := &MergeResult{
		SourceSHA: src.Hash.String(),
		TargetSHA: tgt.Hash.String(),
		Conflicts: []string{},
	}

	bases, err := src.MergeBase(tgt)
	if err != nil {
		return nil, nil, apperr.IO(err, "merge base of %s and %s", source, target)
	}

	var base *object.Commit
	if len(bases) > 0 {
		base = bases[0]
		res.BaseSHA = base.Hash.String()
	}

	switch {
	case base != nil && base.Hash == src.Hash:
		res.UpToDate = true
		res.Mergeable = true
		return res, nil, nil
	case base != nil && base.Hash == tgt.Hash:
		res.FastForward = true
		res.Mergeable = true
		return res, &mergePlan{src: src, tgt: tgt}, nil
	}

	srcSide, err := changedPaths(base, src)
	if err != nil {
		return nil, nil, err
	}
	tgtSide, err := changedPaths(base, tgt)
	if err != nil {
		return nil, nil, err
	}

	for path, s := range srcSide {
		t, ok := tgtSide[path]
		if !ok {
			continue
		}
		if !sameBlob(s, t) {
			res.Conflicts = append(res.Conflicts, path)
		}
	}
	sort.Strings(res.Conflicts)
	res.Mergeable = len(res.Conflicts) == 0
	return res, &mergePlan{src: src, tgt: tgt, srcSide: srcSide}, nil
}

// Merge merges source into target. A fast-forward moves the target ref;
// otherwise a commit with both heads as parents is written. Returns the
// resulting head of target.
func (r *Repo) Merge(ctx context.Context, source, target, message string, who Signature) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res, plan, err := r.plan(source, target)
	if err != nil {
		return "", err
	}
	if !res.Mergeable {
		return "", apperr.Wrap(apperr.KindConflict, ErrMergeConflict, "merge %s into %s", source, target).
			WithDetails(map[string]any{"conflicts": res.Conflicts})
	}
	if res.UpToDate {
		return res.TargetSHA, nil
	}

	head := plan.src.Hash
	if !res.FastForward {
		if message == "" {
			message = "Merge branch '" + source + "' into " + target
		}
		head, err = r.mergeCommit(plan, message, who)
		if err != nil {
			return "", err
		}
	}

	if err := r.moveBranch(target, head); err != nil {
		return "", err
	}
	return head.String(), nil
}

func (r *Repo) mergeCommit(plan *mergePlan, message string, who Signature) (plumbing.Hash, error) {
	tgtTree, err := plan.tgt.Tree()
	if err != nil {
		return plumbing.ZeroHash, apperr.IO(err, "target tree")
	}

	files, err := flatten(tgtTree)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	for path, b := range plan.srcSide {
		if b == nil {
			delete(files, path)
		} else {
			files[path] = b
		}
	}

	treeHash, err := r.writeTree(files)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	sig := who.object()
	commit := &object.Commit{
		Author:       *sig,
		Committer:    *sig,
		Message:      message,
		TreeHash:     treeHash,
		ParentHashes: []plumbing.Hash{plan.tgt.Hash, plan.src.Hash},
	}
	obj := r.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, apperr.IO(err, "encode merge commit")
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, apperr.IO(err, "store merge commit")
	}
	return hash, nil
}

// moveBranch points target at head and refreshes the worktree when target
// is checked out
func (r *Repo) moveBranch(target string, head plumbing.Hash) error {
	refName := plumbing.NewBranchReferenceName(target)
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(refName, head)); err != nil {
		return apperr.IO(err, "update branch %s", target)
	}

	current, err := r.CurrentBranch()
	if err != nil {
		return err
	}
	if current != target {
		return nil
	}
	if err := r.worktree.Reset(&git.ResetOptions{Commit: head, Mode: git.HardReset}); err != nil {
		return apperr.IO(err, "reset worktree to %s", head)
	}
	return nil
}

func (r *Repo) branchCommit(name string) (*object.Commit, error) {
	sha, err := r.BranchHead(name)
	if err != nil {
		return nil, err
	}
	c, err := r.repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return nil, apperr.IO(err, "load head of %s", name)
	}
	return c, nil
}

// changedPaths maps every path that differs between base and head to its
// blob in head, or nil when head deleted it
func changedPaths(base, head *object.Commit) (map[string]*blobRef, error) {
	var from *object.Tree
	if base != nil {
		t, err := base.Tree()
		if err != nil {
			return nil, apperr.IO(err, "base tree")
		}
		from = t
	}
	to, err := head.Tree()
	if err != nil {
		return nil, apperr.IO(err, "head tree")
	}

	changes, err := object.DiffTree(from, to)
	if err != nil {
		return nil, apperr.IO(err, "diff trees")
	}

	out := make(map[string]*blobRef, len(changes))
	for _, c := range changes {
		if c.To.Name == "" {
			out[c.From.Name] = nil
			continue
		}
		if c.From.Name != "" && c.From.Name != c.To.Name {
			out[c.From.Name] = nil
		}
		out[c.To.Name] = &blobRef{hash: c.To.TreeEntry.Hash, mode: c.To.TreeEntry.Mode}
	}
	return out, nil
}

func sameBlob(a, b *blobRef) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.hash == b.hash && a.mode == b.mode
}

func flatten(t *object.Tree) (map[string]*blobRef, error) {
	files := make(map[string]*blobRef)
	err := t.Files().ForEach(func(f *object.File) error {
		files[f.Name] = &blobRef{hash: f.Hash, mode: f.Mode}
		return nil
	})
	if err != nil {
		return nil, apperr.IO(err, "walk tree")
	}
	return files, nil
}

type dirNode struct {
	files map[string]*blobRef
	dirs  map[string]*dirNode
}

func newDirNode() *dirNode {
	return &dirNode{files: map[string]*blobRef{}, dirs: map[string]*dirNode{}}
}

// writeTree stores the nested trees for a flat path listing and returns
// the root tree hash
func (r *Repo) writeTree(files map[string]*blobRef) (plumbing.Hash, error) {
	root := newDirNode()
	for path, b := range files {
		parts := strings.Split(path, "/")
		n := root
		for _, dir := range parts[:len(parts)-1] {
			child, ok := n.dirs[dir]
			if !ok {
				child = newDirNode()
				n.dirs[dir] = child
			}
			n = child
		}
		n.files[parts[len(parts)-1]] = b
	}
	return r.storeDir(root)
}

func (r *Repo) storeDir(n *dirNode) (plumbing.Hash, error) {
	entries := make([]object.TreeEntry, 0, len(n.files)+len(n.dirs))
	for name, b := range n.files {
		entries = append(entries, object.TreeEntry{Name: name, Mode: b.mode, Hash: b.hash})
	}
	for name, child := range n.dirs {
		h, err := r.storeDir(child)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: h})
	}

	// git orders directories as if their name ended in "/"
	sortKey := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.Slice(entries, func(i, j int) bool { return sortKey(entries[i]) < sortKey(entries[j]) })

	tree := &object.Tree{Entries: entries}
	obj := r.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, apperr.IO(err, "encode tree")
	}
	h, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, apperr.IO(err, "store tree")
	}
	return h, nil
}
