// Package gitctx detects git repository context (commit, branch, tag, dirty
// state) for a scan target, for attaching provenance to stored scans.
package gitctx

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// DefaultMaxParentWalk bounds how far findRepoRoot walks up looking for a
// .git directory when path itself is not a repo root.
const DefaultMaxParentWalk = 5

// Context is the git provenance attached to a stored scan.
type Context struct {
	CommitHash  string `json:"commit_hash,omitempty"`
	CommitShort string `json:"commit_short,omitempty"`
	Branch      string `json:"branch,omitempty"`
	Tag         string `json:"tag,omitempty"`
	IsDirty     bool   `json:"is_dirty"`
}

// Detect walks up from path (at most maxParentWalk directories, or
// DefaultMaxParentWalk when maxParentWalk <= 0) looking for a .git
// directory, then populates a Context from it. Returns a zero Context, no
// error, when no repository is found — absence of git context is not a
// failure (spec: scans against non-repo targets are valid).
func Detect(path string, maxParentWalk int) (Context, error) {
	if maxParentWalk <= 0 {
		maxParentWalk = DefaultMaxParentWalk
	}

	root := findRepoRoot(path, maxParentWalk)
	if root == "" {
		return Context{}, nil
	}

	repo, err := git.PlainOpen(root)
	if err != nil {
		return Context{}, nil
	}

	var ctx Context

	head, err := repo.Head()
	if err == nil {
		ctx.CommitHash = head.Hash().String()
		if len(ctx.CommitHash) >= 8 {
			ctx.CommitShort = ctx.CommitHash[:8]
		}
		if head.Name().IsBranch() {
			ctx.Branch = head.Name().Short()
		}
	}

	if ctx.CommitHash != "" {
		ctx.Tag = exactTagAt(root, ctx.CommitHash)
	}

	ctx.IsDirty = isDirty(repo)

	return ctx, nil
}

func findRepoRoot(path string, maxParentWalk int) string {
	dir, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	for i := 0; i <= maxParentWalk; i++ {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// isDirty reports whether the worktree has uncommitted changes. go-git's
// Worktree.Status is used rather than shelling out, matching the read-path
// preference for the pure-Go library.
func isDirty(repo *git.Repository) bool {
	wt, err := repo.Worktree()
	if err != nil {
		// bare repository or detached filesystem worktree: treat as clean,
		// there is nothing to compare against.
		return false
	}
	status, err := wt.Status()
	if err != nil {
		return false
	}
	return !status.IsClean()
}

// exactTagAt shells out to `git describe --tags --exact-match`, the one
// operation go-git has no equivalent for (it has no porcelain describe).
func exactTagAt(repoRoot, commitHash string) string {
	cmd := exec.CommandContext(context.Background(), "git", "describe", "--tags", "--exact-match", commitHash)
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// BranchRef mirrors go-git's branch reference name construction, exposed
// for callers that need to compare against a specific branch.
func BranchRef(name string) plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(name)
}
