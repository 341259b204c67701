package gitsync

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Repository is the set of git operations the sync manager needs.
type Repository interface {
	// HasChanges reports whether the working tree has uncommitted changes.
	HasChanges(ctx context.Context) (bool, error)
	// CommitAll stages every change and commits it with msg.
	CommitAll(ctx context.Context, msg string) error
	// Push pushes the current branch. A missing remote is not an error.
	Push(ctx context.Context) error
	// Pull integrates the remote branch by rebase or by merge.
	Pull(ctx context.Context, rebase bool) error
	// CreateBranch creates and checks out a new branch.
	CreateBranch(ctx context.Context, name string) error
	// PushBranch pushes branch to the remote.
	PushBranch(ctx context.Context, branch string) error
	// Info describes the current branch and its relation to upstream.
	Info(ctx context.Context) (RepoInfo, error)
}

// RepoInfo is a point-in-time description of the repository.
type RepoInfo struct {
	Branch     string
	LastCommit string
	Clean      bool
	Ahead      int
	Behind     int
}

// Git implements Repository by shelling out to the git binary.
type Git struct {
	dir    string
	remote string
}

// NewGit returns a Git rooted at dir pushing to remote ("origin" when empty).
func NewGit(dir, remote string) *Git {
	if remote == "" {
		remote = "origin"
	}
	return &Git{dir: dir, remote: remote}
}

// Exec runs a raw git command in the repository.
func (g *Git) Exec(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir

	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("git %s failed: %w\n%s",
			strings.Join(args, " "), err, string(output))
	}
	return output, nil
}

// HasChanges checks `git status --porcelain` for any output.
func (g *Git) HasChanges(ctx context.Context) (bool, error) {
	out, err := g.Exec(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return len(strings.TrimSpace(string(out))) > 0, nil
}

func (g *Git) CommitAll(ctx context.Context, msg string) error {
	if _, err := g.Exec(ctx, "add", "-A"); err != nil {
		return err
	}
	_, err := g.Exec(ctx, "commit", "-m", msg)
	return err
}

func (g *Git) Push(ctx context.Context) error {
	branch, err := g.currentBranch(ctx)
	if err != nil {
		return err
	}
	return g.PushBranch(ctx, branch)
}

func (g *Git) PushBranch(ctx context.Context, branch string) error {
	if !g.hasRemote(ctx) {
		return nil // local-only mode
	}
	out, err := g.Exec(ctx, "push", g.remote, branch)
	if err != nil {
		s := string(out)
		if strings.Contains(s, "rejected") || strings.Contains(s, "non-fast-forward") {
			return fmt.Errorf("%w: %s", ErrPushRejected, strings.TrimSpace(s))
		}
		return err
	}
	return nil
}

// Pull fetches and integrates the remote branch. On conflicts the rebase or
// merge is aborted so the working tree is left usable.
func (g *Git) Pull(ctx context.Context, rebase bool) error {
	if !g.hasRemote(ctx) {
		return nil
	}
	branch, err := g.currentBranch(ctx)
	if err != nil {
		return err
	}
	mode := "--no-rebase"
	if rebase {
		mode = "--rebase"
	}
	out, err := g.Exec(ctx, "pull", mode, g.remote, branch)
	if err != nil {
		s := string(out)
		if strings.Contains(s, "CONFLICT") || strings.Contains(s, "conflicts") {
			if rebase {
				_, _ = g.Exec(ctx, "rebase", "--abort")
			} else {
				_, _ = g.Exec(ctx, "merge", "--abort")
			}
			return fmt.Errorf("%w: %s", ErrConflicts, strings.TrimSpace(s))
		}
		return err
	}
	return nil
}

func (g *Git) CreateBranch(ctx context.Context, name string) error {
	_, err := g.Exec(ctx, "checkout", "-b", name)
	return err
}

func (g *Git) Info(ctx context.Context) (RepoInfo, error) {
	var info RepoInfo
	branch, err := g.currentBranch(ctx)
	if err != nil {
		return info, err
	}
	info.Branch = branch

	if out, err := g.Exec(ctx, "log", "-1", "--format=%h %s"); err == nil {
		info.LastCommit = strings.TrimSpace(string(out))
	}

	dirty, err := g.HasChanges(ctx)
	if err != nil {
		return info, err
	}
	info.Clean = !dirty

	// No upstream is not an error; ahead/behind stay zero.
	if out, err := g.Exec(ctx, "rev-list", "--left-right", "--count", "HEAD...@{u}"); err == nil {
		fields := strings.Fields(string(out))
		if len(fields) == 2 {
			info.Ahead, _ = strconv.Atoi(fields[0])
			info.Behind, _ = strconv.Atoi(fields[1])
		}
	}
	return info, nil
}

func (g *Git) currentBranch(ctx context.Context) (string, error) {
	out, err := g.Exec(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(string(out))
	if branch == "HEAD" || branch == "" {
		return "", ErrDetached
	}
	return branch, nil
}

func (g *Git) hasRemote(ctx context.Context) bool {
	out, err := g.Exec(ctx, "remote")
	if err != nil {
		return false
	}
	for _, r := range strings.Fields(string(out)) {
		if r == g.remote {
			return true
		}
	}
	return false
}
