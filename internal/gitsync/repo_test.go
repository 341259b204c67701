package gitsync

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	t.Setenv("GIT_AUTHOR_NAME", "mdumb test")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "mdumb test")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@example.com")
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("HOME", t.TempDir())
}

func run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// newRemotePair creates a bare remote and a working clone on branch main.
func newRemotePair(t *testing.T) (remote, work string) {
	t.Helper()
	remote = t.TempDir()
	run(t, remote, "init", "--bare", "-b", "main")

	work = t.TempDir()
	run(t, work, "init", "-b", "main")
	run(t, work, "remote", "add", "origin", remote)
	if err := os.WriteFile(filepath.Join(work, "README.md"), []byte("# Wiki\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run(t, work, "add", "-A")
	run(t, work, "commit", "-m", "init")
	run(t, work, "push", "-u", "origin", "main")
	return remote, work
}

func TestGit_SyncPushesToRemote(t *testing.T) {
	requireGit(t)
	remote, work := newRemotePair(t)

	if err := os.WriteFile(filepath.Join(work, "page.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := newTestManager(NewGit(work, ""), enabledConfig())
	if err := m.ForceSync(context.Background()); err != nil {
		t.Fatalf("ForceSync: %v", err)
	}

	subject := run(t, remote, "log", "-1", "--format=%s", "main")
	if subject != "Auto-commit: 2024-05-01T12:00:00Z" {
		t.Errorf("remote head subject = %q", subject)
	}

	info := m.Info(context.Background())
	if info.Branch != "main" || !info.UpToDate {
		t.Errorf("info = %+v", info)
	}
}

func TestGit_RejectedPushRebases(t *testing.T) {
	requireGit(t)
	remote, work := newRemotePair(t)

	// Another clone moves the remote forward.
	other := t.TempDir()
	run(t, other, "clone", remote, ".")
	if err := os.WriteFile(filepath.Join(other, "theirs.md"), []byte("theirs\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run(t, other, "add", "-A")
	run(t, other, "commit", "-m", "theirs")
	run(t, other, "push", "origin", "main")

	if err := os.WriteFile(filepath.Join(work, "mine.md"), []byte("mine\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := newTestManager(NewGit(work, "origin"), enabledConfig())
	if err := m.ForceSync(context.Background()); err != nil {
		t.Fatalf("ForceSync: %v", err)
	}

	files := run(t, remote, "ls-tree", "--name-only", "main")
	for _, want := range []string{"mine.md", "theirs.md"} {
		if !strings.Contains(files, want) {
			t.Errorf("remote tree missing %s: %s", want, files)
		}
	}
}

func TestGit_NoRemoteIsLocalOnly(t *testing.T) {
	requireGit(t)
	work := t.TempDir()
	run(t, work, "init", "-b", "main")
	if err := os.WriteFile(filepath.Join(work, "a.md"), []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	g := NewGit(work, "")
	has, err := g.HasChanges(context.Background())
	if err != nil || !has {
		t.Fatalf("HasChanges = %v, %v", has, err)
	}
	if err := g.CommitAll(context.Background(), "first"); err != nil {
		t.Fatalf("CommitAll: %v", err)
	}
	if err := g.Push(context.Background()); err != nil {
		t.Errorf("Push without remote should be a no-op: %v", err)
	}
	if has, _ := g.HasChanges(context.Background()); has {
		t.Error("tree should be clean after commit")
	}
}
