package trend

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Ada Lovelace", "GIT_AUTHOR_EMAIL=ada@example.com",
		"GIT_COMMITTER_NAME=Ada Lovelace", "GIT_COMMITTER_EMAIL=ada@example.com",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

func TestAttributeDevelopers_BlamesCommittedLine(t *testing.T) {
	requireGit(t)

	repo := t.TempDir()
	runGit(t, repo, "init", "-q")
	runGit(t, repo, "config", "user.name", "Ada Lovelace")
	runGit(t, repo, "config", "user.email", "ada@example.com")

	filePath := filepath.Join(repo, "a.go")
	if err := os.WriteFile(filePath, []byte("package main\n\nfunc main() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, repo, "add", "a.go")
	runGit(t, repo, "commit", "-q", "-m", "initial")

	report := AttributeDevelopers(context.Background(), repo, []FindingLocation{
		{Path: "a.go", StartLine: 3},
	}, map[string]string{"Ada Lovelace": "platform"})

	if len(report.ByAuthor) != 1 || report.ByAuthor[0].Author != "Ada Lovelace" || report.ByAuthor[0].Count != 1 {
		t.Fatalf("unexpected ByAuthor: %+v", report.ByAuthor)
	}
	if len(report.ByTeam) != 1 || report.ByTeam[0].Team != "platform" {
		t.Fatalf("unexpected ByTeam: %+v", report.ByTeam)
	}
}

func TestAttributeDevelopers_UnknownFileIsExcluded(t *testing.T) {
	requireGit(t)

	repo := t.TempDir()
	runGit(t, repo, "init", "-q")

	report := AttributeDevelopers(context.Background(), repo, []FindingLocation{
		{Path: "does-not-exist.go", StartLine: 1},
	}, nil)

	if len(report.ByAuthor) != 0 {
		t.Errorf("expected no attributions for a nonexistent file, got %+v", report.ByAuthor)
	}
}
