package layout

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"my-repo":                    "my-repo",
		"registry.io/org/img:tag":    "registry.io_org_img_tag",
		"https://example.com/a?b=c":  "https___example.com_a_b_c",
		"already_fine.v1":            "already_fine.v1",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestArtifactPath_And_TargetDir(t *testing.T) {
	dir := TargetDir("/results", TargetImage, "registry.io/img:tag")
	want := filepath.Join("/results", "individual-images", "registry.io_img_tag")
	if dir != want {
		t.Errorf("TargetDir = %q, want %q", dir, want)
	}

	art := ArtifactPath("/results", TargetRepo, "myrepo", "semgrep")
	want = filepath.Join("/results", "individual-repos", "myrepo", "semgrep.json")
	if art != want {
		t.Errorf("ArtifactPath = %q, want %q", art, want)
	}
}

func TestDetectTargetType_PriorityOrder(t *testing.T) {
	root := t.TempDir()
	if got := DetectTargetType(root); got != TargetUnknown {
		t.Fatalf("empty dir should detect Unknown, got %q", got)
	}

	if err := os.MkdirAll(filepath.Join(root, "individual-iac"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := DetectTargetType(root); got != TargetIaC {
		t.Fatalf("detected %q, want iac", got)
	}

	if err := os.MkdirAll(filepath.Join(root, "individual-repos"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := DetectTargetType(root); got != TargetRepo {
		t.Fatalf("repo should take priority over iac, got %q", got)
	}
}

func TestCollectTargets(t *testing.T) {
	root := t.TempDir()
	repoDir := filepath.Join(root, "individual-repos")
	for _, name := range []string{"alpha", "beta"} {
		if err := os.MkdirAll(filepath.Join(repoDir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	// a stray file alongside the target directories must be excluded
	if err := os.WriteFile(filepath.Join(repoDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	names, err := CollectTargets(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 targets, got %v", names)
	}
}
