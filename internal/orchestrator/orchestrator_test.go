package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jmo-security/jmo/internal/catalog"
	"github.com/jmo-security/jmo/internal/layout"
)

// writeFakeTool writes an executable shell script named binName to dir and
// prepends dir to PATH for the duration of the test, so exec.LookPath finds
// it without depending on any real scanner binary being installed.
func writeFakeTool(t *testing.T, binName, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake-tool scripts are POSIX shell, not supported on windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, binName)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	oldPath := os.Getenv("PATH")
	os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath)
	t.Cleanup(func() { os.Setenv("PATH", oldPath) })
}

func testTarget(path string) catalog.Target {
	return catalog.Target{Kind: layout.TargetRepo, DisplayName: "app", Path: path}
}

func testTargetNamed(name, path string) catalog.Target {
	return catalog.Target{Kind: layout.TargetRepo, DisplayName: name, Path: path}
}

func TestOrchestrator_SingleToolSuccess(t *testing.T) {
	writeFakeTool(t, "faketool-ok", `echo '[]'; exit 0`)
	catalog.Register(catalog.Tool{
		Name:          "faketool-ok",
		TargetKinds:   []layout.TargetType{layout.TargetRepo},
		OkRCs:         map[int]bool{0: true},
		CaptureStdout: true,
		BuildArgv:     func(t catalog.Target, artifactPath string, extraFlags []string) []string { return nil },
	})

	resultsDir := t.TempDir()
	o := New(Options{ResultsDir: resultsDir, Tools: []string{"faketool-ok"}, Threads: 1, Timeout: 5 * time.Second}, nil)
	summary, err := o.Run(context.Background(), []catalog.Target{testTarget(t.TempDir())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", summary.ExitCode)
	}
	if len(summary.Jobs) != 1 || !summary.Jobs[0].Statuses["faketool-ok"] {
		t.Fatalf("expected one successful job, got %+v", summary.Jobs)
	}

	artifact := filepath.Join(resultsDir, "individual-repos", "app", "faketool-ok.json")
	if _, err := os.Stat(artifact); err != nil {
		t.Errorf("expected artifact at %s: %v", artifact, err)
	}
}

func TestOrchestrator_FindingsExitCodeStillSucceeds(t *testing.T) {
	// many scanners exit 1 to mean "findings exist" (spec §4.1 step 5).
	writeFakeTool(t, "faketool-findings", `echo '[{"x":1}]'; exit 1`)
	catalog.Register(catalog.Tool{
		Name:          "faketool-findings",
		TargetKinds:   []layout.TargetType{layout.TargetRepo},
		OkRCs:         map[int]bool{0: true, 1: true},
		CaptureStdout: true,
		BuildArgv:     func(t catalog.Target, artifactPath string, extraFlags []string) []string { return nil },
	})

	resultsDir := t.TempDir()
	o := New(Options{ResultsDir: resultsDir, Tools: []string{"faketool-findings"}, Threads: 1, Timeout: 5 * time.Second}, nil)
	summary, err := o.Run(context.Background(), []catalog.Target{testTarget(t.TempDir())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0 (exit 1 is in ok_rcs)", summary.ExitCode)
	}
}

func TestOrchestrator_UnexpectedExitCodeFails(t *testing.T) {
	writeFakeTool(t, "faketool-bad", `exit 2`)
	catalog.Register(catalog.Tool{
		Name:          "faketool-bad",
		TargetKinds:   []layout.TargetType{layout.TargetRepo},
		OkRCs:         map[int]bool{0: true},
		CaptureStdout: true,
		BuildArgv:     func(t catalog.Target, artifactPath string, extraFlags []string) []string { return nil },
	})

	resultsDir := t.TempDir()
	o := New(Options{ResultsDir: resultsDir, Tools: []string{"faketool-bad"}, Threads: 1, Timeout: 5 * time.Second}, nil)
	summary, err := o.Run(context.Background(), []catalog.Target{testTarget(t.TempDir())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", summary.ExitCode)
	}
	if summary.Jobs[0].Statuses["faketool-bad"] {
		t.Error("expected faketool-bad to be reported as failed")
	}
}

func TestOrchestrator_AllowMissingToolsWritesStub(t *testing.T) {
	resultsDir := t.TempDir()
	o := New(Options{ResultsDir: resultsDir, Tools: []string{"definitely-not-installed-xyz"}, Threads: 1, Timeout: 5 * time.Second, AllowMissingTools: true}, nil)
	catalog.Register(catalog.Tool{
		Name:          "definitely-not-installed-xyz",
		TargetKinds:   []layout.TargetType{layout.TargetRepo},
		OkRCs:         map[int]bool{0: true},
		CaptureStdout: true,
		BuildArgv:     func(t catalog.Target, artifactPath string, extraFlags []string) []string { return nil },
	})

	summary, err := o.Run(context.Background(), []catalog.Target{testTarget(t.TempDir())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0 when allow-missing-tools masks the skip", summary.ExitCode)
	}
	artifact := filepath.Join(resultsDir, "individual-repos", "app", "definitely-not-installed-xyz.json")
	if _, err := os.Stat(artifact); err != nil {
		t.Errorf("expected stub artifact at %s: %v", artifact, err)
	}
}

func TestOrchestrator_PathWritingToolMissingArtifactFails(t *testing.T) {
	// a tool with CaptureStdout:false is expected to write artifactPath
	// itself; exiting 0 without doing so must still fail the dual success
	// condition (ok_rc AND artifact-exists), not just the captured-stdout path.
	writeFakeTool(t, "faketool-pathwriter", `exit 0`)
	catalog.Register(catalog.Tool{
		Name:          "faketool-pathwriter",
		TargetKinds:   []layout.TargetType{layout.TargetRepo},
		OkRCs:         map[int]bool{0: true},
		CaptureStdout: false,
		BuildArgv:     func(t catalog.Target, artifactPath string, extraFlags []string) []string { return nil },
	})

	resultsDir := t.TempDir()
	o := New(Options{ResultsDir: resultsDir, Tools: []string{"faketool-pathwriter"}, Threads: 1, Timeout: 5 * time.Second}, nil)
	summary, err := o.Run(context.Background(), []catalog.Target{testTarget(t.TempDir())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Jobs[0].Statuses["faketool-pathwriter"] {
		t.Error("expected a path-writing tool that wrote no artifact to be reported as failed")
	}
}

func TestOrchestrator_PathWritingToolSucceedsWhenArtifactWritten(t *testing.T) {
	writeFakeTool(t, "faketool-pathwriter-ok", `echo '[]' > "$1"; exit 0`)
	catalog.Register(catalog.Tool{
		Name:          "faketool-pathwriter-ok",
		TargetKinds:   []layout.TargetType{layout.TargetRepo},
		OkRCs:         map[int]bool{0: true},
		CaptureStdout: false,
		BuildArgv: func(t catalog.Target, artifactPath string, extraFlags []string) []string {
			return []string{artifactPath}
		},
	})

	resultsDir := t.TempDir()
	o := New(Options{ResultsDir: resultsDir, Tools: []string{"faketool-pathwriter-ok"}, Threads: 1, Timeout: 5 * time.Second}, nil)
	summary, err := o.Run(context.Background(), []catalog.Target{testTarget(t.TempDir())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !summary.Jobs[0].Statuses["faketool-pathwriter-ok"] {
		t.Error("expected a path-writing tool that wrote its artifact to be reported as succeeded")
	}
}

func TestOrchestrator_PreCheckFailureIsSkip(t *testing.T) {
	resultsDir := t.TempDir()
	catalog.Register(catalog.Tool{
		Name:          "faketool-precheck",
		TargetKinds:   []layout.TargetType{layout.TargetRepo},
		OkRCs:         map[int]bool{0: true},
		CaptureStdout: true,
		PreCheck:      func(t catalog.Target) bool { return false },
		BuildArgv:     func(t catalog.Target, artifactPath string, extraFlags []string) []string { return nil },
	})

	o := New(Options{ResultsDir: resultsDir, Tools: []string{"faketool-precheck"}, Threads: 1, Timeout: 5 * time.Second}, nil)
	summary, err := o.Run(context.Background(), []catalog.Target{testTarget(t.TempDir())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Jobs[0].Statuses["faketool-precheck"] {
		t.Error("expected pre-check failure to be reported as a skip (not ok)")
	}
	if summary.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1 (skip without allow-missing-tools counts as failure)", summary.ExitCode)
	}
}

func TestOrchestrator_Timeout(t *testing.T) {
	writeFakeTool(t, "faketool-slow", `sleep 5; exit 0`)
	catalog.Register(catalog.Tool{
		Name:          "faketool-slow",
		TargetKinds:   []layout.TargetType{layout.TargetRepo},
		OkRCs:         map[int]bool{0: true},
		CaptureStdout: true,
		BuildArgv:     func(t catalog.Target, artifactPath string, extraFlags []string) []string { return nil },
	})

	resultsDir := t.TempDir()
	o := New(Options{ResultsDir: resultsDir, Tools: []string{"faketool-slow"}, Threads: 1, Timeout: 100 * time.Millisecond}, nil)
	summary, err := o.Run(context.Background(), []catalog.Target{testTarget(t.TempDir())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Jobs[0].Statuses["faketool-slow"] {
		t.Error("expected timeout to be reported as failure")
	}
}

func TestOrchestrator_RetriesExhausted(t *testing.T) {
	writeFakeTool(t, "faketool-retry", `exit 7`)
	catalog.Register(catalog.Tool{
		Name:          "faketool-retry",
		TargetKinds:   []layout.TargetType{layout.TargetRepo},
		OkRCs:         map[int]bool{0: true},
		CaptureStdout: true,
		BuildArgv:     func(t catalog.Target, artifactPath string, extraFlags []string) []string { return nil },
	})

	resultsDir := t.TempDir()
	o := New(Options{ResultsDir: resultsDir, Tools: []string{"faketool-retry"}, Threads: 1, Timeout: 2 * time.Second, Retries: 2}, nil)
	summary, err := o.Run(context.Background(), []catalog.Target{testTarget(t.TempDir())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Jobs[0].Attempts["faketool-retry"] != 3 {
		t.Errorf("Attempts = %d, want 3 (1 initial + 2 retries)", summary.Jobs[0].Attempts["faketool-retry"])
	}
}

func TestOrchestrator_Stop_NoNewJobsDispatched(t *testing.T) {
	resultsDir := t.TempDir()
	o := New(Options{ResultsDir: resultsDir, Tools: []string{}, Threads: 1, Timeout: time.Second}, nil)
	o.Stop()

	targets := []catalog.Target{testTarget(t.TempDir()), testTarget(t.TempDir())}
	summary, err := o.Run(context.Background(), targets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.Jobs) != 0 {
		t.Errorf("expected no jobs to run after Stop(), got %d", len(summary.Jobs))
	}
}

func TestOrchestrator_ProgressCallback(t *testing.T) {
	writeFakeTool(t, "faketool-progress", `echo '[]'; exit 0`)
	catalog.Register(catalog.Tool{
		Name:          "faketool-progress",
		TargetKinds:   []layout.TargetType{layout.TargetRepo},
		OkRCs:         map[int]bool{0: true},
		CaptureStdout: true,
		BuildArgv:     func(t catalog.Target, artifactPath string, extraFlags []string) []string { return nil },
	})

	var calls int
	resultsDir := t.TempDir()
	o := New(Options{ResultsDir: resultsDir, Tools: []string{"faketool-progress"}, Threads: 2, Timeout: 5 * time.Second}, func(completed, total int, name string, elapsed float64) {
		calls++
	})
	targets := []catalog.Target{testTargetNamed("app1", t.TempDir()), testTargetNamed("app2", t.TempDir())}
	if _, err := o.Run(context.Background(), targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 progress callbacks, got %d", calls)
	}
}

func TestNew_ClampsThreadsAndDefaults(t *testing.T) {
	o := New(Options{Threads: 0}, nil)
	if o.opts.Threads != 4 {
		t.Errorf("Threads default = %d, want 4", o.opts.Threads)
	}
	o2 := New(Options{Threads: 500}, nil)
	if o2.opts.Threads != 128 {
		t.Errorf("Threads clamp = %d, want 128", o2.opts.Threads)
	}
	if o.opts.Timeout != 300*time.Second {
		t.Errorf("default Timeout = %v, want 300s", o.opts.Timeout)
	}
}
