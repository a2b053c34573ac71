// Package orchestrator runs every applicable (target, tool) pair across a
// bounded worker pool, one job per target, tools within a job executing in
// declared order, and writes the filesystem layout the normalization
// pipeline reads back.
package orchestrator

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmo-security/jmo/internal/catalog"
	"github.com/jmo-security/jmo/internal/layout"
	"github.com/jmo-security/jmo/internal/logging"
)

// Options configures one orchestrator run. Fields mirror the resolved
// configuration surface from spec §4.1.
type Options struct {
	ResultsDir        string
	Tools             []string
	Threads           int
	Timeout           time.Duration
	Retries           int
	PerTool           map[string]PerToolOverride
	AllowMissingTools bool
}

// PerToolOverride is the per-tool flags/timeout override from configuration.
type PerToolOverride struct {
	Flags   []string
	Timeout time.Duration
}

// JobResult is the per-target outcome the orchestrator returns.
type JobResult struct {
	TargetName string
	Statuses   map[string]bool
	Attempts   map[string]int
	ElapsedSec float64
}

// RunSummary aggregates every job's result plus the overall exit code.
type RunSummary struct {
	Jobs     []JobResult
	ExitCode int
}

// ProgressFunc is invoked after each job completes.
type ProgressFunc func(completed, total int, targetName string, elapsedSec float64)

// Orchestrator executes a resolved scan plan against a tool catalog.
type Orchestrator struct {
	opts     Options
	log      *logging.Logger
	onProgress ProgressFunc
	stopped  int32
}

// New constructs an Orchestrator. Threads <= 0 defaults to 4 and is capped
// at 128; a Timeout <= 0 defaults to 300s.
func New(opts Options, onProgress ProgressFunc) *Orchestrator {
	if opts.Threads <= 0 {
		opts.Threads = 4
	}
	if opts.Threads > 128 {
		opts.Threads = 128
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	return &Orchestrator{opts: opts, log: logging.Default().With("component", "orchestrator"), onProgress: onProgress}
}

// Stop sets the cooperative stop flag: in-flight jobs finish, no new jobs
// start. Safe to call from a signal handler.
func (o *Orchestrator) Stop() {
	atomic.StoreInt32(&o.stopped, 1)
}

func (o *Orchestrator) stopRequested() bool {
	return atomic.LoadInt32(&o.stopped) == 1
}

// Run executes every target against every applicable registered tool.
func (o *Orchestrator) Run(ctx context.Context, targets []catalog.Target) (*RunSummary, error) {
	jobCh := make(chan catalog.Target)
	resultCh := make(chan JobResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < o.opts.Threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobCh {
				if o.stopRequested() {
					continue
				}
				resultCh <- o.runJob(ctx, t)
			}
		}()
	}

	go func() {
		for _, t := range targets {
			if o.stopRequested() {
				break
			}
			jobCh <- t
		}
		close(jobCh)
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var (
		jobs      []JobResult
		completed int
		anyFailed bool
	)
	for r := range resultCh {
		jobs = append(jobs, r)
		completed++
		if o.onProgress != nil {
			o.onProgress(completed, len(targets), r.TargetName, r.ElapsedSec)
		}
		for _, ok := range r.Statuses {
			if !ok && !o.opts.AllowMissingTools {
				anyFailed = true
			}
		}
	}

	exitCode := 0
	if anyFailed {
		exitCode = 1
	}
	return &RunSummary{Jobs: jobs, ExitCode: exitCode}, nil
}

// runJob executes every tool applicable to one target, in declared order,
// and writes each tool's artifact under the target's output directory.
func (o *Orchestrator) runJob(ctx context.Context, t catalog.Target) JobResult {
	start := time.Now()
	result := JobResult{
		TargetName: t.DisplayName,
		Statuses:   make(map[string]bool),
		Attempts:   make(map[string]int),
	}

	outDir := layout.TargetDir(o.opts.ResultsDir, t.Kind, t.DisplayName)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		o.log.WithTarget(t.DisplayName).Error("could not create output dir", "error", err)
		result.ElapsedSec = -time.Since(start).Seconds()
		return result
	}

	for _, toolName := range o.opts.Tools {
		if o.stopRequested() {
			break
		}

		tool, ok := catalog.Get(toolName)
		if !ok || !tool.AppliesTo(t.Kind) {
			continue
		}

		ok, attempts := o.runTool(ctx, tool, t, outDir)
		result.Statuses[toolName] = ok
		result.Attempts[toolName] = attempts
	}

	elapsed := time.Since(start).Seconds()
	anyFail := false
	for _, ok := range result.Statuses {
		if !ok {
			anyFail = true
		}
	}
	if anyFail && !o.opts.AllowMissingTools {
		elapsed = -elapsed
	}
	result.ElapsedSec = elapsed
	return result
}

// runTool applies the per-tool runner contract: pre-check, binary-exists
// check, build argv, execute with timeout, interpret exit code, retry with
// backoff min(1s*attempt, 3s).
func (o *Orchestrator) runTool(ctx context.Context, tool catalog.Tool, t catalog.Target, outDir string) (bool, int) {
	log := o.log.WithTarget(t.DisplayName).WithTool(tool.Name)
	artifactPath := filepath.Join(outDir, tool.Name+".json")

	if tool.PreCheck != nil && !tool.PreCheck(t) {
		log.Debug("pre-check failed, skipping")
		return o.writeStubIfAllowed(artifactPath, log)
	}

	if _, err := exec.LookPath(tool.Name); err != nil {
		if tool.TwoPhase && len(tool.ContainerFallback) > 0 {
			fallbackTimeout := o.opts.Timeout
			if ov := o.opts.PerTool[tool.Name]; ov.Timeout > 0 {
				fallbackTimeout = ov.Timeout
			}
			if o.executeContainerFallback(ctx, tool, t, artifactPath, fallbackTimeout, log) {
				return true, 1
			}
		}
		log.Debug("tool binary not found, skipping")
		return o.writeStubIfAllowed(artifactPath, log)
	}

	override := o.opts.PerTool[tool.Name]
	timeout := o.opts.Timeout
	if override.Timeout > 0 {
		timeout = override.Timeout
	}

	retries := o.opts.Retries
	attempts := 0
	var lastOK bool

	for attempt := 0; attempt <= retries; attempt++ {
		attempts++
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			if backoff > 3*time.Second {
				backoff = 3 * time.Second
			}
			time.Sleep(backoff)
		}

		ok := o.executeTool(ctx, tool, t, artifactPath, override.Flags, timeout, log)
		lastOK = ok
		if ok {
			break
		}
	}

	if !lastOK && tool.TwoPhase && len(tool.ContainerFallback) > 0 {
		attempts++
		lastOK = o.executeContainerFallback(ctx, tool, t, artifactPath, timeout, log)
	}

	return lastOK, attempts
}

func (o *Orchestrator) writeStubIfAllowed(artifactPath string, log *logging.Logger) (bool, int) {
	if !o.opts.AllowMissingTools {
		return false, 0
	}
	if err := os.WriteFile(artifactPath, []byte("[]"), 0o644); err != nil {
		log.Warn("could not write stub artifact", "error", err)
		return false, 1
	}
	return true, 1
}

// executeTool runs one attempt of a tool invocation. Two-phase tools (spec
// §4.1) run executeTwoPhase instead, which owns a scratch datastore for the
// lifetime of the attempt.
func (o *Orchestrator) executeTool(ctx context.Context, tool catalog.Tool, t catalog.Target, artifactPath string, extraFlags []string, timeout time.Duration, log *logging.Logger) bool {
	if tool.TwoPhase && tool.PhaseArgv != nil {
		return o.executeTwoPhase(ctx, tool, t, artifactPath, extraFlags, timeout, log)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := tool.BuildArgv(t, artifactPath, extraFlags)
	// A single-invocation tool is always the producing invocation, whether
	// it writes its artifact via captured stdout or by writing the path
	// itself (CaptureStdout: false).
	ok, _ := o.runOnce(runCtx, tool.Name, argv, artifactPath, tool.CaptureStdout, true, tool.OkRCs, log)
	return ok
}

// executeTwoPhase runs a TwoPhase tool's declared phases in order against a
// scratch datastore created in a temp directory. The datastore is owned by
// this attempt and MUST be removed on every exit path (spec §5
// shared-resource policy), including a panic unwinding through defer.
func (o *Orchestrator) executeTwoPhase(ctx context.Context, tool catalog.Tool, t catalog.Target, artifactPath string, extraFlags []string, timeout time.Duration, log *logging.Logger) bool {
	datastore, err := os.MkdirTemp("", "jmo-"+tool.Name+"-datastore-")
	if err != nil {
		log.Warn("could not create scratch datastore", "error", err)
		return false
	}
	defer os.RemoveAll(datastore)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for i, phase := range tool.Phases {
		argv := tool.PhaseArgv(phase, t, datastore, artifactPath, extraFlags)
		if argv == nil {
			continue
		}

		// Only the last phase is the producing invocation; intermediate
		// phases (e.g. trufflehog's "scan" step) populate the datastore but
		// never the artifact path, so their artifact is never checked.
		isLastPhase := i == len(tool.Phases)-1
		ok, _ := o.runOnce(runCtx, tool.Name, argv, artifactPath, isLastPhase && tool.CaptureStdout, isLastPhase, tool.OkRCs, log)
		if !ok {
			return false
		}
	}
	return true
}

// runOnce executes a single subprocess invocation, writes its captured
// stdout to artifactPath when requested, and applies the dual success
// condition (spec §4.1 step 6 / §9 open question): exit code in ok_rcs AND
// the artifact file exists on disk afterward. checkArtifact marks whether
// this invocation is the one expected to produce artifactPath; it is
// independent of captureStdout, since a tool can write its artifact
// directly (CaptureStdout: false) rather than through captured stdout.
func (o *Orchestrator) runOnce(ctx context.Context, name string, argv []string, artifactPath string, captureStdout, checkArtifact bool, okRCs map[int]bool, log *logging.Logger) (bool, int) {
	cmd := exec.CommandContext(ctx, name, argv...)
	cmd.Env = append(os.Environ(), "NO_COLOR=1", "TERM=dumb")

	var stdout, stderr bytes.Buffer
	if captureStdout {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := exitCodeOf(ctx, err)

	if captureStdout && exitCode != 124 {
		if werr := os.WriteFile(artifactPath, stdout.Bytes(), 0o644); werr != nil {
			log.Warn("could not write artifact", "error", werr)
			return false, exitCode
		}
	}

	if stderr.Len() > 0 {
		log.Debug("tool stderr", "stderr", stderr.String())
	}

	if !okRCs[exitCode] {
		return false, exitCode
	}

	// The dual success condition (exit code AND artifact-on-disk) only
	// applies to the invocation that is actually supposed to produce the
	// artifact; an intermediate phase of a two-phase tool (e.g. trufflehog's
	// "scan" step, which only populates the datastore) has nothing to check.
	if checkArtifact {
		if _, err := os.Stat(artifactPath); err != nil {
			return false, exitCode
		}
	}
	return true, exitCode
}

// executeContainerFallback runs the container-runtime equivalent invocation
// when the local binary is unavailable or both phases failed.
func (o *Orchestrator) executeContainerFallback(ctx context.Context, tool catalog.Tool, t catalog.Target, artifactPath string, timeout time.Duration, log *logging.Logger) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		log.Debug("no container runtime available for fallback")
		return false
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := catalog.FormatContainerFallback(tool.ContainerFallback, t.Path)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := exitCodeOf(runCtx, err)
	if !tool.OkRCs[exitCode] {
		log.Warn("container fallback failed", "exit_code", exitCode, "stderr", stderr.String())
		return false
	}

	if err := os.WriteFile(artifactPath, stdout.Bytes(), 0o644); err != nil {
		log.Warn("could not write fallback artifact", "error", err)
		return false
	}
	return true
}

// exitCodeOf extracts a subprocess exit code, returning the synthetic 124
// on timeout per the runner contract.
func exitCodeOf(ctx context.Context, err error) int {
	if ctx.Err() == context.DeadlineExceeded {
		return 124
	}
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
