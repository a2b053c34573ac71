package findings

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/jmo-security/jmo/internal/layout"
	"github.com/jmo-security/jmo/internal/logging"
)

// PipelineOptions configures a normalization run.
type PipelineOptions struct {
	ResultsDir string
	ScanID     string
	Profile    string
	JmoVersion string
	Platform   string
	// Workers bounds the number of goroutines parsing tool artifacts
	// concurrently. Zero means runtime.NumCPU().
	Workers int
}

// artifactJob is one (target, tool) artifact file to parse.
type artifactJob struct {
	targetName string
	toolName   string
	path       string
}

// Run walks a results directory written by the orchestrator, parses every
// per-tool artifact through its adapter, applies suppressions and cross-tool
// clustering, and returns the assembled output document (spec §4.2).
func Run(opts PipelineOptions) (*Document, error) {
	log := logging.Default().With("scan_id", opts.ScanID)

	var jobs []artifactJob
	for _, kind := range []layout.TargetType{layout.TargetRepo, layout.TargetImage, layout.TargetIaC, layout.TargetURL, layout.TargetGitLab, layout.TargetK8s} {
		kindJobs, err := discoverArtifacts(opts.ResultsDir, kind)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, kindJobs...)
	}

	suppressions, err := LoadSuppressions(opts.ResultsDir)
	if err != nil {
		return nil, err
	}

	parsed := parseJobs(jobs, opts.Workers, log)

	retained, suppressed := suppressions.Filter(parsed)
	if len(suppressed) > 0 {
		log.Info("suppressed findings", "count", len(suppressed))
	}

	clustered := Cluster(retained)

	sort.SliceStable(clustered, func(i, j int) bool {
		if clustered[i].Severity.Rank() != clustered[j].Severity.Rank() {
			return clustered[i].Severity.Rank() > clustered[j].Severity.Rank()
		}
		return clustered[i].Fingerprint < clustered[j].Fingerprint
	})

	for i := range clustered {
		clustered[i].ScanID = opts.ScanID
	}

	targets := make(map[string]struct{})
	tools := make(map[string]struct{})
	for _, j := range jobs {
		targets[j.targetName] = struct{}{}
		tools[j.toolName] = struct{}{}
	}

	toolList := make([]string, 0, len(tools))
	for t := range tools {
		toolList = append(toolList, t)
	}
	sort.Strings(toolList)

	doc := &Document{
		Meta: Meta{
			OutputVersion: OutputVersion,
			JmoVersion:    opts.JmoVersion,
			SchemaVersion: SchemaVersion,
			ScanID:        opts.ScanID,
			Profile:       opts.Profile,
			Tools:         toolList,
			TargetCount:   len(targets),
			FindingCount:  len(clustered),
			Platform:      opts.Platform,
		},
		Findings: clustered,
	}
	return doc, nil
}

// discoverArtifacts walks one target-kind subdirectory collecting
// every *.json artifact file as a parse job.
func discoverArtifacts(resultsDir string, t layout.TargetType) ([]artifactJob, error) {
	if t == layout.TargetUnknown {
		return nil, nil
	}

	dir := filepath.Join(resultsDir, layout.SubdirFor(t))
	targetEntries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var jobs []artifactJob
	for _, te := range targetEntries {
		if !te.IsDir() {
			continue
		}
		targetDir := filepath.Join(dir, te.Name())
		toolEntries, err := os.ReadDir(targetDir)
		if err != nil {
			continue
		}
		for _, fe := range toolEntries {
			if fe.IsDir() || filepath.Ext(fe.Name()) != ".json" {
				continue
			}
			jobs = append(jobs, artifactJob{
				targetName: te.Name(),
				toolName:   strippedExt(fe.Name()),
				path:       filepath.Join(targetDir, fe.Name()),
			})
		}
	}
	return jobs, nil
}

func strippedExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

// parseJobs runs each artifact through its adapter with bounded concurrency.
func parseJobs(jobs []artifactJob, workers int, log *logging.Logger) []CommonFinding {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) && len(jobs) > 0 {
		workers = len(jobs)
	}
	if workers == 0 {
		return nil
	}

	jobCh := make(chan artifactJob)
	resultsCh := make(chan []CommonFinding, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobCh {
				data, err := os.ReadFile(job.path)
				if err != nil {
					log.WithTool(job.toolName).Warn("could not read artifact", "path", job.path, "error", err)
					continue
				}
				resultsCh <- Parse(job.toolName, job.targetName, data)
			}
		}(i)
	}

	go func() {
		for _, j := range jobs {
			jobCh <- j
		}
		close(jobCh)
	}()

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	var out []CommonFinding
	for batch := range resultsCh {
		out = append(out, batch...)
	}
	return out
}
