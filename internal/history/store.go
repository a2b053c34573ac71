// Package history implements the embedded SQLite historical store: schema
// management, scan storage, integrity verification, recovery, and the query
// helpers the diff and trend engines build on.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/google/uuid"

	"github.com/jmo-security/jmo/internal/findings"
	"github.com/jmo-security/jmo/internal/gitctx"
	"github.com/jmo-security/jmo/internal/layout"
)

// CurrentSchemaVersion is the schema version recorded on initialization.
const CurrentSchemaVersion = "1.0.0"

// DefaultDBPath is the default database location relative to a working tree.
const DefaultDBPath = ".jmo/history.db"

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// Store wraps a SQLite connection with the jmo historical-scan schema.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates (if needed) and opens the database at path, applying the
// connection policy and schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	for _, pragma := range []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, path: path}

	if err := store.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	if err := enforceFilePermissions(path); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) init(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning schema init transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.initSchema(tx); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version WHERE version = ?", CurrentSchemaVersion).Scan(&count); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}
	if count == 0 {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version, applied_at, applied_at_iso) VALUES (?, ?, ?)",
			CurrentSchemaVersion, now.Unix(), now.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("recording schema version: %w", err)
		}
	}

	if err := runMigrations(ctx, tx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return tx.Commit()
}

// enforceFilePermissions ensures the database file is owner-read/write only.
func enforceFilePermissions(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0o600 {
		return os.Chmod(path, 0o600)
	}
	return nil
}

// StoreScanInput is the input to StoreScan.
type StoreScanInput struct {
	ResultsDir        string
	Profile           string
	Document          *findings.Document
	JmoVersion        string
	DurationSeconds   float64
	GitContext        gitctx.Context
	Metadata          map[string]string
	EncryptionKey     []byte // non-nil enables AES-256-GCM encryption of raw_finding
	OmitRawFindings   bool

	// CollectMetadata gates hostname/username/ci_provider/ci_build_id
	// collection (spec §3.3: "only when metadata collection is opted in").
	// When false (the default), those columns are stored NULL regardless
	// of what the host process or environment actually reports.
	CollectMetadata bool
}

var allowedProfiles = map[string]bool{"fast": true, "balanced": true, "deep": true}

// StoreScan persists a completed scan and its findings, returning the
// generated scan UUID.
func (s *Store) StoreScan(ctx context.Context, in StoreScanInput) (string, error) {
	if in.ResultsDir == "" {
		return "", fmt.Errorf("results directory required")
	}
	if in.Document == nil {
		return "", fmt.Errorf("findings document required")
	}
	if !allowedProfiles[in.Profile] {
		return "", fmt.Errorf("invalid profile: %s", in.Profile)
	}

	scanID := uuid.NewString()
	now := time.Now().UTC()

	targetType := layout.DetectTargetType(in.ResultsDir)
	targets, err := layout.CollectTargets(in.ResultsDir)
	if err != nil {
		return "", fmt.Errorf("collecting targets: %w", err)
	}

	toolsJSON, err := json.Marshal(in.Document.Meta.Tools)
	if err != nil {
		return "", err
	}
	targetsJSON, err := json.Marshal(targets)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var hostnameVal, usernameVal, ciProviderVal, ciBuildIDVal interface{}
	if in.CollectMetadata {
		hostnameVal, usernameVal, ciProviderVal, ciBuildIDVal = hostname(), username(), ciProvider(), ciBuildID()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans (
			id, timestamp, timestamp_iso,
			commit_hash, commit_short, branch, tag, is_dirty,
			profile, tools, targets, target_type,
			total_findings, critical_count, high_count, medium_count, low_count, info_count,
			jmo_version, hostname, username, ci_provider, ci_build_id,
			duration_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, 0, 0, ?, ?, ?, ?, ?, ?)
	`,
		scanID, now.Unix(), now.Format(time.RFC3339),
		nullableString(in.GitContext.CommitHash), nullableString(in.GitContext.CommitShort),
		nullableString(in.GitContext.Branch), nullableString(in.GitContext.Tag), boolToInt(in.GitContext.IsDirty),
		in.Profile, string(toolsJSON), string(targetsJSON), string(targetType),
		in.JmoVersion, hostnameVal, usernameVal, ciProviderVal, ciBuildIDVal,
		in.DurationSeconds,
	)
	if err != nil {
		return "", fmt.Errorf("inserting scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (
			scan_id, fingerprint, severity, tool, tool_version, rule_id,
			path, start_line, end_line, title, message, remediation,
			owasp_top10, cwe_top25, cis_controls, nist_csf, pci_dss, mitre_attack,
			cvss_score, confidence, likelihood, impact, raw_finding, raw_encrypted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("preparing finding insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range in.Document.Findings {
		rawFinding, encrypted, rerr := prepareRawFinding(f, in.EncryptionKey, in.OmitRawFindings)
		if rerr != nil {
			return "", fmt.Errorf("preparing raw finding for %s: %w", f.Fingerprint, rerr)
		}

		_, err = stmt.ExecContext(ctx,
			scanID, f.Fingerprint, string(f.Severity), f.Tool.Name, nullableString(f.Tool.Version), f.RuleID,
			f.Path, nullableInt(f.StartLine), nullableInt(f.EndLine), nullableString(f.Title), f.Message, nullableString(f.Remediation),
			complianceField(f.Compliance, func(c *findings.Compliance) []byte { return c.OwaspTop10_2021 }),
			complianceField(f.Compliance, func(c *findings.Compliance) []byte { return c.CweTop25_2024 }),
			complianceField(f.Compliance, func(c *findings.Compliance) []byte { return c.CisControlsV8_1 }),
			complianceField(f.Compliance, func(c *findings.Compliance) []byte { return c.NistCsf2_0 }),
			complianceField(f.Compliance, func(c *findings.Compliance) []byte { return c.PciDss4_0 }),
			complianceField(f.Compliance, func(c *findings.Compliance) []byte { return c.MitreAttack }),
			nullableFloat(f.CVSSScore), nullableString(string(f.Confidence)), nullableString(string(f.Likelihood)), nullableString(string(f.Impact)),
			rawFinding, boolToInt(encrypted),
		)
		if err != nil {
			return "", fmt.Errorf("inserting finding %s: %w", f.Fingerprint, err)
		}
	}

	for k, v := range in.Metadata {
		if _, err := tx.ExecContext(ctx, "INSERT INTO scan_metadata (scan_id, key, value) VALUES (?, ?, ?)", scanID, k, v); err != nil {
			return "", fmt.Errorf("inserting scan metadata %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing scan: %w", err)
	}

	if err := enforceFilePermissions(s.path); err != nil {
		return scanID, fmt.Errorf("scan stored but permission enforcement failed: %w", err)
	}

	return scanID, nil
}

func complianceField(c *findings.Compliance, get func(*findings.Compliance) []byte) interface{} {
	if c == nil {
		return nil
	}
	v := get(c)
	if len(v) == 0 {
		return nil
	}
	return string(v)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func hostname() interface{} {
	h, err := os.Hostname()
	if err != nil {
		return nil
	}
	return h
}

func username() interface{} {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u := os.Getenv("USERNAME"); u != "" {
		return u
	}
	return nil
}

func ciProvider() interface{} {
	switch {
	case os.Getenv("GITHUB_ACTIONS") != "":
		return "github"
	case os.Getenv("GITLAB_CI") != "":
		return "gitlab"
	case os.Getenv("JENKINS_URL") != "":
		return "jenkins"
	default:
		return nil
	}
}

func ciBuildID() interface{} {
	switch {
	case os.Getenv("GITHUB_ACTIONS") != "":
		return nullableString(os.Getenv("GITHUB_RUN_ID"))
	case os.Getenv("GITLAB_CI") != "":
		return nullableString(os.Getenv("CI_PIPELINE_ID"))
	case os.Getenv("JENKINS_URL") != "":
		return nullableString(os.Getenv("BUILD_NUMBER"))
	default:
		return nil
	}
}
