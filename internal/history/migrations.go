package history

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Migration is a single up/down schema step, discovered and ordered by its
// semver-comparable Version (spec §4.3 "Migrations").
type Migration struct {
	Version string
	Up      func(tx *sql.Tx) error
	Down    func(tx *sql.Tx) error
}

// registeredMigrations holds every migration known to this build, in
// declaration order. Real discovery (spec's "scans a migrations directory
// for files named v<major>_<minor>_<patch>.*") has no filesystem analogue in
// a single compiled binary; migrations are instead registered here as the
// equivalent of one file per version.
var registeredMigrations []Migration

// RegisterMigration adds a migration to the process-wide registry. Intended
// to be called from package-level init() in future schema-version files,
// mirroring the teacher's self-registration idiom used throughout
// pkg/scanner.
func RegisterMigration(m Migration) {
	registeredMigrations = append(registeredMigrations, m)
}

type semver struct {
	major, minor, patch int
}

func parseVersion(v string) (semver, error) {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return semver{}, fmt.Errorf("invalid version %q", v)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return semver{}, fmt.Errorf("invalid version %q: %w", v, err)
		}
		nums[i] = n
	}
	return semver{nums[0], nums[1], nums[2]}, nil
}

func (a semver) less(b semver) bool {
	if a.major != b.major {
		return a.major < b.major
	}
	if a.minor != b.minor {
		return a.minor < b.minor
	}
	return a.patch < b.patch
}

func (a semver) lessOrEqual(b semver) bool {
	return a == b || a.less(b)
}

// currentSchemaVersion reads the latest schema_version row ordered by
// (applied_at DESC, version DESC), defaulting to "0.0.0" if the table is
// empty.
func currentSchemaVersion(ctx context.Context, tx *sql.Tx) (string, error) {
	var version string
	err := tx.QueryRowContext(ctx, `
		SELECT version FROM schema_version
		ORDER BY applied_at DESC, version DESC
		LIMIT 1
	`).Scan(&version)
	if err == sql.ErrNoRows {
		return "0.0.0", nil
	}
	if err != nil {
		return "", err
	}
	return version, nil
}

// MigrationResult summarizes a run_migrations invocation (spec §4.3).
type MigrationResult struct {
	Applied           []string
	Errors            []MigrationError
	FinalVersion      string
	RollbackPerformed bool
}

// MigrationError pairs a failing migration's version with its error and,
// if migrate_down itself failed, that error too.
type MigrationError struct {
	Version       string
	Error         string
	RollbackError string
}

// runMigrations applies every registered migration strictly newer than the
// current schema_version, ascending by parsed semver, with no upper bound.
// It is invoked once from within Store.init, so it always runs inside the
// caller's transaction: every migration of the run shares that single
// *sql.Tx rather than getting a transaction of its own.
func runMigrations(ctx context.Context, tx *sql.Tx) error {
	result, err := applyMigrations(ctx, tx, registeredMigrations, "")
	if len(result.Errors) > 0 {
		return fmt.Errorf("%s: %s", ErrMigrationFailedMsg, result.Errors[0].Error)
	}
	return err
}

// ErrMigrationFailedMsg is the prefix used when wrapping a migration failure.
const ErrMigrationFailedMsg = "migration failed"

func applyMigrations(ctx context.Context, tx *sql.Tx, migrations []Migration, target string) (MigrationResult, error) {
	result := MigrationResult{}

	current, err := currentSchemaVersion(ctx, tx)
	if err != nil {
		return result, fmt.Errorf("reading current schema version: %w", err)
	}
	currentSV, err := parseVersion(current)
	if err != nil {
		return result, err
	}

	var targetSV *semver
	if target != "" {
		sv, err := parseVersion(target)
		if err != nil {
			return result, err
		}
		targetSV = &sv
	}

	pending := make([]Migration, 0, len(migrations))
	for _, m := range migrations {
		sv, err := parseVersion(m.Version)
		if err != nil {
			return result, err
		}
		if !currentSV.less(sv) {
			continue
		}
		if targetSV != nil && !sv.lessOrEqual(*targetSV) {
			continue
		}
		pending = append(pending, m)
	}
	sort.Slice(pending, func(i, j int) bool {
		a, _ := parseVersion(pending[i].Version)
		b, _ := parseVersion(pending[j].Version)
		return a.less(b)
	})

	result.FinalVersion = current
	for _, m := range pending {
		if err := m.Up(tx); err != nil {
			mErr := MigrationError{Version: m.Version, Error: err.Error()}
			if m.Down != nil {
				if derr := m.Down(tx); derr != nil {
					mErr.RollbackError = derr.Error()
				} else {
					result.RollbackPerformed = true
				}
			}
			result.Errors = append(result.Errors, mErr)
			break
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version, applied_at, applied_at_iso) VALUES (?, ?, ?)",
			m.Version, now.Unix(), now.Format(time.RFC3339)); err != nil {
			return result, fmt.Errorf("recording migration %s: %w", m.Version, err)
		}
		result.Applied = append(result.Applied, m.Version)
		result.FinalVersion = m.Version
	}

	return result, nil
}

// RunMigrations applies pending migrations up to target (empty = unbounded)
// in their own transaction, for the `jmo history migrate` CLI surface. Unlike
// the init-time call, this is a standalone entry point callers invoke
// explicitly against an already-open Store.
func (s *Store) RunMigrations(ctx context.Context, target string) (MigrationResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := applyMigrations(ctx, tx, registeredMigrations, target)
	if err != nil {
		return result, err
	}
	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("committing migrations: %w", err)
	}
	return result, nil
}
