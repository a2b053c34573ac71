package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmo-security/jmo/internal/errs"
	"github.com/jmo-security/jmo/internal/findings"
)

// ScanRow is a stored scan record, as read back from the scans table.
type ScanRow struct {
	ID          string
	Timestamp   int64
	TimestampISO string

	CommitHash  string
	CommitShort string
	Branch      string
	Tag         string
	IsDirty     bool

	Profile    string
	Tools      []string
	Targets    []string
	TargetType string

	TotalFindings int
	CriticalCount int
	HighCount     int
	MediumCount   int
	LowCount      int
	InfoCount     int

	JmoVersion      string
	Hostname        string
	Username        string
	CIProvider      string
	CIBuildID       string
	DurationSeconds float64
}

// ListFilter narrows ListScans results; zero values mean "unfiltered".
type ListFilter struct {
	Branch     string
	Tag        string
	TargetType string
	Profile    string
	Limit      int
}

const scanColumns = `
	id, timestamp, timestamp_iso,
	commit_hash, commit_short, branch, tag, is_dirty,
	profile, tools, targets, target_type,
	total_findings, critical_count, high_count, medium_count, low_count, info_count,
	jmo_version, hostname, username, ci_provider, ci_build_id, duration_seconds
`

func scanRowFrom(scanner interface {
	Scan(dest ...interface{}) error
}) (ScanRow, error) {
	var r ScanRow
	var commitHash, commitShort, branch, tag, hostname, username, ciProvider, ciBuildID sql.NullString
	var duration sql.NullFloat64
	var toolsJSON, targetsJSON string
	var isDirty int

	err := scanner.Scan(
		&r.ID, &r.Timestamp, &r.TimestampISO,
		&commitHash, &commitShort, &branch, &tag, &isDirty,
		&r.Profile, &toolsJSON, &targetsJSON, &r.TargetType,
		&r.TotalFindings, &r.CriticalCount, &r.HighCount, &r.MediumCount, &r.LowCount, &r.InfoCount,
		&r.JmoVersion, &hostname, &username, &ciProvider, &ciBuildID, &duration,
	)
	if err != nil {
		return r, err
	}

	r.CommitHash = commitHash.String
	r.CommitShort = commitShort.String
	r.Branch = branch.String
	r.Tag = tag.String
	r.IsDirty = isDirty != 0
	r.Hostname = hostname.String
	r.Username = username.String
	r.CIProvider = ciProvider.String
	r.CIBuildID = ciBuildID.String
	r.DurationSeconds = duration.Float64

	_ = json.Unmarshal([]byte(toolsJSON), &r.Tools)
	_ = json.Unmarshal([]byte(targetsJSON), &r.Targets)

	return r, nil
}

// ListScans returns scans newest-first, honoring filter and Limit (0 = all).
func (s *Store) ListScans(ctx context.Context, filter ListFilter) ([]ScanRow, error) {
	query := "SELECT " + scanColumns + " FROM scans WHERE 1=1"
	var args []interface{}
	if filter.Branch != "" {
		query += " AND branch = ?"
		args = append(args, filter.Branch)
	}
	if filter.Tag != "" {
		query += " AND tag = ?"
		args = append(args, filter.Tag)
	}
	if filter.TargetType != "" {
		query += " AND target_type = ?"
		args = append(args, filter.TargetType)
	}
	if filter.Profile != "" {
		query += " AND profile = ?"
		args = append(args, filter.Profile)
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scans: %w", err)
	}
	defer rows.Close()

	var out []ScanRow
	for rows.Next() {
		r, err := scanRowFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetScan fetches a single scan by exact id.
func (s *Store) GetScan(ctx context.Context, id string) (ScanRow, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+scanColumns+" FROM scans WHERE id = ?", id)
	r, err := scanRowFrom(row)
	if err == sql.ErrNoRows {
		return ScanRow{}, errs.ScanNotFoundError(id)
	}
	if err != nil {
		return ScanRow{}, err
	}
	return r, nil
}

// ResolveScanRef resolves an exact id or a unique prefix to a full scan id.
// A prefix matching zero or more than one scan is a failure (spec §4.4).
func (s *Store) ResolveScanRef(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", errs.ScanNotFoundError(ref)
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM scans WHERE id = ? OR id LIKE ? LIMIT 2", ref, ref+"%")
	if err != nil {
		return "", fmt.Errorf("resolving scan ref: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	for _, id := range ids {
		if id == ref {
			return id, nil
		}
	}
	switch len(ids) {
	case 0:
		return "", errs.ScanNotFoundError(ref)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%s: %w", ref, errs.ErrAmbiguousScanRef)
	}
}

// GetFindings returns every finding row stored for scanID, decrypting or
// decoding raw_finding as configured. decryptKey may be nil.
func (s *Store) GetFindings(ctx context.Context, scanID string, decryptKey []byte) ([]findings.CommonFinding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, severity, tool, tool_version, rule_id,
			path, start_line, end_line, title, message, remediation,
			owasp_top10, cwe_top25, cis_controls, nist_csf, pci_dss, mitre_attack,
			cvss_score, confidence, likelihood, impact, raw_finding, raw_encrypted
		FROM findings WHERE scan_id = ?
		ORDER BY severity, path
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("querying findings: %w", err)
	}
	defer rows.Close()

	var out []findings.CommonFinding
	for rows.Next() {
		f, err := findingFromRow(rows, scanID, decryptKey)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func findingFromRow(rows *sql.Rows, scanID string, decryptKey []byte) (findings.CommonFinding, error) {
	var f findings.CommonFinding
	var toolVersion, title, remediation sql.NullString
	var owasp, cwe, cis, nist, pci, mitre sql.NullString
	var startLine, endLine sql.NullInt64
	var cvss sql.NullFloat64
	var confidence, likelihood, impact sql.NullString
	var rawFinding string
	var rawEncrypted int

	err := rows.Scan(
		&f.Fingerprint, &f.Severity, &f.Tool.Name, &toolVersion, &f.RuleID,
		&f.Path, &startLine, &endLine, &title, &f.Message, &remediation,
		&owasp, &cwe, &cis, &nist, &pci, &mitre,
		&cvss, &confidence, &likelihood, &impact, &rawFinding, &rawEncrypted,
	)
	if err != nil {
		return f, fmt.Errorf("scanning finding: %w", err)
	}

	f.SchemaVersion = findings.SchemaVersion
	f.ScanID = scanID
	f.Tool.Version = toolVersion.String
	f.Title = title.String
	f.Remediation = remediation.String
	f.StartLine = int(startLine.Int64)
	f.EndLine = int(endLine.Int64)
	f.Confidence = findings.RiskLevel(confidence.String)
	f.Likelihood = findings.RiskLevel(likelihood.String)
	f.Impact = findings.RiskLevel(impact.String)
	if cvss.Valid {
		v := cvss.Float64
		f.CVSSScore = &v
	}

	if owasp.Valid || cwe.Valid || cis.Valid || nist.Valid || pci.Valid || mitre.Valid {
		f.Compliance = &findings.Compliance{
			OwaspTop10_2021: nullableRaw(owasp),
			CweTop25_2024:   nullableRaw(cwe),
			CisControlsV8_1: nullableRaw(cis),
			NistCsf2_0:      nullableRaw(nist),
			PciDss4_0:       nullableRaw(pci),
			MitreAttack:     nullableRaw(mitre),
		}
	}

	raw := rawFinding
	if rawEncrypted != 0 {
		plain, err := decryptRaw(rawFinding, decryptKey)
		if err != nil {
			return f, fmt.Errorf("decrypting raw_finding for %s: %w", f.Fingerprint, err)
		}
		raw = plain
	}
	if raw != "" {
		f.Raw = json.RawMessage(raw)
	}

	return f, nil
}

func nullableRaw(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}

// FingerprintSet returns the set of fingerprints stored for scanID.
func (s *Store) FingerprintSet(ctx context.Context, scanID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT fingerprint FROM findings WHERE scan_id = ?", scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		set[fp] = true
	}
	return set, rows.Err()
}

// ScansForBranch returns scans on branch with timestamp in
// [now-days*86400, now], ascending by timestamp (spec §4.4 trend input).
func (s *Store) ScansForBranch(ctx context.Context, branch string, days int) ([]ScanRow, error) {
	now := time.Now().UTC().Unix()
	since := now - int64(days)*86400
	rows, err := s.db.QueryContext(ctx, "SELECT "+scanColumns+` FROM scans
		WHERE branch = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp ASC`, branch, since, now)
	if err != nil {
		return nil, fmt.Errorf("querying branch scans: %w", err)
	}
	defer rows.Close()

	var out []ScanRow
	for rows.Next() {
		r, err := scanRowFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TopRules returns the top-N (rule_id, severity) pairs by finding count
// across the given scan ids.
func (s *Store) TopRules(ctx context.Context, scanIDs []string, n int) ([]RuleCount, error) {
	if len(scanIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(scanIDs))
	args := make([]interface{}, len(scanIDs))
	for i, id := range scanIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT rule_id, severity, COUNT(*) as cnt
		FROM findings
		WHERE scan_id IN (%s)
		GROUP BY rule_id, severity
		ORDER BY cnt DESC
		LIMIT %d
	`, strings.Join(placeholders, ","), n)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying top rules: %w", err)
	}
	defer rows.Close()

	var out []RuleCount
	for rows.Next() {
		var rc RuleCount
		if err := rows.Scan(&rc.RuleID, &rc.Severity, &rc.Count); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// RuleCount is one (rule_id, severity) aggregate.
type RuleCount struct {
	RuleID   string
	Severity string
	Count    int
}

// DeleteScan cascades-removes a scan and its findings/metadata.
func (s *Store) DeleteScan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM scans WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting scan %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ScanNotFoundError(id)
	}
	return nil
}

// PruneFilter selects scans for bulk deletion.
type PruneFilter struct {
	OlderThan time.Time
	Branch    string
	Keep      int // when > 0, keep this many most-recent matching scans
}

// Prune deletes scans matching filter, returning the deleted ids. When
// filter.Keep > 0, the Keep most-recent matches are retained.
func (s *Store) Prune(ctx context.Context, filter PruneFilter) ([]string, error) {
	query := "SELECT id FROM scans WHERE 1=1"
	var args []interface{}
	if !filter.OlderThan.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, filter.OlderThan.Unix())
	}
	if filter.Branch != "" {
		query += " AND branch = ?"
		args = append(args, filter.Branch)
	}
	query += " ORDER BY timestamp DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting prune candidates: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if filter.Keep > 0 && filter.Keep < len(ids) {
		ids = ids[filter.Keep:]
	} else if filter.Keep > 0 {
		ids = nil
	}

	for _, id := range ids {
		if err := s.DeleteScan(ctx, id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// Stats summarizes store-wide counts, used by Verify.
type Stats struct {
	ScansCount    int
	FindingsCount int
}

func (s *Store) statsFor(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}) (Stats, error) {
	var st Stats
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM scans").Scan(&st.ScansCount); err != nil {
		return st, err
	}
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM findings").Scan(&st.FindingsCount); err != nil {
		return st, err
	}
	return st, nil
}

// Stats returns store-wide row counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	return s.statsFor(ctx, s.db)
}
