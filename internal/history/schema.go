package history

const createSchemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version TEXT PRIMARY KEY,
	applied_at INTEGER NOT NULL,
	applied_at_iso TEXT NOT NULL
);
`

const createScansTable = `
CREATE TABLE IF NOT EXISTS scans (
	id TEXT PRIMARY KEY,

	timestamp INTEGER NOT NULL,
	timestamp_iso TEXT NOT NULL,

	commit_hash TEXT,
	commit_short TEXT,
	branch TEXT,
	tag TEXT,
	is_dirty INTEGER DEFAULT 0,

	profile TEXT NOT NULL,
	tools TEXT NOT NULL,
	targets TEXT NOT NULL,
	target_type TEXT NOT NULL,

	total_findings INTEGER NOT NULL DEFAULT 0,
	critical_count INTEGER NOT NULL DEFAULT 0,
	high_count INTEGER NOT NULL DEFAULT 0,
	medium_count INTEGER NOT NULL DEFAULT 0,
	low_count INTEGER NOT NULL DEFAULT 0,
	info_count INTEGER NOT NULL DEFAULT 0,

	jmo_version TEXT NOT NULL,
	hostname TEXT,
	username TEXT,
	ci_provider TEXT,
	ci_build_id TEXT,

	duration_seconds REAL,

	CHECK (profile IN ('fast', 'balanced', 'deep')),
	CHECK (target_type IN ('repo', 'image', 'iac', 'url', 'gitlab', 'k8s', 'unknown'))
);
`

const createFindingsTable = `
CREATE TABLE IF NOT EXISTS findings (
	scan_id TEXT NOT NULL,
	fingerprint TEXT NOT NULL,

	severity TEXT NOT NULL,
	tool TEXT NOT NULL,
	tool_version TEXT,
	rule_id TEXT NOT NULL,

	path TEXT NOT NULL,
	start_line INTEGER,
	end_line INTEGER,

	title TEXT,
	message TEXT NOT NULL,
	remediation TEXT,

	owasp_top10 TEXT,
	cwe_top25 TEXT,
	cis_controls TEXT,
	nist_csf TEXT,
	pci_dss TEXT,
	mitre_attack TEXT,

	cvss_score REAL,
	confidence TEXT,
	likelihood TEXT,
	impact TEXT,

	raw_finding TEXT NOT NULL,
	raw_encrypted INTEGER NOT NULL DEFAULT 0,

	PRIMARY KEY (scan_id, fingerprint),
	FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE,
	CHECK (severity IN ('CRITICAL', 'HIGH', 'MEDIUM', 'LOW', 'INFO'))
);
`

const createScanMetadataTable = `
CREATE TABLE IF NOT EXISTS scan_metadata (
	scan_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,

	PRIMARY KEY (scan_id, key),
	FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
);
`

const createAttestationsTable = `
CREATE TABLE IF NOT EXISTS attestations (
	scan_id TEXT PRIMARY KEY,
	attestation_json TEXT NOT NULL,
	signature_path TEXT,
	certificate_path TEXT,
	rekor_entry TEXT,
	rekor_published INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	slsa_level INTEGER,

	FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
);
`

var createIndices = []string{
	`CREATE INDEX IF NOT EXISTS idx_scans_timestamp ON scans(timestamp DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_scans_branch ON scans(branch) WHERE branch IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_scans_tag ON scans(tag) WHERE tag IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_scans_commit ON scans(commit_hash) WHERE commit_hash IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_scans_target_type ON scans(target_type);`,
	`CREATE INDEX IF NOT EXISTS idx_scans_profile ON scans(profile);`,
	`CREATE INDEX IF NOT EXISTS idx_findings_scan_id ON findings(scan_id);`,
	`CREATE INDEX IF NOT EXISTS idx_findings_fingerprint ON findings(fingerprint);`,
	`CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings(severity);`,
	`CREATE INDEX IF NOT EXISTS idx_findings_tool ON findings(tool);`,
	`CREATE INDEX IF NOT EXISTS idx_findings_rule_id ON findings(rule_id);`,
	`CREATE INDEX IF NOT EXISTS idx_findings_path ON findings(path);`,
	`CREATE INDEX IF NOT EXISTS idx_findings_cvss ON findings(cvss_score DESC) WHERE cvss_score IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_metadata_scan_id ON scan_metadata(scan_id);`,
}

var createTriggers = []string{
	`
	CREATE TRIGGER IF NOT EXISTS update_scan_counts_on_insert
	AFTER INSERT ON findings
	BEGIN
		UPDATE scans
		SET
			total_findings = total_findings + 1,
			critical_count = critical_count + CASE WHEN NEW.severity = 'CRITICAL' THEN 1 ELSE 0 END,
			high_count = high_count + CASE WHEN NEW.severity = 'HIGH' THEN 1 ELSE 0 END,
			medium_count = medium_count + CASE WHEN NEW.severity = 'MEDIUM' THEN 1 ELSE 0 END,
			low_count = low_count + CASE WHEN NEW.severity = 'LOW' THEN 1 ELSE 0 END,
			info_count = info_count + CASE WHEN NEW.severity = 'INFO' THEN 1 ELSE 0 END
		WHERE id = NEW.scan_id;
	END;
	`,
	`
	CREATE TRIGGER IF NOT EXISTS update_scan_counts_on_delete
	AFTER DELETE ON findings
	BEGIN
		UPDATE scans
		SET
			total_findings = total_findings - 1,
			critical_count = critical_count - CASE WHEN OLD.severity = 'CRITICAL' THEN 1 ELSE 0 END,
			high_count = high_count - CASE WHEN OLD.severity = 'HIGH' THEN 1 ELSE 0 END,
			medium_count = medium_count - CASE WHEN OLD.severity = 'MEDIUM' THEN 1 ELSE 0 END,
			low_count = low_count - CASE WHEN OLD.severity = 'LOW' THEN 1 ELSE 0 END,
			info_count = info_count - CASE WHEN OLD.severity = 'INFO' THEN 1 ELSE 0 END
		WHERE id = OLD.scan_id;
	END;
	`,
}

var createViews = []string{
	`
	CREATE VIEW IF NOT EXISTS latest_scan_by_branch AS
	SELECT
		s.branch,
		MAX(s.timestamp) AS latest_timestamp,
		s.id AS scan_id
	FROM scans s
	WHERE s.branch IS NOT NULL
	GROUP BY s.branch;
	`,
	`
	CREATE VIEW IF NOT EXISTS finding_history AS
	SELECT
		f.fingerprint,
		f.severity,
		f.rule_id,
		f.path,
		MIN(s.timestamp) AS first_seen,
		MAX(s.timestamp) AS last_seen,
		COUNT(DISTINCT s.id) AS scan_count
	FROM findings f
	JOIN scans s ON f.scan_id = s.id
	GROUP BY f.fingerprint;
	`,
}

// initSchema creates every table, index, trigger and view. Recording
// CurrentSchemaVersion in schema_version is left to Store.init.
func (s *Store) initSchema(tx execer) error {
	statements := []string{
		createSchemaVersionTable,
		createScansTable,
		createFindingsTable,
		createScanMetadataTable,
		createAttestationsTable,
	}
	statements = append(statements, createIndices...)
	statements = append(statements, createTriggers...)
	statements = append(statements, createViews...)

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
