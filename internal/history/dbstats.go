package history

import (
	"context"
	"os"
)

// DatabaseStats is the detailed report backing `history stats`, ported from
// the original implementation's get_database_stats.
type DatabaseStats struct {
	TotalScans          int            `json:"totalScans"`
	TotalFindings       int            `json:"totalFindings"`
	MinTimestamp        int64          `json:"minTimestamp"`
	MaxTimestamp        int64          `json:"maxTimestamp"`
	ScansByBranch       map[string]int `json:"scansByBranch"`
	ScansByProfile      map[string]int `json:"scansByProfile"`
	FindingsBySeverity  map[string]int `json:"findingsBySeverity"`
	TopTools            []ToolCount    `json:"topTools"`
	SchemaVersionCount  int            `json:"schemaVersionCount"`
	IndicesCount        int            `json:"indicesCount"`
	SizeBytes           int64          `json:"sizeBytes"`
	SizeMB              float64        `json:"sizeMb"`
}

// ToolCount is one (tool, count) pair in the top-tools ranking.
type ToolCount struct {
	Tool  string `json:"tool"`
	Count int    `json:"count"`
}

// DatabaseStats computes the full store-wide statistics report.
func (s *Store) DatabaseStats(ctx context.Context) (DatabaseStats, error) {
	var out DatabaseStats

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scans").Scan(&out.TotalScans); err != nil {
		return out, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM findings").Scan(&out.TotalFindings); err != nil {
		return out, err
	}

	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MIN(timestamp), 0), COALESCE(MAX(timestamp), 0) FROM scans")
	if err := row.Scan(&out.MinTimestamp, &out.MaxTimestamp); err != nil {
		return out, err
	}

	out.ScansByBranch = make(map[string]int)
	rows, err := s.db.QueryContext(ctx, "SELECT branch, COUNT(*) FROM scans WHERE branch IS NOT NULL GROUP BY branch")
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var branch string
		var count int
		if err := rows.Scan(&branch, &count); err != nil {
			rows.Close()
			return out, err
		}
		out.ScansByBranch[branch] = count
	}
	rows.Close()

	out.ScansByProfile = make(map[string]int)
	rows, err = s.db.QueryContext(ctx, "SELECT profile, COUNT(*) FROM scans GROUP BY profile")
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var profile string
		var count int
		if err := rows.Scan(&profile, &count); err != nil {
			rows.Close()
			return out, err
		}
		out.ScansByProfile[profile] = count
	}
	rows.Close()

	out.FindingsBySeverity = make(map[string]int)
	rows, err = s.db.QueryContext(ctx, "SELECT severity, COUNT(*) FROM findings GROUP BY severity")
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			rows.Close()
			return out, err
		}
		out.FindingsBySeverity[severity] = count
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, "SELECT tool, COUNT(*) AS cnt FROM findings GROUP BY tool ORDER BY cnt DESC LIMIT 10")
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var tc ToolCount
		if err := rows.Scan(&tc.Tool, &tc.Count); err != nil {
			rows.Close()
			return out, err
		}
		out.TopTools = append(out.TopTools, tc)
	}
	rows.Close()

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&out.SchemaVersionCount); err != nil {
		return out, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'index'").Scan(&out.IndicesCount); err != nil {
		return out, err
	}

	if info, err := os.Stat(s.path); err == nil {
		out.SizeBytes = info.Size()
		out.SizeMB = float64(info.Size()) / (1024 * 1024)
	}

	return out, nil
}
