package history

import (
	"context"
	"database/sql"
	"fmt"
)

// IntegrityReport is the result of a verification pass (spec §4.3
// "Integrity verification").
type IntegrityReport struct {
	IsValid         bool
	Errors          []string
	IntegrityCheck  string
	ForeignKeyCheck []ForeignKeyViolation
	QuickCheck      string
	Stats           Stats
}

// ForeignKeyViolation is one row reported by PRAGMA foreign_key_check.
type ForeignKeyViolation struct {
	Table           string
	RowID           int64
	ReferencedTable string
}

// Verify runs the full structural check, the foreign-key check, and the
// quick check, returning a combined report. Never mutates the database.
func (s *Store) Verify(ctx context.Context) (IntegrityReport, error) {
	report := IntegrityReport{IsValid: true}

	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&report.IntegrityCheck); err != nil {
		return report, fmt.Errorf("running integrity_check: %w", err)
	}
	if report.IntegrityCheck != "ok" {
		report.IsValid = false
		report.Errors = append(report.Errors, "integrity_check: "+report.IntegrityCheck)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return report, fmt.Errorf("enabling foreign_keys: %w", err)
	}
	violations, err := s.foreignKeyCheck(ctx)
	if err != nil {
		return report, fmt.Errorf("running foreign_key_check: %w", err)
	}
	report.ForeignKeyCheck = violations
	if len(violations) > 0 {
		report.IsValid = false
		for _, v := range violations {
			report.Errors = append(report.Errors, fmt.Sprintf("foreign_key_check: %s row %d references missing %s", v.Table, v.RowID, v.ReferencedTable))
		}
	}

	if err := s.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&report.QuickCheck); err != nil {
		return report, fmt.Errorf("running quick_check: %w", err)
	}
	if report.QuickCheck != "ok" {
		report.IsValid = false
		report.Errors = append(report.Errors, "quick_check: "+report.QuickCheck)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		return report, fmt.Errorf("collecting stats: %w", err)
	}
	report.Stats = stats

	return report, nil
}

func (s *Store) foreignKeyCheck(ctx context.Context) ([]ForeignKeyViolation, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ForeignKeyViolation
	for rows.Next() {
		var table string
		var rowid sql.NullInt64
		var parent string
		var fkid int
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return nil, err
		}
		out = append(out, ForeignKeyViolation{Table: table, RowID: rowid.Int64, ReferencedTable: parent})
	}
	return out, rows.Err()
}
