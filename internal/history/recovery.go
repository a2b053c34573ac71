package history

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// RecoveryResult reports the outcome of Recover (spec §4.3 "Recovery").
type RecoveryResult struct {
	Success         bool
	BackupPath      string
	Errors          []string
	RowsRecovered   int
	RecoveryTimeSec float64
}

var recoveryTables = []string{"scans", "findings", "schema_version"}

type dumpedRow struct {
	columns []string
	values  []interface{}
}

// Recover performs the dump/reimport recovery procedure: back up the file,
// dump every row of scans/findings/schema_version into memory, delete and
// re-initialize the database file, then batch-reinsert with foreign keys
// disabled, skipping the baseline "1.0.0" schema_version row already present
// from init. It works on the database file at path, which no open Store
// should hold, and returns a fresh Store opened on the rebuilt file.
func Recover(ctx context.Context, path string) (RecoveryResult, *Store, error) {
	start := time.Now()
	result := RecoveryResult{}

	backupPath := path + ".backup"
	if err := copyFilePreservingMetadata(path, backupPath); err != nil {
		return result, nil, fmt.Errorf("backing up database: %w", err)
	}
	result.BackupPath = backupPath

	src, err := sql.Open("sqlite", path+"?_journal_mode=WAL")
	if err != nil {
		return result, nil, fmt.Errorf("opening database for dump: %w", err)
	}

	dumps := make(map[string][]dumpedRow)
	for _, table := range recoveryTables {
		rows, err := dumpTable(ctx, src, table)
		if err != nil {
			src.Close()
			return result, nil, fmt.Errorf("dumping table %s: %w", table, err)
		}
		dumps[table] = rows
	}
	src.Close()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return result, nil, fmt.Errorf("removing corrupt database: %w", err)
	}

	store, err := Open(path)
	if err != nil {
		return result, nil, fmt.Errorf("reinitializing database: %w", err)
	}

	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		store.Close()
		return result, nil, fmt.Errorf("beginning reimport transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		tx.Rollback()
		store.Close()
		return result, nil, fmt.Errorf("disabling foreign keys: %w", err)
	}

	recovered := 0
	for _, table := range recoveryTables {
		for _, row := range dumps[table] {
			if table == "schema_version" {
				if v, ok := firstValueFor(row, "version"); ok && fmt.Sprint(v) == "1.0.0" {
					continue // already present from Open's init
				}
			}
			if err := reinsertRow(ctx, tx, table, row); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", table, err))
				continue
			}
			recovered++
		}
	}
	result.RowsRecovered = recovered

	if _, err := tx.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		tx.Rollback()
		store.Close()
		return result, nil, fmt.Errorf("re-enabling foreign keys: %w", err)
	}
	if err := tx.Commit(); err != nil {
		store.Close()
		return result, nil, fmt.Errorf("committing reimport: %w", err)
	}

	if report, err := store.Verify(ctx); err == nil && !report.IsValid {
		result.Errors = append(result.Errors, report.Errors...)
	}

	result.Success = len(result.Errors) == 0
	result.RecoveryTimeSec = time.Since(start).Seconds()
	return result, store, nil
}

func dumpTable(ctx context.Context, db *sql.DB, table string) ([]dumpedRow, error) {
	cols, err := tableInfo(ctx, db, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, nil
	}

	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + table
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dumpedRow
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, dumpedRow{columns: cols, values: values})
	}
	return out, rows.Err()
}

// tableInfo discovers a table's column order via PRAGMA table_info, as the
// spec requires ("using the column order discovered from PRAGMA
// table_info") rather than a hardcoded schema assumption.
func tableInfo(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

func reinsertRow(ctx context.Context, tx *sql.Tx, table string, row dumpedRow) error {
	placeholders := make([]string, len(row.columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table, strings.Join(row.columns, ", "), strings.Join(placeholders, ", "))
	_, err := tx.ExecContext(ctx, query, row.values...)
	return err
}

func firstValueFor(row dumpedRow, column string) (interface{}, bool) {
	for i, c := range row.columns {
		if c == column {
			return row.values[i], true
		}
	}
	return nil, false
}

// copyFilePreservingMetadata copies src to dst, preserving the source file's
// mode bits (the spec's "copy2 semantics: preserve metadata").
func copyFilePreservingMetadata(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode())
}
