// Embedded backend: one DuckDB file per instrument, opened through
// database/sql with the "duckdb" driver. Grounded on the teacher's
// internal/file/parquet_writer.go use of apache/arrow-go for typed
// columnar work, here paired with github.com/duckdb/duckdb-go/v2 for
// the analytical engine the spec calls for (§6 "embedded columnar
// engine").
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DuckStore is the embedded backend for exactly one instrument.
type DuckStore struct {
	db         *sql.DB
	instrument string
	path       string
}

// OpenDuckStore opens (creating if absent) the per-instrument database
// file under baseDir and ensures the schema is current. A schema
// version older than the code expects is reported as
// *SchemaMismatchError and is fatal until migrated (§7).
func OpenDuckStore(ctx context.Context, baseDir, instrument string) (*DuckStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(baseDir, strings.ToLower(instrument)+".duckdb")

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb file %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // one writer per instrument file (§5)

	s := &DuckStore{db: db, instrument: instrument, path: path}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DuckStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		schemaMetaTableSQL,
		createTickTableSQL("raw_spread"),
		tickTableCommentSQL("raw_spread"),
		createTickTableSQL("standard"),
		tickTableCommentSQL("standard"),
		createOHLCTableSQL(),
		ohlcTableCommentSQL(),
	}
	stmts = append(stmts, tickColumnCommentSQLs("raw_spread")...)
	stmts = append(stmts, tickColumnCommentSQLs("standard")...)
	stmts = append(stmts, ohlcColumnCommentSQLs()...)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &SchemaMismatchError{Instrument: s.instrument, Reason: "DDL failed", Err: err}
		}
	}

	var storedVersion string
	err = tx.QueryRowContext(ctx, `SELECT value FROM forexstore_schema_meta WHERE key = 'version'`).Scan(&storedVersion)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `INSERT INTO forexstore_schema_meta (key, value) VALUES ('version', ?)`, SchemaVersion); err != nil {
			return err
		}
	case err != nil:
		return err
	case storedVersion != SchemaVersion:
		return &SchemaMismatchError{Instrument: s.instrument, Reason: fmt.Sprintf("on-disk schema %s is older than code's %s", storedVersion, SchemaVersion)}
	}

	return tx.Commit()
}

func (s *DuckStore) Close() error { return s.db.Close() }

// Append inserts rows into variant's tick table, deduplicating on
// (instrument, timestamp) via ON CONFLICT DO UPDATE (a later write of
// an existing key replaces its bid/ask), and returns the count of new
// keys added (§4.4, §8 property 1).
func (s *DuckStore) Append(ctx context.Context, instrument, variant string, rows []TickRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	table := tickTableName(variant)

	before, err := s.Count(ctx, instrument, variant)
	if err != nil {
		return 0, &StoreError{Op: "append:count-before", Instrument: instrument, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &StoreError{Op: "append:begin", Instrument: instrument, Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (instrument, timestamp, bid, ask) VALUES (?, ?, ?, ?)
		 ON CONFLICT (instrument, timestamp) DO UPDATE SET bid = excluded.bid, ask = excluded.ask`, table))
	if err != nil {
		return 0, &StoreError{Op: "append:prepare", Instrument: instrument, Err: err}
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, instrument, r.Timestamp.UTC(), r.Bid, r.Ask); err != nil {
			return 0, &StoreError{Op: "append:exec", Instrument: instrument, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &StoreError{Op: "append:commit", Instrument: instrument, Err: err}
	}

	after, err := s.Count(ctx, instrument, variant)
	if err != nil {
		return 0, &StoreError{Op: "append:count-after", Instrument: instrument, Err: err}
	}
	return after - before, nil
}

func (s *DuckStore) Count(ctx context.Context, instrument, variant string) (int64, error) {
	table := tickTableName(variant)
	var n int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE instrument = ?`, table), instrument).Scan(&n)
	if err != nil {
		return 0, &StoreError{Op: "count", Instrument: instrument, Err: err}
	}
	return n, nil
}

func (s *DuckStore) Range(ctx context.Context, instrument, variant string) (*time.Time, *time.Time, error) {
	table := tickTableName(variant)
	var minTS, maxTS sql.NullTime
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT min(timestamp), max(timestamp) FROM %s WHERE instrument = ?`, table), instrument).
		Scan(&minTS, &maxTS)
	if err != nil {
		return nil, nil, &StoreError{Op: "range", Instrument: instrument, Err: err}
	}
	if !minTS.Valid || !maxTS.Valid {
		return nil, nil, nil
	}
	minT, maxT := minTS.Time.UTC(), maxTS.Time.UTC()
	return &minT, &maxT, nil
}

func (s *DuckStore) Scan(ctx context.Context, instrument, variant string, start, end *time.Time) (TickRowIterator, error) {
	table := tickTableName(variant)
	q := fmt.Sprintf(`SELECT instrument, timestamp, bid, ask FROM %s WHERE instrument = ?`, table)
	args := []any{instrument}
	if start != nil {
		q += ` AND timestamp >= ?`
		args = append(args, start.UTC())
	}
	if end != nil {
		q += ` AND timestamp < ?`
		args = append(args, end.UTC())
	}
	q += ` ORDER BY timestamp ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &StoreError{Op: "scan", Instrument: instrument, Err: err}
	}
	return &duckTickIterator{rows: rows}, nil
}

type duckTickIterator struct {
	rows *sql.Rows
	cur  TickRow
	err  error
}

func (it *duckTickIterator) Next() bool {
	if !it.rows.Next() {
		return false
	}
	var ts time.Time
	if err := it.rows.Scan(&it.cur.Instrument, &ts, &it.cur.Bid, &it.cur.Ask); err != nil {
		it.err = err
		return false
	}
	it.cur.Timestamp = ts.UTC()
	return true
}

func (it *duckTickIterator) Row() TickRow { return it.cur }
func (it *duckTickIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}
func (it *duckTickIterator) Close() error { return it.rows.Close() }

// DistinctMonths returns the calendar months present for (instrument,
// variant), used by the Gap Detector (§4.5).
func (s *DuckStore) DistinctMonths(ctx context.Context, instrument, variant string) ([]MonthKey, error) {
	table := tickTableName(variant)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT DISTINCT extract(year FROM timestamp)::INTEGER, extract(month FROM timestamp)::INTEGER
		 FROM %s WHERE instrument = ? ORDER BY 1, 2`, table), instrument)
	if err != nil {
		return nil, &StoreError{Op: "distinct_months", Instrument: instrument, Err: err}
	}
	defer rows.Close()

	var out []MonthKey
	for rows.Next() {
		var mk MonthKey
		if err := rows.Scan(&mk.Year, &mk.Month); err != nil {
			return nil, &StoreError{Op: "distinct_months:scan", Instrument: instrument, Err: err}
		}
		out = append(out, mk)
	}
	return out, rows.Err()
}

func (s *DuckStore) DeleteOHLCRange(ctx context.Context, instrument string, start, end time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ohlc_1m WHERE timestamp >= ? AND timestamp < ?`, start.UTC(), end.UTC())
	if err != nil {
		return &StoreError{Op: "delete_ohlc_range", Instrument: instrument, Err: err}
	}
	return nil
}

// UpsertOHLC replaces rows by primary key (timestamp); each bar's
// prices are identical on regeneration, only enrichment may differ
// across exchange-calendar-rule-table versions (§4.6, §8 property 8).
func (s *DuckStore) UpsertOHLC(ctx context.Context, instrument string, bars []OHLCBar) error {
	if len(bars) == 0 {
		return nil
	}
	cols := OHLCColumnNames()
	placeholders := strings.Repeat("?,", len(cols))
	placeholders = placeholders[:len(placeholders)-1]

	updateSets := make([]string, 0, len(cols)-1)
	for _, c := range cols {
		if c == "timestamp" {
			continue
		}
		updateSets = append(updateSets, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	stmtSQL := fmt.Sprintf(
		`INSERT INTO ohlc_1m (%s) VALUES (%s)
		 ON CONFLICT (timestamp) DO UPDATE SET %s`,
		strings.Join(cols, ", "), placeholders, strings.Join(updateSets, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "upsert_ohlc:begin", Instrument: instrument, Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return &StoreError{Op: "upsert_ohlc:prepare", Instrument: instrument, Err: err}
	}
	defer stmt.Close()

	for _, bar := range bars {
		args := ohlcBarArgs(bar)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return &StoreError{Op: "upsert_ohlc:exec", Instrument: instrument, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "upsert_ohlc:commit", Instrument: instrument, Err: err}
	}
	return nil
}

func (s *DuckStore) ScanOHLC(ctx context.Context, instrument string, start, end *time.Time) ([]OHLCBar, error) {
	q := `SELECT * FROM ohlc_1m WHERE 1=1`
	var args []any
	if start != nil {
		q += ` AND timestamp >= ?`
		args = append(args, start.UTC())
	}
	if end != nil {
		q += ` AND timestamp < ?`
		args = append(args, end.UTC())
	}
	q += ` ORDER BY timestamp ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &StoreError{Op: "scan_ohlc", Instrument: instrument, Err: err}
	}
	defer rows.Close()
	return scanOHLCRows(rows)
}

func (s *DuckStore) StorageSizeBytes(ctx context.Context, instrument string) (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, &StoreError{Op: "storage_size", Instrument: instrument, Err: err}
	}
	return info.Size(), nil
}
