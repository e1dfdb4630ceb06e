// Remote backend: a single logical Postgres-wire database shared
// across all instruments, reached via jackc/pgx/v5 the way sptrader
// reaches QuestDB over the Postgres wire protocol. Tick tables are
// partitioned by calendar month (date_trunc('month', timestamp)) per
// §6's "physical partitioning by YYYYMM is required"; ohlc_1m stays a
// single table since bar volume per instrument is small.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neomantra/forexstore/internal/registry"
)

// RemoteStore is the pgx-backed implementation of Backend. Unlike
// DuckStore it is not instrument-scoped: one pool serves every
// instrument, disambiguated by the instrument column on every table.
type RemoteStore struct {
	pool *pgxpool.Pool
}

// OpenRemoteStore connects to a Postgres-wire columnar server and
// ensures the shared schema and this month's partitions exist.
func OpenRemoteStore(ctx context.Context, dsn string) (*RemoteStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to remote store: %w", err)
	}
	s := &RemoteStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *RemoteStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		schemaMetaTableSQL,
		partitionedTickTableSQL("raw_spread"),
		tickTableCommentSQL("raw_spread"),
		partitionedTickTableSQL("standard"),
		tickTableCommentSQL("standard"),
		createOHLCTableSQL(),
		ohlcTableCommentSQL(),
	}
	stmts = append(stmts, tickColumnCommentSQLs("raw_spread")...)
	stmts = append(stmts, tickColumnCommentSQLs("standard")...)
	stmts = append(stmts, ohlcColumnCommentSQLs()...)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return &SchemaMismatchError{Reason: "DDL failed", Err: err}
		}
	}

	var storedVersion string
	err = tx.QueryRow(ctx, `SELECT value FROM forexstore_schema_meta WHERE key = 'version'`).Scan(&storedVersion)
	switch {
	case err == pgx.ErrNoRows:
		if _, err := tx.Exec(ctx, `INSERT INTO forexstore_schema_meta (key, value) VALUES ('version', $1)`, SchemaVersion); err != nil {
			return err
		}
	case err != nil:
		return err
	case storedVersion != SchemaVersion:
		return &SchemaMismatchError{Reason: fmt.Sprintf("remote schema %s is older than code's %s", storedVersion, SchemaVersion)}
	}

	return tx.Commit(ctx)
}

// partitionedTickTableSQL declares the tick table as a range partition
// parent; a new child is created lazily per calendar month touched by
// Append (partitions never need to be pre-declared for a fixed range).
func partitionedTickTableSQL(variant string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    instrument VARCHAR NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL,
    bid DOUBLE PRECISION NOT NULL,
    ask DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (instrument, timestamp)
) PARTITION BY RANGE (timestamp)`, tickTableName(variant))
}

// ensureMonthPartition creates the child partition covering the
// calendar month containing ts, if it does not already exist.
func (s *RemoteStore) ensureMonthPartition(ctx context.Context, variant string, ts time.Time) error {
	table := tickTableName(variant)
	monthStart := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	partition := fmt.Sprintf("%s_%04d_%02d", table, ts.Year(), int(ts.Month()))

	_, err := s.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ($1) TO ($2)`,
		partition, table), monthStart, monthEnd)
	return err
}

func (s *RemoteStore) Close() error {
	s.pool.Close()
	return nil
}

// Append inserts rows, creating any missing monthly partitions first,
// and returns the count of new keys added (dedup on
// (instrument, timestamp) via ON CONFLICT DO UPDATE, so a later write
// of an existing key replaces its bid/ask, §4.4, §8 property 1).
func (s *RemoteStore) Append(ctx context.Context, instrument, variant string, rows []TickRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	table := tickTableName(variant)

	months := map[time.Time]bool{}
	for _, r := range rows {
		months[time.Date(r.Timestamp.Year(), r.Timestamp.Month(), 1, 0, 0, 0, 0, time.UTC)] = true
	}
	for m := range months {
		if err := s.ensureMonthPartition(ctx, variant, m); err != nil {
			return 0, &StoreError{Op: "append:ensure_partition", Instrument: instrument, Err: err}
		}
	}

	before, err := s.Count(ctx, instrument, variant)
	if err != nil {
		return 0, &StoreError{Op: "append:count-before", Instrument: instrument, Err: err}
	}

	batch := &pgx.Batch{}
	insertSQL := fmt.Sprintf(
		`INSERT INTO %s (instrument, timestamp, bid, ask) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (instrument, timestamp) DO UPDATE SET bid = excluded.bid, ask = excluded.ask`, table)
	for _, r := range rows {
		batch.Queue(insertSQL, instrument, r.Timestamp.UTC(), r.Bid, r.Ask)
	}

	br := s.pool.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, &StoreError{Op: "append:exec", Instrument: instrument, Err: err}
		}
	}
	if err := br.Close(); err != nil {
		return 0, &StoreError{Op: "append:batch-close", Instrument: instrument, Err: err}
	}

	after, err := s.Count(ctx, instrument, variant)
	if err != nil {
		return 0, &StoreError{Op: "append:count-after", Instrument: instrument, Err: err}
	}
	return after - before, nil
}

func (s *RemoteStore) Count(ctx context.Context, instrument, variant string) (int64, error) {
	table := tickTableName(variant)
	var n int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE instrument = $1`, table), instrument).Scan(&n)
	if err != nil {
		return 0, &StoreError{Op: "count", Instrument: instrument, Err: err}
	}
	return n, nil
}

func (s *RemoteStore) Range(ctx context.Context, instrument, variant string) (*time.Time, *time.Time, error) {
	table := tickTableName(variant)
	var minTS, maxTS *time.Time
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT min(timestamp), max(timestamp) FROM %s WHERE instrument = $1`, table), instrument).
		Scan(&minTS, &maxTS)
	if err != nil {
		return nil, nil, &StoreError{Op: "range", Instrument: instrument, Err: err}
	}
	if minTS == nil || maxTS == nil {
		return nil, nil, nil
	}
	minT, maxT := minTS.UTC(), maxTS.UTC()
	return &minT, &maxT, nil
}

func (s *RemoteStore) Scan(ctx context.Context, instrument, variant string, start, end *time.Time) (TickRowIterator, error) {
	table := tickTableName(variant)
	q := fmt.Sprintf(`SELECT instrument, timestamp, bid, ask FROM %s WHERE instrument = $1`, table)
	args := []any{instrument}
	if start != nil {
		args = append(args, start.UTC())
		q += fmt.Sprintf(` AND timestamp >= $%d`, len(args))
	}
	if end != nil {
		args = append(args, end.UTC())
		q += fmt.Sprintf(` AND timestamp < $%d`, len(args))
	}
	q += ` ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, &StoreError{Op: "scan", Instrument: instrument, Err: err}
	}
	return &remoteTickIterator{rows: rows}, nil
}

type remoteTickIterator struct {
	rows pgx.Rows
	cur  TickRow
	err  error
}

func (it *remoteTickIterator) Next() bool {
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

func (it *remoteTickIterator) Row() TickRow { return it.cur }
func (it *remoteTickIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}
func (it *remoteTickIterator) Close() error { it.rows.Close(); return nil }

func (s *RemoteStore) DistinctMonths(ctx context.Context, instrument, variant string) ([]MonthKey, error) {
	table := tickTableName(variant)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT extract(year FROM timestamp)::INTEGER, extract(month FROM timestamp)::INTEGER
		 FROM %s WHERE instrument = $1 ORDER BY 1, 2`, table), instrument)
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

func (s *RemoteStore) DeleteOHLCRange(ctx context.Context, instrument string, start, end time.Time) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ohlc_1m WHERE timestamp >= $1 AND timestamp < $2`, start.UTC(), end.UTC())
	if err != nil {
		return &StoreError{Op: "delete_ohlc_range", Instrument: instrument, Err: err}
	}
	return nil
}

func (s *RemoteStore) UpsertOHLC(ctx context.Context, instrument string, bars []OHLCBar) error {
	if len(bars) == 0 {
		return nil
	}
	cols := OHLCColumnNames()
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

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
		strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updateSets, ", "))

	batch := &pgx.Batch{}
	for _, bar := range bars {
		batch.Queue(stmtSQL, ohlcBarArgs(bar)...)
	}
	br := s.pool.SendBatch(ctx, batch)
	for range bars {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return &StoreError{Op: "upsert_ohlc:exec", Instrument: instrument, Err: err}
		}
	}
	return br.Close()
}

func (s *RemoteStore) ScanOHLC(ctx context.Context, instrument string, start, end *time.Time) ([]OHLCBar, error) {
	q := `SELECT * FROM ohlc_1m WHERE 1=1`
	var args []any
	if start != nil {
		args = append(args, start.UTC())
		q += fmt.Sprintf(` AND timestamp >= $%d`, len(args))
	}
	if end != nil {
		args = append(args, end.UTC())
		q += fmt.Sprintf(` AND timestamp < $%d`, len(args))
	}
	q += ` ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, &StoreError{Op: "scan_ohlc", Instrument: instrument, Err: err}
	}
	defer rows.Close()
	return scanPgxOHLCRows(rows)
}

// scanPgxOHLCRows mirrors scanOHLCRows for pgx.Rows (pgx does not
// share database/sql's *sql.Rows type, but exposes the same
// Next/Scan/Err shape scanOHLCRows relies on).
func scanPgxOHLCRows(rows pgx.Rows) ([]OHLCBar, error) {
	var out []OHLCBar
	keys := registry.Keys()

	for rows.Next() {
		var bar OHLCBar
		var rawSpreadAvg, standardSpreadAvg *float64
		var tickCountStandard *int64
		var rangePerSpread, rangePerTick, bodyPerSpread, bodyPerTick *float64
		var isUS, isUK, isMajor int
		sessionVals := make([]int, len(keys))

		dest := []any{
			&bar.Timestamp, &bar.Open, &bar.High, &bar.Low, &bar.Close,
			&rawSpreadAvg, &standardSpreadAvg,
			&bar.TickCountRawSpread, &tickCountStandard,
			&rangePerSpread, &rangePerTick, &bodyPerSpread, &bodyPerTick,
			&bar.NYHour, &bar.LondonHour, &bar.NYSession, &bar.LondonSession,
			&isUS, &isUK, &isMajor,
		}
		for i := range sessionVals {
			dest = append(dest, &sessionVals[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning ohlc_1m row: %w", err)
		}

		bar.Timestamp = bar.Timestamp.UTC()
		bar.RawSpreadAvg = rawSpreadAvg
		bar.StandardSpreadAvg = standardSpreadAvg
		bar.TickCountStandard = tickCountStandard
		bar.RangePerSpread = rangePerSpread
		bar.RangePerTick = rangePerTick
		bar.BodyPerSpread = bodyPerSpread
		bar.BodyPerTick = bodyPerTick
		bar.IsUSHoliday = isUS != 0
		bar.IsUKHoliday = isUK != 0
		bar.IsMajorHoliday = isMajor != 0

		bar.Sessions = make(map[string]bool, len(keys))
		for i, key := range keys {
			bar.Sessions[key] = sessionVals[i] != 0
		}

		out = append(out, bar)
	}
	return out, rows.Err()
}

func (s *RemoteStore) StorageSizeBytes(ctx context.Context, instrument string) (int64, error) {
	var size int64
	err := s.pool.QueryRow(ctx, `SELECT pg_total_relation_size('ohlc_1m') + pg_total_relation_size('raw_spread_ticks') + pg_total_relation_size('standard_ticks')`).Scan(&size)
	if err != nil {
		return 0, &StoreError{Op: "storage_size", Instrument: instrument, Err: err}
	}
	return size, nil
}
