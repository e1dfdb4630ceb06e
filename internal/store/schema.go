// Package store is the Tick Store (C5): a deduplicating, partitioned
// columnar store for two tick variants plus the derived OHLC table
// (spec §4.4).
//
// The column catalogue below is grounded on original_source's
// schema.py OHLCSchema: one table-driven source of truth for column
// name, type, and human comment, generated once here instead of
// duplicated across DDL and comments.
package store

import (
	"fmt"
	"strings"

	"github.com/neomantra/forexstore"
	"github.com/neomantra/forexstore/internal/registry"
)

// SchemaVersion is bumped whenever the OHLC column set changes. An
// on-disk database whose recorded version is older is reported as
// SchemaMismatchError rather than silently queried against a stale
// layout (§7).
const SchemaVersion = "1.5.0"

// column is one field of the ohlc_1m table: its SQL type and its
// human description (embedded via COMMENT ON COLUMN).
type column struct {
	Name    string
	DDLType string
	Comment string
}

// ohlcColumns is the single source of truth driving CREATE TABLE and
// COMMENT ON COLUMN for ohlc_1m. The ten exchange-session columns are
// appended from the registry so adding an exchange requires no change
// here. Resampling to coarser timeframes is done in internal/query
// over already-scanned bars rather than by a schema-driven SQL SELECT
// clause: several columns (the normalized microstructure metrics,
// open/close which need arrival-order not just min/max) need
// conditional NULL-handling and cross-column recomputation that a
// flat per-column aggregate expression can't express, so there is no
// Aggregation field here to keep in sync with that logic.
var ohlcColumns = buildOHLCColumns()

func buildOHLCColumns() []column {
	cols := []column{
		{Name: "timestamp", DDLType: "TIMESTAMP WITH TIME ZONE PRIMARY KEY", Comment: "Minute-aligned bar timestamp (UTC)"},
		{Name: "open", DDLType: "DOUBLE NOT NULL", Comment: "Opening price (first raw_spread bid in the minute)"},
		{Name: "high", DDLType: "DOUBLE NOT NULL", Comment: "High price (max raw_spread bid)"},
		{Name: "low", DDLType: "DOUBLE NOT NULL", Comment: "Low price (min raw_spread bid)"},
		{Name: "close", DDLType: "DOUBLE NOT NULL", Comment: "Closing price (last raw_spread bid in the minute)"},
		{Name: "raw_spread_avg", DDLType: "DOUBLE", Comment: "Average ask-bid spread from the raw_spread variant (NULL if no ticks)"},
		{Name: "standard_spread_avg", DDLType: "DOUBLE", Comment: "Average ask-bid spread from the standard variant, asof-matched (NULL if no standard ticks matched)"},
		{Name: "tick_count_raw_spread", DDLType: "BIGINT", Comment: "Number of raw_spread ticks in the minute"},
		{Name: "tick_count_standard", DDLType: "BIGINT", Comment: "Number of standard ticks matched asof-to-preceding (NULL if none matched)"},
		{Name: "range_per_spread", DDLType: "DOUBLE", Comment: "(high-low)/standard_spread_avg, NULL if denominator is zero or NULL"},
		{Name: "range_per_tick", DDLType: "DOUBLE", Comment: "(high-low)/tick_count_standard, NULL if denominator is zero or NULL"},
		{Name: "body_per_spread", DDLType: "DOUBLE", Comment: "abs(close-open)/standard_spread_avg, NULL if denominator is zero or NULL"},
		{Name: "body_per_tick", DDLType: "DOUBLE", Comment: "abs(close-open)/tick_count_standard, NULL if denominator is zero or NULL"},
		{Name: "ny_hour", DDLType: "INTEGER", Comment: "New York local hour (0-23), DST-aware"},
		{Name: "london_hour", DDLType: "INTEGER", Comment: "London local hour (0-23), DST-aware"},
		{Name: "ny_session", DDLType: "VARCHAR", Comment: "NY_Session (9-16h), NY_After_Hours (17-20h), or NY_Closed"},
		{Name: "london_session", DDLType: "VARCHAR", Comment: "London_Session (8-16h) or London_Closed"},
		{Name: "is_us_holiday", DDLType: "INTEGER", Comment: "1 if NYSE closed for an official holiday, 0 otherwise"},
		{Name: "is_uk_holiday", DDLType: "INTEGER", Comment: "1 if LSE closed for an official holiday, 0 otherwise"},
		{Name: "is_major_holiday", DDLType: "INTEGER", Comment: "1 if both NYSE and LSE closed, 0 otherwise"},
	}
	for _, ex := range registry.All() {
		cols = append(cols, column{
			Name:    ex.SessionColumn(),
			DDLType: "INTEGER",
			Comment: fmt.Sprintf("1 if %s (%s) is in its trading session this minute (excludes weekends, holidays, lunch breaks), 0 otherwise", ex.Name, ex.MIC),
		})
	}
	return cols
}

// OHLCColumnNames returns the ohlc_1m column names in schema order.
func OHLCColumnNames() []string {
	names := make([]string, len(ohlcColumns))
	for i, c := range ohlcColumns {
		names[i] = c.Name
	}
	return names
}

const ohlcTableComment = "1-minute OHLC bars enriched with dual-variant spreads, normalized microstructure metrics, " +
	"NY/London session labels, and 10 global exchange trading-session flags. OHLC source: raw_spread bid prices."

func createOHLCTableSQL() string {
	defs := make([]string, len(ohlcColumns))
	for i, c := range ohlcColumns {
		defs[i] = fmt.Sprintf("%s %s", c.Name, c.DDLType)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS ohlc_1m (\n    %s\n)", strings.Join(defs, ",\n    "))
}

func ohlcTableCommentSQL() string {
	return fmt.Sprintf("COMMENT ON TABLE ohlc_1m IS '%s'", ohlcTableComment)
}

func ohlcColumnCommentSQLs() []string {
	out := make([]string, len(ohlcColumns))
	for i, c := range ohlcColumns {
		out[i] = fmt.Sprintf("COMMENT ON COLUMN ohlc_1m.%s IS '%s'", c.Name, c.Comment)
	}
	return out
}

func tickTableName(variant string) string {
	return forexstore.Variant(variant).TableName()
}

func createTickTableSQL(variant string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    instrument VARCHAR NOT NULL,
    timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
    bid DOUBLE NOT NULL,
    ask DOUBLE NOT NULL,
    PRIMARY KEY (instrument, timestamp)
)`, tickTableName(variant))
}

func tickTableCommentSQL(variant string) string {
	table := tickTableName(variant)
	desc := "Standard-variant ticks (ask > bid)."
	if variant == "raw_spread" {
		desc = "Raw-spread-variant ticks (ask >= bid; zero-spread execution ticks are common)."
	}
	return fmt.Sprintf("COMMENT ON TABLE %s IS '%s Deduplicated on (instrument, timestamp).'", table, desc)
}

func tickColumnCommentSQLs(variant string) []string {
	table := tickTableName(variant)
	return []string{
		fmt.Sprintf("COMMENT ON COLUMN %s.instrument IS 'Enumerated instrument symbol'", table),
		fmt.Sprintf("COMMENT ON COLUMN %s.timestamp IS 'Microsecond-precision tick timestamp (UTC)'", table),
		fmt.Sprintf("COMMENT ON COLUMN %s.bid IS 'Bid price'", table),
		fmt.Sprintf("COMMENT ON COLUMN %s.ask IS 'Ask price'", table),
	}
}

const schemaMetaTableSQL = `CREATE TABLE IF NOT EXISTS forexstore_schema_meta (
    key VARCHAR PRIMARY KEY,
    value VARCHAR NOT NULL
)`
