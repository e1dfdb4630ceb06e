package store

import (
	"context"
	"time"
)

// TickRow is one decoded tick as read back from the store.
type TickRow struct {
	Instrument string
	Timestamp  time.Time
	Bid        float64
	Ask        float64
}

// OHLCBar is one row of the ohlc_1m table (§3).
type OHLCBar struct {
	Timestamp           time.Time
	Open, High, Low, Close float64
	RawSpreadAvg        *float64
	StandardSpreadAvg   *float64
	TickCountRawSpread  int64
	TickCountStandard   *int64
	RangePerSpread      *float64
	RangePerTick        *float64
	BodyPerSpread       *float64
	BodyPerTick         *float64
	NYHour              int
	LondonHour          int
	NYSession           string
	LondonSession       string
	IsUSHoliday         bool
	IsUKHoliday         bool
	IsMajorHoliday      bool
	Sessions            map[string]bool // registry key -> is_<key>_session
}

// MonthKey identifies a calendar month partition.
type MonthKey struct {
	Year, Month int
}

// Coverage is the derived, on-demand summary described in §3.
type Coverage struct {
	Instrument        string
	EarliestTick      *time.Time
	LatestTick        *time.Time
	RawSpreadCount    int64
	StandardCount     int64
	OHLCBarCount      int64
	StorageSizeBytes  int64
}

// TickRowIterator streams rows from Scan. Callers must call Close.
type TickRowIterator interface {
	Next() bool
	Row() TickRow
	Err() error
	Close() error
}

// Backend is the storage contract the OHLC Engine, Gap Detector, and
// Query Facade are written against (§4.4). Both the embedded DuckDB
// backend and the remote pgx-wire backend implement it.
type Backend interface {
	// Append inserts batch for (instrument, variant), deduplicating on
	// (instrument, timestamp). Re-appending identical rows returns 0.
	Append(ctx context.Context, instrument, variant string, rows []TickRow) (int64, error)

	Count(ctx context.Context, instrument, variant string) (int64, error)

	// Range returns (nil, nil) if the variant has no rows for instrument.
	Range(ctx context.Context, instrument, variant string) (min, max *time.Time, err error)

	Scan(ctx context.Context, instrument, variant string, start, end *time.Time) (TickRowIterator, error)

	DistinctMonths(ctx context.Context, instrument, variant string) ([]MonthKey, error)

	DeleteOHLCRange(ctx context.Context, instrument string, start, end time.Time) error

	UpsertOHLC(ctx context.Context, instrument string, bars []OHLCBar) error

	// ScanOHLC returns stored 1m bars within [start, end), ordered by
	// timestamp ascending. A nil bound is unbounded on that side.
	ScanOHLC(ctx context.Context, instrument string, start, end *time.Time) ([]OHLCBar, error)

	StorageSizeBytes(ctx context.Context, instrument string) (int64, error)

	Close() error
}
