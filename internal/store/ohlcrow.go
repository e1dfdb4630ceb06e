package store

import (
	"database/sql"
	"fmt"

	"github.com/neomantra/forexstore/internal/registry"
)

// ohlcBarArgs flattens a bar into the positional argument list matching
// OHLCColumnNames' order, used by both backends' parameterized upserts.
func ohlcBarArgs(bar OHLCBar) []any {
	args := []any{
		bar.Timestamp, bar.Open, bar.High, bar.Low, bar.Close,
		nullableFloat(bar.RawSpreadAvg), nullableFloat(bar.StandardSpreadAvg),
		bar.TickCountRawSpread, nullableInt(bar.TickCountStandard),
		nullableFloat(bar.RangePerSpread), nullableFloat(bar.RangePerTick),
		nullableFloat(bar.BodyPerSpread), nullableFloat(bar.BodyPerTick),
		bar.NYHour, bar.LondonHour, bar.NYSession, bar.LondonSession,
		boolToInt(bar.IsUSHoliday), boolToInt(bar.IsUKHoliday), boolToInt(bar.IsMajorHoliday),
	}
	for _, key := range registry.Keys() {
		args = append(args, boolToInt(bar.Sessions[key]))
	}
	return args
}

// scanOHLCRows reads rows into OHLCBar values using the fixed column
// order produced by `SELECT * FROM ohlc_1m` (schema.go's ohlcColumns).
func scanOHLCRows(rows *sql.Rows) ([]OHLCBar, error) {
	var out []OHLCBar
	keys := registry.Keys()

	for rows.Next() {
		var bar OHLCBar
		var rawSpreadAvg, standardSpreadAvg sql.NullFloat64
		var tickCountStandard sql.NullInt64
		var rangePerSpread, rangePerTick, bodyPerSpread, bodyPerTick sql.NullFloat64
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
		bar.RawSpreadAvg = nullFloatPtr(rawSpreadAvg)
		bar.StandardSpreadAvg = nullFloatPtr(standardSpreadAvg)
		bar.TickCountStandard = nullIntPtr(tickCountStandard)
		bar.RangePerSpread = nullFloatPtr(rangePerSpread)
		bar.RangePerTick = nullFloatPtr(rangePerTick)
		bar.BodyPerSpread = nullFloatPtr(bodyPerSpread)
		bar.BodyPerTick = nullFloatPtr(bodyPerTick)
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

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullableInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullIntPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
