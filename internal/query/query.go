// Package query is the Query Facade (C8): uniform read APIs over tick
// and OHLC data, including on-the-fly resampling from 1m to coarser
// timeframes (spec §4.7). It never mutates store state.
package query

import (
	"context"
	"math"
	"sort"
	"time"

	forexstore "github.com/neomantra/forexstore"
	"github.com/neomantra/forexstore/internal/registry"
	"github.com/neomantra/forexstore/internal/store"
)

// Facade serves reads for one instrument's backend.
type Facade struct {
	backend store.Backend
}

func New(backend store.Backend) *Facade { return &Facade{backend: backend} }

// QueryTicks returns tick rows ordered by timestamp ascending (§4.7).
// Rows are filtered only by the optional [start, end) bounds; there is
// no extra filter predicate parameter.
func (f *Facade) QueryTicks(ctx context.Context, instrument, variant string, start, end *time.Time) ([]store.TickRow, error) {
	it, err := f.backend.Scan(ctx, instrument, variant, start, end)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []store.TickRow
	for it.Next() {
		out = append(out, it.Row())
	}
	return out, it.Err()
}

// QueryOHLC returns bars at the requested timeframe. 1m returns stored
// rows verbatim; coarser frames are resampled on the fly per §4.7.
func (f *Facade) QueryOHLC(ctx context.Context, instrument string, tf forexstore.Timeframe, start, end *time.Time) ([]store.OHLCBar, error) {
	bars, err := f.backend.ScanOHLC(ctx, instrument, start, end)
	if err != nil {
		return nil, err
	}
	if tf == forexstore.Timeframe1m {
		return bars, nil
	}
	return resample(bars, time.Duration(tf.Seconds())*time.Second), nil
}

// ListInstruments returns the closed instrument catalogue (§4.7).
func ListInstruments() []string { return forexstore.Instruments() }

// GetCoverage computes the derived summary described in §3.
func (f *Facade) GetCoverage(ctx context.Context, instrument string) (store.Coverage, error) {
	cov := store.Coverage{Instrument: instrument}

	rawMin, rawMax, err := f.backend.Range(ctx, instrument, "raw_spread")
	if err != nil {
		return cov, err
	}
	stdMin, stdMax, err := f.backend.Range(ctx, instrument, "standard")
	if err != nil {
		return cov, err
	}
	cov.EarliestTick = earlier(rawMin, stdMin)
	cov.LatestTick = later(rawMax, stdMax)

	if cov.RawSpreadCount, err = f.backend.Count(ctx, instrument, "raw_spread"); err != nil {
		return cov, err
	}
	if cov.StandardCount, err = f.backend.Count(ctx, instrument, "standard"); err != nil {
		return cov, err
	}

	bars, err := f.backend.ScanOHLC(ctx, instrument, nil, nil)
	if err != nil {
		return cov, err
	}
	cov.OHLCBarCount = int64(len(bars))

	if cov.StorageSizeBytes, err = f.backend.StorageSizeBytes(ctx, instrument); err != nil {
		return cov, err
	}
	return cov, nil
}

func earlier(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.Before(*b):
		return a
	default:
		return b
	}
}

func later(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.After(*b):
		return a
	default:
		return b
	}
}

// resample buckets stored 1m bars into coarser windows per §4.7: open
// from the earliest constituent, close from the latest, high/low as
// max/min, counts summed, spreads averaged, normalized metrics
// recomputed from the bucket aggregates (not averaged from children),
// and holiday/session flags OR'd across children.
func resample(bars []store.OHLCBar, bucket time.Duration) []store.OHLCBar {
	if len(bars) == 0 {
		return nil
	}
	sorted := make([]store.OHLCBar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	groups := map[time.Time][]store.OHLCBar{}
	var order []time.Time
	for _, b := range sorted {
		key := b.Timestamp.Truncate(bucket)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], b)
	}

	out := make([]store.OHLCBar, 0, len(order))
	for _, key := range order {
		out = append(out, resampleGroup(key, groups[key]))
	}
	return out
}

func resampleGroup(bucketStart time.Time, members []store.OHLCBar) store.OHLCBar {
	first, last := members[0], members[0]
	var high, low float64
	high, low = members[0].High, members[0].Low
	var tickCountRaw int64
	var tickCountStd int64
	var haveStd bool
	var rawSpreadSum, rawSpreadN float64
	var stdSpreadSum, stdSpreadN float64
	sessions := map[string]bool{}
	for _, key := range registry.Keys() {
		sessions[key] = false
	}
	isUS, isUK := false, false

	for _, m := range members {
		if m.Timestamp.Before(first.Timestamp) {
			first = m
		}
		if m.Timestamp.After(last.Timestamp) {
			last = m
		}
		if m.High > high {
			high = m.High
		}
		if m.Low < low {
			low = m.Low
		}
		tickCountRaw += m.TickCountRawSpread
		if m.RawSpreadAvg != nil {
			rawSpreadSum += *m.RawSpreadAvg
			rawSpreadN++
		}
		if m.TickCountStandard != nil {
			tickCountStd += *m.TickCountStandard
			haveStd = true
		}
		if m.StandardSpreadAvg != nil {
			stdSpreadSum += *m.StandardSpreadAvg
			stdSpreadN++
		}
		isUS = isUS || m.IsUSHoliday
		isUK = isUK || m.IsUKHoliday
		for key, open := range m.Sessions {
			sessions[key] = sessions[key] || open
		}
	}

	bar := store.OHLCBar{
		Timestamp:          bucketStart,
		Open:               first.Open,
		Close:              last.Close,
		High:                high,
		Low:                 low,
		TickCountRawSpread: tickCountRaw,
		NYHour:             first.NYHour,
		LondonHour:         first.LondonHour,
		NYSession:          first.NYSession,
		LondonSession:      first.LondonSession,
		IsUSHoliday:        isUS,
		IsUKHoliday:        isUK,
		IsMajorHoliday:     isUS && isUK,
		Sessions:           sessions,
	}

	if rawSpreadN > 0 {
		avg := rawSpreadSum / rawSpreadN
		bar.RawSpreadAvg = &avg
	}
	if haveStd {
		count := tickCountStd
		bar.TickCountStandard = &count
	}
	if stdSpreadN > 0 {
		avg := stdSpreadSum / stdSpreadN
		bar.StandardSpreadAvg = &avg

		if avg != 0 {
			rangeSpread := (high - low) / avg
			bodySpread := math.Abs(bar.Close-bar.Open) / avg
			bar.RangePerSpread = &rangeSpread
			bar.BodyPerSpread = &bodySpread
		}
		if haveStd && tickCountStd > 0 {
			rangeTick := (high - low) / float64(tickCountStd)
			bodyTick := math.Abs(bar.Close-bar.Open) / float64(tickCountStd)
			bar.RangePerTick = &rangeTick
			bar.BodyPerTick = &bodyTick
		}
	}

	return bar
}
