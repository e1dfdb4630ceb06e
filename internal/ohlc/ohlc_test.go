package ohlc

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/neomantra/forexstore/internal/calendarx"
	"github.com/neomantra/forexstore/internal/store"
	"github.com/stretchr/testify/require"
)

// memBackend is a minimal in-memory store.Backend for exercising the
// engine's aggregation and asof-join logic without a real database.
type memBackend struct {
	raw, std   []store.TickRow
	bars       map[time.Time]store.OHLCBar
	deleteLog  [][2]time.Time
}

func newMemBackend() *memBackend { return &memBackend{bars: map[time.Time]store.OHLCBar{}} }

func (m *memBackend) Append(ctx context.Context, instrument, variant string, rows []store.TickRow) (int64, error) {
	return 0, nil
}
func (m *memBackend) Count(ctx context.Context, instrument, variant string) (int64, error) { return 0, nil }
func (m *memBackend) Range(ctx context.Context, instrument, variant string) (*time.Time, *time.Time, error) {
	return nil, nil, nil
}
func (m *memBackend) DistinctMonths(ctx context.Context, instrument, variant string) ([]store.MonthKey, error) {
	return nil, nil
}
func (m *memBackend) DeleteOHLCRange(ctx context.Context, instrument string, start, end time.Time) error {
	m.deleteLog = append(m.deleteLog, [2]time.Time{start, end})
	for k := range m.bars {
		if !k.Before(start) && k.Before(end) {
			delete(m.bars, k)
		}
	}
	return nil
}
func (m *memBackend) UpsertOHLC(ctx context.Context, instrument string, bars []store.OHLCBar) error {
	for _, b := range bars {
		m.bars[b.Timestamp] = b
	}
	return nil
}
func (m *memBackend) ScanOHLC(ctx context.Context, instrument string, start, end *time.Time) ([]store.OHLCBar, error) {
	var out []store.OHLCBar
	for _, b := range m.bars {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
func (m *memBackend) StorageSizeBytes(ctx context.Context, instrument string) (int64, error) { return 0, nil }
func (m *memBackend) Close() error                                                           { return nil }

func (m *memBackend) Scan(ctx context.Context, instrument, variant string, start, end *time.Time) (store.TickRowIterator, error) {
	src := m.raw
	if variant == "standard" {
		src = m.std
	}
	var filtered []store.TickRow
	for _, r := range src {
		if start != nil && r.Timestamp.Before(*start) {
			continue
		}
		if end != nil && !r.Timestamp.Before(*end) {
			continue
		}
		filtered = append(filtered, r)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Timestamp.Before(filtered[j].Timestamp) })
	return &memIterator{rows: filtered, idx: -1}, nil
}

type memIterator struct {
	rows []store.TickRow
	idx  int
}

func (it *memIterator) Next() bool { it.idx++; return it.idx < len(it.rows) }
func (it *memIterator) Row() store.TickRow { return it.rows[it.idx] }
func (it *memIterator) Err() error         { return nil }
func (it *memIterator) Close() error       { return nil }

func tick(sec int, bid, ask float64) store.TickRow {
	return store.TickRow{Instrument: "EURUSD", Timestamp: time.Date(2024, 8, 5, 14, 0, sec, 0, time.UTC), Bid: bid, Ask: ask}
}

func newTestEngine(t *testing.T, backend store.Backend) *Engine {
	t.Helper()
	det, err := calendarx.New()
	require.NoError(t, err)
	e, err := New(backend, det, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return e
}

func TestRegenerate_BasicAggregation(t *testing.T) {
	b := newMemBackend()
	b.raw = []store.TickRow{tick(0, 1.1000, 1.1002), tick(10, 1.1005, 1.1007), tick(20, 1.0998, 1.1000)}
	b.std = []store.TickRow{{Instrument: "EURUSD", Timestamp: time.Date(2024, 8, 5, 13, 59, 0, 0, time.UTC), Bid: 1.1000, Ask: 1.1001}}

	e := newTestEngine(t, b)
	n, err := e.Regenerate(context.Background(), "EURUSD", nil, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	bars, err := b.ScanOHLC(context.Background(), "EURUSD", nil, nil)
	require.NoError(t, err)
	require.Len(t, bars, 1)

	bar := bars[0]
	require.InDelta(t, 1.1000, bar.Open, 1e-9)
	require.InDelta(t, 1.0998, bar.Low, 1e-9)
	require.InDelta(t, 1.1005, bar.High, 1e-9)
	require.InDelta(t, 1.0998, bar.Close, 1e-9)
	require.EqualValues(t, 3, bar.TickCountRawSpread)
	require.NotNil(t, bar.StandardSpreadAvg)
	// Only one standard tick exists; it is the asof match for all three
	// raw ticks but counts once as a matched row, not once per raw tick.
	require.EqualValues(t, 1, *bar.TickCountStandard)
}

func TestRegenerate_TickCountStandardCountsDistinctMatchedRows(t *testing.T) {
	b := newMemBackend()
	b.raw = []store.TickRow{tick(0, 1.1000, 1.1002), tick(10, 1.1005, 1.1007), tick(20, 1.0998, 1.1000)}
	b.std = []store.TickRow{
		{Instrument: "EURUSD", Timestamp: time.Date(2024, 8, 5, 13, 59, 0, 0, time.UTC), Bid: 1.1000, Ask: 1.1001},
		{Instrument: "EURUSD", Timestamp: time.Date(2024, 8, 5, 14, 0, 5, 0, time.UTC), Bid: 1.1001, Ask: 1.1003},
		{Instrument: "EURUSD", Timestamp: time.Date(2024, 8, 5, 14, 0, 15, 0, time.UTC), Bid: 1.1004, Ask: 1.1006},
	}

	e := newTestEngine(t, b)
	_, err := e.Regenerate(context.Background(), "EURUSD", nil, nil)
	require.NoError(t, err)

	bars, err := b.ScanOHLC(context.Background(), "EURUSD", nil, nil)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	require.NotNil(t, bars[0].TickCountStandard)
	// Three standard ticks precede ticks in this minute and each becomes
	// the asof match for at least one raw tick: 3 distinct matched rows,
	// not 3 raw ticks times however many standard ticks preceded them.
	require.EqualValues(t, 3, *bars[0].TickCountStandard)
}

func TestRegenerate_NoStandardMatchLeavesNormalizedMetricsNull(t *testing.T) {
	b := newMemBackend()
	b.raw = []store.TickRow{tick(0, 1.1000, 1.1002)}
	// no standard ticks at all: no preceding match possible.

	e := newTestEngine(t, b)
	_, err := e.Regenerate(context.Background(), "EURUSD", nil, nil)
	require.NoError(t, err)

	bars, _ := b.ScanOHLC(context.Background(), "EURUSD", nil, nil)
	require.Len(t, bars, 1)
	require.Nil(t, bars[0].StandardSpreadAvg)
	require.Nil(t, bars[0].RangePerSpread)
	require.Nil(t, bars[0].RangePerTick)
	require.Nil(t, bars[0].BodyPerSpread)
	require.Nil(t, bars[0].BodyPerTick)
}

func TestRegenerate_FullRebuildDeletesExisting(t *testing.T) {
	b := newMemBackend()
	b.bars[time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)] = store.OHLCBar{Timestamp: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	b.raw = []store.TickRow{tick(0, 1.1, 1.11)}

	e := newTestEngine(t, b)
	_, err := e.Regenerate(context.Background(), "EURUSD", nil, nil)
	require.NoError(t, err)

	bars, _ := b.ScanOHLC(context.Background(), "EURUSD", nil, nil)
	for _, bar := range bars {
		require.NotEqual(t, 2020, bar.Timestamp.Year())
	}
}

func TestRegenerate_RangeRepairScopesDelete(t *testing.T) {
	b := newMemBackend()
	e := newTestEngine(t, b)
	start := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC)
	_, err := e.Regenerate(context.Background(), "EURUSD", &start, &end)
	require.NoError(t, err)
	require.Len(t, b.deleteLog, 1)
	require.True(t, b.deleteLog[0][0].Equal(start))
	require.True(t, b.deleteLog[0][1].Equal(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRegenerate_EndWithoutStartRejected(t *testing.T) {
	b := newMemBackend()
	e := newTestEngine(t, b)
	end := time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC)
	_, err := e.Regenerate(context.Background(), "EURUSD", nil, &end)
	require.Error(t, err)
}

func TestRegenerate_WeekendBarHasZeroSessionFlags(t *testing.T) {
	b := newMemBackend()
	// 2024-08-03 is a Saturday.
	b.raw = []store.TickRow{{Instrument: "EURUSD", Timestamp: time.Date(2024, 8, 3, 10, 0, 0, 0, time.UTC), Bid: 1.1, Ask: 1.11}}

	e := newTestEngine(t, b)
	_, err := e.Regenerate(context.Background(), "EURUSD", nil, nil)
	require.NoError(t, err)

	bars, _ := b.ScanOHLC(context.Background(), "EURUSD", nil, nil)
	require.Len(t, bars, 1)
	for _, open := range bars[0].Sessions {
		require.False(t, open)
	}
}
