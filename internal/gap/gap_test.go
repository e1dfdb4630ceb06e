package gap

import (
	"context"
	"testing"

	"github.com/neomantra/forexstore/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	store.Backend
	months []store.MonthKey
}

func (f *fakeBackend) DistinctMonths(ctx context.Context, instrument, variant string) ([]store.MonthKey, error) {
	return f.months, nil
}

func TestMissingMonths_EmptyStoreReturnsFullRange(t *testing.T) {
	d := New(&fakeBackend{}, func() (int, int) { return 2024, 10 })
	months, err := d.MissingMonths(context.Background(), "EURUSD", 2024, 8)
	require.NoError(t, err)
	require.Equal(t, []store.MonthKey{{2024, 8}, {2024, 9}, {2024, 10}}, months)
}

func TestMissingMonths_InteriorGap(t *testing.T) {
	backend := &fakeBackend{months: []store.MonthKey{{2024, 8}, {2024, 10}}}
	d := New(backend, func() (int, int) { return 2024, 11 })
	months, err := d.MissingMonths(context.Background(), "EURUSD", 2024, 8)
	require.NoError(t, err)
	require.Equal(t, []store.MonthKey{{2024, 9}, {2024, 11}}, months)
}

func TestMissingMonths_FullyCoveredReturnsEmpty(t *testing.T) {
	backend := &fakeBackend{months: []store.MonthKey{{2024, 8}, {2024, 9}}}
	d := New(backend, func() (int, int) { return 2024, 9 })
	months, err := d.MissingMonths(context.Background(), "EURUSD", 2024, 8)
	require.NoError(t, err)
	require.Empty(t, months)
}

func TestMissingMonths_SpansYearBoundary(t *testing.T) {
	backend := &fakeBackend{months: []store.MonthKey{{2024, 12}}}
	d := New(backend, func() (int, int) { return 2025, 2 })
	months, err := d.MissingMonths(context.Background(), "EURUSD", 2024, 11)
	require.NoError(t, err)
	require.Equal(t, []store.MonthKey{{2024, 11}, {2025, 1}, {2025, 2}}, months)
}
