package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neomantra/forexstore/internal/calendarx"
	"github.com/neomantra/forexstore/internal/fetch"
	"github.com/neomantra/forexstore/internal/gap"
	"github.com/neomantra/forexstore/internal/ohlc"
	"github.com/neomantra/forexstore/internal/store"
)

func buildZip(t *testing.T, csvName, csvBody string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(csvName)
	require.NoError(t, err)
	_, err = w.Write([]byte(csvBody))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// newTestServer serves one month of raw_spread and standard archives
// for EURUSD 2024-08, and 404s everything else.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	rawCSV := "Timestamp,Bid,Ask\n" +
		"2024-08-05 14:00:00.000,1.1000,1.1002\n" +
		"2024-08-05 14:00:10.000,1.1005,1.1007\n"
	stdCSV := "Timestamp,Bid,Ask\n" +
		"2024-08-05 13:59:00.000,1.1000,1.1001\n"

	rawZip := buildZip(t, "Exness_EURUSD_Raw_Spread_2024_08.csv", rawCSV)
	stdZip := buildZip(t, "Exness_EURUSD_2024_08.csv", stdCSV)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/EURUSD_Raw_Spread/2024/08/Exness_EURUSD_Raw_Spread_2024_08.zip":
			w.Write(rawZip)
		case "/EURUSD/2024/08/Exness_EURUSD_2024_08.zip":
			w.Write(stdZip)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestOrchestrator(t *testing.T, srv *httptest.Server) (*Orchestrator, store.Backend) {
	t.Helper()
	backend, err := store.OpenDuckStore(context.Background(), t.TempDir(), "EURUSD")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	detector := gap.New(backend, func() (int, int) { return 2024, 8 })
	fetcher := fetch.New(srv.URL, t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)), fetch.WithParallelism(2))

	cal, err := calendarx.New()
	require.NoError(t, err)
	engine, err := ohlc.New(backend, cal, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(backend, detector, fetcher, engine, logger), backend
}

func TestUpdate_FetchesDecodesStoresAndDerivesOHLC(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	o, backend := newTestOrchestrator(t, srv)
	report, err := o.Update(context.Background(), "EURUSD", 2024, 8, false)
	require.NoError(t, err)

	require.Equal(t, 1, report.MonthsAdded)
	require.EqualValues(t, 2, report.TicksAddedRaw)
	require.EqualValues(t, 1, report.TicksAddedStandard)
	require.Greater(t, report.OHLCBarsTotal, int64(0))

	bars, err := backend.ScanOHLC(context.Background(), "EURUSD", nil, nil)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	require.NotNil(t, bars[0].StandardSpreadAvg)
}

func TestUpdate_NoMissingMonthsIsNoOp(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	o, _ := newTestOrchestrator(t, srv)
	ctx := context.Background()

	_, err := o.Update(ctx, "EURUSD", 2024, 8, false)
	require.NoError(t, err)

	report, err := o.Update(ctx, "EURUSD", 2024, 8, false)
	require.NoError(t, err)
	require.Equal(t, 0, report.MonthsAdded)
}

func TestUpdate_MissingArchiveSkipsMonth(t *testing.T) {
	// No archives at all: every missing month 404s and is skipped.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	o, _ := newTestOrchestrator(t, srv)
	report, err := o.Update(context.Background(), "EURUSD", 2024, 8, false)
	require.NoError(t, err)
	require.Equal(t, 0, report.MonthsAdded)
}

func TestUpdate_ForceRedownloadRefetchesCoveredMonth(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	o, _ := newTestOrchestrator(t, srv)
	ctx := context.Background()

	first, err := o.Update(ctx, "EURUSD", 2024, 8, false)
	require.NoError(t, err)
	require.Equal(t, 1, first.MonthsAdded)

	// Gap Detector alone would see nothing missing; force_redownload
	// requests the month anyway (served here from the fetcher's scratch
	// cache; dedup still means 0 new rows land).
	second, err := o.Update(ctx, "EURUSD", 2024, 8, true)
	require.NoError(t, err)
	require.Equal(t, 1, second.MonthsAdded)
	require.EqualValues(t, 0, second.TicksAddedRaw)
}

func TestUpdate_UnknownInstrumentRejected(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	o, _ := newTestOrchestrator(t, srv)
	_, err := o.Update(context.Background(), "NOTREAL", 2024, 8, false)
	require.Error(t, err)
}

func TestUpdate_TransportErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	backend, err := store.OpenDuckStore(context.Background(), t.TempDir(), "EURUSD")
	require.NoError(t, err)
	defer backend.Close()

	detector := gap.New(backend, func() (int, int) { return 2024, 8 })
	fetcher := fetch.New(srv.URL, t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)), fetch.WithMaxRetries(0))
	cal, err := calendarx.New()
	require.NoError(t, err)
	engine, err := ohlc.New(backend, cal, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	o := New(backend, detector, fetcher, engine, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err = o.Update(context.Background(), "EURUSD", 2024, 8, false)
	require.Error(t, err)
}
