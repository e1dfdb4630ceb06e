package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (*Fetcher, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	f := New(srv.URL, t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithTimeout(2*time.Second), WithParallelism(2))
	return f, srv.Close
}

func TestFetch_Success(t *testing.T) {
	var gotPath string
	f, closeSrv := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("zip-bytes"))
	})
	defer closeSrv()

	handle, err := f.Fetch(context.Background(), "EURUSD", "raw_spread", 2024, 8)
	require.NoError(t, err)
	require.Equal(t, []byte("zip-bytes"), handle.Data)
	require.False(t, handle.FromCache)
	require.Equal(t, "/EURUSD_Raw_Spread/2024/08/Exness_EURUSD_Raw_Spread_2024_08.zip", gotPath)
}

func TestFetch_NotFound(t *testing.T) {
	f, closeSrv := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer closeSrv()

	_, err := f.Fetch(context.Background(), "EURUSD", "standard", 2024, 8)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFetch_TransportError(t *testing.T) {
	f, closeSrv := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	f.client.RetryMax = 0
	defer closeSrv()

	_, err := f.Fetch(context.Background(), "EURUSD", "standard", 2024, 8)
	var te *TransportErr
	require.ErrorAs(t, err, &te)
	require.Equal(t, "EURUSD", te.Instrument)
}

func TestFetch_CacheHit(t *testing.T) {
	calls := 0
	f, closeSrv := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("zip-bytes"))
	})
	defer closeSrv()

	_, err := f.Fetch(context.Background(), "EURUSD", "raw_spread", 2024, 8)
	require.NoError(t, err)

	handle, err := f.Fetch(context.Background(), "EURUSD", "raw_spread", 2024, 8)
	require.NoError(t, err)
	require.True(t, handle.FromCache)
	require.Equal(t, 1, calls)
}
