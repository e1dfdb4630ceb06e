// Package fetch implements the Downloader (C4): it fetches monthly
// tick archives from the broker mirror over HTTP, honoring the
// bounded-concurrency and deadline rules of spec §5.
//
// Adapted from the teacher's internal/tui/download_manager.go
// (queued/active download bookkeeping, retryablehttp client,
// temp-file-then-rename writes) collapsed from a TUI-driven queue into
// a plain bounded worker pool, since there is no progress UI to drive
// here.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/neomantra/forexstore"
)

// ArchiveHandle holds one downloaded archive's bytes in memory (Data).
// A copy is kept zstd-compressed in the scratch cache; the handle
// itself owns no file or other resource to release.
type ArchiveHandle struct {
	Instrument string
	Variant    string
	Year       int
	Month      int
	Data       []byte
	FromCache  bool
}

// Fetcher fetches monthly archives for the given base URL template.
//
//	<base>/<symbol_with_variant>/<year>/<2-digit-month>/<archive_name>.zip
type Fetcher struct {
	baseURL    string // e.g. https://ticks.ex2archive.com/ticks
	baseDir    string // scratch root
	timeout    time.Duration
	maxRetries int
	sem        chan struct{}
	logger     *slog.Logger
	client     *retryablehttp.Client
}

// Option configures a Fetcher.
type Option func(*Fetcher)

func WithTimeout(d time.Duration) Option { return func(f *Fetcher) { f.timeout = d } }
func WithMaxRetries(n int) Option        { return func(f *Fetcher) { f.maxRetries = n } }
func WithParallelism(n int) Option {
	return func(f *Fetcher) {
		if n < 1 {
			n = 1
		}
		f.sem = make(chan struct{}, n)
	}
}

// New constructs a Fetcher. archiveBaseURL and baseDir are required
// (§6 configuration has no hidden defaults for either).
func New(archiveBaseURL, baseDir string, logger *slog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		baseURL:    archiveBaseURL,
		baseDir:    baseDir,
		timeout:    120 * time.Second,
		maxRetries: 10,
		sem:        make(chan struct{}, 4),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	client := retryablehttp.NewClient()
	client.RetryMax = f.maxRetries
	client.Logger = nil // silent; we log ourselves via slog below
	f.client = client
	return f
}

// archiveURL builds the fully qualified URL for one (instrument,
// variant, year, month) per §6.
func archiveURL(baseURL, instrument, variant string, year, month int) string {
	symbol := forexstore.Variant(variant).ArchiveSuffix(instrument)
	return fmt.Sprintf("%s/%s/%04d/%02d/Exness_%s_%04d_%02d.zip",
		baseURL, symbol, year, month, symbol, year, month)
}

// Fetch downloads (or serves from the scratch cache) one monthly
// archive. It acquires a slot from the bounded worker pool for the
// duration of the network call, so callers may invoke Fetch
// concurrently up to the configured parallelism (§5).
//
// A 404 is reported as ErrNotFound and is non-fatal for the month; any
// other transport failure, including a context deadline, is reported
// as *TransportErr and is fatal for the whole run (§5, §7).
func (f *Fetcher) Fetch(ctx context.Context, instrument, variant string, year, month int) (*ArchiveHandle, error) {
	cachePath := scratchPath(f.baseDir, instrument, variant, year, month)
	if data, ok, err := readScratch(cachePath); err != nil {
		f.logger.Warn("scratch cache read failed, refetching", "path", cachePath, "error", err)
	} else if ok {
		return &ArchiveHandle{Instrument: instrument, Variant: variant, Year: year, Month: month, Data: data, FromCache: true}, nil
	}

	select {
	case f.sem <- struct{}{}:
		defer func() { <-f.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	url := archiveURL(f.baseURL, instrument, variant, year, month)

	dlCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(dlCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportErr{Instrument: instrument, Variant: variant, Year: year, Month: month, URL: url, Err: err}
	}

	f.logger.Info("fetching archive", "instrument", instrument, "variant", variant, "year", year, "month", month, "url", url)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportErr{Instrument: instrument, Variant: variant, Year: year, Month: month, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		f.logger.Warn("archive not found, month will be skipped", "instrument", instrument, "variant", variant, "year", year, "month", month, "url", url)
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportErr{Instrument: instrument, Variant: variant, Year: year, Month: month, URL: url,
			Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportErr{Instrument: instrument, Variant: variant, Year: year, Month: month, URL: url, Err: err}
	}

	if err := writeScratch(cachePath, data); err != nil {
		f.logger.Warn("failed to write scratch cache", "path", cachePath, "error", err)
	}

	return &ArchiveHandle{Instrument: instrument, Variant: variant, Year: year, Month: month, Data: data}, nil
}
