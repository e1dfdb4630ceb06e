// Package tickio is the Tick Decoder (C3): it parses a monthly ZIP
// archive into a typed, arrow-backed batch of ticks (spec §4.3).
//
// Grounded on the teacher's internal/file/parquet_writer.go use of
// apache/arrow-go for typed columnar buffers, adapted from writing
// Parquet row groups to building an in-memory arrow.Record, which the
// orchestrator converts to store.TickRow values for the Tick Store.
package tickio

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Schema is the arrow schema of a decoded tick batch: microsecond UTC
// timestamp, bid, ask (§3, §4.3).
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "timestamp", Type: arrow.FixedWidthTypes.Timestamp_us},
	{Name: "bid", Type: arrow.PrimitiveTypes.Float64},
	{Name: "ask", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// TickBatch is a decoded monthly archive, ready for the Tick Store to
// append. Callers MUST call Release exactly once.
type TickBatch struct {
	Instrument string
	Variant    string
	Year       int
	Month      int
	Record     arrow.Record
}

// Release frees the underlying arrow buffers.
func (b *TickBatch) Release() {
	if b.Record != nil {
		b.Record.Release()
	}
}

// NumRows returns the number of ticks in the batch.
func (b *TickBatch) NumRows() int64 {
	if b.Record == nil {
		return 0
	}
	return b.Record.NumRows()
}

// timestampLayouts are tried in order against each raw Timestamp
// field. Exness archives have shipped with both dot- and
// hyphen-separated dates across years; both are accepted so a decode
// does not fail on a format change that still resolves to an instant.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006.01.02 15:04:05.000",
	"2006.01.02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

// Decode parses the single CSV member of a ZIP archive into a
// TickBatch. Required columns are Timestamp, Bid, Ask (case-sensitive,
// any order, extra columns ignored); any parse failure returns
// *MalformedArchiveError (§4.3).
func Decode(data []byte, instrument, variant string, year, month int) (*TickBatch, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &MalformedArchiveError{Instrument: instrument, Variant: variant, Year: year, Month: month, Reason: "not a valid zip archive", Err: err}
	}

	csvFile, err := soleCSVMember(zr)
	if err != nil {
		return nil, &MalformedArchiveError{Instrument: instrument, Variant: variant, Year: year, Month: month, Reason: err.Error()}
	}

	rc, err := csvFile.Open()
	if err != nil {
		return nil, &MalformedArchiveError{Instrument: instrument, Variant: variant, Year: year, Month: month, Reason: "cannot open csv member", Err: err}
	}
	defer rc.Close()

	return decodeCSV(rc, instrument, variant, year, month)
}

func soleCSVMember(zr *zip.Reader) (*zip.File, error) {
	var csvFiles []*zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			csvFiles = append(csvFiles, f)
		}
	}
	switch len(csvFiles) {
	case 0:
		return nil, fmt.Errorf("archive contains no csv member")
	case 1:
		return csvFiles[0], nil
	default:
		return nil, fmt.Errorf("archive contains %d csv members, expected exactly one", len(csvFiles))
	}
}

func decodeCSV(r io.Reader, instrument, variant string, year, month int) (*TickBatch, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, &MalformedArchiveError{Instrument: instrument, Variant: variant, Year: year, Month: month, Reason: "cannot read csv header", Err: err}
	}

	idx := map[string]int{}
	for i, col := range header {
		idx[col] = i
	}
	tsCol, ok1 := idx["Timestamp"]
	bidCol, ok2 := idx["Bid"]
	askCol, ok3 := idx["Ask"]
	if !ok1 || !ok2 || !ok3 {
		return nil, &MalformedArchiveError{Instrument: instrument, Variant: variant, Year: year, Month: month,
			Reason: fmt.Sprintf("missing required column(s) in %v, need Timestamp, Bid, Ask", header)}
	}

	pool := memory.NewGoAllocator()
	tsBuilder := array.NewTimestampBuilder(pool, arrow.FixedWidthTypes.Timestamp_us.(*arrow.TimestampType))
	bidBuilder := array.NewFloat64Builder(pool)
	askBuilder := array.NewFloat64Builder(pool)
	defer tsBuilder.Release()
	defer bidBuilder.Release()
	defer askBuilder.Release()

	row := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &MalformedArchiveError{Instrument: instrument, Variant: variant, Year: year, Month: month,
				Reason: fmt.Sprintf("csv parse error at row %d", row), Err: err}
		}
		row++

		ts, err := parseTimestamp(rec[tsCol])
		if err != nil {
			return nil, &MalformedArchiveError{Instrument: instrument, Variant: variant, Year: year, Month: month,
				Reason: fmt.Sprintf("row %d: %v", row, err)}
		}

		bid, err := strconv.ParseFloat(strings.TrimSpace(rec[bidCol]), 64)
		if err != nil {
			return nil, &MalformedArchiveError{Instrument: instrument, Variant: variant, Year: year, Month: month,
				Reason: fmt.Sprintf("row %d: non-numeric bid %q", row, rec[bidCol])}
		}
		ask, err := strconv.ParseFloat(strings.TrimSpace(rec[askCol]), 64)
		if err != nil {
			return nil, &MalformedArchiveError{Instrument: instrument, Variant: variant, Year: year, Month: month,
				Reason: fmt.Sprintf("row %d: non-numeric ask %q", row, rec[askCol])}
		}
		if math.IsNaN(bid) || math.IsNaN(ask) {
			return nil, &MalformedArchiveError{Instrument: instrument, Variant: variant, Year: year, Month: month,
				Reason: fmt.Sprintf("row %d: NaN price", row)}
		}
		if bid < 0 || ask < 0 {
			return nil, &MalformedArchiveError{Instrument: instrument, Variant: variant, Year: year, Month: month,
				Reason: fmt.Sprintf("row %d: negative price (bid=%v ask=%v)", row, bid, ask)}
		}

		tsBuilder.Append(arrow.Timestamp(ts.UnixMicro()))
		bidBuilder.Append(bid)
		askBuilder.Append(ask)
	}

	tsArr := tsBuilder.NewArray()
	bidArr := bidBuilder.NewArray()
	askArr := askBuilder.NewArray()

	record := array.NewRecord(Schema, []arrow.Array{tsArr, bidArr, askArr}, int64(row))
	tsArr.Release()
	bidArr.Release()
	askArr.Release()

	return &TickBatch{Instrument: instrument, Variant: variant, Year: year, Month: month, Record: record}, nil
}
