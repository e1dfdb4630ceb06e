package orchestrator

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/neomantra/forexstore/internal/store"
	"github.com/neomantra/forexstore/internal/tickio"
)

// tickRowsFromBatch materializes a decoded arrow batch into the plain
// row slice the Backend.Append API accepts.
func tickRowsFromBatch(batch *tickio.TickBatch) []store.TickRow {
	n := int(batch.NumRows())
	if n == 0 {
		return nil
	}
	rec := batch.Record
	tsCol := rec.Column(0).(*array.Timestamp)
	bidCol := rec.Column(1).(*array.Float64)
	askCol := rec.Column(2).(*array.Float64)

	rows := make([]store.TickRow, n)
	for i := 0; i < n; i++ {
		rows[i] = store.TickRow{
			Instrument: batch.Instrument,
			Timestamp:  time.UnixMicro(int64(tsCol.Value(i))).UTC(),
			Bid:        bidCol.Value(i),
			Ask:        askCol.Value(i),
		}
	}
	return rows
}
