// Package forexstore ingests monthly forex tick archives into a
// per-instrument tick store and derives a dense one-minute OHLC table
// enriched with spread statistics, microstructure metrics, and global
// exchange session/holiday flags.
package forexstore

import "sort"

// Variant distinguishes the two tick flavors the archive mirror
// publishes per instrument per month (GLOSSARY).
type Variant string

const (
	// VariantRawSpread holds execution prices; ask == bid is common
	// (zero-spread execution ticks).
	VariantRawSpread Variant = "raw_spread"
	// VariantStandard holds traditional quotes; ask > bid always holds.
	VariantStandard Variant = "standard"
)

// ArchiveSuffix returns the upstream URL path component for the
// variant, e.g. "EURUSD" for standard and "EURUSD_Raw_Spread" for
// raw_spread (§6).
func (v Variant) ArchiveSuffix(instrument string) string {
	if v == VariantRawSpread {
		return instrument + "_Raw_Spread"
	}
	return instrument
}

// TableName returns the backing tick table name for the variant.
func (v Variant) TableName() string {
	if v == VariantRawSpread {
		return "raw_spread_ticks"
	}
	return "standard_ticks"
}

func (v Variant) Valid() bool {
	return v == VariantRawSpread || v == VariantStandard
}

// ParseVariant validates a variant string, failing loudly on anything
// outside the enumerated set (§3 instrument catalogue is closed; the
// same discipline applies to variants).
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if !v.Valid() {
		return "", invalidVariantError(s)
	}
	return v, nil
}

// Timeframe is one of the seven OHLC aggregation windows the Query
// Facade understands (§4.7).
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeSeconds = map[Timeframe]int64{
	Timeframe1m:  60,
	Timeframe5m:  5 * 60,
	Timeframe15m: 15 * 60,
	Timeframe30m: 30 * 60,
	Timeframe1h:  60 * 60,
	Timeframe4h:  4 * 60 * 60,
	Timeframe1d:  24 * 60 * 60,
}

// Seconds returns the bucket width in seconds.
func (t Timeframe) Seconds() int64 { return timeframeSeconds[t] }

func (t Timeframe) Valid() bool {
	_, ok := timeframeSeconds[t]
	return ok
}

// Timeframes returns the enumerated set in canonical order, used for
// error messages and exhaustive tests.
func Timeframes() []Timeframe {
	return []Timeframe{Timeframe1m, Timeframe5m, Timeframe15m, Timeframe30m, Timeframe1h, Timeframe4h, Timeframe1d}
}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	t := Timeframe(s)
	if !t.Valid() {
		return "", invalidTimeframeError(s)
	}
	return t, nil
}

// instrumentCatalogue is the closed set of accepted symbols (§3). It
// mirrors a real broker mirror's forex + metals product list; adding a
// symbol is a one-line change here, same discipline as the exchange
// registry (internal/registry).
var instrumentCatalogue = map[string]struct{}{
	"EURUSD": {}, "GBPUSD": {}, "USDJPY": {}, "USDCHF": {}, "USDCAD": {},
	"AUDUSD": {}, "NZDUSD": {}, "EURGBP": {}, "EURJPY": {}, "GBPJPY": {},
	"EURCHF": {}, "AUDJPY": {}, "EURAUD": {}, "XAUUSD": {}, "XAGUSD": {},
}

// Instruments returns the instrument catalogue sorted ascending.
func Instruments() []string {
	out := make([]string, 0, len(instrumentCatalogue))
	for k := range instrumentCatalogue {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ValidateInstrument rejects any symbol outside the enumerated set
// with ErrInvalidInstrument (§3, §7).
func ValidateInstrument(symbol string) error {
	if _, ok := instrumentCatalogue[symbol]; !ok {
		return invalidInstrumentError(symbol)
	}
	return nil
}
