// Package registry is the Exchange Registry (C1): a read-only,
// process-lifetime table of the ten exchanges whose trading-session
// membership is tracked per OHLC bar (spec §4.1).
//
// Grounded on the teacher's publishers.go pattern of a single
// authoritative table plus a fail-loudly lookup function (compare
// PublisherFromString's default case), shrunk from a generated
// 2000-line switch to a map literal since ten entries do not warrant
// code generation.
package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Exchange is the immutable configuration for one registered exchange.
type Exchange struct {
	Key         string // lowercase registry key, e.g. "nyse"
	MIC         string // ISO 10383 Market Identifier Code, e.g. "XNYS"
	Name        string
	Timezone    string // IANA timezone, e.g. "America/New_York"
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
}

// SessionColumn returns the OHLC column name this exchange drives,
// e.g. "is_nyse_session" (§3, §9 code-generation design note).
func (e Exchange) SessionColumn() string { return "is_" + e.Key + "_session" }

// exchanges is the single source of truth driving (a) the OHLC table
// DDL, (b) the enrichment writer's column list, and (c) the Session
// Detector's output schema (§9). Adding an exchange is a one-line
// change here plus a schema migration.
var exchanges = map[string]Exchange{
	"nyse": {Key: "nyse", MIC: "XNYS", Name: "New York Stock Exchange", Timezone: "America/New_York", OpenHour: 9, OpenMinute: 30, CloseHour: 16, CloseMinute: 0},
	"lse":  {Key: "lse", MIC: "XLON", Name: "London Stock Exchange", Timezone: "Europe/London", OpenHour: 8, OpenMinute: 0, CloseHour: 16, CloseMinute: 30},
	"xswx": {Key: "xswx", MIC: "XSWX", Name: "SIX Swiss Exchange", Timezone: "Europe/Zurich", OpenHour: 9, OpenMinute: 0, CloseHour: 17, CloseMinute: 30},
	"xfra": {Key: "xfra", MIC: "XFRA", Name: "Frankfurt Stock Exchange", Timezone: "Europe/Berlin", OpenHour: 9, OpenMinute: 0, CloseHour: 17, CloseMinute: 30},
	"xtse": {Key: "xtse", MIC: "XTSE", Name: "Toronto Stock Exchange", Timezone: "America/Toronto", OpenHour: 9, OpenMinute: 30, CloseHour: 16, CloseMinute: 0},
	"xnze": {Key: "xnze", MIC: "XNZE", Name: "New Zealand Exchange", Timezone: "Pacific/Auckland", OpenHour: 10, OpenMinute: 0, CloseHour: 16, CloseMinute: 45},
	"xtks": {Key: "xtks", MIC: "XTKS", Name: "Tokyo Stock Exchange", Timezone: "Asia/Tokyo", OpenHour: 9, OpenMinute: 0, CloseHour: 15, CloseMinute: 0},
	"xasx": {Key: "xasx", MIC: "XASX", Name: "Australian Securities Exchange", Timezone: "Australia/Sydney", OpenHour: 10, OpenMinute: 0, CloseHour: 16, CloseMinute: 0},
	"xhkg": {Key: "xhkg", MIC: "XHKG", Name: "Hong Kong Stock Exchange", Timezone: "Asia/Hong_Kong", OpenHour: 9, OpenMinute: 30, CloseHour: 16, CloseMinute: 0},
	"xses": {Key: "xses", MIC: "XSES", Name: "Singapore Exchange", Timezone: "Asia/Singapore", OpenHour: 9, OpenMinute: 0, CloseHour: 17, CloseMinute: 0},
}

// orderedKeys is the canonical order used everywhere a list of 10 is
// needed: schema column order, session-detector output order, and the
// OHLC regeneration log's per-exchange counters.
var orderedKeys = func() []string {
	keys := make([]string, 0, len(exchanges))
	for k := range exchanges {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}()

// Lookup returns the exchange registered under key, or
// ErrUnknownExchange with the full valid-key list if absent. No
// silent fallbacks (§4.1).
func Lookup(key string) (Exchange, error) {
	ex, ok := exchanges[key]
	if !ok {
		return Exchange{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknownExchange, key, strings.Join(orderedKeys, ", "))
	}
	return ex, nil
}

// Keys returns the ten registry keys in canonical (sorted) order.
func Keys() []string {
	out := make([]string, len(orderedKeys))
	copy(out, orderedKeys)
	return out
}

// All returns every registered exchange in canonical key order.
func All() []Exchange {
	out := make([]Exchange, 0, len(orderedKeys))
	for _, k := range orderedKeys {
		out = append(out, exchanges[k])
	}
	return out
}

// Count is the number of registered exchanges; it drives the ten
// is_<key>_session OHLC columns (§3).
func Count() int { return len(exchanges) }
