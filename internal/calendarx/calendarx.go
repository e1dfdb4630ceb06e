// Package calendarx is the Session Detector (C2): it classifies each
// UTC minute as holiday/session membership for the ten registered
// exchanges (spec §4.2).
//
// No library in the available dependency set offers exchange trading
// calendars (the original Python leans on the off-the-shelf
// exchange_calendars package; nothing comparable ships for Go in this
// stack), so this component is deliberately built on the standard
// library's time.LoadLocation plus hand-authored holiday/session rule
// tables, rather than forced onto an unrelated third-party dependency.
// See DESIGN.md for the full justification.
package calendarx

import (
	"fmt"
	"time"

	"github.com/neomantra/forexstore/internal/registry"
)

// Flags is the holiday/session classification for one UTC minute.
type Flags struct {
	IsUSHoliday    bool
	IsUKHoliday    bool
	IsMajorHoliday bool
	Sessions       map[string]bool // registry key -> is_<key>_session
}

// Detector classifies minutes against the registered exchanges' rule
// tables. It is stateless and safe for concurrent use once built.
type Detector struct {
	locations map[string]*time.Location
	exchanges []registry.Exchange
}

// New loads the IANA locations for every registered exchange. It
// fails loudly (no silent fallback) if a timezone cannot be loaded,
// matching the calendar-initialization availability rule in §4.2.
func New() (*Detector, error) {
	exs := registry.All()
	locs := make(map[string]*time.Location, len(exs))
	for _, ex := range exs {
		loc, err := time.LoadLocation(ex.Timezone)
		if err != nil {
			return nil, fmt.Errorf("calendarx: loading location %q for %s: %w", ex.Timezone, ex.Key, err)
		}
		locs[ex.Key] = loc
	}
	return &Detector{locations: locs, exchanges: exs}, nil
}

// Classify returns the holiday/session flags for the UTC instant ts.
// Holiday flags are false on UTC Saturdays and Sundays. Each session
// flag is false on Saturdays and Sundays in that exchange's own
// timezone, so a late-Sunday UTC minute can already be a Monday
// session minute for an exchange east of UTC (e.g. xnze).
func (d *Detector) Classify(ts time.Time) Flags {
	ts = ts.UTC()
	f := Flags{
		IsUSHoliday: isUSHoliday(ts),
		IsUKHoliday: isUKHoliday(ts),
		Sessions:    make(map[string]bool, len(d.exchanges)),
	}
	f.IsMajorHoliday = f.IsUSHoliday && f.IsUKHoliday

	for _, ex := range d.exchanges {
		f.Sessions[ex.Key] = d.isSessionMinute(ex, ts)
	}
	return f
}

// isSessionMinute reports whether ts falls within ex's regular
// trading session, honoring weekends, the exchange's own holiday
// calendar, and known lunch breaks (§4.2).
func (d *Detector) isSessionMinute(ex registry.Exchange, ts time.Time) bool {
	loc := d.locations[ex.Key]
	local := ts.In(loc)

	wd := local.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}

	if isExchangeHoliday(ex.Key, local) {
		return false
	}

	openMinutes := ex.OpenHour*60 + ex.OpenMinute
	closeMinutes := ex.CloseHour*60 + ex.CloseMinute
	nowMinutes := local.Hour()*60 + local.Minute()

	if nowMinutes < openMinutes || nowMinutes >= closeMinutes {
		return false
	}

	if lb, ok := lunchBreaks[ex.Key]; ok {
		lbStart := lb.startHour*60 + lb.startMinute
		lbEnd := lb.endHour*60 + lb.endMinute
		if nowMinutes >= lbStart && nowMinutes < lbEnd {
			return false
		}
	}

	return true
}

type lunchBreak struct {
	startHour, startMinute, endHour, endMinute int
}

// lunchBreaks lists the exchanges with a midday trading halt (§4.2).
var lunchBreaks = map[string]lunchBreak{
	"xtks": {11, 30, 12, 30}, // Tokyo
	"xhkg": {12, 0, 13, 0},   // Hong Kong
	"xses": {12, 0, 13, 0},   // Singapore
}
