package calendarx

import (
	"sync"
	"time"
)

// Each registered exchange's holiday calendar is precomputed per
// calendar year into a day-level set the first time that year is
// requested, then cached: the rule tables below are written for the
// ~2015-2035 window these archives cover (§4.2), and are costly to
// recompute per-minute. holidayMu guards the shared cache since
// Detector.Classify (and therefore this package) is documented as
// safe for concurrent use across instrument pipelines (§5).
//
// Lunar-calendar holidays (Lunar New Year, Vesak Day, Mid-Autumn
// Festival, Deepavali, and similar) are not covered for xhkg/xses/xtks:
// they require a lunisolar calendar computation this package does not
// implement, so those exchanges' session flags under-report closures
// on lunar holidays. Every registered exchange's Gregorian fixed-date
// and Easter-relative closures are covered; Tokyo's equinox days are
// not (see tokyoDates).

var (
	holidayMu    sync.Mutex
	holidayCache = map[string]map[int]map[time.Time]bool{}
)

// yearDates returns the holiday dates observed by one calendar in a
// given year.
type yearDates func(year int) []time.Time

// holidaySet returns (computing and caching on first use) the set of
// holiday dates for calKey in year.
func holidaySet(calKey string, gen yearDates, year int) map[time.Time]bool {
	holidayMu.Lock()
	defer holidayMu.Unlock()

	byYear, ok := holidayCache[calKey]
	if !ok {
		byYear = map[int]map[time.Time]bool{}
		holidayCache[calKey] = byYear
	}
	if set, ok := byYear[year]; ok {
		return set
	}

	dates := gen(year)
	set := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		set[d] = true
	}
	byYear[year] = set
	return set
}

func dateOnly(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// observedUS shifts a fixed holiday that fell on a weekend to the
// adjacent weekday, per the US federal/NYSE observance convention:
// Saturday -> preceding Friday, Sunday -> following Monday.
func observedUS(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}

// observeForward rolls a date on a Saturday or Sunday to the next
// Monday, the convention most non-US markets use for fixed holidays.
func observeForward(d time.Time) time.Time {
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// observePairForward applies observeForward to two adjacent holidays
// (e.g. Christmas/Boxing Day) while preserving their order: if the
// roll-forward of the first collides with or passes the second, the
// second is pushed out one more day.
func observePairForward(first, second time.Time) (time.Time, time.Time) {
	obsFirst := observeForward(first)
	obsSecond := observeForward(second)
	if !obsSecond.After(obsFirst) {
		obsSecond = observeForward(obsFirst.AddDate(0, 0, 1))
	}
	return obsFirst, obsSecond
}

// nthWeekdayOfMonth returns the date of the nth occurrence (1-based)
// of weekday wd in month m of year y. n may be negative to count from
// the end of the month (-1 == last).
func nthWeekdayOfMonth(y int, m time.Month, wd time.Weekday, n int) time.Time {
	if n > 0 {
		first := dateOnly(y, m, 1)
		offset := (int(wd) - int(first.Weekday()) + 7) % 7
		return first.AddDate(0, 0, offset+7*(n-1))
	}
	// last occurrence: start from the last day of the month and walk back.
	firstOfNext := dateOnly(y, m+1, 1)
	last := firstOfNext.AddDate(0, 0, -1)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -offset+7*(n+1))
}

// mondayOnOrBefore returns the Monday falling on or before the given
// date, used for Canada's Victoria Day (the Monday on or before May 24).
func mondayOnOrBefore(y int, m time.Month, d int) time.Time {
	date := dateOnly(y, m, d)
	offset := (int(date.Weekday()) - int(time.Monday) + 7) % 7
	return date.AddDate(0, 0, -offset)
}

// easterSunday computes the Gregorian Easter Sunday date for year y
// using the anonymous Gregorian algorithm (Meeus/Jones/Butcher).
func easterSunday(y int) time.Time {
	a := y % 19
	b := y / 100
	c := y % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return dateOnly(y, time.Month(month), day)
}

func usDates(year int) []time.Time {
	dates := []time.Time{
		observedUS(dateOnly(year, time.January, 1)),
		nthWeekdayOfMonth(year, time.January, time.Monday, 3),  // MLK Day
		nthWeekdayOfMonth(year, time.February, time.Monday, 3), // Washington's Birthday
		easterSunday(year).AddDate(0, 0, -2),                   // Good Friday
		nthWeekdayOfMonth(year, time.May, time.Monday, -1),     // Memorial Day
		observedUS(dateOnly(year, time.July, 4)),
		nthWeekdayOfMonth(year, time.September, time.Monday, 1), // Labor Day
		nthWeekdayOfMonth(year, time.November, time.Thursday, 4), // Thanksgiving
		observedUS(dateOnly(year, time.December, 25)),
	}
	if year >= 2022 {
		dates = append(dates, observedUS(dateOnly(year, time.June, 19))) // Juneteenth
	}
	return dates
}

func ukDates(year int) []time.Time {
	newYears := dateOnly(year, time.January, 1)
	if newYears.Weekday() == time.Saturday || newYears.Weekday() == time.Sunday {
		newYears = nthWeekdayOfMonth(year, time.January, time.Monday, 1)
	}
	easter := easterSunday(year)
	christmas, boxing := observePairForward(dateOnly(year, time.December, 25), dateOnly(year, time.December, 26))
	return []time.Time{
		newYears,
		easter.AddDate(0, 0, -2), // Good Friday
		easter.AddDate(0, 0, 1),  // Easter Monday
		nthWeekdayOfMonth(year, time.May, time.Monday, 1),      // Early May bank holiday
		nthWeekdayOfMonth(year, time.May, time.Monday, -1),     // Spring bank holiday
		nthWeekdayOfMonth(year, time.August, time.Monday, -1),  // Summer bank holiday
		christmas,
		boxing,
	}
}

func swissDates(year int) []time.Time {
	easter := easterSunday(year)
	return []time.Time{
		dateOnly(year, time.January, 1),
		easter.AddDate(0, 0, -2), // Good Friday
		easter.AddDate(0, 0, 1),  // Easter Monday
		dateOnly(year, time.May, 1),
		dateOnly(year, time.August, 1), // Swiss National Day
		dateOnly(year, time.December, 25),
		dateOnly(year, time.December, 26),
	}
}

func frankfurtDates(year int) []time.Time {
	easter := easterSunday(year)
	return []time.Time{
		dateOnly(year, time.January, 1),
		easter.AddDate(0, 0, -2), // Good Friday
		easter.AddDate(0, 0, 1),  // Easter Monday
		dateOnly(year, time.May, 1),
		dateOnly(year, time.December, 25),
		dateOnly(year, time.December, 26),
	}
}

func torontoDates(year int) []time.Time {
	easter := easterSunday(year)
	christmas, boxing := observePairForward(dateOnly(year, time.December, 25), dateOnly(year, time.December, 26))
	return []time.Time{
		observeForward(dateOnly(year, time.January, 1)),
		nthWeekdayOfMonth(year, time.February, time.Monday, 3), // Family Day
		easter.AddDate(0, 0, -2),                               // Good Friday
		mondayOnOrBefore(year, time.May, 24),                   // Victoria Day
		observeForward(dateOnly(year, time.July, 1)),           // Canada Day
		nthWeekdayOfMonth(year, time.September, time.Monday, 1), // Labour Day
		nthWeekdayOfMonth(year, time.October, time.Monday, 2),   // Thanksgiving
		christmas,
		boxing,
	}
}

func newZealandDates(year int) []time.Time {
	easter := easterSunday(year)
	newYears, dayAfter := observePairForward(dateOnly(year, time.January, 1), dateOnly(year, time.January, 2))
	christmas, boxing := observePairForward(dateOnly(year, time.December, 25), dateOnly(year, time.December, 26))
	return []time.Time{
		newYears,
		dayAfter,
		observeForward(dateOnly(year, time.February, 6)), // Waitangi Day
		easter.AddDate(0, 0, -2),                          // Good Friday
		easter.AddDate(0, 0, 1),                           // Easter Monday
		dateOnly(year, time.April, 25),                    // ANZAC Day, not shifted
		nthWeekdayOfMonth(year, time.June, time.Monday, 1),    // King's Birthday
		nthWeekdayOfMonth(year, time.October, time.Monday, 4), // Labour Day
		christmas,
		boxing,
	}
}

func tokyoDates(year int) []time.Time {
	dates := []time.Time{
		dateOnly(year, time.January, 1),
		dateOnly(year, time.January, 2),
		dateOnly(year, time.January, 3),
		nthWeekdayOfMonth(year, time.January, time.Monday, 2), // Coming of Age Day
		dateOnly(year, time.February, 11),                     // National Foundation Day
		dateOnly(year, time.April, 29),                        // Showa Day
		dateOnly(year, time.May, 3),                           // Constitution Day
		dateOnly(year, time.May, 4),                           // Greenery Day
		dateOnly(year, time.May, 5),                           // Children's Day
		nthWeekdayOfMonth(year, time.July, time.Monday, 3),      // Marine Day
		dateOnly(year, time.August, 11),                         // Mountain Day
		nthWeekdayOfMonth(year, time.September, time.Monday, 3), // Respect for the Aged Day
		dateOnly(year, time.November, 3),                        // Culture Day
		dateOnly(year, time.November, 23),                       // Labor Thanksgiving Day
	}
	if year >= 2020 {
		dates = append(dates, dateOnly(year, time.February, 23)) // Emperor's Birthday
	}
	// Vernal/autumnal equinox days are astronomically determined and
	// not covered by a fixed rule.
	return dates
}

func australiaDates(year int) []time.Time {
	easter := easterSunday(year)
	christmas, boxing := observePairForward(dateOnly(year, time.December, 25), dateOnly(year, time.December, 26))
	return []time.Time{
		observeForward(dateOnly(year, time.January, 1)),
		observeForward(dateOnly(year, time.January, 26)), // Australia Day
		easter.AddDate(0, 0, -2),                          // Good Friday
		easter.AddDate(0, 0, 1),                           // Easter Monday
		dateOnly(year, time.April, 25),                    // ANZAC Day, not shifted
		christmas,
		boxing,
	}
}

func hongKongDates(year int) []time.Time {
	easter := easterSunday(year)
	return []time.Time{
		observeForward(dateOnly(year, time.January, 1)),
		easter.AddDate(0, 0, -2), // Good Friday
		easter.AddDate(0, 0, -1), // Easter Saturday (observed in HK)
		easter.AddDate(0, 0, 1),  // Easter Monday
		dateOnly(year, time.May, 1),
		dateOnly(year, time.July, 1), // HKSAR Establishment Day
		observeForward(dateOnly(year, time.December, 25)),
		observeForward(dateOnly(year, time.December, 26)),
	}
	// Lunar New Year, Buddha's Birthday, Mid-Autumn Festival, Chung
	// Yeung Festival are lunar-calendar holidays, not covered.
}

func singaporeDates(year int) []time.Time {
	easter := easterSunday(year)
	return []time.Time{
		observeForward(dateOnly(year, time.January, 1)),
		easter.AddDate(0, 0, -2), // Good Friday
		dateOnly(year, time.May, 1),
		observeForward(dateOnly(year, time.August, 9)), // National Day
		observeForward(dateOnly(year, time.December, 25)),
	}
	// Lunar New Year, Vesak Day, Hari Raya Puasa/Haji, Deepavali are
	// lunar/lunisolar holidays, not covered.
}

// exchangeCalendars maps every registered exchange key to its holiday
// calendar. All ten registered exchanges are covered for their
// Gregorian fixed-date and Easter-relative closures; see the package
// doc comment for the lunar-holiday gap on xhkg/xses/xtks.
var exchangeCalendars = map[string]yearDates{
	"nyse": usDates,
	"lse":  ukDates,
	"xswx": swissDates,
	"xfra": frankfurtDates,
	"xtse": torontoDates,
	"xnze": newZealandDates,
	"xtks": tokyoDates,
	"xasx": australiaDates,
	"xhkg": hongKongDates,
	"xses": singaporeDates,
}

func usHolidaySet(year int) map[time.Time]bool { return holidaySet("us", usDates, year) }
func ukHolidaySet(year int) map[time.Time]bool { return holidaySet("uk", ukDates, year) }

func isUSHoliday(ts time.Time) bool {
	wd := ts.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return usHolidaySet(ts.Year())[dateOnly(ts.Year(), ts.Month(), ts.Day())]
}

func isUKHoliday(ts time.Time) bool {
	wd := ts.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return ukHolidaySet(ts.Year())[dateOnly(ts.Year(), ts.Month(), ts.Day())]
}

// isExchangeHoliday reports whether local (already in the exchange's
// own timezone) falls on that exchange's holiday calendar.
func isExchangeHoliday(key string, local time.Time) bool {
	gen, ok := exchangeCalendars[key]
	if !ok {
		return false
	}
	d := dateOnly(local.Year(), local.Month(), local.Day())
	return holidaySet(key, gen, local.Year())[d]
}
