/*
Copyright © 2025 the gridconv authors.
This file is part of gridconv.

gridconv is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

gridconv is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with gridconv.  If not, see <http://www.gnu.org/licenses/>.
*/

package gridconv

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeAxis is the time coordinate of a grid, stored the way CF NetCDF
// files store it: numeric offsets from a reference time in the given
// units ("days since 1970-01-01") and calendar.
type TimeAxis struct {
	Values   []float64
	Units    string
	Calendar string
}

// Supported calendars.
const (
	CalendarStandard           = "standard"
	CalendarGregorian          = "gregorian"
	CalendarProlepticGregorian = "proleptic_gregorian"
	CalendarNoLeap             = "noleap"
	Calendar365Day             = "365_day"
	CalendarAllLeap            = "all_leap"
	Calendar366Day             = "366_day"
	Calendar360Day             = "360_day"
)

// Len returns the number of time steps.
func (ta *TimeAxis) Len() int {
	if ta == nil {
		return 0
	}
	return len(ta.Values)
}

// validate checks that the axis is usable: finite non-decreasing values,
// parseable units and a known calendar.
func (ta *TimeAxis) validate() error {
	for i, v := range ta.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("time value %d is not finite", i)
		}
		if i > 0 && v < ta.Values[i-1] {
			return fmt.Errorf("time values decrease at index %d (%g < %g)", i, v, ta.Values[i-1])
		}
	}
	if _, _, err := parseTimeUnits(ta.Units); err != nil {
		return err
	}
	if _, err := calendarKind(ta.Calendar); err != nil {
		return err
	}
	return nil
}

// At returns the time of step i.
func (ta *TimeAxis) At(i int) (time.Time, error) {
	if i < 0 || i >= ta.Len() {
		return time.Time{}, &Error{Kind: IndexOutOfRange, Err: fmt.Errorf("time index %d, axis length %d", i, ta.Len())}
	}
	unitSeconds, ref, err := parseTimeUnits(ta.Units)
	if err != nil {
		return time.Time{}, err
	}
	cal, err := calendarKind(ta.Calendar)
	if err != nil {
		return time.Time{}, err
	}
	total := ta.Values[i] * unitSeconds
	days := math.Floor(total / 86400)
	secs := total - days*86400
	var base time.Time
	if cal == calGregorian {
		base = time.Date(ref.year, time.Month(ref.month), ref.day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(days))
	} else {
		y, m, d := fromDayNumber(cal, toDayNumber(cal, ref.year, ref.month, ref.day)+int64(days))
		base = time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	}
	return base.Add(time.Duration(math.Round((ref.seconds + secs) * 1e9))), nil
}

type calendar int

const (
	calGregorian calendar = iota
	cal365
	cal366
	cal360
)

func calendarKind(name string) (calendar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CalendarStandard, CalendarGregorian, CalendarProlepticGregorian:
		return calGregorian, nil
	case CalendarNoLeap, Calendar365Day:
		return cal365, nil
	case CalendarAllLeap, Calendar366Day:
		return cal366, nil
	case Calendar360Day:
		return cal360, nil
	}
	return 0, fmt.Errorf("unsupported calendar %q", name)
}

var (
	monthDays365 = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
	monthDays366 = [12]int{31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
)

func yearLength(cal calendar) int64 {
	switch cal {
	case cal366:
		return 366
	case cal360:
		return 360
	}
	return 365
}

func toDayNumber(cal calendar, y, m, d int) int64 {
	n := int64(y) * yearLength(cal)
	switch cal {
	case cal360:
		n += int64((m-1)*30 + d - 1)
	default:
		md := monthDays365
		if cal == cal366 {
			md = monthDays366
		}
		for i := 0; i < m-1; i++ {
			n += int64(md[i])
		}
		n += int64(d - 1)
	}
	return n
}

func fromDayNumber(cal calendar, n int64) (y, m, d int) {
	yl := yearLength(cal)
	yy := n / yl
	rem := n % yl
	if rem < 0 {
		rem += yl
		yy--
	}
	y = int(yy)
	if cal == cal360 {
		return y, int(rem/30) + 1, int(rem%30) + 1
	}
	md := monthDays365
	if cal == cal366 {
		md = monthDays366
	}
	m = 1
	for _, l := range md {
		if rem < int64(l) {
			break
		}
		rem -= int64(l)
		m++
	}
	return y, m, int(rem) + 1
}

// refTime is a calendar-neutral reference date.
type refTime struct {
	year, month, day int
	seconds          float64
}

var unitSeconds = map[string]float64{
	"second": 1, "seconds": 1, "sec": 1, "secs": 1, "s": 1,
	"minute": 60, "minutes": 60, "min": 60, "mins": 60,
	"hour": 3600, "hours": 3600, "hr": 3600, "hrs": 3600, "h": 3600,
	"day": 86400, "days": 86400, "d": 86400,
	// udunits year and month lengths, as CF defines them.
	"month": yearSeconds / 12, "months": yearSeconds / 12,
	"year": yearSeconds, "years": yearSeconds, "yr": yearSeconds, "yrs": yearSeconds,
}

const yearSeconds = 365.242198781 * 86400

// parseTimeUnits parses CF time units of the form "<unit> since <date>".
func parseTimeUnits(units string) (float64, refTime, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, refTime{}, fmt.Errorf("invalid time units %q", units)
	}
	sec, ok := unitSeconds[strings.ToLower(strings.TrimSpace(parts[0]))]
	if !ok {
		return 0, refTime{}, fmt.Errorf("unsupported time unit %q", parts[0])
	}
	ref, err := parseRefTime(parts[1])
	if err != nil {
		return 0, refTime{}, fmt.Errorf("time units %q: %w", units, err)
	}
	return sec, ref, nil
}

// IsTimeUnits reports whether units has the CF "<unit> since <date>" form.
func IsTimeUnits(units string) bool {
	_, _, err := parseTimeUnits(units)
	return err == nil
}

func parseRefTime(s string) (refTime, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "UTC")
	s = strings.TrimSpace(strings.TrimSuffix(s, "Z"))
	s = strings.Replace(s, "T", " ", 1)
	fields := strings.Fields(s)
	var offset float64
	if n := len(fields); n == 3 || (n == 2 && strings.ContainsAny(fields[1][:1], "+-")) {
		o, err := parseUTCOffset(fields[n-1])
		if err != nil {
			return refTime{}, fmt.Errorf("invalid reference time %q: %w", s, err)
		}
		offset = o
		fields = fields[:n-1]
	} else if n == 2 {
		// "00:00:00+05:00"
		if i := strings.IndexAny(fields[1], "+-"); i > 0 {
			o, err := parseUTCOffset(fields[1][i:])
			if err != nil {
				return refTime{}, fmt.Errorf("invalid reference time %q: %w", s, err)
			}
			offset = o
			fields[1] = fields[1][:i]
		}
	}
	if len(fields) == 0 || len(fields) > 2 {
		return refTime{}, fmt.Errorf("invalid reference time %q", s)
	}
	var r refTime
	date := strings.Split(fields[0], "-")
	if len(date) != 3 {
		return refTime{}, fmt.Errorf("invalid reference date %q", fields[0])
	}
	vals := make([]int, 3)
	for i, p := range date {
		v, err := strconv.Atoi(p)
		if err != nil {
			return refTime{}, fmt.Errorf("invalid reference date %q", fields[0])
		}
		vals[i] = v
	}
	r.year, r.month, r.day = vals[0], vals[1], vals[2]
	if r.month < 1 || r.month > 12 || r.day < 1 || r.day > 31 {
		return refTime{}, fmt.Errorf("invalid reference date %q", fields[0])
	}
	if len(fields) == 2 {
		sec, err := clockSeconds(fields[1])
		if err != nil {
			return refTime{}, err
		}
		r.seconds = sec
	}
	r.seconds -= offset
	return r, nil
}

// clockSeconds parses "hh[:mm[:ss[.f]]]".
func clockSeconds(s string) (float64, error) {
	clock := strings.Split(s, ":")
	mult := []float64{3600, 60, 1}
	if len(clock) > 3 {
		return 0, fmt.Errorf("invalid reference time of day %q", s)
	}
	var sec float64
	for i, p := range clock {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid reference time of day %q", s)
		}
		sec += v * mult[i]
	}
	return sec, nil
}

// parseUTCOffset parses a time zone offset such as "+05:30", "-8" or
// "0:00" and returns it in seconds east of UTC.
func parseUTCOffset(s string) (float64, error) {
	sign := 1.0
	switch {
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasPrefix(s, "-"):
		sign, s = -1, s[1:]
	}
	var h, m int
	var err error
	if i := strings.Index(s, ":"); i >= 0 {
		if h, err = strconv.Atoi(s[:i]); err == nil {
			m, err = strconv.Atoi(s[i+1:])
		}
	} else if len(s) == 4 {
		if h, err = strconv.Atoi(s[:2]); err == nil {
			m, err = strconv.Atoi(s[2:])
		}
	} else {
		h, err = strconv.Atoi(s)
	}
	if err != nil || h < 0 || h > 14 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid UTC offset %q", s)
	}
	return sign * float64(h*3600+m*60), nil
}
