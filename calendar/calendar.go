// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package calendar implements the Gregorian calendar arithmetic backing
// the timing subsystem's calendar conversions:
// seconds-since-epoch <-> broken-down UTC ("universal") time, and
// broken-down UTC <-> broken-down local time. The closed-form
// civil-from-days/days-from-civil algorithm mirrors erl_time_sup.c's
// calc_epoch_day/seconds_to_univ exactly; only the local/UTC conversion
// itself is delegated to the standard library's time.Location instead of
// reimplementing mktime/localtime_r.
package calendar

import (
	"math"
	"time"

	"github.com/intuitivelabs/slog"
)

var Log slog.Log = slog.New(slog.LWARN, slog.LOptNone, slog.LStdErr)

func DBGon() bool { return Log.DBGon() }
func ERRon() bool { return Log.ERRon() }

func DBG(f string, a ...interface{}) {
	Log.LLog(slog.LDBG, 1, "DBG: calendar: ", f, a...)
}

func ERR(f string, a ...interface{}) {
	Log.LLog(slog.LERR, 1, "ERROR: calendar: ", f, a...)
}

// GregStart, EpochDays, YearMin and YearMax are erl_time_sup.c's
// GREG_START/EPOCH_DAYS/YEAR_MIN/YEAR_MAX constants unchanged: dates are
// only handled back to the (arbitrary) Gregorian transition year, and
// YearMin may never be lowered below GregStart without breaking
// calcEpochDay.
const (
	GregStart = 1600
	EpochDays = 135140
	YearMin   = 1902
	YearMax   = math.MaxInt32 - 1

	SecondsPerMinute = 60
	SecondsPerHour   = 60 * SecondsPerMinute
	SecondsPerDay    = 24 * SecondsPerHour
)

var monthDays = [...]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// DateTime is a broken-down calendar timestamp, erl_time_sup.c's
// (year, month, day, hour, minute, second) sextuple as a struct.
type DateTime struct {
	Year, Month, Day     int
	Hour, Minute, Second int
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func daysInMonth(year, month int) int {
	if month == 2 && isLeapYear(year) {
		return 29
	}
	return monthDays[month]
}

// isValidTime mirrors is_valid_time, parameterized on the caller's base
// year (GregStart for the UTC conversions, YearMin for the local ones,
// exactly as erl_time_sup.c does).
func isValidTime(baseYear int, dt DateTime) bool {
	return baseYear <= dt.Year && dt.Year <= YearMax &&
		1 <= dt.Month && dt.Month <= 12 &&
		1 <= dt.Day && dt.Day <= daysInMonth(dt.Year, dt.Month) &&
		0 <= dt.Hour && dt.Hour <= 23 &&
		0 <= dt.Minute && dt.Minute <= 59 &&
		0 <= dt.Second && dt.Second <= 59
}

// calcEpochDay returns the number of days since 1-Jan-1970 for a
// calendar date that has already been validated; it is erl_time_sup.c's
// calc_epoch_day, unchanged. The caller MUST validate with isValidTime
// (or equivalent) first.
func calcEpochDay(year, month, day int) int64 {
	gyear := year - GregStart
	var ndays int64
	switch gyear {
	case 0:
		ndays = 0
	case 1:
		ndays = 366
	default:
		pyear := int64(gyear - 1)
		ndays = pyear/4 - pyear/100 + pyear/400 + pyear*365 + 366
	}
	for m := 1; m < month; m++ {
		ndays += int64(monthDays[m])
	}
	if month > 2 && isLeapYear(year) {
		ndays++
	}
	ndays += int64(day - 1)
	return ndays - EpochDays
}

// SecondsToUniv converts seconds since the Unix epoch to broken-down UTC
// time, using the civil-from-days closed form from seconds_to_univ
// (written here in Howard Hinnant's civil_from_days form).
func SecondsToUniv(secs int64) DateTime {
	days := secs / SecondsPerDay
	rem := secs % SecondsPerDay
	if rem < 0 {
		days--
		rem += SecondsPerDay
	}

	hour := rem / SecondsPerHour
	minuteRem := rem % SecondsPerHour
	minute := minuteRem / SecondsPerMinute
	second := minuteRem % SecondsPerMinute

	z := days + 719468
	era := z
	if z < 0 {
		era = z - 146096
	}
	era /= 146097
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	d := doy - (153*mp+2)/5 + 1
	var m int64
	if mp < 10 {
		m = mp + 3
	} else {
		m = mp - 9
	}
	if m <= 2 {
		y++
	}

	return DateTime{
		Year: int(y), Month: int(m), Day: int(d),
		Hour: int(hour), Minute: int(minute), Second: int(second),
	}
}

// UnivToSeconds converts broken-down UTC time to seconds since the Unix
// epoch, erl_time_sup.c's univ_to_seconds. ok is false if dt isn't a
// valid calendar timestamp no earlier than GregStart.
func UnivToSeconds(dt DateTime) (secs int64, ok bool) {
	if !isValidTime(GregStart, dt) {
		return 0, false
	}
	days := calcEpochDay(dt.Year, dt.Month, dt.Day)
	secs = days * SecondsPerDay
	secs += int64(dt.Hour) * SecondsPerHour
	secs += int64(dt.Minute) * SecondsPerMinute
	secs += int64(dt.Second)
	return secs, true
}

// fromGoTime breaks a time.Time down into a DateTime in t's own
// location.
func fromGoTime(t time.Time) DateTime {
	return DateTime{
		Year: t.Year(), Month: int(t.Month()), Day: t.Day(),
		Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(),
	}
}

// wallInstant returns the instant whose wall clock in loc reads exactly
// dt. time.Date cannot fail the way mktime(3) can: handed a wall clock
// that does not exist in loc (a DST spring-forward gap), it silently
// normalizes to a nearby real instant instead of returning an error, so
// failure is detected by reading the result back and comparing. An
// ambiguous wall clock (fall-back hour) reads back equal for either
// interpretation and is accepted as the one time.Date picked.
func wallInstant(dt DateTime, loc *time.Location) (time.Time, bool) {
	t := time.Date(dt.Year, time.Month(dt.Month), dt.Day,
		dt.Hour, dt.Minute, dt.Second, 0, loc)
	if fromGoTime(t) != dt {
		return time.Time{}, false
	}
	return t, true
}

// prevSecond returns dt shifted one second earlier, normalized across
// minute/hour/day boundaries. Plain Gregorian arithmetic, no zone
// involved.
func prevSecond(dt DateTime) DateTime {
	t := time.Date(dt.Year, time.Month(dt.Month), dt.Day,
		dt.Hour, dt.Minute, dt.Second-1, 0, time.UTC)
	return fromGoTime(t)
}

// LocalToUniv converts broken-down local time to broken-down UTC time,
// erl_time_sup.c's local_to_univ over time.Date/time.Location instead of
// mktime/localtime_r. loc is the local zone to interpret dt against
// (erl_mktime always uses the process's own zoneinfo; here the caller
// supplies it, per Go's explicit-Location idiom).
//
// When the conversion fails -- dt names a wall clock that does not exist
// in loc -- it retries exactly once at second-1 and adds the second back,
// erl_mktime's fallback for a boundary the zone data can only represent
// one second earlier. A wall clock inside a whole missing interval (a
// DST spring-forward gap) fails the retry too and reports ok=false.
// ok is also false if dt isn't a valid calendar timestamp no earlier
// than YearMin.
func LocalToUniv(dt DateTime, loc *time.Location) (univ DateTime, ok bool) {
	if !isValidTime(YearMin, dt) {
		return DateTime{}, false
	}
	t, ok := wallInstant(dt, loc)
	if !ok {
		t, ok = wallInstant(prevSecond(dt), loc)
		if !ok {
			return DateTime{}, false
		}
		t = t.Add(time.Second)
	}
	return fromGoTime(t.UTC()), true
}

// UnivToLocal converts broken-down UTC time to broken-down local time in
// loc, erl_time_sup.c's univ_to_local. Every UTC instant has a local
// representation, so unlike LocalToUniv no retry is needed; ok is false
// only if dt isn't a valid calendar timestamp no earlier than YearMin.
func UnivToLocal(dt DateTime, loc *time.Location) (local DateTime, ok bool) {
	if !isValidTime(YearMin, dt) {
		return DateTime{}, false
	}
	t := time.Date(dt.Year, time.Month(dt.Month), dt.Day,
		dt.Hour, dt.Minute, dt.Second, 0, time.UTC)
	return fromGoTime(t.In(loc)), true
}
