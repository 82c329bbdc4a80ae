// Package timeutil converts between a user's local wall-clock time and the
// canonical UTC instants used for every tool argument. Tool arguments are
// always UTC; user-facing text always renders in the user's own zone.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// Layouts accepted for wall-clock input. The oracle is told to emit ISO 8601,
// but humans (and models) are sloppy, so a few close variants are tolerated.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseLocal parses a wall-clock time string in the named zone and returns
// the corresponding UTC instant.
func ParseLocal(value, zoneID string) (time.Time, error) {
	loc, err := time.LoadLocation(zoneID)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown time zone %q: %w", zoneID, err)
	}

	// RFC 3339 input carries its own offset; honor it as-is.
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}

	for _, layout := range localLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err != nil {
			continue
		}
		return resolveWall(t, loc), nil
	}

	return time.Time{}, fmt.Errorf("cannot parse time %q", value)
}

// ToUTC reinterprets the wall-clock fields of t in the named zone and returns
// the UTC instant.
func ToUTC(t time.Time, zoneID string) (time.Time, error) {
	loc, err := time.LoadLocation(zoneID)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown time zone %q: %w", zoneID, err)
	}
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
	return resolveWall(wall, loc), nil
}

// resolveWall pins an ambiguous wall-clock time (the repeated hour of a
// fall-back transition) to the earlier of the two UTC instants. Go's
// time.Date already picks one instant deterministically; if the instant one
// hour before shows the same wall clock, the earlier one wins.
func resolveWall(t time.Time, loc *time.Location) time.Time {
	earlier := t.Add(-time.Hour)
	e := earlier.In(loc)
	if e.Hour() == t.Hour() && e.Minute() == t.Minute() && e.Day() == t.Day() {
		return earlier.UTC()
	}
	return t.UTC()
}

// ToLocal formats a UTC instant for display in the named zone, using the
// zone's conventional 12-hour or 24-hour clock and its abbreviation.
func ToLocal(utc time.Time, zoneID string) (string, error) {
	loc, err := time.LoadLocation(zoneID)
	if err != nil {
		return "", fmt.Errorf("unknown time zone %q: %w", zoneID, err)
	}

	local := utc.In(loc)
	if uses12HourClock(zoneID) {
		return local.Format("Mon, 2 Jan 2006 3:04 PM MST"), nil
	}
	return local.Format("Mon, 2 Jan 2006 15:04 MST"), nil
}

// FormatClock renders only the time-of-day portion, for slot listings.
func FormatClock(utc time.Time, zoneID string) (string, error) {
	loc, err := time.LoadLocation(zoneID)
	if err != nil {
		return "", fmt.Errorf("unknown time zone %q: %w", zoneID, err)
	}
	local := utc.In(loc)
	if uses12HourClock(zoneID) {
		return local.Format("3:04 PM MST"), nil
	}
	return local.Format("15:04 MST"), nil
}

// twelveHourRegions are tz database prefixes whose countries customarily use
// a 12-hour clock. Everything else gets 24-hour display. The America/ prefix
// is an approximation: it also sweeps in 24-hour locales such as
// America/Sao_Paulo and America/Mexico_City, which only affects display, not
// the stored instant.
var twelveHourRegions = []string{
	"America/",
	"Australia/",
	"Pacific/Auckland",
	"Pacific/Honolulu",
	"Asia/Manila",
	"Asia/Kolkata",
	"Asia/Karachi",
	"Asia/Dhaka",
	"Africa/Cairo",
	"Africa/Lagos",
}

func uses12HourClock(zoneID string) bool {
	for _, prefix := range twelveHourRegions {
		if strings.HasPrefix(zoneID, prefix) {
			return true
		}
	}
	return false
}
