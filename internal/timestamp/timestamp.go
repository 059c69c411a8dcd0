// Package timestamp finds the "generated on" stamp in a rendered status page
// and converts it between timezones.
package timestamp

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// OutputLayout is the layout used for converted timestamps.
const OutputLayout = "2006-01-02 15:04:05"

const (
	topMarker  = "=== top ==="
	loadMarker = "load averages:"
)

// ErrUnparsable is returned when no known layout matches.
var ErrUnparsable = errors.New("timestamp: unrecognized format")

// ErrUnknownZone is returned for a zone abbreviation with no known offset.
var ErrUnknownZone = errors.New("timestamp: unknown zone abbreviation")

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`Generated on:\s+([^\n<]+)`),
	regexp.MustCompile(`Generated:\s+([^\n<]+)`),
	regexp.MustCompile(`timestamp[^:]*:\s+([^\n<]+)`),
}

// layouts are tried in order before falling back to dateparse. date(1)
// output comes first since that is what the build server prints.
var layouts = []string{
	time.UnixDate,
	time.ANSIC,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"02 Jan 2006 15:04:05 MST",
	"January 2, 2006 15:04:05",
}

// Extract returns the first timestamp found in html.
func Extract(html string) (string, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(html); m != nil {
			if ts := strings.TrimSpace(m[1]); ts != "" {
				return ts, true
			}
		}
	}
	return "", false
}

// Parse interprets ts, reading zone-less layouts in sourceTZ.
func Parse(ts, sourceTZ string) (time.Time, error) {
	loc, err := time.LoadLocation(sourceTZ)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: load zone %q: %w", sourceTZ, err)
	}
	return parseIn(ts, loc)
}

// zoneOffsets covers the abbreviations date(1) prints for common zones.
// time.ParseInLocation keeps an abbreviation it cannot resolve against loc
// but gives it a zero offset, so those are looked up here.
var zoneOffsets = map[string]int{
	"WET": 0, "WEST": 1, "BST": 1,
	"CET": 1, "CEST": 2, "MET": 1, "MEST": 2,
	"EET": 2, "EEST": 3, "MSK": 3,
	"EST": -5, "EDT": -4, "CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6, "PST": -8, "PDT": -7,
	"AKST": -9, "AKDT": -8, "HST": -10,
	"JST": 9, "KST": 9,
	"AEST": 10, "AEDT": 11, "NZST": 12, "NZDT": 13,
}

func parseIn(ts string, loc *time.Location) (time.Time, error) {
	ts = strings.Join(strings.Fields(ts), " ")
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, ts, loc); err == nil {
			return fixZone(t, loc)
		}
	}
	// Anything without a digit is prose, not a date.
	if !strings.ContainsAny(ts, "0123456789") {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsable, ts)
	}
	t, err := dateparse.ParseIn(ts, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsable, ts)
	}
	return fixZone(t, loc)
}

// fixZone replaces the zero offset of an unresolved zone abbreviation with
// its real one.
func fixZone(t time.Time, loc *time.Location) (time.Time, error) {
	if t.Location() == loc || t.Location() == time.UTC {
		return t, nil
	}
	name, off := t.Zone()
	if off != 0 || name == "" {
		return t, nil
	}
	switch name {
	case "UTC", "GMT", "UT", "Z":
		return t, nil
	}
	hours, ok := zoneOffsets[name]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownZone, name)
	}
	zone := time.FixedZone(name, hours*3600)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone), nil
}

// Convert renders ts in toTZ as "2006-01-02 15:04:05 (toTZ)". It never fails:
// an unparsable stamp gets " (conversion failed)" appended and an unknown
// zone gets " (conversion error)".
func Convert(ts, fromTZ, toTZ string) string {
	from, err := time.LoadLocation(fromTZ)
	if err != nil {
		return ts + " (conversion error)"
	}
	t, err := parseIn(ts, from)
	if err != nil {
		return ts + " (conversion failed)"
	}
	to, err := time.LoadLocation(toTZ)
	if err != nil {
		return ts + " (conversion error)"
	}
	return fmt.Sprintf("%s (%s)", t.In(to).Format(OutputLayout), toTZ)
}

// IsRecent reports whether ts is no older than window at now. Future stamps
// count as recent; unparsable ones never do.
func IsRecent(now time.Time, ts string, window time.Duration, sourceTZ string) bool {
	t, err := Parse(ts, sourceTZ)
	if err != nil {
		return false
	}
	return now.Sub(t) <= window
}

// Complete reports whether the status page finished rendering: the top(1)
// section must be present with its load averages line.
func Complete(html string) bool {
	idx := strings.Index(html, topMarker)
	if idx < 0 {
		return false
	}
	return strings.Contains(html[idx+len(topMarker):], loadMarker)
}
