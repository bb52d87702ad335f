package timex

import (
	"fmt"
	"strings"
	"time"
)

// WireLayout is the ISO-8601 UTC layout used for every timestamp on the wire.
// Microseconds match the store's timestamptz resolution, so a value echoed
// back as a watermark compares exactly.
const WireLayout = "2006-01-02T15:04:05.000000Z"

// CreationDateLayout is how itinerary details present the upload date.
const CreationDateLayout = "01/02/2006"

// Now returns the current UTC time truncated to microseconds.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// naive layouts carry no zone and are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
}

// ParseWatermark parses a client-supplied sync timestamp. An empty string
// means "beginning of time" and yields the zero time. Timestamps without a
// zone are assumed to be UTC; all results are normalized to UTC.
func ParseWatermark(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatWire renders t in WireLayout; the zero time renders as "".
func FormatWire(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(WireLayout)
}

// FormatCreationDate renders an upload date for display, "Unknown" when absent.
func FormatCreationDate(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.UTC().Format(CreationDateLayout)
}

// Later returns the later of a and b.
func Later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
