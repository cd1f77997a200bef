package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// DefaultZoneName is the civil reference timezone when TIMEZONE is unset.
const DefaultZoneName = "Asia/Jerusalem"

// Civil rendering formats used in reminder texts. Not used for storage.
const (
	dateFormat = "02/01/2006"
	timeFormat = "15:04"
)

// Zone is the fixed civil reference timezone. Inputs without explicit zone
// information are read as wall-clock time in this zone; reminder texts
// render dates and times in it.
type Zone struct {
	loc *time.Location
}

func LoadZone(name string) (Zone, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultZoneName
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return Zone{loc: loc}, nil
}

func (z Zone) Name() string { return z.loc.String() }

// Layouts with explicit zone information are interpreted literally.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
}

// Naive layouts (datetime-local style input) are wall-clock in the zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ToAbsolute converts a local-looking timestamp string into an absolute
// instant. Strings carrying an offset or Z are taken as-is; bare
// wall-clock strings are interpreted in the reference zone.
func (z Zone) ToAbsolute(input string) (time.Time, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty datetime")
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, z.loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable datetime %q", input)
}

// CivilParts renders an absolute instant as DD/MM/YYYY and HH:mm strings
// in the reference zone.
func (z Zone) CivilParts(instant time.Time) (dateString, timeString string) {
	local := instant.In(z.loc)
	return local.Format(dateFormat), local.Format(timeFormat)
}

// At returns the absolute instant corresponding to the civil time
// (date of base + offsetDays) @ hour:minute in the reference zone.
func (z Zone) At(base time.Time, offsetDays, hour, minute int) time.Time {
	local := base.In(z.loc).AddDate(0, 0, offsetDays)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, z.loc).UTC()
}

// AddMinutes is pure instant arithmetic with no zone dependency.
func AddMinutes(instant time.Time, n int) time.Time {
	return instant.Add(time.Duration(n) * time.Minute)
}

// TruncateMinute drops seconds and below; the evaluator's dedup buckets
// items by this key.
func TruncateMinute(instant time.Time) time.Time {
	return instant.UTC().Truncate(time.Minute)
}
