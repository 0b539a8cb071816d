package voting

import (
	"strings"
	"time"
)

// LocalInputLayouts are the accepted wall-clock formats, matching HTML datetime-local values.
var LocalInputLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// NormalizeUTC returns the instant expressed in UTC.
func NormalizeUTC(value time.Time) time.Time {
	return value.UTC()
}

// ParseLocal interprets a wall-clock string in the display zone and returns it in that zone.
func ParseLocal(rawInput string, location *time.Location) (time.Time, bool) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return time.Time{}, false
	}
	if location == nil {
		location = time.UTC
	}
	for _, layout := range LocalInputLayouts {
		parsed, err := time.ParseInLocation(layout, trimmed, location)
		if err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// EventEnd returns 23:59 of the event's calendar day in the display zone, as UTC.
func EventEnd(eventAt time.Time, location *time.Location) time.Time {
	if location == nil {
		location = time.UTC
	}
	local := eventAt.In(location)
	year, month, day := local.Date()
	return time.Date(year, month, day, 23, 59, 0, 0, location).UTC()
}

func fromUnixSeconds(seconds int64) time.Time {
	return time.Unix(seconds, 0).UTC()
}
