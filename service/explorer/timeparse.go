package explorer

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeTime = regexp.MustCompile(`^(\d+)\s*(secs?|seconds?|mins?|minutes?|hrs?|hours?|days?|weeks?|months?|years?)\s+ago$`)

// absoluteLayouts are the explorer's absolute formats, interpreted as UTC.
// Day-first is tried before month-first for ambiguous slash dates.
var absoluteLayouts = []string{
	"Jan 2, 2006 3:04 PM",
	"January 2, 2006 3:04 PM",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"01/02/2006 15:04:05",
}

func unitDuration(unit string) time.Duration {
	switch {
	case strings.HasPrefix(unit, "sec"):
		return time.Second
	case strings.HasPrefix(unit, "min"):
		return time.Minute
	case strings.HasPrefix(unit, "hr"), strings.HasPrefix(unit, "hour"):
		return time.Hour
	case strings.HasPrefix(unit, "day"):
		return 24 * time.Hour
	case strings.HasPrefix(unit, "week"):
		return 7 * 24 * time.Hour
	case strings.HasPrefix(unit, "month"):
		return 30 * 24 * time.Hour
	default:
		return 365 * 24 * time.Hour
	}
}

// ParseTimeText converts an explorer time cell into an instant. It accepts
// "just now", relative labels such as "5 mins ago" or "2 hours ago", and the
// absolute layouts above. Text it cannot read yields now and ok == false.
func ParseTimeText(text string, now time.Time) (t time.Time, ok bool) {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	if strings.Contains(lower, "just now") {
		return now, true
	}
	if m := relativeTime.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return now.Add(-time.Duration(n) * unitDuration(m[2])), true
		}
	}
	for _, layout := range absoluteLayouts {
		if parsed, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return parsed, true
		}
	}
	return now, false
}
