package posting

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var absoluteLayouts = []string{
	time.RFC1123,
	time.RFC1123Z,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02 Jan 2006",
	"2 January 2006",
}

var relativeDate = regexp.MustCompile(`^(\d+)\+?\s*([a-z]+)\s+ago$`)

// ParseDate interprets a board's posted-date text. Absolute layouts are tried
// first, then relative forms such as "3d ago" or "2 weeks ago". When nothing
// matches it returns now and false.
func ParseDate(raw string, now time.Time) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return now, false
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	lower := strings.ToLower(s)
	for _, prefix := range []string{"posted on", "posted", "listed", "reposted"} {
		lower = strings.TrimSpace(strings.TrimPrefix(lower, prefix))
	}
	switch lower {
	case "just now", "today", "now":
		return now, true
	case "yesterday":
		return now.AddDate(0, 0, -1), true
	}

	m := relativeDate.FindStringSubmatch(lower)
	if m == nil {
		return now, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return now, false
	}
	switch unitOf(m[2]) {
	case "minute":
		return now.Add(-time.Duration(n) * time.Minute), true
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour), true
	case "day":
		return now.AddDate(0, 0, -n), true
	case "week":
		return now.AddDate(0, 0, -7*n), true
	case "month":
		return now.AddDate(0, -n, 0), true
	}
	return now, false
}

func unitOf(s string) string {
	switch s {
	case "m", "min", "mins", "minute", "minutes":
		return "minute"
	case "h", "hr", "hrs", "hour", "hours":
		return "hour"
	case "d", "day", "days":
		return "day"
	case "w", "wk", "wks", "week", "weeks":
		return "week"
	case "mo", "mth", "mths", "month", "months":
		return "month"
	}
	return ""
}
