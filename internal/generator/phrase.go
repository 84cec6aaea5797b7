package generator

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// timeSince phrases how long ago something was published, using whole days.
func timeSince(published *time.Time, now time.Time) string {
	if published == nil || published.IsZero() {
		return "recently"
	}

	diff := now.Sub(*published)
	if diff < 0 {
		return "upcoming"
	}

	days := int(diff / (24 * time.Hour))

	switch {
	case days == 0:
		return "today"
	case days == 1:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 30:
		return plural(days/7, "week")
	case days < 365:
		return plural(days/30, "month")
	default:
		return plural(days/365, "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}

	return fmt.Sprintf("%d %ss ago", n, unit)
}

// truncate cuts s to at most limit characters, marking the cut with "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)

	return string(runes[:limit-3]) + "..."
}
