package analytics

import "time"

// WindowFloor maps a period token to a millisecond floor relative to
// now. Zero means no floor ("all time"); unknown tokens behave as all.
// Every report shares this resolution so the tokens cannot drift apart.
func WindowFloor(period string, now time.Time) int64 {
	var d time.Duration
	switch period {
	case "1h":
		d = time.Hour
	case "1d":
		d = 24 * time.Hour
	case "7d":
		d = 7 * 24 * time.Hour
	case "30d":
		d = 30 * 24 * time.Hour
	default:
		return 0
	}
	return now.Add(-d).UnixMilli()
}
