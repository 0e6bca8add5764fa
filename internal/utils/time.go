package utils

import "time"

// Today returns the current calendar date in loc as YYYY-MM-DD.
func Today(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01-02")
}
