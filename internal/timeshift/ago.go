package timeshift

import (
	"strconv"
	"strings"
	"time"
)

// ParseAgo converts a replay offset of the form "<int><unit>" with unit one
// of s, m, h, d into a duration. Malformed input yields 0, so a bad offset
// degrades to "start at now" rather than an error.
func ParseAgo(s string) time.Duration {
	if len(s) < 2 {
		return 0
	}
	unit := strings.ToLower(s[len(s)-1:])
	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0
	}
	switch unit {
	case "s":
		return time.Duration(value) * time.Second
	case "m":
		return time.Duration(value) * time.Minute
	case "h":
		return time.Duration(value) * time.Hour
	case "d":
		return time.Duration(value) * 24 * time.Hour
	default:
		return 0
	}
}
