package crawler

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// lastModifiedLayout mirrors "<day>, <DD> <Mon> <YYYY> <HH:MM:SS> <TZ>".
const lastModifiedLayout = "Mon, 02 Jan 2006 15:04:05 MST"

// ParseLastModified parses a Last-Modified header. The wall-clock value is
// interpreted as UTC. Unparseable or empty values yield nil, never an error.
func ParseLastModified(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := time.Parse(lastModifiedLayout, value)
	if err != nil {
		return nil
	}
	ts := time.Date(
		parsed.Year(), parsed.Month(), parsed.Day(),
		parsed.Hour(), parsed.Minute(), parsed.Second(), 0,
		time.UTC,
	)
	return &ts
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. Missing or unusable values fall back to def.
func ParseRetryAfter(value string, now time.Time, def time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return def
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return def
}
