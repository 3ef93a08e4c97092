package utils

import (
	"strings"
	"time"
)

const (
	layoutDate     = "2006-01-02"
	layoutClock    = "15:04"
	layoutClockSec = "15:04:05"
)

// NowUTC returns current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// ParseDate parses YYYY-MM-DD and returns it normalized.
func ParseDate(s string) (string, error) {
	t, err := time.ParseInLocation(layoutDate, strings.TrimSpace(s), time.Local)
	if err != nil {
		return "", err
	}
	return t.Format(layoutDate), nil
}

// ParseClock accepts HH:MM or HH:MM:SS and returns HH:MM.
func ParseClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(layoutClock, s)
	if err != nil {
		var errSec error
		if t, errSec = time.Parse(layoutClockSec, s); errSec != nil {
			return "", err
		}
	}
	return t.Format(layoutClock), nil
}
