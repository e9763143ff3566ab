// Package calendar holds the plain-string date and time conventions used by
// appointments: dates are YYYY-MM-DD, times are HH:MM (24h), both compared
// lexically and never converted to instants.
package calendar

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ParseDate parses a YYYY-MM-DD string as a calendar date (UTC midnight).
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	if t.Format(DateLayout) != s {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

func ValidDate(s string) bool {
	_, err := ParseDate(s)
	return err == nil
}

// ValidTime reports whether s is a zero-padded 24h HH:MM string.
func ValidTime(s string) bool {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return false
	}
	return t.Format(TimeLayout) == s
}

// Weekday returns the English weekday name ("Monday") of a date string.
func Weekday(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.Weekday().String(), nil
}

// AddDays shifts a date string by n calendar days.
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}

// Clock is the source of "now". Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reports wall-clock time in Location (UTC when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// FixedClock always reports the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time {
	return time.Time(c)
}

// Today formats the clock's current date in the clock's own location.
func Today(c Clock) string {
	return c.Now().Format(DateLayout)
}

// Yesterday is the calendar date before Today.
func Yesterday(c Clock) string {
	return c.Now().AddDate(0, 0, -1).Format(DateLayout)
}
