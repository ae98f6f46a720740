package model

import (
	"fmt"
	"strconv"

	"github.com/calmerge/calmerge-server/errors"
)

// ClockTime is a time of day with minute precision. The wire form is the
// compact 4-digit "HHMM" used by the source schedules.
type ClockTime struct {
	Hour   int
	Minute int
}

// NewClockTime creates a ClockTime without validation.
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime{Hour: hour, Minute: minute}
}

// ParseClockTime parses a compact "HHMM" value and rejects out-of-range hour
// or minute.
func ParseClockTime(s string) (ClockTime, error) {
	if len(s) != 4 {
		return ClockTime{}, errors.NewInvalidTimeRangeError("clock time must be 4 digits",
			errors.Details{"clock_time": s})
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return ClockTime{}, errors.NewInvalidTimeRangeError("clock time must be numeric",
				errors.Details{"clock_time": s})
		}
	}
	hour, _ := strconv.Atoi(s[:2])
	minute, _ := strconv.Atoi(s[2:])
	ct := ClockTime{Hour: hour, Minute: minute}
	if err := ct.Validate(); err != nil {
		return ClockTime{}, err
	}
	return ct, nil
}

// Validate checks hour and minute ranges.
func (ct ClockTime) Validate() error {
	if ct.Hour < 0 || ct.Hour > 23 || ct.Minute < 0 || ct.Minute > 59 {
		return errors.NewInvalidTimeRangeError("clock time out of range",
			errors.Details{"clock_time": ct.String()})
	}
	return nil
}

// MinuteOfDay returns the minutes since midnight.
func (ct ClockTime) MinuteOfDay() int {
	return ct.Hour*60 + ct.Minute
}

// Before reports whether ct is before other.
func (ct ClockTime) Before(other ClockTime) bool {
	return ct.MinuteOfDay() < other.MinuteOfDay()
}

func (ct ClockTime) String() string {
	return fmt.Sprintf("%02d%02d", ct.Hour, ct.Minute)
}

// NullClockTime is a nullable ClockTime in the manner of the nulls package.
type NullClockTime struct {
	ClockTime ClockTime
	Valid     bool
}

// NewNullClockTime returns a valid NullClockTime with the given value.
func NewNullClockTime(ct ClockTime) NullClockTime {
	return NullClockTime{ClockTime: ct, Valid: true}
}

// MarshalJSON marshals the value in "HHMM" form or null.
func (n NullClockTime) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", n.ClockTime.String())), nil
}

// UnmarshalJSON parses "HHMM" or null.
func (n *NullClockTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.Valid = false
		n.ClockTime = ClockTime{}
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.NewInvalidTimeRangeError("clock time must be a string",
			errors.Details{"raw": string(data)})
	}
	ct, err := ParseClockTime(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	n.ClockTime = ct
	n.Valid = true
	return nil
}
