package model

import (
	"fmt"
	"time"

	"github.com/calmerge/calmerge-server/errors"
)

// dateLayout is the wire form of Date.
const dateLayout = "2006-01-02"

// Date is a calendar date without clock and without zone. Times in calmerge
// are local wall-clock values, so Date never carries a location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate creates a Date from the given components without validation. Use
// Date.Validate or ParseDate when the components come from the outside.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf extracts the Date from the given time.Time.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ParseDate parses a date in "2006-01-02" form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, errors.NewInvalidDateError("parse date", errors.Details{"date": s})
	}
	return DateOf(t), nil
}

// Validate checks that the Date names an existing calendar day.
func (d Date) Validate() error {
	if d.Time().Day() != d.Day || d.Time().Month() != d.Month || d.Time().Year() != d.Year {
		return errors.NewInvalidDateError("no such calendar day", errors.Details{"date": d.String()})
	}
	return nil
}

// Time returns the Date as time.Time at midnight UTC. Only used for
// arithmetic, never for zone-aware logic.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the Date shifted by the given amount of days.
func (d Date) AddDays(days int) Date {
	return DateOf(d.Time().AddDate(0, 0, days))
}

// Before reports whether d is before other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d is after other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

// IsZero reports whether the Date is the zero value.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// MarshalJSON marshals the Date in "2006-01-02" form.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", d.String())), nil
}

// UnmarshalJSON parses the Date from "2006-01-02" form.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.NewInvalidDateError("date must be a string", errors.Details{"raw": string(data)})
	}
	parsed, err := ParseDate(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
