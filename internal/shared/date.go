package shared

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar day without a time component. It marshals as
// YYYY-MM-DD, matching the date columns it round-trips with.
type Date struct {
	time.Time
}

// NewDate builds a Date at UTC midnight.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current UTC date.
func Today() Date {
	return DateOf(time.Now().UTC())
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", ErrValidation, s)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON renders the date as a quoted YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

// UnmarshalJSON accepts a quoted YYYY-MM-DD string. Full timestamps are
// tolerated and truncated, since older clients send ISO datetimes.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Time.IsZero()
}
