package school

import (
	"encoding/json"
	"time"
)

// DateLayout is the only accepted textual form of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar date formatted YYYY-MM-DD. Because the layout is
// fixed-width and zero-padded, lexicographic order equals calendar order.
type Date string

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// ParseDate accepts YYYY-MM-DD, or an RFC 3339 timestamp whose date part is kept.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	// the prefix of an RFC 3339 string is its local calendar date
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		return "", err
	}
	return Date(s[:len(DateLayout)]), nil
}

// Valid reports whether d is a well-formed date.
func (d Date) Valid() bool {
	_, err := time.Parse(DateLayout, string(d))
	return err == nil
}

// Time returns midnight UTC of d.
func (d Date) Time() (time.Time, error) {
	return time.Parse(DateLayout, string(d))
}

// AddDays returns d shifted by n calendar days. An invalid d is returned unchanged.
func (d Date) AddDays(n int) Date {
	t, err := d.Time()
	if err != nil {
		return d
	}
	return DateOf(t.AddDate(0, 0, n))
}

// Before reports whether d sorts strictly before o.
func (d Date) Before(o Date) bool { return d < o }

func (d Date) String() string { return string(d) }

// UnmarshalJSON accepts a date or a timestamp; anything else is kept verbatim
// so that malformed values survive decoding.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		if string(b) == "null" {
			*d = ""
			return nil
		}
		return err
	}
	if p, err := ParseDate(s); err == nil {
		*d = p
		return nil
	}
	*d = Date(s)
	return nil
}
