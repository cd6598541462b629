// Package date implements the calendar date used throughout the record
// files: a validated Gregorian year/month/day with O(1) day arithmetic
// through an ordinal day count anchored at 1583-01-01.
package date

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinYear is the first year accepted. The Gregorian reform took effect in
// 1582, so only later years are representable.
const MinYear = 1583

// MaxYear is the last year that fits the four digit year field.
const MaxYear = 9999

// ErrInvalidDate is returned when a year/month/day triple is out of range.
var ErrInvalidDate = errors.New("invalid date")

var daysPerMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// epochDays is the civil day number of 1583-01-01, ordinal 0.
var epochDays = daysFromCivil(MinYear, 1, 1)

// maxOrdinal is the ordinal of 9999-12-31.
var maxOrdinal = daysFromCivil(MaxYear, 12, 31) - epochDays

// Date is a calendar day. The zero value is not a valid date; use New,
// Parse or FromOrdinal.
type Date struct {
	year  int
	month int
	day   int
}

// New validates and builds a Date.
func New(year, month, day int) (Date, error) {
	if year < MinYear {
		return Date{}, fmt.Errorf("%w: year %d must be after 1582", ErrInvalidDate, year)
	}
	if year > MaxYear {
		return Date{}, fmt.Errorf("%w: year %d is after %d", ErrInvalidDate, year, MaxYear)
	}
	if month < 1 || month > 12 {
		return Date{}, fmt.Errorf("%w: month %d out of range", ErrInvalidDate, month)
	}
	if !ValidDay(year, month, day) {
		return Date{}, fmt.Errorf("%w: day %d out of range for %d-%02d", ErrInvalidDate, day, year, month)
	}
	return Date{year: year, month: month, day: day}, nil
}

// MustNew is New for constants known to be valid. It panics otherwise.
func MustNew(year, month, day int) Date {
	d, err := New(year, month, day)
	if err != nil {
		panic(err)
	}
	return d
}

// Parse reads a "YYYY-M-D" date; zero padding of month and day is
// optional. It reports false for anything malformed or out of range.
func Parse(text string) (Date, bool) {
	parts := strings.Split(text, "-")
	if len(parts) != 3 {
		return Date{}, false
	}
	var nums [3]int
	for i, p := range parts {
		if p == "" || len(p) > 4 || !isDigits(p) {
			return Date{}, false
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Date{}, false
		}
		nums[i] = n
	}
	d, err := New(nums[0], nums[1], nums[2])
	if err != nil {
		return Date{}, false
	}
	return d, true
}

// FromTime converts the calendar day of t in its own location.
func FromTime(t time.Time) (Date, error) {
	return New(t.Year(), int(t.Month()), t.Day())
}

// IsLeapYear applies the Gregorian rule.
func IsLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// DaysInMonth returns the length of month in year, or 0 for a bad month.
func DaysInMonth(year, month int) int {
	if month < 1 || month > 12 {
		return 0
	}
	if month == 2 && IsLeapYear(year) {
		return 29
	}
	return daysPerMonth[month-1]
}

// ValidDay reports whether day exists in the given month of year.
func ValidDay(year, month, day int) bool {
	return day >= 1 && day <= DaysInMonth(year, month)
}

func (d Date) Year() int  { return d.year }
func (d Date) Month() int { return d.month }
func (d Date) Day() int   { return d.day }

// IsZero reports whether d is the zero value.
func (d Date) IsZero() bool { return d == Date{} }

// String renders YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%d-%02d-%02d", d.year, d.month, d.day)
}

// Compare returns -1, 0 or +1 ordering by (year, month, day).
func (d Date) Compare(o Date) int {
	switch {
	case d.year != o.year:
		return sign(d.year - o.year)
	case d.month != o.month:
		return sign(d.month - o.month)
	default:
		return sign(d.day - o.day)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }
func (d Date) Equal(o Date) bool  { return d.Compare(o) == 0 }

// Ordinal returns the number of days since 1583-01-01.
func (d Date) Ordinal() int {
	return daysFromCivil(d.year, d.month, d.day) - epochDays
}

// FromOrdinal is the inverse of Ordinal.
func FromOrdinal(n int) (Date, error) {
	if n < 0 {
		return Date{}, fmt.Errorf("%w: ordinal %d precedes %d-01-01", ErrInvalidDate, n, MinYear)
	}
	if n > maxOrdinal {
		return Date{}, fmt.Errorf("%w: ordinal %d is after %d-12-31", ErrInvalidDate, n, MaxYear)
	}
	y, m, dd := civilFromDays(n + epochDays)
	return Date{year: y, month: m, day: dd}, nil
}

// AddDays shifts d by n days (n may be negative).
func (d Date) AddDays(n int) (Date, error) {
	if n > maxOrdinal || n < -maxOrdinal {
		return Date{}, fmt.Errorf("%w: shift of %d days is out of range", ErrInvalidDate, n)
	}
	return FromOrdinal(d.Ordinal() + n)
}

// Sub returns the signed number of days from o to d.
func (d Date) Sub(o Date) int {
	return d.Ordinal() - o.Ordinal()
}

// Max returns the later of a and b.
func Max(a, b Date) Date {
	if a.Before(b) {
		return b
	}
	return a
}

// NullDate is a Date that may be absent, written as an empty field.
type NullDate struct {
	Date  Date
	Valid bool
}

// Some wraps a present date.
func Some(d Date) NullDate { return NullDate{Date: d, Valid: true} }

func (n NullDate) String() string {
	if !n.Valid {
		return ""
	}
	return n.Date.String()
}

// daysFromCivil counts days relative to 1970-01-01 (proleptic Gregorian).
func daysFromCivil(y, m, d int) int {
	if m <= 2 {
		y--
	}
	era := y
	if era < 0 {
		era -= 399
	}
	era /= 400
	yoe := y - era*400
	mp := m - 3
	if m <= 2 {
		mp = m + 9
	}
	doy := (153*mp+2)/5 + d - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 719468
}

func civilFromDays(z int) (year, month, day int) {
	z += 719468
	era := z
	if era < 0 {
		era -= 146096
	}
	era /= 146097
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	year = yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	day = doy - (153*mp+2)/5 + 1
	if mp < 10 {
		month = mp + 3
	} else {
		month = mp - 9
	}
	if month <= 2 {
		year++
	}
	return year, month, day
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
