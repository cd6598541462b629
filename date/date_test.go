package date

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrdinalRoundTrip(t *testing.T) {
	prev := -1
	for n := 0; n < 200000; n += 7 {
		d, err := FromOrdinal(n)
		require.NoError(t, err)
		assert.Equal(t, n, d.Ordinal(), "date %s", d)
		assert.Greater(t, d.Ordinal(), prev)
		prev = d.Ordinal()
	}
}

func TestOrdinalAnchors(t *testing.T) {
	assert.Equal(t, 0, MustNew(1583, 1, 1).Ordinal())
	assert.Equal(t, 365, MustNew(1584, 1, 1).Ordinal())

	d, err := FromOrdinal(0)
	require.NoError(t, err)
	assert.Equal(t, "1583-01-01", d.String())

	_, err = FromOrdinal(-1)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestLeapYears(t *testing.T) {
	tests := []struct {
		year int
		leap bool
	}{
		{1600, true},
		{1700, false},
		{1900, false},
		{2000, true},
		{2024, true},
		{2023, false},
		{2100, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.leap, IsLeapYear(tt.year), "year %d", tt.year)
	}
	assert.Equal(t, 29, DaysInMonth(2000, 2))
	assert.Equal(t, 28, DaysInMonth(1900, 2))
}

func TestNewRejects(t *testing.T) {
	tests := []struct {
		name    string
		y, m, d int
	}{
		{"before reform", 1582, 12, 31},
		{"month zero", 2024, 0, 1},
		{"month thirteen", 2024, 13, 1},
		{"day zero", 2024, 1, 0},
		{"feb 29 non-leap", 2023, 2, 29},
		{"april 31", 2024, 4, 31},
		{"five digit year", 10000, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.y, tt.m, tt.d)
			assert.ErrorIs(t, err, ErrInvalidDate)
		})
	}
}

func TestParse(t *testing.T) {
	d, ok := Parse("2024-1-5")
	require.True(t, ok)
	assert.Equal(t, "2024-01-05", d.String())

	d, ok = Parse("2024-02-29")
	require.True(t, ok)
	assert.Equal(t, 29, d.Day())

	for _, bad := range []string{"", "2024", "2024-01", "2024-01-01-01", "2024/01/01",
		"abcd-01-01", "2024--01", "1582-12-31", "2023-02-29", "+2024-01-01", " 2024-01-01", "2024-1-32"} {
		_, ok := Parse(bad)
		assert.False(t, ok, "expected %q to be rejected", bad)
	}
}

func TestArithmetic(t *testing.T) {
	start := MustNew(2024, 1, 1)
	due, err := start.AddDays(7)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-08", due.String())

	end, err := MustNew(2024, 2, 28).AddDays(1)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", end.String())

	end, err = MustNew(2023, 12, 31).AddDays(1)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", end.String())

	assert.Equal(t, 2, MustNew(2024, 1, 10).Sub(due))
	assert.Equal(t, -2, due.Sub(MustNew(2024, 1, 10)))

	_, err = MustNew(1583, 1, 1).AddDays(-1)
	assert.Error(t, err)
}

func TestLastRepresentableDay(t *testing.T) {
	last, err := MustNew(9999, 12, 30).AddDays(1)
	require.NoError(t, err)
	assert.Equal(t, "9999-12-31", last.String())
	d, ok := Parse(last.String())
	require.True(t, ok)
	assert.Equal(t, last, d)

	_, err = last.AddDays(1)
	assert.ErrorIs(t, err, ErrInvalidDate)
	_, err = MustNew(2024, 1, 1).AddDays(3000000)
	assert.ErrorIs(t, err, ErrInvalidDate)
	_, err = MustNew(2024, 1, 1).AddDays(math.MaxInt)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestCompare(t *testing.T) {
	a := MustNew(2024, 3, 1)
	b := MustNew(2024, 2, 29)
	assert.True(t, b.Before(a))
	assert.True(t, a.After(b))
	assert.True(t, a.Equal(MustNew(2024, 3, 1)))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, a, Max(a, b))
}

func TestNullDate(t *testing.T) {
	assert.Equal(t, "", NullDate{}.String())
	assert.Equal(t, "2024-01-08", Some(MustNew(2024, 1, 8)).String())
}
