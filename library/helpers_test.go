package library

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"libsys/config"
	"libsys/date"
	"libsys/logging"
)

var fixedClock = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }

// day parses a YYYY-MM-DD literal.
func day(t *testing.T, s string) date.Date {
	t.Helper()
	d, ok := date.Parse(s)
	require.True(t, ok, "bad date literal %q", s)
	return d
}

// writeTables seeds <home>/data with the given file contents.
func writeTables(t *testing.T, home string, files map[Table]string) {
	t.Helper()
	dir := filepath.Join(home, "data")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for tbl, content := range files {
		require.NoError(t, os.WriteFile(tbl.Path(dir), []byte(content), 0o644))
	}
}

func readTable(t *testing.T, home string, tbl Table) string {
	t.Helper()
	raw, err := os.ReadFile(tbl.Path(filepath.Join(home, "data")))
	require.NoError(t, err)
	return string(raw)
}

func lines(rows ...string) string { return strings.Join(rows, "\n") + "\n" }

func openStore(t *testing.T, home string, cfg config.Config) (*Store, *LoadReport) {
	t.Helper()
	s, report, err := Open(home, cfg, WithLogger(logging.Discard()), WithClock(fixedClock))
	require.NoError(t, err)
	return s, report
}

// newManager opens a manager over an empty data home.
func newManager(t *testing.T) (*LibraryManager, string) {
	t.Helper()
	home := t.TempDir()
	s, report := openStore(t, home, config.Default())
	require.True(t, report.OK())
	lm := NewLibraryManager(s)
	t.Cleanup(func() { lm.Close() })
	return lm, home
}

// register adds a copy of a new or existing isbn and fails the test on error.
func register(t *testing.T, lm *LibraryManager, isbn, title, authors string, today date.Date) Book {
	t.Helper()
	res, err := lm.Register(RegisterRequest{
		ISBN: isbn, Title: title, Authors: authors, Publisher: "Hanbit", Year: "2020",
	}, today)
	require.NoError(t, err)
	return res.Book
}
