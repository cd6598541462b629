package library

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libsys/config"
)

func TestOpenCreatesMissingFiles(t *testing.T) {
	home := t.TempDir()
	s, report := openStore(t, home, config.Default())

	assert.True(t, report.OK())
	assert.ElementsMatch(t, LoadOrder, report.Created)
	assert.Equal(t, "0\n", readTable(t, home, TableBook))
	assert.Equal(t, "", readTable(t, home, TableLog))
	assert.Equal(t, filepath.Join(home, "data"), s.DataDir())
}

func TestQuarantineDuplicateAuthor(t *testing.T) {
	home := t.TempDir()
	files := catalog()
	files[TableISBNAuthor] = ""
	files[TableAuthor] = lines("1/Kim/0", "2/Lee/0", "2/Choi/0")
	writeTables(t, home, files)

	s, report := openStore(t, home, config.Default())

	assert.Empty(t, s.Authors())
	require.Len(t, report.Failures, 1)
	f := report.Failures[0]
	assert.Equal(t, TableAuthor, f.Err.Table)
	assert.Equal(t, 3, f.Err.Line)
	assert.Equal(t, PhaseUniqueness, f.Err.Phase)
	assert.Contains(t, f.Err.Reason, "duplicate author_id 2")

	assert.Equal(t, filepath.Join(home, "data", "Libsystem_Data_Author-20240301_093000.bak"), f.Backup)
	backup, err := os.ReadFile(f.Backup)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(backup), files[TableAuthor]), "backup keeps the original rows")
	assert.Contains(t, string(backup), "integrity check failed at line 3 - uniqueness")
	assert.Contains(t, string(backup), "blake2b-256 ")

	assert.Equal(t, "", readTable(t, home, TableAuthor))

	// The rest of the catalog is unaffected.
	assert.Len(t, s.Books(), 3)
	assert.Len(t, s.Users(), 1)
}

func TestQuarantineBookResetsCounter(t *testing.T) {
	home := t.TempDir()
	files := catalog()
	files[TableBook] = lines("3", "0/07/2024-01-02/0/", "0/07/2024-01-02/0/")
	writeTables(t, home, files)

	s, report := openStore(t, home, config.Default())
	require.Len(t, report.Failures, 1)
	assert.Empty(t, s.Books())
	assert.Equal(t, "0\n", readTable(t, home, TableBook))
}

func TestQuarantineNameCollision(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, "data")
	writeTables(t, home, map[Table]string{TablePublisher: lines("5/Hanbit/0")})
	ierr := &IntegrityError{Table: TablePublisher, Line: 1, Phase: PhaseUniqueness, Reason: "test"}

	first, err := Quarantine(dir, ierr, fixedClock())
	require.NoError(t, err)
	writeTables(t, home, map[Table]string{TablePublisher: lines("7/Hanbit/0")})
	second, err := Quarantine(dir, ierr, fixedClock())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasSuffix(second, "-20240301_093000-1.bak"), second)
	raw, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "7/Hanbit/0\n"))
}

func TestFlushWritesOnlyChangedTables(t *testing.T) {
	home := t.TempDir()
	files := catalog()
	// Legacy spelling: re-encoding would change the file, but an untouched
	// table must not be rewritten.
	files[TableLog] = lines("0/07/0//2024-01-02/BOOK_REGISTER")
	writeTables(t, home, files)
	s, report := openStore(t, home, config.Default())
	require.True(t, report.OK(), "%+v", report.Failures)

	require.NoError(t, s.Flush())
	assert.Equal(t, files[TableLog], readTable(t, home, TableLog))

	s.addPublisher("Gilbut")
	require.NoError(t, s.Flush())
	assert.Equal(t, lines("0/Hanbit/0", "1/Gilbut/0"), readTable(t, home, TablePublisher))
	assert.Equal(t, files[TableLog], readTable(t, home, TableLog))

	require.NoError(t, s.FlushAll())
	assert.Equal(t, lines("0/07/0//2024-01-02/REGISTER"), readTable(t, home, TableLog))
}

func TestBookCounterFollowsRows(t *testing.T) {
	home := t.TempDir()
	files := catalog()
	files[TableBook] = lines("5", "0/07/2024-01-02/0/", "1/07/2024-01-02/0/", "2/07/2024-01-03/0/")
	writeTables(t, home, files)

	s, report := openStore(t, home, config.Default())
	require.True(t, report.OK(), "%+v", report.Failures)
	id, err := s.AllocateBookID()
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	require.NoError(t, s.Flush())
	assert.Equal(t, lines("3", "0/07/2024-01-02/0/", "1/07/2024-01-02/0/", "2/07/2024-01-03/0/"),
		readTable(t, home, TableBook))

	_, report = openStore(t, home, config.Default())
	assert.True(t, report.OK(), "%+v", report.Failures)
}

func TestAllocateBookIDCeiling(t *testing.T) {
	home := t.TempDir()
	cfg := config.Default()
	cfg.MaxStaticID = 2
	writeTables(t, home, catalog())
	s, report := openStore(t, home, cfg)
	require.True(t, report.OK(), "%+v", report.Failures)

	_, err := s.AllocateBookID()
	assert.ErrorIs(t, err, ErrStoreFull)

	cfg.MaxStaticID = 3
	s, _ = openStore(t, home, cfg)
	id, err := s.AllocateBookID()
	require.NoError(t, err)
	assert.Equal(t, 3, id)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MaxBorrowCount = 0
	_, _, err := Open(t.TempDir(), cfg)
	assert.Error(t, err)
}

func TestLookups(t *testing.T) {
	home := t.TempDir()
	files := catalog()
	files[TableBorrow] = lines("0/1/0/2024-01-05/2024-01-12//0")
	files[TablePenalty] = lines("0/0/2024-01-01/2024-01-03", "1/0/2024-01-02/2024-01-09")
	writeTables(t, home, files)
	s, report := openStore(t, home, config.Default())
	require.True(t, report.OK(), "%+v", report.Failures)

	a, ok := s.Author(2)
	require.True(t, ok)
	assert.Equal(t, "Lee", a.Name)
	_, ok = s.Author(0)
	assert.False(t, ok)

	assert.Equal(t, []int{1, 2}, s.AuthorIDsByISBN(7))
	assert.Len(t, s.BooksByISBN(7), 3)

	u, ok := s.UserByPhone("010-1234-5678")
	require.True(t, ok)
	assert.Equal(t, "Park", u.Name)

	br, ok := s.ActiveBorrow(1)
	require.True(t, ok)
	assert.Equal(t, 0, br.ID)
	assert.Len(t, s.ActiveBorrowsByUser(0), 1)

	p, ok := s.ActivePenalty(0, day(t, "2024-01-03"))
	require.True(t, ok)
	assert.Equal(t, 1, p.ID, "the window ending last wins")
	_, ok = s.ActivePenalty(0, day(t, "2024-01-10"))
	assert.False(t, ok)
}
