package library

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookIDs(views []BookView) []int {
	ids := make([]int, len(views))
	for i, v := range views {
		ids[i] = v.Book.ID
	}
	return ids
}

func TestSearch(t *testing.T) {
	lm, _ := newManager(t)
	d1 := day(t, "2024-01-01")
	register(t, lm, "07", "The Go Programming Language", "Donovan & Kernighan", d1)
	register(t, lm, "08", "The C Programming Language", "Kernighan #2 & Ritchie", d1)
	register(t, lm, "09", "Rust in Action", "McNamara", d1)
	retired := register(t, lm, "07", "", "", d1)
	_, err := lm.Retire(retired.ID, day(t, "2024-01-05"))
	require.NoError(t, err)

	tests := []struct {
		query string
		today string
		want  []int
	}{
		{"Programming", "2024-01-05", []int{0, 1}},
		{"Kernighan", "2024-01-05", []int{0, 1}},
		{"Rust", "2024-01-05", []int{2}},
		{"#3", "2024-01-05", []int{1}},
		{"nothing like this", "2024-01-05", []int{}},
		{"", "2024-01-05", []int{0, 1, 2}},
		// Before its retirement date the copy still shows up.
		{"Go", "2024-01-04", []int{0, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := lm.Search(tt.query, day(t, tt.today))
			require.NoError(t, err)
			assert.Equal(t, tt.want, bookIDs(got))
		})
	}
}

func TestSearchSeesLaterChanges(t *testing.T) {
	lm, _ := newManager(t)
	d1 := day(t, "2024-01-01")
	register(t, lm, "07", "Go Programming", "Kim", d1)

	got, err := lm.Search("Rust", d1)
	require.NoError(t, err)
	assert.Empty(t, got)

	register(t, lm, "08", "Rust in Action", "McNamara", d1)
	got, err = lm.Search("Rust", d1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, bookIDs(got))
}

func TestExport(t *testing.T) {
	lm, home := newManager(t)
	d1 := day(t, "2024-01-01")
	register(t, lm, "07", "Go Programming", "Kim", d1)
	register(t, lm, "07", "", "", d1)
	_, err := lm.Lend(LendRequest{Name: "Park", Phone: "010-1111-2222", BookID: 1}, d1)
	require.NoError(t, err)

	path := filepath.Join(home, "snapshot.db")
	require.NoError(t, lm.Export(path))
	// A second export replaces the first.
	require.NoError(t, lm.Export(path))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var books, borrows int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM books").Scan(&books))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM borrows").Scan(&borrows))
	assert.Equal(t, 2, books)
	assert.Equal(t, 1, borrows)

	var title string
	require.NoError(t, db.QueryRow("SELECT title FROM isbns WHERE isbn = 7").Scan(&title))
	assert.Equal(t, "Go Programming", title)
}

func TestApplyMigrations(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	require.NoError(t, applyMigrations(db))
	require.NoError(t, applyMigrations(db), "an up to date schema is left alone")
	var version int
	require.NoError(t, db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&version))
	assert.Equal(t, schemaVersion, version)

	_, err = db.Exec(`UPDATE meta SET value='unknown' WHERE key='schema_version'`)
	require.NoError(t, err)
	err = applyMigrations(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read schema version")
}
