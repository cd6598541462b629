package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libsys/config"
	"libsys/date"
	"libsys/library"
	"libsys/logging"
)

func TestImportBooks(t *testing.T) {
	store, report, err := library.Open(t.TempDir(), config.Default(), library.WithLogger(logging.Discard()))
	require.NoError(t, err)
	require.True(t, report.OK())
	manager := library.NewLibraryManager(store)
	t.Cleanup(func() { manager.Close() })

	input := strings.Join([]string{
		"isbn,title,authors,publisher,year",
		"07,The Go Programming Language,Donovan & Kernighan,Addison,2015",
		"07,,,,",
		"08,Bad/Title,Someone,Addison,2015",
		`09,"Rust, in Action",McNamara,Manning,2021`,
	}, "\n") + "\n"

	var out bytes.Buffer
	ok, failed, err := importBooks(&out, manager, strings.NewReader(input), date.MustNew(2024, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 3, ok)
	assert.Equal(t, 1, failed)
	assert.Contains(t, out.String(), "SUCCESS (ID: 2)")
	assert.Contains(t, out.String(), "ERROR - title must not be blank")

	books := manager.ListBooks(false)
	require.Len(t, books, 3)
	assert.Equal(t, "Rust, in Action", books[2].ISBN.Title)
	assert.Equal(t, "Donovan #1 & Kernighan #2", library.FormatAuthors(books[0].Authors))
}

func TestImportBooksMalformedCSV(t *testing.T) {
	store, _, err := library.Open(t.TempDir(), config.Default(), library.WithLogger(logging.Discard()))
	require.NoError(t, err)
	manager := library.NewLibraryManager(store)
	t.Cleanup(func() { manager.Close() })

	var out bytes.Buffer
	_, _, err = importBooks(&out, manager, strings.NewReader("07,Go,Kim\n"), date.MustNew(2024, 1, 1))
	assert.Error(t, err)
}
