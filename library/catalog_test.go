package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libsys/config"
)

func TestParseAuthors(t *testing.T) {
	tests := []struct {
		in   string
		want []AuthorRef
		ok   bool
	}{
		{"", nil, true},
		{"  &  ", nil, true},
		{"Kim", []AuthorRef{{Name: "Kim"}}, true},
		{"Kim & Lee #3", []AuthorRef{{Name: "Kim"}, {Name: "Lee", ID: 3, HasID: true}}, true},
		{"Lee#12", []AuthorRef{{Name: "Lee", ID: 12, HasID: true}}, true},
		{"Lee #0", nil, false},
		{"Lee #03", nil, false},
		{"Lee #x", nil, false},
		{"Lee #1 #2", nil, false},
		{"#4", nil, false},
		{"K/m", nil, false},
		{"a & b & c & d & e & f", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAuthors(tt.in)
			if !tt.ok {
				assert.True(t, IsRejection(err, CodeInvalidArgument), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegisterNewAndExistingISBN(t *testing.T) {
	lm, home := newManager(t)
	d1 := day(t, "2024-01-01")

	res, err := lm.Register(RegisterRequest{
		ISBN: "07", Title: "Go Programming", Authors: "Kim & Lee", Publisher: "Hanbit", Year: "2020",
	}, d1)
	require.NoError(t, err)
	assert.True(t, res.NewISBN)
	assert.Equal(t, 0, res.Book.ID)
	assert.Equal(t, "Kim #1 & Lee #2", FormatAuthors(res.View.Authors))
	assert.Equal(t, "Hanbit", res.View.Publisher.Name)
	assert.Equal(t, LogRegister, res.LogEntry.Type)

	// A known isbn ignores the catalog fields.
	res, err = lm.Register(RegisterRequest{ISBN: "07", Title: "ignored"}, day(t, "2024-01-02"))
	require.NoError(t, err)
	assert.False(t, res.NewISBN)
	assert.Equal(t, 1, res.Book.ID)
	assert.Equal(t, "Go Programming", res.View.ISBN.Title)

	// Publisher and author rows are shared.
	register(t, lm, "08", "Rust in Action", "Lee #2", day(t, "2024-01-02"))
	assert.Len(t, lm.Store().Publishers(), 1)
	assert.Len(t, lm.Store().Authors(), 2)

	assert.Equal(t, lines("3", "0/07/2024-01-01/0/", "1/07/2024-01-02/0/", "2/08/2024-01-02/0/"), readTable(t, home, TableBook))
	assert.Equal(t, lines("07/1", "07/2", "08/2"), readTable(t, home, TableISBNAuthor))
}

func TestRegisterRejections(t *testing.T) {
	lm, _ := newManager(t)
	d1 := day(t, "2024-01-01")
	register(t, lm, "07", "Go Programming", "Kim", d1)

	tests := []struct {
		name string
		req  RegisterRequest
		code Code
	}{
		{"short isbn", RegisterRequest{ISBN: "7"}, CodeInvalidArgument},
		{"isbn letters", RegisterRequest{ISBN: "ab"}, CodeInvalidArgument},
		{"blank title", RegisterRequest{ISBN: "08", Title: " ", Publisher: "P", Year: "2020"}, CodeInvalidArgument},
		{"slash publisher", RegisterRequest{ISBN: "08", Title: "T", Publisher: "A/B", Year: "2020"}, CodeInvalidArgument},
		{"year too old", RegisterRequest{ISBN: "08", Title: "T", Publisher: "P", Year: "1500"}, CodeInvalidArgument},
		{"year in future", RegisterRequest{ISBN: "08", Title: "T", Publisher: "P", Year: "2025"}, CodeInvalidArgument},
		{"unknown author id", RegisterRequest{ISBN: "08", Title: "T", Authors: "Kim #9", Publisher: "P", Year: "2020"}, CodeNotFound},
		{"author id mismatch", RegisterRequest{ISBN: "08", Title: "T", Authors: "Lee #1", Publisher: "P", Year: "2020"}, CodeConflict},
		{"author listed twice", RegisterRequest{ISBN: "08", Title: "T", Authors: "Kim & Kim #1", Publisher: "P", Year: "2020"}, CodeInvalidArgument},
		{"new author listed twice", RegisterRequest{ISBN: "08", Title: "T", Authors: "Lee & Lee", Publisher: "P", Year: "2020"}, CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lm.Register(tt.req, d1)
			assert.True(t, IsRejection(err, tt.code), "got %v", err)
		})
	}
	assert.Len(t, lm.Store().Books(), 1)
	assert.Len(t, lm.Store().ISBNs(), 1)
	assert.Len(t, lm.Store().Authors(), 1)
	assert.Len(t, lm.Store().Publishers(), 1)
}

func TestRegisterSharedAuthorName(t *testing.T) {
	home := t.TempDir()
	writeTables(t, home, map[Table]string{
		TableAuthor: lines("1/Kim/0", "2/Kim/0"),
	})
	s, report := openStore(t, home, config.Default())
	require.True(t, report.OK(), "%+v", report.Failures)
	lm := NewLibraryManager(s)
	t.Cleanup(func() { lm.Close() })
	d1 := day(t, "2024-01-01")

	req := RegisterRequest{ISBN: "07", Title: "Go", Authors: "Kim", Publisher: "Hanbit", Year: "2020"}
	_, err := lm.Register(req, d1)
	assert.True(t, IsRejection(err, CodeConflict), "got %v", err)

	var offered []Author
	req.Choose = func(name string, candidates []Author) (Author, bool) {
		offered = candidates
		return candidates[1], true
	}
	res, err := lm.Register(req, d1)
	require.NoError(t, err)
	assert.Len(t, offered, 2)
	assert.Equal(t, "Kim #2", FormatAuthors(res.View.Authors))

	req.ISBN = "08"
	req.Choose = func(string, []Author) (Author, bool) { return Author{}, false }
	_, err = lm.Register(req, d1)
	assert.True(t, IsRejection(err, CodeConflict), "got %v", err)

	req.Choose, req.Authors = nil, "Kim #1"
	_, err = lm.Register(req, d1)
	require.NoError(t, err)
}

func TestRegisterStoreFull(t *testing.T) {
	home := t.TempDir()
	cfg := config.Default()
	cfg.MaxStaticID = 1
	s, _ := openStore(t, home, cfg)
	lm := NewLibraryManager(s)
	t.Cleanup(func() { lm.Close() })
	d1 := day(t, "2024-01-01")

	register(t, lm, "07", "Go", "Kim", d1)
	register(t, lm, "07", "", "", d1)
	_, err := lm.Register(RegisterRequest{ISBN: "07"}, d1)
	assert.ErrorIs(t, err, ErrStoreFull)
	assert.Len(t, lm.Store().Books(), 2)
}

func TestRetire(t *testing.T) {
	lm, home := newManager(t)
	d1 := day(t, "2024-01-01")
	book := register(t, lm, "07", "Go Programming", "Kim", d1)
	lent := register(t, lm, "07", "", "", d1)
	_, err := lm.Lend(LendRequest{Name: "Park", Phone: "010-1111-2222", BookID: lent.ID}, d1)
	require.NoError(t, err)

	_, err = lm.Retire(lent.ID, d1)
	assert.True(t, IsRejection(err, CodeOnLoan), "got %v", err)
	_, err = lm.Retire(9, d1)
	assert.True(t, IsRejection(err, CodeNotFound), "got %v", err)

	got, err := lm.Retire(book.ID, day(t, "2024-01-03"))
	require.NoError(t, err)
	assert.True(t, got.Status.IsRetired())
	assert.Equal(t, "2024-01-03", got.Status.Since.String())

	_, err = lm.Retire(book.ID, day(t, "2024-01-03"))
	assert.True(t, IsRejection(err, CodeRetired), "got %v", err)

	assert.Len(t, lm.ListBooks(false), 1)
	assert.Len(t, lm.ListBooks(true), 2)
	assert.Contains(t, readTable(t, home, TableBook), "0/07/2024-01-01/1/2024-01-03\n")
}

func TestAmend(t *testing.T) {
	lm, home := newManager(t)
	register(t, lm, "07", "Go Programming", "Kim", day(t, "2023-06-01"))

	rec, err := lm.Amend(AmendRequest{
		ISBN: "07", Title: "The Go Programming Language", Authors: "Donovan & Kim #1", Publisher: "Addison", Year: "2015",
	}, day(t, "2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, "The Go Programming Language", rec.Title)
	assert.Equal(t, 2015, rec.PublishedYear)

	v, err := lm.View(0)
	require.NoError(t, err)
	assert.Equal(t, "Donovan #2 & Kim #1", FormatAuthors(v.Authors))
	assert.Equal(t, "Addison", v.Publisher.Name)
	assert.Equal(t, "07/2\n07/1\n", readTable(t, home, TableISBNAuthor))

	logs := lm.Store().Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, LogISBNEdit, logs[1].Type)
	assert.False(t, logs[1].BookID.Valid)

	tests := []struct {
		name string
		req  AmendRequest
		code Code
	}{
		{"unknown isbn", AmendRequest{ISBN: "08", Title: "T", Publisher: "P", Year: "2020"}, CodeNotFound},
		{"year after registration", AmendRequest{ISBN: "07", Title: "T", Publisher: "P", Year: "2024"}, CodeInvalidArgument},
		{"blank title", AmendRequest{ISBN: "07", Title: "", Publisher: "P", Year: "2020"}, CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lm.Amend(tt.req, day(t, "2024-01-02"))
			assert.True(t, IsRejection(err, tt.code), "got %v", err)
		})
	}
}
