package library

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"libsys/date"
)

const sep = "/"

// ReadLines returns the records of a table file. Trailing newlines are
// dropped and a file holding only a blank line is an empty table.
func ReadLines(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	text = strings.TrimRight(text, "\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

// WriteTable replaces path with lines, one per row, through a temp file
// and rename so a failed write never leaves a truncated table.
func WriteTable(path string, lines []string) error {
	return writeFileAtomic(path, []byte(joinLines(lines)))
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

func splitRecord(line string) []string { return strings.Split(line, sep) }

func joinRecord(fields ...string) string { return strings.Join(fields, sep) }

// ---------------------------------------------------------------------------
// Field helpers
// ---------------------------------------------------------------------------

func formatCode(n int) string { return fmt.Sprintf("%02d", n) }

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatNullID(id sql.NullInt64) string {
	if !id.Valid {
		return ""
	}
	return strconv.FormatInt(id.Int64, 10)
}

// fieldReader decodes successive columns and keeps the first error.
type fieldReader struct {
	fields []string
	err    error
}

func (r *fieldReader) fail(i int, what string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: column %d %q is not %s", ErrCorruptRecord, i+1, r.fields[i], what)
	}
}

func (r *fieldReader) num(i int) int {
	n, err := strconv.Atoi(r.fields[i])
	if err != nil || n < 0 {
		r.fail(i, "a non-negative integer")
	}
	return n
}

func (r *fieldReader) flag(i int) bool {
	switch r.fields[i] {
	case "0":
		return false
	case "1":
		return true
	}
	r.fail(i, "0 or 1")
	return false
}

func (r *fieldReader) day(i int) date.Date {
	d, ok := date.Parse(r.fields[i])
	if !ok {
		r.fail(i, "a date")
	}
	return d
}

func (r *fieldReader) optDay(i int) date.NullDate {
	if r.fields[i] == "" {
		return date.NullDate{}
	}
	return date.Some(r.day(i))
}

func (r *fieldReader) optID(i int) sql.NullInt64 {
	if r.fields[i] == "" {
		return sql.NullInt64{}
	}
	return nullID(r.num(i))
}

func newFieldReader(t Table, fields []string) (*fieldReader, error) {
	if want := len(specs[t].Fields); len(fields) != want {
		return nil, fmt.Errorf("%w: %s row has %d fields, want %d", ErrCorruptRecord, t, len(fields), want)
	}
	return &fieldReader{fields: fields}, nil
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

func decodePublisher(f []string) (Publisher, error) {
	r, err := newFieldReader(TablePublisher, f)
	if err != nil {
		return Publisher{}, err
	}
	p := Publisher{ID: r.num(0), Name: f[1], Deleted: r.flag(2)}
	return p, r.err
}

func encodePublisher(p Publisher) string {
	return joinRecord(strconv.Itoa(p.ID), p.Name, formatBool(p.Deleted))
}

func decodeISBN(f []string) (ISBN, error) {
	r, err := newFieldReader(TableISBN, f)
	if err != nil {
		return ISBN{}, err
	}
	i := ISBN{Code: r.num(0), Title: f[1], PublisherID: r.num(2), PublishedYear: r.num(3), RegisterDate: r.day(4)}
	return i, r.err
}

func encodeISBN(i ISBN) string {
	return joinRecord(formatCode(i.Code), i.Title, strconv.Itoa(i.PublisherID),
		strconv.Itoa(i.PublishedYear), i.RegisterDate.String())
}

// decodeBook maps the legacy deleted/delete_date pair onto BookStatus.
func decodeBook(f []string) (Book, error) {
	r, err := newFieldReader(TableBook, f)
	if err != nil {
		return Book{}, err
	}
	b := Book{ID: r.num(0), ISBN: r.num(1), RegisterDate: r.day(2), Status: Active()}
	if r.flag(3) {
		b.Status = RetiredOn(r.day(4))
	} else if f[4] != "" {
		r.fail(4, "empty for an active book")
	}
	return b, r.err
}

func encodeBook(b Book) string {
	deleted, since := "0", ""
	if b.Status.IsRetired() {
		deleted, since = "1", b.Status.Since.String()
	}
	return joinRecord(strconv.Itoa(b.ID), formatCode(b.ISBN), b.RegisterDate.String(), deleted, since)
}

func decodeAuthor(f []string) (Author, error) {
	r, err := newFieldReader(TableAuthor, f)
	if err != nil {
		return Author{}, err
	}
	a := Author{ID: r.num(0), Name: f[1], Deleted: r.flag(2)}
	return a, r.err
}

func encodeAuthor(a Author) string {
	return joinRecord(strconv.Itoa(a.ID), a.Name, formatBool(a.Deleted))
}

func decodeISBNAuthor(f []string) (ISBNAuthor, error) {
	r, err := newFieldReader(TableISBNAuthor, f)
	if err != nil {
		return ISBNAuthor{}, err
	}
	ia := ISBNAuthor{ISBN: r.num(0), AuthorID: r.num(1)}
	return ia, r.err
}

func encodeISBNAuthor(ia ISBNAuthor) string {
	return joinRecord(formatCode(ia.ISBN), strconv.Itoa(ia.AuthorID))
}

func decodeUser(f []string) (User, error) {
	r, err := newFieldReader(TableUser, f)
	if err != nil {
		return User{}, err
	}
	u := User{ID: r.num(0), Phone: f[1], Name: f[2], Deleted: r.flag(3)}
	return u, r.err
}

func encodeUser(u User) string {
	return joinRecord(strconv.Itoa(u.ID), u.Phone, u.Name, formatBool(u.Deleted))
}

func decodeBorrow(f []string) (Borrow, error) {
	r, err := newFieldReader(TableBorrow, f)
	if err != nil {
		return Borrow{}, err
	}
	b := Borrow{
		ID:         r.num(0),
		BookID:     r.num(1),
		UserID:     r.num(2),
		BorrowDate: r.day(3),
		DueDate:    r.day(4),
		Returned:   r.optDay(5),
		Deleted:    r.flag(6),
	}
	return b, r.err
}

func encodeBorrow(b Borrow) string {
	return joinRecord(strconv.Itoa(b.ID), strconv.Itoa(b.BookID), strconv.Itoa(b.UserID),
		b.BorrowDate.String(), b.DueDate.String(), b.Returned.String(), formatBool(b.Deleted))
}

func decodePenalty(f []string) (Penalty, error) {
	r, err := newFieldReader(TablePenalty, f)
	if err != nil {
		return Penalty{}, err
	}
	p := Penalty{ID: r.num(0), UserID: r.num(1), Start: r.day(2), End: r.day(3)}
	return p, r.err
}

func encodePenalty(p Penalty) string {
	return joinRecord(strconv.Itoa(p.ID), strconv.Itoa(p.UserID), p.Start.String(), p.End.String())
}

func decodeLog(f []string) (Log, error) {
	r, err := newFieldReader(TableLog, f)
	if err != nil {
		return Log{}, err
	}
	l := Log{ID: r.num(0), ISBN: r.num(1), BookID: r.optID(2), BorrowID: r.optID(3), Date: r.day(4)}
	t, ok := ParseLogType(f[5])
	if !ok {
		r.fail(5, "a log type")
	}
	l.Type = t
	return l, r.err
}

func encodeLog(l Log) string {
	return joinRecord(strconv.Itoa(l.ID), formatCode(l.ISBN), formatNullID(l.BookID),
		formatNullID(l.BorrowID), l.Date.String(), string(l.Type))
}

// decodeCounter reads the Book file header.
func decodeCounter(line string) (int, error) {
	if !isDigits(line) {
		return 0, fmt.Errorf("%w: counter %q is not a non-negative integer", ErrCorruptRecord, line)
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return 0, errors.Join(ErrCorruptRecord, err)
	}
	return n, nil
}
