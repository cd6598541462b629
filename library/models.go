package library

import (
	"database/sql"
	"strings"

	"libsys/date"
)

// Publisher of one or more catalog entries.
type Publisher struct {
	ID      int
	Name    string
	Deleted bool
}

// ISBN is a catalog entry. Code is the two digit key shared by every
// physical copy of the title.
type ISBN struct {
	Code          int
	Title         string
	PublisherID   int
	PublishedYear int
	RegisterDate  date.Date
}

// BookState is the lifecycle position of a physical copy.
type BookState int

const (
	BookActive BookState = iota
	BookRetired
)

// BookStatus is Active, or Retired together with the day it was retired.
type BookStatus struct {
	State BookState
	Since date.Date // set when State is BookRetired
}

// Active is the status of a copy that may be lent.
func Active() BookStatus { return BookStatus{State: BookActive} }

// RetiredOn is the status of a copy withdrawn on d.
func RetiredOn(d date.Date) BookStatus { return BookStatus{State: BookRetired, Since: d} }

func (s BookStatus) IsRetired() bool { return s.State == BookRetired }

// Book is one physical copy of an ISBN. Retired copies stay in the table
// so that their history remains readable.
type Book struct {
	ID           int
	ISBN         int
	RegisterDate date.Date
	Status       BookStatus
}

type Author struct {
	ID      int
	Name    string
	Deleted bool
}

// ISBNAuthor links a catalog entry to one of its authors.
type ISBNAuthor struct {
	ISBN     int
	AuthorID int
}

// User is a borrower, identified by phone number.
type User struct {
	ID      int
	Phone   string
	Name    string
	Deleted bool
}

// Borrow is one loan. It is active while Returned is not valid.
type Borrow struct {
	ID         int
	BookID     int
	UserID     int
	BorrowDate date.Date
	DueDate    date.Date
	Returned   date.NullDate
	Deleted    bool
}

func (b Borrow) Active() bool { return !b.Returned.Valid }

// IsOverdue reports whether b is still out and today is past its due date.
func IsOverdue(b Borrow, today date.Date) bool {
	return b.Active() && today.After(b.DueDate)
}

// Penalty bars a user from borrowing between Start and End inclusive.
type Penalty struct {
	ID     int
	UserID int
	Start  date.Date
	End    date.Date
}

// Covers reports whether d falls inside the window.
func (p Penalty) Covers(d date.Date) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

// LogType is the kind of event a Log row records.
type LogType string

const (
	LogRegister LogType = "REGISTER"
	LogISBNEdit LogType = "ISBN_EDIT"
	LogBorrow   LogType = "BORROW"
	LogReturn   LogType = "RETURN"
	LogDelete   LogType = "DELETE"
)

// ParseLogType accepts the current names and the older BOOK_ prefixed ones.
func ParseLogType(s string) (LogType, bool) {
	switch t := LogType(strings.TrimPrefix(s, "BOOK_")); t {
	case LogRegister, LogBorrow, LogReturn, LogDelete:
		return t, true
	}
	if LogType(s) == LogISBNEdit {
		return LogISBNEdit, true
	}
	return "", false
}

// Log is one entry of the append-only event journal.
type Log struct {
	ID       int
	ISBN     int
	BookID   sql.NullInt64
	BorrowID sql.NullInt64
	Date     date.Date
	Type     LogType
}

func nullID(id int) sql.NullInt64 { return sql.NullInt64{Int64: int64(id), Valid: true} }
