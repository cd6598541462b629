package library

import (
	"fmt"
	"slices"

	"libsys/date"
)

// EventKind classifies a HistoryEntry.
type EventKind string

const (
	EventISBNRegistered EventKind = "isbn registered"
	EventRegistered     EventKind = "registered"
	EventAmended        EventKind = "amended"
	EventLent           EventKind = "lent"
	EventReturned       EventKind = "returned"
	EventRetired        EventKind = "retired"
)

// HistoryEntry is one line of a copy's history.
type HistoryEntry struct {
	Date date.Date
	Kind EventKind
	// Borrower and Due are set for EventLent, Borrower for EventReturned.
	Borrower *User
	Due      date.NullDate
	DaysLate int
}

func (e HistoryEntry) String() string {
	switch e.Kind {
	case EventLent:
		if e.Borrower != nil {
			return fmt.Sprintf("%s lent to %s %s, due %s", e.Date, e.Borrower.Phone, e.Borrower.Name, e.Due)
		}
		return fmt.Sprintf("%s lent, due %s", e.Date, e.Due)
	case EventReturned:
		if e.DaysLate > 0 {
			return fmt.Sprintf("%s returned (%d days late)", e.Date, e.DaysLate)
		}
		return fmt.Sprintf("%s returned", e.Date)
	}
	return fmt.Sprintf("%s %s", e.Date, e.Kind)
}

// History replays the life of a copy: the registration of its ISBN, then
// every log entry naming the copy or amending its ISBN, in log order.
// Registration and retirement fall back to the Book row when their log
// entries are missing.
func (lm *LibraryManager) History(bookID int) (BookView, []HistoryEntry, error) {
	b, ok := lm.store.Book(bookID)
	if !ok {
		return BookView{}, nil, reject(CodeNotFound, "book %d does not exist", bookID)
	}
	v := lm.view(b)

	entries := []HistoryEntry{{Date: v.ISBN.RegisterDate, Kind: EventISBNRegistered}}
	var sawRegister, sawDelete bool
	for _, l := range lm.store.LogsByISBN(b.ISBN) {
		if l.Type == LogISBNEdit {
			entries = append(entries, HistoryEntry{Date: l.Date, Kind: EventAmended})
			continue
		}
		if !l.BookID.Valid || int(l.BookID.Int64) != b.ID {
			continue
		}
		switch l.Type {
		case LogRegister:
			sawRegister = true
			entries = append(entries, HistoryEntry{Date: l.Date, Kind: EventRegistered})
		case LogBorrow:
			e := HistoryEntry{Date: l.Date, Kind: EventLent}
			if br, ok := lm.store.Borrow(int(l.BorrowID.Int64)); ok {
				e.Due = date.Some(br.DueDate)
				if u, ok := lm.store.User(br.UserID); ok {
					e.Borrower = &u
				}
			}
			entries = append(entries, e)
		case LogReturn:
			e := HistoryEntry{Date: l.Date, Kind: EventReturned}
			if br, ok := lm.store.Borrow(int(l.BorrowID.Int64)); ok {
				if u, ok := lm.store.User(br.UserID); ok {
					e.Borrower = &u
				}
				if br.Returned.Valid {
					e.DaysLate = max(0, br.Returned.Date.Sub(br.DueDate))
				}
			}
			entries = append(entries, e)
		case LogDelete:
			sawDelete = true
			entries = append(entries, HistoryEntry{Date: l.Date, Kind: EventRetired})
		}
	}

	if !sawRegister {
		entries = append(entries, HistoryEntry{Date: b.RegisterDate, Kind: EventRegistered})
	}
	if b.Status.IsRetired() && !sawDelete {
		entries = append(entries, HistoryEntry{Date: b.Status.Since, Kind: EventRetired})
	}
	slices.SortStableFunc(entries, func(x, y HistoryEntry) int { return x.Date.Compare(y.Date) })
	return v, entries, nil
}
