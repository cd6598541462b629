package library

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"libsys/config"
	"libsys/date"
)

// LibraryManager runs the business operations on top of a Store. Every
// mutating operation checks all of its preconditions before touching any
// table and flushes the changed tables once it succeeds.
type LibraryManager struct {
	store *Store
	cfg   config.Config
	log   *slog.Logger

	index      *Index
	indexStale bool
}

// NewLibraryManager wraps an opened store.
func NewLibraryManager(store *Store) *LibraryManager {
	return &LibraryManager{store: store, cfg: store.Config(), log: store.log, indexStale: true}
}

// Close releases the search index, if one was built.
func (lm *LibraryManager) Close() error {
	if lm.index == nil {
		return nil
	}
	err := lm.index.Close()
	lm.index = nil
	return err
}

// Store exposes the underlying tables for read access.
func (lm *LibraryManager) Store() *Store { return lm.store }

// commit flushes the tables changed by a successful operation. A flush
// error leaves memory ahead of disk; the next commit retries.
func (lm *LibraryManager) commit(op string) error {
	lm.indexStale = true
	if err := lm.store.Flush(); err != nil {
		lm.log.Error("flush after operation failed", "op", op, "error", err)
		return err
	}
	return nil
}

// checkLogOrder keeps the log non-decreasing: no operation may be dated
// before the newest log entry.
func (lm *LibraryManager) checkLogOrder(today date.Date) error {
	if last, ok := lm.store.LastLogDate(); ok && today.Before(last) {
		return reject(CodeLogOrder, "date %s is before the last recorded event on %s", today, last)
	}
	return nil
}

func (lm *LibraryManager) rejected(op string, err error) error {
	var re *RejectionError
	if errors.As(err, &re) {
		lm.log.Info("operation rejected", "op", op, "code", string(re.Code), "reason", re.Message)
	}
	return err
}

// ------------------ Views ------------------

// BookView joins a copy with its catalog entry, authors, publisher and
// current loan.
type BookView struct {
	Book      Book
	ISBN      ISBN
	Authors   []Author
	Publisher Publisher
	Loan      *Borrow
	Borrower  *User
}

// View returns the joined record of one copy.
func (lm *LibraryManager) View(bookID int) (BookView, error) {
	b, ok := lm.store.Book(bookID)
	if !ok {
		return BookView{}, reject(CodeNotFound, "book %d does not exist", bookID)
	}
	return lm.view(b), nil
}

func (lm *LibraryManager) view(b Book) BookView {
	v := BookView{Book: b}
	v.ISBN, _ = lm.store.ISBN(b.ISBN)
	v.Publisher, _ = lm.store.Publisher(v.ISBN.PublisherID)
	for _, id := range lm.store.AuthorIDsByISBN(b.ISBN) {
		if a, ok := lm.store.Author(id); ok {
			v.Authors = append(v.Authors, a)
		}
	}
	if br, ok := lm.store.ActiveBorrow(b.ID); ok {
		v.Loan = &br
		if u, ok := lm.store.User(br.UserID); ok {
			v.Borrower = &u
		}
	}
	return v
}

// ListBooks returns every copy in id order, retired copies only when asked.
func (lm *LibraryManager) ListBooks(includeRetired bool) []BookView {
	var out []BookView
	for _, b := range lm.store.Books() {
		if b.Status.IsRetired() && !includeRetired {
			continue
		}
		out = append(out, lm.view(b))
	}
	return out
}

// IsOverdue reports whether a loan is still out past its due date.
func (lm *LibraryManager) IsOverdue(b Borrow, today date.Date) bool { return IsOverdue(b, today) }

// ------------------ Utilities ------------------

// FormatAuthors renders "name #id & name #id", or "-" without authors.
func FormatAuthors(authors []Author) string {
	if len(authors) == 0 {
		return "-"
	}
	parts := make([]string, len(authors))
	for i, a := range authors {
		parts[i] = a.Name + " #" + strconv.Itoa(a.ID)
	}
	return strings.Join(parts, " & ")
}

// PrettyBook formats a copy for lists.
func PrettyBook(v BookView) string {
	status := "available"
	switch {
	case v.Book.Status.IsRetired():
		status = "retired " + v.Book.Status.Since.String()
	case v.Loan != nil:
		status = "due " + v.Loan.DueDate.String()
		if v.Borrower != nil {
			status += " (" + v.Borrower.Name + ")"
		}
	}
	return fmt.Sprintf("%-4d %-3s %-28s %-24s %-16s %-5d %-11s %s",
		v.Book.ID, formatCode(v.ISBN.Code), v.ISBN.Title, FormatAuthors(v.Authors),
		v.Publisher.Name, v.ISBN.PublishedYear, v.Book.RegisterDate, status)
}
