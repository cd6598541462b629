package library

import (
	"fmt"
	"strings"

	"libsys/config"
	"libsys/date"
)

// rules are the table specific hooks of a validation run. Hooks that keep
// state between rows are built fresh for every run.
type rules[T any] struct {
	decode func([]string) (T, error)
	// id returns the positional id of dense tables.
	id func(T) int
	// unique lists secondary keys that must not repeat.
	unique []uniqueKey[T]
	// sequence runs once ids are known to be dense and unique.
	sequence func(T) string
	cross    func(T) string
	refs     func(T) string
}

type uniqueKey[T any] struct {
	name string
	key  func(T) string
}

// validateTable runs the phases in order over every line: shape,
// completeness, type, uniqueness, cross-field, reference. The first
// failure stops the run. firstLine is the 1-based line number of lines[0].
func validateTable[T any](spec TableSpec, cfg config.Config, lines []string, firstLine int, r rules[T]) ([]T, *IntegrityError) {
	fail := func(i int, phase Phase, format string, args ...any) *IntegrityError {
		return &IntegrityError{Table: spec.Table, Line: firstLine + i, Phase: phase, Reason: fmt.Sprintf(format, args...)}
	}

	fields := make([][]string, len(lines))
	for i, line := range lines {
		fields[i] = splitRecord(line)
		if len(fields[i]) != len(spec.Fields) {
			return nil, fail(i, PhaseShape, "expected %d fields separated by %q, found %d", len(spec.Fields), sep, len(fields[i]))
		}
	}

	for i, f := range fields {
		for j, fs := range spec.Fields {
			if fs.Required && f[j] == "" {
				return nil, fail(i, PhaseCompleteness, "%s is empty", fs.Name)
			}
		}
	}

	rows := make([]T, len(fields))
	for i, f := range fields {
		for j, fs := range spec.Fields {
			if f[j] == "" {
				continue
			}
			if reason := checkField(fs, f[j], cfg.MaxISBN); reason != "" {
				return nil, fail(i, PhaseType, "%s", reason)
			}
		}
		row, err := r.decode(f)
		if err != nil {
			return nil, fail(i, PhaseType, "%v", err)
		}
		rows[i] = row
	}

	if r.id != nil {
		seen := make(map[int]int, len(rows))
		for i, row := range rows {
			id := r.id(row)
			if prev, ok := seen[id]; ok {
				return nil, fail(i, PhaseUniqueness, "duplicate %s %d (first seen on line %d)", spec.Fields[0].Name, id, firstLine+prev)
			}
			seen[id] = i
			if want := spec.DenseBase + i; id != want {
				return nil, fail(i, PhaseUniqueness, "%s must increase by one from %d: expected %d, found %d",
					spec.Fields[0].Name, spec.DenseBase, want, id)
			}
		}
	}
	for _, u := range r.unique {
		seen := make(map[string]int, len(rows))
		for i, row := range rows {
			k := u.key(row)
			if prev, ok := seen[k]; ok {
				return nil, fail(i, PhaseUniqueness, "duplicate %s %s (first seen on line %d)", u.name, k, firstLine+prev)
			}
			seen[k] = i
		}
	}
	if r.sequence != nil {
		for i, row := range rows {
			if reason := r.sequence(row); reason != "" {
				return nil, fail(i, PhaseUniqueness, "%s", reason)
			}
		}
	}

	if r.cross != nil {
		for i, row := range rows {
			if reason := r.cross(row); reason != "" {
				return nil, fail(i, PhaseCrossField, "%s", reason)
			}
		}
	}
	if r.refs != nil {
		for i, row := range rows {
			if reason := r.refs(row); reason != "" {
				return nil, fail(i, PhaseReference, "%s", reason)
			}
		}
	}
	return rows, nil
}

// Validator checks table contents against the tables loaded before them.
type Validator struct {
	cfg config.Config
	s   *Store
}

func (v *Validator) publishers(lines []string) ([]Publisher, *IntegrityError) {
	return validateTable(specs[TablePublisher], v.cfg, lines, 1, rules[Publisher]{
		decode: decodePublisher,
		id:     func(p Publisher) int { return p.ID },
	})
}

func (v *Validator) isbns(lines []string) ([]ISBN, *IntegrityError) {
	return validateTable(specs[TableISBN], v.cfg, lines, 1, rules[ISBN]{
		decode: decodeISBN,
		unique: []uniqueKey[ISBN]{{name: "isbn", key: func(i ISBN) string { return formatCode(i.Code) }}},
		cross: func(i ISBN) string {
			if i.RegisterDate.Year() < i.PublishedYear {
				return fmt.Sprintf("register date %s precedes published year %d", i.RegisterDate, i.PublishedYear)
			}
			return ""
		},
		refs: func(i ISBN) string {
			if _, ok := v.s.Publisher(i.PublisherID); !ok {
				return fmt.Sprintf("publisher %d does not exist", i.PublisherID)
			}
			return ""
		},
	})
}

// books validates the Book file; lines[0] is the id counter.
func (v *Validator) books(lines []string) ([]Book, int, *IntegrityError) {
	if len(lines) == 0 {
		return nil, 0, nil
	}
	counterLine := strings.TrimSpace(lines[0])
	counter, err := decodeCounter(counterLine)
	if err != nil {
		return nil, 0, &IntegrityError{Table: TableBook, Line: 1, Phase: PhaseShape, Reason: "first line is not the id counter"}
	}
	if counter > v.cfg.MaxStaticID+1 {
		return nil, 0, &IntegrityError{Table: TableBook, Line: 1, Phase: PhaseType,
			Reason: fmt.Sprintf("id counter %d is not between 0 and %d", counter, v.cfg.MaxStaticID+1)}
	}

	rows, ierr := validateTable(specs[TableBook], v.cfg, lines[1:], 2, rules[Book]{
		decode: decodeBook,
		id:     func(b Book) int { return b.ID },
		sequence: func(b Book) string {
			if b.ID >= counter {
				return fmt.Sprintf("book_id %d is not below the id counter %d", b.ID, counter)
			}
			return ""
		},
		cross: func(b Book) string {
			if b.Status.IsRetired() && b.Status.Since.Before(b.RegisterDate) {
				return fmt.Sprintf("delete date %s precedes register date %s", b.Status.Since, b.RegisterDate)
			}
			return ""
		},
		refs: func(b Book) string {
			if _, ok := v.s.ISBN(b.ISBN); !ok {
				return fmt.Sprintf("isbn %s does not exist", formatCode(b.ISBN))
			}
			return ""
		},
	})
	return rows, counter, ierr
}

func (v *Validator) authors(lines []string) ([]Author, *IntegrityError) {
	return validateTable(specs[TableAuthor], v.cfg, lines, 1, rules[Author]{
		decode: decodeAuthor,
		id:     func(a Author) int { return a.ID },
	})
}

func (v *Validator) isbnAuthors(lines []string) ([]ISBNAuthor, *IntegrityError) {
	return validateTable(specs[TableISBNAuthor], v.cfg, lines, 1, rules[ISBNAuthor]{
		decode: decodeISBNAuthor,
		unique: []uniqueKey[ISBNAuthor]{{
			name: "isbn/author pair",
			key:  func(ia ISBNAuthor) string { return encodeISBNAuthor(ia) },
		}},
		refs: func(ia ISBNAuthor) string {
			if _, ok := v.s.ISBN(ia.ISBN); !ok {
				return fmt.Sprintf("isbn %s does not exist", formatCode(ia.ISBN))
			}
			if _, ok := v.s.Author(ia.AuthorID); !ok {
				return fmt.Sprintf("author %d does not exist", ia.AuthorID)
			}
			return ""
		},
	})
}

func (v *Validator) users(lines []string) ([]User, *IntegrityError) {
	return validateTable(specs[TableUser], v.cfg, lines, 1, rules[User]{
		decode: decodeUser,
		id:     func(u User) int { return u.ID },
		unique: []uniqueKey[User]{{name: "phone_number", key: func(u User) string { return u.Phone }}},
	})
}

func (v *Validator) borrows(lines []string) ([]Borrow, *IntegrityError) {
	active := make(map[int]int)
	return validateTable(specs[TableBorrow], v.cfg, lines, 1, rules[Borrow]{
		decode: decodeBorrow,
		id:     func(b Borrow) int { return b.ID },
		cross: func(b Borrow) string {
			if b.DueDate.Before(b.BorrowDate) {
				return fmt.Sprintf("return date %s precedes borrow date %s", b.DueDate, b.BorrowDate)
			}
			if b.Returned.Valid && b.Returned.Date.Before(b.BorrowDate) {
				return fmt.Sprintf("actual return date %s precedes borrow date %s", b.Returned.Date, b.BorrowDate)
			}
			if b.Active() {
				if prev, ok := active[b.BookID]; ok {
					return fmt.Sprintf("book %d already has an active loan (borrow %d)", b.BookID, prev)
				}
				active[b.BookID] = b.ID
			}
			return ""
		},
		refs: func(b Borrow) string {
			if _, ok := v.s.Book(b.BookID); !ok {
				return fmt.Sprintf("book %d does not exist", b.BookID)
			}
			if _, ok := v.s.User(b.UserID); !ok {
				return fmt.Sprintf("user %d does not exist", b.UserID)
			}
			return ""
		},
	})
}

func (v *Validator) penalties(lines []string) ([]Penalty, *IntegrityError) {
	return validateTable(specs[TablePenalty], v.cfg, lines, 1, rules[Penalty]{
		decode: decodePenalty,
		id:     func(p Penalty) int { return p.ID },
		cross: func(p Penalty) string {
			if p.End.Before(p.Start) {
				return fmt.Sprintf("penalty end %s precedes start %s", p.End, p.Start)
			}
			return ""
		},
		refs: func(p Penalty) string {
			if _, ok := v.s.User(p.UserID); !ok {
				return fmt.Sprintf("user %d does not exist", p.UserID)
			}
			return ""
		},
	})
}

func (v *Validator) logs(lines []string) ([]Log, *IntegrityError) {
	var last date.Date
	return validateTable(specs[TableLog], v.cfg, lines, 1, rules[Log]{
		decode: decodeLog,
		id:     func(l Log) int { return l.ID },
		cross: func(l Log) string {
			if !last.IsZero() && l.Date.Before(last) {
				return fmt.Sprintf("log date %s precedes the previous entry %s", l.Date, last)
			}
			last = l.Date
			if l.Type != LogISBNEdit && !l.BookID.Valid {
				return fmt.Sprintf("%s entry has no book_id", l.Type)
			}
			if (l.Type == LogBorrow || l.Type == LogReturn) && !l.BorrowID.Valid {
				return fmt.Sprintf("%s entry has no borrow_id", l.Type)
			}
			if l.BorrowID.Valid && !l.BookID.Valid {
				return "borrow_id is set without book_id"
			}
			return ""
		},
		refs: func(l Log) string {
			if _, ok := v.s.ISBN(l.ISBN); !ok {
				return fmt.Sprintf("isbn %s does not exist", formatCode(l.ISBN))
			}
			if l.BookID.Valid {
				b, ok := v.s.Book(int(l.BookID.Int64))
				if !ok {
					return fmt.Sprintf("book %d does not exist", l.BookID.Int64)
				}
				if b.ISBN != l.ISBN {
					return fmt.Sprintf("book %d belongs to isbn %s, not %s", b.ID, formatCode(b.ISBN), formatCode(l.ISBN))
				}
			}
			if l.BorrowID.Valid {
				br, ok := v.s.Borrow(int(l.BorrowID.Int64))
				if !ok {
					return fmt.Sprintf("borrow %d does not exist", l.BorrowID.Int64)
				}
				if int64(br.BookID) != l.BookID.Int64 {
					return fmt.Sprintf("borrow %d is for book %d, not %d", br.ID, br.BookID, l.BookID.Int64)
				}
			}
			return ""
		},
	})
}
