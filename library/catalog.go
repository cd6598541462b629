package library

import (
	"strconv"
	"strings"

	"libsys/date"
)

// MaxAuthors is the most authors one catalog entry may list.
const MaxAuthors = 5

// AuthorRef is one parsed entry of an author list: a bare name, or a name
// pinned to an existing author id with "name #id".
type AuthorRef struct {
	Name  string
	ID    int
	HasID bool
}

// ChooseAuthor picks one of several existing authors sharing a name. It
// returns false to abort the operation.
type ChooseAuthor func(name string, candidates []Author) (Author, bool)

// ParseAuthors reads an author list such as "Kim & Lee #3". An empty
// input is an entry without authors.
func ParseAuthors(input string) ([]AuthorRef, error) {
	var refs []AuthorRef
	for _, part := range strings.Split(input, "&") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Count(part, "#") > 1 {
			return nil, reject(CodeInvalidArgument, "[%s] an author is written as 'name' or 'name #id'", part)
		}
		name, idText, pinned := strings.Cut(part, "#")
		ref := AuthorRef{Name: strings.TrimSpace(name)}
		if !ValidText(ref.Name) {
			return nil, reject(CodeInvalidArgument, "[%s] author name must not be blank or contain / or \\", part)
		}
		if pinned {
			idText = strings.TrimSpace(idText)
			id, err := strconv.Atoi(idText)
			if !isDigits(idText) || strings.HasPrefix(idText, "0") || err != nil || id < 1 {
				return nil, reject(CodeInvalidArgument, "[%s] author id must be a positive integer without leading zeros", part)
			}
			ref.ID, ref.HasID = id, true
		}
		refs = append(refs, ref)
	}
	if len(refs) > MaxAuthors {
		return nil, reject(CodeInvalidArgument, "a book has at most %d authors", MaxAuthors)
	}
	return refs, nil
}

// authorPick is a resolved author: an existing row, or a name to create.
type authorPick struct {
	existing Author
	create   bool
	name     string
}

func (lm *LibraryManager) resolveAuthors(refs []AuthorRef, choose ChooseAuthor) ([]authorPick, error) {
	picks := make([]authorPick, 0, len(refs))
	seenIDs := make(map[int]bool)
	seenNew := make(map[string]bool)
	for _, ref := range refs {
		var pick authorPick
		switch {
		case ref.HasID:
			a, ok := lm.store.Author(ref.ID)
			if !ok {
				return nil, reject(CodeNotFound, "author #%d does not exist", ref.ID)
			}
			if a.Name != ref.Name {
				return nil, reject(CodeConflict, "author #%d is named %q, not %q", ref.ID, a.Name, ref.Name)
			}
			pick.existing = a
		default:
			matches := lm.store.AuthorsByName(ref.Name)
			switch len(matches) {
			case 0:
				pick = authorPick{create: true, name: ref.Name}
			case 1:
				pick.existing = matches[0]
			default:
				if choose == nil {
					return nil, reject(CodeConflict, "%d authors are named %q; write it as '%s #id'", len(matches), ref.Name, ref.Name)
				}
				a, ok := choose(ref.Name, matches)
				if !ok {
					return nil, reject(CodeConflict, "no author chosen for %q", ref.Name)
				}
				pick.existing = a
			}
		}

		if pick.create {
			if seenNew[pick.name] {
				return nil, reject(CodeInvalidArgument, "author %q is listed twice", pick.name)
			}
			seenNew[pick.name] = true
		} else {
			if seenIDs[pick.existing.ID] {
				return nil, reject(CodeInvalidArgument, "author #%d is listed twice", pick.existing.ID)
			}
			seenIDs[pick.existing.ID] = true
		}
		picks = append(picks, pick)
	}
	return picks, nil
}

// applyAuthors creates the new authors of picks and returns all ids.
func (lm *LibraryManager) applyAuthors(picks []authorPick) []Author {
	out := make([]Author, len(picks))
	for i, p := range picks {
		if p.create {
			out[i] = lm.store.addAuthor(p.name)
		} else {
			out[i] = p.existing
		}
	}
	return out
}

func authorIDs(authors []Author) []int {
	ids := make([]int, len(authors))
	for i, a := range authors {
		ids[i] = a.ID
	}
	return ids
}

// ParseISBN checks a two digit code against the configured ceiling.
func (lm *LibraryManager) ParseISBN(text string) (int, error) {
	text = strings.TrimSpace(text)
	if len(text) != 2 || !isDigits(text) {
		return 0, reject(CodeInvalidArgument, "isbn must be two digits")
	}
	code, _ := strconv.Atoi(text)
	if code > lm.cfg.MaxISBN {
		return 0, reject(CodeInvalidArgument, "isbn must be between 00 and %02d", lm.cfg.MaxISBN)
	}
	return code, nil
}

func parseYear(text string, today date.Date) (int, error) {
	text = strings.TrimSpace(text)
	if len(text) != 4 || !isDigits(text) {
		return 0, reject(CodeInvalidArgument, "published year must be a four digit number")
	}
	year, _ := strconv.Atoi(text)
	if year < date.MinYear {
		return 0, reject(CodeInvalidArgument, "published year must be %d or later", date.MinYear)
	}
	if year > today.Year() {
		return 0, reject(CodeInvalidArgument, "published year cannot be after the current year %d", today.Year())
	}
	return year, nil
}

func checkText(field, value string) error {
	if !ValidText(value) {
		return reject(CodeInvalidArgument, "%s must not be blank or contain / or \\", field)
	}
	return nil
}

// ------------------ Register ------------------

// RegisterRequest describes a new copy. Title, Authors, Publisher and
// Year are only read when the ISBN is not catalogued yet.
type RegisterRequest struct {
	ISBN      string
	Title     string
	Authors   string
	Publisher string
	Year      string
	// Choose resolves bare author names shared by several authors.
	Choose ChooseAuthor
}

// RegisterResult is the registered copy and its catalog entry.
type RegisterResult struct {
	Book     Book
	NewISBN  bool
	View     BookView
	LogEntry Log
}

// Register adds a physical copy, cataloguing its ISBN first when needed.
func (lm *LibraryManager) Register(req RegisterRequest, today date.Date) (RegisterResult, error) {
	res, err := lm.register(req, today)
	if err != nil {
		return res, lm.rejected("register", err)
	}
	return res, lm.commit("register")
}

func (lm *LibraryManager) register(req RegisterRequest, today date.Date) (RegisterResult, error) {
	if err := lm.checkLogOrder(today); err != nil {
		return RegisterResult{}, err
	}
	code, err := lm.ParseISBN(req.ISBN)
	if err != nil {
		return RegisterResult{}, err
	}
	bookID, err := lm.store.AllocateBookID()
	if err != nil {
		return RegisterResult{}, err
	}

	_, catalogued := lm.store.ISBN(code)
	var (
		title, publisher string
		year             int
		picks            []authorPick
	)
	if !catalogued {
		title, publisher = strings.TrimSpace(req.Title), strings.TrimSpace(req.Publisher)
		if err := checkText("title", title); err != nil {
			return RegisterResult{}, err
		}
		refs, err := ParseAuthors(req.Authors)
		if err != nil {
			return RegisterResult{}, err
		}
		if picks, err = lm.resolveAuthors(refs, req.Choose); err != nil {
			return RegisterResult{}, err
		}
		if err := checkText("publisher", publisher); err != nil {
			return RegisterResult{}, err
		}
		if year, err = parseYear(req.Year, today); err != nil {
			return RegisterResult{}, err
		}
	}

	// All checks passed; mutate.
	if !catalogued {
		pub, ok := lm.store.PublisherByName(publisher)
		if !ok {
			pub = lm.store.addPublisher(publisher)
		}
		authors := lm.applyAuthors(picks)
		lm.store.addISBN(ISBN{Code: code, Title: title, PublisherID: pub.ID, PublishedYear: year, RegisterDate: today})
		lm.store.setISBNAuthors(code, authorIDs(authors))
	}
	book := Book{ID: bookID, ISBN: code, RegisterDate: today, Status: Active()}
	lm.store.addBook(book)
	entry := lm.store.addLog(Log{ISBN: code, BookID: nullID(bookID), Date: today, Type: LogRegister})

	lm.log.Info("book registered", "book_id", bookID, "isbn", formatCode(code), "new_isbn", !catalogued)
	return RegisterResult{Book: book, NewISBN: !catalogued, View: lm.view(book), LogEntry: entry}, nil
}

// ------------------ Retire ------------------

// Retire withdraws a copy. Copies on loan cannot be retired.
func (lm *LibraryManager) Retire(bookID int, today date.Date) (Book, error) {
	b, err := lm.retire(bookID, today)
	if err != nil {
		return b, lm.rejected("retire", err)
	}
	return b, lm.commit("retire")
}

func (lm *LibraryManager) retire(bookID int, today date.Date) (Book, error) {
	if err := lm.checkLogOrder(today); err != nil {
		return Book{}, err
	}
	b, ok := lm.store.Book(bookID)
	if !ok {
		return Book{}, reject(CodeNotFound, "book %d does not exist", bookID)
	}
	if b.Status.IsRetired() {
		return Book{}, reject(CodeRetired, "book %d was already retired on %s", bookID, b.Status.Since)
	}
	if br, ok := lm.store.ActiveBorrow(bookID); ok {
		return Book{}, reject(CodeOnLoan, "book %d is on loan until %s", bookID, br.DueDate)
	}
	if today.Before(b.RegisterDate) {
		return Book{}, reject(CodeInvalidArgument, "book %d was registered on %s, after %s", bookID, b.RegisterDate, today)
	}

	b.Status = RetiredOn(today)
	lm.store.putBook(b)
	lm.store.addLog(Log{ISBN: b.ISBN, BookID: nullID(b.ID), Date: today, Type: LogDelete})
	lm.log.Info("book retired", "book_id", bookID)
	return b, nil
}

// ------------------ Amend ------------------

// AmendRequest rewrites a catalog entry.
type AmendRequest struct {
	ISBN      string
	Title     string
	Authors   string
	Publisher string
	Year      string
	Choose    ChooseAuthor
}

// Amend replaces the title, authors, publisher and published year of an
// ISBN. Copies and loans are untouched.
func (lm *LibraryManager) Amend(req AmendRequest, today date.Date) (ISBN, error) {
	rec, err := lm.amend(req, today)
	if err != nil {
		return rec, lm.rejected("amend", err)
	}
	return rec, lm.commit("amend")
}

func (lm *LibraryManager) amend(req AmendRequest, today date.Date) (ISBN, error) {
	if err := lm.checkLogOrder(today); err != nil {
		return ISBN{}, err
	}
	code, err := lm.ParseISBN(req.ISBN)
	if err != nil {
		return ISBN{}, err
	}
	rec, ok := lm.store.ISBN(code)
	if !ok || len(lm.store.BooksByISBN(code)) == 0 {
		return ISBN{}, reject(CodeNotFound, "no book has isbn %s", formatCode(code))
	}

	title, publisher := strings.TrimSpace(req.Title), strings.TrimSpace(req.Publisher)
	if err := checkText("title", title); err != nil {
		return ISBN{}, err
	}
	refs, err := ParseAuthors(req.Authors)
	if err != nil {
		return ISBN{}, err
	}
	picks, err := lm.resolveAuthors(refs, req.Choose)
	if err != nil {
		return ISBN{}, err
	}
	if err := checkText("publisher", publisher); err != nil {
		return ISBN{}, err
	}
	year, err := parseYear(req.Year, today)
	if err != nil {
		return ISBN{}, err
	}
	if year > rec.RegisterDate.Year() {
		return ISBN{}, reject(CodeInvalidArgument, "published year %d is after the isbn registration on %s", year, rec.RegisterDate)
	}

	pub, ok := lm.store.PublisherByName(publisher)
	if !ok {
		pub = lm.store.addPublisher(publisher)
	}
	authors := lm.applyAuthors(picks)
	rec.Title, rec.PublisherID, rec.PublishedYear = title, pub.ID, year
	lm.store.putISBN(rec)
	lm.store.setISBNAuthors(code, authorIDs(authors))
	lm.store.addLog(Log{ISBN: code, Date: today, Type: LogISBNEdit})
	lm.log.Info("isbn amended", "isbn", formatCode(code))
	return rec, nil
}
