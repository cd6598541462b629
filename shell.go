package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"libsys/date"
	"libsys/library"
)

// Input is one answer typed at a prompt. Cancelled is set when the
// operator typed the cancel word or the input ended.
type Input struct {
	Text      string
	Cancelled bool
}

// prompter reads answers line by line. Prompts are only printed when
// stdin is a terminal so scripted input produces clean output.
type prompter struct {
	sc          *bufio.Scanner
	out         io.Writer
	cancel      string
	interactive bool
	// done is set once the input has ended.
	done bool
}

func newPrompter(in io.Reader, out io.Writer, cancel string) *prompter {
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return &prompter{sc: bufio.NewScanner(in), out: out, cancel: cancel, interactive: interactive}
}

func (p *prompter) ask(label string) Input {
	if p.interactive {
		fmt.Fprint(p.out, label)
	}
	if p.done || !p.sc.Scan() {
		p.done = true
		return Input{Cancelled: true}
	}
	text := strings.TrimSpace(p.sc.Text())
	if text == p.cancel {
		return Input{Cancelled: true}
	}
	return Input{Text: text}
}

// confirm asks a y/n question until it gets an answer.
func (p *prompter) confirm(label string) bool {
	for {
		in := p.ask(label + " (y/n): ")
		if in.Cancelled {
			return false
		}
		switch strings.ToLower(in.Text) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		fmt.Fprintln(p.out, "Please answer y or n.")
	}
}

// askBookID repeats the prompt until a well formed id is typed.
func (p *prompter) askBookID() (int, bool) {
	for {
		in := p.ask("Book ID: ")
		if in.Cancelled {
			return 0, false
		}
		id, err := parseBookID(in.Text)
		if err == nil {
			return id, true
		}
		fmt.Fprintln(p.out, err)
	}
}

// chooser lets the operator pick among authors sharing a name, listing
// the titles each one wrote.
func (p *prompter) chooser(lm *library.LibraryManager) library.ChooseAuthor {
	return func(name string, candidates []library.Author) (library.Author, bool) {
		fmt.Fprintf(p.out, "Several authors are named %s:\n", name)
		for _, c := range candidates {
			fmt.Fprintf(p.out, "  #%-4d %s\n", c.ID, strings.Join(titlesBy(lm, c.ID), ", "))
		}
		for {
			in := p.ask("Author id: ")
			if in.Cancelled {
				return library.Author{}, false
			}
			id, err := strconv.Atoi(strings.TrimPrefix(in.Text, "#"))
			if err == nil {
				for _, c := range candidates {
					if c.ID == id {
						return c, true
					}
				}
			}
			fmt.Fprintln(p.out, "Pick one of the listed ids.")
		}
	}
}

func titlesBy(lm *library.LibraryManager, authorID int) []string {
	var titles []string
	for _, ia := range lm.Store().ISBNAuthors() {
		if ia.AuthorID != authorID {
			continue
		}
		if rec, ok := lm.Store().ISBN(ia.ISBN); ok {
			titles = append(titles, rec.Title)
		}
	}
	if len(titles) == 0 {
		titles = []string{"(no books)"}
	}
	return titles
}

// ------------------ Loop ------------------

func (a *app) runShell() error {
	p := newPrompter(a.stdin, a.out, a.cfg.Cancel)

	today, ok := a.shellToday(p)
	if !ok {
		return nil
	}

	fmt.Fprintln(a.out, "Library record keeper. Working date:", today)
	fmt.Fprintln(a.out, "Available commands:")
	fmt.Fprintln(a.out, "  Books: register, retire, amend, list, search, history")
	fmt.Fprintln(a.out, "  Circulation: lend, return")
	fmt.Fprintln(a.out, "  System: help, exit")
	fmt.Fprintf(a.out, "Type %s at any prompt to cancel the current command.\n", a.cfg.Cancel)

	for {
		in := p.ask("\n> ")
		if in.Cancelled {
			if p.done {
				break
			}
			continue
		}

		switch in.Text {
		case "":
		case "register":
			handleRegister(p, a.lm, today)
		case "retire":
			handleRetire(p, a.lm, today)
		case "amend":
			handleAmend(p, a.lm, today)
		case "list":
			printBooks(a.out, a.lm.ListBooks(false))
		case "list all":
			printBooks(a.out, a.lm.ListBooks(true))
		case "search":
			handleSearch(p, a.lm, today)
		case "history":
			handleHistory(p, a.lm)
		case "lend":
			handleLend(p, a.lm, today)
		case "return":
			handleReturn(p, a.lm, today)
		case "help":
			fmt.Fprintln(a.out, "register, retire, amend, list, list all, search, history, lend, return, exit")
		case "exit":
			fmt.Fprintln(a.out, "Goodbye!")
			return nil
		default:
			fmt.Fprintln(a.out, "Unknown command. Type help to see the available commands.")
		}
	}
	return p.sc.Err()
}

// shellToday takes --today when given, otherwise asks for the working
// date with the system date as default.
func (a *app) shellToday(p *prompter) (date.Date, bool) {
	if a.todayText != "" {
		d, err := a.workingDay()
		if err != nil {
			fmt.Fprintln(a.out, describe(err))
			return d, false
		}
		return d, true
	}
	system, err := date.FromTime(a.now())
	if err != nil {
		fmt.Fprintln(a.out, describe(err))
		return system, false
	}
	for {
		in := p.ask(fmt.Sprintf("Working date (YYYY-MM-DD, empty for %s): ", system))
		if in.Cancelled {
			return system, false
		}
		d := system
		if in.Text != "" {
			var ok bool
			if d, ok = date.Parse(in.Text); !ok {
				fmt.Fprintln(a.out, "Enter a valid date such as 2024-03-01.")
				continue
			}
		}
		if err := a.lm.CheckToday(d); err != nil {
			fmt.Fprintln(a.out, describe(err))
			continue
		}
		return d, true
	}
}

// ------------------ Handlers ------------------

func handleRegister(p *prompter, lm *library.LibraryManager, today date.Date) {
	var code int
	for {
		in := p.ask("ISBN (2 digits): ")
		if in.Cancelled {
			fmt.Fprintln(p.out, "Cancelled.")
			return
		}
		c, err := lm.ParseISBN(in.Text)
		if err == nil {
			code = c
			break
		}
		fmt.Fprintln(p.out, describe(err))
	}

	req := library.RegisterRequest{ISBN: fmt.Sprintf("%02d", code), Choose: p.chooser(lm)}
	if rec, ok := lm.Store().ISBN(code); ok {
		fmt.Fprintf(p.out, "ISBN %02d is %s, %d cop(ies) registered.\n", code, rec.Title, len(lm.Store().BooksByISBN(code)))
		if !p.confirm("Register another copy?") {
			fmt.Fprintln(p.out, "Cancelled.")
			return
		}
	} else {
		fields := []struct {
			label string
			dst   *string
		}{
			{"Title: ", &req.Title},
			{`Authors ("name & name #id", empty for none): `, &req.Authors},
			{"Publisher: ", &req.Publisher},
			{"Published year: ", &req.Year},
		}
		for _, f := range fields {
			in := p.ask(f.label)
			if in.Cancelled {
				fmt.Fprintln(p.out, "Cancelled.")
				return
			}
			*f.dst = in.Text
		}
	}

	res, err := lm.Register(req, today)
	if err != nil {
		fmt.Fprintln(p.out, describe(err))
		return
	}
	fmt.Fprintf(p.out, "Registered book %d.\n", res.Book.ID)
	fmt.Fprintln(p.out, library.PrettyBook(res.View))
}

func handleRetire(p *prompter, lm *library.LibraryManager, today date.Date) {
	id, ok := p.askBookID()
	if !ok {
		fmt.Fprintln(p.out, "Cancelled.")
		return
	}
	v, err := lm.View(id)
	if err != nil {
		fmt.Fprintln(p.out, describe(err))
		return
	}
	fmt.Fprintln(p.out, library.PrettyBook(v))
	if !p.confirm("Retire this copy?") {
		fmt.Fprintln(p.out, "Cancelled.")
		return
	}
	if _, err := lm.Retire(id, today); err != nil {
		fmt.Fprintln(p.out, describe(err))
		return
	}
	fmt.Fprintf(p.out, "Book %d retired.\n", id)
}

func handleAmend(p *prompter, lm *library.LibraryManager, today date.Date) {
	in := p.ask("ISBN to amend: ")
	if in.Cancelled {
		fmt.Fprintln(p.out, "Cancelled.")
		return
	}
	code, err := lm.ParseISBN(in.Text)
	if err != nil {
		fmt.Fprintln(p.out, describe(err))
		return
	}
	rec, ok := lm.Store().ISBN(code)
	if !ok {
		fmt.Fprintf(p.out, "No book has isbn %02d.\n", code)
		return
	}
	var current []library.Author
	for _, id := range lm.Store().AuthorIDsByISBN(code) {
		if a, ok := lm.Store().Author(id); ok {
			current = append(current, a)
		}
	}
	pub, _ := lm.Store().Publisher(rec.PublisherID)
	fmt.Fprintf(p.out, "Current: %s / %s / %s / %d\n", rec.Title, library.FormatAuthors(current), pub.Name, rec.PublishedYear)

	req := library.AmendRequest{ISBN: in.Text, Choose: p.chooser(lm)}
	fields := []struct {
		label string
		dst   *string
	}{
		{"New title: ", &req.Title},
		{"New authors: ", &req.Authors},
		{"New publisher: ", &req.Publisher},
		{"New published year: ", &req.Year},
	}
	for _, f := range fields {
		in := p.ask(f.label)
		if in.Cancelled {
			fmt.Fprintln(p.out, "Cancelled.")
			return
		}
		*f.dst = in.Text
	}
	if !p.confirm("Save these changes?") {
		fmt.Fprintln(p.out, "Cancelled.")
		return
	}
	if _, err := lm.Amend(req, today); err != nil {
		fmt.Fprintln(p.out, describe(err))
		return
	}
	fmt.Fprintf(p.out, "ISBN %02d updated.\n", code)
}

func handleSearch(p *prompter, lm *library.LibraryManager, today date.Date) {
	in := p.ask("Search (title, author or #author-id): ")
	if in.Cancelled {
		fmt.Fprintln(p.out, "Cancelled.")
		return
	}
	views, err := lm.Search(in.Text, today)
	if err != nil {
		fmt.Fprintln(p.out, describe(err))
		return
	}
	printBooks(p.out, views)
}

func handleHistory(p *prompter, lm *library.LibraryManager) {
	id, ok := p.askBookID()
	if !ok {
		fmt.Fprintln(p.out, "Cancelled.")
		return
	}
	v, entries, err := lm.History(id)
	if err != nil {
		fmt.Fprintln(p.out, describe(err))
		return
	}
	printHistory(p.out, v, entries)
}

func handleLend(p *prompter, lm *library.LibraryManager, today date.Date) {
	var req library.LendRequest
	for {
		in := p.ask("Borrower phone (010-1234-5678): ")
		if in.Cancelled {
			fmt.Fprintln(p.out, "Cancelled.")
			return
		}
		if library.ValidPhone(in.Text) {
			req.Phone = in.Text
			break
		}
		fmt.Fprintln(p.out, "Phone numbers look like 010-1234-5678.")
	}
	if u, ok := lm.Store().UserByPhone(req.Phone); ok {
		fmt.Fprintf(p.out, "Borrower: %s\n", u.Name)
	} else {
		in := p.ask("New borrower name: ")
		if in.Cancelled {
			fmt.Fprintln(p.out, "Cancelled.")
			return
		}
		req.Name = in.Text
	}

	id, ok := p.askBookID()
	if !ok {
		fmt.Fprintln(p.out, "Cancelled.")
		return
	}
	req.BookID = id

	res, err := lm.Lend(req, today)
	if err != nil {
		fmt.Fprintln(p.out, describe(err))
		return
	}
	printLoan(p.out, res)
}

func handleReturn(p *prompter, lm *library.LibraryManager, today date.Date) {
	id, ok := p.askBookID()
	if !ok {
		fmt.Fprintln(p.out, "Cancelled.")
		return
	}
	res, err := lm.AcceptReturn(id, today)
	if err != nil {
		fmt.Fprintln(p.out, describe(err))
		return
	}
	printReturn(p.out, id, res)
}
