package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"libsys/config"
	"libsys/date"
	"libsys/library"
	"libsys/logging"
)

// app carries the state shared by every command of one invocation.
type app struct {
	home       string
	configPath string
	todayText  string
	logLevel   string
	logFormat  string

	stdin  io.Reader
	out    io.Writer
	errOut io.Writer
	now    func() time.Time

	log *slog.Logger
	cfg config.Config
	lm  *library.LibraryManager
}

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	a := &app{stdin: os.Stdin, out: os.Stdout, errOut: os.Stderr, now: time.Now}
	if err := a.rootCmd(env).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

// describe renders a command error for the operator.
func describe(err error) string {
	var re *library.RejectionError
	if errors.As(err, &re) {
		return fmt.Sprintf("Rejected (%s): %s", re.Code, re.Message)
	}
	return fmt.Sprintf("Error: %v", err)
}

func (a *app) rootCmd(env config.Env) *cobra.Command {
	root := &cobra.Command{
		Use:           "libsys",
		Short:         "Keep the records of a small library in flat files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.log = logging.Setup(a.errOut, a.logLevel, a.logFormat)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.SetIn(a.stdin)

	f := root.PersistentFlags()
	f.StringVar(&a.home, "home", env.Home, "directory holding data/ and the configuration file (env LIBSYS_HOME)")
	f.StringVar(&a.configPath, "config", "", "configuration file (default <home>/"+config.FileName+")")
	f.StringVar(&a.todayText, "today", "", "working date as YYYY-MM-DD (default: system date)")
	f.StringVar(&a.logLevel, "log-level", env.LogLevel, "debug, info, warn or error (env LIBSYS_LOG_LEVEL)")
	f.StringVar(&a.logFormat, "log-format", env.LogFormat, "text or json (env LIBSYS_LOG_FORMAT)")

	root.AddCommand(
		a.checkCmd(),
		a.listCmd(),
		a.searchCmd(),
		a.registerCmd(),
		a.retireCmd(),
		a.amendCmd(),
		a.lendCmd(),
		a.returnCmd(),
		a.historyCmd(),
		a.configCmd(),
		a.exportCmd(),
		a.shellCmd(),
	)
	return root
}

// ------------------ Setup ------------------

func (a *app) cfgPath() string {
	if a.configPath != "" {
		return a.configPath
	}
	return filepath.Join(a.home, config.FileName)
}

func (a *app) loadConfig() error {
	path := a.cfgPath()
	cfg, status, err := config.Load(path)
	if err != nil {
		return err
	}
	if status != config.StatusLoaded {
		fmt.Fprintf(a.errOut, "Warning: configuration %s at %s\n", status, path)
	}
	a.cfg = cfg
	return nil
}

// open loads the configuration and every table, printing integrity
// failures as warnings.
func (a *app) open() (*library.LoadReport, error) {
	if err := a.loadConfig(); err != nil {
		return nil, err
	}
	s, report, err := library.Open(a.home, a.cfg, library.WithLogger(a.log), library.WithClock(a.now))
	if err != nil {
		return report, err
	}
	for _, f := range report.Failures {
		fmt.Fprintf(a.errOut, "Warning: %s failed its integrity check at line %d (%s): %s\n",
			f.Err.Table.BaseName(), f.Err.Line, f.Err.Phase, f.Err.Reason)
		fmt.Fprintf(a.errOut, "         the table was reset; its content is kept in %s\n", f.Backup)
	}
	a.lm = library.NewLibraryManager(s)
	return report, nil
}

func (a *app) close() error {
	if a.lm == nil {
		return nil
	}
	err := a.lm.Close()
	a.lm = nil
	return err
}

// today returns the working date from --today or the system clock.
func (a *app) today() (date.Date, error) {
	if a.todayText == "" {
		return date.FromTime(a.now())
	}
	d, ok := date.Parse(a.todayText)
	if !ok {
		return date.Date{}, fmt.Errorf("--today %q is not a valid YYYY-MM-DD date", a.todayText)
	}
	return d, nil
}

// workingDay is today checked against the dates already on record.
func (a *app) workingDay() (date.Date, error) {
	d, err := a.today()
	if err != nil {
		return d, err
	}
	return d, a.lm.CheckToday(d)
}

func parseBookID(text string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || id < 0 {
		return 0, fmt.Errorf("book id must be a non-negative integer, got %q", text)
	}
	return id, nil
}

// ------------------ Commands ------------------

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate every table and report row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.open()
			if err != nil {
				return err
			}
			for _, t := range library.LoadOrder {
				fmt.Fprintf(a.out, "%-16s %5d rows\n", t, report.Rows[t])
			}
			if n := len(report.Failures); n > 0 {
				return fmt.Errorf("%d table(s) failed the integrity check", n)
			}
			fmt.Fprintln(a.out, "All tables passed the integrity check.")
			return nil
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the copies in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.open(); err != nil {
				return err
			}
			printBooks(a.out, a.lm.ListBooks(all))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include retired copies")
	return cmd
}

func (a *app) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Find copies by title, author name or #author-id",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.open(); err != nil {
				return err
			}
			today, err := a.today()
			if err != nil {
				return err
			}
			views, err := a.lm.Search(strings.Join(args, " "), today)
			if err != nil {
				return err
			}
			printBooks(a.out, views)
			return nil
		},
	}
}

func (a *app) registerCmd() *cobra.Command {
	var req library.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new copy, cataloguing its ISBN when needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.open(); err != nil {
				return err
			}
			today, err := a.workingDay()
			if err != nil {
				return err
			}
			res, err := a.lm.Register(req, today)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Registered book %d.\n", res.Book.ID)
			fmt.Fprintln(a.out, library.PrettyBook(res.View))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.ISBN, "isbn", "", "two digit ISBN code")
	f.StringVar(&req.Title, "title", "", "title (new ISBN only)")
	f.StringVar(&req.Authors, "authors", "", `authors as "name & name #id" (new ISBN only)`)
	f.StringVar(&req.Publisher, "publisher", "", "publisher (new ISBN only)")
	f.StringVar(&req.Year, "year", "", "published year (new ISBN only)")
	_ = cmd.MarkFlagRequired("isbn")
	return cmd
}

func (a *app) retireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retire <book-id>",
		Short: "Withdraw a copy from circulation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			if _, err := a.open(); err != nil {
				return err
			}
			today, err := a.workingDay()
			if err != nil {
				return err
			}
			if _, err := a.lm.Retire(id, today); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Book %d retired on %s.\n", id, today)
			return nil
		},
	}
}

func (a *app) amendCmd() *cobra.Command {
	var req library.AmendRequest
	cmd := &cobra.Command{
		Use:   "amend",
		Short: "Rewrite the catalog entry of an ISBN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.open(); err != nil {
				return err
			}
			today, err := a.workingDay()
			if err != nil {
				return err
			}
			rec, err := a.lm.Amend(req, today)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "ISBN %02d updated: %s (%d).\n", rec.Code, rec.Title, rec.PublishedYear)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.ISBN, "isbn", "", "two digit ISBN code")
	f.StringVar(&req.Title, "title", "", "new title")
	f.StringVar(&req.Authors, "authors", "", `new authors as "name & name #id"`)
	f.StringVar(&req.Publisher, "publisher", "", "new publisher")
	f.StringVar(&req.Year, "year", "", "new published year")
	for _, name := range []string{"isbn", "title", "publisher", "year"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *app) lendCmd() *cobra.Command {
	var req library.LendRequest
	cmd := &cobra.Command{
		Use:   "lend <book-id>",
		Short: "Lend a copy to a user identified by phone number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			req.BookID = id
			if _, err := a.open(); err != nil {
				return err
			}
			today, err := a.workingDay()
			if err != nil {
				return err
			}
			res, err := a.lm.Lend(req, today)
			if err != nil {
				return err
			}
			printLoan(a.out, res)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Phone, "phone", "", "borrower phone number (010-1234-5678)")
	f.StringVar(&req.Name, "name", "", "borrower name, needed the first time a phone number is seen")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func (a *app) returnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "return <book-id>",
		Short: "Accept a returned copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			if _, err := a.open(); err != nil {
				return err
			}
			today, err := a.workingDay()
			if err != nil {
				return err
			}
			res, err := a.lm.AcceptReturn(id, today)
			if err != nil {
				return err
			}
			printReturn(a.out, id, res)
			return nil
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <book-id>",
		Short: "Show the life of a copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBookID(args[0])
			if err != nil {
				return err
			}
			if _, err := a.open(); err != nil {
				return err
			}
			v, entries, err := a.lm.History(id)
			if err != nil {
				return err
			}
			printHistory(a.out, v, entries)
			return nil
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration",
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			c := a.cfg
			fmt.Fprintf(a.out, "file                   %s\n", a.cfgPath())
			fmt.Fprintf(a.out, "borrow_date            %d\n", c.LoanDays)
			fmt.Fprintf(a.out, "cancel                 %s\n", c.Cancel)
			fmt.Fprintf(a.out, "max_static_id          %d\n", c.MaxStaticID)
			fmt.Fprintf(a.out, "max_isbn               %d\n", c.MaxISBN)
			fmt.Fprintf(a.out, "max_borrow_count       %d\n", c.MaxBorrowCount)
			fmt.Fprintf(a.out, "overdue_penalty_scale  %g\n", c.PenaltyScale)
			return nil
		},
	}
	set := &cobra.Command{
		Use:   "set",
		Short: "Change a setting",
	}
	set.AddCommand(&cobra.Command{
		Use:   "loan-days <days>",
		Short: "Change the loan period in days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			days, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("loan days must be an integer, got %q", args[0])
			}
			if err := a.loadConfig(); err != nil {
				return err
			}
			next := a.cfg
			next.LoanDays = days
			if err := next.Validate(); err != nil {
				return err
			}
			if err := config.Save(a.cfgPath(), next); err != nil {
				return err
			}
			a.log.Info("loan period changed", "from", a.cfg.LoanDays, "to", days)
			fmt.Fprintf(a.out, "Loan period is now %d days.\n", days)
			return nil
		},
	})
	cmd.AddCommand(show, set)
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.db>",
		Short: "Write a SQLite snapshot of every table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.open(); err != nil {
				return err
			}
			if err := a.lm.Export(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Exported to %s.\n", args[0])
			return nil
		},
	}
}

func (a *app) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run the interactive prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.open(); err != nil {
				return err
			}
			return a.runShell()
		},
	}
}

// ------------------ Output ------------------

func printBooks(w io.Writer, views []library.BookView) {
	if len(views) == 0 {
		fmt.Fprintln(w, "No books found.")
		return
	}
	fmt.Fprintf(w, "%-4s %-3s %-28s %-24s %-16s %-5s %-11s %s\n",
		"ID", "ISBN", "Title", "Authors", "Publisher", "Year", "Registered", "Status")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, v := range views {
		fmt.Fprintln(w, library.PrettyBook(v))
	}
}

func printLoan(w io.Writer, res library.LendResult) {
	if res.NewUser {
		fmt.Fprintf(w, "New user %s (%s) registered.\n", res.User.Name, res.User.Phone)
	}
	fmt.Fprintf(w, "Book %d lent to %s, due %s. %d more loan(s) allowed.\n",
		res.Borrow.BookID, res.User.Name, res.Borrow.DueDate, res.Remaining)
}

func printReturn(w io.Writer, bookID int, res library.ReturnResult) {
	if res.OverdueDays == 0 {
		fmt.Fprintf(w, "Book %d returned by %s on time.\n", bookID, res.User.Name)
		return
	}
	fmt.Fprintf(w, "Book %d returned by %s, %d day(s) late.\n", bookID, res.User.Name, res.OverdueDays)
	if res.Penalty == nil {
		return
	}
	if res.Extended {
		fmt.Fprintf(w, "Penalty extended by %d day(s), now until %s.\n", res.PenaltyDays, res.Penalty.End)
	} else {
		fmt.Fprintf(w, "Borrowing suspended for %d day(s), until %s.\n", res.PenaltyDays, res.Penalty.End)
	}
}

func printHistory(w io.Writer, v library.BookView, entries []library.HistoryEntry) {
	fmt.Fprintf(w, "Book %d: %s by %s (ISBN %02d)\n", v.Book.ID, v.ISBN.Title, library.FormatAuthors(v.Authors), v.ISBN.Code)
	for _, e := range entries {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
