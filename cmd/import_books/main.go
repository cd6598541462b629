package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"libsys/config"
	"libsys/date"
	"libsys/library"
	"libsys/logging"
)

// header is the expected first row of an import file.
var header = []string{"isbn", "title", "authors", "publisher", "year"}

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var home, todayText string
	cmd := &cobra.Command{
		Use:          "import_books <books.csv>",
		Short:        "Register catalog entries in bulk from a CSV file",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.Setup(os.Stderr, env.LogLevel, env.LogFormat)

			today, err := date.FromTime(time.Now())
			if err != nil {
				return err
			}
			if todayText != "" {
				var ok bool
				if today, ok = date.Parse(todayText); !ok {
					return fmt.Errorf("--today %q is not a valid YYYY-MM-DD date", todayText)
				}
			}

			cfg, _, err := config.Load(filepath.Join(home, config.FileName))
			if err != nil {
				return err
			}
			store, report, err := library.Open(home, cfg, library.WithLogger(log))
			if err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("%d table(s) failed the integrity check; run libsys check first", len(report.Failures))
			}
			manager := library.NewLibraryManager(store)
			defer manager.Close()

			if err := manager.CheckToday(today); err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ok, failed, err := importBooks(cmd.OutOrStdout(), manager, f, today)
			fmt.Fprintf(cmd.OutOrStdout(), "\nImport complete!\n")
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully imported: %d books\n", ok)
			fmt.Fprintf(cmd.OutOrStdout(), "Errors: %d\n", failed)
			return err
		},
	}
	cmd.Flags().StringVar(&home, "home", env.Home, "directory holding data/ and the configuration file")
	cmd.Flags().StringVar(&todayText, "today", "", "registration date as YYYY-MM-DD (default: system date)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// importBooks registers one copy per CSV row. Rows that are rejected are
// reported and skipped; a malformed file stops the import.
func importBooks(w io.Writer, manager *library.LibraryManager, r io.Reader, today date.Date) (ok, failed int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	cr.TrimLeadingSpace = true

	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return ok, failed, nil
		}
		if err != nil {
			return ok, failed, fmt.Errorf("read csv: %w", err)
		}
		line++
		if line == 1 && strings.EqualFold(rec[0], header[0]) {
			continue
		}

		fmt.Fprintf(w, "Importing: %s by %s... ", rec[1], rec[2])
		res, err := manager.Register(library.RegisterRequest{
			ISBN:      rec[0],
			Title:     rec[1],
			Authors:   rec[2],
			Publisher: rec[3],
			Year:      rec[4],
		}, today)
		if err != nil {
			fmt.Fprintf(w, "ERROR - %v\n", err)
			failed++
			continue
		}
		fmt.Fprintf(w, "SUCCESS (ID: %d)\n", res.Book.ID)
		ok++
	}
}
