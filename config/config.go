// Package config holds the library's tunable constants and the key/value
// document they are persisted in.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// FileName is the document name looked up in the data home.
const FileName = "Libsystem_Config.json"

// Config is read once at startup and passed by value to the store and the
// lending engine. Nothing mutates it afterwards.
type Config struct {
	LoanDays       int     // borrow_date
	Cancel         string  // cancel
	MaxStaticID    int     // max_static_id
	MaxISBN        int     // max_isbn
	MaxBorrowCount int     // max_borrow_count
	PenaltyScale   float64 // overdue_penalty_scale
}

// Upper bounds keep due dates and penalty windows within the years a
// record file can hold.
const (
	MaxLoanDays     = 3650
	MaxPenaltyScale = 100
)

// Default returns the values written when no document exists.
func Default() Config {
	return Config{
		LoanDays:       7,
		Cancel:         "X",
		MaxStaticID:    99,
		MaxISBN:        99,
		MaxBorrowCount: 3,
		PenaltyScale:   1.0,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	var errs []string

	if c.LoanDays < 0 || c.LoanDays > MaxLoanDays {
		errs = append(errs, fmt.Sprintf("borrow_date must be between 0 and %d, got %d", MaxLoanDays, c.LoanDays))
	}
	if strings.TrimSpace(c.Cancel) == "" {
		errs = append(errs, "cancel must not be empty")
	}
	if c.MaxStaticID < 0 || c.MaxStaticID > 99 {
		errs = append(errs, fmt.Sprintf("max_static_id must be between 0 and 99, got %d", c.MaxStaticID))
	}
	if c.MaxISBN < 0 || c.MaxISBN > 99 {
		errs = append(errs, fmt.Sprintf("max_isbn must be between 0 and 99, got %d", c.MaxISBN))
	}
	if c.MaxBorrowCount < 1 {
		errs = append(errs, fmt.Sprintf("max_borrow_count must be >= 1, got %d", c.MaxBorrowCount))
	}
	if math.IsNaN(c.PenaltyScale) || c.PenaltyScale < 0 || c.PenaltyScale > MaxPenaltyScale {
		errs = append(errs, fmt.Sprintf("overdue_penalty_scale must be between 0 and %d, got %g", MaxPenaltyScale, c.PenaltyScale))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
