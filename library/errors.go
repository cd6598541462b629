package library

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptRecord marks a line that cannot be decoded into its record type.
	ErrCorruptRecord = errors.New("corrupt record")
	// ErrStoreFull is returned once the book id ceiling has been reached.
	ErrStoreFull = errors.New("no more book ids available")
	// ErrFlush wraps any failure to write a table back to disk. The in-memory
	// state is kept and the next successful flush catches up.
	ErrFlush = errors.New("flush failed")
)

// Phase names the validation step an IntegrityError was raised in.
type Phase string

const (
	PhaseShape        Phase = "shape"
	PhaseCompleteness Phase = "completeness"
	PhaseType         Phase = "type"
	PhaseUniqueness   Phase = "uniqueness"
	PhaseCrossField   Phase = "cross-field"
	PhaseReference    Phase = "reference"
)

// IntegrityError describes why a table file was rejected at load time.
type IntegrityError struct {
	Table Table
	Line  int // 1-based
	Phase Phase
	// Reason is a human readable explanation of the offending line.
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s at line %d (%s): %s", e.Table, e.Line, e.Phase, e.Reason)
}

// Code classifies a RejectionError.
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeOverdue         Code = "OVERDUE"
	CodePenalty         Code = "PENALTY"
	CodeLimit           Code = "LIMIT"
	CodeRetired         Code = "RETIRED"
	CodeOnLoan          Code = "ON_LOAN"
	CodeNotOnLoan       Code = "NOT_ON_LOAN"
	CodeLogOrder        Code = "LOG_ORDER"
)

// RejectionError is a business rule violation. Nothing has been mutated
// when one is returned.
type RejectionError struct {
	Code    Code
	Message string
}

func (e *RejectionError) Error() string { return e.Message }

func reject(code Code, format string, args ...any) *RejectionError {
	return &RejectionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is a RejectionError with the given code.
func IsRejection(err error, code Code) bool {
	var re *RejectionError
	return errors.As(err, &re) && re.Code == code
}
