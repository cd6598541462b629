package library

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"libsys/date"
)

// Table identifies one of the record files.
type Table int

const (
	TablePublisher Table = iota
	TableISBN
	TableBook
	TableAuthor
	TableISBNAuthor
	TableUser
	TableBorrow
	TablePenalty
	TableLog
)

// LoadOrder is the fixed order tables are validated and loaded in. Each
// table only references tables that precede it.
var LoadOrder = []Table{
	TablePublisher, TableISBN, TableBook, TableAuthor, TableISBNAuthor,
	TableUser, TableBorrow, TablePenalty, TableLog,
}

var tableNames = [...]string{
	TablePublisher:  "Publisher",
	TableISBN:       "Isbn",
	TableBook:       "Book",
	TableAuthor:     "Author",
	TableISBNAuthor: "IsbnAuthor",
	TableUser:       "User",
	TableBorrow:     "Borrow",
	TablePenalty:    "OverduePenalty",
	TableLog:        "Log",
}

func (t Table) String() string {
	if t < 0 || int(t) >= len(tableNames) {
		return "Table(" + strconv.Itoa(int(t)) + ")"
	}
	return tableNames[t]
}

// BaseName is the file name without extension, e.g. Libsystem_Data_Book.
func (t Table) BaseName() string { return "Libsystem_Data_" + t.String() }

// Path returns the table's file inside the data directory.
func (t Table) Path(dataDir string) string {
	return filepath.Join(dataDir, t.BaseName()+".txt")
}

// emptyContent is what a fresh or quarantined table file holds.
func (t Table) emptyContent() string {
	if t == TableBook {
		return "0\n"
	}
	return ""
}

type fieldKind int

const (
	kindID fieldKind = iota
	kindCode2
	kindBool
	kindDate
	kindText
	kindPhone
	kindYear
	kindLogType
)

// FieldSpec declares one column of a table file.
type FieldSpec struct {
	Name     string
	Kind     fieldKind
	Required bool
}

// TableSpec declares the column layout of a table file.
type TableSpec struct {
	Table  Table
	Fields []FieldSpec
	// Counter is set for tables whose first line holds the next free id.
	Counter bool
	// DenseBase is the id of the first row for tables whose ids equal their
	// position, or -1 when ids are not positional.
	DenseBase int
}

func field(name string, kind fieldKind) FieldSpec { return FieldSpec{Name: name, Kind: kind, Required: true} }

func optional(name string, kind fieldKind) FieldSpec { return FieldSpec{Name: name, Kind: kind} }

var specs = map[Table]TableSpec{
	TablePublisher: {
		Table:     TablePublisher,
		Fields:    []FieldSpec{field("publisher_id", kindID), field("name", kindText), field("deleted", kindBool)},
		DenseBase: 0,
	},
	TableISBN: {
		Table: TableISBN,
		Fields: []FieldSpec{
			field("isbn", kindCode2), field("title", kindText), field("publisher_id", kindID),
			field("published_year", kindYear), field("register_date", kindDate),
		},
		DenseBase: -1,
	},
	TableBook: {
		Table: TableBook,
		Fields: []FieldSpec{
			field("book_id", kindID), field("isbn", kindCode2), field("register_date", kindDate),
			field("deleted", kindBool), optional("delete_date", kindDate),
		},
		Counter:   true,
		DenseBase: 0,
	},
	TableAuthor: {
		Table:     TableAuthor,
		Fields:    []FieldSpec{field("author_id", kindID), field("name", kindText), field("deleted", kindBool)},
		DenseBase: 1,
	},
	TableISBNAuthor: {
		Table:     TableISBNAuthor,
		Fields:    []FieldSpec{field("isbn", kindCode2), field("author_id", kindID)},
		DenseBase: -1,
	},
	TableUser: {
		Table: TableUser,
		Fields: []FieldSpec{
			field("user_id", kindID), field("phone_number", kindPhone), field("name", kindText), field("deleted", kindBool),
		},
		DenseBase: 0,
	},
	TableBorrow: {
		Table: TableBorrow,
		Fields: []FieldSpec{
			field("borrow_id", kindID), field("book_id", kindID), field("user_id", kindID),
			field("borrow_date", kindDate), field("return_date", kindDate),
			optional("actual_return_date", kindDate), field("deleted", kindBool),
		},
		DenseBase: 0,
	},
	TablePenalty: {
		Table: TablePenalty,
		Fields: []FieldSpec{
			field("penalty_id", kindID), field("user_id", kindID),
			field("penalty_start_date", kindDate), field("penalty_end_date", kindDate),
		},
		DenseBase: 0,
	},
	TableLog: {
		Table: TableLog,
		Fields: []FieldSpec{
			field("log_id", kindID), field("isbn", kindCode2), optional("book_id", kindID),
			optional("borrow_id", kindID), field("log_date", kindDate), field("log_type", kindLogType),
		},
		DenseBase: 0,
	},
}

// SpecFor returns the column layout of t.
func SpecFor(t Table) TableSpec { return specs[t] }

var phonePattern = regexp.MustCompile(`^[0-9]{3}-[0-9]{4}-[0-9]{4}$`)

// ValidPhone reports whether s has the NNN-NNNN-NNNN shape.
func ValidPhone(s string) bool { return phonePattern.MatchString(s) }

// ValidText reports whether s is usable as a name or title: not blank and
// free of the field separator and backslash.
func ValidText(s string) bool {
	return strings.TrimSpace(s) != "" && !strings.ContainsAny(s, `/\`)
}

// checkField validates one raw value against its kind and returns a reason
// on failure. maxISBN bounds two digit codes.
func checkField(f FieldSpec, v string, maxISBN int) string {
	switch f.Kind {
	case kindID:
		if !isDigits(v) {
			return f.Name + " is not a non-negative integer"
		}
		if _, err := strconv.Atoi(v); err != nil {
			return f.Name + " is out of range"
		}
	case kindCode2:
		if len(v) != 2 || !isDigits(v) {
			return f.Name + " is not a two digit code"
		}
		if n, _ := strconv.Atoi(v); n > maxISBN {
			return f.Name + " exceeds " + strconv.Itoa(maxISBN)
		}
	case kindBool:
		if v != "0" && v != "1" {
			return f.Name + " is not 0 or 1"
		}
	case kindDate:
		if _, ok := date.Parse(v); !ok {
			return f.Name + " is not a valid date"
		}
	case kindText:
		if !ValidText(v) {
			return f.Name + " is blank or contains / or \\"
		}
	case kindPhone:
		if !ValidPhone(v) {
			return f.Name + " does not match NNN-NNNN-NNNN"
		}
	case kindYear:
		n, err := strconv.Atoi(v)
		if len(v) != 4 || !isDigits(v) || err != nil || n < date.MinYear {
			return f.Name + " is not a year between 1583 and 9999"
		}
	case kindLogType:
		if _, ok := ParseLogType(v); !ok {
			return f.Name + " is not a known log type"
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
