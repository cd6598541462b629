package library

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"libsys/date"
)

// Index is a SQLite mirror of the store. The manager keeps an in-memory
// one for catalog search; Export writes one to disk for ad-hoc queries.
type Index struct {
	db *sql.DB

	searchStmt *sql.Stmt
}

// NewIndex opens (or creates) the SQLite database at dbPath and applies the
// schema. An empty path opens a private in-memory database.
func NewIndex(dbPath string) (*Index, error) {
	var dsn string
	if dbPath == "" {
		dsn = "file::memory:?_foreign_keys=1"
	} else {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create index dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	ix := &Index{db: db}
	if ix.searchStmt, err = db.Prepare(searchQuery); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare search: %w", err)
	}
	return ix, nil
}

// Close releases prepared statements and closes the DB.
func (ix *Index) Close() error {
	if ix.searchStmt != nil {
		ix.searchStmt.Close()
	}
	return ix.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = 0
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS publishers (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            deleted BOOLEAN NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS isbns (
            isbn INTEGER PRIMARY KEY,
            title TEXT NOT NULL,
            publisher_id INTEGER NOT NULL REFERENCES publishers(id),
            published_year INTEGER NOT NULL,
            register_date TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY,
            isbn INTEGER NOT NULL REFERENCES isbns(isbn),
            register_date TEXT NOT NULL,
            deleted BOOLEAN NOT NULL DEFAULT 0,
            delete_date TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS authors (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            deleted BOOLEAN NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS isbn_authors (
            isbn INTEGER NOT NULL REFERENCES isbns(isbn),
            author_id INTEGER NOT NULL REFERENCES authors(id),
            PRIMARY KEY (isbn, author_id)
        );`,
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY,
            phone TEXT NOT NULL UNIQUE,
            name TEXT NOT NULL,
            deleted BOOLEAN NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS borrows (
            id INTEGER PRIMARY KEY,
            book_id INTEGER NOT NULL REFERENCES books(id),
            user_id INTEGER NOT NULL REFERENCES users(id),
            borrow_date TEXT NOT NULL,
            return_date TEXT NOT NULL,
            actual_return_date TEXT,
            deleted BOOLEAN NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS penalties (
            id INTEGER PRIMARY KEY,
            user_id INTEGER NOT NULL REFERENCES users(id),
            start_date TEXT NOT NULL,
            end_date TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS logs (
            id INTEGER PRIMARY KEY,
            isbn INTEGER NOT NULL REFERENCES isbns(isbn),
            book_id INTEGER REFERENCES books(id),
            borrow_id INTEGER REFERENCES borrows(id),
            log_date TEXT NOT NULL,
            log_type TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_books_isbn ON books(isbn);`,
		`CREATE INDEX IF NOT EXISTS idx_borrows_book ON borrows(book_id);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

var indexTables = []string{"publishers", "isbns", "books", "authors", "isbn_authors", "users", "borrows", "penalties", "logs"}

func nullString(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }

// Load replaces the index contents with the store's tables in one
// transaction.
func (ix *Index) Load(s *Store) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range slices.Backward(indexTables) {
		if _, err := tx.Exec(`DELETE FROM ` + name); err != nil {
			return fmt.Errorf("clear %s: %w", name, err)
		}
	}

	insert := func(query string, rows int, args func(i int) []any) error {
		stmt, err := tx.Prepare(query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := 0; i < rows; i++ {
			if _, err := stmt.Exec(args(i)...); err != nil {
				return err
			}
		}
		return nil
	}

	steps := []struct {
		query string
		rows  int
		args  func(i int) []any
	}{
		{`INSERT INTO publishers(id,name,deleted) VALUES(?,?,?)`, len(s.publishers), func(i int) []any {
			p := s.publishers[i]
			return []any{p.ID, p.Name, p.Deleted}
		}},
		{`INSERT INTO isbns(isbn,title,publisher_id,published_year,register_date) VALUES(?,?,?,?,?)`, len(s.isbns), func(i int) []any {
			r := s.isbns[i]
			return []any{r.Code, r.Title, r.PublisherID, r.PublishedYear, r.RegisterDate.String()}
		}},
		{`INSERT INTO books(id,isbn,register_date,deleted,delete_date) VALUES(?,?,?,?,?)`, len(s.books), func(i int) []any {
			b := s.books[i]
			var since string
			if b.Status.IsRetired() {
				since = b.Status.Since.String()
			}
			return []any{b.ID, b.ISBN, b.RegisterDate.String(), b.Status.IsRetired(), nullString(since)}
		}},
		{`INSERT INTO authors(id,name,deleted) VALUES(?,?,?)`, len(s.authors), func(i int) []any {
			a := s.authors[i]
			return []any{a.ID, a.Name, a.Deleted}
		}},
		{`INSERT INTO isbn_authors(isbn,author_id) VALUES(?,?)`, len(s.isbnAuthors), func(i int) []any {
			ia := s.isbnAuthors[i]
			return []any{ia.ISBN, ia.AuthorID}
		}},
		{`INSERT INTO users(id,phone,name,deleted) VALUES(?,?,?,?)`, len(s.users), func(i int) []any {
			u := s.users[i]
			return []any{u.ID, u.Phone, u.Name, u.Deleted}
		}},
		{`INSERT INTO borrows(id,book_id,user_id,borrow_date,return_date,actual_return_date,deleted) VALUES(?,?,?,?,?,?,?)`, len(s.borrows), func(i int) []any {
			b := s.borrows[i]
			return []any{b.ID, b.BookID, b.UserID, b.BorrowDate.String(), b.DueDate.String(), nullString(b.Returned.String()), b.Deleted}
		}},
		{`INSERT INTO penalties(id,user_id,start_date,end_date) VALUES(?,?,?,?)`, len(s.penalties), func(i int) []any {
			p := s.penalties[i]
			return []any{p.ID, p.UserID, p.Start.String(), p.End.String()}
		}},
		{`INSERT INTO logs(id,isbn,book_id,borrow_id,log_date,log_type) VALUES(?,?,?,?,?,?)`, len(s.logs), func(i int) []any {
			l := s.logs[i]
			return []any{l.ID, l.ISBN, l.BookID, l.BorrowID, l.Date.String(), string(l.Type)}
		}},
	}
	for i, step := range steps {
		if err := insert(step.query, step.rows, step.args); err != nil {
			return fmt.Errorf("load %s: %w", indexTables[i], err)
		}
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

// searchQuery matches a substring of the title or of any author name, or
// an author id when the query is "#N". Dates are stored zero padded, so
// text comparison orders them.
const searchQuery = `
        SELECT b.id
        FROM books b
        JOIN isbns i ON i.isbn = b.isbn
        WHERE (b.deleted = 0 OR b.delete_date > ?3)
          AND (?1 = ''
            OR instr(i.title, ?1) > 0
            OR EXISTS (
                SELECT 1 FROM isbn_authors ia
                JOIN authors a ON a.id = ia.author_id
                WHERE ia.isbn = b.isbn AND (instr(a.name, ?1) > 0 OR a.id = ?2)))
        ORDER BY b.id;`

// SearchBooks returns the ids of matching copies in id order.
func (ix *Index) SearchBooks(q string, authorID int, today date.Date) ([]int, error) {
	rows, err := ix.searchStmt.Query(q, authorID, today.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ------------------ Manager search and export ------------------

// Search finds copies whose title or author name contains query. A query
// of the form "#N" also matches author id N. Retired copies are skipped
// and an empty query lists every copy.
func (lm *LibraryManager) Search(query string, today date.Date) ([]BookView, error) {
	if lm.index == nil {
		ix, err := NewIndex("")
		if err != nil {
			return nil, err
		}
		lm.index, lm.indexStale = ix, true
	}
	if lm.indexStale {
		if err := lm.index.Load(lm.store); err != nil {
			return nil, fmt.Errorf("rebuild search index: %w", err)
		}
		lm.indexStale = false
	}

	q := strings.TrimSpace(query)
	authorID := -1
	if rest, ok := strings.CutPrefix(q, "#"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
			authorID = n
		}
	}

	ids, err := lm.index.SearchBooks(q, authorID, today)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	out := make([]BookView, 0, len(ids))
	for _, id := range ids {
		if b, ok := lm.store.Book(id); ok {
			out = append(out, lm.view(b))
		}
	}
	return out, nil
}

// Export writes a SQLite snapshot of every table to path, replacing any
// existing file.
func (lm *LibraryManager) Export(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("export: %w", err)
	}
	ix, err := NewIndex(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := ix.Load(lm.store); err != nil {
		ix.Close()
		return fmt.Errorf("export: %w", err)
	}
	return ix.Close()
}
