package library

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"library-catalog/library/migrations"
)

var dialect = goqu.Dialect("sqlite3")

// Snapshot describes one archived copy of both stores.
type Snapshot struct {
	ID        string    `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Books     int       `json:"books" db:"books"`
	Users     int       `json:"users" db:"users"`
}

// Database is a SQLite archive of point-in-time copies of the catalog and
// membership stores. The flat files stay the source of truth.
type Database struct {
	db *sqlx.DB
}

// NewDatabase opens (or creates) the SQLite archive at dbPath and applies
// schema migrations.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return &Database{db: db}, nil
}

// Close closes the DB.
func (d *Database) Close() error { return d.db.Close() }

func applyMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

// Export stores books and users, in the given order, as a new snapshot in
// one transaction and returns its id.
func (d *Database) Export(books []*Book, users []*User) (string, error) {
	id := uuid.NewString()

	tx, err := d.db.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO snapshots(id, created_at) VALUES(?, ?)`, id, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}

	if len(books) > 0 {
		rows := make([]any, 0, len(books))
		for i, b := range books {
			rows = append(rows, goqu.Record{
				"snapshot_id": id,
				"position":    i,
				"isbn":        b.ISBN,
				"title":       b.Title,
				"author":      b.Author,
				"checked_out": b.CheckedOut,
				"borrower":    b.Borrower,
			})
		}
		if err := execInsert(tx, "books", rows); err != nil {
			return "", err
		}
	}

	if len(users) > 0 {
		rows := make([]any, 0, len(users))
		for i, u := range users {
			rows = append(rows, goqu.Record{
				"snapshot_id": id,
				"position":    i,
				"username":    u.Username,
				"password":    u.Password,
				"role":        int(u.Role),
			})
		}
		if err := execInsert(tx, "users", rows); err != nil {
			return "", err
		}
	}

	return id, tx.Commit()
}

func execInsert(tx *sqlx.Tx, table string, rows []any) error {
	query, args, err := dialect.Insert(table).Prepared(true).Rows(rows...).ToSQL()
	if err != nil {
		return fmt.Errorf("build %s insert: %w", table, err)
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// ListSnapshots returns every snapshot, newest first.
func (d *Database) ListSnapshots() ([]Snapshot, error) {
	var snaps []Snapshot
	err := d.db.Select(&snaps, `
        SELECT s.id, s.created_at,
               (SELECT COUNT(*) FROM books b WHERE b.snapshot_id = s.id) AS books,
               (SELECT COUNT(*) FROM users u WHERE u.snapshot_id = s.id) AS users
        FROM snapshots s
        ORDER BY s.seq DESC`)
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

// LatestSnapshotID returns the id of the newest snapshot.
func (d *Database) LatestSnapshotID() (string, error) {
	var id string
	err := d.db.Get(&id, `SELECT id FROM snapshots ORDER BY seq DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("snapshot archive is empty: %w", ErrNotFound)
	}
	return id, err
}

// Snapshot loads the books and users of one snapshot in their saved order.
func (d *Database) Snapshot(id string) ([]Book, []User, error) {
	var exists bool
	if err := d.db.Get(&exists, `SELECT EXISTS(SELECT 1 FROM snapshots WHERE id=?)`, id); err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}

	books := []Book{}
	if err := d.db.Select(&books, `SELECT isbn, title, author, checked_out, borrower FROM books WHERE snapshot_id=? ORDER BY position`, id); err != nil {
		return nil, nil, fmt.Errorf("read snapshot books: %w", err)
	}
	users := []User{}
	if err := d.db.Select(&users, `SELECT username, password, role FROM users WHERE snapshot_id=? ORDER BY position`, id); err != nil {
		return nil, nil, fmt.Errorf("read snapshot users: %w", err)
	}
	return books, users, nil
}
