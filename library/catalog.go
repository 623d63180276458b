package library

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
)

const bookFields = 5

// Catalog owns every Book record and mirrors them to a flat file.
//
// Records are handed out as pointers into the canonical collection, so a
// caller holding one sees checkouts and returns. Pointers are invalid after
// the next Load or Replace.
type Catalog struct {
	path    string
	books   []*Book
	loadErr error
	logger  *zap.Logger
}

// NewCatalog returns an empty catalog backed by path. Call Load to read it.
func NewCatalog(path string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{path: path, logger: logger.Named("catalog")}
}

// Path returns the backing file.
func (c *Catalog) Path() string { return c.path }

// LoadErr returns the error of the last Load, or nil when the file was read
// or did not exist. While it is set the in-memory catalog does not reflect
// the file, and saving would overwrite records that were never read.
func (c *Catalog) LoadErr() error { return c.loadErr }

// Len returns the number of books.
func (c *Catalog) Len() int { return len(c.books) }

// Load replaces the in-memory catalog with the file contents. On any error
// the catalog is left empty; a missing file is not an error.
func (c *Catalog) Load() error {
	c.books = nil
	c.loadErr = nil

	records, err := readRecords(c.path, bookFields, c.logger)
	if err != nil {
		if isMissing(err) {
			c.logger.Warn("catalog file missing, starting empty", zap.String("file", c.path))
			return nil
		}
		c.loadErr = err
		return err
	}

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		b := &Book{
			ISBN:       rec[0],
			Title:      rec[1],
			Author:     rec[2],
			CheckedOut: rec[3] == "1",
			Borrower:   rec[4],
		}
		if _, dup := seen[b.ISBN]; dup {
			c.logger.Warn("skipping duplicate isbn", zap.String("isbn", b.ISBN))
			continue
		}
		normalizeBorrow(b, c.logger)
		seen[b.ISBN] = struct{}{}
		c.books = append(c.books, b)
	}
	c.logger.Debug("catalog loaded", zap.Int("books", len(c.books)))
	return nil
}

// normalizeBorrow restores the checked-out/borrower pairing on a record read
// from disk. A flag without a borrower, or a borrower without the flag, is
// treated as available.
func normalizeBorrow(b *Book, logger *zap.Logger) {
	if b.CheckedOut && b.Borrower != "" {
		return
	}
	if b.CheckedOut || b.Borrower != "" {
		logger.Warn("inconsistent borrow state, marking available",
			zap.String("isbn", b.ISBN),
			zap.Bool("checked_out", b.CheckedOut),
			zap.String("borrower", b.Borrower))
	}
	b.CheckedOut = false
	b.Borrower = ""
}

// Save rewrites the backing file from memory, in canonical order.
func (c *Catalog) Save() error {
	records := make([][]string, 0, len(c.books))
	for _, b := range c.books {
		flag := "0"
		if b.CheckedOut {
			flag = "1"
		}
		records = append(records, []string{b.ISBN, b.Title, b.Author, flag, b.Borrower})
	}
	if err := writeRecords(c.path, records); err != nil {
		c.logger.Error("save catalog", zap.Error(err))
		return err
	}
	return nil
}

// FindByISBN returns the canonical record for isbn.
func (c *Catalog) FindByISBN(isbn string) (*Book, error) {
	for _, b := range c.books {
		if b.ISBN == isbn {
			return b, nil
		}
	}
	return nil, fmt.Errorf("book %s: %w", isbn, ErrNotFound)
}

// Add appends a new available book and persists the catalog.
func (c *Catalog) Add(isbn, title, author string) error {
	if err := checkFields(isbn, title, author); err != nil {
		return fmt.Errorf("add book: %w", err)
	}
	for _, b := range c.books {
		if b.ISBN == isbn {
			return fmt.Errorf("book %s: %w", isbn, ErrDuplicateISBN)
		}
		if b.Title == title && b.Author == author {
			return fmt.Errorf("%q by %q: %w", title, author, ErrDuplicateTitleAuthor)
		}
	}
	c.books = append(c.books, &Book{ISBN: isbn, Title: title, Author: author})
	c.logger.Debug("book added", zap.String("isbn", isbn))
	return c.Save()
}

// Remove deletes the book with isbn and persists the catalog.
func (c *Catalog) Remove(isbn string) error {
	i := slices.IndexFunc(c.books, func(b *Book) bool { return b.ISBN == isbn })
	if i < 0 {
		return fmt.Errorf("book %s: %w", isbn, ErrNotFound)
	}
	c.books = slices.Delete(c.books, i, i+1)
	c.logger.Debug("book removed", zap.String("isbn", isbn))
	return c.Save()
}

// Checkout lends an available book to user and persists the catalog.
func (c *Catalog) Checkout(isbn string, user *User) error {
	if user == nil || user.Username == "" {
		return fmt.Errorf("book %s: %w", isbn, ErrNoBorrower)
	}
	b, err := c.FindByISBN(isbn)
	if err != nil {
		return err
	}
	if b.CheckedOut {
		return fmt.Errorf("book %s: %w", isbn, ErrAlreadyCheckedOut)
	}
	b.CheckedOut = true
	b.Borrower = user.Username
	c.logger.Debug("book checked out", zap.String("isbn", isbn), zap.String("borrower", user.Username))
	return c.Save()
}

// Return marks a checked-out book available again, persists the catalog,
// and reports who had it.
func (c *Catalog) Return(isbn string) (string, error) {
	b, err := c.FindByISBN(isbn)
	if err != nil {
		return "", err
	}
	if !b.CheckedOut {
		return "", fmt.Errorf("book %s: %w", isbn, ErrNotCheckedOut)
	}
	borrower := b.Borrower
	b.CheckedOut = false
	b.Borrower = ""
	c.logger.Debug("book returned", zap.String("isbn", isbn), zap.String("borrower", borrower))
	return borrower, c.Save()
}

// Books returns the records in canonical (insertion) order.
func (c *Catalog) Books() []*Book { return slices.Clone(c.books) }

// ListSortedByTitle returns the records ordered by title, compared byte-wise.
// The canonical order is not changed.
func (c *Catalog) ListSortedByTitle() []*Book {
	out := slices.Clone(c.books)
	slices.SortStableFunc(out, func(a, b *Book) int { return strings.Compare(a.Title, b.Title) })
	return out
}

// Search returns every book whose title contains q, ignoring case.
func (c *Catalog) Search(q string) []*Book {
	q = strings.ToLower(q)
	out := []*Book{}
	for _, b := range c.books {
		if strings.Contains(strings.ToLower(b.Title), q) {
			out = append(out, b)
		}
	}
	return out
}

// BorrowedBy returns the books currently checked out to username.
func (c *Catalog) BorrowedBy(username string) []*Book {
	out := []*Book{}
	for _, b := range c.books {
		if b.CheckedOut && b.Borrower == username {
			out = append(out, b)
		}
	}
	return out
}

// Replace swaps in a whole new collection after checking ISBN uniqueness and
// the borrow rule, then persists it. The catalog is unchanged on a
// validation error. A successful save clears LoadErr.
func (c *Catalog) Replace(books []Book) error {
	next, err := prepareBooks(books)
	if err != nil {
		return err
	}
	c.books = next
	if err := c.Save(); err != nil {
		return err
	}
	c.loadErr = nil
	return nil
}

// ValidateBooks reports the first record Replace would reject.
func ValidateBooks(books []Book) error {
	_, err := prepareBooks(books)
	return err
}

func prepareBooks(books []Book) ([]*Book, error) {
	next := make([]*Book, 0, len(books))
	seen := make(map[string]struct{}, len(books))
	for i := range books {
		b := books[i]
		if err := checkFields(b.ISBN, b.Title, b.Author, b.Borrower); err != nil {
			return nil, fmt.Errorf("book %s: %w", b.ISBN, err)
		}
		if _, dup := seen[b.ISBN]; dup {
			return nil, fmt.Errorf("book %s: %w", b.ISBN, ErrDuplicateISBN)
		}
		if b.CheckedOut != (b.Borrower != "") {
			return nil, fmt.Errorf("book %s: borrower %q with checked out %t: %w", b.ISBN, b.Borrower, b.CheckedOut, ErrInvalidState)
		}
		seen[b.ISBN] = struct{}{}
		next = append(next, &b)
	}
	return next, nil
}
