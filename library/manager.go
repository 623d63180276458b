package library

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Options configures a LibraryManager.
type Options struct {
	BooksPath     string
	UsersPath     string
	AdminUsername string
	AdminPassword string
	SnapshotPath  string
	Logger        *zap.Logger
}

// LibraryManager is a thin façade over the two stores, keeping CLI code simple.
type LibraryManager struct {
	Catalog    *Catalog
	Membership *Membership

	opts   Options
	logger *zap.Logger
}

// NewLibraryManager builds both stores and loads them. Load failures are
// logged and joined into the returned error, but the manager is always usable:
// a store that failed to load starts empty.
func NewLibraryManager(opts Options) (*LibraryManager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lm := &LibraryManager{
		Catalog:    NewCatalog(opts.BooksPath, logger),
		Membership: NewMembership(opts.UsersPath, opts.AdminUsername, logger),
		opts:       opts,
		logger:     logger,
	}
	return lm, lm.Reload()
}

// Reload re-reads both files. Handles from before the call are invalid.
func (lm *LibraryManager) Reload() error {
	var errs []error
	if err := lm.Catalog.Load(); err != nil {
		lm.logger.Warn("catalog unavailable, continuing empty", zap.Error(err))
		errs = append(errs, err)
	}
	if err := lm.Membership.Load(); err != nil {
		lm.logger.Warn("membership unavailable, continuing empty", zap.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// catalogWritable refuses changes while the catalog file could not be read.
func (lm *LibraryManager) catalogWritable() error {
	if err := lm.Catalog.LoadErr(); err != nil {
		return fmt.Errorf("catalog %s was not loaded, refusing to overwrite it: %w", lm.Catalog.Path(), err)
	}
	return nil
}

// membershipWritable refuses changes while the users file could not be read.
func (lm *LibraryManager) membershipWritable() error {
	if err := lm.Membership.LoadErr(); err != nil {
		return fmt.Errorf("users %s were not loaded, refusing to overwrite them: %w", lm.Membership.Path(), err)
	}
	return nil
}

// Writable reports whether both stores were loaded and may be saved.
func (lm *LibraryManager) Writable() error {
	return errors.Join(lm.catalogWritable(), lm.membershipWritable())
}

// Bootstrap creates the reserved admin account as a Librarian when it is
// absent. It reports whether an account was created. It fails without
// writing when the users file could not be read.
func (lm *LibraryManager) Bootstrap() (bool, error) {
	if err := lm.membershipWritable(); err != nil {
		return false, err
	}
	admin := lm.Membership.AdminUsername()
	if _, err := lm.Membership.FindByUsername(admin); err == nil {
		return false, nil
	}
	if lm.opts.AdminPassword == "" {
		return false, fmt.Errorf("bootstrap %s: admin password is empty", admin)
	}
	if err := lm.Membership.Add(admin, lm.opts.AdminPassword, Librarian); err != nil {
		return false, err
	}
	lm.logger.Info("created reserved admin account", zap.String("username", admin))
	return true, nil
}

// ------------------ Book helpers ------------------

func (lm *LibraryManager) AddBook(isbn, title, author string) error {
	if err := lm.catalogWritable(); err != nil {
		return err
	}
	return lm.Catalog.Add(isbn, title, author)
}

func (lm *LibraryManager) RemoveBook(isbn string) error {
	if err := lm.catalogWritable(); err != nil {
		return err
	}
	return lm.Catalog.Remove(isbn)
}

func (lm *LibraryManager) GetBook(isbn string) (*Book, error)  { return lm.Catalog.FindByISBN(isbn) }
func (lm *LibraryManager) ListBooks() []*Book                  { return lm.Catalog.ListSortedByTitle() }
func (lm *LibraryManager) SearchBooks(title string) []*Book    { return lm.Catalog.Search(title) }
func (lm *LibraryManager) BooksBorrowedBy(name string) []*Book { return lm.Catalog.BorrowedBy(name) }

// ------------------ Member helpers ------------------

func (lm *LibraryManager) Authenticate(username, password string) (*User, error) {
	return lm.Membership.Authenticate(username, password)
}

func (lm *LibraryManager) AddUser(username, password string, role Role) error {
	if err := lm.membershipWritable(); err != nil {
		return err
	}
	return lm.Membership.Add(username, password, role)
}

func (lm *LibraryManager) GetUser(username string) (*User, error) {
	return lm.Membership.FindByUsername(username)
}

func (lm *LibraryManager) ListUsers() []*User              { return lm.Membership.ListSortedByUsername() }
func (lm *LibraryManager) SearchUsers(name string) []*User { return lm.Membership.Search(name) }

// RemoveUser deletes an account and returns the books it still holds. Those
// books stay checked out to the removed name.
func (lm *LibraryManager) RemoveUser(username string) ([]*Book, error) {
	if err := lm.membershipWritable(); err != nil {
		return nil, err
	}
	if err := lm.Membership.Remove(username); err != nil {
		return nil, err
	}
	held := lm.Catalog.BorrowedBy(username)
	if len(held) > 0 {
		lm.logger.Warn("removed user still holds books", zap.String("username", username), zap.Int("books", len(held)))
	}
	return held, nil
}

// ------------------ Circulation ------------------

// CheckoutBook lends a book to an already authenticated user.
func (lm *LibraryManager) CheckoutBook(isbn string, user *User) error {
	if err := lm.catalogWritable(); err != nil {
		return err
	}
	return lm.Catalog.Checkout(isbn, user)
}

// CheckoutAs verifies the book can be lent before checking credentials, then
// lends it to the authenticated user.
func (lm *LibraryManager) CheckoutAs(isbn, username, password string) (*User, error) {
	if err := lm.CanCheckout(isbn); err != nil {
		return nil, err
	}
	user, err := lm.Membership.Authenticate(username, password)
	if err != nil {
		return nil, err
	}
	return user, lm.CheckoutBook(isbn, user)
}

// CanCheckout reports why isbn cannot be lent right now, or nil.
func (lm *LibraryManager) CanCheckout(isbn string) error {
	b, err := lm.Catalog.FindByISBN(isbn)
	if err != nil {
		return err
	}
	if b.CheckedOut {
		return fmt.Errorf("book %s held by %s: %w", isbn, b.Borrower, ErrAlreadyCheckedOut)
	}
	return nil
}

// ReturnBook returns the book and yields the user who had it.
func (lm *LibraryManager) ReturnBook(isbn string) (string, error) {
	if err := lm.catalogWritable(); err != nil {
		return "", err
	}
	return lm.Catalog.Return(isbn)
}

// ------------------ Snapshots ------------------

func (lm *LibraryManager) openArchive() (*Database, error) {
	if lm.opts.SnapshotPath == "" {
		return nil, fmt.Errorf("snapshot file not configured: %w", ErrPersistenceUnavailable)
	}
	return NewDatabase(lm.opts.SnapshotPath)
}

// Export archives both stores and returns the snapshot id.
func (lm *LibraryManager) Export() (string, error) {
	db, err := lm.openArchive()
	if err != nil {
		return "", err
	}
	defer db.Close()

	id, err := db.Export(lm.Catalog.Books(), lm.Membership.Users())
	if err != nil {
		return "", err
	}
	lm.logger.Info("snapshot exported", zap.String("id", id),
		zap.Int("books", lm.Catalog.Len()), zap.Int("users", lm.Membership.Len()))
	return id, nil
}

// Snapshots lists the archive, newest first.
func (lm *LibraryManager) Snapshots() ([]Snapshot, error) {
	db, err := lm.openArchive()
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.ListSnapshots()
}

// Restore replaces both stores with a snapshot and rewrites both files. An
// empty id selects the newest snapshot. The reserved admin account must be
// present in the snapshot. Restore also works when a file could not be read,
// since it overwrites the whole store.
func (lm *LibraryManager) Restore(id string) (string, error) {
	db, err := lm.openArchive()
	if err != nil {
		return "", err
	}
	defer db.Close()

	if id == "" {
		if id, err = db.LatestSnapshotID(); err != nil {
			return "", err
		}
	}
	books, users, err := db.Snapshot(id)
	if err != nil {
		return "", err
	}

	admin := lm.Membership.AdminUsername()
	hasAdmin := false
	for _, u := range users {
		if u.Username == admin {
			hasAdmin = true
			break
		}
	}
	if !hasAdmin {
		return "", fmt.Errorf("snapshot %s lacks %s: %w", id, admin, ErrProtectedAccount)
	}

	// Validate both collections before touching either store.
	if err := errors.Join(ValidateBooks(books), ValidateUsers(users)); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", id, err)
	}
	if err := errors.Join(lm.Catalog.Replace(books), lm.Membership.Replace(users)); err != nil {
		return "", err
	}
	lm.logger.Info("snapshot restored", zap.String("id", id))
	return id, nil
}
