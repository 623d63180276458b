// Package session runs the interactive login loop and the librarian and
// member menus on top of a LibraryManager.
package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"library-catalog/library"
)

// Session is one interactive terminal session. It is not safe for
// concurrent use.
type Session struct {
	mgr      *library.LibraryManager
	in       *bufio.Reader
	out      io.Writer
	pageSize int
	logger   *zap.Logger

	// readSecret reads a password after the prompt has been printed.
	readSecret func() (string, error)
}

// New returns a session reading from in and writing to out. Passwords are
// read as plain lines from in.
func New(mgr *library.LibraryManager, in io.Reader, out io.Writer, pageSize int, logger *zap.Logger) *Session {
	if pageSize < 1 {
		pageSize = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		mgr:      mgr,
		in:       bufio.NewReader(in),
		out:      out,
		pageSize: pageSize,
		logger:   logger.Named("session"),
	}
	s.readSecret = s.readLine
	return s
}

// NewTerminal returns a session on stdin/stdout that masks passwords when
// stdin is a terminal.
func NewTerminal(mgr *library.LibraryManager, pageSize int, logger *zap.Logger) *Session {
	s := New(mgr, os.Stdin, os.Stdout, pageSize, logger)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		s.readSecret = func() (string, error) {
			pw, err := term.ReadPassword(fd)
			fmt.Fprintln(s.out)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(pw)), nil
		}
	}
	return s
}

// Run loops over logins until the user types "exit" or input ends.
func (s *Session) Run() error {
	s.println(titleStyle.Render("========================================="))
	s.println(titleStyle.Render(" Welcome to the Library Management System"))
	s.println(titleStyle.Render("========================================="))

	for {
		user, err := s.login()
		if err != nil {
			return ignoreEOF(err)
		}
		if user == nil {
			s.println("Thank you for using the system. Goodbye!")
			return nil
		}

		s.println(okStyle.Render("Login successful! Welcome, " + user.Username + "."))
		s.logger.Info("login", zap.String("username", user.Username), zap.Stringer("role", user.Role))

		if user.Role == library.Librarian {
			err = s.librarianMenu()
		} else {
			err = s.memberMenu()
		}
		if err != nil {
			return ignoreEOF(err)
		}
	}
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// login returns nil, nil when the user asks to exit.
func (s *Session) login() (*library.User, error) {
	for {
		s.println("\n--- Please Login ---")
		username, err := s.prompt("Enter username (or 'exit' to close): ")
		if err != nil {
			return nil, err
		}
		if username == "exit" {
			return nil, nil
		}
		password, err := s.secret("Enter password: ")
		if err != nil {
			return nil, err
		}
		user, err := s.mgr.Authenticate(username, password)
		if err == nil {
			return user, nil
		}
		s.println(errStyle.Render("Login failed. Please check your credentials and try again."))
	}
}

type menuItem struct {
	key   string
	label string
	run   func() error
}

func (s *Session) librarianMenu() error {
	return s.menu("Librarian Menu", []menuItem{
		{"1", "Add New Book", s.addBook},
		{"2", "Remove Book", s.removeBook},
		{"3", "Display All Books", s.listBooks},
		{"4", "Search for a Book", s.searchBooks},
		{"5", "Check Out a Book", s.checkout},
		{"6", "Return a Book", s.returnBook},
		{"7", "Add New User", s.addUser},
		{"8", "Remove User", s.removeUser},
		{"10", "Display All Users", s.listUsers},
		{"11", "Search for a User", s.searchUsers},
	})
}

func (s *Session) memberMenu() error {
	return s.menu("Member Menu", []menuItem{
		{"1", "Display All Books", s.listBooks},
		{"2", "Search for a Book", s.searchBooks},
		{"3", "Check Out a Book", s.checkout},
		{"4", "Return a Book", s.returnBook},
	})
}

// menu shows items until the user picks 9 (logout).
func (s *Session) menu(title string, items []menuItem) error {
	for {
		s.println("\n" + titleStyle.Render("--- "+title+" ---"))
		for _, it := range items {
			s.printf("%s. %s\n", it.key, it.label)
		}
		s.println("9. Logout")
		choice, err := s.prompt("Enter your choice: ")
		if err != nil {
			return err
		}
		if choice == "9" {
			s.println(warnStyle.Render("Logging out..."))
			return nil
		}
		found := false
		for _, it := range items {
			if it.key == choice {
				found = true
				if err := it.run(); err != nil {
					return err
				}
				break
			}
		}
		if !found {
			s.println(errStyle.Render("Invalid choice. Please try again."))
		}
	}
}

// ------------------ Books ------------------

func (s *Session) addBook() error {
	s.println(titleStyle.Render("--- Add New Book ---"))
	var isbn string
	for {
		v, err := s.prompt("  Enter ISBN (numeric only): ")
		if err != nil {
			return err
		}
		if !isDigits(v) {
			s.println(errStyle.Render("Error: ISBN must contain only numbers. Please try again."))
			continue
		}
		isbn = v
		break
	}
	if _, err := s.mgr.GetBook(isbn); err == nil {
		s.println(errStyle.Render(fmt.Sprintf("Error: A book with ISBN '%s' already exists.", isbn)))
		return nil
	}
	title, err := s.prompt("  Title: ")
	if err != nil {
		return err
	}
	author, err := s.prompt("  Author: ")
	if err != nil {
		return err
	}

	switch err := s.mgr.AddBook(isbn, title, author); {
	case err == nil:
		s.println(okStyle.Render("Book added successfully!"))
	case errors.Is(err, library.ErrDuplicateTitleAuthor):
		s.println(errStyle.Render("Error: A book with the same title and author already exists."))
	default:
		s.report(err)
	}
	return nil
}

func (s *Session) removeBook() error {
	isbn, err := s.prompt("Enter ISBN of the book to remove: ")
	if err != nil {
		return err
	}
	switch err := s.mgr.RemoveBook(isbn); {
	case err == nil:
		s.println(okStyle.Render("Book removed successfully."))
	case errors.Is(err, library.ErrNotFound):
		s.println(errStyle.Render("Error: Book not found."))
	default:
		s.report(err)
	}
	return nil
}

func (s *Session) listBooks() error {
	books := s.mgr.ListBooks()
	if len(books) == 0 {
		s.println("The library has no books.")
		return nil
	}
	return s.paginate("All Books in Library (Sorted by Title)", len(books), func(start, end int) string {
		return BookTable(books[start:end])
	})
}

func (s *Session) searchBooks() error {
	q, err := s.prompt("Enter title to search for: ")
	if err != nil {
		return err
	}
	found := s.mgr.SearchBooks(q)
	if len(found) == 0 {
		s.println("No books found matching your search.")
		return nil
	}
	s.println("--- Search Results ---")
	s.println(BookTable(found))
	return nil
}

func (s *Session) checkout() error {
	isbn, err := s.prompt("Enter ISBN of the book to borrow: ")
	if err != nil {
		return err
	}
	if err := s.mgr.CanCheckout(isbn); err != nil {
		if errors.Is(err, library.ErrNotFound) {
			s.println(errStyle.Render("Error: Book not found."))
			return nil
		}
		b, _ := s.mgr.GetBook(isbn)
		s.println(warnStyle.Render(fmt.Sprintf("Sorry, this book is already checked out by user '%s'.", b.Borrower)))
		return nil
	}

	var user *library.User
	for user == nil {
		s.println("--- Please Verify Your Identity to Borrow ---")
		username, err := s.prompt("Enter your username: ")
		if err != nil {
			return err
		}
		password, err := s.secret("Enter your password: ")
		if err != nil {
			return err
		}
		if user, err = s.mgr.Authenticate(username, password); err == nil {
			break
		}
		s.println(errStyle.Render("Authentication failed. Invalid username or password."))
		choice, err := s.prompt("Would you like to (R)etry or (E)xit? ")
		if err != nil {
			return err
		}
		if strings.EqualFold(choice, "e") {
			s.println("Checkout cancelled.")
			return nil
		}
	}

	if err := s.mgr.CheckoutBook(isbn, user); err != nil {
		s.report(err)
		return nil
	}
	b, _ := s.mgr.GetBook(isbn)
	s.println(okStyle.Render(fmt.Sprintf("Successfully borrowed '%s'!", b.Title)))
	return nil
}

func (s *Session) returnBook() error {
	isbn, err := s.prompt("Enter ISBN of the book to return: ")
	if err != nil {
		return err
	}
	borrower, err := s.mgr.ReturnBook(isbn)
	switch {
	case err == nil:
		b, _ := s.mgr.GetBook(isbn)
		s.println(okStyle.Render(fmt.Sprintf("Successfully returned '%s' (was borrowed by %s).", b.Title, borrower)))
	case errors.Is(err, library.ErrNotFound):
		s.println(errStyle.Render("Error: Book not found."))
	case errors.Is(err, library.ErrNotCheckedOut):
		s.println(warnStyle.Render("This book is already in the library and was not checked out."))
	default:
		s.report(err)
	}
	return nil
}

// ------------------ Users ------------------

func (s *Session) addUser() error {
	s.println(titleStyle.Render("--- Add New User ---"))
	var username string
	for {
		v, err := s.prompt("  Enter new username: ")
		if err != nil {
			return err
		}
		if v == "" {
			continue
		}
		if _, err := s.mgr.GetUser(v); err == nil {
			s.println(errStyle.Render(fmt.Sprintf("Error: A user with the username '%s' already exists. Please try another.", v)))
			continue
		}
		username = v
		break
	}

	var password string
	for {
		v, err := s.secret("  Enter new password (numeric only): ")
		if err != nil {
			return err
		}
		if !isDigits(v) {
			s.println(errStyle.Render("Error: Password must contain only numbers. Please try again."))
			continue
		}
		password = v
		break
	}

	var role library.Role
	for {
		v, err := s.prompt("  Enter Role (0 for Librarian, 1 for Member): ")
		if err != nil {
			return err
		}
		if v != "0" && v != "1" {
			s.println(errStyle.Render("Invalid input. Please enter 0 or 1."))
			continue
		}
		role = library.ParseRole(v)
		break
	}

	if err := s.mgr.AddUser(username, password, role); err != nil {
		s.report(err)
		return nil
	}
	s.println(okStyle.Render(fmt.Sprintf("User '%s' was added successfully!", username)))
	return nil
}

func (s *Session) removeUser() error {
	username, err := s.prompt("Enter username of the user to remove: ")
	if err != nil {
		return err
	}
	held, err := s.mgr.RemoveUser(username)
	switch {
	case err == nil:
		s.println(okStyle.Render("User removed successfully."))
		if len(held) > 0 {
			s.println(warnStyle.Render(fmt.Sprintf("Note: %s still has %d book(s) checked out.", username, len(held))))
		}
	case errors.Is(err, library.ErrProtectedAccount):
		s.println(errStyle.Render("Error: The default admin user cannot be removed."))
	case errors.Is(err, library.ErrNotFound):
		s.println(errStyle.Render("Error: User not found."))
	default:
		s.report(err)
	}
	return nil
}

func (s *Session) listUsers() error {
	users := s.mgr.ListUsers()
	if len(users) == 0 {
		s.println("There are no users in the system.")
		return nil
	}
	return s.paginate("All System Users (Sorted by Username)", len(users), func(start, end int) string {
		return UserTable(users[start:end])
	})
}

func (s *Session) searchUsers() error {
	q, err := s.prompt("Enter username to search for: ")
	if err != nil {
		return err
	}
	found := s.mgr.SearchUsers(q)
	if len(found) == 0 {
		s.println("No users found matching that name.")
		return nil
	}
	s.println("--- User Search Results ---")
	s.println(UserTable(found))
	return nil
}

// ------------------ I/O helpers ------------------

// paginate shows render(start, end) one page at a time until the user quits.
func (s *Session) paginate(title string, total int, render func(start, end int) string) error {
	page := 1
	for {
		start, end, pages := pageBounds(total, s.pageSize, page)
		s.println("\n" + titleStyle.Render("--- "+title+" ---"))
		s.println(render(start, end))
		s.println(pageFooter(page, pages))
		choice, err := s.prompt("Enter your choice: ")
		if err != nil {
			return err
		}
		switch strings.ToLower(choice) {
		case "n":
			if page < pages {
				page++
			}
		case "p":
			if page > 1 {
				page--
			}
		case "q":
			return nil
		}
	}
}

// report prints an unexpected store error.
func (s *Session) report(err error) {
	if errors.Is(err, library.ErrPersistenceUnavailable) {
		s.logger.Error("persist change", zap.Error(err))
		s.println(errStyle.Render("Error: the library files are unavailable: " + err.Error()))
		return
	}
	s.println(errStyle.Render("Error: " + err.Error()))
}

func (s *Session) prompt(label string) (string, error) {
	fmt.Fprint(s.out, label)
	return s.readLine()
}

func (s *Session) secret(label string) (string, error) {
	fmt.Fprint(s.out, label)
	return s.readSecret()
}

// readLine reads one trimmed line. A final line without a newline is
// returned before io.EOF is reported.
func (s *Session) readLine() (string, error) {
	line, err := s.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) println(a ...any)               { fmt.Fprintln(s.out, a...) }
func (s *Session) printf(format string, a ...any) { fmt.Fprintf(s.out, format, a...) }

func isDigits(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
