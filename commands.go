package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-catalog/library"
	"library-catalog/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	jsonOut  bool
	asUser   string
	password string
	roleCode string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the reserved admin account if it is missing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := openManager(cmd)
		created, err := mgr.Bootstrap()
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "Created librarian account %q.\n", mgr.Membership.AdminUsername())
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Account %q already exists.\n", mgr.Membership.AdminUsername())
		}
		return nil
	},
}

// ------------------ book ------------------

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Manage the book catalog",
}

var bookAddCmd = &cobra.Command{
	Use:   "add ISBN TITLE AUTHOR",
	Short: "Add a book",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := openManager(cmd).AddBook(args[0], args[1], args[2]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Book added successfully!")
		return nil
	},
}

var bookRemoveCmd = &cobra.Command{
	Use:   "remove ISBN",
	Short: "Remove a book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := openManager(cmd).RemoveBook(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Book removed successfully.")
		return nil
	},
}

var bookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List books sorted by title",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printBooks(cmd.OutOrStdout(), openManager(cmd).ListBooks())
	},
}

var bookSearchCmd = &cobra.Command{
	Use:   "search TITLE",
	Short: "Find books whose title contains TITLE, ignoring case",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := ""
		if len(args) == 1 {
			q = args[0]
		}
		return printBooks(cmd.OutOrStdout(), openManager(cmd).SearchBooks(q))
	},
}

var bookCheckoutCmd = &cobra.Command{
	Use:   "checkout ISBN",
	Short: "Check a book out to a user after verifying their password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := openManager(cmd)
		// Availability is checked before asking for the password.
		if err := mgr.CanCheckout(args[0]); err != nil {
			return err
		}
		pw, err := secret(cmd, "Password for "+asUser+": ")
		if err != nil {
			return err
		}
		if _, err := mgr.CheckoutAs(args[0], asUser, pw); err != nil {
			return err
		}
		b, err := mgr.GetBook(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully borrowed '%s'!\n", b.Title)
		return nil
	},
}

var bookReturnCmd = &cobra.Command{
	Use:   "return ISBN",
	Short: "Return a checked out book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		borrower, err := openManager(cmd).ReturnBook(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Returned %s (was borrowed by %s).\n", args[0], borrower)
		return nil
	},
}

var bookBorrowedCmd = &cobra.Command{
	Use:   "borrowed USERNAME",
	Short: "List the books checked out to a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printBooks(cmd.OutOrStdout(), openManager(cmd).BooksBorrowedBy(args[0]))
	},
}

// ------------------ user ------------------

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add USERNAME",
	Short: "Add a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if roleCode != "0" && roleCode != "1" {
			return fmt.Errorf("invalid role %q: use 0 for Librarian or 1 for Member", roleCode)
		}
		pw, err := secret(cmd, "Password for "+args[0]+": ")
		if err != nil {
			return err
		}
		if pw == "" {
			return errors.New("password must not be empty")
		}
		role := library.ParseRole(roleCode)
		if err := openManager(cmd).AddUser(args[0], pw, role); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User '%s' was added successfully as %s.\n", args[0], role)
		return nil
	},
}

var userRemoveCmd = &cobra.Command{
	Use:   "remove USERNAME",
	Short: "Remove a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		held, err := openManager(cmd).RemoveUser(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "User removed successfully.")
		for _, b := range held {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s still holds %s (%s).\n", args[0], b.ISBN, b.Title)
		}
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users sorted by username",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printUsers(cmd.OutOrStdout(), openManager(cmd).ListUsers())
	},
}

var userSearchCmd = &cobra.Command{
	Use:   "search NAME",
	Short: "Find users whose username contains NAME",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printUsers(cmd.OutOrStdout(), openManager(cmd).SearchUsers(args[0]))
	},
}

// ------------------ snapshot ------------------

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Archive and restore both stores in a SQLite file",
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Archive the current catalog and users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := openManager(cmd).Export()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore [ID]",
	Short: "Replace both stores with a snapshot (newest when ID is omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		restored, err := openManager(cmd).Restore(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored snapshot %s.\n", restored)
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snaps, err := openManager(cmd).Snapshots()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOut {
			return writeJSON(out, snaps)
		}
		if len(snaps) == 0 {
			fmt.Fprintln(out, "No snapshots.")
			return nil
		}
		for _, s := range snaps {
			fmt.Fprintf(out, "%s  %s  %d books  %d users\n",
				s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04:05"), s.Books, s.Users)
		}
		return nil
	},
}

// ------------------ output helpers ------------------

func printBooks(w io.Writer, books []*library.Book) error {
	if jsonOut {
		return writeJSON(w, books)
	}
	if len(books) == 0 {
		fmt.Fprintln(w, "No books found.")
		return nil
	}
	fmt.Fprintln(w, session.BookTable(books))
	return nil
}

func printUsers(w io.Writer, users []*library.User) error {
	if jsonOut {
		return writeJSON(w, users)
	}
	if len(users) == 0 {
		fmt.Fprintln(w, "No users found.")
		return nil
	}
	fmt.Fprintln(w, session.UserTable(users))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// secret returns --password when given, otherwise prompts on stderr and
// reads a masked line from the terminal (or a plain line from a pipe).
func secret(cmd *cobra.Command, prompt string) (string, error) {
	if password != "" {
		return password, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(string(pw)), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func init() {
	for _, c := range []*cobra.Command{bookListCmd, bookSearchCmd, bookBorrowedCmd, userListCmd, userSearchCmd, snapshotListCmd} {
		c.Flags().BoolVar(&jsonOut, "json", false, "print JSON instead of a table")
	}
	for _, c := range []*cobra.Command{bookCheckoutCmd, userAddCmd} {
		c.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	}
	bookCheckoutCmd.Flags().StringVarP(&asUser, "user", "u", "", "borrowing username")
	_ = bookCheckoutCmd.MarkFlagRequired("user")
	userAddCmd.Flags().StringVarP(&roleCode, "role", "r", "1", "0 for Librarian, 1 for Member")

	bookCmd.AddCommand(bookAddCmd, bookRemoveCmd, bookListCmd, bookSearchCmd, bookCheckoutCmd, bookReturnCmd, bookBorrowedCmd)
	userCmd.AddCommand(userAddCmd, userRemoveCmd, userListCmd, userSearchCmd)
	snapshotCmd.AddCommand(snapshotExportCmd, snapshotRestoreCmd, snapshotListCmd)
}
