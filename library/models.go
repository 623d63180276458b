package library

// Book represents one lendable catalog item, keyed by ISBN.
// Borrower is non-empty exactly when CheckedOut is true.
type Book struct {
	ISBN       string `json:"isbn" db:"isbn"`
	Title      string `json:"title" db:"title"`
	Author     string `json:"author" db:"author"`
	CheckedOut bool   `json:"checked_out" db:"checked_out"`
	Borrower   string `json:"borrower" db:"borrower"`
}

// Available reports whether the book can be checked out.
func (b *Book) Available() bool { return !b.CheckedOut }

// Role is the account kind of a User.
type Role int

const (
	Librarian Role = iota
	Member
)

func (r Role) String() string {
	if r == Librarian {
		return "Librarian"
	}
	return "Member"
}

// Code is the single-character role code used in the membership file.
func (r Role) Code() string {
	if r == Librarian {
		return "0"
	}
	return "1"
}

// ParseRole maps a membership file role code to a Role. Only "0" is a
// Librarian; every other value is a Member.
func ParseRole(code string) Role {
	if code == "0" {
		return Librarian
	}
	return Member
}

// User represents a registered account.
type User struct {
	Username string `json:"username" db:"username"`
	Password string `json:"-" db:"password"` // plain text, never serialized to JSON
	Role     Role   `json:"role" db:"role"`
}

// CheckPassword compares the attempt with the stored password.
func (u *User) CheckPassword(attempt string) bool { return u.Password == attempt }
