package library

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
)

const userFields = 3

// DefaultAdminUsername is the reserved account used when none is configured.
const DefaultAdminUsername = "admin"

// Membership owns every User record and mirrors them to a flat file.
// The reserved admin account can never be removed.
type Membership struct {
	path    string
	admin   string
	users   []*User
	loadErr error
	logger  *zap.Logger
}

// NewMembership returns an empty store backed by path. admin names the
// reserved account; an empty value means DefaultAdminUsername.
func NewMembership(path, admin string, logger *zap.Logger) *Membership {
	if admin == "" {
		admin = DefaultAdminUsername
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Membership{path: path, admin: admin, logger: logger.Named("membership")}
}

func (m *Membership) Path() string          { return m.path }
func (m *Membership) AdminUsername() string { return m.admin }
func (m *Membership) Len() int              { return len(m.users) }

// LoadErr returns the error of the last Load, or nil when the file was read
// or did not exist.
func (m *Membership) LoadErr() error { return m.loadErr }

// Load replaces the in-memory users with the file contents. On any error
// the store is left empty; a missing file is not an error.
func (m *Membership) Load() error {
	m.users = nil
	m.loadErr = nil

	records, err := readRecords(m.path, userFields, m.logger)
	if err != nil {
		if isMissing(err) {
			m.logger.Warn("membership file missing, starting empty", zap.String("file", m.path))
			return nil
		}
		m.loadErr = err
		return err
	}

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		u := &User{Username: rec[0], Password: rec[1], Role: ParseRole(rec[2])}
		if _, dup := seen[u.Username]; dup {
			m.logger.Warn("skipping duplicate username", zap.String("username", u.Username))
			continue
		}
		seen[u.Username] = struct{}{}
		m.users = append(m.users, u)
	}
	m.logger.Debug("membership loaded", zap.Int("users", len(m.users)))
	return nil
}

// Save rewrites the backing file from memory, in canonical order.
func (m *Membership) Save() error {
	records := make([][]string, 0, len(m.users))
	for _, u := range m.users {
		records = append(records, []string{u.Username, u.Password, u.Role.Code()})
	}
	if err := writeRecords(m.path, records); err != nil {
		m.logger.Error("save membership", zap.Error(err))
		return err
	}
	return nil
}

// FindByUsername returns the canonical record for username.
func (m *Membership) FindByUsername(username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
}

// Authenticate returns the user only when both username and password match
// exactly. Any mismatch is reported as ErrAuthenticationFailed without saying
// which part was wrong.
func (m *Membership) Authenticate(username, password string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username && u.CheckPassword(password) {
			return u, nil
		}
	}
	m.logger.Debug("authentication failed", zap.String("username", username))
	return nil, ErrAuthenticationFailed
}

// Add registers a new account and persists the store.
func (m *Membership) Add(username, password string, role Role) error {
	if err := checkFields(username, password); err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	if _, err := m.FindByUsername(username); err == nil {
		return fmt.Errorf("user %s: %w", username, ErrDuplicateUsername)
	}
	m.users = append(m.users, &User{Username: username, Password: password, Role: role})
	m.logger.Debug("user added", zap.String("username", username), zap.Stringer("role", role))
	return m.Save()
}

// Remove deletes an account and persists the store.
func (m *Membership) Remove(username string) error {
	if username == m.admin {
		return fmt.Errorf("user %s: %w", username, ErrProtectedAccount)
	}
	i := slices.IndexFunc(m.users, func(u *User) bool { return u.Username == username })
	if i < 0 {
		return fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	m.users = slices.Delete(m.users, i, i+1)
	m.logger.Debug("user removed", zap.String("username", username))
	return m.Save()
}

// Users returns the records in canonical (insertion) order.
func (m *Membership) Users() []*User { return slices.Clone(m.users) }

// ListSortedByUsername returns the records ordered by username.
// The canonical order is not changed.
func (m *Membership) ListSortedByUsername() []*User {
	out := slices.Clone(m.users)
	slices.SortStableFunc(out, func(a, b *User) int { return strings.Compare(a.Username, b.Username) })
	return out
}

// Search returns every user whose username contains q. Case matters.
func (m *Membership) Search(q string) []*User {
	out := []*User{}
	for _, u := range m.users {
		if strings.Contains(u.Username, q) {
			out = append(out, u)
		}
	}
	return out
}

// Replace swaps in a whole new collection after checking username
// uniqueness, then persists it. The store is unchanged on a validation error.
// A successful save clears LoadErr.
func (m *Membership) Replace(users []User) error {
	next, err := prepareUsers(users)
	if err != nil {
		return err
	}
	m.users = next
	if err := m.Save(); err != nil {
		return err
	}
	m.loadErr = nil
	return nil
}

// ValidateUsers reports the first record Replace would reject.
func ValidateUsers(users []User) error {
	_, err := prepareUsers(users)
	return err
}

func prepareUsers(users []User) ([]*User, error) {
	next := make([]*User, 0, len(users))
	seen := make(map[string]struct{}, len(users))
	for i := range users {
		u := users[i]
		if err := checkFields(u.Username, u.Password); err != nil {
			return nil, fmt.Errorf("user %s: %w", u.Username, err)
		}
		if _, dup := seen[u.Username]; dup {
			return nil, fmt.Errorf("user %s: %w", u.Username, ErrDuplicateUsername)
		}
		seen[u.Username] = struct{}{}
		next = append(next, &u)
	}
	return next, nil
}
