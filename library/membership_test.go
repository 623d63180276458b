package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func tempMembership(t *testing.T) *Membership {
	t.Helper()
	m := NewMembership(filepath.Join(t.TempDir(), "users.csv"), "", nil)
	require.NoError(t, m.Load())
	return m
}

func userValues(users []*User) []User {
	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, *u)
	}
	return out
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		code string
		want Role
	}{
		{"0", Librarian},
		{"1", Member},
		{"2", Member},
		{"", Member},
		{"librarian", Member},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRole(tt.code))
		})
	}
}

func TestMembershipLoadWarnsOnMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.csv")
	writeFile(t, path, "admin,admin123,0\r\nalice,1234,1\nbroken\n\nbob,99,7\nalice,dup,0\n")

	core, logs := observer.New(zapcore.WarnLevel)
	m := NewMembership(path, "admin", zap.New(core))
	require.NoError(t, m.Load())

	want := []User{
		{Username: "admin", Password: "admin123", Role: Librarian},
		{Username: "alice", Password: "1234", Role: Member},
		{Username: "bob", Password: "99", Role: Member},
	}
	if diff := cmp.Diff(want, userValues(m.Users())); diff != "" {
		t.Fatalf("loaded users mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, logs.FilterMessage("skipping malformed line").Len())
	assert.Equal(t, 1, logs.FilterMessage("skipping duplicate username").Len())
}

func TestMembershipLoadMissingFile(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := NewMembership(filepath.Join(t.TempDir(), "users.csv"), "", zap.New(core))
	require.NoError(t, m.Load())
	assert.Zero(t, m.Len())
	assert.Equal(t, 1, logs.FilterMessage("membership file missing, starting empty").Len())
}

func TestMembershipAuthenticateScenario(t *testing.T) {
	m := tempMembership(t)
	require.NoError(t, m.Add("admin", "admin123", Librarian))

	_, err := m.Authenticate("admin", "wrong")
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = m.Authenticate("Admin", "admin123")
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	u, err := m.Authenticate("admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Username)
	assert.Equal(t, Librarian, u.Role)
}

func TestMembershipAddRejectsDuplicateUsername(t *testing.T) {
	m := tempMembership(t)
	require.NoError(t, m.Add("alice", "1234", Member))

	err := m.Add("alice", "9999", Librarian)
	require.ErrorIs(t, err, ErrDuplicateUsername)
	require.ErrorIs(t, err, ErrDuplicateKey)
	assert.Equal(t, 1, m.Len())

	u, err := m.FindByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, "1234", u.Password)
}

func TestMembershipRemove(t *testing.T) {
	m := tempMembership(t)
	require.NoError(t, m.Add("admin", "admin123", Librarian))
	require.NoError(t, m.Add("alice", "1234", Member))

	require.ErrorIs(t, m.Remove("ghost"), ErrNotFound)
	require.NoError(t, m.Remove("alice"))
	_, err := m.FindByUsername("alice")
	require.ErrorIs(t, err, ErrNotFound)

	fresh := NewMembership(m.Path(), "", nil)
	require.NoError(t, fresh.Load())
	assert.Equal(t, 1, fresh.Len())
}

func TestMembershipRemoveReservedAdmin(t *testing.T) {
	tests := []struct {
		name  string
		admin string
		users []string
	}{
		{"default admin present", "", []string{"admin"}},
		{"default admin absent", "", nil},
		{"configured admin", "root", []string{"root", "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMembership(filepath.Join(t.TempDir(), "users.csv"), tt.admin, nil)
			for _, name := range tt.users {
				require.NoError(t, m.Add(name, "1", Librarian))
			}
			err := m.Remove(m.AdminUsername())
			require.ErrorIs(t, err, ErrProtectedAccount)
			assert.Equal(t, len(tt.users), m.Len())
		})
	}
}

func TestMembershipSaveLoadRoundTrip(t *testing.T) {
	m := tempMembership(t)
	require.NoError(t, m.Add("admin", "admin123", Librarian))
	require.NoError(t, m.Add("zed", "42", Member))
	require.NoError(t, m.Add("alice", "1234", Member))

	data, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.Equal(t, "admin,admin123,0\nzed,42,1\nalice,1234,1\n", string(data))

	fresh := NewMembership(m.Path(), "", nil)
	require.NoError(t, fresh.Load())
	if diff := cmp.Diff(userValues(m.Users()), userValues(fresh.Users())); diff != "" {
		t.Fatalf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestMembershipListAndSearch(t *testing.T) {
	m := tempMembership(t)
	for _, name := range []string{"zed", "Alice", "alice", "bob"} {
		require.NoError(t, m.Add(name, "1", Member))
	}

	var names []string
	for _, u := range m.ListSortedByUsername() {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"Alice", "alice", "bob", "zed"}, names)
	assert.Equal(t, "zed", m.Users()[0].Username)

	assert.Len(t, m.Search("lic"), 2)
	assert.Len(t, m.Search("Ali"), 1)
	assert.Empty(t, m.Search("ALI"))
	assert.NotNil(t, m.Search("nobody"))
}

func TestMembershipAddRejectsSeparators(t *testing.T) {
	m := tempMembership(t)
	require.ErrorIs(t, m.Add("a,b", "1", Member), ErrInvalidField)
	require.ErrorIs(t, m.Add("ab", "1,2", Member), ErrInvalidField)
	assert.Zero(t, m.Len())
}

func TestUniquenessHoldsAcrossMutations(t *testing.T) {
	c := tempCatalog(t)
	m := tempMembership(t)
	ops := []struct{ isbn, title, user string }{
		{"1", "A", "alice"}, {"2", "B", "bob"}, {"1", "C", "alice"},
		{"3", "A", "carol"}, {"2", "D", "bob"}, {"4", "E", "dave"},
	}
	for _, op := range ops {
		_ = c.Add(op.isbn, op.title, "x")
		_ = m.Add(op.user, "1", Member)

		isbns := map[string]bool{}
		for _, b := range c.Books() {
			require.False(t, isbns[b.ISBN], "duplicate isbn %s", b.ISBN)
			isbns[b.ISBN] = true
		}
		names := map[string]bool{}
		for _, u := range m.Users() {
			require.False(t, names[u.Username], "duplicate username %s", u.Username)
			names[u.Username] = true
		}
	}
	assert.Equal(t, 3, c.Len()) // "3","A","x" collides on title+author with "1"
	assert.Equal(t, 4, m.Len())
}
