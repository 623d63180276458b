package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"library-catalog/library"
)

type cli struct {
	t     *testing.T
	books string
	users string
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	t.Setenv("LIBRARY_SNAPSHOT_FILE", filepath.Join(dir, "library.db"))
	t.Setenv("LIBRARY_LOG_LEVEL", "error")
	t.Setenv("LIBRARY_ADMIN_PASSWORD", "admin123")
	return &cli{t: t, books: filepath.Join(dir, "books.csv"), users: filepath.Join(dir, "users.csv")}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	jsonOut, password, asUser, roleCode = false, "", "", "1"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--books", c.books, "--users", c.users}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

func TestInitCreatesAdminOnce(t *testing.T) {
	c := newCLI(t)
	assert.Contains(t, c.mustRun("init"), `Created librarian account "admin"`)
	assert.Contains(t, c.mustRun("init"), "already exists")
}

func TestBookCommands(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("book", "add", "222", "Emma", "Austen")
	c.mustRun("book", "add", "111", "Dune", "Herbert")

	_, err := c.run("book", "add", "111", "Other", "Someone")
	require.ErrorIs(t, err, library.ErrDuplicateISBN)

	var books []library.Book
	require.NoError(t, json.UnmarshalFromString(c.mustRun("book", "list", "--json"), &books))
	want := []library.Book{
		{ISBN: "111", Title: "Dune", Author: "Herbert"},
		{ISBN: "222", Title: "Emma", Author: "Austen"},
	}
	assert.Empty(t, cmp.Diff(want, books))

	c.mustRun("user", "add", "alice", "--password", "1234", "--role", "1")
	_, err = c.run("book", "checkout", "111", "--user", "alice", "--password", "bad")
	require.ErrorIs(t, err, library.ErrAuthenticationFailed)
	assert.Contains(t, c.mustRun("book", "checkout", "111", "--user", "alice", "--password", "1234"), "Successfully borrowed 'Dune'!")

	books = nil
	require.NoError(t, json.UnmarshalFromString(c.mustRun("book", "borrowed", "alice", "--json"), &books))
	require.Len(t, books, 1)
	assert.Equal(t, "alice", books[0].Borrower)

	assert.Contains(t, c.mustRun("book", "return", "111"), "was borrowed by alice")
	_, err = c.run("book", "return", "111")
	require.ErrorIs(t, err, library.ErrNotCheckedOut)

	c.mustRun("book", "remove", "222")
	_, err = c.run("book", "remove", "222")
	require.ErrorIs(t, err, library.ErrNotFound)
}

func TestUserCommands(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")

	_, err := c.run("user", "add", "bob", "--password", "1", "--role", "7")
	require.Error(t, err)
	c.mustRun("user", "add", "bob", "--password", "42", "--role", "0")

	out := c.mustRun("user", "list", "--json")
	assert.Contains(t, out, `"bob"`)
	assert.NotContains(t, out, "42")

	_, err = c.run("user", "remove", "admin")
	require.ErrorIs(t, err, library.ErrProtectedAccount)
	c.mustRun("user", "remove", "bob")
	assert.Contains(t, c.mustRun("user", "search", "bo"), "No users found.")
}

func TestSnapshotCommands(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("book", "add", "111", "Dune", "Herbert")
	c.mustRun("snapshot", "export")
	c.mustRun("book", "remove", "111")

	var snaps []library.Snapshot
	require.NoError(t, json.UnmarshalFromString(c.mustRun("snapshot", "list", "--json"), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, 1, snaps[0].Books)

	assert.Contains(t, c.mustRun("snapshot", "restore"), snaps[0].ID)
	assert.Contains(t, c.mustRun("book", "search", "dune"), "Herbert")
}

type syncCounter struct {
	bytes.Buffer
	syncs int
}

func (s *syncCounter) Sync() error {
	s.syncs++
	return nil
}

func TestLoggerSyncedWhenCommandFails(t *testing.T) {
	c := newCLI(t)
	sink := &syncCounter{}
	orig := newLogger
	t.Cleanup(func() { newLogger = orig })
	newLogger = func(string, bool) (*zap.Logger, error) {
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		return zap.New(zapcore.NewCore(enc, sink, zap.DebugLevel)), nil
	}

	_, err := c.run("book", "remove", "404")
	require.ErrorIs(t, err, library.ErrNotFound)
	assert.Positive(t, sink.syncs)
}

func TestUnreadableUsersFileStopsInit(t *testing.T) {
	c := newCLI(t)
	require.NoError(t, os.Mkdir(c.users, 0o755))

	_, err := c.run("init")
	require.ErrorIs(t, err, library.ErrPersistenceUnavailable)
	_, err = c.run("user", "add", "bob", "--password", "42")
	require.ErrorIs(t, err, library.ErrPersistenceUnavailable)

	info, err := os.Stat(c.users)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
