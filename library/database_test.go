package library

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDB(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	db, err := NewDatabase(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDatabaseExportAndReadBack(t *testing.T) {
	db := tempDB(t)
	books := []*Book{
		{ISBN: "222", Title: "Emma", Author: "Austen", CheckedOut: true, Borrower: "alice"},
		{ISBN: "111", Title: "Dune", Author: "Herbert"},
	}
	users := []*User{
		{Username: "admin", Password: "admin123", Role: Librarian},
		{Username: "alice", Password: "1234", Role: Member},
	}

	id, err := db.Export(books, users)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	gotBooks, gotUsers, err := db.Snapshot(id)
	require.NoError(t, err)
	if diff := cmp.Diff(bookValues(books), gotBooks); diff != "" {
		t.Fatalf("books mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(userValues(users), gotUsers); diff != "" {
		t.Fatalf("users mismatch (-want +got):\n%s", diff)
	}
}

func TestDatabaseSnapshotsNewestFirst(t *testing.T) {
	db := tempDB(t)

	_, err := db.LatestSnapshotID()
	require.ErrorIs(t, err, ErrNotFound)

	first, err := db.Export([]*Book{{ISBN: "1", Title: "A", Author: "x"}}, nil)
	require.NoError(t, err)
	second, err := db.Export(nil, []*User{{Username: "admin", Password: "1"}})
	require.NoError(t, err)

	latest, err := db.LatestSnapshotID()
	require.NoError(t, err)
	assert.Equal(t, second, latest)

	snaps, err := db.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, second, snaps[0].ID)
	assert.Equal(t, 0, snaps[0].Books)
	assert.Equal(t, 1, snaps[0].Users)
	assert.Equal(t, first, snaps[1].ID)
	assert.Equal(t, 1, snaps[1].Books)
	assert.False(t, snaps[1].CreatedAt.IsZero())
}

func TestDatabaseUnknownSnapshot(t *testing.T) {
	db := tempDB(t)
	_, _, err := db.Snapshot("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDatabaseReopenKeepsSnapshots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive", "lib.db")
	db, err := NewDatabase(path)
	require.NoError(t, err)
	id, err := db.Export([]*Book{{ISBN: "1", Title: "A", Author: "x"}}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDatabase(path)
	require.NoError(t, err)
	defer db.Close()
	books, _, err := db.Snapshot(id)
	require.NoError(t, err)
	assert.Len(t, books, 1)
}

func TestManagerExportRestore(t *testing.T) {
	mgr := newManager(t)
	_, err := mgr.Bootstrap()
	require.NoError(t, err)
	require.NoError(t, mgr.AddUser("alice", "1234", Member))
	require.NoError(t, mgr.AddBook("111", "Dune", "Herbert"))
	alice, _ := mgr.GetUser("alice")
	require.NoError(t, mgr.CheckoutBook("111", alice))

	id, err := mgr.Export()
	require.NoError(t, err)

	_, err = mgr.ReturnBook("111")
	require.NoError(t, err)
	_, err = mgr.RemoveUser("alice")
	require.NoError(t, err)
	require.NoError(t, mgr.AddBook("222", "Emma", "Austen"))

	restored, err := mgr.Restore("")
	require.NoError(t, err)
	assert.Equal(t, id, restored)

	require.NoError(t, mgr.Reload())
	b, err := mgr.GetBook("111")
	require.NoError(t, err)
	assert.True(t, b.CheckedOut)
	assert.Equal(t, "alice", b.Borrower)
	_, err = mgr.GetBook("222")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = mgr.Authenticate("alice", "1234")
	require.NoError(t, err)

	snaps, err := mgr.Snapshots()
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestManagerRestoreRequiresAdmin(t *testing.T) {
	mgr := newManager(t)
	require.NoError(t, mgr.AddBook("111", "Dune", "Herbert"))
	_, err := mgr.Export()
	require.NoError(t, err)

	_, err = mgr.Restore("")
	require.ErrorIs(t, err, ErrProtectedAccount)
	assert.Equal(t, 1, mgr.Catalog.Len())
}

func TestManagerRestoreRejectsInvalidSnapshot(t *testing.T) {
	mgr := newManager(t)
	_, err := mgr.Bootstrap()
	require.NoError(t, err)
	require.NoError(t, mgr.AddBook("111", "Dune", "Herbert"))

	db, err := NewDatabase(mgr.opts.SnapshotPath)
	require.NoError(t, err)
	id, err := db.Export(
		[]*Book{{ISBN: "9", Title: "Lost", Author: "x", CheckedOut: true}},
		[]*User{{Username: "admin", Password: "admin123", Role: Librarian}, {Username: "zed", Password: "1"}},
	)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = mgr.Restore(id)
	require.ErrorIs(t, err, ErrInvalidState)

	// Neither store was touched.
	assert.Equal(t, 1, mgr.Catalog.Len())
	_, err = mgr.GetUser("zed")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManagerRestoreRepairsUnreadableUsers(t *testing.T) {
	mgr := newManager(t)
	_, err := mgr.Bootstrap()
	require.NoError(t, err)
	_, err = mgr.Export()
	require.NoError(t, err)

	mgr.Membership.loadErr = ErrPersistenceUnavailable
	require.Error(t, mgr.Writable())

	_, err = mgr.Restore("")
	require.NoError(t, err)
	assert.NoError(t, mgr.Writable())
}
