package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teambeacon/orgdex/internal/checksum"
	"github.com/teambeacon/orgdex/internal/storage"
	"github.com/teambeacon/orgdex/pkg/types"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	store, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "migrate_test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store.DB()
}

func setupTestManager(t *testing.T) (*Manager, *sql.DB, string) {
	t.Helper()

	db := setupTestDB(t)
	dir := t.TempDir()
	mgr, err := New(context.Background(), db, dir)
	require.NoError(t, err)
	return mgr, db, dir
}

func writeMigration(t *testing.T, dir, name, script string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(script), 0644))
}

func seedMessages(t *testing.T, db *sql.DB, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := db.Exec("INSERT INTO messages (content, source) VALUES (?, 'other')",
			fmt.Sprintf("seed message %d", i))
		require.NoError(t, err)
	}
}

func messageCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&n))
	return n
}

func objectExists(t *testing.T, db *sql.DB, kind, name string) bool {
	t.Helper()
	var found string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = ? AND name = ?", kind, name).Scan(&found)
	if err == sql.ErrNoRows {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestNew_MissingDirectory(t *testing.T) {
	db := setupTestDB(t)

	_, err := New(context.Background(), db, filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestDiscover(t *testing.T) {
	mgr, _, dir := setupTestManager(t)

	writeMigration(t, dir, "002_add_index.sql", "CREATE INDEX idx_two ON messages(source);\n")
	writeMigration(t, dir, "001_add_view.sql", "-- recent activity view\nCREATE VIEW recent AS SELECT * FROM messages;\n")
	writeMigration(t, dir, "001_add_view.rollback.sql", "DROP VIEW IF EXISTS recent;\n")
	writeMigration(t, dir, "010_later.sql", "CREATE INDEX idx_ten ON messages(date);\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0644))

	migrations, err := mgr.Discover()
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, []int{1, 2, 10}, []int{migrations[0].Version, migrations[1].Version, migrations[2].Version})
	assert.Equal(t, "recent activity view", migrations[0].Description)
	assert.Equal(t, "add index", migrations[1].Description)
	assert.NotEmpty(t, migrations[0].Checksum)
	assert.Equal(t, "DROP VIEW IF EXISTS recent;\n", migrations[0].RollbackSQL)
	assert.Empty(t, migrations[1].RollbackSQL)
}

func TestDiscover_DuplicateVersion(t *testing.T) {
	mgr, _, dir := setupTestManager(t)

	writeMigration(t, dir, "001_a.sql", "CREATE INDEX idx_a ON messages(source);\n")
	writeMigration(t, dir, "001_b.sql", "CREATE INDEX idx_b ON messages(date);\n")

	_, err := mgr.Discover()
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestApplyAll(t *testing.T) {
	mgr, db, dir := setupTestManager(t)
	ctx := context.Background()

	writeMigration(t, dir, "001_add_label.sql", "ALTER TABLE archives ADD COLUMN label TEXT;\n")
	writeMigration(t, dir, "002_add_index.sql", "CREATE INDEX idx_messages_source_date ON messages(source, date);\n")

	results, err := mgr.ApplyAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Applied)
	assert.True(t, results[1].Applied)

	version, err := mgr.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	assert.True(t, objectExists(t, db, "index", "idx_messages_source_date"))

	applied, err := mgr.AppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	for _, a := range applied {
		assert.NotEmpty(t, a.Checksum)
		assert.NotEmpty(t, a.PreChecksum)
		assert.NotEmpty(t, a.PostChecksum)
		assert.False(t, a.AppliedAt.IsZero())
	}

	statuses, err := mgr.Statuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.Equal(t, StatusCompleted, s.Status)
		assert.Empty(t, s.Error)
	}
}

func TestApply_Idempotent(t *testing.T) {
	mgr, _, dir := setupTestManager(t)
	ctx := context.Background()

	writeMigration(t, dir, "001_add_index.sql", "CREATE INDEX idx_once ON messages(source);\n")

	first, err := mgr.Apply(ctx, "001_add_index.sql")
	require.NoError(t, err)
	assert.True(t, first.Applied)

	second, err := mgr.Apply(ctx, "001_add_index.sql")
	require.NoError(t, err)
	assert.False(t, second.Applied)

	version, err := mgr.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	applied, err := mgr.AppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 1)
}

// TestApply_FailureLeavesDatabaseUntouched drives a script whose second
// statement fails and checks the whole attempt rolled back, down to the
// content checksum.
func TestApply_FailureLeavesDatabaseUntouched(t *testing.T) {
	mgr, db, dir := setupTestManager(t)
	ctx := context.Background()
	seedMessages(t, db, 3)

	before, err := checksum.Database(ctx, db, ledgerTables...)
	require.NoError(t, err)

	writeMigration(t, dir, "001_bad.sql",
		"CREATE INDEX idx_half_done ON messages(source);\nCREATE TABLE messages (id INTEGER);\n")

	_, err = mgr.Apply(ctx, "001_bad.sql")
	require.Error(t, err)

	after, err := checksum.Database(ctx, db, ledgerTables...)
	require.NoError(t, err)
	assert.Equal(t, before, after, "a failed migration must leave content untouched")

	assert.False(t, objectExists(t, db, "index", "idx_half_done"))

	version, err := mgr.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)

	statuses, err := mgr.Statuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, StatusFailed, statuses[0].Status)
	assert.NotEmpty(t, statuses[0].Error)
}

// TestApply_ResumeAfterFailure retries a failed filename after the script
// is fixed; the transaction-per-migration design makes this safe.
func TestApply_ResumeAfterFailure(t *testing.T) {
	mgr, db, dir := setupTestManager(t)
	ctx := context.Background()

	writeMigration(t, dir, "001_fixable.sql", "CREATE INDEX idx_fix ON no_such_table(x);\n")
	_, err := mgr.Apply(ctx, "001_fixable.sql")
	require.Error(t, err)

	writeMigration(t, dir, "001_fixable.sql", "CREATE INDEX idx_fix ON messages(source);\n")
	res, err := mgr.Apply(ctx, "001_fixable.sql")
	require.NoError(t, err)
	assert.True(t, res.Applied)

	assert.True(t, objectExists(t, db, "index", "idx_fix"))

	statuses, err := mgr.Statuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, StatusCompleted, statuses[0].Status)
	assert.Empty(t, statuses[0].Error)
}

// TestApply_ChecksumsDistinguishDataFromSchema pins what the ledger's
// before/after digests mean: a data migration moves the digest, a
// schema-only migration does not.
func TestApply_ChecksumsDistinguishDataFromSchema(t *testing.T) {
	mgr, _, dir := setupTestManager(t)
	ctx := context.Background()

	writeMigration(t, dir, "001_seed.sql",
		"INSERT INTO messages (content, source) VALUES ('seeded row', 'other');\n")
	writeMigration(t, dir, "002_index.sql", "CREATE INDEX idx_schema_only ON messages(source);\n")

	_, err := mgr.ApplyAll(ctx)
	require.NoError(t, err)

	applied, err := mgr.AppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)

	assert.NotEqual(t, applied[0].PreChecksum, applied[0].PostChecksum)
	assert.Equal(t, applied[1].PreChecksum, applied[1].PostChecksum)
	assert.Equal(t, applied[0].PostChecksum, applied[1].PreChecksum)
}

// TestApply_RefusesDesyncedIndex plants a ghost row in the full-text
// index; the pre-migration probe must refuse to run anything on top.
func TestApply_RefusesDesyncedIndex(t *testing.T) {
	mgr, db, dir := setupTestManager(t)
	ctx := context.Background()

	_, err := db.Exec("INSERT INTO messages_fts(rowid, content) VALUES (999, 'ghost entry')")
	require.NoError(t, err)

	writeMigration(t, dir, "001_innocent.sql", "CREATE INDEX idx_innocent ON messages(source);\n")
	_, err = mgr.Apply(ctx, "001_innocent.sql")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrIntegrity)
	assert.False(t, objectExists(t, db, "index", "idx_innocent"))
}

func TestApply_NotAMigrationFilename(t *testing.T) {
	mgr, _, dir := setupTestManager(t)
	ctx := context.Background()

	writeMigration(t, dir, "001_real.sql", "CREATE INDEX idx_real ON messages(source);\n")
	writeMigration(t, dir, "001_real.rollback.sql", "DROP INDEX IF EXISTS idx_real;\n")

	_, err := mgr.Apply(ctx, "notes.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = mgr.Apply(ctx, "001_real.rollback.sql")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestList(t *testing.T) {
	mgr, _, dir := setupTestManager(t)
	ctx := context.Background()

	writeMigration(t, dir, "001_first.sql", "CREATE INDEX idx_l1 ON messages(source);\n")
	writeMigration(t, dir, "002_second.sql", "CREATE INDEX idx_l2 ON messages(date);\n")

	_, err := mgr.Apply(ctx, "001_first.sql")
	require.NoError(t, err)

	entries, err := mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.True(t, entries[0].Applied)
	assert.False(t, entries[0].AppliedAt.IsZero())
	assert.False(t, entries[1].Applied)
	assert.True(t, entries[1].AppliedAt.IsZero())
}

func TestLockContention(t *testing.T) {
	mgr, _, dir := setupTestManager(t)
	ctx := context.Background()

	writeMigration(t, dir, "001_blocked.sql", "CREATE INDEX idx_blocked ON messages(source);\n")

	lock, err := acquireLock(dir)
	require.NoError(t, err)

	_, err = mgr.Apply(ctx, "001_blocked.sql")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMigrationLocked)
	assert.Contains(t, err.Error(), fmt.Sprintf("pid %d", os.Getpid()))

	require.NoError(t, lock.release())

	res, err := mgr.Apply(ctx, "001_blocked.sql")
	require.NoError(t, err)
	assert.True(t, res.Applied)
}

func TestLock_ReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := acquireLock(dir)
	require.NoError(t, err)

	_, err = acquireLock(dir)
	assert.ErrorIs(t, err, types.ErrMigrationLocked)

	require.NoError(t, lock.release())

	again, err := acquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, again.release())
}

func TestLock_UnreadableMarkerStillBlocks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFileName), []byte("garbage"), 0644))

	_, err := acquireLock(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrMigrationLocked))
}

func TestStripComments(t *testing.T) {
	script := "-- leading comment\nCREATE INDEX a ON t(x);\n  -- indented comment\nSELECT 1;\n"
	got := stripComments(script)
	assert.NotContains(t, got, "comment")
	assert.Contains(t, got, "CREATE INDEX a ON t(x);")
	assert.Contains(t, got, "SELECT 1;")
}
