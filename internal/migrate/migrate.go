package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/teambeacon/orgdex/internal/checksum"
	"github.com/teambeacon/orgdex/internal/validate"
	"github.com/teambeacon/orgdex/pkg/types"
)

// Migration status values tracked per filename across attempts.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// rollbackSuffix names the optional sibling script holding a migration's
// explicit reversal.
const rollbackSuffix = ".rollback.sql"

// migrationRE matches NNN_description.sql. The leading integer is the
// version; everything up to .sql is the description source.
var migrationRE = regexp.MustCompile(`^(\d+)_(.+)\.sql$`)

// identRE is the allow-list for schema object names interpolated into
// dynamically built statements. Object names cannot be parameter-bound.
var identRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ledgerTables are excluded from the full-database content checksums, so
// the digest compares stably across schema-only changes.
var ledgerTables = []string{"schema_migrations", "migration_status"}

// querier is the query surface shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Migration is one discovered script, not necessarily applied yet.
type Migration struct {
	Version     int
	Filename    string
	Description string
	SQL         string
	Checksum    string
	RollbackSQL string // from the sibling rollback script, may be empty
}

// Applied is one ledger row.
type Applied struct {
	Version      int
	Filename     string
	Description  string
	Checksum     string
	SQL          string
	RollbackSQL  string
	AppliedAt    time.Time
	PreChecksum  string
	PostChecksum string
}

// Status is one row of the per-filename attempt tracker.
type Status struct {
	Filename  string
	Status    string
	Error     string
	UpdatedAt time.Time
}

// ListEntry merges a discovered script with its ledger state.
type ListEntry struct {
	Version     int
	Filename    string
	Description string
	Applied     bool
	AppliedAt   time.Time
}

// ApplyResult reports one Apply call.
type ApplyResult struct {
	Version  int
	Filename string
	// Applied is false when the version was already at or below the
	// ledger maximum and the call was a no-op.
	Applied      bool
	PreChecksum  string
	PostChecksum string
	Duration     time.Duration
}

// Manager applies and reverses file-based schema migrations against one
// database, keeping a checksummed ledger of everything it has done.
type Manager struct {
	db  *sql.DB
	dir string
}

// New creates a Manager over db with scripts discovered in dir. The ledger
// tables are created if missing.
func New(ctx context.Context, db *sql.DB, dir string) (*Manager, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("migrations directory %s: %v: %w", dir, err, types.ErrConfiguration)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations path %s is not a directory: %w", dir, types.ErrConfiguration)
	}

	m := &Manager{db: db, dir: dir}
	if err := m.ensureLedger(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

const ledgerSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    filename TEXT NOT NULL,
    description TEXT,
    checksum TEXT NOT NULL,
    sql TEXT NOT NULL,
    rollback_sql TEXT,
    applied_at TIMESTAMP NOT NULL,
    pre_checksum TEXT,
    post_checksum TEXT
);

CREATE TABLE IF NOT EXISTS migration_status (
    filename TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    error TEXT,
    updated_at TIMESTAMP NOT NULL
);
`

func (m *Manager) ensureLedger(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, ledgerSQL); err != nil {
		return fmt.Errorf("failed to create migration ledger: %w", err)
	}
	return nil
}

// Discover lists the migration scripts in the directory, ascending by
// version. Duplicate versions are an error.
func (m *Manager) Discover() ([]Migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	byVersion := make(map[int]string)
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), rollbackSuffix) {
			continue
		}
		mig, ok, err := m.load(entry.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if prev, dup := byVersion[mig.Version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d (%s and %s): %w",
				mig.Version, prev, mig.Filename, types.ErrConfiguration)
		}
		byVersion[mig.Version] = mig.Filename
		migrations = append(migrations, mig)
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// load reads one script plus its optional rollback sibling. ok is false
// when the filename does not look like a migration.
func (m *Manager) load(filename string) (Migration, bool, error) {
	if strings.HasSuffix(filename, rollbackSuffix) {
		return Migration{}, false, nil
	}
	match := migrationRE.FindStringSubmatch(filename)
	if match == nil {
		return Migration{}, false, nil
	}
	version, err := strconv.Atoi(match[1])
	if err != nil || version <= 0 {
		return Migration{}, false, fmt.Errorf("invalid migration version in %s: %w", filename, types.ErrConfiguration)
	}

	data, err := os.ReadFile(filepath.Join(m.dir, filename))
	if err != nil {
		return Migration{}, false, fmt.Errorf("failed to read migration %s: %w", filename, err)
	}
	script := string(data)

	mig := Migration{
		Version:     version,
		Filename:    filename,
		Description: describe(match[2], script),
		SQL:         script,
		Checksum:    checksum.Sum(data),
	}

	rbName := strings.TrimSuffix(filename, ".sql") + rollbackSuffix
	rb, err := os.ReadFile(filepath.Join(m.dir, rbName))
	if err == nil {
		mig.RollbackSQL = string(rb)
	} else if !os.IsNotExist(err) {
		return Migration{}, false, fmt.Errorf("failed to read rollback script %s: %w", rbName, err)
	}
	return mig, true, nil
}

// describe derives a human description from a leading comment line, or
// from the filename with underscores spaced out.
func describe(nameTail, script string) string {
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "--"); ok {
			if rest = strings.TrimSpace(rest); rest != "" {
				return rest
			}
		}
		break
	}
	return strings.ReplaceAll(nameTail, "_", " ")
}

// CurrentVersion returns the highest applied version, 0 when none.
func (m *Manager) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read current migration version: %w", err)
	}
	return version, nil
}

// AppliedMigrations returns the ledger, ascending by version.
func (m *Manager) AppliedMigrations(ctx context.Context) ([]Applied, error) {
	const query = `
		SELECT version, filename, COALESCE(description, ''), checksum, sql,
		       COALESCE(rollback_sql, ''), applied_at,
		       COALESCE(pre_checksum, ''), COALESCE(post_checksum, '')
		FROM schema_migrations
		ORDER BY version
	`
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var applied []Applied
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.Version, &a.Filename, &a.Description, &a.Checksum,
			&a.SQL, &a.RollbackSQL, &a.AppliedAt, &a.PreChecksum, &a.PostChecksum); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		applied = append(applied, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger: %w", err)
	}
	return applied, nil
}

// Statuses returns the per-filename attempt tracker, ordered by filename.
func (m *Manager) Statuses(ctx context.Context) ([]Status, error) {
	const query = `
		SELECT filename, status, COALESCE(error, ''), updated_at
		FROM migration_status
		ORDER BY filename
	`
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var statuses []Status
	for rows.Next() {
		var s Status
		if err := rows.Scan(&s.Filename, &s.Status, &s.Error, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status row: %w", err)
		}
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate statuses: %w", err)
	}
	return statuses, nil
}

// List merges discovered scripts with ledger state for display.
func (m *Manager) List(ctx context.Context) ([]ListEntry, error) {
	migrations, err := m.Discover()
	if err != nil {
		return nil, err
	}
	applied, err := m.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	appliedAt := make(map[int]time.Time, len(applied))
	for _, a := range applied {
		appliedAt[a.Version] = a.AppliedAt
	}

	entries := make([]ListEntry, 0, len(migrations))
	for _, mig := range migrations {
		entry := ListEntry{
			Version:     mig.Version,
			Filename:    mig.Filename,
			Description: mig.Description,
		}
		if at, ok := appliedAt[mig.Version]; ok {
			entry.Applied = true
			entry.AppliedAt = at
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Apply runs one migration by filename. A version at or below the ledger
// maximum is a successful no-op, so retrying a completed migration is
// always safe. Everything the script changes, the ledger row recording it,
// and the completed status land in one transaction; any failure rolls the
// whole attempt back and marks the status failed.
func (m *Manager) Apply(ctx context.Context, filename string) (*ApplyResult, error) {
	mig, ok, err := m.load(filename)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("not a migration filename: %s: %w", filename, types.ErrConfiguration)
	}

	lock, err := acquireLock(m.dir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.release() }()

	return m.apply(ctx, mig)
}

// ApplyAll applies every pending migration in version order under a single
// directory lock.
func (m *Manager) ApplyAll(ctx context.Context) ([]ApplyResult, error) {
	migrations, err := m.Discover()
	if err != nil {
		return nil, err
	}

	lock, err := acquireLock(m.dir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.release() }()

	var results []ApplyResult
	for _, mig := range migrations {
		res, err := m.apply(ctx, mig)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

func (m *Manager) apply(ctx context.Context, mig Migration) (*ApplyResult, error) {
	start := time.Now()
	result := &ApplyResult{Version: mig.Version, Filename: mig.Filename}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if mig.Version <= current {
		m.warnDrift(ctx, mig)
		result.Duration = time.Since(start)
		jww.DEBUG.Printf("migrate: %s already applied (version %d <= %d)", mig.Filename, mig.Version, current)
		return result, nil
	}

	if err := m.setStatus(ctx, mig.Filename, StatusInProgress, ""); err != nil {
		return nil, err
	}

	pre, err := checksum.Database(ctx, m.db, ledgerTables...)
	if err != nil {
		return nil, m.fail(ctx, mig.Filename, fmt.Errorf("failed to checksum database before %s: %w", mig.Filename, err))
	}
	result.PreChecksum = pre

	post, err := m.applyTx(ctx, mig, pre)
	if err != nil {
		// applyTx has rolled its transaction back by now, so the failed
		// status can be written without contending for the write lock.
		return nil, m.fail(ctx, mig.Filename, err)
	}
	result.PostChecksum = post

	result.Applied = true
	result.Duration = time.Since(start)
	jww.INFO.Printf("migrate: applied %s (version %d) in %v",
		mig.Filename, mig.Version, result.Duration.Round(time.Millisecond))
	return result, nil
}

// applyTx runs the consistency probes, the script, the ledger row, and the
// completed status in one transaction, returning the post-migration
// database checksum. Any error leaves the transaction rolled back.
func (m *Manager) applyTx(ctx context.Context, mig Migration, pre string) (string, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := validate.CheckFTS(ctx, tx); err != nil {
		return "", fmt.Errorf("pre-migration check for %s: %w", mig.Filename, err)
	}

	if _, err := tx.ExecContext(ctx, stripComments(mig.SQL)); err != nil {
		return "", fmt.Errorf("failed to apply migration %s: %w", mig.Filename, err)
	}

	if err := validate.CheckFTS(ctx, tx); err != nil {
		return "", fmt.Errorf("post-migration check for %s: %w", mig.Filename, err)
	}

	post, err := checksum.Database(ctx, tx, ledgerTables...)
	if err != nil {
		return "", fmt.Errorf("failed to checksum database after %s: %w", mig.Filename, err)
	}

	const insert = `
		INSERT INTO schema_migrations
			(version, filename, description, checksum, sql, rollback_sql,
			 applied_at, pre_checksum, post_checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, insert,
		mig.Version, mig.Filename, mig.Description, mig.Checksum,
		mig.SQL, mig.RollbackSQL, time.Now().UTC(), pre, post); err != nil {
		return "", fmt.Errorf("failed to record migration %s: %w", mig.Filename, err)
	}
	if err := setStatusIn(ctx, tx, mig.Filename, StatusCompleted, ""); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit migration %s: %w", mig.Filename, err)
	}
	committed = true
	return post, nil
}

// warnDrift flags an already-applied script whose on-disk content no
// longer matches what the ledger recorded.
func (m *Manager) warnDrift(ctx context.Context, mig Migration) {
	var recorded string
	err := m.db.QueryRowContext(ctx,
		"SELECT checksum FROM schema_migrations WHERE version = ?", mig.Version).Scan(&recorded)
	if err == nil && recorded != mig.Checksum {
		jww.WARN.Printf("migrate: %s has changed since it was applied (checksum %s, ledger %s)",
			mig.Filename, mig.Checksum[:12], recorded[:12])
	}
}

// fail records the failure for the filename and returns err unchanged.
// Callers must not hold an open write transaction when calling this.
func (m *Manager) fail(ctx context.Context, filename string, err error) error {
	if serr := m.setStatus(ctx, filename, StatusFailed, err.Error()); serr != nil {
		jww.ERROR.Printf("migrate: failed to record failure for %s: %v", filename, serr)
	}
	return err
}

func (m *Manager) setStatus(ctx context.Context, filename, status, errMsg string) error {
	return setStatusIn(ctx, m.db, filename, status, errMsg)
}

func setStatusIn(ctx context.Context, q querier, filename, status, errMsg string) error {
	const upsert = `
		INSERT INTO migration_status (filename, status, error, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, upsert, filename, status, errMsg, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set migration status: %w", err)
	}
	return nil
}

// stripComments removes whole comment lines so the remaining script can be
// executed as one statement batch.
func stripComments(script string) string {
	lines := strings.Split(script, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
