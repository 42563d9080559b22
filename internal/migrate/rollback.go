package migrate

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	jww "github.com/spf13/jwalterweatherman"

	"github.com/teambeacon/orgdex/pkg/types"
)

// RollbackResult reports one RollbackToVersion call.
type RollbackResult struct {
	Target     int
	RolledBack []int // versions reversed, highest first
	// Verified is true when the post-rollback integrity check passed and
	// the ledger version equals Target.
	Verified bool
	Duration time.Duration
}

var (
	createIndexRE = regexp.MustCompile(`(?i)\bCREATE\s+(?:UNIQUE\s+)?INDEX\s+(?:IF\s+NOT\s+EXISTS\s+)?"?([A-Za-z0-9_]+)"?`)
	createViewRE  = regexp.MustCompile(`(?i)\bCREATE\s+(?:TEMP\s+|TEMPORARY\s+)?VIEW\s+(?:IF\s+NOT\s+EXISTS\s+)?"?([A-Za-z0-9_]+)"?`)
)

// RollbackToVersion reverses every applied migration above target, highest
// version first, one transaction per migration. A migration applied with
// an explicit rollback script runs that script; otherwise a conservative
// fallback drops only the indexes and views its forward script created,
// leaving tables and data in place. Each reversed migration's ledger row
// and status row are deleted in the same transaction as its script.
func (m *Manager) RollbackToVersion(ctx context.Context, target int) (*RollbackResult, error) {
	if target < 0 {
		return nil, fmt.Errorf("rollback target %d is negative: %w", target, types.ErrConfiguration)
	}

	lock, err := acquireLock(m.dir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.release() }()

	start := time.Now()
	result := &RollbackResult{Target: target}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if target > current {
		return nil, fmt.Errorf("rollback target %d is above current version %d: %w",
			target, current, types.ErrConfiguration)
	}

	applied, err := m.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Applied
	for _, a := range applied {
		if a.Version > target {
			pending = append(pending, a)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version > pending[j].Version })

	for _, a := range pending {
		if err := m.rollbackOne(ctx, a); err != nil {
			return nil, err
		}
		result.RolledBack = append(result.RolledBack, a.Version)
	}

	result.Verified, err = m.verifyRollback(ctx, target)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	jww.INFO.Printf("migrate: rolled back %d migration(s) to version %d (verified=%v) in %v",
		len(result.RolledBack), target, result.Verified, result.Duration.Round(time.Millisecond))
	return result, nil
}

func (m *Manager) rollbackOne(ctx context.Context, a Applied) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rollback transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if a.RollbackSQL != "" {
		if _, err := tx.ExecContext(ctx, stripComments(a.RollbackSQL)); err != nil {
			return fmt.Errorf("failed to roll back %s: %w", a.Filename, err)
		}
	} else {
		jww.WARN.Printf("migrate: %s has no rollback script, dropping only its indexes and views", a.Filename)
		if err := dropCreatedObjects(ctx, tx, a.SQL); err != nil {
			return fmt.Errorf("failed to roll back %s: %w", a.Filename, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", a.Version); err != nil {
		return fmt.Errorf("failed to delete ledger row for %s: %w", a.Filename, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM migration_status WHERE filename = ?", a.Filename); err != nil {
		return fmt.Errorf("failed to delete status row for %s: %w", a.Filename, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback of %s: %w", a.Filename, err)
	}
	committed = true
	jww.INFO.Printf("migrate: rolled back %s (version %d)", a.Filename, a.Version)
	return nil
}

// dropCreatedObjects reverses a migration without a rollback script by
// dropping the indexes and views its forward SQL created. Tables are never
// dropped this way; preserving data wins over perfect schema reversal.
func dropCreatedObjects(ctx context.Context, q querier, forwardSQL string) error {
	script := stripComments(forwardSQL)

	for _, match := range createIndexRE.FindAllStringSubmatch(script, -1) {
		if err := dropObject(ctx, q, "INDEX", match[1]); err != nil {
			return err
		}
	}
	for _, match := range createViewRE.FindAllStringSubmatch(script, -1) {
		if err := dropObject(ctx, q, "VIEW", match[1]); err != nil {
			return err
		}
	}
	return nil
}

func dropObject(ctx context.Context, q querier, kind, name string) error {
	if !identRE.MatchString(name) {
		return fmt.Errorf("unsafe %s name %q in migration script: %w", kind, name, types.ErrConfiguration)
	}
	if _, err := q.ExecContext(ctx, fmt.Sprintf("DROP %s IF EXISTS %s", kind, name)); err != nil {
		return fmt.Errorf("failed to drop %s %s: %w", kind, name, err)
	}
	return nil
}

// verifyRollback runs the database's own integrity check and confirms the
// ledger landed on the target version.
func (m *Manager) verifyRollback(ctx context.Context, target int) (bool, error) {
	var status string
	if err := m.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&status); err != nil {
		return false, fmt.Errorf("failed to run integrity check: %w", err)
	}
	if status != "ok" {
		jww.ERROR.Printf("migrate: integrity check after rollback reported %q", status)
		return false, nil
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	if current != target {
		jww.ERROR.Printf("migrate: version is %d after rollback, wanted %d", current, target)
		return false, nil
	}
	return true, nil
}
