// Package migrate evolves the database schema through versioned,
// checksummed script files with auditable rollback.
//
// Scripts live in a directory as NNN_description.sql, applied in
// ascending version order. An optional sibling NNN_description.rollback.sql
// supplies the explicit reversal. Both scripts are captured into the
// ledger at apply time, so rollback never depends on the files still
// being present.
//
// # Apply
//
// Each apply is one transaction: a full-text consistency probe, the
// script itself, the probe again, the ledger row, and the completed
// status all commit together. On any failure the transaction rolls
// back, the filename's status is marked failed, and the database is
// byte-for-byte what it was before the attempt. Retrying a failed
// migration is therefore always safe, and applying an already-applied
// version is a no-op success:
//
//	mgr, _ := migrate.New(ctx, db, "migrations")
//	results, err := mgr.ApplyAll(ctx)
//
// The ledger records a full-database content checksum from before and
// after each migration (user tables only; the ledger itself and
// full-text shadow tables are excluded), so a schema-only migration is
// auditable as exactly that.
//
// # Rollback
//
// RollbackToVersion reverses applied migrations above the target,
// highest first. A migration without an explicit rollback script falls
// back to dropping only the indexes and views its forward SQL created;
// tables and their data are never dropped this way. After the last
// reversal the database's own integrity check runs and the ledger
// version is confirmed against the target.
//
// # Locking
//
// A .migration.lock marker in the script directory serializes
// migrating processes. A held lock fails fast with
// types.ErrMigrationLocked, naming the holder.
package migrate
