package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/teambeacon/orgdex/pkg/types"
)

const (
	// CurrentSchemaVersion is the bootstrap schema generation, stored in
	// PRAGMA user_version. File-based migrations layer on top of it and
	// keep their own ledger.
	CurrentSchemaVersion = 2

	// EngineVersion is written to the meta table on first open and
	// checked on every open. A database written by a later major engine
	// is refused rather than silently misread.
	EngineVersion = "1.2.0"
)

const bootstrapSQL = `
-- Primary content table. content is the only column the full-text index
-- ever sees; metadata stays out of the tokenizer.
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content TEXT NOT NULL,
    source TEXT NOT NULL,
    date TEXT,
    metadata TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_source ON messages(source);
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);

-- Full-text shadow of messages.content, joined by rowid.
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    content,
    content='messages',
    content_rowid='id',
    tokenize='porter unicode61'
);

-- Triggers keep the shadow index in the same transaction as every content
-- mutation. External-content FTS5 requires the 'delete' command form on
-- delete and update.
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content)
    VALUES ('delete', old.id, old.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content)
    VALUES ('delete', old.id, old.content);
    INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
END;

-- One row per ingested archive file; drives incremental reindexing.
CREATE TABLE IF NOT EXISTS archives (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    source TEXT NOT NULL,
    indexed_at TIMESTAMP,
    record_count INTEGER DEFAULT 0,
    checksum TEXT,
    file_size INTEGER,
    status TEXT DEFAULT 'active'
);

CREATE INDEX IF NOT EXISTS idx_archives_source ON archives(source);

-- Small key/value table for engine metadata.
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT
);
`

// schemaV2Statements upgrades a version 1 database in place. Each statement
// is guarded so rerunning against a partially upgraded file is harmless.
var schemaV2Statements = []string{
	`CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at)`,
	`ALTER TABLE archives ADD COLUMN file_size INTEGER`,
}

// applySchema brings the database to CurrentSchemaVersion: full bootstrap
// for a fresh file, additive steps for an older one. A file stamped with a
// newer version than this code understands is refused.
func applySchema(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	switch {
	case version > CurrentSchemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported version %d: %w",
			version, CurrentSchemaVersion, types.ErrConfiguration)
	case version == CurrentSchemaVersion:
		return nil
	case version == 0:
		if _, err := db.ExecContext(ctx, bootstrapSQL); err != nil {
			return fmt.Errorf("failed to bootstrap schema: %w", err)
		}
	default:
		if version < 2 {
			for _, stmt := range schemaV2Statements {
				if _, err := db.ExecContext(ctx, stmt); err != nil && !isAlreadyExists(err) {
					return fmt.Errorf("failed to upgrade schema to v2: %w", err)
				}
			}
		}
	}

	// user_version takes no bound parameters.
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", CurrentSchemaVersion)); err != nil {
		return fmt.Errorf("failed to stamp schema version: %w", err)
	}
	return nil
}

// isAlreadyExists matches the errors additive upgrade statements produce
// when their work is already done.
func isAlreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "duplicate column name")
}

// checkEngineVersion stamps a fresh database with EngineVersion and refuses
// files stamped by a later major engine.
func checkEngineVersion(ctx context.Context, db *sql.DB) error {
	var stored string
	err := db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'engine_version'").Scan(&stored)
	if err == sql.ErrNoRows {
		_, err = db.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES ('engine_version', ?)", EngineVersion)
		if err != nil {
			return fmt.Errorf("failed to record engine version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read engine version: %w", err)
	}

	storedVer, err := semver.NewVersion(stored)
	if err != nil {
		return fmt.Errorf("invalid stored engine version %q: %w", stored, err)
	}
	currentVer := semver.MustParse(EngineVersion)
	if storedVer.Major() > currentVer.Major() {
		return fmt.Errorf("database written by engine %s, this build is %s: %w",
			stored, EngineVersion, types.ErrConfiguration)
	}
	if storedVer.LessThan(currentVer) {
		if _, err := db.ExecContext(ctx, "UPDATE meta SET value = ? WHERE key = 'engine_version'", EngineVersion); err != nil {
			return fmt.Errorf("failed to update engine version: %w", err)
		}
	}
	return nil
}
