package validate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Issue is one problem found by a schema audit.
type Issue struct {
	Object string
	Detail string
}

// SchemaReport is the outcome of Schema. Shadow tables belonging to
// full-text indexes are folded into their parent and not listed.
type SchemaReport struct {
	Tables   []string
	Indexes  []string
	Views    []string
	Triggers []string
	Issues   []Issue
	Valid    bool
}

// FKViolation is one row from the database's foreign-key check.
type FKViolation struct {
	Table  string
	RowID  int64 // 0 when the child table has no rowid
	Parent string
}

// ForeignKeyReport is the outcome of ForeignKeys.
type ForeignKeyReport struct {
	Violations []FKViolation
	Valid      bool
}

// FTSCheck compares one full-text index against its content table.
type FTSCheck struct {
	Table       string
	Content     string
	IndexRows   int64
	ContentRows int64
	Match       bool
}

// OrphanCheck counts child rows referencing a missing parent through one
// declared foreign key.
type OrphanCheck struct {
	Table   string
	Column  string
	Parent  string
	Orphans int64
}

// ConsistencyReport is the outcome of DataConsistency.
type ConsistencyReport struct {
	// IntegrityResult is the first line of PRAGMA integrity_check,
	// "ok" for a healthy file.
	IntegrityResult string
	FTS             []FTSCheck
	Orphans         []OrphanCheck
	Valid           bool
}

// Validator audits a database read-only. It never repairs anything and
// never prints; callers render the reports.
type Validator struct {
	db *sql.DB
}

func New(db *sql.DB) *Validator {
	return &Validator{db: db}
}

// schemaObject is one sqlite_master row.
type schemaObject struct {
	name, typ, ddl string
}

func (v *Validator) listObjects(ctx context.Context) ([]schemaObject, error) {
	rows, err := v.db.QueryContext(ctx,
		`SELECT name, type, COALESCE(sql, '') FROM sqlite_master
		 WHERE name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var objects []schemaObject
	for rows.Next() {
		var o schemaObject
		if err := rows.Scan(&o.name, &o.typ, &o.ddl); err != nil {
			return nil, fmt.Errorf("failed to scan schema row: %w", err)
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schema: %w", err)
	}
	return objects, nil
}

// Schema audits the schema layout: every ordinary table must carry a
// primary key, and every full-text table must reference an existing
// content table and answer a probe query.
func (v *Validator) Schema(ctx context.Context) (*SchemaReport, error) {
	objects, err := v.listObjects(ctx)
	if err != nil {
		return nil, err
	}

	tableNames := make(map[string]bool)
	ftsNames := make(map[string]bool)
	var shadowPrefixes []string
	for _, o := range objects {
		if o.typ != "table" {
			continue
		}
		tableNames[o.name] = true
		if strings.Contains(strings.ToLower(o.ddl), "using fts") {
			ftsNames[o.name] = true
			shadowPrefixes = append(shadowPrefixes, o.name+"_")
		}
	}

	report := &SchemaReport{}
	for _, o := range objects {
		if o.typ == "table" && isShadow(o.name, ftsNames, shadowPrefixes) {
			continue
		}
		switch o.typ {
		case "table":
			report.Tables = append(report.Tables, o.name)
		case "index":
			report.Indexes = append(report.Indexes, o.name)
		case "view":
			report.Views = append(report.Views, o.name)
		case "trigger":
			report.Triggers = append(report.Triggers, o.name)
		}
	}

	for _, name := range report.Tables {
		if ftsNames[name] {
			continue
		}
		hasPK, err := v.tableHasPrimaryKey(ctx, name)
		if err != nil {
			return nil, err
		}
		if !hasPK {
			report.Issues = append(report.Issues, Issue{
				Object: name,
				Detail: "table has no primary key",
			})
		}
	}

	ftsTables, err := listFTS(ctx, v.db)
	if err != nil {
		return nil, err
	}
	for _, fts := range ftsTables {
		if fts.Content != "" && !tableNames[fts.Content] {
			report.Issues = append(report.Issues, Issue{
				Object: fts.Name,
				Detail: fmt.Sprintf("references missing content table %s", fts.Content),
			})
			continue
		}
		if err := v.probeFTS(ctx, fts.Name); err != nil {
			report.Issues = append(report.Issues, Issue{
				Object: fts.Name,
				Detail: fmt.Sprintf("probe query failed: %v", err),
			})
		}
	}

	report.Valid = len(report.Issues) == 0
	return report, nil
}

// isShadow reports whether name is an implementation table of a known
// full-text index (messages_fts_data and friends).
func isShadow(name string, fts map[string]bool, prefixes []string) bool {
	if fts[name] {
		return false
	}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func (v *Validator) tableHasPrimaryKey(ctx context.Context, table string) (bool, error) {
	if err := checkIdent(table); err != nil {
		return false, err
	}
	rows, err := v.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	hasPK := false
	for rows.Next() {
		var cid, notNull, pk int
		var name, typ string
		var defaultValue sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			return false, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		if pk > 0 {
			hasPK = true
		}
	}
	return hasPK, rows.Err()
}

// probeFTS runs a minimal ranked query against one full-text table. The
// query text is bound; only the validated table name is interpolated.
func (v *Validator) probeFTS(ctx context.Context, name string) error {
	if err := checkIdent(name); err != nil {
		return err
	}
	rows, err := v.db.QueryContext(ctx,
		fmt.Sprintf("SELECT rowid FROM %s WHERE %s MATCH ? LIMIT 1", name, name), "probe")
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
	}
	return rows.Err()
}

// ForeignKeys runs the database's built-in foreign-key consistency check.
func (v *Validator) ForeignKeys(ctx context.Context) (*ForeignKeyReport, error) {
	rows, err := v.db.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return nil, fmt.Errorf("failed to run foreign key check: %w", err)
	}
	defer func() { _ = rows.Close() }()

	report := &ForeignKeyReport{}
	for rows.Next() {
		var table, parent string
		var rowid sql.NullInt64
		var fkid int
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key violation: %w", err)
		}
		report.Violations = append(report.Violations, FKViolation{
			Table:  table,
			RowID:  rowid.Int64,
			Parent: parent,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate foreign key check: %w", err)
	}
	report.Valid = len(report.Violations) == 0
	return report, nil
}

// DataConsistency runs the full integrity check, compares every full-text
// index against its content table, and scans declared single-column
// foreign keys for orphaned child rows. Composite foreign keys are left to
// the built-in check in ForeignKeys.
func (v *Validator) DataConsistency(ctx context.Context) (*ConsistencyReport, error) {
	report := &ConsistencyReport{}

	if err := v.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&report.IntegrityResult); err != nil {
		return nil, fmt.Errorf("failed to run integrity check: %w", err)
	}

	ftsTables, err := listFTS(ctx, v.db)
	if err != nil {
		return nil, err
	}
	for _, fts := range ftsTables {
		if fts.Content == "" {
			continue
		}
		if err := checkIdent(fts.Name); err != nil {
			return nil, err
		}
		if err := checkIdent(fts.Content); err != nil {
			return nil, err
		}
		indexRows, contentRows, err := countPair(ctx, v.db, fts.Name, fts.Content)
		if err != nil {
			return nil, err
		}
		report.FTS = append(report.FTS, FTSCheck{
			Table:       fts.Name,
			Content:     fts.Content,
			IndexRows:   indexRows,
			ContentRows: contentRows,
			Match:       indexRows == contentRows,
		})
	}

	orphans, err := v.scanOrphans(ctx)
	if err != nil {
		return nil, err
	}
	report.Orphans = orphans

	report.Valid = report.IntegrityResult == "ok"
	for _, c := range report.FTS {
		if !c.Match {
			report.Valid = false
		}
	}
	for _, o := range report.Orphans {
		if o.Orphans > 0 {
			report.Valid = false
		}
	}
	return report, nil
}

// foreignKey is one single-column FK declaration.
type foreignKey struct {
	table, column, parent, parentColumn string
}

func (v *Validator) scanOrphans(ctx context.Context) ([]OrphanCheck, error) {
	objects, err := v.listObjects(ctx)
	if err != nil {
		return nil, err
	}

	var fks []foreignKey
	for _, o := range objects {
		if o.typ != "table" || strings.Contains(strings.ToLower(o.ddl), "using fts") {
			continue
		}
		tableFKs, err := v.listForeignKeys(ctx, o.name)
		if err != nil {
			return nil, err
		}
		fks = append(fks, tableFKs...)
	}

	var checks []OrphanCheck
	for _, fk := range fks {
		count, err := v.countOrphans(ctx, fk)
		if err != nil {
			return nil, err
		}
		checks = append(checks, OrphanCheck{
			Table:   fk.table,
			Column:  fk.column,
			Parent:  fk.parent,
			Orphans: count,
		})
	}
	return checks, nil
}

// listForeignKeys reads a table's FK declarations, keeping single-column
// keys and resolving an implicit parent column to the parent's primary key.
func (v *Validator) listForeignKeys(ctx context.Context, table string) ([]foreignKey, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	rows, err := v.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to list foreign keys of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	type fkRow struct {
		id, seq      int
		parent, from string
		to           sql.NullString
	}
	var raw []fkRow
	for rows.Next() {
		var r fkRow
		var onUpdate, onDelete, match string
		if err := rows.Scan(&r.id, &r.seq, &r.parent, &r.from, &r.to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key of %s: %w", table, err)
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate foreign keys of %s: %w", table, err)
	}

	multi := make(map[int]int)
	for _, r := range raw {
		multi[r.id]++
	}

	var fks []foreignKey
	for _, r := range raw {
		if multi[r.id] > 1 {
			continue
		}
		fk := foreignKey{table: table, column: r.from, parent: r.parent, parentColumn: r.to.String}
		if fk.parentColumn == "" {
			pk, err := v.primaryKeyColumn(ctx, fk.parent)
			if err != nil {
				return nil, err
			}
			if pk == "" {
				continue
			}
			fk.parentColumn = pk
		}
		fks = append(fks, fk)
	}
	return fks, nil
}

func (v *Validator) primaryKeyColumn(ctx context.Context, table string) (string, error) {
	if err := checkIdent(table); err != nil {
		return "", err
	}
	rows, err := v.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return "", fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var cid, notNull, pk int
		var name, typ string
		var defaultValue sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			return "", fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		if pk == 1 {
			return name, rows.Err()
		}
	}
	return "", rows.Err()
}

func (v *Validator) countOrphans(ctx context.Context, fk foreignKey) (int64, error) {
	for _, name := range []string{fk.table, fk.column, fk.parent, fk.parentColumn} {
		if err := checkIdent(name); err != nil {
			return 0, err
		}
	}
	query := fmt.Sprintf(
		`SELECT COUNT(*) FROM %s c LEFT JOIN %s p ON c.%s = p.%s
		 WHERE c.%s IS NOT NULL AND p.%s IS NULL`,
		fk.table, fk.parent, fk.column, fk.parentColumn, fk.column, fk.parentColumn)
	var count int64
	if err := v.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to scan %s.%s for orphans: %w", fk.table, fk.column, err)
	}
	return count, nil
}
