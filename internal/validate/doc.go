// Package validate audits a database without changing it.
//
// Three independent checks, each returning a report struct:
//
//   - Schema: every ordinary table carries a primary key, and every
//     full-text table references an existing content table and answers a
//     probe query.
//   - ForeignKeys: the database's built-in foreign-key check, violations
//     reported as {table, rowid, parent}.
//   - DataConsistency: a full integrity check, full-text row counts
//     against their content tables, and an orphan scan over declared
//     single-column foreign keys.
//
// Schema object names discovered at runtime are matched against an
// alphanumeric/underscore allow-list before they are interpolated into
// diagnostic queries; they cannot be parameter-bound. A name outside the
// allow-list aborts the audit with types.ErrConfiguration.
//
// CheckFTS is the error-typed form of the full-text comparison; the
// migration manager runs it inside every apply transaction.
package validate
