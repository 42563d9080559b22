// Package types provides shared type definitions for the orgdex search
// subsystem.
//
// This package defines the domain types used across components: source kinds,
// raw archive records and their typed variants, search and indexing results,
// and the error taxonomy.
//
// # Records
//
// A Record is the unit the indexer consumes: one JSON object from an archive
// file, kept as an untyped mapping so collectors can attach arbitrary fields:
//
//	rec := types.Record{
//	    "text":    "deploy finished",
//	    "user":    "U123",
//	    "channel": "C-ops",
//	    "ts":      "1722470400.000100",
//	}
//
// Each known source kind has a typed extraction path that turns a Record into
// one searchable string:
//
//	content := types.ExtractContent(types.SourceSlack, rec)
//	// "deploy finished from:U123 in:C-ops"
//
// Records whose extraction yields an empty string are not indexable and are
// dropped by callers without counting as errors.
//
// # Errors
//
// Fatal conditions are sentinel errors checked with errors.Is
// (ErrConfiguration, ErrIntegrity, ErrDatabaseUnavailable, ...). Per-record
// and per-line problems are data, not errors: they travel inside result
// structs as RecordError and LineError so partial success stays observable.
package types
