package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teambeacon/orgdex/internal/storage"
	"github.com/teambeacon/orgdex/internal/validate"
)

var validateJSON bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Audit the database schema, foreign keys and index consistency",
	Long: `Validate inspects the database read-only and reports structural
problems: missing tables or primary keys, foreign-key violations, a
full-text index out of step with its content table, and orphaned rows.
It never repairs anything. The exit code is 1 when problems are found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := dbPath()
		if err != nil {
			return err
		}
		// An audit must not create the file it is auditing.
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("database %s does not exist", path)
		}

		db, err := storage.OpenDB(path)
		if err != nil {
			return err
		}
		defer db.Close()

		v := validate.New(db)
		schema, err := v.Schema(cmd.Context())
		if err != nil {
			return err
		}
		fks, err := v.ForeignKeys(cmd.Context())
		if err != nil {
			return err
		}
		consistency, err := v.DataConsistency(cmd.Context())
		if err != nil {
			return err
		}

		if validateJSON {
			if err := printValidationJSON(schema, fks, consistency); err != nil {
				return err
			}
		} else {
			printValidation(schema, fks, consistency)
		}

		if !schema.Valid || !fks.Valid || !consistency.Valid {
			return fmt.Errorf("validation found problems")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateJSON, "json", false,
		"Print the reports as JSON")
}

func printValidation(schema *validate.SchemaReport, fks *validate.ForeignKeyReport, consistency *validate.ConsistencyReport) {
	fmt.Printf("schema: %d tables, %d indexes, %d views, %d triggers\n",
		len(schema.Tables), len(schema.Indexes),
		len(schema.Views), len(schema.Triggers))
	for _, issue := range schema.Issues {
		fmt.Printf("  problem: %s: %s\n", issue.Object, issue.Detail)
	}

	if fks.Valid {
		fmt.Println("foreign keys: ok")
	} else {
		fmt.Printf("foreign keys: %d violations\n", len(fks.Violations))
		for _, viol := range fks.Violations {
			fmt.Printf("  %s row %d references missing %s\n",
				viol.Table, viol.RowID, viol.Parent)
		}
	}

	fmt.Printf("integrity: %s\n", consistency.IntegrityResult)
	for _, c := range consistency.FTS {
		state := "match"
		if !c.Match {
			state = "MISMATCH"
		}
		fmt.Printf("fts: %s has %d rows, %s has %d (%s)\n",
			c.Table, c.IndexRows, c.Content, c.ContentRows, state)
	}
	for _, o := range consistency.Orphans {
		if o.Orphans > 0 {
			fmt.Printf("orphans: %d rows in %s.%s reference a missing %s\n",
				o.Orphans, o.Table, o.Column, o.Parent)
		}
	}
}

func printValidationJSON(schema *validate.SchemaReport, fks *validate.ForeignKeyReport, consistency *validate.ConsistencyReport) error {
	issues := make([]map[string]any, 0, len(schema.Issues))
	for _, issue := range schema.Issues {
		issues = append(issues, map[string]any{
			"object": issue.Object,
			"detail": issue.Detail,
		})
	}
	violations := make([]map[string]any, 0, len(fks.Violations))
	for _, viol := range fks.Violations {
		violations = append(violations, map[string]any{
			"table":  viol.Table,
			"rowid":  viol.RowID,
			"parent": viol.Parent,
		})
	}
	fts := make([]map[string]any, 0, len(consistency.FTS))
	for _, c := range consistency.FTS {
		fts = append(fts, map[string]any{
			"table":        c.Table,
			"content":      c.Content,
			"index_rows":   c.IndexRows,
			"content_rows": c.ContentRows,
			"match":        c.Match,
		})
	}
	orphans := make([]map[string]any, 0, len(consistency.Orphans))
	for _, o := range consistency.Orphans {
		orphans = append(orphans, map[string]any{
			"table":   o.Table,
			"column":  o.Column,
			"parent":  o.Parent,
			"orphans": o.Orphans,
		})
	}

	out, err := json.MarshalIndent(map[string]any{
		"schema": map[string]any{
			"tables":   schema.Tables,
			"indexes":  schema.Indexes,
			"views":    schema.Views,
			"triggers": schema.Triggers,
			"issues":   issues,
			"valid":    schema.Valid,
		},
		"foreign_keys": map[string]any{
			"violations": violations,
			"valid":      fks.Valid,
		},
		"consistency": map[string]any{
			"integrity": consistency.IntegrityResult,
			"fts":       fts,
			"orphans":   orphans,
			"valid":     consistency.Valid,
		},
		"valid": schema.Valid && fks.Valid && consistency.Valid,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
