package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teambeacon/orgdex/internal/migrate"
	"github.com/teambeacon/orgdex/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply, inspect and roll back schema migrations",
	Long: `Migrate manages numbered .sql scripts from the migrations directory.
Every applied script is recorded in a checksummed ledger inside the
database, so applying is idempotent and rollback knows exactly what ran.`,
}

var migrateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered migrations and whether they are applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, mgr, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := mgr.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no migrations found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tFILENAME\tDESCRIPTION\tAPPLIED")
		for _, e := range entries {
			applied := "pending"
			if e.Applied {
				applied = e.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%03d\t%s\t%s\t%s\n",
				e.Version, e.Filename, e.Description, applied)
		}
		return w.Flush()
	},
}

var migrateApplyCmd = &cobra.Command{
	Use:   "apply [filename]",
	Short: "Apply all pending migrations, or one by filename",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, mgr, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			res, err := mgr.Apply(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printApplyResult(res)
			return nil
		}

		results, err := mgr.ApplyAll(cmd.Context())
		if err != nil {
			return err
		}
		applied := 0
		for i := range results {
			printApplyResult(&results[i])
			if results[i].Applied {
				applied++
			}
		}
		if applied == 0 {
			fmt.Println("database is up to date")
		}
		return nil
	},
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback <version>",
	Short: "Roll back every migration above the target version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("rollback target must be a version number: %q", args[0])
		}

		store, mgr, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := mgr.RollbackToVersion(cmd.Context(), target)
		if err != nil {
			return err
		}
		if len(res.RolledBack) == 0 {
			fmt.Printf("nothing above version %d to roll back\n", target)
			return nil
		}

		for _, v := range res.RolledBack {
			fmt.Printf("rolled back version %d\n", v)
		}
		fmt.Printf("database is at version %d (%v)\n",
			res.Target, res.Duration.Round(time.Millisecond))
		if !res.Verified {
			return fmt.Errorf("post-rollback verification failed, inspect the database")
		}
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current version and per-migration status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, mgr, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		version, err := mgr.CurrentVersion(cmd.Context())
		if err != nil {
			return err
		}
		statuses, err := mgr.Statuses(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("version: %d\n", version)
		if len(statuses) == 0 {
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "FILENAME\tSTATUS\tUPDATED\tERROR")
		for _, s := range statuses {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				s.Filename, s.Status, s.UpdatedAt.Format(time.RFC3339), s.Error)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateListCmd)
	migrateCmd.AddCommand(migrateApplyCmd)
	migrateCmd.AddCommand(migrateRollbackCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	migrateCmd.PersistentFlags().String("dir", "migrations",
		"Directory containing numbered .sql migration scripts")
	viper.BindPFlag("migrationsDir", migrateCmd.PersistentFlags().Lookup("dir"))
}

// openMigrator opens the store and a migration manager over its database.
// The caller closes the store.
func openMigrator(cmd *cobra.Command) (*storage.Store, *migrate.Manager, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	mgr, err := migrate.New(cmd.Context(), store.DB(), viper.GetString("migrationsDir"))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, mgr, nil
}

func printApplyResult(res *migrate.ApplyResult) {
	if !res.Applied {
		fmt.Printf("%03d %s already applied\n", res.Version, res.Filename)
		return
	}
	fmt.Printf("%03d %s applied in %v (content %s -> %s)\n",
		res.Version, res.Filename, res.Duration.Round(time.Millisecond),
		shortChecksum(res.PreChecksum), shortChecksum(res.PostChecksum))
}

// shortChecksum abbreviates a hex digest for display.
func shortChecksum(sum string) string {
	if len(sum) <= 12 {
		return sum
	}
	return sum[:12]
}
