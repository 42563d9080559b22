package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show message counts and indexed archive files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		archives, err := store.ListArchives(cmd.Context())
		if err != nil {
			return err
		}

		if statsJSON {
			files := make([]map[string]any, 0, len(archives))
			for _, a := range archives {
				files = append(files, map[string]any{
					"path":       a.Path,
					"source":     a.Source.String(),
					"records":    a.RecordCount,
					"file_size":  a.FileSize,
					"indexed_at": a.IndexedAt.Format(time.RFC3339),
					"status":     a.Status,
				})
			}
			out, err := json.MarshalIndent(map[string]any{
				"messages":  stats.TotalMessages,
				"archives":  stats.TotalArchives,
				"by_source": stats.BySource,
				"counters": map[string]any{
					"connections_created": stats.ConnectionsCreated,
					"connections_reused":  stats.ConnectionsReused,
					"queries_executed":    stats.QueriesExecuted,
					"records_indexed":     stats.RecordsIndexed,
				},
				"archive_files": files,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Printf("messages: %d\n", stats.TotalMessages)
		fmt.Printf("archives: %d\n", stats.TotalArchives)
		if len(stats.BySource) > 0 {
			fmt.Println("by source:")
			sources := make([]string, 0, len(stats.BySource))
			for s := range stats.BySource {
				sources = append(sources, s)
			}
			sort.Strings(sources)
			for _, s := range sources {
				fmt.Printf("  %-10s %d\n", s, stats.BySource[s])
			}
		}

		if len(archives) > 0 {
			fmt.Println()
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tSOURCE\tRECORDS\tSIZE\tINDEXED\tSTATUS")
			for _, a := range archives {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
					a.Path, a.Source, a.RecordCount, a.FileSize,
					a.IndexedAt.Format(time.RFC3339), a.Status)
			}
			w.Flush()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().BoolVar(&statsJSON, "json", false,
		"Print statistics as JSON")
}
