package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teambeacon/orgdex/internal/search"
	"github.com/teambeacon/orgdex/pkg/types"
)

var (
	searchSource string
	searchFrom   string
	searchTo     string
	searchLimit  int
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over the indexed archives",
	Long: `Search runs a full-text query against everything indexed so far and
prints the most relevant records first. FTS5 query syntax is passed
through, so quoted phrases, AND/OR and prefix* work as usual.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		searcher := search.New(store, search.Config{
			DisableCache: viper.GetBool("noCache"),
		})

		req := types.SearchRequest{
			Query:    args[0],
			DateFrom: searchFrom,
			DateTo:   searchTo,
			Limit:    searchLimit,
		}
		if searchSource != "" {
			req.Source = types.ParseSource(searchSource)
		}

		res, err := searcher.Search(cmd.Context(), req)
		if err != nil {
			return err
		}

		if searchJSON {
			return printSearchJSON(res)
		}
		printSearchResults(res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVarP(&searchSource, "source", "s", "",
		"Restrict to one source kind (slack, calendar, drive, employees, "+
			"other); unknown kinds fold to other")
	searchCmd.Flags().StringVar(&searchFrom, "from", "",
		"Only records dated on or after this day (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchTo, "to", "",
		"Only records dated on or before this day (YYYY-MM-DD)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20,
		"Maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false,
		"Print results as JSON")
}

func printSearchResults(res *search.Response) {
	if len(res.Results) == 0 {
		fmt.Println("no results")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tSOURCE\tCONTENT")
	for _, r := range res.Results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			r.ID, r.Date, r.Source, firstLine(r.Content, 80))
	}
	w.Flush()

	fmt.Printf("\n%d results in %v\n",
		res.TotalResults, res.Duration.Round(time.Millisecond))
}

func printSearchJSON(res *search.Response) error {
	results := make([]map[string]any, 0, len(res.Results))
	for _, r := range res.Results {
		results = append(results, map[string]any{
			"id":              r.ID,
			"source":          r.Source.String(),
			"date":            r.Date,
			"content":         r.Content,
			"metadata":        r.Metadata,
			"relevance_score": r.RelevanceScore,
		})
	}

	out, err := json.MarshalIndent(map[string]any{
		"total_results": res.TotalResults,
		"cache_hit":     res.CacheHit,
		"duration_ms":   res.Duration.Milliseconds(),
		"results":       results,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// firstLine reduces s to its first line, truncated to at most max runes.
func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}
