package main

import (
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"github.com/teambeacon/orgdex/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the archive to MCP clients over stdin/stdout",
	Long: `Mcp runs the stdio MCP server, exposing the search_archive,
index_archive and archive_stats tools. Point an MCP client at this
command; the protocol owns stdout, so all logging goes to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := dbPath()
		if err != nil {
			return err
		}

		srv, err := mcp.NewServer(cmd.Context(), mcp.Config{
			DBPath:       path,
			DisableCache: viper.GetBool("noCache"),
		})
		if err != nil {
			return err
		}

		jww.INFO.Printf("mcp server ready (db=%s)", path)
		return srv.Serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
