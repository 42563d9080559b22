package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teambeacon/orgdex/internal/storage"
)

// currentVersion is the CLI release version.
const currentVersion = "1.2.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("orgdex version %s\n", currentVersion)
		fmt.Printf("storage engine %s (driver %s, %s build)\n",
			storage.EngineVersion, storage.DriverName, storage.BuildMode)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
