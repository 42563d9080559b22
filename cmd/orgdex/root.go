package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"github.com/teambeacon/orgdex/internal/mcp"
	"github.com/teambeacon/orgdex/internal/storage"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "orgdex",
	Short: "Index and search exported org activity archives",
	Long: `orgdex indexes JSONL exports of org activity (Slack messages, calendar
events, Drive file listings, employee records) into a local SQLite
database and serves full-text search over them.

Searching never touches the network; indexing only reads the archive
files it is given.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLog(viper.GetUint("logLevel"), viper.GetString("log"))
	},
}

// Execute runs the root command with an interrupt-aware context. Errors
// go to stderr and set the exit status; cobra's own printing is silenced
// so every failure is reported exactly once.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "orgdex:", err)
		os.Exit(1)
	}
}

func init() {
	// NOTE: The point of init() is to be declarative. There is one init
	// in each sub command file; flags that only one command reads live
	// there as locals rather than viper keys.
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file (default ~/.orgdex/orgdex.yaml)")

	rootCmd.PersistentFlags().StringP("db", "d", mcp.DefaultDBPath,
		"Path to the database file")
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.PersistentFlags().UintP("logLevel", "v", 0,
		"Verbosity: 0 = info, 1 = debug, >1 = trace")
	viper.BindPFlag("logLevel", rootCmd.PersistentFlags().Lookup("logLevel"))

	rootCmd.PersistentFlags().StringP("log", "l", "",
		"Also append logs to this file")
	viper.BindPFlag("log", rootCmd.PersistentFlags().Lookup("log"))

	rootCmd.PersistentFlags().Bool("noCache", false,
		"Disable the in-process search result cache")
	viper.BindPFlag("noCache", rootCmd.PersistentFlags().Lookup("noCache"))
}

// initConfig reads ~/.orgdex/orgdex.yaml (or --config) and the
// environment. Flags override config values, config overrides ORGDEX_*
// environment variables.
func initConfig() {
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".orgdex"))
		viper.SetConfigName("orgdex")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("orgdex")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		jww.DEBUG.Printf("using config file %s", viper.ConfigFileUsed())
	}
}

func initLog(threshold uint, logPath string) {
	// Console logging goes to stderr so stdout stays clean for command
	// output and the MCP stdio protocol.
	jww.SetStdoutOutput(os.Stderr)

	if logPath != "" && logPath != "-" {
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
		jww.INFO.Printf("log level set to: TRACE")
	} else if threshold == 1 {
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
		jww.INFO.Printf("log level set to: DEBUG")
	} else {
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}

// dbPath resolves the configured database location, expanding a leading ~.
func dbPath() (string, error) {
	path := viper.GetString("db")
	if path == "" {
		path = mcp.DefaultDBPath
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot expand %s: %w", path, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path, nil
}

// openStore opens the configured database, creating it and its schema if
// needed.
func openStore() (*storage.Store, error) {
	path, err := dbPath()
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.Config{Path: path})
}
