package cmd

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/pgnode/internal/config"
	"github.com/wegman-software/pgnode/internal/logger"
)

var (
	cfg             = config.DefaultConfig()
	configFile      string
	verbose         bool
	logFile         string
	metricsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "pgnode",
	Short: "OSM node importer and change applier for PostgreSQL",
	Long: `pgnode maintains a PostGIS table of OSM point entities.

Features:
  - Parallel PBF parsing with COPY BINARY bulk loading
  - Incremental updates from OsmChange files or replication servers
  - Lua hooks for filtering and rewriting tags
  - Tile expiry lists for downstream cache invalidation
  - Parquet export of the stored table`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configFile != "" {
			mergeConfigFile(cmd)
		}

		if verbose {
			cfg.Verbose = true
		}
		if logFile != "" {
			cfg.LogFile = logFile
		}
		cfg.MetricsInterval = metricsInterval

		// Initialize logger with optional file output
		if cfg.LogFile != "" {
			logger.InitWithFile(cfg.Verbose, cfg.LogFile)
		} else {
			logger.Init(cfg.Verbose)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel workers")
	rootCmd.PersistentFlags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per statement batch and Parquet row group")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", 30*time.Second, "Interval for system metrics logging (e.g., 10s, 1m)")

	// Database flags (persistent so they're available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
	rootCmd.PersistentFlags().StringVarP(&cfg.Table, "table", "t", cfg.Table, "Target table name")
}

// mergeConfigFile loads the YAML config file into cfg. Flags given
// explicitly on the command line keep their values.
func mergeConfigFile(cmd *cobra.Command) {
	fileCfg, err := config.LoadFile(configFile)
	if err != nil {
		exitWithError("failed to load config file", err)
	}

	flags := cmd.Flags()
	if flags.Changed("workers") {
		fileCfg.Workers = cfg.Workers
	}
	if flags.Changed("batch-size") {
		fileCfg.BatchSize = cfg.BatchSize
	}
	if flags.Changed("db-host") {
		fileCfg.DBHost = cfg.DBHost
	}
	if flags.Changed("db-port") {
		fileCfg.DBPort = cfg.DBPort
	}
	if flags.Changed("db-name") {
		fileCfg.DBName = cfg.DBName
	}
	if flags.Changed("db-user") {
		fileCfg.DBUser = cfg.DBUser
	}
	if flags.Changed("db-password") {
		fileCfg.DBPassword = cfg.DBPassword
	}
	if flags.Changed("db-schema") {
		fileCfg.DBSchema = cfg.DBSchema
	}
	if flags.Changed("table") {
		fileCfg.Table = cfg.Table
	}
	cfg = fileCfg
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	os.Exit(1)
}
