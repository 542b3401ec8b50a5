// =============================================================================
// DUIMP Flattener - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every subcommand is
// attached to it and shares its configuration and logger.
//
// COBRA CLI STRUCTURE:
//   rootCmd (duimp)
//   ├── processCmd  (duimp process)
//   ├── snapshotCmd (duimp snapshot)
//   ├── exportCmd   (duimp export)
//   ├── statsCmd    (duimp stats)
//   └── versionCmd  (duimp version)
//
// CONFIGURATION ORDER:
//   1. .env file, when present (godotenv)
//   2. YAML configuration file (config.LoadMainConfig)
//   3. DUIMP_* environment variables and command line flags (viper)
//   4. Validation of the merged result
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tiagojmoraes/projeto-duimp/internal/config"
	"github.com/tiagojmoraes/projeto-duimp/internal/converter"
	"github.com/tiagojmoraes/projeto-duimp/internal/logger"
	"github.com/tiagojmoraes/projeto-duimp/internal/storage"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// appConfig is the merged configuration, set before any subcommand runs.
var appConfig *config.MainConfig

// log is the application logger, set before any subcommand runs.
var log = zap.NewNop()

// skipSetup marks commands that run without configuration.
const skipSetup = "skip-setup"

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "duimp",
	Short: "DUIMP flattener - load customs declarations into SQLite tables",
	Long: `duimp flattens DUIMP import declarations into relational tables.

Each input file is loaded as one batch: the item list becomes one row per
item in the items table, with one set of tax columns per tax type found in
the batch, items grouped into additions and every row carrying its share of
the total net weight. After each batch the whole table is serialized to JSON
and stored in the snapshot column of every row.

Example Usage:
  duimp process                          # Load every *.json in the input directory
  duimp process itens.json               # Load one item list
  duimp process --kind header capa.json  # Load a declaration header
  duimp snapshot --table itens_data      # Print the table snapshot
  duimp export --format xlsx             # Dump the items table to a workbook`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipSetup] != "" {
			return nil
		}
		return setup()
	},

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},

	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "config.yaml", "Path to the main configuration file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.String("db", "", "SQLite database file (overrides database_path)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: console or json")

	_ = viper.BindPFlag("database_path", flags.Lookup("db"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log_format", flags.Lookup("log-format"))

	viper.SetEnvPrefix("DUIMP")
	viper.AutomaticEnv()
}

// setup loads the configuration and builds the logger.
func setup() error {
	// a missing .env is normal
	_ = godotenv.Load()

	cfg, err := config.LoadMainConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyOverrides(cfg)
	if verbose {
		cfg.LogLevel = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.New(&logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogFile,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	appConfig = cfg
	log = l
	log.Debug("configuration loaded",
		zap.String("config", cfgFile),
		zap.String("database", cfg.DatabasePath),
		zap.String("items_table", cfg.ItemsTable),
		zap.String("header_table", cfg.HeaderTable),
		zap.Bool("replace", cfg.Replace()),
	)
	return nil
}

// applyOverrides copies DUIMP_* environment variables and bound flags into
// cfg. Only keys that are actually set override the file.
func applyOverrides(cfg *config.MainConfig) {
	textKeys := map[string]*string{
		"database_path":      &cfg.DatabasePath,
		"items_table":        &cfg.ItemsTable,
		"header_table":       &cfg.HeaderTable,
		"snapshot_column":    &cfg.SnapshotColumn,
		"input_dir":          &cfg.InputDir,
		"output_dir":         &cfg.OutputDir,
		"input_archive_dir":  &cfg.InputArchiveDir,
		"output_name_format": &cfg.OutputNameFormat,
		"log_file":           &cfg.LogFile,
		"log_level":          &cfg.LogLevel,
		"log_format":         &cfg.LogFormat,
	}
	for key, dst := range textKeys {
		if viper.IsSet(key) && viper.GetString(key) != "" {
			*dst = viper.GetString(key)
		}
	}

	if viper.IsSet("replace_existing") {
		replace := viper.GetBool("replace_existing")
		cfg.ReplaceExisting = &replace
	}
	if viper.IsSet("archive_processed") {
		cfg.ArchiveProcessed = viper.GetBool("archive_processed")
	}
	if viper.IsSet("percentage_precision") {
		cfg.PercentagePrecision = viper.GetInt32("percentage_precision")
	}
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// openStore opens the configured database.
func openStore() (*storage.Store, error) {
	store, err := storage.Open(appConfig.DatabasePath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// openPipeline opens the configured database and builds a pipeline on it.
func openPipeline() (*converter.Pipeline, *storage.Store, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	p, err := converter.New(store, appConfig, log)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return p, store, nil
}

// tableFlag resolves the --table flag, defaulting to the items table.
func tableFlag(cmd *cobra.Command) string {
	if t, _ := cmd.Flags().GetString("table"); t != "" {
		return t
	}
	return appConfig.ItemsTable
}
