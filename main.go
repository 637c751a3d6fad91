// Package main provides the nl-stats command: it reconciles research-output
// coverage between institutional organizations and their repositories in the
// OpenAIRE Graph, writes the result as a timestamped CSV report and serves
// stored runs over REST and GraphQL.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openaire-nl/nl-stats/config"
	"github.com/openaire-nl/nl-stats/database"
	"github.com/openaire-nl/nl-stats/internal/openaire"
	"github.com/openaire-nl/nl-stats/internal/services"
	"github.com/openaire-nl/nl-stats/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	configPath string
	envFile    string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "nl-stats",
	Short: "Research output coverage between institutions and their repositories",
	Long: `nl-stats resolves each institution of an input table to its OpenAIRE
organizations, counts the research products linked to every organization, to
each of its data sources and to both, and reports how many products are
missing on either side.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = database.NewLogger(verbose)
		database.SetLogger(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var (
	runStore     bool
	runOutputDir string
	runScheme    string
	runDataFile  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one coverage run and write the CSV report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := contextWithShutdown(cmd.Context())
		defer stop()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		svc := &services.RunService{Config: cfg, Logger: logger}

		if runStore {
			db, err := database.InitializeDatabase(ctx, time.Minute)
			if err != nil {
				return err
			}
			svc.Store = services.NewArangoCoverageStore(db)
		}

		run, err := svc.Execute(ctx, model.RunRequest{
			DataFile:  runDataFile,
			OutputDir: runOutputDir,
			Scheme:    runScheme,
			Store:     runStore,
		})
		if errors.Is(err, openaire.ErrAuthentication) {
			logger.Error("Unable to obtain an access token, no institution was processed", zap.Error(err))
			return err
		}
		if err != nil {
			return err
		}

		if run.Failed() > 0 {
			logger.Warn("Some units were skipped, see the warnings above",
				zap.Int("institutions", run.InstitutionsFailed),
				zap.Int("organizations", run.OrganizationsFailed),
				zap.Int("datasources", run.DataSourcesFailed))
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "nl-stats", version)
	},
}

// loadConfig reads --config and --env-file. The default config file may be
// absent when everything comes from the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	optional := !cmd.Flags().Changed("config")
	cfg, err := config.Load(configPath, envFile, optional)
	if err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded",
		zap.String("api", cfg.APIBaseURL),
		zap.String("data_file", cfg.DataFile),
		zap.String("scheme", cfg.ColumnScheme),
		zap.Int("max_attempts", cfg.MaxAttempts))
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file with credentials")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	runCmd.Flags().BoolVar(&runStore, "store", false, "Store the run and its rows in ArangoDB")
	runCmd.Flags().StringVarP(&runOutputDir, "output-dir", "o", "", "Directory for the CSV report (overrides Output_dir)")
	runCmd.Flags().StringVar(&runScheme, "scheme", "", "Column scheme: extended or legacy (overrides Column_scheme)")
	runCmd.Flags().StringVarP(&runDataFile, "data-file", "f", "", "Institutions table (overrides Org_data_file)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// contextWithShutdown returns a context cancelled on SIGINT or SIGTERM.
func contextWithShutdown(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
