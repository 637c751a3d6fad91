package main

import (
	"time"

	"github.com/openaire-nl/nl-stats/database"
	"github.com/openaire-nl/nl-stats/internal/api"
	"github.com/openaire-nl/nl-stats/internal/kafka"
	"github.com/openaire-nl/nl-stats/internal/services"
	"github.com/openaire-nl/nl-stats/restapi/modules/coverage"
	"github.com/openaire-nl/nl-stats/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored runs over REST and GraphQL and process queued run requests",
	Long: `serve exposes stored coverage runs under /api/v1. Runs are stored in
ArangoDB when ARANGO_HOST or ARANGO_URL is set and in memory otherwise. When
KAFKA_BROKERS is set, POST /api/v1/runs queues run requests and this process
also consumes and executes them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := contextWithShutdown(cmd.Context())
		defer stop()

		var store services.CoverageStore
		if database.Enabled() {
			db, err := database.InitializeDatabase(ctx, 5*time.Minute)
			if err != nil {
				return err
			}
			store = services.NewArangoCoverageStore(db)
		} else {
			logger.Warn("No ArangoDB endpoint configured, runs are kept in memory only")
			store = services.NewMemoryCoverageStore()
		}

		var requester coverage.RunRequester
		if kafka.Enabled() {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			settings := kafka.SettingsFromEnv()
			producer := settings.NewProducer()
			defer producer.Close()

			worker := &services.RunService{Config: cfg, Store: store, Logger: logger}
			if err := kafka.RunEventProcessor(ctx, settings, worker, producer, logger); err != nil {
				return err
			}
			requester = producer
		}

		app, err := api.NewFiberApp(store, requester, logger)
		if err != nil {
			return err
		}

		port := servePort
		if port == "" {
			port = util.GetEnvDefault("PORT", "8080")
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Starting server", zap.String("port", port), zap.String("graphql", "/api/v1/graphql"))
			errCh <- app.Listen(":" + port)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			logger.Info("Shutting down server")
			return app.ShutdownWithTimeout(10 * time.Second)
		}
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Listen port (default $PORT or 8080)")
}
