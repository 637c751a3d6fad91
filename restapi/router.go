// Package restapi provides the main router and initialization for REST API endpoints.
package restapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"github.com/openaire-nl/nl-stats/internal/services"
	"github.com/openaire-nl/nl-stats/restapi/modules/coverage"
	"go.uber.org/zap"
)

// SetupRoutes configures all REST API routes and the GraphQL endpoint.
// requester may be nil, in which case run requests are refused.
func SetupRoutes(app *fiber.App, store services.CoverageStore, requester coverage.RunRequester, schema graphql.Schema, logger *zap.Logger) {
	// API Group /api/v1
	api := app.Group("/api/v1")

	api.Post("/graphql", GraphQLHandler(schema))

	runs := api.Group("/runs")
	runs.Get("/", coverage.ListRuns(store))
	runs.Get("/last", coverage.GetLastRun(store))
	runs.Get("/:id", coverage.GetRun(store))
	runs.Get("/:id/rows", coverage.ListRows(store))
	runs.Get("/:id/csv", coverage.ExportCSV(store))
	runs.Post("/", coverage.PostRun(requester))

	logger.Info("API routes initialized", zap.Bool("run_requests", requester != nil))
}
