// Package api assembles the HTTP application served by the serve command.
package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/openaire-nl/nl-stats/graphql"
	"github.com/openaire-nl/nl-stats/internal/services"
	"github.com/openaire-nl/nl-stats/restapi"
	"github.com/openaire-nl/nl-stats/restapi/modules/coverage"
	"go.uber.org/zap"
)

// NewFiberApp creates and configures a Fiber app with REST and GraphQL
// routes over store. requester may be nil.
func NewFiberApp(store services.CoverageStore, requester coverage.RunRequester, log *zap.Logger) (*fiber.App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	schema, err := graphql.CreateSchema(store)
	if err != nil {
		return nil, fmt.Errorf("create GraphQL schema: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "nl-stats API v1.0",
		BodyLimit:             1024 * 1024,
		ReadTimeout:           60 * time.Second,
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(fiberrecover.New())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, HEAD, OPTIONS",
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Locals("graphql_op", "-")
		return c.Next()
	})
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${locals:graphql_op} ${latency}\n",
	}))

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	restapi.SetupRoutes(app, store, requester, schema, log)

	return app, nil
}
