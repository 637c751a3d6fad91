// Package coverage implements the REST API handlers for coverage runs.
package coverage

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/openaire-nl/nl-stats/internal/report"
	"github.com/openaire-nl/nl-stats/internal/services"
	"github.com/openaire-nl/nl-stats/model"
)

// RunRequester hands a run request to the workers and returns the run id.
type RunRequester interface {
	PublishRunRequested(ctx context.Context, req model.RunRequest) (string, error)
}

func storeError(c *fiber.Ctx, err error) error {
	if errors.Is(err, services.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "run not found"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

// ListRuns returns the most recent runs, newest first.
func ListRuns(store services.CoverageStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 20)
		if limit < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be positive"})
		}

		runs, err := store.ListRuns(c.UserContext(), limit)
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(runs)
	}
}

// GetRun returns one run.
func GetRun(store services.CoverageStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		run, err := store.GetRun(c.UserContext(), c.Params("id"))
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(run)
	}
}

// GetLastRun returns the last run that was not aborted.
func GetLastRun(store services.CoverageStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		run, err := store.LastRun(c.UserContext())
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(run)
	}
}

func rowFilter(c *fiber.Ctx) services.RowFilter {
	return services.RowFilter{
		Institution:   c.Query("institution"),
		AnomaliesOnly: c.QueryBool("anomalies", false),
		Limit:         c.QueryInt("limit", 0),
	}
}

// ListRows returns the rows of a run, optionally filtered by institution
// identifier or restricted to anomalous rows.
func ListRows(store services.CoverageStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		id := c.Params("id")

		if _, err := store.GetRun(ctx, id); err != nil {
			return storeError(c, err)
		}

		rows, err := store.ListRows(ctx, id, rowFilter(c))
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(rows)
	}
}

// ExportCSV streams the rows of a run as a CSV report. The scheme query
// parameter selects the column scheme and defaults to the run's own.
func ExportCSV(store services.CoverageStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		id := c.Params("id")

		run, err := store.GetRun(ctx, id)
		if err != nil {
			return storeError(c, err)
		}

		scheme := strings.ToLower(c.Query("scheme", run.Scheme))
		if _, err := report.Columns(scheme); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		rows, err := store.ListRows(ctx, id, rowFilter(c))
		if err != nil {
			return storeError(c, err)
		}

		var buf bytes.Buffer
		if err := report.WriteTo(&buf, scheme, rows); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}

		name := run.StartedAt.Format(report.FileTimeLayout) + "_" + run.Key + ".csv"
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)
		return c.Send(buf.Bytes())
	}
}

// PostRun queues a run. Runs execute on the Kafka workers, so without a
// requester the endpoint answers 503.
func PostRun(requester RunRequester) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if requester == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "run queue not configured"})
		}

		var req model.RunRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
			}
		}
		if req.Scheme != "" {
			if _, err := report.Columns(strings.ToLower(req.Scheme)); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
		}

		id, err := requester.PublishRunRequested(c.UserContext(), req)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "failed to queue run: " + err.Error()})
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"id":      id,
			"message": "run requested",
		})
	}
}
