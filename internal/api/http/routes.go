// Package httpapi is the stateless read boundary: every handler
// resolves from the hot cache and never calls the forecast provider.
// The route-group and centralized-error-handler wiring follows this
// pipeline's own earlier weather-aggregation read API; the handlers
// themselves are new, since the endpoints, their JSON shapes, and the
// 503-with-hint cache-miss behavior are specific to this domain.
package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/evaonline/matopiba-pipeline/internal/hotcache"
)

// CacheLookupTimeout bounds how long a single request may wait on the
// hot cache before responding 503 instead of hanging.
const CacheLookupTimeout = 2 * time.Second

// RegisterRoutes wires the three read endpoints into the Fiber app.
func RegisterRoutes(app *fiber.App, cache *hotcache.Gateway) {
	v1 := app.Group("/api/v1/matopiba")

	v1.Get("/forecasts", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), CacheLookupTimeout)
		defer cancel()

		snap, err := cache.GetSnapshot(ctx)
		if err != nil {
			return cacheMissResponse(c)
		}
		return c.JSON(fiber.Map{
			"forecasts":  snap.Forecasts,
			"validation": snap.Validation,
			"metadata":   snap.Metadata,
		})
	})

	v1.Get("/metadata", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), CacheLookupTimeout)
		defer cancel()

		meta, err := cache.GetMetadata(ctx)
		if err != nil {
			return cacheMissResponse(c)
		}
		return c.JSON(meta)
	})

	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

// cacheMissResponse returns the standard 503 body: an empty cache is
// an expected state between runs, not an internal failure.
func cacheMissResponse(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error":           "cache_empty",
		"next_update_utc": nextScheduledUTC(time.Now().UTC()).Format(time.RFC3339),
	})
}

// nextScheduledUTC returns the next of the four fixed daily run
// instants (00, 06, 12, 18 UTC) strictly after now. It is only a hint
// for a client polling after a cache miss; once a snapshot exists its
// own metadata carries the authoritative next-update time.
func nextScheduledUTC(now time.Time) time.Time {
	scheduledHours := []int{0, 6, 12, 18}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, h := range scheduledHours {
		candidate := day.Add(time.Duration(h) * time.Hour)
		if candidate.After(now) {
			return candidate
		}
	}
	return day.AddDate(0, 0, 1)
}

// ErrorHandler is a centralized Fiber error handler: unwraps
// fiber.Error for its intended status code, otherwise reports a
// generic 500 without leaking internal error text to the client.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	return c.Status(code).JSON(fiber.Map{"error": message})
}
