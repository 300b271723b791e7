// Package middleware holds fiber middleware shared by the API server
package middleware

import (
	"time"

	fiber "github.com/gofiber/fiber/v2"

	log "github.com/elecmate/rams/internal/logger"
	"github.com/elecmate/rams/internal/metrics"
)

// Logger returns a middleware that logs HTTP requests and records their latency
func Logger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		stop := time.Now()
		latency := stop.Sub(start)

		handler := c.Route().Name
		status := c.Response().StatusCode()
		metrics.ObserveRequest(handler, c.Method(), status, latency)

		fields := map[string]interface{}{
			"timestamp": stop.Format("2006/01/02 - 15:04:05"),
			"status":    status,
			"latency":   latency,
			"ip":        c.IP(),
			"method":    c.Method(),
			"path":      c.Path(),
			"handler":   handler,
		}
		if id := c.Params("id"); id != "" {
			fields[log.JobIDKey] = id
		}
		log.InfoWithFields("Request", fields)

		return err
	}
}
