package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	log "github.com/elecmate/rams/internal/logger"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log.InitializeAndConfigure("info")
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stdout) })

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(Logger())
	app.Get("/jobs/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusTeapot)
	}).Name("GetJob")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/jobs/abc", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)

	out := buf.String()
	assert.Contains(t, out, "Request")
	assert.Contains(t, out, `"handler":"GetJob"`)
	assert.Contains(t, out, `"job_id":"abc"`)
	assert.Contains(t, out, `"status":418`)
}
