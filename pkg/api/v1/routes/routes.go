// Package routes defines the API routes and URL structure
package routes

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elecmate/rams/pkg/api/v1/handlers"
)

/*

To keep this file organized, routes should be organized in the following way:

1. Smallest scope first
2. For similar scopes, put the endpoints in alphabetical order
3. Order routes in GET, POST, PUT, DELETE order.
	a. Within this ordering, param urls (ie /:id) should go last, otherwise fiber will interpret the route slug as that param.
	b. After param considerations, order alphabetically.
4. For clarity, naming should match the action (i.e. GetJob, CancelJob)

*/

// API base configuration
const (
	// DefaultPort is the default port for the API
	DefaultPort = "8080"
	// APIv1Prefix is the prefix for all API endpoints
	APIv1Prefix = "/api/v1"
)

// DefaultBaseURL is the default base URL for the API
var DefaultBaseURL = fmt.Sprintf("http://localhost:%s", DefaultPort)

// Route names for lookup
const (
	// Health check
	HealthCheck = "HealthCheck"
	// Metrics
	Metrics = "Metrics"

	// Job routes
	ListJobs  = "ListJobs"
	GetJob    = "GetJob"
	SubmitJob = "SubmitJob"
	RunJob    = "RunJob"
	CancelJob = "CancelJob"
)

// routeCache stores extracted routes for use prior to compilation
var (
	routeCache     map[string]string
	routeCacheMu   sync.RWMutex
	routeCacheInit sync.Once
)

// RegisterRoutes configures all the v1 routes
func RegisterRoutes(app *fiber.App, jobHandler *handlers.JobHandler) {
	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	}).Name(HealthCheck)

	// Prometheus metrics
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler())).Name(Metrics)

	// API v1 routes
	v1 := app.Group(APIv1Prefix)

	jobs := v1.Group("/jobs")
	jobs.Get("/", jobHandler.ListJobs).Name(ListJobs)
	jobs.Get("/:id", jobHandler.GetJob).Name(GetJob)
	jobs.Post("/", jobHandler.SubmitJob).Name(SubmitJob)
	jobs.Post("/:id/cancel", jobHandler.CancelJob).Name(CancelJob)
	jobs.Post("/:id/run", jobHandler.RunJob).Name(RunJob)
}

// initRouteCache initializes the route cache by creating a mock app and extracting routes
func initRouteCache() {
	routeCacheInit.Do(func() {
		cache := make(map[string]string)

		app := fiber.New()
		RegisterRoutes(app, &handlers.JobHandler{})

		for _, route := range app.GetRoutes() {
			if route.Name != "" {
				cache[route.Name] = route.Path
			}
		}

		routeCacheMu.Lock()
		routeCache = cache
		routeCacheMu.Unlock()
	})
}

// GetRoute returns the route pattern for the given route name
func GetRoute(name string) string {
	initRouteCache()

	routeCacheMu.RLock()
	defer routeCacheMu.RUnlock()
	return routeCache[name]
}

// BuildURL builds a URL for the given route name and parameters
func BuildURL(routeName string, params map[string]string, queryParams url.Values) string {
	route := GetRoute(routeName)
	if route == "" {
		return ""
	}

	// Replace parameters in the route
	for param, value := range params {
		route = strings.ReplaceAll(route, ":"+param, url.PathEscape(value))
	}

	// Remove trailing slash if it's a base endpoint with no parameters
	if strings.HasSuffix(route, "/") && !strings.Contains(route, ":") {
		route = strings.TrimSuffix(route, "/")
	}

	// Add query parameters if any
	if len(queryParams) > 0 {
		route = fmt.Sprintf("%s?%s", route, queryParams.Encode())
	}

	return route
}

// HealthCheckURL returns the URL for the health check endpoint
func HealthCheckURL() string {
	return BuildURL(HealthCheck, nil, nil)
}

// ListJobsURL returns the URL for listing jobs
func ListJobsURL(queryParams url.Values) string {
	return BuildURL(ListJobs, nil, queryParams)
}

// GetJobURL returns the URL for getting a job by ID
func GetJobURL(id string) string {
	return BuildURL(GetJob, map[string]string{"id": id}, nil)
}

// SubmitJobURL returns the URL for submitting a job
func SubmitJobURL() string {
	return BuildURL(SubmitJob, nil, nil)
}

// RunJobURL returns the URL for running a job
func RunJobURL(id string) string {
	return BuildURL(RunJob, map[string]string{"id": id}, nil)
}

// CancelJobURL returns the URL for cancelling a job
func CancelJobURL(id string) string {
	return BuildURL(CancelJob, map[string]string{"id": id}, nil)
}
