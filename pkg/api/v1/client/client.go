// Package client provides the API client for interacting with the RAMS API
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/elecmate/rams/internal/db/models"
	"github.com/elecmate/rams/internal/orchestrator"
	"github.com/elecmate/rams/internal/services"
	"github.com/elecmate/rams/pkg/api/v1/handlers"
	"github.com/elecmate/rams/pkg/api/v1/routes"
)

// DefaultTimeout is the default timeout for API requests. Runs are
// synchronous and bounded by the agent timeout, so it is generous.
const DefaultTimeout = 5 * time.Minute

// Client is the interface for API client
type Client interface {
	// Health Check
	HealthCheck(ctx context.Context) (map[string]string, error)

	// Job Endpoints
	ListJobs(ctx context.Context, opts *ListJobsOptions) (handlers.ListJobsResponse, error)
	GetJob(ctx context.Context, id string) (models.GenerationJob, error)
	SubmitJob(ctx context.Context, req services.SubmitRequest) (handlers.SubmitJobResponse, error)
	RunJob(ctx context.Context, id string) (orchestrator.RunResponse, error)
	CancelJob(ctx context.Context, id string) (models.GenerationJob, error)
}

var _ Client = &APIClient{}

// ListJobsOptions filters a job listing
type ListJobsOptions struct {
	Page   int
	Status string
}

// Options contains configuration options for the API client
type Options struct {
	// BaseURL is the base URL of the API
	BaseURL string

	// Timeout is the request timeout
	Timeout time.Duration
}

// DefaultOptions returns the default client options
func DefaultOptions() *Options {
	return &Options{
		BaseURL: routes.DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// APIClient implements the Client interface
type APIClient struct {
	baseURL string
	timeout time.Duration
}

// NewClient creates a new API client with the given options
func NewClient(opts *Options) (Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	// Validate the base URL
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL: %q", opts.BaseURL)
	}

	return &APIClient{
		baseURL: opts.BaseURL,
		timeout: opts.Timeout,
	}, nil
}

// createAgent creates a new Fiber Agent for the given method and endpoint
func (c *APIClient) createAgent(ctx context.Context, method, endpoint string, body interface{}) (*fiber.Agent, error) {
	fullURL := c.baseURL + endpoint

	var agent *fiber.Agent
	switch method {
	case http.MethodGet:
		agent = fiber.Get(fullURL)
	case http.MethodPost:
		agent = fiber.Post(fullURL)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	// Set timeout from context or client default
	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	} else {
		agent.Timeout(c.timeout)
	}

	agent.Set("Content-Type", "application/json")
	agent.Set("Accept", "application/json")

	if body != nil {
		agent.JSON(body)
	}

	return agent, nil
}

// doRequest sends the HTTP request and decodes the data of the response envelope into v
func (c *APIClient) doRequest(agent *fiber.Agent, v interface{}) error {
	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("error sending request: %w", errs[0])
	}

	if statusCode < 200 || statusCode >= 300 {
		msg := string(body)
		var envelope handlers.SlugResponse
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
			msg = envelope.Error
		}
		return &fiber.Error{Code: statusCode, Message: msg}
	}

	if v == nil || len(body) == 0 {
		return nil
	}

	var envelope struct {
		Slug  handlers.Slug   `json:"slug"`
		Error string          `json:"error"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	if envelope.Slug == "" {
		// endpoints outside the envelope, such as the health check
		return json.Unmarshal(body, v)
	}
	if envelope.Slug != handlers.SuccessSlug {
		return fmt.Errorf("request failed (%s): %s", envelope.Slug, envelope.Error)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		return fmt.Errorf("error decoding response data: %w", err)
	}
	return nil
}

// executeRequest creates an agent, sends the request, and processes the response
func (c *APIClient) executeRequest(ctx context.Context, method, endpoint string, body, response interface{}) error {
	agent, err := c.createAgent(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	return c.doRequest(agent, response)
}

// HealthCheck checks the health of the API
func (c *APIClient) HealthCheck(ctx context.Context) (map[string]string, error) {
	var response map[string]string
	err := c.executeRequest(ctx, http.MethodGet, routes.HealthCheckURL(), nil, &response)
	return response, err
}

// ListJobs lists jobs, newest first
func (c *APIClient) ListJobs(ctx context.Context, opts *ListJobsOptions) (handlers.ListJobsResponse, error) {
	query := url.Values{}
	if opts != nil {
		if opts.Page > 0 {
			query.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.Status != "" {
			query.Set("status", opts.Status)
		}
	}

	var response handlers.ListJobsResponse
	err := c.executeRequest(ctx, http.MethodGet, routes.ListJobsURL(query), nil, &response)
	return response, err
}

// GetJob retrieves a job with its progress and results
func (c *APIClient) GetJob(ctx context.Context, id string) (models.GenerationJob, error) {
	var response models.GenerationJob
	err := c.executeRequest(ctx, http.MethodGet, routes.GetJobURL(id), nil, &response)
	return response, err
}

// SubmitJob creates a pending generation job
func (c *APIClient) SubmitJob(ctx context.Context, req services.SubmitRequest) (handlers.SubmitJobResponse, error) {
	var response handlers.SubmitJobResponse
	err := c.executeRequest(ctx, http.MethodPost, routes.SubmitJobURL(), req, &response)
	return response, err
}

// RunJob generates a job and waits for its outcome
func (c *APIClient) RunJob(ctx context.Context, id string) (orchestrator.RunResponse, error) {
	var response orchestrator.RunResponse
	err := c.executeRequest(ctx, http.MethodPost, routes.RunJobURL(id), nil, &response)
	return response, err
}

// CancelJob cancels a job and returns its final state
func (c *APIClient) CancelJob(ctx context.Context, id string) (models.GenerationJob, error) {
	var response models.GenerationJob
	err := c.executeRequest(ctx, http.MethodPost, routes.CancelJobURL(id), nil, &response)
	return response, err
}
