package handlers

import (
	"errors"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/elecmate/rams/internal/db/models"
	"github.com/elecmate/rams/internal/db/repos"
	"github.com/elecmate/rams/internal/logger"
	"github.com/elecmate/rams/internal/services"
)

// JobHandler handles HTTP requests for generation jobs
type JobHandler struct {
	jobService *services.Job
}

// NewJobHandler creates a new job handler instance
func NewJobHandler(s *services.Job) *JobHandler {
	return &JobHandler{jobService: s}
}

// ListJobs handles the request to list jobs
func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	var status *models.JobStatus
	if statusStr := c.Query("status"); statusStr != "" {
		parsed, err := models.ParseJobStatus(statusStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgJobStatusInvalid))
		}
		status = &parsed
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgNegativePagination))
	}
	opts := getPaginationOptions(page, status)

	jobs, err := h.jobService.List(c.Context(), opts)
	if err != nil {
		logger.Errorf("%s: %v", ErrMsgJobListFailed, err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrServer(ErrMsgJobListFailed))
	}

	return c.JSON(Success(ListJobsResponse{
		Jobs: jobs,
		Pagination: PaginationResponse{
			Total:  len(jobs),
			Page:   page,
			Limit:  opts.Limit,
			Offset: opts.Offset,
		},
	}))
}

// GetJob handles the request to get a job with its progress and results
func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgJobIDRequired))
	}

	job, err := h.jobService.Get(c.Context(), id)
	if err != nil {
		return jobError(c, err, ErrMsgJobGetFailed)
	}
	return c.JSON(Success(job))
}

// SubmitJob handles the request to create a new generation job
func (h *JobHandler) SubmitJob(c *fiber.Ctx) error {
	var req services.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidReqBody))
	}

	job, err := h.jobService.Submit(c.Context(), req)
	if errors.Is(err, services.ErrInvalidRequest) {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(err.Error()))
	}
	if err != nil {
		logger.Errorf("%s: %v", ErrMsgJobSubmitFailed, err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrServer(ErrMsgJobSubmitFailed))
	}

	return c.Status(fiber.StatusCreated).JSON(Success(SubmitJobResponse{ID: job.ID, Status: job.Status}))
}

// RunJob handles the request to generate a job synchronously
func (h *JobHandler) RunJob(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgJobIDRequired))
	}
	if _, err := h.jobService.Get(c.Context(), id); err != nil {
		return jobError(c, err, ErrMsgJobGetFailed)
	}

	resp := h.jobService.Run(c.UserContext(), id)
	return c.JSON(Success(resp))
}

// CancelJob handles the request to cancel a job
func (h *JobHandler) CancelJob(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgJobIDRequired))
	}

	if err := h.jobService.Cancel(c.Context(), id); err != nil {
		return jobError(c, err, ErrMsgJobCancelFailed)
	}

	job, err := h.jobService.Get(c.Context(), id)
	if err != nil {
		return jobError(c, err, ErrMsgJobGetFailed)
	}
	return c.JSON(Success(job))
}

// jobError maps repository errors onto status codes
func jobError(c *fiber.Ctx, err error, msg string) error {
	switch {
	case errors.Is(err, repos.ErrJobNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrNotFound(ErrMsgJobNotFound))
	case errors.Is(err, repos.ErrJobTerminal):
		return c.Status(fiber.StatusConflict).JSON(ErrConflict(ErrMsgJobAlreadyHandled))
	default:
		logger.Errorf("%s: %v", msg, err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrServer(msg))
	}
}
