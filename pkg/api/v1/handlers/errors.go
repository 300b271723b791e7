package handlers

import (
	"errors"

	fiber "github.com/gofiber/fiber/v2"

	"github.com/elecmate/rams/internal/logger"
)

// Common error messages
const (
	ErrMsgInvalidReqBody     = "Invalid request body"
	ErrMsgNegativePagination = "Page must be a positive number from 1"
)

// Job error messages
const (
	ErrMsgJobIDRequired     = "Job id is required"
	ErrMsgJobNotFound       = "Job not found"
	ErrMsgJobStatusInvalid  = "Invalid job status"
	ErrMsgJobListFailed     = "Failed to list jobs"
	ErrMsgJobGetFailed      = "Failed to get job"
	ErrMsgJobSubmitFailed   = "Failed to submit job"
	ErrMsgJobCancelFailed   = "Failed to cancel job"
	ErrMsgJobAlreadyHandled = "Job already reached a terminal status"
)

// ErrorHandler renders errors that escape a handler, such as unknown routes,
// in the response envelope
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	switch {
	case code == fiber.StatusNotFound:
		return c.Status(code).JSON(ErrNotFound(err.Error()))
	case code >= fiber.StatusInternalServerError:
		logger.Errorf("Unhandled request error: %v", err)
		return c.Status(code).JSON(ErrServer(err.Error()))
	default:
		return c.Status(code).JSON(SlugResponse{Slug: ErrorSlug, Error: err.Error()})
	}
}
