package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/elecmate/rams/internal/db/models"
	"github.com/elecmate/rams/internal/db/repos"
	"github.com/elecmate/rams/internal/events"
	"github.com/elecmate/rams/internal/logger"
	"github.com/elecmate/rams/internal/orchestrator"
)

// ErrInvalidRequest is returned when a submission fails validation
var ErrInvalidRequest = errors.New("invalid request")

// SubmitRequest describes a new generation job
type SubmitRequest struct {
	UserID         string             `json:"user_id,omitempty"`
	JobDescription string             `json:"job_description"`
	WorkType       string             `json:"work_type,omitempty"`
	JobScale       string             `json:"job_scale,omitempty"`
	ProjectInfo    models.ProjectInfo `json:"project_info"`
}

// Validate checks the request and applies defaults for optional fields
func (r *SubmitRequest) Validate() error {
	r.JobDescription = strings.TrimSpace(r.JobDescription)
	if r.JobDescription == "" {
		return fmt.Errorf("%w: job description is required", ErrInvalidRequest)
	}
	if len(r.JobDescription) > models.MaxJobDescriptionLength {
		return fmt.Errorf("%w: job description must be less than %d characters", ErrInvalidRequest, models.MaxJobDescriptionLength)
	}

	if r.WorkType == "" {
		r.WorkType = models.WorkTypeDomestic
	}
	switch r.WorkType {
	case models.WorkTypeDomestic, models.WorkTypeCommercial, models.WorkTypeIndustrial:
	default:
		return fmt.Errorf("%w: unknown work type %q", ErrInvalidRequest, r.WorkType)
	}

	if r.JobScale == "" {
		r.JobScale = models.JobScaleSmall
	}
	switch r.JobScale {
	case models.JobScaleSmall, models.JobScaleMedium, models.JobScaleLarge:
	default:
		return fmt.Errorf("%w: unknown job scale %q", ErrInvalidRequest, r.JobScale)
	}
	return nil
}

// Runner runs one generation job to a terminal outcome
type Runner interface {
	Run(ctx context.Context, jobID string) orchestrator.RunResponse
}

// Publisher queues lifecycle events
type Publisher interface {
	Publish(event events.Event)
}

// Job provides business logic for generation jobs
type Job struct {
	jobRepo   *repos.JobRepository
	runner    Runner
	publisher Publisher
}

// NewJobService creates a new job service instance. publisher may be nil.
func NewJobService(jobRepo *repos.JobRepository, runner Runner, publisher Publisher) *Job {
	return &Job{jobRepo: jobRepo, runner: runner, publisher: publisher}
}

// Submit validates the request and stores a pending job
func (s *Job) Submit(ctx context.Context, req SubmitRequest) (*models.GenerationJob, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	job := &models.GenerationJob{
		UserID:         req.UserID,
		Status:         models.JobStatusPending,
		JobDescription: req.JobDescription,
		WorkType:       req.WorkType,
		JobScale:       req.JobScale,
		ProjectInfo:    req.ProjectInfo,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	logger.WithJob(job.ID).Info("job submitted")
	s.publish(events.Event{Type: events.EventJobSubmitted, JobID: job.ID, Status: job.Status})
	return job, nil
}

// Get retrieves a job by its id
func (s *Job) Get(ctx context.Context, id string) (*models.GenerationJob, error) {
	return s.jobRepo.GetByID(ctx, id)
}

// List retrieves a paginated list of jobs
func (s *Job) List(ctx context.Context, opts *models.ListOptions) ([]models.GenerationJob, error) {
	return s.jobRepo.List(ctx, opts)
}

// ListPending returns up to limit jobs waiting to run
func (s *Job) ListPending(ctx context.Context, limit int) ([]models.GenerationJob, error) {
	return s.jobRepo.ListPending(ctx, limit)
}

// Cancel cancels a non-terminal job. Cancelling a cancelled job is a no-op.
func (s *Job) Cancel(ctx context.Context, id string) error {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == models.JobStatusCancelled {
		return nil
	}
	if err := s.jobRepo.Cancel(ctx, id); err != nil {
		return err
	}

	logger.WithJob(id).Info("job cancelled")
	s.publish(events.Event{Type: events.EventJobFinished, JobID: id, Status: models.JobStatusCancelled})
	return nil
}

// Run generates the job synchronously and returns its outcome
func (s *Job) Run(ctx context.Context, id string) orchestrator.RunResponse {
	return s.runner.Run(ctx, id)
}

func (s *Job) publish(event events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}
