package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/elecmate/rams/internal/db/models"
)

// JobRepository provides access to generation job rows
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository instance
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a new job in the database
func (r *JobRepository) Create(ctx context.Context, job *models.GenerationJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID
func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.GenerationJob, error) {
	var job models.GenerationJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// List returns jobs ordered by creation time, newest first
func (r *JobRepository) List(ctx context.Context, opts *models.ListOptions) ([]models.GenerationJob, error) {
	if opts == nil {
		opts = &models.ListOptions{}
	}
	opts.Normalize()

	qry := r.db.WithContext(ctx).Model(&models.GenerationJob{})
	if opts.Status != nil {
		qry = qry.Where("status = ?", *opts.Status)
	}

	var jobs []models.GenerationJob
	err := qry.
		Order(models.JobCreatedAtField + " DESC").
		Limit(opts.Limit).Offset(opts.Offset).
		Find(&jobs).Error
	return jobs, err
}

// ListPending returns the oldest pending jobs, up to limit
func (r *JobRepository) ListPending(ctx context.Context, limit int) ([]models.GenerationJob, error) {
	var jobs []models.GenerationJob
	err := r.db.WithContext(ctx).
		Where("status = ?", models.JobStatusPending).
		Order(models.JobCreatedAtField + " ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// Claim moves a pending job to processing. When the job is not pending it is
// returned unchanged with claimed set to false.
func (r *JobRepository) Claim(ctx context.Context, id string, progress int, step string) (job *models.GenerationJob, claimed bool, err error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.GenerationJob{}).
		Where("id = ? AND status = ?", id, models.JobStatusPending).
		Updates(map[string]interface{}{
			models.JobStatusField:                 models.JobStatusProcessing,
			models.JobProgressField:               progress,
			models.JobCurrentStepField:            step,
			models.JobHSAgentStatusField:          models.AgentStatusPending,
			models.JobInstallerAgentStatusField:   models.AgentStatusPending,
			models.JobHSAgentProgressField:        0,
			models.JobInstallerAgentProgressField: 0,
			models.JobStartedAtField:              now,
		})
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to claim job: %w", res.Error)
	}

	job, err = r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return job, res.RowsAffected > 0, nil
}

// UpdateFields applies a partial update while the job is still non-terminal
func (r *JobRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.GenerationJob{}).
		Where("id = ? AND status NOT IN ?", id, models.TerminalJobStatuses).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return r.missingOrTerminal(ctx, id)
	}
	return nil
}

// UpdateProgress applies a partial update and raises the overall progress to
// at least the given value. Progress is never lowered and only moves while the
// job is processing.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, progress int, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates[models.JobProgressField] = gorm.Expr("CASE WHEN progress < ? THEN ? ELSE progress END", progress, progress)

	res := r.db.WithContext(ctx).Model(&models.GenerationJob{}).
		Where("id = ? AND status = ?", id, models.JobStatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update job progress: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return r.missingOrTerminal(ctx, id)
	}
	return nil
}

// Finish writes a terminal status together with the final fields. Only the
// first terminal write for a job succeeds.
func (r *JobRepository) Finish(ctx context.Context, id string, status models.JobStatus, fields map[string]interface{}) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	updates := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates[models.JobStatusField] = status
	updates[models.JobCompletedAtField] = time.Now()

	res := r.db.WithContext(ctx).Model(&models.GenerationJob{}).
		Where("id = ? AND status NOT IN ?", id, models.TerminalJobStatuses).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to finish job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return r.missingOrTerminal(ctx, id)
	}
	return nil
}

// Cancel marks a non-terminal job as cancelled. Cancelling an already
// cancelled job is a no-op.
func (r *JobRepository) Cancel(ctx context.Context, id string) error {
	err := r.Finish(ctx, id, models.JobStatusCancelled, map[string]interface{}{
		models.JobCurrentStepField: "Cancelled by user",
	})
	if errors.Is(err, ErrJobTerminal) {
		job, getErr := r.GetByID(ctx, id)
		if getErr == nil && job.Status == models.JobStatusCancelled {
			return nil
		}
	}
	return err
}

func (r *JobRepository) missingOrTerminal(ctx context.Context, id string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.GenerationJob{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return ErrJobTerminal
}
