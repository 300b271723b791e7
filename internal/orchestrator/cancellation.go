package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/elecmate/rams/internal/db/models"
	"github.com/elecmate/rams/internal/logger"
)

// ErrCancelled is returned from a cancellation checkpoint once the job was cancelled
var ErrCancelled = errors.New("job was cancelled")

// CancellationToken is consulted at every checkpoint of a run
type CancellationToken interface {
	Check(ctx context.Context) error
}

// JobReader loads a job row
type JobReader interface {
	GetByID(ctx context.Context, id string) (*models.GenerationJob, error)
}

// storeToken re-reads the job on every check so a cancel written by another
// process is seen at the next checkpoint
type storeToken struct {
	jobs  JobReader
	jobID string
}

var _ CancellationToken = (*storeToken)(nil)

// NewStoreToken returns a token backed by the job store
func NewStoreToken(jobs JobReader, jobID string) CancellationToken {
	return &storeToken{jobs: jobs, jobID: jobID}
}

// Check returns ErrCancelled when the job is cancelled. A failed read does not
// stop the run unless ctx itself is done.
func (t *storeToken) Check(ctx context.Context) error {
	job, err := t.jobs.GetByID(ctx, t.jobID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.WithJob(t.jobID).WithError(err).Warn("cancellation check failed")
		return nil
	}
	if job.Status == models.JobStatusCancelled {
		return fmt.Errorf("%w: %s", ErrCancelled, t.jobID)
	}
	return nil
}
