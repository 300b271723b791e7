package services

import (
	"context"

	"github.com/elecmate/rams/internal/events"
	"github.com/elecmate/rams/internal/logger"
	"github.com/elecmate/rams/internal/metrics"
)

// Subscriber registers event handlers
type Subscriber interface {
	Subscribe(eventType events.EventType, handler events.Handler)
}

// RegisterEventHandlers wires the lifecycle handlers. When runOnSubmit is
// set every submitted job is generated in the background.
func RegisterEventHandlers(bus Subscriber, jobService *Job, runOnSubmit bool) {
	bus.Subscribe(events.EventJobFinished, func(_ context.Context, e events.Event) error {
		metrics.IncreaseJobsFinished(e.Status.String())
		logger.WithJob(e.JobID).WithField("status", e.Status).Info("job finished")
		return nil
	})

	if !runOnSubmit {
		return
	}
	bus.Subscribe(events.EventJobSubmitted, func(ctx context.Context, e events.Event) error {
		resp := jobService.Run(ctx, e.JobID)
		logger.WithJob(e.JobID).WithField("success", resp.Success).Debug("background generation returned")
		return nil
	})
}
