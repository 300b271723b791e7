// Package events provides the in-process job lifecycle event bus
package events

import (
	"context"
	"sync"

	"github.com/elecmate/rams/internal/db/models"
	"github.com/elecmate/rams/internal/logger"
)

// EventType represents the type of job lifecycle event
type EventType string

const (
	// EventJobSubmitted is emitted when a job row was created
	EventJobSubmitted EventType = "job_submitted"
	// EventJobFinished is emitted when a job reached a terminal status
	EventJobFinished EventType = "job_finished"
	// EventChannelSize is the buffer size for the event channel
	EventChannelSize = 100
)

// Event represents a job lifecycle event
type Event struct {
	Type   EventType        // The type of event
	JobID  string           // The job ID
	Status models.JobStatus // The job status when the event was emitted
}

// Handler is a function that handles an event
type Handler func(context.Context, Event) error

// Bus dispatches published events to the handlers subscribed to their type
type Bus struct {
	handlers   map[EventType][]Handler
	handlersMu sync.RWMutex
	eventChan  chan Event
}

// NewBus creates a bus with a buffer of size events. A size of zero uses
// EventChannelSize.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = EventChannelSize
	}
	return &Bus{
		handlers:  make(map[EventType][]Handler),
		eventChan: make(chan Event, size),
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	logger.Debugf("Registered handler for event type: %s", eventType)
}

// Publish queues an event. When the buffer is full the event is dropped so a
// stalled consumer never blocks a request.
func (b *Bus) Publish(event Event) {
	select {
	case b.eventChan <- event:
		logger.Debugf("Published event: %s (Job: %s)", event.Type, event.JobID)
	default:
		logger.Warnf("Event buffer full, dropping %s for job %s", event.Type, event.JobID)
	}
}

// Start starts the event processing loop
func (b *Bus) Start(ctx context.Context) {
	go b.processEvents(ctx)
	logger.Info("Started event processing loop")
}

// processEvents handles events in the background
func (b *Bus) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping event processing loop")
			return
		case event := <-b.eventChan:
			logger.Debugf("Received event %s for job %s", event.Type, event.JobID)
			b.handlersMu.RLock()
			eventHandlers := b.handlers[event.Type]
			b.handlersMu.RUnlock()

			// Process event with all registered handlers
			for _, handler := range eventHandlers {
				go func(h Handler, e Event) {
					if err := h(ctx, e); err != nil {
						logger.WithJob(e.JobID).WithError(err).Errorf("Failed to handle event %s", e.Type)
					}
				}(handler, event)
			}
		}
	}
}
