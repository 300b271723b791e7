package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elecmate/rams/internal/db/models"
)

// ErrAgentTimeout is returned when an agent does not settle within its timeout
var ErrAgentTimeout = errors.New("agent timed out")

// AgentError records which agent failed
type AgentError struct {
	Agent models.AgentType
	Err   error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("%s agent failed: %v", agentLabel(e.Agent), e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// withTimeout runs fn under its own deadline. When the deadline passes the
// call returns ErrAgentTimeout without waiting for fn; fn sees a cancelled
// context. A panic in fn is returned as an error.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	var zero T
	select {
	case out := <-done:
		if out.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrAgentTimeout, d)
		}
		return out.value, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrAgentTimeout, d)
		}
		return zero, ctx.Err()
	}
}
