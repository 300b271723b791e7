package agents

import (
	"context"
	"encoding/json"

	"github.com/elecmate/rams/internal/cache"
	"github.com/elecmate/rams/internal/db/models"
	"github.com/elecmate/rams/internal/logger"
)

// ResultCache is the partial cache as seen by an agent
type ResultCache interface {
	Check(ctx context.Context, key cache.Key) cache.CheckResult
	Store(ctx context.Context, key cache.Key, output json.RawMessage)
}

// CachedAgent serves an agent from the partial cache when a similar job was
// already generated, and stores fresh results for later jobs
type CachedAgent struct {
	agent Agent
	cache ResultCache
}

var _ Agent = (*CachedAgent)(nil)

// NewCachedAgent wraps agent with c. A nil cache returns agent unchanged.
func NewCachedAgent(agent Agent, c ResultCache) Agent {
	if c == nil {
		return agent
	}
	return &CachedAgent{agent: agent, cache: c}
}

// Type returns the wrapped agent's type
func (a *CachedAgent) Type() models.AgentType {
	return a.agent.Type()
}

// Generate returns a cached result on a hit and otherwise delegates. Cache
// problems never fail the call.
func (a *CachedAgent) Generate(ctx context.Context, in Input, progress ProgressFunc) (*Result, error) {
	key := cache.Key{
		Description: in.Query,
		WorkType:    in.WorkType,
		JobScale:    in.JobScale,
		Agent:       a.agent.Type(),
	}

	if hit := a.cache.Check(ctx, key); hit.Hit {
		result, err := DecodeResult(key.Agent, hit.Data)
		if err == nil {
			if err := reportProgress(ctx, progress, ProgressComplete, "Loaded from cache"); err != nil {
				return nil, err
			}
			result.FromCache = true
			return result, nil
		}
		logger.WarnWithFields("discarding unreadable cached output", map[string]interface{}{
			"agent": key.Agent.String(),
			"error": err.Error(),
		})
	}

	result, err := a.agent.Generate(ctx, in, progress)
	if err != nil {
		return nil, err
	}

	payload, err := result.Payload()
	if err != nil {
		logger.WarnWithFields("cannot cache agent output", map[string]interface{}{
			"agent": key.Agent.String(),
			"error": err.Error(),
		})
		return result, nil
	}
	a.cache.Store(ctx, key, payload)
	return result, nil
}
