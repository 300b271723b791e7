// Package cache reuses completed agent outputs for semantically similar jobs.
package cache

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/elecmate/rams/internal/db/models"
	"github.com/elecmate/rams/internal/logger"
	"github.com/elecmate/rams/internal/metrics"
	"github.com/elecmate/rams/internal/rag"
)

// Defaults for the partial cache
const (
	DefaultSimilarityThreshold = 0.88
	DefaultTTL                 = 30 * 24 * time.Hour
)

// Key identifies the lookup for one agent of one job
type Key struct {
	Description string
	WorkType    string
	JobScale    string
	Agent       models.AgentType
}

// CheckResult is the outcome of a lookup. Data is only set on a hit.
type CheckResult struct {
	Hit        bool
	Data       json.RawMessage
	HitCount   int
	Similarity float64
}

// Repository is the persistence the cache needs
type Repository interface {
	Create(ctx context.Context, entry *models.PartialCacheEntry) error
	Candidates(ctx context.Context, workType, jobScale string, agentType models.AgentType, now time.Time) ([]models.PartialCacheEntry, error)
	RecordHit(ctx context.Context, id uint, now time.Time) (int, error)
}

// Options configures the partial cache
type Options struct {
	SimilarityThreshold float64
	TTL                 time.Duration
}

// PartialCache looks up and stores agent outputs by description similarity
// within the same work type, job scale and agent type.
type PartialCache struct {
	repo      Repository
	embedder  rag.Embedder
	threshold float64
	ttl       time.Duration
	now       func() time.Time
}

// New creates a partial cache. Zero options fall back to the defaults.
func New(repo Repository, embedder rag.Embedder, opts Options) *PartialCache {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &PartialCache{
		repo:      repo,
		embedder:  embedder,
		threshold: opts.SimilarityThreshold,
		ttl:       opts.TTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Check returns the most similar unexpired entry at or above the threshold.
// Every failure is reported as a miss.
func (c *PartialCache) Check(ctx context.Context, key Key) CheckResult {
	agent := key.Agent.String()
	embedding, err := c.embedder.Embed(ctx, key.Description)
	if err != nil {
		c.lookupFailed(agent, "embed", err)
		return CheckResult{}
	}

	now := c.now()
	candidates, err := c.repo.Candidates(ctx, key.WorkType, key.JobScale, key.Agent, now)
	if err != nil {
		c.lookupFailed(agent, "candidates", err)
		return CheckResult{}
	}

	var best *models.PartialCacheEntry
	bestScore := -1.0
	for i := range candidates {
		entry := &candidates[i]
		if entry.Expired(now) || len(entry.Output) == 0 {
			continue
		}
		score := CosineSimilarity(embedding, entry.Embedding)
		if score > bestScore {
			best, bestScore = entry, score
		}
	}

	if best == nil || bestScore < c.threshold {
		metrics.IncreaseCacheLookup(agent, metrics.CacheResultMiss)
		return CheckResult{Similarity: math.Max(bestScore, 0)}
	}

	hits, err := c.repo.RecordHit(ctx, best.ID, now)
	if err != nil {
		c.lookupFailed(agent, "record_hit", err)
		return CheckResult{}
	}

	metrics.IncreaseCacheLookup(agent, metrics.CacheResultHit)
	logger.InfoWithFields("partial cache hit", map[string]interface{}{
		"agent":      agent,
		"entry_id":   best.ID,
		"similarity": bestScore,
		"hit_count":  hits,
	})
	return CheckResult{Hit: true, Data: best.Output, HitCount: hits, Similarity: bestScore}
}

// Store saves a completed agent output. Empty outputs are ignored and
// failures are only logged.
func (c *PartialCache) Store(ctx context.Context, key Key, output json.RawMessage) {
	if len(output) == 0 || string(output) == "null" {
		return
	}

	embedding, err := c.embedder.Embed(ctx, key.Description)
	if err != nil {
		logger.WarnWithFields("partial cache store skipped", map[string]interface{}{
			"agent": key.Agent.String(),
			"error": err.Error(),
		})
		return
	}

	now := c.now()
	entry := &models.PartialCacheEntry{
		AgentType:      key.Agent,
		WorkType:       key.WorkType,
		JobScale:       key.JobScale,
		JobDescription: key.Description,
		Embedding:      models.Vector(embedding),
		Output:         output,
		CreatedAt:      now,
		ExpiresAt:      now.Add(c.ttl),
	}
	if err := c.repo.Create(ctx, entry); err != nil {
		logger.WarnWithFields("partial cache store failed", map[string]interface{}{
			"agent": key.Agent.String(),
			"error": err.Error(),
		})
	}
}

func (c *PartialCache) lookupFailed(agent, stage string, err error) {
	metrics.IncreaseCacheLookup(agent, metrics.CacheResultError)
	logger.WarnWithFields("partial cache lookup degraded to miss", map[string]interface{}{
		"agent": agent,
		"stage": stage,
		"error": err.Error(),
	})
}

// CosineSimilarity returns the cosine of the angle between a and b. Vectors of
// different length or with zero magnitude have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
