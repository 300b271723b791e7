// Package rag provides access to the knowledge base searches, the embedding
// service and structured model invocation.
package rag

import (
	"context"
	"errors"
)

// Domain names one knowledge base search
type Domain string

// Knowledge domains
const (
	DomainHealthSafety     Domain = "health_safety"
	DomainRegulations      Domain = "regulations"
	DomainPracticalWork    Domain = "practical_work"
	DomainCodeIntelligence Domain = "code_intelligence"
)

// ErrNoStructuredResult is returned when the model answers without calling the forced tool
var ErrNoStructuredResult = errors.New("model returned no structured result")

// Document is one retrieved knowledge base record
type Document struct {
	ID               string  `json:"id,omitempty"`
	Topic            string  `json:"topic,omitempty"`
	Content          string  `json:"content"`
	Source           string  `json:"source,omitempty"`
	RegulationNumber string  `json:"regulation_number,omitempty"`
	Category         string  `json:"category,omitempty"`
	Score            float64 `json:"score,omitempty"`
}

// Searcher runs one domain search for a free-text query
type Searcher interface {
	Search(ctx context.Context, query string) ([]Document, error)
}

// SearcherFunc adapts a function to the Searcher interface
type SearcherFunc func(ctx context.Context, query string) ([]Document, error)

// Search calls f(ctx, query)
func (f SearcherFunc) Search(ctx context.Context, query string) ([]Document, error) {
	return f(ctx, query)
}

// HybridSearcher is a Searcher that can also run with a precomputed query
// embedding, so the caller owns the embedding call and its failure.
type HybridSearcher interface {
	Searcher
	SearchHybrid(ctx context.Context, query string, embedding []float32) ([]Document, error)
}

// WithEmbedding binds embedding to s. Searchers that are not hybrid, and a
// nil embedding, return s unchanged.
func WithEmbedding(s Searcher, embedding []float32) Searcher {
	h, ok := s.(HybridSearcher)
	if !ok || embedding == nil {
		return s
	}
	return SearcherFunc(func(ctx context.Context, query string) ([]Document, error) {
		return h.SearchHybrid(ctx, query, embedding)
	})
}

// Searchers groups the four domain searches used by the agents
type Searchers struct {
	HealthSafety     Searcher
	Regulations      Searcher
	PracticalWork    Searcher
	CodeIntelligence Searcher
}

// Resilient wraps every searcher in the group with the never-failing decorator
func (s Searchers) Resilient() Searchers {
	return Searchers{
		HealthSafety:     Resilient(DomainHealthSafety, s.HealthSafety),
		Regulations:      Resilient(DomainRegulations, s.Regulations),
		PracticalWork:    Resilient(DomainPracticalWork, s.PracticalWork),
		CodeIntelligence: Resilient(DomainCodeIntelligence, s.CodeIntelligence),
	}
}
