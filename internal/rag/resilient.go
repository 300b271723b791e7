package rag

import (
	"context"
	"fmt"

	"github.com/elecmate/rams/internal/logger"
)

type resilientSearcher struct {
	domain Domain
	next   Searcher
}

var _ HybridSearcher = (*resilientSearcher)(nil)

// Resilient returns a Searcher that never fails. Errors and panics from next
// are logged and turned into an empty result. A nil next always returns an
// empty result. Hybrid searches stay hybrid through the wrapper.
func Resilient(domain Domain, next Searcher) Searcher {
	if r, ok := next.(*resilientSearcher); ok {
		return r
	}
	return &resilientSearcher{domain: domain, next: next}
}

func (r *resilientSearcher) Search(ctx context.Context, query string) ([]Document, error) {
	return r.guard(func() ([]Document, error) {
		return r.next.Search(ctx, query)
	})
}

// SearchHybrid forwards the embedding when next is hybrid and falls back to
// a plain search otherwise
func (r *resilientSearcher) SearchHybrid(ctx context.Context, query string, embedding []float32) ([]Document, error) {
	return r.guard(func() ([]Document, error) {
		if h, ok := r.next.(HybridSearcher); ok {
			return h.SearchHybrid(ctx, query, embedding)
		}
		return r.next.Search(ctx, query)
	})
}

func (r *resilientSearcher) guard(search func() ([]Document, error)) (docs []Document, err error) {
	if r.next == nil {
		return []Document{}, nil
	}

	defer func() {
		if p := recover(); p != nil {
			logger.WarnWithFields("knowledge search panicked", map[string]interface{}{
				"domain": r.domain,
				"panic":  fmt.Sprint(p),
			})
			docs, err = []Document{}, nil
		}
	}()

	docs, err = search()
	if err != nil {
		logger.WarnWithFields("knowledge search failed", map[string]interface{}{
			"domain": r.domain,
			"error":  err.Error(),
		})
		return []Document{}, nil
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}
