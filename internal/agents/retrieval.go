package agents

import (
	"context"
	"sync"

	"github.com/elecmate/rams/internal/rag"
)

// searchConcurrently runs every search in its own goroutine and returns the
// results in argument order. Searchers are expected to be resilient.
func searchConcurrently(ctx context.Context, query string, searchers ...rag.Searcher) [][]rag.Document {
	results := make([][]rag.Document, len(searchers))
	var wg sync.WaitGroup
	for i, s := range searchers {
		wg.Add(1)
		go func(i int, s rag.Searcher) {
			defer wg.Done()
			docs, err := s.Search(ctx, query)
			if err != nil || docs == nil {
				docs = []rag.Document{}
			}
			results[i] = docs
		}(i, s)
	}
	wg.Wait()
	return results
}
