package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResilientSearcher(t *testing.T) {
	ctx := context.Background()
	docs := []Document{{ID: "1", Content: "Isolate the supply"}}

	tests := []struct {
		name string
		next Searcher
		want []Document
	}{
		{
			name: "passes results through",
			next: SearcherFunc(func(context.Context, string) ([]Document, error) { return docs, nil }),
			want: docs,
		},
		{
			name: "error becomes empty result",
			next: SearcherFunc(func(context.Context, string) ([]Document, error) {
				return nil, errors.New("connection refused")
			}),
			want: []Document{},
		},
		{
			name: "panic becomes empty result",
			next: SearcherFunc(func(context.Context, string) ([]Document, error) { panic("boom") }),
			want: []Document{},
		},
		{
			name: "nil result becomes empty slice",
			next: SearcherFunc(func(context.Context, string) ([]Document, error) { return nil, nil }),
			want: []Document{},
		},
		{
			name: "nil searcher",
			next: nil,
			want: []Document{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resilient(DomainRegulations, tt.next).Search(ctx, "consumer unit")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResilientDoesNotDoubleWrap(t *testing.T) {
	inner := Resilient(DomainPracticalWork, SearcherFunc(func(context.Context, string) ([]Document, error) {
		return nil, nil
	}))
	assert.Same(t, inner, Resilient(DomainPracticalWork, inner))
}

func TestSearchersResilient(t *testing.T) {
	failing := SearcherFunc(func(context.Context, string) ([]Document, error) {
		return nil, errors.New("down")
	})
	group := Searchers{HealthSafety: failing, Regulations: failing}.Resilient()

	for _, s := range []Searcher{group.HealthSafety, group.Regulations, group.PracticalWork, group.CodeIntelligence} {
		got, err := s.Search(context.Background(), "q")
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

type recordingHybrid struct {
	embedding []float32
	err       error
}

func (h *recordingHybrid) Search(context.Context, string) ([]Document, error) {
	return nil, errors.New("plain search not expected")
}

func (h *recordingHybrid) SearchHybrid(_ context.Context, _ string, embedding []float32) ([]Document, error) {
	h.embedding = embedding
	if h.err != nil {
		return nil, h.err
	}
	return []Document{{ID: "hs-1"}}, nil
}

func TestResilientForwardsEmbedding(t *testing.T) {
	inner := &recordingHybrid{}
	s := WithEmbedding(Resilient(DomainHealthSafety, inner), []float32{1, 2})

	got, err := s.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []Document{{ID: "hs-1"}}, got)
	assert.Equal(t, []float32{1, 2}, inner.embedding)

	inner.err = errors.New("rpc down")
	got, err = s.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWithEmbeddingLeavesPlainSearchers(t *testing.T) {
	plain := SearcherFunc(func(context.Context, string) ([]Document, error) {
		return []Document{{ID: "plain"}}, nil
	})
	got, err := WithEmbedding(plain, []float32{1}).Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "plain", got[0].ID)

	// a resilient wrapper around a plain searcher falls back to Search
	got, err = WithEmbedding(Resilient(DomainRegulations, plain), []float32{1}).Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "plain", got[0].ID)
}
