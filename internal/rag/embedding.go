package rag

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// MaxEmbeddingInputChars bounds the text sent to the embedding model
const MaxEmbeddingInputChars = 8000

// Embedder turns text into a vector. Unlike searches, failures are returned.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder for the given model. An empty model
// selects text-embedding-3-small.
func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	m := openai.SmallEmbedding3
	if model != "" {
		m = openai.EmbeddingModel(model)
	}
	return &OpenAIEmbedder{client: client, model: m}
}

// Embed returns the embedding for text truncated to MaxEmbeddingInputChars
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{TruncateInput(text)},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response contained no vector")
	}
	return resp.Data[0].Embedding, nil
}

// TruncateInput cuts text to MaxEmbeddingInputChars runes
func TruncateInput(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxEmbeddingInputChars {
		return text
	}
	return string(runes[:MaxEmbeddingInputChars])
}
