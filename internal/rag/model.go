package rag

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Message roles
const (
	RoleSystem = openai.ChatMessageRoleSystem
	RoleUser   = openai.ChatMessageRoleUser
)

// Message is one chat message sent to the model
type Message struct {
	Role    string
	Content string
}

// Tool is the single function the model is forced to call. Schema is a JSON
// schema document describing the arguments.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ModelRequest is a structured generation request
type ModelRequest struct {
	Messages  []Message
	Tool      Tool
	MaxTokens int
}

// ModelInvoker returns the raw arguments of the forced tool call
type ModelInvoker interface {
	Invoke(ctx context.Context, req ModelRequest) (json.RawMessage, error)
}

// InvokerOptions configures the OpenAI invoker
type InvokerOptions struct {
	Model             string
	MaxTokens         int
	RequestsPerMinute int
}

// OpenAIInvoker calls the chat completions endpoint with a forced tool choice
type OpenAIInvoker struct {
	client    *openai.Client
	model     string
	maxTokens int
	limiter   *rate.Limiter
}

var _ ModelInvoker = (*OpenAIInvoker)(nil)

// NewOpenAIInvoker creates an invoker. Requests are paced by a limiter built
// from RequestsPerMinute; zero disables pacing.
func NewOpenAIInvoker(client *openai.Client, opts InvokerOptions) *OpenAIInvoker {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		burst := opts.RequestsPerMinute / 10
		if burst < 2 {
			burst = 2
		}
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), burst)
	}
	return &OpenAIInvoker{
		client:    client,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		limiter:   limiter,
	}
}

// NewOpenAIClient builds the shared OpenAI client. An empty baseURL keeps the
// library default.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// Invoke sends the request and returns the tool call arguments
func (i *OpenAIInvoker) Invoke(ctx context.Context, req ModelRequest) (json.RawMessage, error) {
	if err := i.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = i.maxTokens
	}

	resp, err := i.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     i.model,
		Messages:  messages,
		MaxTokens: maxTokens,
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        req.Tool.Name,
				Description: req.Tool.Description,
				Parameters:  req.Tool.Schema,
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: req.Tool.Name},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}

	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, ErrNoStructuredResult
	}
	args := resp.Choices[0].Message.ToolCalls[0].Function.Arguments
	if args == "" {
		return nil, ErrNoStructuredResult
	}
	if !json.Valid([]byte(args)) {
		return nil, fmt.Errorf("%w: tool arguments are not valid JSON", ErrNoStructuredResult)
	}
	return json.RawMessage(args), nil
}
