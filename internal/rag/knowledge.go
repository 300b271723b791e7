package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	fiber "github.com/gofiber/fiber/v2"
)

// Knowledge base RPC function names
const (
	rpcPath                    = "/rest/v1/rpc/"
	rpcHealthSafetyHybrid      = "search_health_safety_hybrid"
	rpcRegulationsHybrid       = "search_regulations_intelligence_hybrid"
	rpcPracticalWorkHybrid     = "search_practical_work_intelligence_hybrid"
	rpcCodeIntelligence        = "search_code_intelligence"
	defaultKnowledgeTimeout    = 20 * time.Second
	defaultKnowledgeMatchCount = 10
)

// KnowledgeOptions configures the knowledge base client
type KnowledgeOptions struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
}

// KnowledgeClient calls the knowledge base search functions over HTTP
type KnowledgeClient struct {
	baseURL  string
	key      string
	timeout  time.Duration
	embedder Embedder
}

// NewKnowledgeClient creates a knowledge base client. The embedder is used by
// the hybrid health and safety search.
func NewKnowledgeClient(opts KnowledgeOptions, embedder Embedder) (*KnowledgeClient, error) {
	if _, err := url.ParseRequestURI(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid knowledge base URL: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultKnowledgeTimeout
	}
	return &KnowledgeClient{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		key:      opts.ServiceKey,
		timeout:  opts.Timeout,
		embedder: embedder,
	}, nil
}

// Searchers returns the four domain searches with the same match count
func (c *KnowledgeClient) Searchers(matchCount int) Searchers {
	return Searchers{
		HealthSafety:     c.HealthSafety(matchCount),
		Regulations:      c.Regulations(matchCount),
		PracticalWork:    c.PracticalWork(matchCount),
		CodeIntelligence: c.CodeIntelligence(matchCount),
	}
}

// HealthSafety returns the hybrid vector and keyword health and safety search.
// The returned searcher is a HybridSearcher; its plain Search embeds the query
// itself and returns embedding failures as errors.
func (c *KnowledgeClient) HealthSafety(matchCount int) Searcher {
	return &healthSafetySearch{client: c, matchCount: matchCount}
}

type healthSafetySearch struct {
	client     *KnowledgeClient
	matchCount int
}

var _ HybridSearcher = (*healthSafetySearch)(nil)

func (s *healthSafetySearch) Search(ctx context.Context, query string) ([]Document, error) {
	if s.client.embedder == nil {
		return nil, fmt.Errorf("health and safety search requires an embedder")
	}
	embedding, err := s.client.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.SearchHybrid(ctx, query, embedding)
}

func (s *healthSafetySearch) SearchHybrid(ctx context.Context, query string, embedding []float32) ([]Document, error) {
	vec, err := json.Marshal(embedding)
	if err != nil {
		return nil, err
	}
	return s.client.rpc(ctx, rpcHealthSafetyHybrid, map[string]interface{}{
		"query_embedding": string(vec),
		"query_text":      query,
		"match_count":     matchCountOrDefault(s.matchCount),
	})
}

// Regulations returns the wiring regulations keyword search
func (c *KnowledgeClient) Regulations(matchCount int) Searcher {
	return c.textSearch(rpcRegulationsHybrid, matchCount)
}

// PracticalWork returns the installation practice search
func (c *KnowledgeClient) PracticalWork(matchCount int) Searcher {
	return c.textSearch(rpcPracticalWorkHybrid, matchCount)
}

// CodeIntelligence returns the regulation code intelligence search
func (c *KnowledgeClient) CodeIntelligence(matchCount int) Searcher {
	return c.textSearch(rpcCodeIntelligence, matchCount)
}

func (c *KnowledgeClient) textSearch(fn string, matchCount int) Searcher {
	return SearcherFunc(func(ctx context.Context, query string) ([]Document, error) {
		return c.rpc(ctx, fn, map[string]interface{}{
			"query_text":  query,
			"match_count": matchCountOrDefault(matchCount),
		})
	})
}

// rpc posts the arguments to a knowledge base function and decodes the rows
func (c *KnowledgeClient) rpc(ctx context.Context, fn string, args map[string]interface{}) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agent := fiber.Post(c.baseURL + rpcPath + fn)
	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	} else {
		agent.Timeout(c.timeout)
	}
	agent.Set("Content-Type", "application/json")
	agent.Set("Accept", "application/json")
	if c.key != "" {
		agent.Set("apikey", c.key)
		agent.Set("Authorization", "Bearer "+c.key)
	}
	agent.JSON(args)

	statusCode, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("error calling %s: %w", fn, errs[0])
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, &fiber.Error{Code: statusCode, Message: fmt.Sprintf("%s: %s", fn, string(body))}
	}

	var rows []knowledgeRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("error decoding %s response: %w", fn, err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.document())
	}
	return docs, nil
}

// knowledgeRow is the union of the columns returned by the search functions
type knowledgeRow struct {
	ID                anyString `json:"id"`
	RegulationID      anyString `json:"regulation_id"`
	PracticalWorkID   anyString `json:"practical_work_id"`
	Topic             string    `json:"topic"`
	PrimaryTopic      string    `json:"primary_topic"`
	Content           string    `json:"content"`
	Source            string    `json:"source"`
	RegulationNumber  string    `json:"regulation_number"`
	Category          string    `json:"category"`
	EquipmentCategory string    `json:"equipment_category"`
	HybridScore       float64   `json:"hybrid_score"`
}

func (r knowledgeRow) document() Document {
	doc := Document{
		ID:               firstNonEmpty(string(r.ID), string(r.RegulationID), string(r.PracticalWorkID)),
		Topic:            firstNonEmpty(r.Topic, r.PrimaryTopic),
		Content:          firstNonEmpty(r.Content, r.PrimaryTopic),
		Source:           r.Source,
		RegulationNumber: r.RegulationNumber,
		Category:         firstNonEmpty(r.Category, r.EquipmentCategory),
		Score:            r.HybridScore,
	}
	return doc
}

// anyString accepts a JSON string or number
type anyString string

func (s *anyString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = anyString(v)
		return nil
	}
	*s = anyString(data)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func matchCountOrDefault(n int) int {
	if n <= 0 {
		return defaultKnowledgeMatchCount
	}
	return n
}
