package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/elecmate/rams/internal/rag"
)

// fakeInvoker returns a canned response and records the requests it saw
type fakeInvoker struct {
	mu       sync.Mutex
	response json.RawMessage
	err      error
	requests []rag.ModelRequest
}

func (f *fakeInvoker) Invoke(_ context.Context, req rag.ModelRequest) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.response, f.err
}

func (f *fakeInvoker) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// countingSearcher returns docs and counts calls
type countingSearcher struct {
	mu    sync.Mutex
	docs  []rag.Document
	err   error
	count int
}

func (s *countingSearcher) Search(context.Context, string) ([]rag.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return s.docs, s.err
}

func (s *countingSearcher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// fakeEmbedder returns a fixed vector or an error
type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

// hybridSearcher records the embedding it was handed
type hybridSearcher struct {
	countingSearcher
	embedding []float32
}

func (s *hybridSearcher) SearchHybrid(ctx context.Context, query string, embedding []float32) ([]rag.Document, error) {
	s.mu.Lock()
	s.embedding = embedding
	s.mu.Unlock()
	return s.Search(ctx, query)
}

// progressRecorder collects progress reports and can fail at a given percent
type progressRecorder struct {
	mu       sync.Mutex
	percents []int
	failAt   int
	err      error
}

func (p *progressRecorder) report(_ context.Context, percent int, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.percents = append(p.percents, percent)
	if p.failAt != 0 && percent == p.failAt {
		return p.err
	}
	return nil
}

func docs(n int, prefix string) []rag.Document {
	out := make([]rag.Document, n)
	for i := range out {
		out[i] = rag.Document{ID: fmt.Sprintf("%s-%d", prefix, i), Topic: prefix, Content: "content"}
	}
	return out
}

func hazardFixture(i int) map[string]interface{} {
	return map[string]interface{}{
		"id":             fmt.Sprintf("hazard-%d", i+1),
		"hazard":         fmt.Sprintf("Hazard %d", i+1),
		"linkedToStep":   i,
		"likelihood":     3,
		"severity":       4,
		"riskScore":      12,
		"riskLevel":      RiskHigh,
		"controlMeasure": "Safe isolation to GS38",
		"residualRisk":   4,
	}
}

func healthSafetyFixture(hazards, ppe, emergency int) map[string]interface{} {
	hz := make([]interface{}, hazards)
	for i := range hz {
		hz[i] = hazardFixture(i)
	}
	items := make([]interface{}, ppe)
	for i := range items {
		items[i] = map[string]interface{}{
			"itemNumber": i + 1,
			"ppeType":    "Insulated gloves",
			"standard":   "BS EN 60903",
			"mandatory":  true,
			"purpose":    "Protection against electric shock",
		}
	}
	procs := make([]interface{}, emergency)
	for i := range procs {
		procs[i] = fmt.Sprintf("Emergency procedure %d", i+1)
	}
	return map[string]interface{}{
		"summary":               "Risk assessment",
		"hazards":               hz,
		"ppe":                   items,
		"emergencyProcedures":   procs,
		"complianceRegulations": []interface{}{"EAWR 1989"},
	}
}

func installerFixture(steps, tests int) map[string]interface{} {
	st := make([]interface{}, steps)
	for i := range st {
		st[i] = map[string]interface{}{
			"stepNumber":    (i + 1) * 10,
			"title":         fmt.Sprintf("Step %d", i+1),
			"description":   "Carry out the work",
			"tools":         []interface{}{"Screwdriver"},
			"materials":     []interface{}{"6242Y cable"},
			"safetyNotes":   []interface{}{"Prove dead before work"},
			"linkedHazards": []interface{}{"hazard-1"},
		}
	}
	tp := make([]interface{}, tests)
	for i := range tp {
		tp[i] = map[string]interface{}{
			"name":           fmt.Sprintf("Test %d", i+1),
			"standard":       "BS 7671 Part 6",
			"expectedResult": "Within limits",
		}
	}
	return map[string]interface{}{
		"summary":           "Method statement",
		"steps":             st,
		"testingProcedures": tp,
		"toolsRequired":     []interface{}{"Multifunction tester"},
	}
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
