package retrieval

import (
	"context"
	"sync"
)

// MockRetriever is a scriptable Retriever for tests. Every call returns
// Passages (truncated to topK) or Err. Queries records each query.
type MockRetriever struct {
	Passages []Passage
	Err      error

	mu      sync.Mutex
	Queries []string
}

// Retrieve records the query and returns the scripted passages.
func (m *MockRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Passage, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.Lock()
	m.Queries = append(m.Queries, query)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	passages := m.Passages
	if topK >= 0 && len(passages) > topK {
		passages = passages[:topK]
	}
	return passages, nil
}

// CallCount returns how many times Retrieve has been called.
func (m *MockRetriever) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Queries)
}
