// Package retrieval defines the document-search capability Retrieval
// nodes consume.
package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// Passage is one retrieved chunk of text with its relevance score and
// the identifier of the document it came from.
type Passage struct {
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	SourceID string  `json:"sourceId"`
}

// Retriever searches an index for passages relevant to a query, returning
// at most topK results ordered by descending score. Ties break on
// ascending SourceID so result order is stable.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Passage, error)
}

// ErrNoRetriever is returned by executors when a graph uses Retrieval
// nodes but no Retriever was configured on the engine.
var ErrNoRetriever = errors.New("no retriever configured")

// MemoryIndex is an in-process lexical Retriever. Documents are scored by
// term overlap with the query: the fraction of distinct query terms that
// appear in the document. It is intended for examples and tests, not as a
// serious search backend.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs []indexedDoc
}

type indexedDoc struct {
	id    string
	text  string
	terms map[string]bool
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Add indexes one document under the given ID.
func (m *MemoryIndex) Add(id, text string) {
	terms := make(map[string]bool)
	for _, t := range tokenize(text) {
		terms[t] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, indexedDoc{id: id, text: text, terms: terms})
}

// Len returns the number of indexed documents.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Retrieve scores every document against the query and returns the topK
// best matches. Documents with no overlapping terms are omitted.
func (m *MemoryIndex) Retrieve(ctx context.Context, query string, topK int) ([]Passage, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if topK <= 0 {
		return []Passage{}, nil
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return []Passage{}, nil
	}
	distinct := make(map[string]bool, len(queryTerms))
	for _, t := range queryTerms {
		distinct[t] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	passages := make([]Passage, 0, len(m.docs))
	for _, doc := range m.docs {
		matched := 0
		for term := range distinct {
			if doc.terms[term] {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		passages = append(passages, Passage{
			Text:     doc.text,
			Score:    float64(matched) / float64(len(distinct)),
			SourceID: doc.id,
		})
	}

	sort.Slice(passages, func(i, j int) bool {
		if passages[i].Score != passages[j].Score {
			return passages[i].Score > passages[j].Score
		}
		return passages[i].SourceID < passages[j].SourceID
	})

	if len(passages) > topK {
		passages = passages[:topK]
	}
	return passages, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}
