package retrieval

import (
	"context"
	"fmt"

	"invoicerag/internal/core"
	"invoicerag/internal/vectorindex"
)

// Engine turns a natural-language query plus optional structured filters
// into ranked grounding context from the vector index.
type Engine struct {
	embedder core.EmbeddingProvider
	index    *vectorindex.Index
}

func NewEngine(embedder core.EmbeddingProvider, index *vectorindex.Index) *Engine {
	return &Engine{embedder: embedder, index: index}
}

// Retrieve embeds the query, normalizes it and delegates to the index. An
// empty corpus or zero matching records yields an empty slice, not an error;
// the caller is responsible for answering "no grounding context" honestly.
func (e *Engine) Retrieve(ctx context.Context, queryText string, k int, filters *Filters) ([]vectorindex.SearchResult, error) {
	vecs, err := e.embedder.EmbedTexts(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors, want 1", len(vecs))
	}
	query := vectorindex.Normalize(vecs[0])

	results, err := e.index.Search(query, k, filters.Predicate())
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}
