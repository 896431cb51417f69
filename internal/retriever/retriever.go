// Package retriever turns a query into scored passages from the
// tenant's document collection.
package retriever

import (
	"context"
	"time"

	"github.com/answergrid/answergrid/internal/config"
	"github.com/answergrid/answergrid/internal/metrics"
	"github.com/answergrid/answergrid/internal/pkg/errors"
	"github.com/answergrid/answergrid/internal/pkg/logger"
	"github.com/answergrid/answergrid/internal/provider"
	"github.com/answergrid/answergrid/internal/qdrant"
)

// Passage is one retrieved chunk with provenance.
type Passage struct {
	// ID is the chunk's point ID.
	ID string `json:"id"`

	// DocID identifies the source document.
	DocID string `json:"docId"`

	// Title is the source document title.
	Title string `json:"title,omitempty"`

	// Source is where the document came from.
	Source string `json:"source,omitempty"`

	// Text is the passage content.
	Text string `json:"text"`

	// ChunkIndex is the passage's position within its document.
	ChunkIndex int `json:"chunkIndex"`

	// Score is the cosine similarity to the query.
	Score float32 `json:"score"`
}

// Searcher is the slice of the vector store the retriever needs.
// *qdrant.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, collection string, req qdrant.SearchRequest) ([]qdrant.SearchResult, error)
}

// Retriever embeds queries and searches the vector store.
type Retriever struct {
	embedder provider.Embedder
	store    Searcher
	minScore float32
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// New creates a retriever.
func New(embedder provider.Embedder, store Searcher, cfg config.RetrievalConfig, log *logger.Logger, m *metrics.Metrics) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		minScore: float32(cfg.MinScore),
		log:      log,
		metrics:  m,
	}
}

// Retrieve returns up to topK passages from the namespace's collection,
// best first. No matching passages is a valid empty result, not an
// error; only embedding or search failures are reported, as retrieval
// errors so the handler can map them to an upstream failure status.
func (r *Retriever) Retrieve(ctx context.Context, namespace, query string, topK int) ([]Passage, error) {
	start := time.Now()

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.RetrievalError("failed to embed query", err)
	}

	req := qdrant.SearchRequest{
		Vector: vector,
		Limit:  uint64(topK),
	}
	if r.minScore > 0 {
		threshold := r.minScore
		req.ScoreThreshold = &threshold
	}

	results, err := r.store.Search(ctx, namespace, req)
	if err != nil {
		if qdrant.IsNotFound(err) {
			// Namespace has no collection yet: nothing ingested, so
			// nothing to retrieve
			r.observe(start, 0)
			return []Passage{}, nil
		}
		return nil, errors.RetrievalError("vector search failed", err)
	}

	passages := make([]Passage, 0, len(results))
	for _, res := range results {
		passages = append(passages, Passage{
			ID:         res.ID,
			DocID:      qdrant.PayloadString(res.Payload, "doc_id"),
			Title:      qdrant.PayloadString(res.Payload, "title"),
			Source:     qdrant.PayloadString(res.Payload, "source"),
			Text:       qdrant.PayloadString(res.Payload, "text"),
			ChunkIndex: int(qdrant.PayloadInt(res.Payload, "chunk_index")),
			Score:      res.Score,
		})
	}

	r.observe(start, len(passages))
	r.log.WithContext(ctx).Debug("retrieval complete",
		"namespace", namespace, "passages", len(passages))

	return passages, nil
}

func (r *Retriever) observe(start time.Time, count int) {
	if r.metrics == nil {
		return
	}
	r.metrics.RetrievalLatency.Observe(float64(time.Since(start).Milliseconds()))
	r.metrics.RetrievedPassages.Observe(float64(count))
}
