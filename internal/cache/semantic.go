package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/answergrid/answergrid/internal/provider"
	"github.com/answergrid/answergrid/internal/qdrant"
)

// VectorStore is the slice of the vector client the semantic tier uses.
// *qdrant.Client satisfies it.
type VectorStore interface {
	EnsureCollection(ctx context.Context, cfg qdrant.CollectionConfig) error
	Search(ctx context.Context, collection string, req qdrant.SearchRequest) ([]qdrant.SearchResult, error)
	UpsertPoints(ctx context.Context, collection string, points []qdrant.Point) error
	DeletePoints(ctx context.Context, collection string, filter qdrant.DeleteFilter) error
}

// SemanticTier caches responses by query embedding, so a paraphrase of
// an answered question can hit without matching byte for byte. A stored
// entry is served only when cosine similarity meets the threshold and
// the entry is younger than the TTL.
type SemanticTier struct {
	embedder   provider.Embedder
	store      VectorStore
	collection string
	threshold  float32
	ttl        time.Duration
}

// NewSemanticTier creates the semantic cache tier. It ensures the
// backing collection exists before returning.
func NewSemanticTier(ctx context.Context, embedder provider.Embedder, store VectorStore, collection string, threshold float64, ttl time.Duration) (*SemanticTier, error) {
	err := store.EnsureCollection(ctx, qdrant.CollectionConfig{
		Name:              collection,
		VectorSize:        uint64(embedder.Dimension()),
		OnDiskPayload:     true,
		IndexingThreshold: 20000,
		IndexedFields:     []string{"namespace", "mode", "top_k"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure semantic cache collection: %w", err)
	}

	return &SemanticTier{
		embedder:   embedder,
		store:      store,
		collection: collection,
		threshold:  float32(threshold),
		ttl:        ttl,
	}, nil
}

// Name implements Tier.
func (t *SemanticTier) Name() string {
	return BackendSemantic
}

// Get implements Tier.
func (t *SemanticTier) Get(ctx context.Context, l Lookup) (*Entry, bool, error) {
	vector, err := t.embedder.Embed(ctx, l.Query)
	if err != nil {
		return nil, false, fmt.Errorf("failed to embed query for cache lookup: %w", err)
	}

	threshold := t.threshold
	results, err := t.store.Search(ctx, t.collection, qdrant.SearchRequest{
		Vector:         vector,
		Limit:          1,
		ScoreThreshold: &threshold,
		Filter: &qdrant.SearchFilter{
			Keywords: map[string]string{
				"namespace": l.Namespace,
				"mode":      l.Mode,
				"top_k":     strconv.Itoa(l.TopK),
			},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("semantic cache search failed: %w", err)
	}

	if len(results) == 0 {
		return nil, false, nil
	}

	hit := results[0]
	createdAt := time.Unix(qdrant.PayloadInt(hit.Payload, "created_at"), 0)
	if time.Since(createdAt) > t.ttl {
		// Expired entries are misses; the sweep reclaims them later
		return nil, false, nil
	}

	return &Entry{
		Data:      []byte(qdrant.PayloadString(hit.Payload, "data")),
		CreatedAt: createdAt,
	}, true, nil
}

// Put implements Tier.
func (t *SemanticTier) Put(ctx context.Context, l Lookup, e *Entry) error {
	vector, err := t.embedder.Embed(ctx, l.Query)
	if err != nil {
		return fmt.Errorf("failed to embed query for cache write: %w", err)
	}

	return t.store.UpsertPoints(ctx, t.collection, []qdrant.Point{{
		ID:     uuid.NewString(),
		Vector: vector,
		Payload: map[string]any{
			"namespace":  l.Namespace,
			"mode":       l.Mode,
			"top_k":      strconv.Itoa(l.TopK),
			"data":       string(e.Data),
			"created_at": e.CreatedAt.Unix(),
		},
	}})
}

// Sweep deletes entries older than the TTL. Expired entries are already
// invisible to Get, this just reclaims storage.
func (t *SemanticTier) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-t.ttl).Unix()
	return t.store.DeletePoints(ctx, t.collection, qdrant.DeleteFilter{
		CreatedBefore: cutoff,
	})
}

// Close implements Tier. The Qdrant client is shared with the retriever,
// so the tier does not close it.
func (t *SemanticTier) Close() error {
	return nil
}
