package cache

import (
	"context"
	"testing"
	"time"

	"github.com/answergrid/answergrid/internal/qdrant"
)

// constEmbedder returns the same vector for every text.
type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (e constEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i], _ = e.Embed(ctx, texts[i])
	}
	return out, nil
}

func (constEmbedder) Dimension() int { return 3 }

// fakeVectorStore scripts search results and records calls.
type fakeVectorStore struct {
	results    []qdrant.SearchResult
	ensured    []qdrant.CollectionConfig
	upserted   []qdrant.Point
	lastSearch qdrant.SearchRequest
	deletes    []qdrant.DeleteFilter
}

func (s *fakeVectorStore) EnsureCollection(ctx context.Context, cfg qdrant.CollectionConfig) error {
	s.ensured = append(s.ensured, cfg)
	return nil
}

func (s *fakeVectorStore) Search(ctx context.Context, collection string, req qdrant.SearchRequest) ([]qdrant.SearchResult, error) {
	s.lastSearch = req
	return s.results, nil
}

func (s *fakeVectorStore) UpsertPoints(ctx context.Context, collection string, points []qdrant.Point) error {
	s.upserted = append(s.upserted, points...)
	return nil
}

func (s *fakeVectorStore) DeletePoints(ctx context.Context, collection string, filter qdrant.DeleteFilter) error {
	s.deletes = append(s.deletes, filter)
	return nil
}

func newSemanticFixture(t *testing.T, store *fakeVectorStore, ttl time.Duration) *SemanticTier {
	t.Helper()

	tier, err := NewSemanticTier(context.Background(), constEmbedder{}, store, "semantic_cache", 0.92, ttl)
	if err != nil {
		t.Fatalf("NewSemanticTier() error = %v", err)
	}
	return tier
}

func cachedResult(data string, createdAt time.Time) qdrant.SearchResult {
	return qdrant.SearchResult{
		ID:    "pt",
		Score: 0.97,
		Payload: map[string]any{
			"data":       data,
			"created_at": createdAt.Unix(),
		},
	}
}

func TestSemanticTierHit(t *testing.T) {
	store := &fakeVectorStore{
		results: []qdrant.SearchResult{cachedResult(`{"answer":"x"}`, time.Now())},
	}
	tier := newSemanticFixture(t, store, time.Hour)

	entry, ok, err := tier.Get(context.Background(), Lookup{
		Query: "what is gdpr", TopK: 5, Mode: "answer", Namespace: "acme",
	})
	if err != nil || !ok {
		t.Fatalf("Get() = ok=%v err=%v, want hit", ok, err)
	}
	if string(entry.Data) != `{"answer":"x"}` {
		t.Errorf("Data = %s", entry.Data)
	}

	// The lookup must be scoped to the exact namespace, mode, and depth
	keywords := store.lastSearch.Filter.Keywords
	if keywords["namespace"] != "acme" || keywords["mode"] != "answer" || keywords["top_k"] != "5" {
		t.Errorf("filter keywords = %v", keywords)
	}
	if store.lastSearch.ScoreThreshold == nil || *store.lastSearch.ScoreThreshold != 0.92 {
		t.Errorf("score threshold = %v, want 0.92", store.lastSearch.ScoreThreshold)
	}
	if store.lastSearch.Limit != 1 {
		t.Errorf("limit = %d, want 1", store.lastSearch.Limit)
	}
}

func TestSemanticTierExpiredEntryIsMiss(t *testing.T) {
	// Above threshold but older than the TTL
	store := &fakeVectorStore{
		results: []qdrant.SearchResult{cachedResult(`{"answer":"stale"}`, time.Now().Add(-2*time.Hour))},
	}
	tier := newSemanticFixture(t, store, time.Hour)

	_, ok, err := tier.Get(context.Background(), Lookup{Query: "q", TopK: 5, Mode: "answer", Namespace: "acme"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("entry past its TTL must be a miss")
	}
}

func TestSemanticTierNoNeighborIsMiss(t *testing.T) {
	tier := newSemanticFixture(t, &fakeVectorStore{}, time.Hour)

	_, ok, err := tier.Get(context.Background(), Lookup{Query: "q", TopK: 5, Mode: "answer", Namespace: "acme"})
	if err != nil || ok {
		t.Errorf("Get() = ok=%v err=%v, want clean miss", ok, err)
	}
}

func TestSemanticTierPut(t *testing.T) {
	store := &fakeVectorStore{}
	tier := newSemanticFixture(t, store, time.Hour)

	created := time.Now()
	err := tier.Put(context.Background(), Lookup{
		Query: "q", TopK: 3, Mode: "retrieval", Namespace: "acme",
	}, &Entry{Data: []byte("payload"), CreatedAt: created})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if len(store.upserted) != 1 {
		t.Fatalf("upserted = %d points, want 1", len(store.upserted))
	}
	p := store.upserted[0].Payload
	if p["namespace"] != "acme" || p["mode"] != "retrieval" || p["top_k"] != "3" {
		t.Errorf("payload = %v", p)
	}
	if p["data"] != "payload" || p["created_at"] != created.Unix() {
		t.Errorf("payload = %v", p)
	}
}

func TestSemanticTierSweep(t *testing.T) {
	store := &fakeVectorStore{}
	tier := newSemanticFixture(t, store, time.Hour)

	if err := tier.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	if len(store.deletes) != 1 {
		t.Fatalf("deletes = %d, want 1", len(store.deletes))
	}
	cutoff := store.deletes[0].CreatedBefore
	wantCutoff := time.Now().Add(-time.Hour).Unix()
	if cutoff < wantCutoff-2 || cutoff > wantCutoff+2 {
		t.Errorf("cutoff = %d, want about %d", cutoff, wantCutoff)
	}
}
