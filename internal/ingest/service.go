// Package ingest chunks, embeds, and indexes documents into a tenant's
// collection.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/answergrid/answergrid/internal/bus"
	"github.com/answergrid/answergrid/internal/config"
	"github.com/answergrid/answergrid/internal/metrics"
	"github.com/answergrid/answergrid/internal/pkg/errors"
	"github.com/answergrid/answergrid/internal/pkg/hash"
	"github.com/answergrid/answergrid/internal/pkg/logger"
	"github.com/answergrid/answergrid/internal/provider"
	"github.com/answergrid/answergrid/internal/qdrant"
)

// Document is one document to ingest.
type Document struct {
	// ID identifies the document. Derived from the content hash when
	// empty, so re-ingesting identical content is idempotent.
	ID string `json:"id,omitempty"`

	// Title is the document title.
	Title string `json:"title,omitempty"`

	// Source names where the document came from.
	Source string `json:"source,omitempty"`

	// Content is the full document text.
	Content string `json:"content"`
}

// Result summarizes one ingestion call.
type Result struct {
	// Documents is how many documents were indexed.
	Documents int `json:"documents"`

	// Chunks is how many chunks were written.
	Chunks int `json:"chunks"`

	// Skipped is how many documents had no indexable content.
	Skipped int `json:"skipped"`
}

// Store is the slice of the vector store ingestion needs.
// *qdrant.Client satisfies it.
type Store interface {
	EnsureCollection(ctx context.Context, cfg qdrant.CollectionConfig) error
	UpsertPointsBatch(ctx context.Context, collection string, points []qdrant.Point, batchSize int) error
	DeletePoints(ctx context.Context, collection string, filter qdrant.DeleteFilter) error
}

// Service ingests documents.
type Service struct {
	chunker  *SentenceChunker
	embedder provider.Embedder
	store    Store
	bus      bus.Bus
	workers  int
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// NewService creates an ingestion service.
func NewService(cfg config.IngestConfig, embedder provider.Embedder, store Store, b bus.Bus, log *logger.Logger, m *metrics.Metrics) *Service {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	return &Service{
		chunker:  NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences),
		embedder: embedder,
		store:    store,
		bus:      b,
		workers:  workers,
		log:      log,
		metrics:  m,
	}
}

// Ingest indexes documents into the namespace's collection. Documents
// are processed concurrently; the first failure cancels the rest.
func (s *Service) Ingest(ctx context.Context, namespace string, docs []Document) (*Result, error) {
	if len(docs) == 0 {
		return nil, errors.ValidationError("no documents provided")
	}

	err := s.store.EnsureCollection(ctx, qdrant.DefaultCollectionConfig(namespace, uint64(s.embedder.Dimension())))
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to ensure collection", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	results := make([]int, len(docs)) // chunks per doc, -1 for skipped
	for i, doc := range docs {
		g.Go(func() error {
			chunks, err := s.ingestOne(gctx, namespace, doc)
			if err != nil {
				return err
			}
			results[i] = chunks
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{}
	for _, chunks := range results {
		if chunks < 0 {
			result.Skipped++
			continue
		}
		result.Documents++
		result.Chunks += chunks
	}

	if s.metrics != nil {
		s.metrics.IngestedDocuments.Add(int64(result.Documents))
		s.metrics.IngestedChunks.Add(int64(result.Chunks))
	}

	s.log.WithContext(ctx).Info("ingestion complete",
		"namespace", namespace,
		"documents", result.Documents,
		"chunks", result.Chunks,
		"skipped", result.Skipped)

	return result, nil
}

// ingestOne indexes a single document and returns its chunk count, or
// -1 when the document had no content.
func (s *Service) ingestOne(ctx context.Context, namespace string, doc Document) (int, error) {
	chunks := s.chunker.Chunk(doc.Content)
	if len(chunks) == 0 {
		return -1, nil
	}

	contentHash := hash.SHA256String(doc.Content)
	docID := doc.ID
	if docID == "" {
		docID = hash.DocumentID(namespace, contentHash)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, errors.Wrap(errors.CodeUnavailable, "failed to embed chunks", err)
	}

	// Replace any previous version of this document
	err = s.store.DeletePoints(ctx, namespace, qdrant.DeleteFilter{DocID: docID})
	if err != nil && !qdrant.IsNotFound(err) {
		s.log.WithError(err).Warn("failed to delete previous document version", "doc_id", docID)
	}

	points := make([]qdrant.Point, len(chunks))
	now := time.Now().Unix()
	for i, c := range chunks {
		points[i] = qdrant.Point{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: map[string]any{
				"doc_id":       docID,
				"title":        doc.Title,
				"source":       doc.Source,
				"text":         c.Text,
				"chunk_index":  c.Index,
				"content_hash": contentHash,
				"created_at":   now,
			},
		}
	}

	if err := s.store.UpsertPointsBatch(ctx, namespace, points, 100); err != nil {
		return 0, errors.Wrap(errors.CodeUnavailable, "failed to index chunks", err)
	}

	s.publishIngested(ctx, namespace, docID, len(chunks))

	return len(chunks), nil
}

func (s *Service) publishIngested(ctx context.Context, namespace, docID string, chunks int) {
	if s.bus == nil {
		return
	}

	event := bus.Event{
		ID:        uuid.NewString(),
		Type:      bus.TopicDocumentIngested,
		Source:    "answergrid",
		Timestamp: time.Now().Unix(),
		Payload: map[string]any{
			"namespace": namespace,
			"docId":     docID,
			"chunks":    chunks,
		},
	}

	if err := s.bus.Publish(ctx, bus.TopicDocumentIngested, event); err != nil {
		s.log.WithError(err).Warn("failed to publish ingest event")
		if s.metrics != nil {
			s.metrics.BusErrors.WithLabels(bus.TopicDocumentIngested).Inc()
		}
		return
	}

	if s.metrics != nil {
		s.metrics.BusEventsPublished.WithLabels(bus.TopicDocumentIngested).Inc()
	}
}
