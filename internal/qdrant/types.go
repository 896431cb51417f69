// Package qdrant wraps the Qdrant Go client with simplified APIs for
// AnswerGrid collections. Each tenant namespace maps to one collection,
// and the semantic answer cache lives in its own collection.
package qdrant

// CollectionConfig defines the configuration for creating a collection.
type CollectionConfig struct {
	// Name is the collection name (will be prefixed, e.g. "ag_").
	Name string

	// VectorSize is the embedding dimension (e.g., 1536).
	VectorSize uint64

	// OnDiskPayload stores payload on disk to save RAM.
	OnDiskPayload bool

	// IndexingThreshold is the number of vectors before the HNSW index is built.
	IndexingThreshold uint64

	// IndexedFields are keyword payload fields to index for filtering.
	IndexedFields []string
}

// DefaultCollectionConfig returns sensible defaults for a passage collection.
func DefaultCollectionConfig(name string, vectorSize uint64) CollectionConfig {
	return CollectionConfig{
		Name:              name,
		VectorSize:        vectorSize,
		OnDiskPayload:     true,
		IndexingThreshold: 20000,
		IndexedFields:     []string{"doc_id", "source", "content_hash"},
	}
}

// Point represents a point to upsert.
type Point struct {
	// ID is the unique point identifier (UUID).
	ID string

	// Vector is the embedding vector.
	Vector []float32

	// Payload is the metadata stored with the point.
	Payload map[string]any
}

// SearchRequest defines parameters for a vector search.
type SearchRequest struct {
	// Vector is the query embedding.
	Vector []float32

	// Limit is the maximum number of results to return.
	Limit uint64

	// Filter constrains the search to matching points.
	Filter *SearchFilter

	// ScoreThreshold drops results below this cosine similarity.
	ScoreThreshold *float32
}

// SearchFilter defines filter conditions for search and count.
type SearchFilter struct {
	// DocID filters by exact document ID.
	DocID string

	// Source filters by document source.
	Source string

	// ContentHash filters by content hash.
	ContentHash string

	// Keywords adds exact-match conditions on arbitrary payload fields.
	Keywords map[string]string
}

// SearchResult represents a single scored result.
type SearchResult struct {
	// ID is the point identifier.
	ID string

	// Score is the cosine similarity score.
	Score float32

	// Payload contains the point metadata.
	Payload map[string]any
}

// DeleteFilter defines conditions for deleting points.
type DeleteFilter struct {
	// IDs deletes specific point IDs.
	IDs []string

	// DocID deletes all points belonging to a document.
	DocID string

	// CreatedBefore deletes all points with a "created_at" payload value
	// strictly less than this Unix timestamp. Used to sweep expired
	// semantic cache entries.
	CreatedBefore int64
}

// CollectionInfo contains information about a collection.
type CollectionInfo struct {
	// Name is the collection name (without prefix).
	Name string

	// PointsCount is the total number of points.
	PointsCount uint64

	// Status is the collection health status.
	Status string
}
