package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Search performs a dense vector search.
func (c *Client) Search(ctx context.Context, collection string, req SearchRequest) ([]SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("client is closed")
	}

	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	limit := req.Limit
	if limit == 0 {
		limit = 10
	}

	queryPoints := &qdrant.QueryPoints{
		CollectionName: c.collectionName(collection),
		Query:          qdrant.NewQueryDense(req.Vector),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	if req.Filter != nil {
		queryPoints.Filter = buildSearchFilter(req.Filter)
	}

	if req.ScoreThreshold != nil {
		queryPoints.ScoreThreshold = req.ScoreThreshold
	}

	results, err := c.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return scoredPointsToResults(results), nil
}

// buildSearchFilter builds a Qdrant filter from SearchFilter.
func buildSearchFilter(f *SearchFilter) *qdrant.Filter {
	if f == nil {
		return nil
	}

	var conditions []*qdrant.Condition

	if f.DocID != "" {
		conditions = append(conditions, keywordCondition("doc_id", f.DocID))
	}
	if f.Source != "" {
		conditions = append(conditions, keywordCondition("source", f.Source))
	}
	if f.ContentHash != "" {
		conditions = append(conditions, keywordCondition("content_hash", f.ContentHash))
	}
	for key, value := range f.Keywords {
		conditions = append(conditions, keywordCondition(key, value))
	}

	if len(conditions) == 0 {
		return nil
	}

	return &qdrant.Filter{
		Must: conditions,
	}
}

// keywordCondition builds an exact keyword match condition.
func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{
						Keyword: value,
					},
				},
			},
		},
	}
}

// scoredPointsToResults converts Qdrant scored points to SearchResults.
func scoredPointsToResults(points []*qdrant.ScoredPoint) []SearchResult {
	results := make([]SearchResult, 0, len(points))

	for _, p := range points {
		var id string
		switch v := p.Id.PointIdOptions.(type) {
		case *qdrant.PointId_Uuid:
			id = v.Uuid
		case *qdrant.PointId_Num:
			id = fmt.Sprintf("%d", v.Num)
		}

		results = append(results, SearchResult{
			ID:      id,
			Score:   p.Score,
			Payload: extractPayload(p.Payload),
		})
	}

	return results
}

// extractPayload converts a Qdrant payload into plain Go values. Only the
// kinds AnswerGrid stores are handled.
func extractPayload(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		switch kind := v.Kind.(type) {
		case *qdrant.Value_StringValue:
			result[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			result[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			result[k] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			result[k] = kind.BoolValue
		}
	}
	return result
}

// PayloadString returns a string payload field, or "" if absent.
func PayloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// PayloadInt returns an integer payload field, or 0 if absent.
func PayloadInt(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
