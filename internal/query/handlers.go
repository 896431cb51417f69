package query

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/answergrid/answergrid/internal/pkg/errors"
	"github.com/answergrid/answergrid/internal/pkg/middleware"
	"github.com/answergrid/answergrid/internal/pkg/respond"
	"github.com/answergrid/answergrid/internal/tenant"
)

// maxQueryBody bounds the request body at 64 KiB. Queries are questions,
// not documents.
const maxQueryBody = 64 << 10

// maxQueryLength bounds the question text.
const maxQueryLength = 8192

// HandleQuery serves POST /v1/query.
func (s *Service) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.RequestIDFrom(ctx)

	t := tenant.FromContext(ctx)
	if t == nil {
		errors.WriteError(w, requestID, errors.New(errors.CodeUnauthorized, "no tenant in request"))
		return
	}

	var req Request
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, requestID, errors.ValidationError("invalid JSON body"))
		return
	}

	// mode and cacheMode are also accepted as query parameters, which
	// take precedence over the body
	if mode := r.URL.Query().Get("mode"); mode != "" {
		req.Mode = mode
	}
	if cacheMode := r.URL.Query().Get("cacheMode"); cacheMode != "" {
		req.CacheMode = cacheMode
	}

	if err := validateRequest(&req); err != nil {
		errors.WriteError(w, requestID, err)
		return
	}

	result, err := s.Execute(ctx, t, req)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("query failed", "tenant", t.ID)
		errors.WriteError(w, requestID, err)
		return
	}

	respond.JSON(w, requestID, http.StatusOK, result)
}

// validateRequest checks and normalizes the request in place.
func validateRequest(req *Request) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return errors.ValidationError("query is required")
	}
	if len(req.Query) > maxQueryLength {
		return errors.ValidationError("query is too long")
	}

	if req.TopK < 0 {
		return errors.ValidationError("topK must be positive")
	}

	switch req.Mode {
	case "", ModeAnswer, ModeRetrieval:
	default:
		return errors.ValidationError("mode must be \"answer\" or \"retrieval\"")
	}

	switch req.CacheMode {
	case "", CacheOn, CacheOff:
	default:
		return errors.ValidationError("cacheMode must be \"on\" or \"off\"")
	}

	return nil
}
