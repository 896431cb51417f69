package ingest

import (
	"encoding/json"
	"net/http"

	"github.com/answergrid/answergrid/internal/pkg/errors"
	"github.com/answergrid/answergrid/internal/pkg/middleware"
	"github.com/answergrid/answergrid/internal/pkg/respond"
	"github.com/answergrid/answergrid/internal/tenant"
)

// maxIngestBody bounds the request body at 16 MiB.
const maxIngestBody = 16 << 20

// maxDocumentsPerRequest bounds one ingestion call.
const maxDocumentsPerRequest = 100

// IngestRequest is the POST /v1/ingest body.
type IngestRequest struct {
	Documents []Document `json:"documents"`
}

// HandleIngest indexes documents into the calling tenant's namespace.
func (s *Service) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.RequestIDFrom(ctx)

	t := tenant.FromContext(ctx)
	if t == nil {
		errors.WriteError(w, requestID, errors.New(errors.CodeUnauthorized, "no tenant in request"))
		return
	}

	var req IngestRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, requestID, errors.ValidationError("invalid JSON body"))
		return
	}

	if len(req.Documents) == 0 {
		errors.WriteError(w, requestID, errors.ValidationError("documents is required"))
		return
	}
	if len(req.Documents) > maxDocumentsPerRequest {
		errors.WriteError(w, requestID, errors.ValidationError("too many documents in one request"))
		return
	}

	result, err := s.Ingest(ctx, t.Namespace, req.Documents)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("ingestion failed", "tenant", t.ID)
		errors.WriteError(w, requestID, err)
		return
	}

	respond.JSON(w, requestID, http.StatusOK, result)
}
