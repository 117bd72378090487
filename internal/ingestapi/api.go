// Package ingestapi is the HTTP boundary: scrapers POST candidate batches in,
// consumers read consolidated incidents back out.
package ingestapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/skywatch/internal/incident"
	"github.com/linnemanlabs/skywatch/internal/pipeline"
)

const (
	maxBatchSize     = 500
	defaultListLimit = 50
	maxListLimit     = 500
)

// IngestService defines the pipeline operations the API needs.
type IngestService interface {
	Ingest(ctx context.Context, raws []incident.RawRecord) []pipeline.Outcome
}

// IncidentReader defines the read operations the API needs.
type IncidentReader interface {
	Get(ctx context.Context, id string) (*incident.Consolidated, bool, error)
	List(ctx context.Context, limit int) ([]*incident.Consolidated, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    IngestService
	reader IncidentReader
}

// New creates a new API handler.
func New(logger log.Logger, svc IngestService, reader IncidentReader) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("ingest service is required"))
	}
	if reader == nil {
		panic(xerrors.New("incident reader is required"))
	}
	return &API{logger: logger, svc: svc, reader: reader}
}

// RegisterRoutes attaches API endpoints to the router. auth wraps the ingest
// endpoint only; reads stay open.
func (a *API) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		if auth != nil {
			r.With(auth).Post("/candidates", a.handleIngest)
		} else {
			r.Post("/candidates", a.handleIngest)
		}
		r.Get("/incidents/{id}", a.handleGetIncident)
		r.Get("/incidents", a.handleListIncidents)
	})
}

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	var raws []incident.RawRecord
	if err := json.NewDecoder(r.Body).Decode(&raws); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if len(raws) == 0 {
		http.Error(w, `{"error":"empty batch"}`, http.StatusBadRequest)
		return
	}
	if len(raws) > maxBatchSize {
		http.Error(w, `{"error":"batch too large"}`, http.StatusRequestEntityTooLarge)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("skywatch.batch_size", len(raws)))

	outcomes := a.svc.Ingest(r.Context(), raws)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"outcomes": outcomes,
	})
}

func (a *API) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("skywatch.incident.id", id))

	inc, ok, err := a.reader.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get incident", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(inc)
}

func (a *API) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	incs, err := a.reader.List(r.Context(), limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list incidents")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if incs == nil {
		incs = []*incident.Consolidated{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"incidents": incs,
	})
}
