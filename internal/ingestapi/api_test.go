package ingestapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/skywatch/internal/authmw"
	"github.com/linnemanlabs/skywatch/internal/incident"
	"github.com/linnemanlabs/skywatch/internal/pipeline"
)

// stubService records the batch it was handed and returns canned outcomes.
type stubService struct {
	got      []incident.RawRecord
	outcomes []pipeline.Outcome
}

func (s *stubService) Ingest(_ context.Context, raws []incident.RawRecord) []pipeline.Outcome {
	s.got = raws
	if s.outcomes != nil {
		return s.outcomes
	}
	out := make([]pipeline.Outcome, len(raws))
	for i := range out {
		out[i] = pipeline.Outcome{Index: i, Status: pipeline.StatusCreated, IncidentID: "01TEST", EvidenceScore: 2}
	}
	return out
}

// stubReader serves a fixed incident set.
type stubReader struct {
	incs map[string]*incident.Consolidated
	err  error
}

func (r *stubReader) Get(_ context.Context, id string) (*incident.Consolidated, bool, error) {
	if r.err != nil {
		return nil, false, r.err
	}
	inc, ok := r.incs[id]
	return inc, ok, nil
}

func (r *stubReader) List(_ context.Context, limit int) ([]*incident.Consolidated, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]*incident.Consolidated, 0, len(r.incs))
	for _, inc := range r.incs {
		out = append(out, inc)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func testIncident(id string) *incident.Consolidated {
	return &incident.Consolidated{
		ID:            id,
		ContentHash:   "hash-" + id,
		GroupKey:      "airport|DK|55.62,12.66",
		Title:         "Drone over Kastrup",
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		AssetType:     incident.AssetAirport,
		Country:       "DK",
		EvidenceScore: 2,
	}
}

func newTestRouter(svc IngestService, reader IncidentReader, auth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	api := New(nil, svc, reader)
	api.RegisterRoutes(r, auth)
	return r
}

func validBatch() string {
	return `[{"title":"Drone over Kastrup","narrative":"Observed near the runway.","occurred_at":"2026-03-01T12:00:00Z","lat":55.62,"lon":12.66,"asset_type":"airport","country":"DK","sources":[{"url":"https://dr.dk/1","source_type":"media"}]}]`
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for nil service")
		}
	}()
	New(nil, nil, &stubReader{})
}

func TestNew_NilReader_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for nil reader")
		}
	}()
	New(nil, &stubService{}, nil)
}

func TestHandleIngest_Accepted(t *testing.T) {
	t.Parallel()

	svc := &stubService{}
	r := newTestRouter(svc, &stubReader{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/candidates", strings.NewReader(validBatch()))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	if len(svc.got) != 1 {
		t.Fatalf("service received %d records, want 1", len(svc.got))
	}

	var body struct {
		Outcomes []pipeline.Outcome `json:"outcomes"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(body.Outcomes))
	}
	if body.Outcomes[0].Status != pipeline.StatusCreated {
		t.Errorf("status = %q", body.Outcomes[0].Status)
	}
}

func TestHandleIngest_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"invalid JSON", `{bad`, http.StatusBadRequest},
		{"object not array", `{"title":"x"}`, http.StatusBadRequest},
		{"empty batch", `[]`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newTestRouter(&stubService{}, &stubReader{}, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/candidates", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleIngest_BatchTooLarge(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("[")
	for i := 0; i <= maxBatchSize; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"title":"r%d"}`, i)
	}
	b.WriteString("]")

	r := newTestRouter(&stubService{}, &stubReader{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/candidates", strings.NewReader(b.String()))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestHandleIngest_AuthRequired(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&stubService{}, &stubReader{incs: map[string]*incident.Consolidated{
		"01TEST": testIncident("01TEST"),
	}}, authmw.BearerToken("sekrit"))

	// no token: ingest rejected
	req := httptest.NewRequest(http.MethodPost, "/api/v1/candidates", strings.NewReader(validBatch()))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	// with token: accepted
	req = httptest.NewRequest(http.MethodPost, "/api/v1/candidates", strings.NewReader(validBatch()))
	req.Header.Set("Authorization", "Bearer sekrit")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	// reads stay open
	req = httptest.NewRequest(http.MethodGet, "/api/v1/incidents/01TEST", http.NoBody)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("read status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleGetIncident(t *testing.T) {
	t.Parallel()

	reader := &stubReader{incs: map[string]*incident.Consolidated{
		"01TEST": testIncident("01TEST"),
	}}
	r := newTestRouter(&stubService{}, reader, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents/01TEST", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var inc incident.Consolidated
	if err := json.NewDecoder(rec.Body).Decode(&inc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inc.ID != "01TEST" {
		t.Errorf("id = %q", inc.ID)
	}
}

func TestHandleGetIncident_NotFound(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&stubService{}, &stubReader{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents/unknown", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleGetIncident_StoreError(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&stubService{}, &stubReader{err: errors.New("db down")}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents/01TEST", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestHandleListIncidents(t *testing.T) {
	t.Parallel()

	reader := &stubReader{incs: map[string]*incident.Consolidated{
		"01A": testIncident("01A"),
		"01B": testIncident("01B"),
	}}
	r := newTestRouter(&stubService{}, reader, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body struct {
		Incidents []*incident.Consolidated `json:"incidents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Incidents) != 2 {
		t.Errorf("incidents = %d, want 2", len(body.Incidents))
	}
}

func TestHandleListIncidents_LimitValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		limit      string
		wantStatus int
	}{
		{"10", http.StatusOK},
		{"0", http.StatusBadRequest},
		{"-5", http.StatusBadRequest},
		{"9999", http.StatusBadRequest},
		{"abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run("limit="+tt.limit, func(t *testing.T) {
			t.Parallel()

			r := newTestRouter(&stubService{}, &stubReader{}, nil)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents?limit="+tt.limit, http.NoBody)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleListIncidents_EmptyIsArray(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&stubService{}, &stubReader{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `"incidents":[]`) {
		t.Errorf("body = %s, want empty array not null", rec.Body.String())
	}
}
