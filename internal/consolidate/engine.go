package consolidate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/skywatch/internal/incident"
)

var tracer = otel.Tracer("github.com/linnemanlabs/skywatch/internal/consolidate")

// AIAnnotation carries the verifier's classification onto the incident
// record. Nil when the verifier did not produce an opinion.
type AIAnnotation struct {
	Category   string
	Confidence float64
}

// Engine groups candidates into consolidated incidents. Callers must
// serialize candidates sharing a grouping key; candidates for different
// facilities are safe to consolidate concurrently.
type Engine struct {
	store     Store
	precision int
	window    time.Duration
	logger    log.Logger
}

// NewEngine creates a consolidation engine. precision is the coordinate
// rounding in decimal degrees (2 collapses reports within ~1.1 km), window
// the sliding merge window around occurred_at.
func NewEngine(store Store, precision int, window time.Duration, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{store: store, precision: precision, window: window, logger: logger}
}

// Precision returns the coordinate rounding in decimal degrees, so callers
// can compute grouping keys consistent with the engine's.
func (e *Engine) Precision() int { return e.precision }

// Result describes what Consolidate did with a candidate.
type Result struct {
	Incident *incident.Consolidated
	Merged   bool

	// PrevScore is the evidence score before this candidate arrived, 0 for a
	// newly created incident. Lets callers detect score upgrades.
	PrevScore int
}

// Consolidate merges the candidate into an existing incident for the same
// facility and time window, or creates a new one. A Create losing a race
// surfaces as ErrConflict from the store and is retried as a
// merge-into-existing, so two near-simultaneous first candidates never
// produce duplicate incidents.
func (e *Engine) Consolidate(ctx context.Context, c *incident.Candidate, ai *AIAnnotation) (*Result, error) {
	key := incident.GroupKey(c.AssetType, c.Country, c.Lat, c.Lon, c.Place, e.precision)

	ctx, span := tracer.Start(ctx, "consolidate.Consolidate", trace.WithAttributes(
		attribute.String("skywatch.group_key", key),
		attribute.String("skywatch.asset_type", string(c.AssetType)),
	))
	defer span.End()

	match, err := e.findInWindow(ctx, key, c.OccurredAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if match != nil {
		prev := match.EvidenceScore
		if err := e.merge(ctx, match, c, ai); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		span.SetAttributes(attribute.String("skywatch.incident_id", match.ID), attribute.Bool("skywatch.merged", true))
		return &Result{Incident: match, Merged: true, PrevScore: prev}, nil
	}

	inc := newIncident(c, ai, key, e.window)
	err = e.store.Create(ctx, inc)
	if errors.Is(err, ErrConflict) {
		// lost the creation race or a re-run of the same candidate; fetch the
		// winner and merge into it instead
		existing, ok, getErr := e.store.GetByContentHash(ctx, inc.ContentHash)
		if getErr != nil {
			return nil, fmt.Errorf("conflict lookup: %w", getErr)
		}
		if !ok {
			return nil, fmt.Errorf("conflict on %s but incident not found", inc.ContentHash)
		}
		prev := existing.EvidenceScore
		if err := e.merge(ctx, existing, c, ai); err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.String("skywatch.incident_id", existing.ID), attribute.Bool("skywatch.merged", true))
		return &Result{Incident: existing, Merged: true, PrevScore: prev}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create incident: %w", err)
	}

	span.SetAttributes(attribute.String("skywatch.incident_id", inc.ID), attribute.Bool("skywatch.merged", false))
	e.logger.Info(ctx, "incident created",
		"incident_id", inc.ID,
		"group_key", key,
		"evidence_score", inc.EvidenceScore,
	)
	return &Result{Incident: inc}, nil
}

// findInWindow returns the incident with the same grouping key whose
// occurrence time is nearest to occurredAt within the merge window, or nil.
func (e *Engine) findInWindow(ctx context.Context, key string, occurredAt time.Time) (*incident.Consolidated, error) {
	candidates, err := e.store.FindByGroupKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("find by group key: %w", err)
	}

	var best *incident.Consolidated
	var bestDelta time.Duration
	for _, inc := range candidates {
		delta := occurredAt.Sub(inc.OccurredAt).Abs()
		if delta > e.window {
			continue
		}
		if best == nil || delta < bestDelta {
			best, bestDelta = inc, delta
		}
	}
	return best, nil
}

func (e *Engine) merge(ctx context.Context, inc *incident.Consolidated, c *incident.Candidate, ai *AIAnnotation) error {
	mergeInto(inc, c, ai)

	// recompute from the full merged source set, then never decrease
	inc.EvidenceScore = max(inc.EvidenceScore, Score(inc.Sources))

	if err := e.store.Update(ctx, inc); err != nil {
		return fmt.Errorf("update incident: %w", err)
	}

	e.logger.Info(ctx, "incident merged",
		"incident_id", inc.ID,
		"merged_from", inc.MergedFrom,
		"evidence_score", inc.EvidenceScore,
		"sources", len(inc.Sources),
	)
	return nil
}

// newIncident builds the durable aggregate from the first surviving candidate.
func newIncident(c *incident.Candidate, ai *AIAnnotation, key string, window time.Duration) *incident.Consolidated {
	inc := &incident.Consolidated{
		ID:            ulid.Make().String(),
		ContentHash:   incident.ContentHash(key, c.OccurredAt, window),
		GroupKey:      key,
		Title:         c.Title,
		Narrative:     c.Narrative,
		OccurredAt:    c.OccurredAt,
		Lat:           c.Lat,
		Lon:           c.Lon,
		AssetType:     c.AssetType,
		Country:       c.Country,
		Sources:       append([]incident.SourceRef(nil), c.Sources...),
		MergedFrom:    0,
		EvidenceScore: Score(c.Sources),
		FirstSeenAt:   c.SeenAt,
		LastSeenAt:    c.SeenAt,
	}
	applyAnnotation(inc, ai)
	return inc
}

// mergeInto applies the deterministic merge rules. Existing state is the
// earlier-seen side, so length ties always resolve to the existing value.
func mergeInto(inc *incident.Consolidated, c *incident.Candidate, ai *AIAnnotation) {
	seen := make(map[string]bool, len(inc.Sources))
	for _, s := range inc.Sources {
		seen[s.URL] = true
	}
	for _, s := range c.Sources {
		if !seen[s.URL] {
			seen[s.URL] = true
			inc.Sources = append(inc.Sources, s)
		}
	}

	if len(c.Narrative) > len(inc.Narrative) {
		inc.Narrative = c.Narrative
	}
	if t := c.Title; t != "" && len(t) > len(inc.Title) {
		inc.Title = t
	}

	// earliest reported occurrence is authoritative; later reports tend to be
	// follow-up coverage of the same event
	if c.OccurredAt.Before(inc.OccurredAt) {
		inc.OccurredAt = c.OccurredAt
	}
	if c.SeenAt.Before(inc.FirstSeenAt) {
		inc.FirstSeenAt = c.SeenAt
	}
	if c.SeenAt.After(inc.LastSeenAt) {
		inc.LastSeenAt = c.SeenAt
	}

	// adopt coordinates from a geocoded corroboration; the grouping key and
	// content hash stay as created
	if inc.Lat == nil && c.HasCoordinates() {
		inc.Lat, inc.Lon = c.Lat, c.Lon
	}

	applyAnnotation(inc, ai)
	inc.MergedFrom++
}

func applyAnnotation(inc *incident.Consolidated, ai *AIAnnotation) {
	if ai == nil || inc.AICategory != "" {
		return
	}
	inc.AICategory = ai.Category
	conf := ai.Confidence
	inc.AIConfidence = &conf
}
