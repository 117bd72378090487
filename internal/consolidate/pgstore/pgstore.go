// Package pgstore provides a PostgreSQL implementation of consolidate.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/skywatch/internal/consolidate"
	"github.com/linnemanlabs/skywatch/internal/incident"
)

var tracer = otel.Tracer("github.com/linnemanlabs/skywatch/internal/consolidate/pgstore")

//go:embed schema.sql
var schema string

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

// Store persists consolidated incidents in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store over the given pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const incidentColumns = `id, content_hash, group_key, title, narrative, occurred_at, lat, lon,
	asset_type, country, sources, merged_from, evidence_score, ai_category, ai_confidence,
	first_seen_at, last_seen_at`

// Get retrieves an incident by ID.
func (s *Store) Get(ctx context.Context, id string) (*incident.Consolidated, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	inc, err := scanIncident(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if inc == nil {
		return nil, false, nil
	}
	return inc, true, nil
}

// GetByContentHash retrieves an incident by its dedup key.
func (s *Store) GetByContentHash(ctx context.Context, hash string) (*incident.Consolidated, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.GetByContentHash", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE content_hash = $1`
	inc, err := scanIncident(s.pool.QueryRow(ctx, query, hash))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if inc == nil {
		return nil, false, nil
	}
	return inc, true, nil
}

// FindByGroupKey returns all incidents with the given grouping key.
func (s *Store) FindByGroupKey(ctx context.Context, key string) ([]*incident.Consolidated, error) {
	ctx, span := tracer.Start(ctx, "pgstore.FindByGroupKey", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE group_key = $1`
	rows, err := s.pool.Query(ctx, query, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query group key: %w", err)
	}
	defer rows.Close()

	return collectIncidents(rows)
}

// Create inserts a new incident. A unique violation on content_hash maps to
// consolidate.ErrConflict so the engine can retry as a merge.
func (s *Store) Create(ctx context.Context, inc *incident.Consolidated) error {
	ctx, span := tracer.Start(ctx, "pgstore.Create", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	sourcesJSON, err := json.Marshal(inc.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	query := `INSERT INTO incidents (` + incidentColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`
	_, err = s.pool.Exec(ctx, query,
		inc.ID, inc.ContentHash, inc.GroupKey, inc.Title, inc.Narrative, inc.OccurredAt,
		inc.Lat, inc.Lon, string(inc.AssetType), inc.Country, sourcesJSON,
		inc.MergedFrom, inc.EvidenceScore, nullable(inc.AICategory), inc.AIConfidence,
		inc.FirstSeenAt, inc.LastSeenAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return consolidate.ErrConflict
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// Update rewrites an existing incident row.
func (s *Store) Update(ctx context.Context, inc *incident.Consolidated) error {
	ctx, span := tracer.Start(ctx, "pgstore.Update", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPDATE"),
	))
	defer span.End()

	sourcesJSON, err := json.Marshal(inc.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	query := `UPDATE incidents SET
		title = $2, narrative = $3, occurred_at = $4, lat = $5, lon = $6,
		sources = $7, merged_from = $8, evidence_score = $9,
		ai_category = $10, ai_confidence = $11, first_seen_at = $12, last_seen_at = $13
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		inc.ID, inc.Title, inc.Narrative, inc.OccurredAt, inc.Lat, inc.Lon,
		sourcesJSON, inc.MergedFrom, inc.EvidenceScore,
		nullable(inc.AICategory), inc.AIConfidence, inc.FirstSeenAt, inc.LastSeenAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update incident %s: no such row", inc.ID)
	}
	return nil
}

// List returns up to limit incidents, most recently seen first.
func (s *Store) List(ctx context.Context, limit int) ([]*incident.Consolidated, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + incidentColumns + ` FROM incidents ORDER BY last_seen_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	return collectIncidents(rows)
}

func collectIncidents(rows pgx.Rows) ([]*incident.Consolidated, error) {
	var out []*incident.Consolidated
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

// scanIncident scans a single row. Returns (nil, nil) when no row is found.
func scanIncident(row pgx.Row) (*incident.Consolidated, error) {
	var (
		inc         incident.Consolidated
		assetType   string
		sourcesJSON []byte
		aiCategory  *string
	)

	err := row.Scan(
		&inc.ID, &inc.ContentHash, &inc.GroupKey, &inc.Title, &inc.Narrative, &inc.OccurredAt,
		&inc.Lat, &inc.Lon, &assetType, &inc.Country, &sourcesJSON,
		&inc.MergedFrom, &inc.EvidenceScore, &aiCategory, &inc.AIConfidence,
		&inc.FirstSeenAt, &inc.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	inc.AssetType = incident.AssetType(assetType)
	if aiCategory != nil {
		inc.AICategory = *aiCategory
	}
	if err := json.Unmarshal(sourcesJSON, &inc.Sources); err != nil {
		return nil, fmt.Errorf("unmarshal sources: %w", err)
	}
	return &inc, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
