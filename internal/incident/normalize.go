package incident

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RawRecord is the wire format scrapers deliver to the ingest boundary.
// Everything is optional or free-form here; Normalizer decides what is usable.
type RawRecord struct {
	Title      string      `json:"title"`
	Narrative  string      `json:"narrative"`
	OccurredAt string      `json:"occurred_at"` // RFC 3339
	Lat        *float64    `json:"lat,omitempty"`
	Lon        *float64    `json:"lon,omitempty"`
	AssetType  string      `json:"asset_type"`
	Country    string      `json:"country"`
	Sources    []RawSource `json:"sources"`
}

// RawSource is a source reference as delivered by a scraper. TrustWeight may
// be omitted; the normalizer fills it from the per-source-type trust table.
type RawSource struct {
	URL         string   `json:"url"`
	SourceType  string   `json:"source_type"`
	TrustWeight *float64 `json:"trust_weight,omitempty"`
	Quote       string   `json:"quote,omitempty"`
}

// TrustTable maps source types to their default trust weight (0..4).
type TrustTable map[SourceType]float64

// DefaultTrustTable mirrors the configured trust weights for known source
// types: official channels at 4, established media mid-range, social lowest.
func DefaultTrustTable() TrustTable {
	return TrustTable{
		SourcePolice: 4,
		SourceNotam:  4,
		SourceMedia:  2.5,
		SourceSocial: 1,
		SourceOther:  0.5,
	}
}

// Normalizer converts raw scraped records into canonical candidates,
// rejecting individually malformed records without failing the batch.
type Normalizer struct {
	trust TrustTable
}

// NewNormalizer creates a normalizer with the given trust table. A nil table
// falls back to the defaults.
func NewNormalizer(trust TrustTable) *Normalizer {
	if trust == nil {
		trust = DefaultTrustTable()
	}
	return &Normalizer{trust: trust}
}

// Normalize validates and canonicalizes a single raw record. The returned
// candidate satisfies every model invariant: parsed enums, both-or-neither
// coordinates, at least one source, trust weights clamped to 0..4, and
// source URLs deduplicated by normalized form.
func (n *Normalizer) Normalize(raw *RawRecord, now time.Time) (*Candidate, error) {
	title := collapseSpace(raw.Title)
	narrative := collapseSpace(raw.Narrative)
	if title == "" && narrative == "" {
		return nil, errors.New("empty title and narrative")
	}

	if raw.OccurredAt == "" {
		return nil, errors.New("missing occurred_at")
	}
	occurredAt, err := time.Parse(time.RFC3339, raw.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("parse occurred_at: %w", err)
	}

	if (raw.Lat == nil) != (raw.Lon == nil) {
		return nil, errors.New("partially geocoded: lat and lon must both be present or both absent")
	}

	assetType, err := ParseAssetType(strings.ToLower(strings.TrimSpace(raw.AssetType)))
	if err != nil {
		return nil, err
	}

	country := strings.ToUpper(strings.TrimSpace(raw.Country))
	if country != "" && len(country) != 2 {
		return nil, fmt.Errorf("country %q is not a two-letter code", country)
	}

	sources, err := n.normalizeSources(raw.Sources)
	if err != nil {
		return nil, err
	}

	return &Candidate{
		Title:      title,
		Narrative:  narrative,
		OccurredAt: occurredAt.UTC(),
		Lat:        raw.Lat,
		Lon:        raw.Lon,
		AssetType:  assetType,
		Country:    country,
		Sources:    sources,
		SeenAt:     now.UTC(),
	}, nil
}

func (n *Normalizer) normalizeSources(raws []RawSource) ([]SourceRef, error) {
	if len(raws) == 0 {
		return nil, errors.New("no sources")
	}

	seen := make(map[string]bool, len(raws))
	out := make([]SourceRef, 0, len(raws))
	for i, rs := range raws {
		u := NormalizeURL(rs.URL)
		if u == "" {
			return nil, fmt.Errorf("source %d: empty url", i)
		}
		if seen[u] {
			continue
		}
		seen[u] = true

		st, err := ParseSourceType(strings.ToLower(strings.TrimSpace(rs.SourceType)))
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}

		weight := n.trust[st]
		if rs.TrustWeight != nil {
			weight = *rs.TrustWeight
		}
		weight = min(max(weight, 0), 4)

		out = append(out, SourceRef{
			URL:         u,
			SourceType:  st,
			TrustWeight: weight,
			Quote:       collapseSpace(rs.Quote),
		})
	}
	return out, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
