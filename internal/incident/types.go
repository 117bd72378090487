package incident

import (
	"fmt"
	"time"
)

// AssetType classifies the kind of facility a sighting was reported near.
type AssetType string

const (
	AssetAirport    AssetType = "airport"
	AssetMilitary   AssetType = "military"
	AssetHarbor     AssetType = "harbor"
	AssetPowerplant AssetType = "powerplant"
	AssetBridge     AssetType = "bridge"
	AssetOther      AssetType = "other"
	AssetNone       AssetType = "none"
)

// ParseAssetType validates an asset type string at the input boundary so the
// merge logic never compares free-form strings.
func ParseAssetType(s string) (AssetType, error) {
	switch AssetType(s) {
	case AssetAirport, AssetMilitary, AssetHarbor, AssetPowerplant, AssetBridge, AssetOther, AssetNone:
		return AssetType(s), nil
	case "":
		return AssetNone, nil
	}
	return "", fmt.Errorf("unknown asset type %q", s)
}

// SourceType classifies where a source reference came from.
type SourceType string

const (
	SourcePolice SourceType = "police"
	SourceNotam  SourceType = "notam"
	SourceMedia  SourceType = "media"
	SourceSocial SourceType = "social"
	SourceOther  SourceType = "other"
)

// ParseSourceType validates a source type string.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourcePolice, SourceNotam, SourceMedia, SourceSocial, SourceOther:
		return SourceType(s), nil
	case "":
		return SourceOther, nil
	}
	return "", fmt.Errorf("unknown source type %q", s)
}

// SourceRef is a single source backing an incident. Immutable once created;
// uniqueness within an incident is by normalized URL.
type SourceRef struct {
	URL         string     `json:"url"`
	SourceType  SourceType `json:"source_type"`
	TrustWeight float64    `json:"trust_weight"` // 0.0 .. 4.0
	Quote       string     `json:"quote,omitempty"`
}

// Candidate is an unconsolidated, freshly scraped incident report.
// Lat and Lon are both set or both nil; the normalizer enforces this.
type Candidate struct {
	Title      string      `json:"title"`
	Narrative  string      `json:"narrative"`
	OccurredAt time.Time   `json:"occurred_at"`
	Lat        *float64    `json:"lat,omitempty"`
	Lon        *float64    `json:"lon,omitempty"`
	AssetType  AssetType   `json:"asset_type"`
	Country    string      `json:"country"`
	Sources    []SourceRef `json:"sources"`

	// SeenAt is the ingestion timestamp, used for first/last seen bounds and
	// for the earliest-seen tie-breaks during merges.
	SeenAt time.Time `json:"seen_at"`

	// Place is the gazetteer token matched during geographic filtering. It
	// substitutes for coordinates in the grouping key when the candidate was
	// never geocoded.
	Place string `json:"place,omitempty"`
}

// HasCoordinates reports whether the candidate was geocoded.
func (c *Candidate) HasCoordinates() bool {
	return c.Lat != nil && c.Lon != nil
}

// Consolidated is the durable, deduplicated aggregate of one or more
// candidates. It is created and mutated exclusively by the consolidation
// engine; the evidence score only ever increases across merges.
type Consolidated struct {
	ID          string      `json:"id"`
	ContentHash string      `json:"content_hash"`
	GroupKey    string      `json:"group_key"`
	Title       string      `json:"title"`
	Narrative   string      `json:"narrative"`
	OccurredAt  time.Time   `json:"occurred_at"`
	Lat         *float64    `json:"lat,omitempty"`
	Lon         *float64    `json:"lon,omitempty"`
	AssetType   AssetType   `json:"asset_type"`
	Country     string      `json:"country"`
	Sources     []SourceRef `json:"sources"`

	MergedFrom    int `json:"merged_from"`
	EvidenceScore int `json:"evidence_score"` // 1..4, monotonically non-decreasing

	AICategory   string   `json:"ai_category,omitempty"`
	AIConfidence *float64 `json:"ai_confidence,omitempty"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}
