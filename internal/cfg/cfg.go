// Package cfg holds Skywatch's application configuration: the pipeline
// tuning knobs (region, merge window, trust weights, AI thresholds) plus the
// service plumbing (ports, database, webhook, shutdown budgets).
package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds pipeline-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	// geographic scope
	MinLat, MaxLat float64
	MinLon, MaxLon float64

	// consolidation
	RoundPrecision   int
	MergeWindowHours int

	// fake detection
	StalenessDays int
	MinAvgTrust   float64
	FakeDomains   string

	// trust weights per source type
	TrustPolice float64
	TrustNotam  float64
	TrustMedia  float64
	TrustSocial float64

	// AI verifier
	ClaudeAPIKey      string
	ClaudeModel       string
	AIRejectThreshold float64
	AICacheTTLMinutes int
	AITimeoutSeconds  int

	DatabaseURL     string
	SlackWebhookURL string
	IngestToken     string
	Parallelism     int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.Float64Var(&c.MinLat, "min-lat", 35, "southern edge of the in-scope bounding box in degrees")
	fs.Float64Var(&c.MaxLat, "max-lat", 71, "northern edge of the in-scope bounding box in degrees")
	fs.Float64Var(&c.MinLon, "min-lon", -10, "western edge of the in-scope bounding box in degrees")
	fs.Float64Var(&c.MaxLon, "max-lon", 31, "eastern edge of the in-scope bounding box in degrees")
	fs.IntVar(&c.RoundPrecision, "round-precision", 2, "coordinate rounding for the grouping key in decimal degrees (0..6)")
	fs.IntVar(&c.MergeWindowHours, "merge-window-hours", 6, "sliding time window for merging same-facility candidates (1..168)")
	fs.IntVar(&c.StalenessDays, "staleness-days", 30, "reject reports older than this relative to ingestion (1..365)")
	fs.Float64Var(&c.MinAvgTrust, "min-avg-trust", 0.3, "average source trust weight below which a candidate is treated as fake (0..4)")
	fs.StringVar(&c.FakeDomains, "fake-domains", "", "comma-separated extra satire/fake-news domains for the blacklist")
	fs.Float64Var(&c.TrustPolice, "trust-police", 4, "default trust weight for police sources (0..4)")
	fs.Float64Var(&c.TrustNotam, "trust-notam", 4, "default trust weight for NOTAM sources (0..4)")
	fs.Float64Var(&c.TrustMedia, "trust-media", 2.5, "default trust weight for media sources (0..4)")
	fs.Float64Var(&c.TrustSocial, "trust-social", 1, "default trust weight for social sources (0..4)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude classification provider (empty = rule-based only)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.Float64Var(&c.AIRejectThreshold, "ai-reject-threshold", 0.6, "minimum confidence for an AI negative to drop a candidate (0..1)")
	fs.IntVar(&c.AICacheTTLMinutes, "ai-cache-ttl-minutes", 240, "TTL for memoized AI classifications in minutes (1..1440)")
	fs.IntVar(&c.AITimeoutSeconds, "ai-timeout-seconds", 10, "hard timeout for a single AI verifier call in seconds (1..10)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for OFFICIAL incident notifications")
	fs.StringVar(&c.IngestToken, "ingest-token", "", "bearer token required on the ingest endpoint (empty = open)")
	fs.IntVar(&c.Parallelism, "parallelism", 4, "max consolidation partitions processed concurrently (1..64)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.MinLat >= c.MaxLat {
		errs = append(errs, fmt.Errorf("MIN_LAT %v must be less than MAX_LAT %v", c.MinLat, c.MaxLat))
	}
	if c.MinLon >= c.MaxLon {
		errs = append(errs, fmt.Errorf("MIN_LON %v must be less than MAX_LON %v", c.MinLon, c.MaxLon))
	}
	if c.MinLat < -90 || c.MaxLat > 90 {
		errs = append(errs, fmt.Errorf("latitude bounds %v..%v outside -90..90", c.MinLat, c.MaxLat))
	}
	if c.MinLon < -180 || c.MaxLon > 180 {
		errs = append(errs, fmt.Errorf("longitude bounds %v..%v outside -180..180", c.MinLon, c.MaxLon))
	}

	if c.RoundPrecision < 0 || c.RoundPrecision > 6 {
		errs = append(errs, fmt.Errorf("invalid ROUND_PRECISION %d (must be 0..6)", c.RoundPrecision))
	}
	if c.MergeWindowHours <= 0 || c.MergeWindowHours > 168 {
		errs = append(errs, fmt.Errorf("invalid MERGE_WINDOW_HOURS %d (must be 1..168)", c.MergeWindowHours))
	}
	if c.StalenessDays <= 0 || c.StalenessDays > 365 {
		errs = append(errs, fmt.Errorf("invalid STALENESS_DAYS %d (must be 1..365)", c.StalenessDays))
	}
	if c.MinAvgTrust < 0 || c.MinAvgTrust > 4 {
		errs = append(errs, fmt.Errorf("invalid MIN_AVG_TRUST %v (must be 0..4)", c.MinAvgTrust))
	}

	for _, w := range []struct {
		name  string
		value float64
	}{
		{"TRUST_POLICE", c.TrustPolice},
		{"TRUST_NOTAM", c.TrustNotam},
		{"TRUST_MEDIA", c.TrustMedia},
		{"TRUST_SOCIAL", c.TrustSocial},
	} {
		if w.value < 0 || w.value > 4 {
			errs = append(errs, fmt.Errorf("invalid %s %v (must be 0..4)", w.name, w.value))
		}
	}

	if c.AIRejectThreshold < 0 || c.AIRejectThreshold > 1 {
		errs = append(errs, fmt.Errorf("invalid AI_REJECT_THRESHOLD %v (must be 0..1)", c.AIRejectThreshold))
	}
	if c.AICacheTTLMinutes <= 0 || c.AICacheTTLMinutes > 1440 {
		errs = append(errs, fmt.Errorf("invalid AI_CACHE_TTL_MINUTES %d (must be 1..1440)", c.AICacheTTLMinutes))
	}
	if c.AITimeoutSeconds <= 0 || c.AITimeoutSeconds > 10 {
		errs = append(errs, fmt.Errorf("invalid AI_TIMEOUT_SECONDS %d (must be 1..10)", c.AITimeoutSeconds))
	}

	// Claude model is required even when the key is absent, so enabling the
	// key via env alone yields a working verifier
	if c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}

	if c.Parallelism <= 0 || c.Parallelism > 64 {
		errs = append(errs, fmt.Errorf("invalid PARALLELISM %d (must be 1..64)", c.Parallelism))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
