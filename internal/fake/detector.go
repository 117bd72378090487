// Package fake implements the fake-content detector: six independent
// credibility heuristics evaluated over a candidate. One failing layer is
// enough to reject — false incidents damage trust in the dataset far more
// than a missed report does.
package fake

import (
	"regexp"
	"strings"
	"time"

	"github.com/linnemanlabs/skywatch/internal/incident"
)

// Layer names, recorded on the verdict for observability.
const (
	LayerDomainBlacklist   = "domain_blacklist"
	LayerSatireKeywords    = "satire_keywords"
	LayerClickbait         = "clickbait"
	LayerConspiracy        = "conspiracy"
	LayerTemporal          = "temporal"
	LayerSourceCredibility = "source_credibility"
)

// Verdict is the outcome of the detector stage.
type Verdict struct {
	IsFake       bool
	FailedLayers []string
}

// defaultBlacklist holds known satire and fake-news domains.
var defaultBlacklist = map[string]bool{
	"theonion.com":             true,
	"babylonbee.com":           true,
	"rokokoposten.dk":          true,
	"spydnytt.no":              true,
	"nyhetsgrodan.se":          true,
	"der-postillon.com":        true,
	"worldnewsdailyreport.com": true,
	"clickhole.com":            true,
	"newsthump.com":            true,
	"thedailymash.co.uk":       true,
}

// satireWords covers "satire"/"parody"/"joke" in the languages the scrapers
// ingest: Danish, Norwegian, Swedish, English.
var satireWords = []string{
	"satire", "satirical", "parody", "parodi", "spoof", "joke article",
	"satir", "vits", "vittighed", "skämt", "skæmt", "aprilsnar",
	"april fools", "ikke ekte", "inte på riktigt",
}

var clickbaitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\byou won'?t believe\b`),
	regexp.MustCompile(`(?i)\bshocking (truth|footage|video|discovery)\b`),
	regexp.MustCompile(`(?i)\bwhat happened next\b`),
	regexp.MustCompile(`(?i)\bnumber \d+ will\b`),
	regexp.MustCompile(`(?i)\bgone viral\b`),
	regexp.MustCompile(`(?i)\bdoctors hate\b`),
	regexp.MustCompile(`(?i)(!!+|\?!)`),
	regexp.MustCompile(`(?i)\bthis one (weird )?trick\b`),
}

var conspiracyWords = []string{
	"false flag", "deep state", "chemtrail", "new world order", "illuminati",
	"crisis actor", "psyop", "psy-op", "they don't want you to know",
	"mainstream media won't tell", "wake up sheeple", "plandemic",
}

// Detector evaluates the six layers. All layers are pure and order
// insensitive; time-sensitive checks take an explicit now.
type Detector struct {
	blacklist map[string]bool
	staleness time.Duration
	minTrust  float64
}

// Option configures a Detector.
type Option func(*Detector)

// WithExtraDomains adds domains to the built-in blacklist.
func WithExtraDomains(domains []string) Option {
	return func(d *Detector) {
		for _, dom := range domains {
			dom = strings.ToLower(strings.TrimSpace(dom))
			if dom != "" {
				d.blacklist[dom] = true
			}
		}
	}
}

// WithStaleness overrides the maximum age of a report relative to ingestion.
func WithStaleness(window time.Duration) Option {
	return func(d *Detector) { d.staleness = window }
}

// WithMinAvgTrust overrides the average trust-weight floor.
func WithMinAvgTrust(floor float64) Option {
	return func(d *Detector) { d.minTrust = floor }
}

// New creates a detector with the default 30-day staleness window and a 0.3
// average-trust floor.
func New(opts ...Option) *Detector {
	d := &Detector{
		blacklist: make(map[string]bool, len(defaultBlacklist)),
		staleness: 30 * 24 * time.Hour,
		minTrust:  0.3,
	}
	for dom := range defaultBlacklist {
		d.blacklist[dom] = true
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect runs every layer and records all failures; is_fake is true when any
// layer failed. No early exit, so the verdict names every tripped layer.
func (d *Detector) Detect(c *incident.Candidate, now time.Time) Verdict {
	text := strings.ToLower(c.Title + " " + c.Narrative)

	checks := []struct {
		layer  string
		failed bool
	}{
		{LayerDomainBlacklist, d.blacklistedDomain(c.Sources)},
		{LayerSatireKeywords, containsAny(text, satireWords)},
		{LayerClickbait, matchesAny(c.Title+" "+c.Narrative, clickbaitPatterns)},
		{LayerConspiracy, containsAny(text, conspiracyWords)},
		{LayerTemporal, d.temporalInconsistent(c.OccurredAt, now)},
		{LayerSourceCredibility, d.lowCredibility(c.Sources)},
	}

	var failed []string
	for _, ch := range checks {
		if ch.failed {
			failed = append(failed, ch.layer)
		}
	}
	return Verdict{IsFake: len(failed) > 0, FailedLayers: failed}
}

func (d *Detector) blacklistedDomain(sources []incident.SourceRef) bool {
	for _, s := range sources {
		if d.blacklist[incident.Domain(s.URL)] {
			return true
		}
	}
	return false
}

func (d *Detector) temporalInconsistent(occurredAt, now time.Time) bool {
	return occurredAt.After(now) || now.Sub(occurredAt) > d.staleness
}

func (d *Detector) lowCredibility(sources []incident.SourceRef) bool {
	if len(sources) == 0 {
		return true
	}
	var sum float64
	for _, s := range sources {
		sum += s.TrustWeight
	}
	return sum/float64(len(sources)) < d.minTrust
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
