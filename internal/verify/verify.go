// Package verify wraps the external text-classification provider. It owns
// orchestration only: memoization, rate limiting, hard timeouts, response
// sanity checks, and the rule of never blocking the pipeline — any provider
// failure degrades to a "no opinion" result.
package verify

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/skywatch/internal/incident"
)

// Category is the classifier's label for a candidate.
type Category string

const (
	CategoryIncident   Category = "incident"
	CategoryPolicy     Category = "policy"
	CategoryDefense    Category = "defense"
	CategoryDiscussion Category = "discussion"
)

// Opinion is the verifier's contribution to the pipeline decision.
type Opinion string

const (
	// OpinionIncident confirms the candidate describes a real incident.
	OpinionIncident Opinion = "incident"

	// OpinionReject drops the candidate: confidently not an incident.
	OpinionReject Opinion = "reject"

	// OpinionNone means the verifier has nothing usable to add; the
	// rule-based stages alone decide.
	OpinionNone Opinion = "none"
)

// Result is the verifier's verdict on a candidate.
type Result struct {
	Opinion    Opinion
	Category   Category
	Confidence float64
}

// Request is the payload sent to the classification provider.
type Request struct {
	Title        string
	Narrative    string
	LocationHint string
}

// Response is the provider's raw classification.
type Response struct {
	IsIncident bool    `json:"is_incident"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Provider is the interface for any classification backend.
type Provider interface {
	Classify(ctx context.Context, req *Request) (*Response, error)
}

// Hooks lets the caller observe verifier activity (wired to Prometheus by main).
type Hooks struct {
	OnCall     func(duration float64, outcome string)
	OnCacheHit func()
	OnFallback func(reason string)
}

const maxReasoningLen = 2000

// Verifier memoizes provider calls and converts raw classifications into
// pipeline opinions.
type Verifier struct {
	provider  Provider
	cache     *Cache
	limiter   *rate.Limiter
	timeout   time.Duration
	threshold float64
	logger    log.Logger
	hooks     Hooks
}

// New creates a verifier. A nil provider is allowed and yields OpinionNone
// for every candidate, which keeps the pipeline functional without an API key.
func New(provider Provider, cache *Cache, timeout time.Duration, threshold float64, logger log.Logger, hooks Hooks) *Verifier {
	if logger == nil {
		logger = log.Nop()
	}
	if cache == nil {
		cache = NewCache(time.Hour, nil)
	}
	return &Verifier{
		provider: provider,
		cache:    cache,
		// one inflight request per second smooths batch bursts against the
		// provider's rate limits
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		timeout:   timeout,
		threshold: threshold,
		logger:    logger,
		hooks:     hooks,
	}
}

// Verify classifies a candidate. It never returns an error: provider
// unavailability, timeouts, and malformed responses all collapse into
// OpinionNone so verification latency or flakiness can never stall a batch.
func (v *Verifier) Verify(ctx context.Context, c *incident.Candidate) Result {
	if v.provider == nil {
		return Result{Opinion: OpinionNone}
	}

	key := incident.CacheKey(c.Title, c.Narrative)
	if cached, ok := v.cache.Get(key); ok {
		if v.hooks.OnCacheHit != nil {
			v.hooks.OnCacheHit()
		}
		return cached
	}

	result := v.classify(ctx, c)
	v.cache.Put(key, result)
	return result
}

func (v *Verifier) classify(ctx context.Context, c *incident.Candidate) Result {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if err := v.limiter.Wait(ctx); err != nil {
		return v.fallback(ctx, err, "rate limiter wait")
	}

	req := &Request{
		Title:        c.Title,
		Narrative:    c.Narrative,
		LocationHint: locationHint(c),
	}

	start := time.Now()
	resp, err := v.provider.Classify(ctx, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		if v.hooks.OnCall != nil {
			v.hooks.OnCall(elapsed, "error")
		}
		return v.fallback(ctx, err, "provider call")
	}
	if v.hooks.OnCall != nil {
		v.hooks.OnCall(elapsed, "ok")
	}

	if err := validate(resp); err != nil {
		return v.fallback(ctx, err, "response validation")
	}

	// reasoning is for audit logs only, never used programmatically
	reasoning := resp.Reasoning
	if len(reasoning) > maxReasoningLen {
		reasoning = reasoning[:maxReasoningLen]
	}
	v.logger.Info(ctx, "ai classification",
		"is_incident", resp.IsIncident,
		"category", resp.Category,
		"confidence", resp.Confidence,
		"reasoning", reasoning,
	)

	cat := Category(resp.Category)
	switch {
	case resp.IsIncident:
		return Result{Opinion: OpinionIncident, Category: cat, Confidence: resp.Confidence}
	case resp.Confidence >= v.threshold:
		return Result{Opinion: OpinionReject, Category: cat, Confidence: resp.Confidence}
	default:
		// low-confidence negative: treated as no opinion, does not block
		return Result{Opinion: OpinionNone, Category: cat, Confidence: resp.Confidence}
	}
}

func (v *Verifier) fallback(ctx context.Context, err error, stage string) Result {
	v.logger.Warn(ctx, "ai verifier degraded to rule-based verdict", "stage", stage, "error", err)
	if v.hooks.OnFallback != nil {
		v.hooks.OnFallback(stage)
	}
	return Result{Opinion: OpinionNone}
}

func validate(resp *Response) error {
	if resp == nil {
		return fmt.Errorf("nil response")
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", resp.Confidence)
	}
	switch Category(resp.Category) {
	case CategoryIncident, CategoryPolicy, CategoryDefense, CategoryDiscussion:
		return nil
	}
	return fmt.Errorf("unknown category %q", resp.Category)
}

func locationHint(c *incident.Candidate) string {
	if c.HasCoordinates() {
		return fmt.Sprintf("%s, %s (%.4f, %.4f)", c.AssetType, c.Country, *c.Lat, *c.Lon)
	}
	if c.Country != "" {
		return fmt.Sprintf("%s, %s", c.AssetType, c.Country)
	}
	return string(c.AssetType)
}
