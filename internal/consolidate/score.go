package consolidate

import "github.com/linnemanlabs/skywatch/internal/incident"

// Evidence score tiers.
const (
	ScoreUnconfirmed = 1 // only low-trust sources
	ScoreReported    = 2 // at least one source with trust >= 2
	ScoreVerified    = 3 // two distinct trust >= 2 sources, one with an official quote
	ScoreOfficial    = 4 // police / military / aviation authority / NOTAM source
)

// Score computes the evidence tier from the full merged source set. First
// matching tier wins. Callers must combine it with the stored score via
// max(old, new); recomputing from the full set keeps the result independent
// of merge order.
func Score(sources []incident.SourceRef) int {
	var trusted int
	var quoted bool
	for _, s := range sources {
		if s.TrustWeight == 4 {
			return ScoreOfficial
		}
		if s.TrustWeight >= 2 {
			trusted++
		}
		if s.Quote != "" {
			quoted = true
		}
	}
	if trusted >= 2 && quoted {
		return ScoreVerified
	}
	if trusted >= 1 {
		return ScoreReported
	}
	return ScoreUnconfirmed
}
