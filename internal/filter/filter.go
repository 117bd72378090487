// Package filter implements the geographic and topic filter stage: candidates
// outside the configured region, or describing news about drones (policy,
// defense deployments) rather than observed drones, are rejected before the
// more expensive stages run.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Verdict is the outcome of the filter stage.
type Verdict struct {
	Pass   bool
	Reason string

	// Place is the gazetteer token that matched when the candidate had no
	// coordinates; used downstream as the location part of the grouping key.
	Place string
}

// BoundingBox is the in-scope geographic region, edges inclusive.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// DefaultBoundingBox covers Europe, 35-71N / -10-31E.
func DefaultBoundingBox() BoundingBox {
	return BoundingBox{MinLat: 35, MaxLat: 71, MinLon: -10, MaxLon: 31}
}

// Contains reports whether the point lies inside the box, edges inclusive.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Validate checks the box is well-formed.
func (b BoundingBox) Validate() error {
	if b.MinLat >= b.MaxLat {
		return fmt.Errorf("bounding box: min latitude %v >= max latitude %v", b.MinLat, b.MaxLat)
	}
	if b.MinLon >= b.MaxLon {
		return fmt.Errorf("bounding box: min longitude %v >= max longitude %v", b.MinLon, b.MaxLon)
	}
	return nil
}

// gazetteer lists in-scope place and country mentions checked when a
// candidate was never geocoded. Lowercase; matched as substrings of the
// lowercased candidate text. Absence of any match is a reject, not a
// pass-by-default.
var gazetteer = []string{
	// countries, local spellings included
	"denmark", "danmark", "norway", "norge", "sweden", "sverige", "finland",
	"suomi", "germany", "deutschland", "netherlands", "nederland", "belgium",
	"poland", "polska", "estonia", "eesti", "latvia", "latvija", "lithuania",
	"lietuva", "france", "united kingdom", "ireland", "spain", "portugal",
	"italy", "austria", "switzerland", "czech", "slovakia", "hungary",
	"romania", "iceland",
	// frequently reported facilities and cities
	"copenhagen", "københavn", "aalborg", "billund", "kastrup", "esbjerg",
	"oslo", "gardermoen", "bergen", "stavanger", "stockholm", "arlanda",
	"gothenburg", "göteborg", "malmö", "helsinki", "vantaa", "tallinn",
	"riga", "vilnius", "warsaw", "gdansk", "gdańsk", "hamburg", "frankfurt",
	"munich", "münchen", "berlin", "brussels", "schiphol", "amsterdam",
	"rotterdam", "heathrow", "gatwick", "london", "paris", "brønnøysund",
	"karup", "skrydstrup", "bornholm",
}

// Policy patterns: legislative or regulatory verbs near "drone". These are
// stories about drones, not sightings of drones.
var policyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdrone[- ]?(ban|law|rule|rules|regulation|legislation|policy|bill|act)\b`),
	regexp.MustCompile(`(?i)\b(ban|bans|banned|banning|regulate[sd]?|regulating|legislation|legislate[sd]?|bill|proposal|propose[sd]?)\b[^.]{0,60}\bdrones?\b`),
	regexp.MustCompile(`(?i)\bdrones?\b[^.]{0,60}\b(ban|banned|regulation|legislation|restricted zone law|new rules)\b`),
	regexp.MustCompile(`(?i)\b(parliament|minister|ministry|government|eu commission|lawmakers?)\b[^.]{0,80}\bdrones?\b`),
}

// Defense-deployment patterns: military assets being moved or deployed in
// response to the drone situation, not drones being observed.
var defensePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(deploy(s|ed|ing|ment)?|stations?|stationed|sends?|sending|sent|dispatch(es|ed)?)\b[^.]{0,80}\b(troops?|soldiers?|air defen[cs]e|anti-?drone|counter-?drone|frigate|jets?|radar|missile)\b`),
	regexp.MustCompile(`(?i)\b(nato|bundeswehr|armed forces|military|army|navy|air force)\b[^.]{0,60}\b(deploy|reinforce|strengthen|bolster|beef up|step(s|ped)? up)\b`),
	regexp.MustCompile(`(?i)\b(anti-?drone|counter-?drone|c-?uas)\b[^.]{0,60}\b(system|capability|capabilities|equipment|measures?)\b`),
}

// Filter is the pure geographic and topic classifier. Zero side effects.
type Filter struct {
	box BoundingBox
}

// New creates a filter for the given bounding box.
func New(box BoundingBox) *Filter {
	return &Filter{box: box}
}

// Check classifies a candidate by geography then topic. Ambiguous text (no
// clear policy/defense match) passes, deferring to the later stages rather
// than silently dropping a legitimate report.
func (f *Filter) Check(title, narrative string, lat, lon *float64) Verdict {
	text := strings.ToLower(title + " " + narrative)

	var place string
	if lat != nil && lon != nil {
		if !f.box.Contains(*lat, *lon) {
			return Verdict{Pass: false, Reason: fmt.Sprintf("coordinates %.4f,%.4f outside region", *lat, *lon)}
		}
	} else {
		place = matchGazetteer(text)
		if place == "" {
			return Verdict{Pass: false, Reason: "no coordinates and no in-scope place mentioned"}
		}
	}

	for _, re := range policyPatterns {
		if re.MatchString(text) {
			return Verdict{Pass: false, Reason: "policy story: " + re.FindString(text)}
		}
	}
	for _, re := range defensePatterns {
		if re.MatchString(text) {
			return Verdict{Pass: false, Reason: "defense deployment story: " + re.FindString(text)}
		}
	}

	return Verdict{Pass: true, Place: place}
}

func matchGazetteer(text string) string {
	for _, place := range gazetteer {
		if strings.Contains(text, place) {
			return place
		}
	}
	return ""
}
