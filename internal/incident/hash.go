package incident

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// NormalizeURL canonicalizes a source URL for dedup: lowercase scheme/host,
// strip default ports, fragments, tracking params, and trailing slashes.
// Unparseable URLs are returned trimmed and lowercased so dedup still works.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimPrefix(u.Host, "www.")
	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""

	q := u.Query()
	for param := range q {
		if strings.HasPrefix(param, "utm_") || param == "fbclid" || param == "gclid" {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// Domain extracts the registrable host of a URL (lowercased, www-stripped)
// for blacklist matching. Empty when the URL has no host.
func Domain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// GroupKey builds the facility grouping key: asset type, country, and the
// coordinates rounded to precision decimal degrees. Candidates without
// coordinates fall back to the gazetteer place token so text-located reports
// still group stably; title is deliberately not part of the key.
func GroupKey(assetType AssetType, country string, lat, lon *float64, place string, precision int) string {
	loc := "place:" + strings.ToLower(strings.TrimSpace(place))
	if lat != nil && lon != nil {
		loc = fmt.Sprintf("%s,%s", roundCoord(*lat, precision), roundCoord(*lon, precision))
	}
	return string(assetType) + "|" + strings.ToUpper(country) + "|" + loc
}

func roundCoord(v float64, precision int) string {
	s := fmt.Sprintf("%.*f", precision, v)
	// avoid "-0.00" vs "0.00" splitting a facility across two keys
	if strings.Trim(s, "-0.") == "" {
		s = strings.TrimPrefix(s, "-")
	}
	return s
}

// ContentHash derives the stable dedup key for an incident created from the
// given group key and occurrence time. The occurrence time is bucketed by the
// merge window so a scraper retry reproduces the same hash; near-edge events
// in the neighboring bucket are still caught by the engine's sliding-window
// lookup before a new incident is created.
func ContentHash(groupKey string, occurredAt time.Time, window time.Duration) string {
	bucket := occurredAt.UTC().Truncate(window).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(groupKey + "|" + bucket))
	return hex.EncodeToString(sum[:])
}

// CacheKey derives the AI verifier memoization key from the candidate text.
func CacheKey(title, narrative string) string {
	canon := strings.ToLower(strings.Join(strings.Fields(title+" "+narrative), " "))
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:])
}
