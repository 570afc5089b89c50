package dedup

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mfonda/simhash"
)

const (
	// DefaultThreshold is the Hamming distance at or below which two
	// fingerprints are considered near-duplicates.
	DefaultThreshold = 5

	// DefaultWindow is how many recent non-duplicate items the
	// near-duplicate search scans.
	DefaultWindow = 500
)

// trackingParams are stripped during URL canonicalization. Any parameter
// with an "utm_" prefix is stripped as well.
var trackingParams = map[string]struct{}{
	"fbclid":      {},
	"gclid":       {},
	"ref":         {},
	"source":      {},
	"campaign_id": {},
	"_hsenc":      {},
	"_hsmi":       {},
}

// CanonicalizeURL normalizes a URL into the identity key used for exact
// duplicate detection: lower-cased scheme and host, trailing slash stripped
// from the path (root stays "/"), tracking parameters removed, fragment
// dropped. Remaining query parameters keep their original relative order.
func CanonicalizeURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("url %q has no scheme or host", raw)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""

	path := strings.TrimRight(parsed.Path, "/")
	if path == "" {
		path = "/"
	}
	parsed.Path = path
	parsed.RawPath = ""

	parsed.RawQuery = filterQuery(parsed.RawQuery)

	return parsed.String(), nil
}

// filterQuery drops tracking parameters while preserving the relative order
// of the survivors. url.Values would lose ordering, so the raw query is
// walked pair by pair.
func filterQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	pairs := strings.Split(rawQuery, "&")
	kept := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		key := pair
		if idx := strings.Index(pair, "="); idx >= 0 {
			key = pair[:idx]
		}
		if isTrackingParam(key) {
			continue
		}
		kept = append(kept, pair)
	}

	return strings.Join(kept, "&")
}

func isTrackingParam(key string) bool {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		decoded = key
	}
	lowered := strings.ToLower(decoded)
	if strings.HasPrefix(lowered, "utm_") {
		return true
	}
	_, tracked := trackingParams[lowered]
	return tracked
}

// Fingerprint computes the 64-bit SimHash of whitespace- and case-normalized
// text. ok is false for empty input; such items carry no near-duplicate
// signal and must never be compared.
func Fingerprint(text string) (hash uint64, ok bool) {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if normalized == "" {
		return 0, false
	}
	return simhash.Simhash(simhash.NewWordFeatureSet([]byte(normalized))), true
}

// HammingDistance counts differing bits between two fingerprints.
func HammingDistance(a, b uint64) int {
	return int(simhash.Compare(a, b))
}

// IsDuplicate reports whether two fingerprints are within threshold bits of
// each other.
func IsDuplicate(a, b uint64, threshold int) bool {
	return HammingDistance(a, b) <= threshold
}

// Signed reinterprets a fingerprint as int64 for BIGINT storage. Values
// above 2^63-1 map onto the negative range; the bit pattern is preserved.
func Signed(h uint64) int64 {
	return int64(h)
}

// Unsigned reverses Signed.
func Unsigned(v int64) uint64 {
	return uint64(v)
}
