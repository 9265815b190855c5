// Package canonical normalizes lead URLs into stable identity keys.
// The canonical hash is the dedup key: two URLs with the same hash refer
// to the same lead.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

// Rejection reason codes.
const (
	ReasonInvalidURL = "INVALID_URL"
	ReasonJobBoard   = "JOB_BOARD"
)

// Result holds the canonical form of a URL and its dedup hash.
type Result struct {
	CanonicalURL   string `json:"canonical_url"`
	CanonicalHash  string `json:"canonical_hash"`
	Rejected       bool   `json:"rejected"`
	RejectedReason string `json:"rejected_reason,omitempty"`
}

// marketplaceHosts are service marketplaces whose listings are never
// lead candidates.
var marketplaceHosts = map[string]struct{}{
	"upwork.com":         {},
	"www.upwork.com":     {},
	"fiverr.com":         {},
	"www.fiverr.com":     {},
	"freelancer.com":     {},
	"www.freelancer.com": {},
}

// trackingPrefixes match query parameters injected by link shorteners and
// analytics tools. Single-letter s/t params are X/Twitter share tokens.
var trackingPrefixes = []string{"utm_", "ref", "ref_src", "ref_url", "trk", "trkinfo", "igshid", "fbclid"}

var (
	redditThreadPattern = regexp.MustCompile(`(?i)/comments/([a-z0-9]+)(?:/[^/]+)?`)
	statusPathPattern   = regexp.MustCompile(`/(\w+)/status/(\d+)`)
)

// Canonicalize normalizes a raw URL into its canonical identity form.
// Unparsable input still yields a deterministic hash of the raw string so
// repeated invalid inputs dedup against each other. The operation is
// idempotent: canonicalizing a canonical URL returns it unchanged.
func Canonicalize(input string) Result {
	u, err := url.Parse(input)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Result{
			CanonicalURL:   input,
			CanonicalHash:  hash(input),
			Rejected:       true,
			RejectedReason: ReasonInvalidURL,
		}
	}

	host := strings.ToLower(u.Hostname())

	if _, ok := marketplaceHosts[host]; ok {
		canonical := origin(u) + u.EscapedPath()
		return Result{
			CanonicalURL:   canonical,
			CanonicalHash:  hash(canonical),
			Rejected:       true,
			RejectedReason: ReasonJobBoard,
		}
	}

	stripTrackingParams(u)

	if strings.HasSuffix(host, "reddit.com") {
		if m := redditThreadPattern.FindStringSubmatch(u.Path); m != nil {
			canonical := "https://reddit.com/comments/" + strings.ToLower(m[1])
			return Result{CanonicalURL: canonical, CanonicalHash: hash(canonical)}
		}
	}

	if strings.HasSuffix(host, "twitter.com") || strings.HasSuffix(host, "x.com") {
		if m := statusPathPattern.FindStringSubmatch(u.Path); m != nil {
			canonical := "https://x.com/" + m[1] + "/status/" + m[2]
			return Result{CanonicalURL: canonical, CanonicalHash: hash(canonical)}
		}
	}

	if strings.HasSuffix(host, "linkedin.com") {
		// Keep the path, drop query params.
		canonical := origin(u) + u.EscapedPath()
		return Result{CanonicalURL: canonical, CanonicalHash: hash(canonical)}
	}

	u.Fragment = ""
	canonical := origin(u) + u.EscapedPath()
	if q := u.RawQuery; q != "" {
		canonical += "?" + q
	}
	return Result{CanonicalURL: canonical, CanonicalHash: hash(canonical)}
}

// stripTrackingParams removes tracking query parameters in place.
func stripTrackingParams(u *url.URL) {
	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		for _, p := range trackingPrefixes {
			if strings.HasPrefix(lower, p) {
				q.Del(key)
				break
			}
		}
		if lower == "s" || lower == "t" {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

func hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
