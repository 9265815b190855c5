// Package entity maps lead identity signals onto persistent entity records.
package entity

import (
	"strings"

	"github.com/agext/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/seked/leadscout/internal/model"
)

// Match reason codes, in precedence order.
const (
	ReasonEmail  = "EMAIL"
	ReasonDomain = "DOMAIN"
	ReasonHandle = "HANDLE"
	ReasonNone   = "NONE"
)

// handleSimilarityThreshold is the minimum normalized edit-distance
// similarity accepted for a fuzzy handle match.
const handleSimilarityThreshold = 0.8

// Identity holds the identity signals extracted from a single lead.
type Identity struct {
	Email       string `json:"email,omitempty"`
	Domain      string `json:"domain,omitempty"`
	Handle      string `json:"handle,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Source      string `json:"source,omitempty"`
}

// Match is the result of resolving an identity against known entities.
type Match struct {
	EntityID   string  `json:"entity_id,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

var lower = cases.Lower(language.Und)

// Resolve matches an identity against candidate entities. Tiers are checked
// in precedence order and each tier runs only if the previous found nothing:
// exact email (1.0), exact domain (0.9), best fuzzy handle (0.8).
//
// The handle tier is greedy nearest-neighbor, not a globally optimal
// assignment: the single best-scoring handle across all candidates wins,
// and ties resolve to whichever candidate was seen first.
func Resolve(identity Identity, candidates []model.Entity) Match {
	if email := lower.String(strings.TrimSpace(identity.Email)); email != "" {
		for _, c := range candidates {
			for _, e := range c.Emails {
				if lower.String(e) == email {
					return Match{EntityID: c.ID, Confidence: 1.0, Reason: ReasonEmail}
				}
			}
		}
	}

	if domain := lower.String(strings.TrimSpace(identity.Domain)); domain != "" {
		for _, c := range candidates {
			for _, d := range c.Domains {
				if lower.String(d) == domain {
					return Match{EntityID: c.ID, Confidence: 0.9, Reason: ReasonDomain}
				}
			}
		}
	}

	if handle := NormalizeHandle(identity.Handle); handle != "" {
		bestID := ""
		bestScore := -1.0
		for _, c := range candidates {
			for _, h := range c.Handles {
				if s := similarity(handle, NormalizeHandle(h)); s > bestScore {
					bestID = c.ID
					bestScore = s
				}
			}
		}
		if bestID != "" && bestScore >= handleSimilarityThreshold {
			return Match{EntityID: bestID, Confidence: 0.8, Reason: ReasonHandle}
		}
	}

	return Match{Confidence: 0, Reason: ReasonNone}
}

// NormalizeHandle trims whitespace, strips a leading @, and lowercases.
func NormalizeHandle(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimPrefix(h, "@")
	return lower.String(h)
}

// similarity is edit-distance similarity normalized to [0,1]:
// 1 - distance/max(lenA, lenB).
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	dist := levenshtein.Distance(a, b, nil)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return 1 - float64(dist)/float64(maxLen)
}
