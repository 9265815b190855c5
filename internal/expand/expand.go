// Package expand proposes new search queries from what the pipeline has
// already learned: winning text patterns and the domains of resolved
// entities. Suggestions are advisory; nothing is enabled without an
// operator seeding it.
package expand

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/seked/leadscout/internal/model"
)

// Suggestion is one proposed query with a prior score in [0,1].
type Suggestion struct {
	Name       string           `json:"name"`
	Query      string           `json:"query"`
	Score      float64          `json:"score"`
	SourcePack model.SourcePack `json:"source_pack"`
}

// Pattern is a winning text pattern with its observed win rate.
type Pattern struct {
	Key     string
	WinRate float64
}

// Input bundles the learning signals that feed expansion.
type Input struct {
	TopDomains  []string
	TopPatterns []Pattern
	SeedIntents []string
}

// defaultIntents seed expansion when no intents have been learned yet.
var defaultIntents = []string{
	"need an editor",
	"hiring editor",
	"outsource editing",
	"urgent editor asap",
	"podcast repurpose editor",
	"shorts editor captions",
}

const (
	maxPatterns = 10
	maxDomains  = 15
	// negativeSites excludes freelancer marketplaces from every suggestion.
	negativeSites = "-upwork -fiverr"
)

var (
	tokenCleanPattern = regexp.MustCompile(`[^a-z0-9_\s-]`)
	agencyPattern     = regexp.MustCompile(`agency`)
	podcastPattern    = regexp.MustCompile(`podcast`)
)

// Suggest generates deduplicated query suggestions, highest prior first.
// Domain-targeted queries rank above pattern queries, which rank above
// raw intent expansions.
func Suggest(in Input) []Suggestion {
	intents := in.SeedIntents
	if len(intents) == 0 {
		intents = defaultIntents
	}

	patterns := make([]Pattern, len(in.TopPatterns))
	copy(patterns, in.TopPatterns)
	sort.SliceStable(patterns, func(i, j int) bool { return patterns[i].WinRate > patterns[j].WinRate })
	if len(patterns) > maxPatterns {
		patterns = patterns[:maxPatterns]
	}

	domains := in.TopDomains
	if len(domains) > maxDomains {
		domains = domains[:maxDomains]
	}

	var suggestions []Suggestion

	for _, intent := range intents {
		suggestions = append(suggestions, Suggestion{
			Name:       "Expansion: " + intent,
			Query:      fmt.Sprintf("%s budget %s", intent, negativeSites),
			Score:      0.5,
			SourcePack: model.SourcePackWideWeb,
		})
	}

	for _, p := range patterns {
		key := strings.ToLower(p.Key)
		phrase := patternPhrase(key)
		suggestions = append(suggestions, Suggestion{
			Name:       "Pattern: " + key,
			Query:      fmt.Sprintf("%s need editor budget %s", phrase, negativeSites),
			Score:      0.8,
			SourcePack: patternPack(key),
		})
	}

	for _, d := range domains {
		domain := strings.ToLower(strings.TrimPrefix(d, "www."))
		suggestions = append(suggestions, Suggestion{
			Name:       "Entity domain: " + domain,
			Query:      fmt.Sprintf("site:%s (need editor OR hiring editor OR outsource editing OR podcast repurpose)", domain),
			Score:      0.9,
			SourcePack: model.SourcePackWideWeb,
		})
	}

	suggestions = dedupeByQuery(suggestions)
	for i := range suggestions {
		suggestions[i].Score = clamp(suggestions[i].Score, 0, 1)
	}
	sort.SliceStable(suggestions, func(i, j int) bool { return suggestions[i].Score > suggestions[j].Score })
	return suggestions
}

// patternPhrase reduces a pattern key to at most six clean tokens.
func patternPhrase(key string) string {
	cleaned := tokenCleanPattern.ReplaceAllString(key, " ")
	tokens := strings.Fields(cleaned)
	if len(tokens) > 6 {
		tokens = tokens[:6]
	}
	return strings.Join(tokens, " ")
}

func patternPack(key string) model.SourcePack {
	switch {
	case agencyPattern.MatchString(key):
		return model.SourcePackProfessional
	case podcastPattern.MatchString(key):
		return model.SourcePackForums
	default:
		return model.SourcePackWideWeb
	}
}

func dedupeByQuery(items []Suggestion) []Suggestion {
	seen := make(map[string]struct{})
	out := make([]Suggestion, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item.Query))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
