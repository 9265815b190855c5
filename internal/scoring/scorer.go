// Package scoring converts raw lead text into a qualification score.
//
// The scorer is pure: identical text and weights always produce an
// identical breakdown. It is the unit the online learner tunes, so any
// nondeterminism here would corrupt the learned weights.
package scoring

import (
	"math"
	"regexp"
	"strings"

	"github.com/seked/leadscout/internal/model"
)

// Buyer type tags.
const (
	BuyerTypeAgency    = "AGENCY"
	BuyerTypePodcaster = "PODCASTER"
)

// Pain and service tags.
const (
	PainSwamped  = "PAIN_SWAMPED"
	PainDeadline = "PAIN_DEADLINE"
	PainNoViews  = "PAIN_NO_VIEWS"

	ServicePodcastRepurpose = "PODCAST_REPURPOSE"
	ServiceShortForm        = "SHORT_FORM"
	ServiceCaptions         = "CAPTIONS"
)

// sellerPenalty is the flat score deduction applied when the text reads
// like someone offering services rather than buying them.
const sellerPenalty = 30

// Breakdown is the full scoring result for one lead text.
type Breakdown struct {
	Score           int      `json:"score"`
	IntentDepth     float64  `json:"intent_depth"`
	UrgencyVelocity float64  `json:"urgency_velocity"`
	BudgetSignals   float64  `json:"budget_signals"`
	FitPrecision    float64  `json:"fit_precision"`
	RushEligible    bool     `json:"rush_eligible"`
	BuyerType       string   `json:"buyer_type,omitempty"`
	PainTags        []string `json:"pain_tags"`
	ServiceTags     []string `json:"service_tags"`
}

// Text is the raw input for scoring.
type Text struct {
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Keyword tiers. Most-specific tier first; first match wins.
var (
	intentCompetitive = []string{"vs", "versus", "which is better", "compare", "alternative"}
	intentUrgentHire  = []string{"hiring", "hire", "need an editor", "looking for an editor"}
	intentActive      = []string{"need editor", "need a video editor", "need someone to edit"}
	intentPassive     = []string{"struggle", "hard to edit", "editing takes"}

	urgencyCritical = []string{"asap", "today", "urgent", "immediately"}
	urgencyHigh     = []string{"this week", "deadline", "by friday", "by monday"}
	urgencyModerate = []string{"soon", "next week", "this month"}

	budgetNegative = []string{"free", "volunteer", "student"}
	budgetStrong   = []string{"$", "budget", "paid", "rate", "retainer"}
	budgetModerate = []string{"hire", "outsource", "contractor", "pay"}

	fitPerfect = []string{"podcast repurpose", "repurpose podcast", "short form repurpose", "turn long form into shorts"}
	fitGood    = []string{"video editor shorts", "shorts editor", "tiktok editor", "reels editor", "captions"}
	// Bare role mentions ("video editor") are deliberately absent here:
	// naming the role is not evidence of service fit.
	fitModerate = []string{"edit videos", "content creator", "editing help"}

	sellerTerms = []string{"for hire", "available for work", "my services"}
)

var (
	rushPattern      = regexp.MustCompile(`12\s*hour|same\s*day|overnight`)
	agencyPattern    = regexp.MustCompile(`agency|clients|white\s*label`)
	podcasterPattern = regexp.MustCompile(`podcast|episode`)
	swampedPattern   = regexp.MustCompile(`swamped|overwhelmed|too\s*much\s*work`)
	deadlinePattern  = regexp.MustCompile(`deadline|asap|urgent`)
	noViewsPattern   = regexp.MustCompile(`no\s*views|zero\s*views|low\s*views`)
	shortFormPattern = regexp.MustCompile(`shorts|tiktok|reels`)
	captionsPattern  = regexp.MustCompile(`captions|subtitles`)
)

// Score computes the weighted qualification score and signal breakdown for
// a lead text under the given weights. The final score is rounded, has the
// seller penalty applied, and is clamped to [0, 100].
func Score(text Text, weights model.ScoringWeights) Breakdown {
	raw := strings.ToLower(text.Title + "\n" + text.Snippet)

	b := Breakdown{
		IntentDepth:     tiered(raw, tier{intentCompetitive, 50}, tier{intentUrgentHire, 40}, tier{intentActive, 25}, tier{intentPassive, 10}),
		UrgencyVelocity: tiered(raw, tier{urgencyCritical, 25}, tier{urgencyHigh, 18}, tier{urgencyModerate, 10}),
		BudgetSignals:   budgetScore(raw),
		FitPrecision:    tiered(raw, tier{fitPerfect, 10}, tier{fitGood, 6}, tier{fitModerate, 3}),
		PainTags:        []string{},
		ServiceTags:     []string{},
	}

	b.RushEligible = rushPattern.MatchString(raw) || b.UrgencyVelocity >= 18

	switch {
	case agencyPattern.MatchString(raw):
		b.BuyerType = BuyerTypeAgency
	case podcasterPattern.MatchString(raw):
		b.BuyerType = BuyerTypePodcaster
	}

	if swampedPattern.MatchString(raw) {
		b.PainTags = append(b.PainTags, PainSwamped)
	}
	if deadlinePattern.MatchString(raw) {
		b.PainTags = append(b.PainTags, PainDeadline)
	}
	if noViewsPattern.MatchString(raw) {
		b.PainTags = append(b.PainTags, PainNoViews)
	}

	if containsAny(raw, fitPerfect) {
		b.ServiceTags = append(b.ServiceTags, ServicePodcastRepurpose)
	}
	if shortFormPattern.MatchString(raw) {
		b.ServiceTags = append(b.ServiceTags, ServiceShortForm)
	}
	if captionsPattern.MatchString(raw) {
		b.ServiceTags = append(b.ServiceTags, ServiceCaptions)
	}

	weighted := b.IntentDepth*weights.IntentWeight +
		b.UrgencyVelocity*weights.UrgencyWeight +
		b.BudgetSignals*weights.BudgetWeight +
		b.FitPrecision*weights.FitWeight

	score := int(math.Round(weighted))
	if containsAny(raw, sellerTerms) {
		score -= sellerPenalty
		if score < 0 {
			score = 0
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	b.Score = score

	b.PainTags = dedup(b.PainTags)
	b.ServiceTags = dedup(b.ServiceTags)
	return b
}

type tier struct {
	terms []string
	value float64
}

// tiered returns the value of the first tier whose terms match, or 0.
func tiered(raw string, tiers ...tier) float64 {
	for _, t := range tiers {
		if containsAny(raw, t.terms) {
			return t.value
		}
	}
	return 0
}

// budgetScore is tiered like the others except that explicit no-budget
// language yields a negative contribution.
func budgetScore(raw string) float64 {
	if containsAny(raw, budgetNegative) {
		return -10
	}
	if containsAny(raw, budgetStrong) {
		return 15
	}
	if containsAny(raw, budgetModerate) {
		return 8
	}
	return 0
}

func containsAny(raw string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(raw, t) {
			return true
		}
	}
	return false
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
