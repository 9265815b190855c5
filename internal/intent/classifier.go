// Package intent classifies lead text as buyer or seller language.
//
// Tier 1 is a cheap weighted keyword heuristic. Tier 2 escalates weak
// verdicts to a Claude model; see escalate.go.
package intent

import (
	"math"
	"strings"
)

// Intent classes.
const (
	ClassBuyer     = "BUYER"
	ClassSeller    = "SELLER"
	ClassAmbiguous = "AMBIGUOUS"
)

// maxProofLines caps the number of extracted evidence sentences.
const maxProofLines = 5

// Verdict is the classification result. Escalation replaces the whole
// verdict, never individual fields.
type Verdict struct {
	IntentClass  string   `json:"intent_class"`
	BuyerScore   int      `json:"buyer_score"`
	SellerScore  int      `json:"seller_score"`
	Confidence   float64  `json:"confidence"`
	Reasons      []string `json:"reasons"`
	ProofLines   []string `json:"proof_lines"`
	ProofOk      bool     `json:"proof_ok"`
	RoleMatch    bool     `json:"role_match"`
	RoleMismatch bool     `json:"role_mismatch"`
}

type weightedHint struct {
	term   string
	weight int
}

var buyerHints = []weightedHint{
	{"looking for", 2},
	{"need an editor", 3},
	{"editor needed", 3},
	{"need someone to edit", 3},
	{"hiring", 3},
	{"hire", 2},
	{"seeking", 2},
	{"outsourcing", 2},
	{"looking to outsource", 3},
	{"budget", 2},
	{"paid", 2},
	{"rate", 2},
	{"retainer", 2},
	{"recommend", 1},
	{"anyone know", 1},
}

var sellerHints = []weightedHint{
	{"for hire", 4},
	{"available for work", 4},
	{"available for hire", 4},
	{"open for work", 4},
	{"my services", 3},
	{"portfolio", 3},
	{"showreel", 3},
	{"dm me", 2},
	{"contact us", 3},
	{"contact me", 3},
	{"book a call", 4},
	{"schedule a call", 4},
	{"get a quote", 3},
	{"pricing", 2},
	{"our services", 3},
	{"we help", 2},
	{"case studies", 2},
	{"testimonials", 2},
	{"agency", 1},
	{"clients", 1},
}

var editingRoleTerms = []string{
	"video editor",
	"editor",
	"shorts editor",
	"reels editor",
	"tiktok editor",
	"podcast editor",
	"post production",
	"capcut",
	"premiere",
	"after effects",
}

var buyerAskTerms = []string{"looking for", "need", "editor needed", "hiring", "hire", "seeking", "budget", "paid", "rate"}

var nonEditingRoleTerms = []string{
	"affiliate",
	"growth specialist",
	"media buyer",
	"ads manager",
	"appointment setter",
	"setter",
	"closer",
	"virtual assistant",
	"va",
	"social media manager",
	"community manager",
	"thumbnail",
	"scriptwriter",
	"copywriter",
}

// Classify runs the tier-1 heuristic over the full text.
func Classify(text string) Verdict {
	raw := strings.ToLower(text)
	var reasons []string

	buyerScore := hintScore(raw, buyerHints)
	sellerScore := hintScore(raw, sellerHints)

	if buyerScore > 0 {
		reasons = append(reasons, "BUYER_HINTS")
	}
	if sellerScore > 0 {
		reasons = append(reasons, "SELLER_HINTS")
	}

	class := ClassAmbiguous
	switch {
	case buyerScore >= 4 && sellerScore <= 1:
		class = ClassBuyer
	case sellerScore >= 4 && buyerScore <= 1:
		class = ClassSeller
	case buyerScore > 4 && sellerScore > 4:
		if buyerScore >= sellerScore {
			class = ClassBuyer
		} else {
			class = ClassSeller
		}
	}

	gap := math.Abs(float64(buyerScore - sellerScore))
	confidence := gap / 6
	if buyerScore+sellerScore > 0 {
		confidence += 0.25
	}
	confidence = math.Min(1, confidence)

	proofLines := extractProofLines(text)

	proofOk, roleMatch, roleMismatch := EvaluateProof(proofLines)
	if proofOk {
		reasons = append(reasons, "PROOF_OK")
	}
	if roleMismatch {
		reasons = append(reasons, "ROLE_MISMATCH")
	}

	return Verdict{
		IntentClass:  class,
		BuyerScore:   buyerScore,
		SellerScore:  sellerScore,
		Confidence:   confidence,
		Reasons:      reasons,
		ProofLines:   proofLines,
		ProofOk:      proofOk,
		RoleMatch:    roleMatch,
		RoleMismatch: roleMismatch,
	}
}

// EvaluateProof checks whether the extracted proof lines actually support
// a buyer verdict: a buyer ask and an editing role must both be present,
// and a non-editing role without an editing role invalidates the proof.
func EvaluateProof(proofLines []string) (proofOk, roleMatch, roleMismatch bool) {
	joined := strings.ToLower(strings.Join(proofLines, "\n"))
	buyerAsk := containsAny(joined, buyerAskTerms)
	roleMatch = containsAny(joined, editingRoleTerms)
	roleMismatch = containsAny(joined, nonEditingRoleTerms) && !roleMatch
	proofOk = buyerAsk && roleMatch && !roleMismatch
	return proofOk, roleMatch, roleMismatch
}

// extractProofLines returns up to maxProofLines distinct sentences that
// contain a buyer hint phrase.
func extractProofLines(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range splitSentences(text) {
		lower := strings.ToLower(s)
		matched := false
		for _, h := range buyerHints {
			if strings.Contains(lower, h.term) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == maxProofLines {
			break
		}
	}
	return out
}

// splitSentences splits on sentence-ending punctuation followed by
// whitespace, and on line breaks.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			flush(&sentences, &b)
			continue
		}
		b.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && isSpace(runes[i+1]) {
			flush(&sentences, &b)
		}
	}
	flush(&sentences, &b)
	return sentences
}

func flush(sentences *[]string, b *strings.Builder) {
	if s := strings.TrimSpace(b.String()); s != "" {
		*sentences = append(*sentences, s)
	}
	b.Reset()
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func hintScore(raw string, hints []weightedHint) int {
	score := 0
	for _, h := range hints {
		if strings.Contains(raw, h.term) {
			score += h.weight
		}
	}
	return score
}

func containsAny(raw string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(raw, t) {
			return true
		}
	}
	return false
}
