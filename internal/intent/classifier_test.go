package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Buyer(t *testing.T) {
	v := Classify("We are hiring a video editor for our podcast. Budget is $2k per month.")
	assert.Equal(t, ClassBuyer, v.IntentClass)
	assert.GreaterOrEqual(t, v.BuyerScore, 4)
	assert.LessOrEqual(t, v.SellerScore, 1)
	assert.Contains(t, v.Reasons, "BUYER_HINTS")
}

func TestClassify_Seller(t *testing.T) {
	v := Classify("Video editor available for work. Check my portfolio and showreel, dm me for pricing.")
	assert.Equal(t, ClassSeller, v.IntentClass)
	assert.GreaterOrEqual(t, v.SellerScore, 4)
}

func TestClassify_TieBreakByHigherScore(t *testing.T) {
	// Both sides exceed 4; the larger score wins.
	v := Classify("Hiring an editor, looking for help, budget and rate discussed. We are an agency, see our portfolio, book a call, pricing, testimonials, case studies, contact us.")
	assert.Greater(t, v.BuyerScore, 4)
	assert.Greater(t, v.SellerScore, 4)
	if v.BuyerScore >= v.SellerScore {
		assert.Equal(t, ClassBuyer, v.IntentClass)
	} else {
		assert.Equal(t, ClassSeller, v.IntentClass)
	}
}

func TestClassify_AmbiguousWhenNoSignal(t *testing.T) {
	v := Classify("This is a post about cooking pasta at home with fresh tomatoes.")
	assert.Equal(t, ClassAmbiguous, v.IntentClass)
	assert.Zero(t, v.BuyerScore)
	assert.Zero(t, v.SellerScore)
	assert.Zero(t, v.Confidence)
}

func TestClassify_ConfidenceFormula(t *testing.T) {
	// buyer=3 ("hiring"), seller=0: gap/6 + 0.25 = 0.75.
	v := Classify("hiring someone")
	assert.Equal(t, 3, v.BuyerScore)
	assert.Zero(t, v.SellerScore)
	assert.InDelta(t, 0.75, v.Confidence, 1e-9)
}

func TestClassify_ConfidenceCappedAtOne(t *testing.T) {
	v := Classify("hiring, need an editor, editor needed, looking for, budget, paid, rate, retainer, seeking")
	assert.LessOrEqual(t, v.Confidence, 1.0)
}

func TestClassify_ProofLines(t *testing.T) {
	text := "We make cooking videos. Looking for a video editor to handle our shorts. The weather is nice. Budget is flexible for the right person."
	v := Classify(text)
	assert.Len(t, v.ProofLines, 2)
	assert.Contains(t, v.ProofLines[0], "Looking for a video editor")
	assert.True(t, v.ProofOk)
	assert.True(t, v.RoleMatch)
	assert.False(t, v.RoleMismatch)
}

func TestClassify_ProofLinesCappedAtFive(t *testing.T) {
	text := "Looking for help one. Looking for help two. Looking for help three. Looking for help four. Looking for help five. Looking for help six. Looking for help seven."
	v := Classify(text)
	assert.Len(t, v.ProofLines, 5)
}

func TestEvaluateProof_RoleMismatch(t *testing.T) {
	proofOk, roleMatch, roleMismatch := EvaluateProof([]string{"Hiring a virtual assistant, budget $500"})
	assert.False(t, proofOk)
	assert.False(t, roleMatch)
	assert.True(t, roleMismatch)
}

func TestEvaluateProof_EditingRoleClearsMismatch(t *testing.T) {
	proofOk, roleMatch, roleMismatch := EvaluateProof([]string{"Hiring a video editor and a copywriter, budget $500"})
	assert.True(t, proofOk)
	assert.True(t, roleMatch)
	assert.False(t, roleMismatch)
}

func TestEvaluateProof_Empty(t *testing.T) {
	proofOk, roleMatch, roleMismatch := EvaluateProof(nil)
	assert.False(t, proofOk)
	assert.False(t, roleMatch)
	assert.False(t, roleMismatch)
}
