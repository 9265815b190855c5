package pipeline

import (
	"github.com/seked/leadscout/internal/config"
	"github.com/seked/leadscout/internal/enrich"
	"github.com/seked/leadscout/internal/intent"
	"github.com/seked/leadscout/internal/model"
)

// Rejection reasons assigned at the gate.
const (
	reasonLowScore     = "LOW_SCORE"
	reasonSellerIntent = "SELLER_INTENT"
)

// gate decides the initial lead status. OUTREACH_READY demands a
// qualifying score plus a confident buyer verdict backed by proof;
// anything above the review floor goes to manual review; the rest is
// rejected outright.
func gate(cfg *config.Config, score int, en enrich.Enrichment) (model.LeadStatus, string) {
	if en.HasVerdict && en.Verdict.IntentClass == intent.ClassSeller {
		return model.LeadStatusRejected, reasonSellerIntent
	}

	ready := score >= cfg.Pipeline.MinScoreReady &&
		en.HasVerdict &&
		en.Verdict.IntentClass == intent.ClassBuyer &&
		en.Verdict.Confidence >= cfg.Pipeline.MinConfidence &&
		en.Verdict.ProofOk
	if ready {
		return model.LeadStatusOutreachReady, ""
	}

	if score >= cfg.Pipeline.MinScoreReview {
		return model.LeadStatusReview, ""
	}
	return model.LeadStatusRejected, reasonLowScore
}
