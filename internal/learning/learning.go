// Package learning turns delayed outreach outcomes into unbiased reward
// estimates and online weight updates.
//
// Outcomes are observed through the allocation policy itself, so naive
// win/trial ratios are biased toward frequently chosen items. Rewards are
// therefore reweighted by the inverse of the propensity recorded on the
// originating attempt.
package learning

import (
	"math"

	"github.com/seked/leadscout/internal/model"
)

const (
	// propensityFloor guards the division against near-zero propensities.
	propensityFloor = 1e-6
	// weightCap bounds the variance contribution of rare low-propensity
	// observations.
	weightCap = 50.0

	// learningRate controls the per-outcome scoring weight nudge.
	learningRate = 0.02
	// featureScale maps the raw subscore range (roughly -10..50) onto [-1,1].
	featureScale = 50.0

	weightMin = 0.5
	weightMax = 2.0
)

// IPSUpdate is one inverse-propensity-weighted observation.
type IPSUpdate struct {
	Reward float64 `json:"reward"`
	Weight float64 `json:"weight"`
}

// ComputeIPS converts a terminal outcome and the overall propensity frozen
// on the originating attempt into a reward observation. The weight is
// monotonically non-increasing in the propensity and capped.
func ComputeIPS(outcome model.Outcome, overallProb float64) IPSUpdate {
	reward := 0.0
	if outcome == model.OutcomeWon {
		reward = 1.0
	}
	w := 1.0 / math.Max(propensityFloor, overallProb)
	return IPSUpdate{Reward: reward, Weight: math.Min(weightCap, w)}
}

// IPSMean is the running weighted mean reward: sum(reward*weight) over
// sum(weight). Losses contribute nothing to the numerator but still dilute
// the mean through the denominator.
func IPSMean(rewardSum, weightSum float64) float64 {
	if weightSum <= 0 {
		return 0
	}
	return rewardSum / weightSum
}

// FeatureVector is the signal breakdown of the lead an outcome belongs to.
type FeatureVector struct {
	IntentDepth     float64 `json:"intent_depth"`
	UrgencyVelocity float64 `json:"urgency_velocity"`
	BudgetSignals   float64 `json:"budget_signals"`
	FitPrecision    float64 `json:"fit_precision"`
}

// NextWeights computes the successor weight row for one observed outcome:
// each dimension moves by lr * (+1 for a win, -1 for a loss) * the feature
// value normalized to [-1,1], clamped to [0.5, 2.0]. The caller appends the
// result as a new row; existing rows are never mutated so propensities
// recorded under past weights stay historically accurate.
func NextWeights(current model.ScoringWeights, features FeatureVector, outcome model.Outcome) model.ScoringWeights {
	y := -1.0
	if outcome == model.OutcomeWon {
		y = 1.0
	}

	step := func(w, feature float64) float64 {
		next := w + learningRate*y*normalize(feature)
		return clamp(next, weightMin, weightMax)
	}

	return model.ScoringWeights{
		IntentWeight:  step(current.IntentWeight, features.IntentDepth),
		UrgencyWeight: step(current.UrgencyWeight, features.UrgencyVelocity),
		BudgetWeight:  step(current.BudgetWeight, features.BudgetSignals),
		FitWeight:     step(current.FitWeight, features.FitPrecision),
	}
}

func normalize(v float64) float64 {
	return clamp(v/featureScale, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
