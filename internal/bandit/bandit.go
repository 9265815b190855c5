// Package bandit implements the UCB1 + softmax allocation policy shared by
// query selection and template selection.
//
// Every selection returns the exact probability with which the item was
// drawn. That propensity feeds the inverse-propensity learner and must be
// the value observed at decision time, never recomputed later.
package bandit

import (
	"math"
	"math/rand"

	"github.com/rotisserie/eris"
)

// Arm is anything with trial and win counters.
type Arm interface {
	Trials() int
	Wins() int
}

// Rand supplies the uniform draws used for sampling. Tests inject a
// deterministic sequence to pin down allocation outcomes.
type Rand interface {
	Float64() float64
}

// Pick is one selected arm together with its sampling propensity.
type Pick[A Arm] struct {
	Item        A       `json:"item"`
	Probability float64 `json:"probability"`
}

// ErrNoArms is returned when selection is attempted over an empty set.
var ErrNoArms = eris.New("bandit: no arms to select from")

// Allocator samples arms proportionally to a softmax over UCB1 scores.
type Allocator struct {
	rng Rand
}

// New creates an Allocator drawing from the given random source. A nil
// source falls back to the global math/rand generator.
func New(rng Rand) *Allocator {
	if rng == nil {
		rng = defaultRand{}
	}
	return &Allocator{rng: rng}
}

type defaultRand struct{}

func (defaultRand) Float64() float64 { return rand.Float64() }

// UCB1 scores an arm: observed mean reward plus an optimism bonus that
// shrinks as the arm accumulates trials. An unseen arm scores 1, the
// ceiling of the mean term, so it can never be starved of probability.
func UCB1(wins, trials, totalTrials int) float64 {
	if trials <= 0 {
		return 1
	}
	mean := float64(wins) / math.Max(1, float64(trials))
	total := math.Max(2, float64(totalTrials))
	explore := math.Sqrt(2 * math.Log(total) / float64(trials))
	return mean + explore
}

// Softmax converts scores into a probability distribution. The max score
// is subtracted before exponentiating to keep the computation stable.
func Softmax(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	exps := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		exps[i] = math.Exp(s - maxScore)
		sum += exps[i]
	}
	sum = math.Max(1e-12, sum)
	for i := range exps {
		exps[i] /= sum
	}
	return exps
}

// Sample draws one index from a probability distribution by walking the
// cumulative sum.
func (a *Allocator) Sample(probs []float64) int {
	r := a.rng.Float64()
	acc := 0.0
	for i, p := range probs {
		acc += p
		if r <= acc {
			return i
		}
	}
	return len(probs) - 1
}

// SelectOne draws one arm from the set.
func SelectOne[A Arm](a *Allocator, arms []A) (Pick[A], error) {
	picks, err := SelectK(a, arms, 1)
	if err != nil {
		return Pick[A]{}, err
	}
	return picks[0], nil
}

// SelectK draws up to k distinct arms without replacement. UCB1 scores are
// recomputed over the shrinking pool after each draw, but total trials stay
// frozen at their round-start value so earlier draws do not distort the
// exploration bonus of later ones. Each pick carries the probability it had
// at the moment it was drawn.
func SelectK[A Arm](a *Allocator, arms []A, k int) ([]Pick[A], error) {
	if len(arms) == 0 {
		return nil, ErrNoArms
	}
	if k > len(arms) {
		k = len(arms)
	}

	totalTrials := 0
	for _, arm := range arms {
		totalTrials += max(0, arm.Trials())
	}

	remaining := make([]A, len(arms))
	copy(remaining, arms)

	picks := make([]Pick[A], 0, k)
	for len(picks) < k {
		scores := make([]float64, len(remaining))
		for i, arm := range remaining {
			scores[i] = UCB1(arm.Wins(), arm.Trials(), totalTrials)
		}
		probs := Softmax(scores)
		idx := a.Sample(probs)
		picks = append(picks, Pick[A]{Item: remaining[idx], Probability: probs[idx]})
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return picks, nil
}
