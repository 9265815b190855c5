package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seked/leadscout/internal/learning"
	"github.com/seked/leadscout/internal/model"
	"github.com/seked/leadscout/internal/store"
)

// RecordOutcome attaches a terminal outcome to an attempt, looked up by
// attempt id or by the lead's newest open attempt. It feeds the
// inverse-propensity reward into the query and template aggregates,
// settles the lead status, and appends the next scoring weight row.
// A replayed outcome returns store.ErrOutcomeRecorded untouched.
func (p *Pipeline) RecordOutcome(ctx context.Context, attemptID, leadID string, outcome model.Outcome) (*model.OutreachAttempt, error) {
	if outcome != model.OutcomeWon && outcome != model.OutcomeLost {
		return nil, eris.Errorf("pipeline: invalid outcome %q", outcome)
	}

	var attempt *model.OutreachAttempt
	var err error
	switch {
	case attemptID != "":
		attempt, err = p.store.GetAttempt(ctx, attemptID)
	case leadID != "":
		attempt, err = p.store.OpenAttemptForLead(ctx, leadID)
	default:
		return nil, eris.New("pipeline: attempt or lead id required")
	}
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve attempt")
	}

	if err := p.store.SetAttemptOutcome(ctx, attempt.ID, outcome, time.Now().UTC()); err != nil {
		return nil, err
	}
	attempt.Outcome = outcome

	ips := learning.ComputeIPS(outcome, attempt.OverallProb)
	won := outcome == model.OutcomeWon

	if attempt.QueryID != "" {
		delta := store.QueryDelta{
			IPSReward: ips.Reward * ips.Weight,
			IPSWeight: ips.Weight,
		}
		if won {
			delta.Won = 1
			delta.MarkWin = true
		} else {
			delta.Lost = 1
		}
		if err := p.store.IncrementQuery(ctx, attempt.QueryID, delta); err != nil {
			zap.L().Warn("pipeline: increment query", zap.Error(err))
		}
	}

	if attempt.TemplateID != "" {
		delta := store.TemplateDelta{
			IPSReward: ips.Reward * ips.Weight,
			IPSWeight: ips.Weight,
		}
		if won {
			delta.Won = 1
		}
		if err := p.store.IncrementTemplate(ctx, attempt.TemplateID, delta); err != nil {
			zap.L().Warn("pipeline: increment template", zap.Error(err))
		}
	}

	status := model.LeadStatusLost
	eventType := model.LeadEventLost
	if won {
		status = model.LeadStatusWon
		eventType = model.LeadEventWon
	}
	if err := p.store.SetLeadStatus(ctx, attempt.LeadID, status, ""); err != nil {
		zap.L().Warn("pipeline: set lead status", zap.Error(err))
	}
	if err := p.store.AppendLeadEvent(ctx, model.LeadEvent{
		LeadID: attempt.LeadID,
		Type:   eventType,
		Meta: map[string]any{
			"attempt_id": attempt.ID,
			"reward":     ips.Reward,
			"ips_weight": ips.Weight,
		},
	}); err != nil {
		zap.L().Warn("pipeline: append lead event", zap.Error(err))
	}

	if err := p.updateWeights(ctx, attempt.LeadID, outcome); err != nil {
		zap.L().Warn("pipeline: update weights", zap.Error(err))
	}

	zap.L().Info("pipeline: outcome recorded",
		zap.String("attempt", attempt.ID),
		zap.String("outcome", string(outcome)),
		zap.Float64("ips_weight", ips.Weight),
	)
	return attempt, nil
}

// updateWeights appends the successor weight row derived from the lead's
// stored signal breakdown.
func (p *Pipeline) updateWeights(ctx context.Context, leadID string, outcome model.Outcome) error {
	lead, err := p.store.GetLead(ctx, leadID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load lead for weight update")
	}

	current, err := p.store.CurrentWeights(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: load current weights")
	}

	next := learning.NextWeights(current, learning.FeatureVector{
		IntentDepth:     lead.IntentDepth,
		UrgencyVelocity: lead.UrgencyVelocity,
		BudgetSignals:   lead.BudgetSignals,
		FitPrecision:    lead.FitPrecision,
	}, outcome)

	if _, err := p.store.AppendWeights(ctx, next); err != nil {
		return eris.Wrap(err, "pipeline: append weights")
	}
	return nil
}
