package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seked/leadscout/internal/model"
	"github.com/seked/leadscout/internal/outreach"
	"github.com/seked/leadscout/internal/store"
)

// Allocate creates outreach attempts for OUTREACH_READY leads that have
// none open. Both propensities are frozen on the attempt at decision
// time: the query propensity is the exact sampling probability recorded
// when the bandit picked the query for this run (queryProbs, keyed by
// query id), never a recomputation from later counters. Leads surfaced
// by earlier runs carry probability 1 so the template propensity passes
// through alone.
func (p *Pipeline) Allocate(ctx context.Context, queryProbs map[string]float64) (int, error) {
	leads, err := p.store.ListLeads(ctx, store.LeadFilter{Status: model.LeadStatusOutreachReady})
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list ready leads")
	}
	if len(leads) == 0 {
		return 0, nil
	}

	templates, err := p.store.ListTemplates(ctx, true)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list templates")
	}

	created := 0
	for _, lead := range leads {
		if _, err := p.store.OpenAttemptForLead(ctx, lead.ID); err == nil {
			continue // already allocated, waiting on an outcome
		} else if !eris.Is(err, store.ErrNotFound) {
			zap.L().Warn("pipeline: open attempt lookup", zap.String("lead", lead.ID), zap.Error(err))
			continue
		}

		pctx := outreach.PickContext{
			BuyerType:    lead.BuyerType,
			PainTags:     lead.PainTags,
			ServiceTags:  lead.ServiceTags,
			OrderPageURL: p.cfg.Outreach.OrderPageURL,
			UTM: outreach.UTM{
				Source:   p.cfg.Outreach.UTMSource,
				Medium:   p.cfg.Outreach.UTMMedium,
				Campaign: p.cfg.Outreach.UTMCampaign,
			},
		}

		selection, err := outreach.Select(p.alloc, templates, pctx)
		if err != nil {
			if eris.Is(err, outreach.ErrNoTemplates) {
				return created, err
			}
			zap.L().Warn("pipeline: template selection", zap.String("lead", lead.ID), zap.Error(err))
			continue
		}

		qp := 1.0
		if prob, ok := queryProbs[lead.QueryID]; ok && lead.QueryID != "" {
			qp = prob
		}

		attempt, err := p.store.CreateAttempt(ctx, model.OutreachAttempt{
			LeadID:       lead.ID,
			QueryID:      lead.QueryID,
			TemplateID:   selection.Template.ID,
			QueryProb:    qp,
			TemplateProb: selection.Probability,
			OverallProb:  qp * selection.Probability,
			LeadScore:    lead.Score,
		})
		if err != nil {
			zap.L().Warn("pipeline: create attempt", zap.String("lead", lead.ID), zap.Error(err))
			continue
		}

		if err := p.store.IncrementTemplate(ctx, selection.Template.ID, store.TemplateDelta{Sent: 1}); err != nil {
			zap.L().Warn("pipeline: increment template", zap.Error(err))
		}
		if err := p.store.AppendLeadEvent(ctx, model.LeadEvent{
			LeadID: lead.ID,
			Type:   model.LeadEventTemplateSent,
			Meta: map[string]any{
				"attempt_id":   attempt.ID,
				"template":     selection.Template.Name,
				"body":         outreach.Render(selection.Template.Body, pctx),
				"overall_prob": attempt.OverallProb,
			},
		}); err != nil {
			zap.L().Warn("pipeline: append lead event", zap.Error(err))
		}

		zap.L().Info("pipeline: attempt allocated",
			zap.String("lead", lead.ID),
			zap.String("template", selection.Template.Name),
			zap.Float64("overall_prob", attempt.OverallProb),
		)
		created++
	}
	return created, nil
}
