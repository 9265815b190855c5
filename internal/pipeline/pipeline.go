// Package pipeline orchestrates the lead pass: query selection, search,
// safety filtering, scoring, enrichment, gating, and persistence, plus
// outreach allocation and outcome recording.
package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seked/leadscout/internal/bandit"
	"github.com/seked/leadscout/internal/canonical"
	"github.com/seked/leadscout/internal/config"
	"github.com/seked/leadscout/internal/enrich"
	"github.com/seked/leadscout/internal/entity"
	"github.com/seked/leadscout/internal/learning"
	"github.com/seked/leadscout/internal/model"
	"github.com/seked/leadscout/internal/safety"
	"github.com/seked/leadscout/internal/scoring"
	"github.com/seked/leadscout/internal/store"
	"github.com/seked/leadscout/pkg/search"
)

// ErrNoQueries is returned when a pass is requested and no enabled
// queries exist.
var ErrNoQueries = eris.New("pipeline: no enabled queries")

// Pipeline wires the lead pass together.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	search   search.Provider
	enricher *enrich.Enricher
	alloc    *bandit.Allocator
}

// New creates a Pipeline. alloc may be nil, in which case a default
// random source is used.
func New(cfg *config.Config, st store.Store, provider search.Provider, enricher *enrich.Enricher, alloc *bandit.Allocator) *Pipeline {
	if alloc == nil {
		alloc = bandit.New(nil)
	}
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		search:   provider,
		enricher: enricher,
		alloc:    alloc,
	}
}

// Stats summarizes one full pass.
type Stats struct {
	QueriesRun int `json:"queries_run"`
	Results    int `json:"results"`
	Leads      int `json:"leads"`
	Qualified  int `json:"qualified"`
	Rejected   int `json:"rejected"`
	Skipped    int `json:"skipped"`
	Attempts   int `json:"attempts"`
	Sanitized  int `json:"sanitized"`
	Disabled   int `json:"disabled"`
}

// Run executes one full pass: bandit query selection, concurrent
// per-query search passes, the sanitize sweep, low-performer disabling,
// and outreach allocation.
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	weights, err := p.store.CurrentWeights(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load weights")
	}

	queries, err := p.store.ListQueries(ctx, true)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list queries")
	}
	if len(queries) == 0 {
		return nil, ErrNoQueries
	}

	picks, err := bandit.SelectK(p.alloc, queries, p.cfg.Pipeline.QueriesPerRun)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: select queries")
	}

	stats := &Stats{}
	var mu sync.Mutex

	// Sampling probabilities frozen at selection time; allocation stamps
	// these onto attempts instead of recomputing from updated counters.
	queryProbs := make(map[string]float64, len(picks))
	for _, pick := range picks {
		queryProbs[pick.Item.ID] = pick.Probability
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, pick := range picks {
		g.Go(func() error {
			ps := p.pass(gctx, pick.Item, pick.Probability, weights)
			mu.Lock()
			stats.QueriesRun++
			stats.Results += ps.Results
			stats.Leads += ps.Leads
			stats.Qualified += ps.Qualified
			stats.Rejected += ps.Rejected
			stats.Skipped += ps.Skipped
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, eris.Wrap(err, "pipeline: passes")
	}

	sanitized, err := p.Sanitize(ctx)
	if err != nil {
		zap.L().Warn("pipeline: sanitize sweep failed", zap.Error(err))
	}
	stats.Sanitized = sanitized

	disabled, err := p.disableStaleQueries(ctx)
	if err != nil {
		zap.L().Warn("pipeline: disable sweep failed", zap.Error(err))
	}
	stats.Disabled = disabled

	attempts, err := p.Allocate(ctx, queryProbs)
	if err != nil {
		zap.L().Warn("pipeline: allocation failed", zap.Error(err))
	}
	stats.Attempts = attempts

	zap.L().Info("pipeline: pass complete",
		zap.Int("queries_run", stats.QueriesRun),
		zap.Int("results", stats.Results),
		zap.Int("leads", stats.Leads),
		zap.Int("qualified", stats.Qualified),
		zap.Int("attempts", stats.Attempts),
	)
	return stats, nil
}

type passStats struct {
	Results   int
	Leads     int
	Qualified int
	Rejected  int
	Skipped   int
}

// pass runs one query against the search provider and processes every
// result. A failed search marks the run FAILED but never aborts the
// sibling passes.
func (p *Pipeline) pass(ctx context.Context, q model.Query, queryProb float64, weights model.ScoringWeights) passStats {
	log := zap.L().With(zap.String("query", q.Name))
	ps := passStats{}

	run, err := p.store.CreateRun(ctx, q.ID, p.cfg.Search.Location)
	if err != nil {
		log.Error("pipeline: create run", zap.Error(err))
		return ps
	}

	results, err := p.search.Search(ctx, q.Query, search.Options{
		Location: p.cfg.Search.Location,
		GL:       p.cfg.Search.GL,
		HL:       p.cfg.Search.HL,
		Num:      p.cfg.Search.MaxResults,
	})
	if err != nil {
		log.Error("pipeline: search failed", zap.Error(err))
		if ferr := p.store.FinishRun(ctx, run.ID, model.RunStatusFailed, err.Error(), 0, 0, 0); ferr != nil {
			log.Warn("pipeline: finish run", zap.Error(ferr))
		}
		if ierr := p.store.IncrementQuery(ctx, q.ID, store.QueryDelta{Runs: 1, MarkRun: true}); ierr != nil {
			log.Warn("pipeline: increment query", zap.Error(ierr))
		}
		return ps
	}

	ps.Results = len(results)
	for _, r := range results {
		switch p.processResult(ctx, run.ID, q, queryProb, weights, r) {
		case resultQualified:
			ps.Leads++
			ps.Qualified++
		case resultLead:
			ps.Leads++
		case resultRejected:
			ps.Rejected++
		case resultSkipped:
			ps.Skipped++
		}
	}

	if err := p.store.FinishRun(ctx, run.ID, model.RunStatusFinished, "", ps.Results, ps.Leads, ps.Qualified); err != nil {
		log.Warn("pipeline: finish run", zap.Error(err))
	}
	if err := p.store.IncrementQuery(ctx, q.ID, store.QueryDelta{
		Runs:      1,
		Leads:     ps.Leads,
		Qualified: ps.Qualified,
		MarkRun:   true,
	}); err != nil {
		log.Warn("pipeline: increment query", zap.Error(err))
	}

	log.Info("pipeline: pass finished",
		zap.Int("results", ps.Results),
		zap.Int("leads", ps.Leads),
		zap.Int("qualified", ps.Qualified),
	)
	return ps
}

type resultOutcome int

const (
	resultSkipped resultOutcome = iota
	resultRejected
	resultLead
	resultQualified
)

// processResult turns one search result into a stored lead, or drops it
// at the safety or canonicalization stage before anything is persisted.
func (p *Pipeline) processResult(ctx context.Context, runID string, q model.Query, queryProb float64, weights model.ScoringWeights, r search.Result) resultOutcome {
	log := zap.L().With(zap.String("url", r.Link))

	if rej := safety.RejectLead(r.Link, r.Title, r.Snippet); rej.Rejected {
		log.Debug("pipeline: result dropped", zap.String("reason", rej.Reason))
		return resultSkipped
	}

	canon := canonical.Canonicalize(r.Link)
	if canon.Rejected {
		log.Debug("pipeline: result dropped", zap.String("reason", canon.RejectedReason))
		return resultSkipped
	}

	breakdown := scoring.Score(scoring.Text{Title: r.Title, Snippet: r.Snippet}, weights)
	enrichment := p.enricher.EnrichLead(ctx, canon.CanonicalURL, r.Title, r.Snippet, breakdown.Score)

	status, reason := gate(p.cfg, breakdown.Score, enrichment)

	entityID := p.resolveEntity(ctx, canon.CanonicalURL, enrichment)

	lead := model.Lead{
		Source:          p.search.Name(),
		SourceURL:       r.Link,
		CanonicalURL:    canon.CanonicalURL,
		CanonicalHash:   canon.CanonicalHash,
		Title:           r.Title,
		Snippet:         r.Snippet,
		Score:           breakdown.Score,
		IntentDepth:     breakdown.IntentDepth,
		UrgencyVelocity: breakdown.UrgencyVelocity,
		BudgetSignals:   breakdown.BudgetSignals,
		FitPrecision:    breakdown.FitPrecision,
		BuyerType:       breakdown.BuyerType,
		PainTags:        breakdown.PainTags,
		ServiceTags:     breakdown.ServiceTags,
		RushEligible:    breakdown.RushEligible,
		Status:          status,
		RejectedReason:  reason,
		EntityID:        entityID,
		QueryID:         q.ID,
		RunID:           runID,
	}
	if enrichment.HasVerdict {
		lead.IntentClass = enrichment.Verdict.IntentClass
		lead.IntentConfidence = enrichment.Verdict.Confidence
		lead.Meta = model.LeadMeta{
			Proof:         enrichment.Verdict.ProofLines,
			BuyerScore:    enrichment.Verdict.BuyerScore,
			SellerScore:   enrichment.Verdict.SellerScore,
			IntentReasons: enrichment.Verdict.Reasons,
			Emails:        enrichment.Emails,
			Socials:       enrichment.Socials,
		}
	} else {
		lead.Meta = model.LeadMeta{Emails: enrichment.Emails, Socials: enrichment.Socials}
	}

	stored, created, err := p.store.UpsertLeadByHash(ctx, lead)
	if err != nil {
		log.Error("pipeline: upsert lead", zap.Error(err))
		return resultSkipped
	}

	p.recordLeadEvent(ctx, stored, created, queryProb)

	switch status {
	case model.LeadStatusOutreachReady:
		return resultQualified
	case model.LeadStatusRejected:
		return resultRejected
	default:
		return resultLead
	}
}

func (p *Pipeline) recordLeadEvent(ctx context.Context, lead *model.Lead, created bool, queryProb float64) {
	event := model.LeadEvent{LeadID: lead.ID}
	switch {
	case lead.Status == model.LeadStatusRejected:
		event.Type = model.LeadEventRejected
		event.Meta = map[string]any{"reason": lead.RejectedReason}
	case !created:
		event.Type = model.LeadEventUpdated
		event.Meta = map[string]any{"score": lead.Score}
	default:
		event.Type = model.LeadEventQualified
		event.Meta = map[string]any{"score": lead.Score, "query_prob": queryProb}
	}
	if err := p.store.AppendLeadEvent(ctx, event); err != nil {
		zap.L().Warn("pipeline: append lead event", zap.Error(err))
	}
}

// resolveEntity matches the enriched contact data against known entities
// and merges it into the matching row, keyed by the lead's domain.
func (p *Pipeline) resolveEntity(ctx context.Context, canonicalURL string, en enrich.Enrichment) string {
	identity := entity.Identity{Domain: hostOf(canonicalURL)}
	if len(en.Emails) > 0 {
		identity.Email = en.Emails[0]
	}
	if len(en.Socials) > 0 {
		identity.Handle = handleOf(en.Socials[0].URL)
	}
	if identity.Email == "" && identity.Domain == "" && identity.Handle == "" {
		return ""
	}

	candidates, err := p.store.ListEntities(ctx)
	if err != nil {
		zap.L().Warn("pipeline: list entities", zap.Error(err))
		candidates = nil
	}
	match := entity.Resolve(identity, candidates)

	if identity.Domain == "" {
		return match.EntityID
	}

	handles := map[string]string{}
	for _, s := range en.Socials {
		handles[s.Platform] = s.URL
	}
	ent, err := p.store.UpsertEntityByDomain(ctx, model.Entity{
		Type:          "UNKNOWN",
		PrimaryDomain: identity.Domain,
		Emails:        en.Emails,
		Domains:       []string{identity.Domain},
		Handles:       handles,
	})
	if err != nil {
		zap.L().Warn("pipeline: upsert entity", zap.Error(err))
		return match.EntityID
	}
	return ent.ID
}

// disableStaleQueries turns off queries that have run long enough to
// judge and whose reweighted win rate stays under the floor.
func (p *Pipeline) disableStaleQueries(ctx context.Context) (int, error) {
	queries, err := p.store.ListQueries(ctx, true)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list queries for disable sweep")
	}

	disabled := 0
	for _, q := range queries {
		if q.RunsCount < p.cfg.Pipeline.DisableAfterRuns {
			continue
		}
		rate := learning.IPSMean(q.IPSRewardSum, q.IPSWeightSum)
		if q.IPSWeightSum == 0 && q.RunsCount > 0 {
			rate = float64(q.WonCount) / float64(q.RunsCount)
		}
		if rate >= p.cfg.Pipeline.DisableWinRate {
			continue
		}
		if err := p.store.SetQueryEnabled(ctx, q.ID, false); err != nil {
			zap.L().Warn("pipeline: disable query", zap.String("query", q.Name), zap.Error(err))
			continue
		}
		zap.L().Info("pipeline: query disabled",
			zap.String("query", q.Name),
			zap.Int("runs", q.RunsCount),
			zap.Float64("win_rate", rate),
		)
		disabled++
	}
	return disabled, nil
}

// Sanitize re-runs the safety filter over OUTREACH_READY leads and
// demotes any that no longer pass.
func (p *Pipeline) Sanitize(ctx context.Context) (int, error) {
	leads, err := p.store.ListLeads(ctx, store.LeadFilter{Status: model.LeadStatusOutreachReady})
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list ready leads")
	}

	demoted := 0
	for _, lead := range leads {
		rej := safety.RejectLead(lead.SourceURL, lead.Title, lead.Snippet)
		if !rej.Rejected {
			continue
		}
		if err := p.store.SetLeadStatus(ctx, lead.ID, model.LeadStatusRejected, rej.Reason); err != nil {
			zap.L().Warn("pipeline: demote lead", zap.String("lead", lead.ID), zap.Error(err))
			continue
		}
		if err := p.store.AppendLeadEvent(ctx, model.LeadEvent{
			LeadID: lead.ID,
			Type:   model.LeadEventRejected,
			Meta:   map[string]any{"reason": rej.Reason, "sweep": true},
		}); err != nil {
			zap.L().Warn("pipeline: append lead event", zap.Error(err))
		}
		demoted++
	}
	return demoted, nil
}

func hostOf(rawURL string) string {
	host := rawURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func handleOf(profileURL string) string {
	trimmed := strings.TrimRight(profileURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return trimmed
}
