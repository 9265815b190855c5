package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/seked/leadscout/internal/expand"
	"github.com/seked/leadscout/internal/model"
	"github.com/seked/leadscout/internal/store"
)

// Propose builds query suggestions from the store's learning signals:
// winning buyer-type and service patterns from WON leads and the primary
// domains of resolved entities.
func (p *Pipeline) Propose(ctx context.Context) ([]expand.Suggestion, error) {
	won, err := p.store.ListLeads(ctx, store.LeadFilter{Status: model.LeadStatusWon, Limit: 200})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list won leads")
	}

	entities, err := p.store.ListEntities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list entities")
	}

	return expand.Suggest(expand.Input{
		TopDomains:  entityDomains(entities),
		TopPatterns: winningPatterns(won),
	}), nil
}

// winningPatterns counts buyer-type and service-tag occurrences among WON
// leads. The rate is each key's share of wins, which keeps it in [0,1].
func winningPatterns(won []model.Lead) []expand.Pattern {
	if len(won) == 0 {
		return nil
	}

	counts := map[string]int{}
	for _, lead := range won {
		if lead.BuyerType != "" {
			counts[strings.ToLower(lead.BuyerType)]++
		}
		for _, tag := range lead.ServiceTags {
			counts[strings.ToLower(tag)]++
		}
	}

	patterns := make([]expand.Pattern, 0, len(counts))
	for key, n := range counts {
		patterns = append(patterns, expand.Pattern{
			Key:     key,
			WinRate: float64(n) / float64(len(won)),
		})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].WinRate != patterns[j].WinRate {
			return patterns[i].WinRate > patterns[j].WinRate
		}
		return patterns[i].Key < patterns[j].Key
	})
	return patterns
}

func entityDomains(entities []model.Entity) []string {
	domains := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.PrimaryDomain != "" {
			domains = append(domains, e.PrimaryDomain)
		}
	}
	sort.Strings(domains)
	return domains
}
