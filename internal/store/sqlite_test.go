package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seked/leadscout/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteQueryLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertQuery(ctx, model.Query{
		Name:       "Master Query (balanced)",
		Query:      `"need a video editor" -jobs`,
		SourcePack: model.SourcePackWideWeb,
		Enabled:    true,
	}))
	require.NoError(t, s.UpsertQuery(ctx, model.Query{
		Name:       "Community Hiring Posts",
		Query:      `site:reddit.com "looking for editor"`,
		SourcePack: model.SourcePackForums,
		Enabled:    false,
	}))

	all, err := s.ListQueries(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)

	enabled, err := s.ListQueries(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "Master Query (balanced)", enabled[0].Name)

	got, err := s.GetQuery(ctx, enabled[0].ID)
	require.NoError(t, err)
	assert.Equal(t, enabled[0].Query, got.Query)
	assert.Nil(t, got.LastRunAt)

	_, err = s.GetQuery(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteUpsertQueryByText(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	q := model.Query{Name: "v1", Query: "need editor", SourcePack: model.SourcePackWideWeb, Enabled: true}
	require.NoError(t, s.UpsertQuery(ctx, q))
	q.Name = "v2"
	require.NoError(t, s.UpsertQuery(ctx, q))

	all, err := s.ListQueries(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "v2", all[0].Name)
}

func TestSQLiteIncrementQuery(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertQuery(ctx, model.Query{Name: "q", Query: "q", SourcePack: model.SourcePackWideWeb, Enabled: true}))
	all, err := s.ListQueries(ctx, false)
	require.NoError(t, err)
	id := all[0].ID

	require.NoError(t, s.IncrementQuery(ctx, id, QueryDelta{Runs: 1, Leads: 5, Qualified: 2, MarkRun: true}))
	require.NoError(t, s.IncrementQuery(ctx, id, QueryDelta{Won: 1, IPSReward: 10, IPSWeight: 10, MarkWin: true}))

	got, err := s.GetQuery(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RunsCount)
	assert.Equal(t, 5, got.LeadsCount)
	assert.Equal(t, 2, got.QualifiedCount)
	assert.Equal(t, 1, got.WonCount)
	assert.InDelta(t, 10.0, got.IPSRewardSum, 0.001)
	assert.InDelta(t, 10.0, got.IPSWeightSum, 0.001)
	assert.NotNil(t, got.LastRunAt)
	assert.NotNil(t, got.LastWinAt)

	assert.ErrorIs(t, s.IncrementQuery(ctx, "missing", QueryDelta{Runs: 1}), ErrNotFound)
}

func TestSQLiteSetQueryEnabled(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertQuery(ctx, model.Query{Name: "q", Query: "q", SourcePack: model.SourcePackWideWeb, Enabled: true}))
	all, err := s.ListQueries(ctx, false)
	require.NoError(t, err)

	require.NoError(t, s.SetQueryEnabled(ctx, all[0].ID, false))
	enabled, err := s.ListQueries(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	assert.ErrorIs(t, s.SetQueryEnabled(ctx, "missing", true), ErrNotFound)
}

func TestSQLiteTemplateLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertTemplate(ctx, model.Template{
		ID:        "tpl-1",
		Name:      "DM_1 Agency",
		Type:      model.TemplateTypeDM,
		BuyerType: "AGENCY",
		Body:      "Hey {name}, saw you're buried in {pain_1}.",
		Enabled:   true,
	}))
	require.NoError(t, s.UpsertTemplate(ctx, model.Template{
		ID:      "tpl-2",
		Name:    "FU_1 Generic",
		Type:    model.TemplateTypeFU,
		Body:    "Bumping this.",
		Enabled: false,
	}))

	enabled, err := s.ListTemplates(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "AGENCY", enabled[0].BuyerType)
	assert.Empty(t, enabled[0].ServiceTag)

	require.NoError(t, s.IncrementTemplate(ctx, "tpl-1", TemplateDelta{Sent: 3, Won: 1, IPSReward: 2, IPSWeight: 2}))
	all, err := s.ListTemplates(ctx, false)
	require.NoError(t, err)
	for _, tpl := range all {
		if tpl.ID == "tpl-1" {
			assert.Equal(t, 3, tpl.TimesSent)
			assert.Equal(t, 1, tpl.WonCount)
			assert.InDelta(t, 2.0, tpl.IPSRewardSum, 0.001)
		}
	}

	assert.ErrorIs(t, s.IncrementTemplate(ctx, "missing", TemplateDelta{Sent: 1}), ErrNotFound)
}

func testLead(hash string) model.Lead {
	return model.Lead{
		Source:        "serpapi",
		SourceURL:     "https://example.com/post?utm_source=x",
		CanonicalURL:  "https://example.com/post",
		CanonicalHash: hash,
		Title:         "Need a video editor",
		Snippet:       "Weekly uploads, budget $500",
		Score:         80,
		IntentDepth:   90,
		BuyerType:     "CREATOR",
		PainTags:      []string{"TIME"},
		ServiceTags:   []string{"SHORTS"},
		RushEligible:  true,
		IntentClass:   "BUYER",
		Meta: model.LeadMeta{
			BuyerScore: 7,
			Proof:      []string{"budget $500"},
			Emails:     []string{"hi@example.com"},
		},
		Status: model.LeadStatusNew,
	}
}

func TestSQLiteLeadUpsertDedup(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first, created, err := s.UpsertLeadByHash(ctx, testLead("hash-a"))
	require.NoError(t, err)
	assert.True(t, created)
	require.NotEmpty(t, first.ID)

	update := testLead("hash-a")
	update.Score = 92
	update.Status = model.LeadStatusOutreachReady
	second, created, err := s.UpsertLeadByHash(ctx, update)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	got, err := s.GetLead(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 92, got.Score)
	assert.Equal(t, model.LeadStatusOutreachReady, got.Status)
	assert.Equal(t, []string{"TIME"}, got.PainTags)
	assert.Equal(t, 7, got.Meta.BuyerScore)
	assert.True(t, got.RushEligible)

	other, created, err := s.UpsertLeadByHash(ctx, testLead("hash-b"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestSQLiteListLeadsFilter(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for i, spec := range []struct {
		hash   string
		score  int
		status model.LeadStatus
	}{
		{"h1", 90, model.LeadStatusOutreachReady},
		{"h2", 60, model.LeadStatusReview},
		{"h3", 30, model.LeadStatusRejected},
	} {
		lead := testLead(spec.hash)
		lead.Score = spec.score
		lead.Status = spec.status
		_, _, err := s.UpsertLeadByHash(ctx, lead)
		require.NoError(t, err, "lead %d", i)
	}

	ready, err := s.ListLeads(ctx, LeadFilter{Status: model.LeadStatusOutreachReady})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, 90, ready[0].Score)

	scored, err := s.ListLeads(ctx, LeadFilter{MinScore: 50})
	require.NoError(t, err)
	require.Len(t, scored, 2)
	// Highest score first.
	assert.Equal(t, 90, scored[0].Score)
	assert.Equal(t, 60, scored[1].Score)

	limited, err := s.ListLeads(ctx, LeadFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteSetLeadStatusAndEvents(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	lead, _, err := s.UpsertLeadByHash(ctx, testLead("hash-a"))
	require.NoError(t, err)

	require.NoError(t, s.SetLeadStatus(ctx, lead.ID, model.LeadStatusRejected, "SELLER_PLATFORM"))
	got, err := s.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusRejected, got.Status)
	assert.Equal(t, "SELLER_PLATFORM", got.RejectedReason)

	assert.ErrorIs(t, s.SetLeadStatus(ctx, "missing", model.LeadStatusWon, ""), ErrNotFound)

	require.NoError(t, s.AppendLeadEvent(ctx, model.LeadEvent{
		LeadID: lead.ID,
		Type:   model.LeadEventRejected,
		Meta:   map[string]any{"reason": "SELLER_PLATFORM"},
	}))
}

func TestSQLiteEntityUpsertMerge(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := s.UpsertEntityByDomain(ctx, model.Entity{
		Type:          "COMPANY",
		PrimaryDomain: "studio.com",
		Emails:        []string{"a@studio.com"},
		Domains:       []string{"studio.com"},
		Handles:       map[string]string{"INSTAGRAM": "https://instagram.com/studio"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	merged, err := s.UpsertEntityByDomain(ctx, model.Entity{
		Type:          "COMPANY",
		PrimaryDomain: "studio.com",
		Emails:        []string{"a@studio.com", "b@studio.com"},
		Handles:       map[string]string{"TIKTOK": "https://tiktok.com/@studio"},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, merged.ID)
	assert.ElementsMatch(t, []string{"a@studio.com", "b@studio.com"}, merged.Emails)
	assert.Len(t, merged.Handles, 2)

	all, err := s.ListEntities(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.ElementsMatch(t, []string{"a@studio.com", "b@studio.com"}, all[0].Emails)
}

func TestSQLiteWeightsHistory(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	// Empty history falls back to the unit default.
	w, err := s.CurrentWeights(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, w.IntentWeight, 0.001)

	_, err = s.AppendWeights(ctx, model.ScoringWeights{IntentWeight: 1.1, UrgencyWeight: 0.9, BudgetWeight: 1.0, FitWeight: 1.0})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = s.AppendWeights(ctx, model.ScoringWeights{IntentWeight: 1.2, UrgencyWeight: 0.8, BudgetWeight: 1.0, FitWeight: 1.0})
	require.NoError(t, err)

	w, err = s.CurrentWeights(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.2, w.IntentWeight, 0.001)
	assert.InDelta(t, 0.8, w.UrgencyWeight, 0.001)
}

func TestSQLiteRuns(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "query-1", "Austin, Texas")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	require.NoError(t, s.FinishRun(ctx, run.ID, model.RunStatusFinished, "", 20, 12, 4))

	runs, err := s.ListRuns(ctx, RunFilter{QueryID: "query-1"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFinished, runs[0].Status)
	assert.Equal(t, 20, runs[0].ResultCount)
	assert.Equal(t, 12, runs[0].LeadCount)
	assert.Equal(t, 4, runs[0].QualifiedCount)
	assert.Equal(t, "Austin, Texas", runs[0].GeoLocation)
	assert.NotNil(t, runs[0].FinishedAt)

	none, err := s.ListRuns(ctx, RunFilter{QueryID: "other"})
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.ErrorIs(t, s.FinishRun(ctx, "missing", model.RunStatusFailed, "boom", 0, 0, 0), ErrNotFound)
}

func TestSQLiteAttemptOutcomeIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	attempt, err := s.CreateAttempt(ctx, model.OutreachAttempt{
		LeadID:       "lead-1",
		QueryID:      "query-1",
		TemplateID:   "tpl-1",
		QueryProb:    0.4,
		TemplateProb: 0.25,
		OverallProb:  0.1,
		LeadScore:    80,
	})
	require.NoError(t, err)

	open, err := s.OpenAttemptForLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, attempt.ID, open.ID)
	assert.False(t, open.Terminal())

	at := time.Now().UTC()
	require.NoError(t, s.SetAttemptOutcome(ctx, attempt.ID, model.OutcomeWon, at))

	// Second write is rejected, the recorded outcome is immutable.
	assert.ErrorIs(t, s.SetAttemptOutcome(ctx, attempt.ID, model.OutcomeLost, at), ErrOutcomeRecorded)
	assert.ErrorIs(t, s.SetAttemptOutcome(ctx, "missing", model.OutcomeWon, at), ErrNotFound)

	got, err := s.GetAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeWon, got.Outcome)
	assert.True(t, got.Terminal())
	require.NotNil(t, got.OutcomeAt)
	assert.InDelta(t, 0.1, got.OverallProb, 1e-9)

	_, err = s.OpenAttemptForLead(ctx, "lead-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
