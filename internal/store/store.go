// Package store persists leads, entities, queries, templates, runs,
// outreach attempts, and the scoring weight history. Two backends exist:
// SQLite for single-operator setups and Postgres for shared ones.
//
// Counter columns are increment-only and the weight history is
// append-only; neither backend exposes a way to rewrite past state.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/seked/leadscout/internal/model"
)

// Sentinel errors shared by both backends.
var (
	ErrNotFound        = eris.New("store: not found")
	ErrOutcomeRecorded = eris.New("store: outcome already recorded")
)

// QueryDelta is an increment-only update to a query's counters. Zero
// fields leave the corresponding counter untouched.
type QueryDelta struct {
	Runs         int
	Leads        int
	Qualified    int
	Won          int
	Lost         int
	IPSReward    float64
	IPSWeight    float64
	MarkRun      bool
	MarkWin      bool
}

// TemplateDelta is an increment-only update to a template's counters.
type TemplateDelta struct {
	Sent      int
	Won       int
	IPSReward float64
	IPSWeight float64
}

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	Status   model.LeadStatus
	QueryID  string
	MinScore int
	Limit    int
	Offset   int
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	QueryID string
	Status  model.RunStatus
	Limit   int
}

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Queries
	ListQueries(ctx context.Context, enabledOnly bool) ([]model.Query, error)
	GetQuery(ctx context.Context, id string) (*model.Query, error)
	UpsertQuery(ctx context.Context, q model.Query) error
	SetQueryEnabled(ctx context.Context, id string, enabled bool) error
	IncrementQuery(ctx context.Context, id string, delta QueryDelta) error

	// Templates
	ListTemplates(ctx context.Context, enabledOnly bool) ([]model.Template, error)
	UpsertTemplate(ctx context.Context, t model.Template) error
	IncrementTemplate(ctx context.Context, id string, delta TemplateDelta) error

	// Leads, deduplicated by canonical hash.
	UpsertLeadByHash(ctx context.Context, lead model.Lead) (*model.Lead, bool, error)
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	SetLeadStatus(ctx context.Context, id string, status model.LeadStatus, reason string) error
	AppendLeadEvent(ctx context.Context, event model.LeadEvent) error

	// Entities
	ListEntities(ctx context.Context) ([]model.Entity, error)
	UpsertEntityByDomain(ctx context.Context, entity model.Entity) (*model.Entity, error)

	// Scoring weights (append-only history).
	CurrentWeights(ctx context.Context) (model.ScoringWeights, error)
	AppendWeights(ctx context.Context, w model.ScoringWeights) (*model.ScoringWeights, error)

	// Runs
	CreateRun(ctx context.Context, queryID, geoLocation string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, errMsg string, resultCount, leadCount, qualifiedCount int) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Outreach attempts
	CreateAttempt(ctx context.Context, attempt model.OutreachAttempt) (*model.OutreachAttempt, error)
	GetAttempt(ctx context.Context, id string) (*model.OutreachAttempt, error)
	OpenAttemptForLead(ctx context.Context, leadID string) (*model.OutreachAttempt, error)
	SetAttemptOutcome(ctx context.Context, id string, outcome model.Outcome, at time.Time) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
