package model

import "time"

// LeadStatus represents the lifecycle state of a lead.
type LeadStatus string

const (
	LeadStatusNew           LeadStatus = "NEW"
	LeadStatusOutreachReady LeadStatus = "OUTREACH_READY"
	LeadStatusReview        LeadStatus = "REVIEW"
	LeadStatusRejected      LeadStatus = "REJECTED"
	LeadStatusWon           LeadStatus = "WON"
	LeadStatusLost          LeadStatus = "LOST"
)

// RunStatus represents the state of a single query run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
)

// SourcePack groups queries by the kind of surface they target.
type SourcePack string

const (
	SourcePackForums       SourcePack = "FORUMS"
	SourcePackSocial       SourcePack = "SOCIAL"
	SourcePackProfessional SourcePack = "PROFESSIONAL"
	SourcePackWideWeb      SourcePack = "WIDE_WEB"
)

// Outcome is the terminal result of an outreach attempt.
type Outcome string

const (
	OutcomeWon  Outcome = "WON"
	OutcomeLost Outcome = "LOST"
)

// Lead is a deduplicated prospect, keyed by canonical URL hash.
type Lead struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	SourceURL     string     `json:"source_url"`
	CanonicalURL  string     `json:"canonical_url"`
	CanonicalHash string     `json:"canonical_hash"`
	Title         string     `json:"title,omitempty"`
	Snippet       string     `json:"snippet,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`

	Score           int      `json:"score"`
	IntentDepth     float64  `json:"intent_depth"`
	UrgencyVelocity float64  `json:"urgency_velocity"`
	BudgetSignals   float64  `json:"budget_signals"`
	FitPrecision    float64  `json:"fit_precision"`
	BuyerType       string   `json:"buyer_type,omitempty"`
	PainTags        []string `json:"pain_tags,omitempty"`
	ServiceTags     []string `json:"service_tags,omitempty"`
	RushEligible    bool     `json:"rush_eligible"`

	IntentClass      string   `json:"intent_class,omitempty"`
	IntentConfidence float64  `json:"intent_confidence"`
	Meta             LeadMeta `json:"meta"`

	Status         LeadStatus `json:"status"`
	RejectedReason string     `json:"rejected_reason,omitempty"`

	EntityID string `json:"entity_id,omitempty"`
	QueryID  string `json:"query_id,omitempty"`
	RunID    string `json:"run_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LeadMeta carries classifier evidence and extracted contact data.
type LeadMeta struct {
	Proof         []string       `json:"proof,omitempty"`
	BuyerScore    int            `json:"buyer_score"`
	SellerScore   int            `json:"seller_score"`
	IntentReasons []string       `json:"intent_reasons,omitempty"`
	Emails        []string       `json:"emails,omitempty"`
	Socials       []SocialHandle `json:"socials,omitempty"`
}

// SocialHandle is a social profile URL discovered during enrichment.
type SocialHandle struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// Entity is a resolved real-world counterpart (company or person). Leads
// reference entities; entities never reference leads back.
type Entity struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	PrimaryDomain string            `json:"primary_domain,omitempty"`
	Emails        []string          `json:"emails,omitempty"`
	Domains       []string          `json:"domains,omitempty"`
	Handles       map[string]string `json:"handles,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Query is a stored search query participating in bandit allocation.
type Query struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Query      string     `json:"query"`
	SourcePack SourcePack `json:"source_pack"`
	Enabled    bool       `json:"enabled"`

	RunsCount      int        `json:"runs_count"`
	LeadsCount     int        `json:"leads_count"`
	QualifiedCount int        `json:"qualified_count"`
	WonCount       int        `json:"won_count"`
	LostCount      int        `json:"lost_count"`
	IPSRewardSum   float64    `json:"ips_reward_sum"`
	IPSWeightSum   float64    `json:"ips_weight_sum"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastWinAt      *time.Time `json:"last_win_at,omitempty"`
}

// Trials returns the number of times this query has been run.
func (q Query) Trials() int { return q.RunsCount }

// Wins returns the number of won outcomes attributed to this query.
func (q Query) Wins() int { return q.WonCount }

// TemplateType distinguishes first-touch DMs from follow-ups.
type TemplateType string

const (
	TemplateTypeDM TemplateType = "DM"
	TemplateTypeFU TemplateType = "FU"
)

// Template is an outreach message template participating in bandit allocation.
type Template struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Type       TemplateType `json:"type"`
	BuyerType  string       `json:"buyer_type,omitempty"`
	ServiceTag string       `json:"service_tag,omitempty"`
	PainTag    string       `json:"pain_tag,omitempty"`
	Body       string       `json:"body"`
	Enabled    bool         `json:"enabled"`

	TimesSent    int     `json:"times_sent"`
	WonCount     int     `json:"won_count"`
	IPSRewardSum float64 `json:"ips_reward_sum"`
	IPSWeightSum float64 `json:"ips_weight_sum"`
}

// Trials returns the number of times this template has been sent.
func (t Template) Trials() int { return t.TimesSent }

// Wins returns the number of won outcomes attributed to this template.
func (t Template) Wins() int { return t.WonCount }

// ScoringWeights is one immutable row of the append-only weight history.
// The current weights are the most recently created row.
type ScoringWeights struct {
	ID            string    `json:"id"`
	IntentWeight  float64   `json:"intent_weight"`
	UrgencyWeight float64   `json:"urgency_weight"`
	BudgetWeight  float64   `json:"budget_weight"`
	FitWeight     float64   `json:"fit_weight"`
	CreatedAt     time.Time `json:"created_at"`
}

// DefaultWeights returns the unit weight vector used before any learning.
func DefaultWeights() ScoringWeights {
	return ScoringWeights{
		IntentWeight:  1.0,
		UrgencyWeight: 1.0,
		BudgetWeight:  1.0,
		FitWeight:     1.0,
	}
}

// Run records one execution of a query against a search provider.
type Run struct {
	ID             string     `json:"id"`
	QueryID        string     `json:"query_id"`
	GeoLocation    string     `json:"geo_location,omitempty"`
	Status         RunStatus  `json:"status"`
	Error          string     `json:"error,omitempty"`
	ResultCount    int        `json:"result_count"`
	LeadCount      int        `json:"lead_count"`
	QualifiedCount int        `json:"qualified_count"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// OutreachAttempt is the immutable record of one allocation decision.
// OverallProb is the product of the two propensities frozen at decision
// time; it is never recomputed from later allocator state.
type OutreachAttempt struct {
	ID           string     `json:"id"`
	LeadID       string     `json:"lead_id"`
	QueryID      string     `json:"query_id,omitempty"`
	TemplateID   string     `json:"template_id,omitempty"`
	QueryProb    float64    `json:"query_prob"`
	TemplateProb float64    `json:"template_prob"`
	OverallProb  float64    `json:"overall_prob"`
	LeadScore    int        `json:"lead_score"`
	Outcome      Outcome    `json:"outcome,omitempty"`
	OutcomeAt    *time.Time `json:"outcome_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Terminal reports whether an outcome has already been recorded.
func (a OutreachAttempt) Terminal() bool { return a.Outcome != "" }

// LeadEventType categorizes lead audit events.
type LeadEventType string

const (
	LeadEventQualified    LeadEventType = "QUALIFIED"
	LeadEventUpdated      LeadEventType = "UPDATED"
	LeadEventRejected     LeadEventType = "REJECTED"
	LeadEventTemplateSent LeadEventType = "TEMPLATE_SENT"
	LeadEventWon          LeadEventType = "WON"
	LeadEventLost         LeadEventType = "LOST"
)

// LeadEvent is an append-only audit record attached to a lead.
type LeadEvent struct {
	ID        string         `json:"id"`
	LeadID    string         `json:"lead_id"`
	Type      LeadEventType  `json:"type"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
