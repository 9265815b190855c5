package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/seked/leadscout/internal/db"
	"github.com/seked/leadscout/internal/model"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to the given database URL and verifies the
// connection with a ping.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS queries (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	query           TEXT NOT NULL UNIQUE,
	source_pack     TEXT NOT NULL DEFAULT 'WIDE_WEB',
	enabled         BOOLEAN NOT NULL DEFAULT TRUE,
	runs_count      INTEGER NOT NULL DEFAULT 0,
	leads_count     INTEGER NOT NULL DEFAULT 0,
	qualified_count INTEGER NOT NULL DEFAULT 0,
	won_count       INTEGER NOT NULL DEFAULT 0,
	lost_count      INTEGER NOT NULL DEFAULT 0,
	ips_reward_sum  DOUBLE PRECISION NOT NULL DEFAULT 0,
	ips_weight_sum  DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_run_at     TIMESTAMPTZ,
	last_win_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS templates (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	type           TEXT NOT NULL DEFAULT 'DM',
	buyer_type     TEXT,
	service_tag    TEXT,
	pain_tag       TEXT,
	body           TEXT NOT NULL,
	enabled        BOOLEAN NOT NULL DEFAULT TRUE,
	times_sent     INTEGER NOT NULL DEFAULT 0,
	won_count      INTEGER NOT NULL DEFAULT 0,
	ips_reward_sum DOUBLE PRECISION NOT NULL DEFAULT 0,
	ips_weight_sum DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entities (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL DEFAULT 'UNKNOWN',
	primary_domain TEXT UNIQUE,
	emails         JSONB NOT NULL DEFAULT '[]',
	domains        JSONB NOT NULL DEFAULT '[]',
	handles        JSONB NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS leads (
	id                TEXT PRIMARY KEY,
	source            TEXT NOT NULL DEFAULT '',
	source_url        TEXT NOT NULL,
	canonical_url     TEXT NOT NULL,
	canonical_hash    TEXT NOT NULL UNIQUE,
	title             TEXT NOT NULL DEFAULT '',
	snippet           TEXT NOT NULL DEFAULT '',
	published_at      TIMESTAMPTZ,
	score             INTEGER NOT NULL DEFAULT 0,
	intent_depth      DOUBLE PRECISION NOT NULL DEFAULT 0,
	urgency_velocity  DOUBLE PRECISION NOT NULL DEFAULT 0,
	budget_signals    DOUBLE PRECISION NOT NULL DEFAULT 0,
	fit_precision     DOUBLE PRECISION NOT NULL DEFAULT 0,
	buyer_type        TEXT,
	pain_tags         JSONB NOT NULL DEFAULT '[]',
	service_tags      JSONB NOT NULL DEFAULT '[]',
	rush_eligible     BOOLEAN NOT NULL DEFAULT FALSE,
	intent_class      TEXT,
	intent_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	meta              JSONB NOT NULL DEFAULT '{}',
	status            TEXT NOT NULL DEFAULT 'NEW',
	rejected_reason   TEXT,
	entity_id         TEXT,
	query_id          TEXT,
	run_id            TEXT,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS scoring_weights (
	id             TEXT PRIMARY KEY,
	intent_weight  DOUBLE PRECISION NOT NULL,
	urgency_weight DOUBLE PRECISION NOT NULL,
	budget_weight  DOUBLE PRECISION NOT NULL,
	fit_weight     DOUBLE PRECISION NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	query_id        TEXT NOT NULL,
	geo_location    TEXT,
	status          TEXT NOT NULL DEFAULT 'RUNNING',
	error           TEXT,
	result_count    INTEGER NOT NULL DEFAULT 0,
	lead_count      INTEGER NOT NULL DEFAULT 0,
	qualified_count INTEGER NOT NULL DEFAULT 0,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS outreach_attempts (
	id            TEXT PRIMARY KEY,
	lead_id       TEXT NOT NULL,
	query_id      TEXT,
	template_id   TEXT,
	query_prob    DOUBLE PRECISION NOT NULL DEFAULT 0,
	template_prob DOUBLE PRECISION NOT NULL DEFAULT 0,
	overall_prob  DOUBLE PRECISION NOT NULL DEFAULT 0,
	lead_score    INTEGER NOT NULL DEFAULT 0,
	outcome       TEXT,
	outcome_at    TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS lead_events (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL,
	type       TEXT NOT NULL,
	meta       JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_query_id ON leads(query_id);
CREATE INDEX IF NOT EXISTS idx_leads_score ON leads(score);
CREATE INDEX IF NOT EXISTS idx_runs_query_id ON runs(query_id);
CREATE INDEX IF NOT EXISTS idx_attempts_lead_id ON outreach_attempts(lead_id);
CREATE INDEX IF NOT EXISTS idx_lead_events_lead_id ON lead_events(lead_id);
CREATE INDEX IF NOT EXISTS idx_weights_created_at ON scoring_weights(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SeedQueries bulk-loads curated queries via COPY into a temp table,
// keyed by query text.
func (s *PostgresStore) SeedQueries(ctx context.Context, queries []model.Query) (int64, error) {
	rows := make([][]any, 0, len(queries))
	for _, q := range queries {
		id := q.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{id, q.Name, q.Query, string(q.SourcePack), q.Enabled})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "queries",
		Columns:      []string{"id", "name", "query", "source_pack", "enabled"},
		ConflictKeys: []string{"query"},
		UpdateCols:   []string{"name", "source_pack", "enabled"},
	}, rows)
	return n, eris.Wrap(err, "postgres: seed queries")
}

// --- Queries ---

func (s *PostgresStore) ListQueries(ctx context.Context, enabledOnly bool) ([]model.Query, error) {
	q := `SELECT ` + queryColumns + ` FROM queries`
	if enabledOnly {
		q += ` WHERE enabled = TRUE`
	}
	q += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list queries")
	}
	defer rows.Close()

	var out []model.Query
	for rows.Next() {
		item, err := scanPgQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list queries iterate")
}

func (s *PostgresStore) GetQuery(ctx context.Context, id string) (*model.Query, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+queryColumns+` FROM queries WHERE id = $1`, id)
	q, err := scanPgQuery(row)
	if err != nil && eris.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return q, err
}

func (s *PostgresStore) UpsertQuery(ctx context.Context, q model.Query) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO queries (id, name, query, source_pack, enabled) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (query) DO UPDATE SET name = EXCLUDED.name, source_pack = EXCLUDED.source_pack, enabled = EXCLUDED.enabled`,
		q.ID, q.Name, q.Query, string(q.SourcePack), q.Enabled,
	)
	return eris.Wrapf(err, "postgres: upsert query %s", q.Name)
}

func (s *PostgresStore) SetQueryEnabled(ctx context.Context, id string, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE queries SET enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set query enabled %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "query %s", id)
	}
	return nil
}

func (s *PostgresStore) IncrementQuery(ctx context.Context, id string, d QueryDelta) error {
	q := `UPDATE queries SET
		runs_count = runs_count + $1,
		leads_count = leads_count + $2,
		qualified_count = qualified_count + $3,
		won_count = won_count + $4,
		lost_count = lost_count + $5,
		ips_reward_sum = ips_reward_sum + $6,
		ips_weight_sum = ips_weight_sum + $7`
	if d.MarkRun {
		q += `, last_run_at = now()`
	}
	if d.MarkWin {
		q += `, last_win_at = now()`
	}
	q += ` WHERE id = $8`

	tag, err := s.pool.Exec(ctx, q, d.Runs, d.Leads, d.Qualified, d.Won, d.Lost, d.IPSReward, d.IPSWeight, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment query %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "query %s", id)
	}
	return nil
}

// --- Templates ---

func (s *PostgresStore) ListTemplates(ctx context.Context, enabledOnly bool) ([]model.Template, error) {
	q := `SELECT ` + templateColumns + ` FROM templates`
	if enabledOnly {
		q += ` WHERE enabled = TRUE`
	}
	q += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list templates")
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		item, err := scanPgTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list templates iterate")
}

func (s *PostgresStore) UpsertTemplate(ctx context.Context, t model.Template) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO templates (id, name, type, buyer_type, service_tag, pain_tag, body, enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type,
			buyer_type = EXCLUDED.buyer_type, service_tag = EXCLUDED.service_tag,
			pain_tag = EXCLUDED.pain_tag, body = EXCLUDED.body, enabled = EXCLUDED.enabled`,
		t.ID, t.Name, string(t.Type), nullString(t.BuyerType), nullString(t.ServiceTag),
		nullString(t.PainTag), t.Body, t.Enabled,
	)
	return eris.Wrapf(err, "postgres: upsert template %s", t.Name)
}

func (s *PostgresStore) IncrementTemplate(ctx context.Context, id string, d TemplateDelta) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE templates SET times_sent = times_sent + $1, won_count = won_count + $2,
			ips_reward_sum = ips_reward_sum + $3, ips_weight_sum = ips_weight_sum + $4
		 WHERE id = $5`,
		d.Sent, d.Won, d.IPSReward, d.IPSWeight, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment template %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "template %s", id)
	}
	return nil
}

// --- Leads ---

func (s *PostgresStore) UpsertLeadByHash(ctx context.Context, lead model.Lead) (*model.Lead, bool, error) {
	now := time.Now().UTC()

	painTags, serviceTags, meta, err := marshalLeadJSON(lead)
	if err != nil {
		return nil, false, err
	}

	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.Status == "" {
		lead.Status = model.LeadStatusNew
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO leads (`+leadColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
		 ON CONFLICT (canonical_hash) DO UPDATE SET
			source_url = EXCLUDED.source_url, canonical_url = EXCLUDED.canonical_url,
			title = EXCLUDED.title, snippet = EXCLUDED.snippet, published_at = EXCLUDED.published_at,
			score = EXCLUDED.score, intent_depth = EXCLUDED.intent_depth,
			urgency_velocity = EXCLUDED.urgency_velocity, budget_signals = EXCLUDED.budget_signals,
			fit_precision = EXCLUDED.fit_precision, buyer_type = EXCLUDED.buyer_type,
			pain_tags = EXCLUDED.pain_tags, service_tags = EXCLUDED.service_tags,
			rush_eligible = EXCLUDED.rush_eligible, intent_class = EXCLUDED.intent_class,
			intent_confidence = EXCLUDED.intent_confidence, meta = EXCLUDED.meta,
			status = EXCLUDED.status, rejected_reason = EXCLUDED.rejected_reason,
			entity_id = EXCLUDED.entity_id, query_id = EXCLUDED.query_id, run_id = EXCLUDED.run_id,
			updated_at = EXCLUDED.updated_at
		 RETURNING id, source, created_at, (xmax = 0) AS inserted`,
		lead.ID, lead.Source, lead.SourceURL, lead.CanonicalURL, lead.CanonicalHash,
		lead.Title, lead.Snippet, lead.PublishedAt, lead.Score, lead.IntentDepth,
		lead.UrgencyVelocity, lead.BudgetSignals, lead.FitPrecision,
		nullString(lead.BuyerType), painTags, serviceTags, lead.RushEligible,
		nullString(lead.IntentClass), lead.IntentConfidence, meta, string(lead.Status),
		nullString(lead.RejectedReason), nullString(lead.EntityID),
		nullString(lead.QueryID), nullString(lead.RunID), now, now,
	)

	var inserted bool
	if err := row.Scan(&lead.ID, &lead.Source, &lead.CreatedAt, &inserted); err != nil {
		return nil, false, eris.Wrapf(err, "postgres: upsert lead %s", lead.CanonicalHash)
	}
	lead.UpdatedAt = now
	return &lead, inserted, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanPgLead(row)
	if err != nil && eris.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return lead, err
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		q += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.QueryID != "" {
		args = append(args, filter.QueryID)
		q += ` AND query_id = $` + strconv.Itoa(len(args))
	}
	if filter.MinScore > 0 {
		args = append(args, filter.MinScore)
		q += ` AND score >= $` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY score DESC, created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	q += ` LIMIT $` + strconv.Itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var out []model.Lead
	for rows.Next() {
		lead, err := scanPgLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *lead)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) SetLeadStatus(ctx context.Context, id string, status model.LeadStatus, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1, rejected_reason = $2, updated_at = now() WHERE id = $3`,
		string(status), nullString(reason), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set lead status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "lead %s", id)
	}
	return nil
}

func (s *PostgresStore) AppendLeadEvent(ctx context.Context, event model.LeadEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(event.Meta)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal event meta")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO lead_events (id, lead_id, type, meta, created_at) VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.LeadID, string(event.Type), string(metaJSON), event.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: append lead event %s", event.LeadID)
}

// --- Entities ---

func (s *PostgresStore) ListEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, primary_domain, emails, domains, handles, created_at, updated_at FROM entities`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanPgEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

func (s *PostgresStore) UpsertEntityByDomain(ctx context.Context, entity model.Entity) (*model.Entity, error) {
	now := time.Now().UTC()

	if entity.PrimaryDomain != "" {
		row := s.pool.QueryRow(ctx,
			`SELECT id, type, primary_domain, emails, domains, handles, created_at, updated_at
			 FROM entities WHERE primary_domain = $1`, entity.PrimaryDomain)
		existing, err := scanPgEntity(row)
		if err != nil && !eris.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		if existing != nil {
			merged := mergeEntities(*existing, entity)
			merged.UpdatedAt = now
			emails, domains, handles, err := marshalEntityJSON(merged)
			if err != nil {
				return nil, err
			}
			_, err = s.pool.Exec(ctx,
				`UPDATE entities SET type = $1, emails = $2, domains = $3, handles = $4, updated_at = $5 WHERE id = $6`,
				merged.Type, emails, domains, handles, now, merged.ID,
			)
			if err != nil {
				return nil, eris.Wrapf(err, "postgres: update entity %s", merged.ID)
			}
			return &merged, nil
		}
	}

	if entity.ID == "" {
		entity.ID = uuid.New().String()
	}
	entity.CreatedAt = now
	entity.UpdatedAt = now
	emails, domains, handles, err := marshalEntityJSON(entity)
	if err != nil {
		return nil, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO entities (id, type, primary_domain, emails, domains, handles, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entity.ID, entity.Type, nullString(entity.PrimaryDomain), emails, domains, handles, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert entity %s", entity.PrimaryDomain)
	}
	return &entity, nil
}

// --- Scoring weights ---

func (s *PostgresStore) CurrentWeights(ctx context.Context) (model.ScoringWeights, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, intent_weight, urgency_weight, budget_weight, fit_weight, created_at
		 FROM scoring_weights ORDER BY created_at DESC, id DESC LIMIT 1`)

	var w model.ScoringWeights
	err := row.Scan(&w.ID, &w.IntentWeight, &w.UrgencyWeight, &w.BudgetWeight, &w.FitWeight, &w.CreatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return model.DefaultWeights(), nil
		}
		return model.ScoringWeights{}, eris.Wrap(err, "postgres: current weights")
	}
	return w, nil
}

func (s *PostgresStore) AppendWeights(ctx context.Context, w model.ScoringWeights) (*model.ScoringWeights, error) {
	w.ID = uuid.New().String()
	w.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scoring_weights (id, intent_weight, urgency_weight, budget_weight, fit_weight, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		w.ID, w.IntentWeight, w.UrgencyWeight, w.BudgetWeight, w.FitWeight, w.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: append weights")
	}
	return &w, nil
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, queryID, geoLocation string) (*model.Run, error) {
	run := model.Run{
		ID:          uuid.New().String(),
		QueryID:     queryID,
		GeoLocation: geoLocation,
		Status:      model.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, query_id, geo_location, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.QueryID, nullString(run.GeoLocation), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert run for query %s", queryID)
	}
	return &run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, errMsg string, resultCount, leadCount, qualifiedCount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, result_count = $3, lead_count = $4, qualified_count = $5, finished_at = now()
		 WHERE id = $6`,
		string(status), nullString(errMsg), resultCount, leadCount, qualifiedCount, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	q := `SELECT id, query_id, geo_location, status, error, result_count, lead_count, qualified_count, started_at, finished_at
		FROM runs WHERE 1=1`
	var args []any

	if filter.QueryID != "" {
		args = append(args, filter.QueryID)
		q += ` AND query_id = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		q += ` AND status = $` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	q += ` LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var r model.Run
		var geo, errMsg *string
		if err := rows.Scan(&r.ID, &r.QueryID, &geo, &r.Status, &errMsg,
			&r.ResultCount, &r.LeadCount, &r.QualifiedCount, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.GeoLocation = deref(geo)
		r.Error = deref(errMsg)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// --- Outreach attempts ---

func (s *PostgresStore) CreateAttempt(ctx context.Context, attempt model.OutreachAttempt) (*model.OutreachAttempt, error) {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	attempt.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO outreach_attempts (id, lead_id, query_id, template_id, query_prob, template_prob, overall_prob, lead_score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		attempt.ID, attempt.LeadID, nullString(attempt.QueryID), nullString(attempt.TemplateID),
		attempt.QueryProb, attempt.TemplateProb, attempt.OverallProb, attempt.LeadScore, attempt.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert attempt for lead %s", attempt.LeadID)
	}
	return &attempt, nil
}

func (s *PostgresStore) GetAttempt(ctx context.Context, id string) (*model.OutreachAttempt, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM outreach_attempts WHERE id = $1`, id)
	a, err := scanPgAttempt(row)
	if err != nil && eris.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) OpenAttemptForLead(ctx context.Context, leadID string) (*model.OutreachAttempt, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM outreach_attempts
		 WHERE lead_id = $1 AND (outcome IS NULL OR outcome = '')
		 ORDER BY created_at DESC LIMIT 1`, leadID)
	a, err := scanPgAttempt(row)
	if err != nil && eris.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) SetAttemptOutcome(ctx context.Context, id string, outcome model.Outcome, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE outreach_attempts SET outcome = $1, outcome_at = $2
		 WHERE id = $3 AND (outcome IS NULL OR outcome = '')`,
		string(outcome), at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set attempt outcome %s", id)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetAttempt(ctx, id); err != nil {
			return err
		}
		return ErrOutcomeRecorded
	}
	return nil
}

// --- scan helpers ---

func scanPgQuery(row scannable) (*model.Query, error) {
	var q model.Query
	err := row.Scan(&q.ID, &q.Name, &q.Query, &q.SourcePack, &q.Enabled,
		&q.RunsCount, &q.LeadsCount, &q.QualifiedCount, &q.WonCount, &q.LostCount,
		&q.IPSRewardSum, &q.IPSWeightSum, &q.LastRunAt, &q.LastWinAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan query")
	}
	return &q, nil
}

func scanPgTemplate(row scannable) (*model.Template, error) {
	var t model.Template
	var buyerType, serviceTag, painTag *string
	err := row.Scan(&t.ID, &t.Name, &t.Type, &buyerType, &serviceTag, &painTag,
		&t.Body, &t.Enabled, &t.TimesSent, &t.WonCount, &t.IPSRewardSum, &t.IPSWeightSum)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan template")
	}
	t.BuyerType = deref(buyerType)
	t.ServiceTag = deref(serviceTag)
	t.PainTag = deref(painTag)
	return &t, nil
}

func scanPgLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var buyerType, intentClass, rejectedReason, entityID, queryID, runID *string
	var painTags, serviceTags, meta []byte

	err := row.Scan(&l.ID, &l.Source, &l.SourceURL, &l.CanonicalURL, &l.CanonicalHash,
		&l.Title, &l.Snippet, &l.PublishedAt, &l.Score, &l.IntentDepth, &l.UrgencyVelocity,
		&l.BudgetSignals, &l.FitPrecision, &buyerType, &painTags, &serviceTags,
		&l.RushEligible, &intentClass, &l.IntentConfidence, &meta, &l.Status,
		&rejectedReason, &entityID, &queryID, &runID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan lead")
	}

	l.BuyerType = deref(buyerType)
	l.IntentClass = deref(intentClass)
	l.RejectedReason = deref(rejectedReason)
	l.EntityID = deref(entityID)
	l.QueryID = deref(queryID)
	l.RunID = deref(runID)

	if err := json.Unmarshal(painTags, &l.PainTags); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal pain tags")
	}
	if err := json.Unmarshal(serviceTags, &l.ServiceTags); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal service tags")
	}
	if err := json.Unmarshal(meta, &l.Meta); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal lead meta")
	}
	return &l, nil
}

func scanPgEntity(row scannable) (*model.Entity, error) {
	var e model.Entity
	var primaryDomain *string
	var emails, domains, handles []byte
	err := row.Scan(&e.ID, &e.Type, &primaryDomain, &emails, &domains, &handles, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan entity")
	}
	e.PrimaryDomain = deref(primaryDomain)
	if err := json.Unmarshal(emails, &e.Emails); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal entity emails")
	}
	if err := json.Unmarshal(domains, &e.Domains); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal entity domains")
	}
	if err := json.Unmarshal(handles, &e.Handles); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal entity handles")
	}
	return &e, nil
}

func scanPgAttempt(row scannable) (*model.OutreachAttempt, error) {
	var a model.OutreachAttempt
	var queryID, templateID, outcome *string
	err := row.Scan(&a.ID, &a.LeadID, &queryID, &templateID, &a.QueryProb, &a.TemplateProb,
		&a.OverallProb, &a.LeadScore, &outcome, &a.OutcomeAt, &a.CreatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan attempt")
	}
	a.QueryID = deref(queryID)
	a.TemplateID = deref(templateID)
	a.Outcome = model.Outcome(deref(outcome))
	return &a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
