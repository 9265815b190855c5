package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/seked/leadscout/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS queries (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	query           TEXT NOT NULL UNIQUE,
	source_pack     TEXT NOT NULL DEFAULT 'WIDE_WEB',
	enabled         INTEGER NOT NULL DEFAULT 1,
	runs_count      INTEGER NOT NULL DEFAULT 0,
	leads_count     INTEGER NOT NULL DEFAULT 0,
	qualified_count INTEGER NOT NULL DEFAULT 0,
	won_count       INTEGER NOT NULL DEFAULT 0,
	lost_count      INTEGER NOT NULL DEFAULT 0,
	ips_reward_sum  REAL NOT NULL DEFAULT 0,
	ips_weight_sum  REAL NOT NULL DEFAULT 0,
	last_run_at     DATETIME,
	last_win_at     DATETIME
);

CREATE TABLE IF NOT EXISTS templates (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	type           TEXT NOT NULL DEFAULT 'DM',
	buyer_type     TEXT,
	service_tag    TEXT,
	pain_tag       TEXT,
	body           TEXT NOT NULL,
	enabled        INTEGER NOT NULL DEFAULT 1,
	times_sent     INTEGER NOT NULL DEFAULT 0,
	won_count      INTEGER NOT NULL DEFAULT 0,
	ips_reward_sum REAL NOT NULL DEFAULT 0,
	ips_weight_sum REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entities (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL DEFAULT 'UNKNOWN',
	primary_domain TEXT UNIQUE,
	emails         TEXT NOT NULL DEFAULT '[]',
	domains        TEXT NOT NULL DEFAULT '[]',
	handles        TEXT NOT NULL DEFAULT '{}',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS leads (
	id                TEXT PRIMARY KEY,
	source            TEXT NOT NULL DEFAULT '',
	source_url        TEXT NOT NULL,
	canonical_url     TEXT NOT NULL,
	canonical_hash    TEXT NOT NULL UNIQUE,
	title             TEXT NOT NULL DEFAULT '',
	snippet           TEXT NOT NULL DEFAULT '',
	published_at      DATETIME,
	score             INTEGER NOT NULL DEFAULT 0,
	intent_depth      REAL NOT NULL DEFAULT 0,
	urgency_velocity  REAL NOT NULL DEFAULT 0,
	budget_signals    REAL NOT NULL DEFAULT 0,
	fit_precision     REAL NOT NULL DEFAULT 0,
	buyer_type        TEXT,
	pain_tags         TEXT NOT NULL DEFAULT '[]',
	service_tags      TEXT NOT NULL DEFAULT '[]',
	rush_eligible     INTEGER NOT NULL DEFAULT 0,
	intent_class      TEXT,
	intent_confidence REAL NOT NULL DEFAULT 0,
	meta              TEXT NOT NULL DEFAULT '{}',
	status            TEXT NOT NULL DEFAULT 'NEW',
	rejected_reason   TEXT,
	entity_id         TEXT,
	query_id          TEXT,
	run_id            TEXT,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scoring_weights (
	id             TEXT PRIMARY KEY,
	intent_weight  REAL NOT NULL,
	urgency_weight REAL NOT NULL,
	budget_weight  REAL NOT NULL,
	fit_weight     REAL NOT NULL,
	created_at     DATETIME NOT NULL
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
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME
);

CREATE TABLE IF NOT EXISTS outreach_attempts (
	id            TEXT PRIMARY KEY,
	lead_id       TEXT NOT NULL,
	query_id      TEXT,
	template_id   TEXT,
	query_prob    REAL NOT NULL DEFAULT 0,
	template_prob REAL NOT NULL DEFAULT 0,
	overall_prob  REAL NOT NULL DEFAULT 0,
	lead_score    INTEGER NOT NULL DEFAULT 0,
	outcome       TEXT,
	outcome_at    DATETIME,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS lead_events (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL,
	type       TEXT NOT NULL,
	meta       TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_query_id ON leads(query_id);
CREATE INDEX IF NOT EXISTS idx_leads_score ON leads(score);
CREATE INDEX IF NOT EXISTS idx_runs_query_id ON runs(query_id);
CREATE INDEX IF NOT EXISTS idx_attempts_lead_id ON outreach_attempts(lead_id);
CREATE INDEX IF NOT EXISTS idx_lead_events_lead_id ON lead_events(lead_id);
CREATE INDEX IF NOT EXISTS idx_weights_created_at ON scoring_weights(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Queries ---

const queryColumns = `id, name, query, source_pack, enabled, runs_count, leads_count,
	qualified_count, won_count, lost_count, ips_reward_sum, ips_weight_sum, last_run_at, last_win_at`

func (s *SQLiteStore) ListQueries(ctx context.Context, enabledOnly bool) ([]model.Query, error) {
	q := `SELECT ` + queryColumns + ` FROM queries`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list queries")
	}
	defer rows.Close()

	var out []model.Query
	for rows.Next() {
		item, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list queries iterate")
}

func (s *SQLiteStore) GetQuery(ctx context.Context, id string) (*model.Query, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queryColumns+` FROM queries WHERE id = ?`, id)
	q, err := scanQuery(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return q, err
}

func (s *SQLiteStore) UpsertQuery(ctx context.Context, q model.Query) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queries (id, name, query, source_pack, enabled) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(query) DO UPDATE SET name = excluded.name, source_pack = excluded.source_pack, enabled = excluded.enabled`,
		q.ID, q.Name, q.Query, string(q.SourcePack), boolToInt(q.Enabled),
	)
	return eris.Wrapf(err, "sqlite: upsert query %s", q.Name)
}

func (s *SQLiteStore) SetQueryEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE queries SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set query enabled %s", id)
	}
	return checkRowsAffected(res, "query", id)
}

func (s *SQLiteStore) IncrementQuery(ctx context.Context, id string, d QueryDelta) error {
	now := time.Now().UTC()
	q := `UPDATE queries SET
		runs_count = runs_count + ?,
		leads_count = leads_count + ?,
		qualified_count = qualified_count + ?,
		won_count = won_count + ?,
		lost_count = lost_count + ?,
		ips_reward_sum = ips_reward_sum + ?,
		ips_weight_sum = ips_weight_sum + ?`
	args := []any{d.Runs, d.Leads, d.Qualified, d.Won, d.Lost, d.IPSReward, d.IPSWeight}
	if d.MarkRun {
		q += `, last_run_at = ?`
		args = append(args, now)
	}
	if d.MarkWin {
		q += `, last_win_at = ?`
		args = append(args, now)
	}
	q += ` WHERE id = ?`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment query %s", id)
	}
	return checkRowsAffected(res, "query", id)
}

// --- Templates ---

const templateColumns = `id, name, type, buyer_type, service_tag, pain_tag, body, enabled,
	times_sent, won_count, ips_reward_sum, ips_weight_sum`

func (s *SQLiteStore) ListTemplates(ctx context.Context, enabledOnly bool) ([]model.Template, error) {
	q := `SELECT ` + templateColumns + ` FROM templates`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list templates")
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		item, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list templates iterate")
}

func (s *SQLiteStore) UpsertTemplate(ctx context.Context, t model.Template) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (id, name, type, buyer_type, service_tag, pain_tag, body, enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, type = excluded.type,
			buyer_type = excluded.buyer_type, service_tag = excluded.service_tag,
			pain_tag = excluded.pain_tag, body = excluded.body, enabled = excluded.enabled`,
		t.ID, t.Name, string(t.Type), nullString(t.BuyerType), nullString(t.ServiceTag),
		nullString(t.PainTag), t.Body, boolToInt(t.Enabled),
	)
	return eris.Wrapf(err, "sqlite: upsert template %s", t.Name)
}

func (s *SQLiteStore) IncrementTemplate(ctx context.Context, id string, d TemplateDelta) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET times_sent = times_sent + ?, won_count = won_count + ?,
			ips_reward_sum = ips_reward_sum + ?, ips_weight_sum = ips_weight_sum + ?
		 WHERE id = ?`,
		d.Sent, d.Won, d.IPSReward, d.IPSWeight, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment template %s", id)
	}
	return checkRowsAffected(res, "template", id)
}

// --- Leads ---

const leadColumns = `id, source, source_url, canonical_url, canonical_hash, title, snippet,
	published_at, score, intent_depth, urgency_velocity, budget_signals, fit_precision,
	buyer_type, pain_tags, service_tags, rush_eligible, intent_class, intent_confidence,
	meta, status, rejected_reason, entity_id, query_id, run_id, created_at, updated_at`

// UpsertLeadByHash inserts a new lead or refreshes an existing one keyed
// by canonical hash. The second return value reports whether the lead
// was newly created. On conflict the original ID, source, and created_at
// survive; scoring fields and metadata are refreshed.
func (s *SQLiteStore) UpsertLeadByHash(ctx context.Context, lead model.Lead) (*model.Lead, bool, error) {
	now := time.Now().UTC()

	painTags, serviceTags, meta, err := marshalLeadJSON(lead)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.getLeadBy(ctx, "canonical_hash", lead.CanonicalHash)
	if err != nil && !eris.Is(err, ErrNotFound) {
		return nil, false, err
	}

	if existing == nil {
		if lead.ID == "" {
			lead.ID = uuid.New().String()
		}
		lead.CreatedAt = now
		lead.UpdatedAt = now
		if lead.Status == "" {
			lead.Status = model.LeadStatusNew
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO leads (`+leadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			lead.ID, lead.Source, lead.SourceURL, lead.CanonicalURL, lead.CanonicalHash,
			lead.Title, lead.Snippet, lead.PublishedAt, lead.Score, lead.IntentDepth,
			lead.UrgencyVelocity, lead.BudgetSignals, lead.FitPrecision,
			nullString(lead.BuyerType), painTags, serviceTags, boolToInt(lead.RushEligible),
			nullString(lead.IntentClass), lead.IntentConfidence, meta, string(lead.Status),
			nullString(lead.RejectedReason), nullString(lead.EntityID),
			nullString(lead.QueryID), nullString(lead.RunID), lead.CreatedAt, lead.UpdatedAt,
		)
		if err != nil {
			return nil, false, eris.Wrapf(err, "sqlite: insert lead %s", lead.CanonicalHash)
		}
		return &lead, true, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE leads SET source_url = ?, canonical_url = ?, title = ?, snippet = ?, published_at = ?,
			score = ?, intent_depth = ?, urgency_velocity = ?, budget_signals = ?, fit_precision = ?,
			buyer_type = ?, pain_tags = ?, service_tags = ?, rush_eligible = ?,
			intent_class = ?, intent_confidence = ?, meta = ?, status = ?, rejected_reason = ?,
			entity_id = ?, query_id = ?, run_id = ?, updated_at = ?
		 WHERE canonical_hash = ?`,
		lead.SourceURL, lead.CanonicalURL, lead.Title, lead.Snippet, lead.PublishedAt,
		lead.Score, lead.IntentDepth, lead.UrgencyVelocity, lead.BudgetSignals, lead.FitPrecision,
		nullString(lead.BuyerType), painTags, serviceTags, boolToInt(lead.RushEligible),
		nullString(lead.IntentClass), lead.IntentConfidence, meta, string(lead.Status),
		nullString(lead.RejectedReason), nullString(lead.EntityID),
		nullString(lead.QueryID), nullString(lead.RunID), now,
		lead.CanonicalHash,
	)
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: update lead %s", lead.CanonicalHash)
	}

	lead.ID = existing.ID
	lead.Source = existing.Source
	lead.CreatedAt = existing.CreatedAt
	lead.UpdatedAt = now
	return &lead, false, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	return s.getLeadBy(ctx, "id", id)
}

func (s *SQLiteStore) getLeadBy(ctx context.Context, column, value string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE `+column+` = ?`, value)
	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return lead, err
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any

	if filter.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.QueryID != "" {
		q += ` AND query_id = ?`
		args = append(args, filter.QueryID)
	}
	if filter.MinScore > 0 {
		q += ` AND score >= ?`
		args = append(args, filter.MinScore)
	}
	q += ` ORDER BY score DESC, created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		q += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var out []model.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *lead)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) SetLeadStatus(ctx context.Context, id string, status model.LeadStatus, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, rejected_reason = ?, updated_at = ? WHERE id = ?`,
		string(status), nullString(reason), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set lead status %s", id)
	}
	return checkRowsAffected(res, "lead", id)
}

func (s *SQLiteStore) AppendLeadEvent(ctx context.Context, event model.LeadEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(event.Meta)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal event meta")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lead_events (id, lead_id, type, meta, created_at) VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.LeadID, string(event.Type), string(metaJSON), event.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: append lead event %s", event.LeadID)
}

// --- Entities ---

func (s *SQLiteStore) ListEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, primary_domain, emails, domains, handles, created_at, updated_at FROM entities`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

// UpsertEntityByDomain merges the entity into any existing row sharing
// its primary domain. Email, domain, and handle sets are unioned, never
// replaced.
func (s *SQLiteStore) UpsertEntityByDomain(ctx context.Context, entity model.Entity) (*model.Entity, error) {
	now := time.Now().UTC()

	if entity.PrimaryDomain != "" {
		row := s.db.QueryRowContext(ctx,
			`SELECT id, type, primary_domain, emails, domains, handles, created_at, updated_at
			 FROM entities WHERE primary_domain = ?`, entity.PrimaryDomain)
		existing, err := scanEntity(row)
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}
		if existing != nil {
			merged := mergeEntities(*existing, entity)
			merged.UpdatedAt = now
			emails, domains, handles, err := marshalEntityJSON(merged)
			if err != nil {
				return nil, err
			}
			_, err = s.db.ExecContext(ctx,
				`UPDATE entities SET type = ?, emails = ?, domains = ?, handles = ?, updated_at = ? WHERE id = ?`,
				merged.Type, emails, domains, handles, now, merged.ID,
			)
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: update entity %s", merged.ID)
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
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (id, type, primary_domain, emails, domains, handles, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entity.ID, entity.Type, nullString(entity.PrimaryDomain), emails, domains, handles, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert entity %s", entity.PrimaryDomain)
	}
	return &entity, nil
}

// --- Scoring weights ---

// CurrentWeights returns the most recent weight row, or the unit default
// when the history is empty.
func (s *SQLiteStore) CurrentWeights(ctx context.Context) (model.ScoringWeights, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, intent_weight, urgency_weight, budget_weight, fit_weight, created_at
		 FROM scoring_weights ORDER BY created_at DESC, id DESC LIMIT 1`)

	var w model.ScoringWeights
	err := row.Scan(&w.ID, &w.IntentWeight, &w.UrgencyWeight, &w.BudgetWeight, &w.FitWeight, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return model.DefaultWeights(), nil
	}
	if err != nil {
		return model.ScoringWeights{}, eris.Wrap(err, "sqlite: current weights")
	}
	return w, nil
}

func (s *SQLiteStore) AppendWeights(ctx context.Context, w model.ScoringWeights) (*model.ScoringWeights, error) {
	w.ID = uuid.New().String()
	w.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scoring_weights (id, intent_weight, urgency_weight, budget_weight, fit_weight, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.IntentWeight, w.UrgencyWeight, w.BudgetWeight, w.FitWeight, w.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: append weights")
	}
	return &w, nil
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, queryID, geoLocation string) (*model.Run, error) {
	run := model.Run{
		ID:          uuid.New().String(),
		QueryID:     queryID,
		GeoLocation: geoLocation,
		Status:      model.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, query_id, geo_location, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.QueryID, nullString(run.GeoLocation), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert run for query %s", queryID)
	}
	return &run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, errMsg string, resultCount, leadCount, qualifiedCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, result_count = ?, lead_count = ?, qualified_count = ?, finished_at = ?
		 WHERE id = ?`,
		string(status), nullString(errMsg), resultCount, leadCount, qualifiedCount, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	q := `SELECT id, query_id, geo_location, status, error, result_count, lead_count, qualified_count, started_at, finished_at
		FROM runs WHERE 1=1`
	var args []any

	if filter.QueryID != "" {
		q += ` AND query_id = ?`
		args = append(args, filter.QueryID)
	}
	if filter.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	q += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var r model.Run
		var geo, errMsg sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.QueryID, &geo, &r.Status, &errMsg,
			&r.ResultCount, &r.LeadCount, &r.QualifiedCount, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.GeoLocation = geo.String
		r.Error = errMsg.String
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// --- Outreach attempts ---

const attemptColumns = `id, lead_id, query_id, template_id, query_prob, template_prob,
	overall_prob, lead_score, outcome, outcome_at, created_at`

func (s *SQLiteStore) CreateAttempt(ctx context.Context, attempt model.OutreachAttempt) (*model.OutreachAttempt, error) {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	attempt.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outreach_attempts (id, lead_id, query_id, template_id, query_prob, template_prob, overall_prob, lead_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID, attempt.LeadID, nullString(attempt.QueryID), nullString(attempt.TemplateID),
		attempt.QueryProb, attempt.TemplateProb, attempt.OverallProb, attempt.LeadScore, attempt.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert attempt for lead %s", attempt.LeadID)
	}
	return &attempt, nil
}

func (s *SQLiteStore) GetAttempt(ctx context.Context, id string) (*model.OutreachAttempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM outreach_attempts WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

// OpenAttemptForLead returns the newest attempt for a lead that has no
// outcome yet.
func (s *SQLiteStore) OpenAttemptForLead(ctx context.Context, leadID string) (*model.OutreachAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM outreach_attempts
		 WHERE lead_id = ? AND (outcome IS NULL OR outcome = '')
		 ORDER BY created_at DESC LIMIT 1`, leadID)
	a, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

// SetAttemptOutcome records a terminal outcome exactly once. A second
// call for the same attempt returns ErrOutcomeRecorded.
func (s *SQLiteStore) SetAttemptOutcome(ctx context.Context, id string, outcome model.Outcome, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outreach_attempts SET outcome = ?, outcome_at = ?
		 WHERE id = ? AND (outcome IS NULL OR outcome = '')`,
		string(outcome), at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set attempt outcome %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		if _, err := s.GetAttempt(ctx, id); err != nil {
			return err
		}
		return ErrOutcomeRecorded
	}
	return nil
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanQuery(row scannable) (*model.Query, error) {
	var q model.Query
	var lastRun, lastWin sql.NullTime
	err := row.Scan(&q.ID, &q.Name, &q.Query, &q.SourcePack, &q.Enabled,
		&q.RunsCount, &q.LeadsCount, &q.QualifiedCount, &q.WonCount, &q.LostCount,
		&q.IPSRewardSum, &q.IPSWeightSum, &lastRun, &lastWin)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan query")
	}
	if lastRun.Valid {
		t := lastRun.Time
		q.LastRunAt = &t
	}
	if lastWin.Valid {
		t := lastWin.Time
		q.LastWinAt = &t
	}
	return &q, nil
}

func scanTemplate(row scannable) (*model.Template, error) {
	var t model.Template
	var buyerType, serviceTag, painTag sql.NullString
	err := row.Scan(&t.ID, &t.Name, &t.Type, &buyerType, &serviceTag, &painTag,
		&t.Body, &t.Enabled, &t.TimesSent, &t.WonCount, &t.IPSRewardSum, &t.IPSWeightSum)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan template")
	}
	t.BuyerType = buyerType.String
	t.ServiceTag = serviceTag.String
	t.PainTag = painTag.String
	return &t, nil
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var published sql.NullTime
	var buyerType, intentClass, rejectedReason, entityID, queryID, runID sql.NullString
	var painTags, serviceTags, meta string

	err := row.Scan(&l.ID, &l.Source, &l.SourceURL, &l.CanonicalURL, &l.CanonicalHash,
		&l.Title, &l.Snippet, &published, &l.Score, &l.IntentDepth, &l.UrgencyVelocity,
		&l.BudgetSignals, &l.FitPrecision, &buyerType, &painTags, &serviceTags,
		&l.RushEligible, &intentClass, &l.IntentConfidence, &meta, &l.Status,
		&rejectedReason, &entityID, &queryID, &runID, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan lead")
	}

	if published.Valid {
		t := published.Time
		l.PublishedAt = &t
	}
	l.BuyerType = buyerType.String
	l.IntentClass = intentClass.String
	l.RejectedReason = rejectedReason.String
	l.EntityID = entityID.String
	l.QueryID = queryID.String
	l.RunID = runID.String

	if err := json.Unmarshal([]byte(painTags), &l.PainTags); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal pain tags")
	}
	if err := json.Unmarshal([]byte(serviceTags), &l.ServiceTags); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal service tags")
	}
	if err := json.Unmarshal([]byte(meta), &l.Meta); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal lead meta")
	}
	return &l, nil
}

func scanEntity(row scannable) (*model.Entity, error) {
	var e model.Entity
	var primaryDomain sql.NullString
	var emails, domains, handles string
	err := row.Scan(&e.ID, &e.Type, &primaryDomain, &emails, &domains, &handles, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan entity")
	}
	e.PrimaryDomain = primaryDomain.String
	if err := json.Unmarshal([]byte(emails), &e.Emails); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal entity emails")
	}
	if err := json.Unmarshal([]byte(domains), &e.Domains); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal entity domains")
	}
	if err := json.Unmarshal([]byte(handles), &e.Handles); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal entity handles")
	}
	return &e, nil
}

func scanAttempt(row scannable) (*model.OutreachAttempt, error) {
	var a model.OutreachAttempt
	var queryID, templateID, outcome sql.NullString
	var outcomeAt sql.NullTime
	err := row.Scan(&a.ID, &a.LeadID, &queryID, &templateID, &a.QueryProb, &a.TemplateProb,
		&a.OverallProb, &a.LeadScore, &outcome, &outcomeAt, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan attempt")
	}
	a.QueryID = queryID.String
	a.TemplateID = templateID.String
	a.Outcome = model.Outcome(outcome.String)
	if outcomeAt.Valid {
		t := outcomeAt.Time
		a.OutcomeAt = &t
	}
	return &a, nil
}

// --- misc helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func marshalLeadJSON(lead model.Lead) (painTags, serviceTags, meta string, err error) {
	pt, err := json.Marshal(orEmpty(lead.PainTags))
	if err != nil {
		return "", "", "", eris.Wrap(err, "sqlite: marshal pain tags")
	}
	st, err := json.Marshal(orEmpty(lead.ServiceTags))
	if err != nil {
		return "", "", "", eris.Wrap(err, "sqlite: marshal service tags")
	}
	m, err := json.Marshal(lead.Meta)
	if err != nil {
		return "", "", "", eris.Wrap(err, "sqlite: marshal lead meta")
	}
	return string(pt), string(st), string(m), nil
}

func marshalEntityJSON(e model.Entity) (emails, domains, handles string, err error) {
	em, err := json.Marshal(orEmpty(e.Emails))
	if err != nil {
		return "", "", "", eris.Wrap(err, "sqlite: marshal entity emails")
	}
	dm, err := json.Marshal(orEmpty(e.Domains))
	if err != nil {
		return "", "", "", eris.Wrap(err, "sqlite: marshal entity domains")
	}
	h := e.Handles
	if h == nil {
		h = map[string]string{}
	}
	hd, err := json.Marshal(h)
	if err != nil {
		return "", "", "", eris.Wrap(err, "sqlite: marshal entity handles")
	}
	return string(em), string(dm), string(hd), nil
}

// mergeEntities unions the incoming entity's identifiers into the
// existing row.
func mergeEntities(existing, incoming model.Entity) model.Entity {
	existing.Emails = unionStrings(existing.Emails, incoming.Emails)
	existing.Domains = unionStrings(existing.Domains, incoming.Domains)
	if existing.Handles == nil {
		existing.Handles = map[string]string{}
	}
	for platform, handle := range incoming.Handles {
		if _, ok := existing.Handles[platform]; !ok {
			existing.Handles[platform] = handle
		}
	}
	if incoming.Type != "" && existing.Type == "UNKNOWN" {
		existing.Type = incoming.Type
	}
	return existing
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
