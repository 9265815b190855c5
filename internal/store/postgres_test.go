package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seked/leadscout/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetQuery_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM queries WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetQuery(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertQuery(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(query\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "Master Query (balanced)", `"need a video editor" -jobs`, "WIDE_WEB", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertQuery(context.Background(), model.Query{
		Name:       "Master Query (balanced)",
		Query:      `"need a video editor" -jobs`,
		SourcePack: model.SourcePackWideWeb,
		Enabled:    true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IncrementQuery(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`last_run_at = now\(\) WHERE id = \$8`).
		WithArgs(1, 5, 2, 0, 0, 0.0, 0.0, "query-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.IncrementQuery(context.Background(), "query-1", QueryDelta{Runs: 1, Leads: 5, Qualified: 2, MarkRun: true})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IncrementQuery_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE queries SET`).
		WithArgs(1, 0, 0, 0, 0, 0.0, 0.0, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.IncrementQuery(context.Background(), "missing", QueryDelta{Runs: 1})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IncrementTemplate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE templates SET times_sent = times_sent \+ \$1`).
		WithArgs(1, 1, 10.0, 10.0, "tpl-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.IncrementTemplate(context.Background(), "tpl-1", TemplateDelta{Sent: 1, Won: 1, IPSReward: 10, IPSWeight: 10})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetLeadStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE leads SET status = \$1`).
		WithArgs("REJECTED", "JOB_BOARD", "lead-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.SetLeadStatus(context.Background(), "lead-1", model.LeadStatusRejected, "JOB_BOARD")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CurrentWeights_EmptyHistory(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, intent_weight, urgency_weight, budget_weight, fit_weight, created_at`).
		WillReturnError(pgx.ErrNoRows)

	w, err := s.CurrentWeights(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, w.IntentWeight, 0.001)
	assert.InDelta(t, 1.0, w.FitWeight, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendWeights(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO scoring_weights`).
		WithArgs(pgxmock.AnyArg(), 1.1, 0.9, 1.0, 1.0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	w, err := s.AppendWeights(context.Background(), model.ScoringWeights{
		IntentWeight: 1.1, UrgencyWeight: 0.9, BudgetWeight: 1.0, FitWeight: 1.0,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.False(t, w.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateAttempt(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO outreach_attempts`).
		WithArgs(pgxmock.AnyArg(), "lead-1", "query-1", "tpl-1", 0.4, 0.25, 0.1, 80, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	attempt, err := s.CreateAttempt(context.Background(), model.OutreachAttempt{
		LeadID:       "lead-1",
		QueryID:      "query-1",
		TemplateID:   "tpl-1",
		QueryProb:    0.4,
		TemplateProb: 0.25,
		OverallProb:  0.1,
		LeadScore:    80,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, attempt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetAttemptOutcome(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE outreach_attempts SET outcome = \$1`).
		WithArgs("WON", pgxmock.AnyArg(), "attempt-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.SetAttemptOutcome(context.Background(), "attempt-1", model.OutcomeWon, time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetAttemptOutcome_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE outreach_attempts SET outcome = \$1`).
		WithArgs("WON", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`FROM outreach_attempts WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	err := s.SetAttemptOutcome(context.Background(), "missing", model.OutcomeWon, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1`).
		WithArgs("FINISHED", nil, 20, 12, 4, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FinishRun(context.Background(), "run-1", model.RunStatusFinished, "", 20, 12, 4)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
