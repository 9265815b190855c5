package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryArmCounters(t *testing.T) {
	q := Query{RunsCount: 7, WonCount: 2}
	assert.Equal(t, 7, q.Trials())
	assert.Equal(t, 2, q.Wins())
}

func TestTemplateArmCounters(t *testing.T) {
	tpl := Template{TimesSent: 12, WonCount: 3}
	assert.Equal(t, 12, tpl.Trials())
	assert.Equal(t, 3, tpl.Wins())
}

func TestAttemptTerminal(t *testing.T) {
	assert.False(t, OutreachAttempt{}.Terminal())
	assert.True(t, OutreachAttempt{Outcome: OutcomeWon}.Terminal())
	assert.True(t, OutreachAttempt{Outcome: OutcomeLost}.Terminal())
}

func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights()
	assert.Equal(t, 1.0, w.IntentWeight)
	assert.Equal(t, 1.0, w.UrgencyWeight)
	assert.Equal(t, 1.0, w.BudgetWeight)
	assert.Equal(t, 1.0, w.FitWeight)
}
