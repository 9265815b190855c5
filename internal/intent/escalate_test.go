package intent

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/seked/leadscout/pkg/anthropic"
)

// mockAnthropicClient records requests and returns a canned response.
type mockAnthropicClient struct {
	response *anthropic.MessageResponse
	err      error
	requests []anthropic.MessageRequest
}

func (m *mockAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func textResponse(body string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: body}},
	}
}

// weakBuyerText is long enough to escalate but too vague for a confident
// tier-1 verdict.
var weakBuyerText = "Has anyone here dealt with outsourcing some of the production side of a channel? Wondering how that works in practice for a small team like ours."

func TestClassifyWithEscalation_ShortTextNoVerdict(t *testing.T) {
	mock := &mockAnthropicClient{response: textResponse("{}")}
	e := NewEscalator(mock, "fast-model", "smart-model", 0)

	_, ok := e.ClassifyWithEscalation(context.Background(), "too short", 0)
	assert.False(t, ok)
	assert.Empty(t, mock.requests, "no escalation below the length floor")
}

func TestClassifyWithEscalation_StrongVerdictSkipsEscalation(t *testing.T) {
	mock := &mockAnthropicClient{response: textResponse("{}")}
	e := NewEscalator(mock, "fast-model", "smart-model", 0)

	text := "We are hiring a video editor for our weekly podcast episodes. Looking for someone reliable, budget is $2000 per month, paid on retainer."
	v, ok := e.ClassifyWithEscalation(context.Background(), text, 50)
	require.True(t, ok)
	assert.Equal(t, ClassBuyer, v.IntentClass)
	assert.Empty(t, mock.requests, "strong verdicts stay on the heuristic tier")
}

func TestClassifyWithEscalation_WeakVerdictEscalatesFast(t *testing.T) {
	mock := &mockAnthropicClient{response: textResponse(
		`{"intentClass":"BUYER","confidence":0.9,"proofLines":["wants to outsource editing"],"proofOk":true,"roleMatch":true,"roleMismatch":false,"buyerScore":8,"sellerScore":1,"reasons":["OUTSOURCING_ASK"]}`,
	)}
	e := NewEscalator(mock, "fast-model", "smart-model", 0)

	// Mixed signals: low confidence but valid proof, so the cheap model is
	// enough.
	text := "Looking for a video editor to help with our agency clients. We are hiring this month. Our portfolio and pricing pages are being rebuilt right now."
	v, ok := e.ClassifyWithEscalation(context.Background(), text, 50)
	require.True(t, ok)
	require.Len(t, mock.requests, 1)
	assert.Equal(t, "fast-model", mock.requests[0].Model)

	assert.Equal(t, ClassBuyer, v.IntentClass)
	assert.InDelta(t, 0.9, v.Confidence, 1e-9)
	assert.True(t, v.ProofOk)
	assert.Equal(t, []string{"wants to outsource editing"}, v.ProofLines)
	assert.Contains(t, v.Reasons, "LLM")
	assert.Contains(t, v.Reasons, "OUTSOURCING_ASK")
}

func TestClassifyWithEscalation_HighScoreUsesSmartModel(t *testing.T) {
	mock := &mockAnthropicClient{response: textResponse(`{"intentClass":"BUYER","confidence":0.8}`)}
	e := NewEscalator(mock, "fast-model", "smart-model", 0)

	_, ok := e.ClassifyWithEscalation(context.Background(), weakBuyerText, 80)
	require.True(t, ok)
	require.Len(t, mock.requests, 1)
	assert.Equal(t, "smart-model", mock.requests[0].Model)
}

func TestClassifyWithEscalation_FailureKeepsHeuristicVerdict(t *testing.T) {
	mock := &mockAnthropicClient{err: assert.AnError}
	e := NewEscalator(mock, "fast-model", "smart-model", 0)

	v, ok := e.ClassifyWithEscalation(context.Background(), weakBuyerText, 50)
	require.True(t, ok)
	require.Len(t, mock.requests, 1)
	heuristic := Classify(weakBuyerText)
	assert.Equal(t, heuristic.IntentClass, v.IntentClass)
	assert.Equal(t, heuristic.Confidence, v.Confidence)
}

func TestClassifyWithEscalation_TruncatesLongText(t *testing.T) {
	mock := &mockAnthropicClient{response: textResponse(`{"intentClass":"AMBIGUOUS"}`)}
	e := NewEscalator(mock, "fast-model", "smart-model", 0)

	long := strings.Repeat("wondering about outsourcing editing work for our channel ", 1000)
	_, _ = e.ClassifyWithEscalation(context.Background(), long, 0)
	require.Len(t, mock.requests, 1)
	assert.LessOrEqual(t, len(mock.requests[0].Messages[0].Content), maxEscalationChars+len("TEXT:\n"))
}

func TestClassifyWithEscalation_TruncatesOnRuneBoundary(t *testing.T) {
	mock := &mockAnthropicClient{response: textResponse(`{"intentClass":"AMBIGUOUS"}`)}
	e := NewEscalator(mock, "fast-model", "smart-model", 0)

	// The byte cap lands inside the first multi-byte rune; the truncated
	// payload must still be valid UTF-8.
	long := strings.Repeat("a", maxEscalationChars-1) + "日本語の編集を外注したい"
	_, _ = e.ClassifyWithEscalation(context.Background(), long, 0)
	require.Len(t, mock.requests, 1)

	sent := mock.requests[0].Messages[0].Content
	assert.True(t, utf8.ValidString(sent))
	assert.Equal(t, maxEscalationChars-1+len("TEXT:\n"), len(sent))
}

func TestClassifyWithEscalation_LogsUsageCost(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	resp := textResponse(`{"intentClass":"BUYER","confidence":0.9}`)
	resp.Usage = anthropic.TokenUsage{InputTokens: 1200, OutputTokens: 80}
	mock := &mockAnthropicClient{response: resp}
	e := NewEscalator(mock, "fast-model", "smart-model", 0)

	_, ok := e.ClassifyWithEscalation(context.Background(), weakBuyerText, 50)
	require.True(t, ok)

	entries := logs.FilterMessage("cost attribution").All()
	require.Len(t, entries, 1)
	require.Len(t, mock.requests, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, mock.requests[0].Model, fields["model"])
	assert.Equal(t, "intent_escalation", fields["phase"])
	assert.Equal(t, int64(1200), fields["input_tokens"])
	assert.Equal(t, int64(80), fields["output_tokens"])
}

func TestParseEscalationPayload_Defaults(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty string", ""},
		{"not json", "I cannot classify this."},
		{"broken json", `{"intentClass": "BUYER", "confidence":`},
		{"wrong class", `{"intentClass": "MAYBE"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := parseEscalationPayload(tt.raw)
			assert.Equal(t, ClassAmbiguous, v.IntentClass)
			assert.InDelta(t, 0.5, v.Confidence, 1e-9)
			assert.False(t, v.ProofOk)
		})
	}
}

func TestParseEscalationPayload_ClampsNumerics(t *testing.T) {
	v := parseEscalationPayload(`{"intentClass":"SELLER","confidence":3.5,"buyerScore":-2,"sellerScore":99}`)
	assert.Equal(t, ClassSeller, v.IntentClass)
	assert.Equal(t, 1.0, v.Confidence)
	assert.Equal(t, 0, v.BuyerScore)
	assert.Equal(t, 10, v.SellerScore)
}

func TestParseEscalationPayload_CapsLists(t *testing.T) {
	v := parseEscalationPayload(`{"proofLines":["a","b","c","d","e","f","g"],"reasons":["r1","r2","r3","r4","r5","r6","r7","r8","r9","r10","r11","r12","r13"]}`)
	assert.Len(t, v.ProofLines, 5)
	assert.Len(t, v.Reasons, 12)
}

func TestParseEscalationPayload_SurroundingProse(t *testing.T) {
	v := parseEscalationPayload(`Sure, here is the JSON: {"intentClass":"BUYER","confidence":0.7} Hope that helps!`)
	assert.Equal(t, ClassBuyer, v.IntentClass)
	assert.InDelta(t, 0.7, v.Confidence, 1e-9)
}
