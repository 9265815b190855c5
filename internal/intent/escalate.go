package intent

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/seked/leadscout/pkg/anthropic"
)

const (
	// minHeuristicChars is the minimum combined text length for the tier-1
	// heuristic to produce a verdict at all.
	minHeuristicChars = 40
	// minEscalationChars is the minimum text length for a tier-2 call.
	minEscalationChars = 80
	// weakConfidence marks a tier-1 verdict as weak.
	weakConfidence = 0.6
	// highScore forces escalation regardless of verdict strength.
	highScore = 75

	// maxEscalationChars truncates the text sent to the model.
	maxEscalationChars = 12000
	maxReasons         = 12
)

// escalationPrompt instructs the model to return a verdict-shaped JSON
// payload and nothing else.
const escalationPrompt = `You are a lead qualification classifier. Return only valid JSON.
Task: classify whether the text represents a BUYER looking to hire video editing help, a SELLER offering services, or AMBIGUOUS.
Also extract 1-5 proofLines that justify the classification, and evaluate proofOk (buyer ask + editing role) and roleMismatch (hiring for non-editing roles).
Return schema:
{"intentClass":"BUYER|SELLER|AMBIGUOUS","confidence":0-1,"proofLines":["..."],"proofOk":true,"roleMatch":true,"roleMismatch":false,"buyerScore":0-10,"sellerScore":0-10,"reasons":["..."]}`

// Escalator upgrades weak heuristic verdicts via a Claude call. The smart
// model is reserved for high-score leads and failed proofs; everything
// else escalates on the fast model.
type Escalator struct {
	ai         anthropic.Client
	fastModel  string
	smartModel string
	timeout    time.Duration
}

// NewEscalator creates an Escalator. A zero timeout defaults to 20s.
func NewEscalator(ai anthropic.Client, fastModel, smartModel string, timeout time.Duration) *Escalator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Escalator{ai: ai, fastModel: fastModel, smartModel: smartModel, timeout: timeout}
}

// ClassifyWithEscalation runs the tier-1 heuristic and escalates to the
// model when the verdict is weak or the lead score demands it. Escalation
// failure keeps the heuristic verdict; it never degrades a usable result.
// Returns a zero-value ok=false verdict when the text is too short to
// classify and escalation does not fire.
func (e *Escalator) ClassifyWithEscalation(ctx context.Context, text string, scoreHint int) (Verdict, bool) {
	var verdict Verdict
	have := false
	if len(text) >= minHeuristicChars {
		verdict = Classify(text)
		have = true
	}

	weak := !have ||
		verdict.IntentClass == ClassAmbiguous ||
		verdict.Confidence < weakConfidence ||
		!verdict.ProofOk ||
		verdict.RoleMismatch

	if e == nil || e.ai == nil || len(text) < minEscalationChars || !(weak || scoreHint >= highScore) {
		return verdict, have
	}

	model := e.fastModel
	if scoreHint >= highScore || verdict.IntentClass == ClassAmbiguous || !verdict.ProofOk {
		model = e.smartModel
	}

	escalated, err := e.classifyRemote(ctx, model, text)
	if err != nil {
		zap.L().Debug("intent escalation failed, keeping heuristic verdict",
			zap.String("model", model), zap.Error(err))
		return verdict, have
	}

	// Wholesale replacement: only the reasons list is concatenated, and
	// the heuristic proof lines survive when the model returned none.
	escalated.Reasons = append(append(verdict.Reasons, "LLM"), escalated.Reasons...)
	if len(escalated.ProofLines) == 0 {
		escalated.ProofLines = verdict.ProofLines
	}
	return escalated, true
}

// classifyRemote performs one escalation call with a hard timeout.
func (e *Escalator) classifyRemote(ctx context.Context, model, text string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if len(text) > maxEscalationChars {
		cut := maxEscalationChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	resp, err := e.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     model,
		MaxTokens: 600,
		System:    []anthropic.SystemBlock{{Text: escalationPrompt}},
		Messages:  []anthropic.Message{{Role: "user", Content: "TEXT:\n" + text}},
	})
	if err != nil {
		return Verdict{}, err
	}
	resp.Usage.LogCost(model, "intent_escalation")

	var raw string
	for _, block := range resp.Content {
		if block.Type == "text" {
			raw = block.Text
			break
		}
	}

	return parseEscalationPayload(raw), nil
}

// parseEscalationPayload turns the model output into a Verdict. The shape
// is never trusted: unparseable JSON degrades to an empty object, the
// class defaults to AMBIGUOUS, and numeric fields are clamped.
func parseEscalationPayload(raw string) Verdict {
	payload := map[string]any{}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
			payload = map[string]any{}
		}
	}

	class := ClassAmbiguous
	if s, ok := payload["intentClass"].(string); ok {
		if s == ClassBuyer || s == ClassSeller || s == ClassAmbiguous {
			class = s
		}
	}

	confidence := 0.5
	if f, ok := asFloat(payload["confidence"]); ok {
		confidence = clampFloat(f, 0, 1)
	}

	buyerScore := 0
	if f, ok := asFloat(payload["buyerScore"]); ok {
		buyerScore = int(clampFloat(f, 0, 10))
	}
	sellerScore := 0
	if f, ok := asFloat(payload["sellerScore"]); ok {
		sellerScore = int(clampFloat(f, 0, 10))
	}

	return Verdict{
		IntentClass:  class,
		BuyerScore:   buyerScore,
		SellerScore:  sellerScore,
		Confidence:   confidence,
		Reasons:      stringSlice(payload["reasons"], maxReasons),
		ProofLines:   stringSlice(payload["proofLines"], maxProofLines),
		ProofOk:      asBool(payload["proofOk"]),
		RoleMatch:    asBool(payload["roleMatch"]),
		RoleMismatch: asBool(payload["roleMismatch"]),
	}
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func asBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func stringSlice(v any, limit int) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
		if len(out) == limit {
			break
		}
	}
	return out
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
