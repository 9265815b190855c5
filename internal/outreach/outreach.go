// Package outreach selects and renders message templates. Template
// selection is bandit-allocated the same way query selection is, and the
// draw probability is recorded so outcomes can be weighted correctly
// later.
package outreach

import (
	"net/url"
	"regexp"

	"github.com/rotisserie/eris"

	"github.com/seked/leadscout/internal/bandit"
	"github.com/seked/leadscout/internal/model"
)

// ErrNoTemplates is returned when no enabled template exists.
var ErrNoTemplates = eris.New("outreach: no templates enabled")

// UTM tags appended to every rendered order link.
type UTM struct {
	Source   string
	Medium   string
	Campaign string
}

// PickContext carries the lead attributes that drive template affinity.
type PickContext struct {
	BuyerType    string
	PainTags     []string
	ServiceTags  []string
	Name         string
	OrderPageURL string
	UTM          UTM
}

// Selection is a chosen template with its draw-time propensity.
type Selection struct {
	Template    model.Template
	Probability float64
}

// ScoreTemplate computes the affinity score for one template. Attribute
// matches dominate; the win-rate and UCB1 terms break ties toward
// templates that convert or that nobody has tried yet.
func ScoreTemplate(t model.Template, ctx PickContext, totalSends int) float64 {
	s := 10.0
	if ctx.BuyerType != "" && t.BuyerType != "" && t.BuyerType == ctx.BuyerType {
		s += 30
	}
	if t.ServiceTag != "" && containsString(ctx.ServiceTags, t.ServiceTag) {
		s += 30
	}
	if t.PainTag != "" && containsString(ctx.PainTags, t.PainTag) {
		s += 30
	}

	sent := max(0, t.TimesSent)
	wins := max(0, t.WonCount)
	winRate := 0.0
	if sent > 0 {
		winRate = float64(wins) / float64(sent)
	}

	s += winRate * 10
	s += bandit.UCB1(wins, sent, max(1, totalSends)) * 5
	return s
}

// PickTemplate deterministically returns the highest-scoring enabled
// template. Used for preview; live sends go through Select so a
// propensity is recorded.
func PickTemplate(templates []model.Template, ctx PickContext) (model.Template, error) {
	enabled := enabledOnly(templates)
	if len(enabled) == 0 {
		return model.Template{}, ErrNoTemplates
	}

	totalSends := sumSends(enabled)
	best := enabled[0]
	bestScore := ScoreTemplate(best, ctx, totalSends)
	for _, t := range enabled[1:] {
		if s := ScoreTemplate(t, ctx, totalSends); s > bestScore {
			best, bestScore = t, s
		}
	}
	return best, nil
}

// Select draws one enabled template from a softmax over affinity scores
// and returns it with the exact probability it was drawn at.
func Select(alloc *bandit.Allocator, templates []model.Template, ctx PickContext) (Selection, error) {
	enabled := enabledOnly(templates)
	if len(enabled) == 0 {
		return Selection{}, ErrNoTemplates
	}

	totalSends := sumSends(enabled)
	scores := make([]float64, len(enabled))
	for i, t := range enabled {
		scores[i] = ScoreTemplate(t, ctx, totalSends)
	}

	probs := bandit.Softmax(scores)
	idx := alloc.Sample(probs)
	return Selection{Template: enabled[idx], Probability: probs[idx]}, nil
}

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// Render fills template placeholders from the pick context. Unknown
// placeholders are left intact so a malformed template is visible in the
// output rather than silently blanked.
func Render(body string, ctx PickContext) string {
	orderLink := ""
	if ctx.OrderPageURL != "" {
		orderLink = addUTM(ctx.OrderPageURL, ctx.UTM)
	}

	vars := map[string]string{
		"name":       fallback(ctx.Name, "there"),
		"pain_1":     fallback(first(ctx.PainTags), "that"),
		"service":    fallback(first(ctx.ServiceTags), "short-form editing"),
		"order_link": orderLink,
	}

	return placeholderPattern.ReplaceAllStringFunc(body, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := vars[key]; ok {
			return v
		}
		return m
	})
}

// addUTM stamps utm parameters onto a link. An unparseable URL is
// returned untouched.
func addUTM(raw string, utm UTM) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	q := u.Query()
	q.Set("utm_source", utm.Source)
	q.Set("utm_medium", utm.Medium)
	q.Set("utm_campaign", utm.Campaign)
	u.RawQuery = q.Encode()
	return u.String()
}

func enabledOnly(templates []model.Template) []model.Template {
	out := make([]model.Template, 0, len(templates))
	for _, t := range templates {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out
}

func sumSends(templates []model.Template) int {
	total := 0
	for _, t := range templates {
		total += max(0, t.TimesSent)
	}
	return total
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

func first(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[0]
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
