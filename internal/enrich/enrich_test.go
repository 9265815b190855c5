package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seked/leadscout/internal/intent"
)

type stubClassifier struct {
	lastText string
	verdict  intent.Verdict
	ok       bool
}

func (s *stubClassifier) ClassifyWithEscalation(_ context.Context, text string, _ int) (intent.Verdict, bool) {
	s.lastText = text
	return s.verdict, s.ok
}

func TestShouldFetchPage(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/contact", true},
		{"https://blog.agency.io/about", true},
		{"https://www.reddit.com/r/NewTubers/comments/abc", false},
		{"https://x.com/someone/status/1", false},
		{"https://youtu.be/abc", false},
		{"https://www.instagram.com/someone", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShouldFetchPage(tt.url), tt.url)
	}
}

func TestFetchPageText_StripsMarkup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><style>body { color: red }</style></head>
<body><script>var tracking = true;</script>
<h1>About   Us</h1>
<p>We make cooking videos and need an editor.</p></body></html>`))
	}))
	defer srv.Close()

	e := New(nil)
	text, err := e.FetchPageText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "About Us We make cooking videos and need an editor.", text)
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "color")
}

func TestFetchPageText_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	e := New(nil)
	_, err := e.FetchPageText(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestFetchPageText_CapsLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<p>" + strings.Repeat("word ", 10000) + "</p>"))
	}))
	defer srv.Close()

	e := New(nil)
	text, err := e.FetchPageText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(text), maxPageText)
}

func TestExtractEmails(t *testing.T) {
	text := "Reach us at Hello@Studio.COM or hello@studio.com, billing at invoices@studio.com."
	emails := ExtractEmails(text)
	assert.Equal(t, []string{"hello@studio.com", "invoices@studio.com"}, emails)
}

func TestExtractEmails_Cap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("user")
		b.WriteByte(byte('a' + i))
		b.WriteString("@example.com ")
	}
	assert.Len(t, ExtractEmails(b.String()), maxEmails)
}

func TestExtractSocials(t *testing.T) {
	text := `Find me at https://www.instagram.com/editorperson and
https://x.com/editorperson/status/99 plus https://example.com/portfolio
and https://youtu.be/abc123.`
	socials := ExtractSocials(text)
	require.Len(t, socials, 3)
	assert.Equal(t, "INSTAGRAM", socials[0].Platform)
	assert.Equal(t, "X", socials[1].Platform)
	assert.Equal(t, "YOUTUBE", socials[2].Platform)
}

func TestEnrichLead_CombinesSnippetAndPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<p>Contact hello@channel.tv for collabs.</p>`))
	}))
	defer srv.Close()

	cls := &stubClassifier{verdict: intent.Verdict{IntentClass: intent.ClassBuyer}, ok: true}
	e := New(cls)

	out := e.EnrichLead(context.Background(), srv.URL, "Looking for an editor", "Weekly uploads, budget ready", 60)
	assert.True(t, out.HasVerdict)
	assert.Equal(t, intent.ClassBuyer, out.Verdict.IntentClass)
	assert.Equal(t, []string{"hello@channel.tv"}, out.Emails)
	assert.Contains(t, cls.lastText, "Looking for an editor")
	assert.Contains(t, cls.lastText, "hello@channel.tv")
}

func TestEnrichLead_FetchFailureFallsBackToSnippet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cls := &stubClassifier{verdict: intent.Verdict{IntentClass: intent.ClassAmbiguous}, ok: true}
	e := New(cls)

	out := e.EnrichLead(context.Background(), srv.URL, "Looking for an editor", "Weekly uploads", 0)
	assert.Empty(t, out.PageText)
	assert.True(t, out.HasVerdict)
	assert.Equal(t, "Looking for an editor\nWeekly uploads", cls.lastText)
}

func TestEnrichLead_MarksEscalated(t *testing.T) {
	cls := &stubClassifier{verdict: intent.Verdict{IntentClass: intent.ClassBuyer, Reasons: []string{"BUYER_HINTS", "LLM"}}, ok: true}
	e := New(cls)

	out := e.EnrichLead(context.Background(), "https://reddit.com/r/x/comments/1", "t", "s", 0)
	assert.True(t, out.Escalated)
}
