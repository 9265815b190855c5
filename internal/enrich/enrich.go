// Package enrich augments a raw lead with page text, contact details,
// and an intent verdict. Page fetches are best-effort: any failure falls
// back to classifying the title and snippet alone.
package enrich

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seked/leadscout/internal/intent"
	"github.com/seked/leadscout/internal/model"
)

const (
	// maxPageText caps extracted plaintext per page.
	maxPageText = 20000
	// maxBodyBytes caps the raw HTML read from a fetch.
	maxBodyBytes = 512 * 1024
	maxEmails    = 10
	maxSocials   = 10
)

// socialHostHints are hosts we never fetch: they require auth or render
// client-side, and the search snippet already carries the post text.
var socialHostHints = []string{
	"facebook.com",
	"reddit.com",
	"x.com",
	"twitter.com",
	"youtube.com",
	"youtu.be",
	"tiktok.com",
	"instagram.com",
}

var (
	emailPattern = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	urlPattern   = regexp.MustCompile(`(?i)https?://[^\s"'<>]+`)
)

// Enrichment is the combined output for one lead.
type Enrichment struct {
	PageText string
	Emails   []string
	Socials  []model.SocialHandle
	Verdict  intent.Verdict
	// HasVerdict is false when the text was too short to classify.
	HasVerdict bool
	// Escalated reports whether the verdict came from the model tier.
	Escalated bool
}

// Classifier is the escalating intent classifier the enricher drives.
type Classifier interface {
	ClassifyWithEscalation(ctx context.Context, text string, scoreHint int) (intent.Verdict, bool)
}

// Enricher fetches pages and classifies lead text.
type Enricher struct {
	client     *http.Client
	classifier Classifier
}

// New creates an Enricher. classifier may be nil, in which case leads get
// contact extraction but no verdict.
func New(classifier Classifier) *Enricher {
	return &Enricher{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		classifier: classifier,
	}
}

// ShouldFetchPage reports whether a page fetch is worth attempting.
func ShouldFetchPage(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range socialHostHints {
		if strings.Contains(host, h) {
			return false
		}
	}
	return true
}

// EnrichLead produces the full enrichment for one lead. scoreHint is the
// current lead score, used to gate model escalation.
func (e *Enricher) EnrichLead(ctx context.Context, rawURL, title, snippet string, scoreHint int) Enrichment {
	baseText := strings.TrimSpace(title + "\n" + snippet)

	var pageText string
	if ShouldFetchPage(rawURL) {
		text, err := e.FetchPageText(ctx, rawURL)
		if err != nil {
			zap.L().Debug("page fetch failed, classifying snippet only",
				zap.String("url", rawURL), zap.Error(err))
		} else {
			pageText = text
		}
	}

	combined := strings.TrimSpace(baseText + "\n" + pageText)

	out := Enrichment{
		PageText: pageText,
		Emails:   ExtractEmails(combined),
		Socials:  ExtractSocials(combined),
	}

	if e.classifier != nil {
		verdict, ok := e.classifier.ClassifyWithEscalation(ctx, combined, scoreHint)
		out.Verdict = verdict
		out.HasVerdict = ok
		for _, r := range verdict.Reasons {
			if r == "LLM" {
				out.Escalated = true
				break
			}
		}
	}

	return out
}

// FetchPageText downloads a page and reduces it to plaintext.
func (e *Enricher) FetchPageText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "enrich: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; LeadScoutBot/1.0)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "enrich: fetch page")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", eris.Errorf("enrich: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", eris.Wrap(err, "enrich: read body")
	}

	text, err := htmlToText(body)
	if err != nil {
		return "", err
	}
	if len(text) > maxPageText {
		text = text[:maxPageText]
	}
	return text, nil
}

// htmlToText strips scripts and styles, then collapses the document text
// to single-spaced plaintext.
func htmlToText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", eris.Wrap(err, "enrich: parse html")
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

// ExtractEmails returns up to maxEmails distinct lowercased addresses.
func ExtractEmails(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range emailPattern.FindAllString(text, -1) {
		lower := strings.ToLower(m)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, lower)
		if len(out) == maxEmails {
			break
		}
	}
	return out
}

// ExtractSocials pulls recognizable social profile URLs out of free text.
func ExtractSocials(text string) []model.SocialHandle {
	var out []model.SocialHandle
	seen := make(map[string]struct{})
	for _, u := range urlPattern.FindAllString(text, -1) {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}

		platform := socialPlatform(strings.ToLower(u))
		if platform == "" {
			continue
		}
		out = append(out, model.SocialHandle{Platform: platform, URL: u})
		if len(out) == maxSocials {
			break
		}
	}
	return out
}

func socialPlatform(lower string) string {
	switch {
	case strings.Contains(lower, "instagram.com"):
		return "INSTAGRAM"
	case strings.Contains(lower, "tiktok.com"):
		return "TIKTOK"
	case strings.Contains(lower, "youtube.com"), strings.Contains(lower, "youtu.be"):
		return "YOUTUBE"
	case strings.Contains(lower, "linkedin.com"):
		return "LINKEDIN"
	case strings.Contains(lower, "twitter.com"), strings.Contains(lower, "x.com"):
		return "X"
	default:
		return ""
	}
}
