package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/seked/leadscout/internal/resilience"
)

const (
	serpDefaultBaseURL = "https://serpapi.com"
	serpDefaultHL      = "en"
	serpDefaultGL      = "us"
	serpDefaultNum     = 20
)

// SerpAPI searches Google through serpapi.com.
type SerpAPI struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// SerpOption configures the SerpAPI provider.
type SerpOption func(*SerpAPI)

// WithSerpBaseURL overrides the API base URL.
func WithSerpBaseURL(u string) SerpOption {
	return func(s *SerpAPI) { s.baseURL = u }
}

// WithSerpHTTPClient overrides the default http.Client.
func WithSerpHTTPClient(hc *http.Client) SerpOption {
	return func(s *SerpAPI) { s.http = hc }
}

// NewSerpAPI creates a SerpAPI provider.
func NewSerpAPI(apiKey string, opts ...SerpOption) *SerpAPI {
	s := &SerpAPI{
		apiKey:  apiKey,
		baseURL: serpDefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SerpAPI) Name() string { return "serpapi" }

type serpOrganicResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
	Source  string `json:"source"`
}

type serpResponse struct {
	OrganicResults []serpOrganicResult `json:"organic_results"`
}

// Search runs one Google query and returns the organic results.
func (s *SerpAPI) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("api_key", s.apiKey)
	q.Set("hl", defaultString(opts.HL, serpDefaultHL))
	q.Set("gl", defaultString(opts.GL, serpDefaultGL))
	q.Set("num", strconv.Itoa(defaultInt(opts.Num, serpDefaultNum)))
	if opts.Location != "" {
		q.Set("location", opts.Location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: create request")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: search")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: read body")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("serpapi: status %d: %s", resp.StatusCode, truncate(string(body), 500))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var parsed serpResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "serpapi: decode response")
	}

	results := make([]Result, 0, len(parsed.OrganicResults))
	for _, r := range parsed.OrganicResults {
		if r.Link == "" {
			continue
		}
		results = append(results, Result{
			Title:   r.Title,
			Link:    r.Link,
			Snippet: r.Snippet,
			Date:    r.Date,
			Source:  r.Source,
		})
	}
	return results, nil
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
