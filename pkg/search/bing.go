package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/seked/leadscout/internal/resilience"
)

const (
	bingDefaultBaseURL   = "https://api.bing.microsoft.com"
	bingDefaultMarket    = "en-US"
	bingDefaultFreshness = "Week"
	bingDefaultCount     = 20
)

// Bing searches the Bing Web Search v7 API.
type Bing struct {
	apiKey    string
	baseURL   string
	market    string
	freshness string
	http      *http.Client
}

// BingOption configures the Bing provider.
type BingOption func(*Bing)

// WithBingBaseURL overrides the API endpoint.
func WithBingBaseURL(u string) BingOption {
	return func(b *Bing) { b.baseURL = strings.TrimRight(u, "/") }
}

// WithBingMarket sets the mkt parameter.
func WithBingMarket(market string) BingOption {
	return func(b *Bing) { b.market = market }
}

// WithBingFreshness sets the freshness window (Day, Week, Month, Year).
func WithBingFreshness(freshness string) BingOption {
	return func(b *Bing) { b.freshness = freshness }
}

// WithBingHTTPClient overrides the default http.Client.
func WithBingHTTPClient(hc *http.Client) BingOption {
	return func(b *Bing) { b.http = hc }
}

// NewBing creates a Bing provider.
func NewBing(apiKey string, opts ...BingOption) *Bing {
	b := &Bing{
		apiKey:    apiKey,
		baseURL:   bingDefaultBaseURL,
		market:    bingDefaultMarket,
		freshness: bingDefaultFreshness,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bing) Name() string { return "bing" }

type bingWebResult struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	Snippet         string `json:"snippet"`
	DateLastCrawled string `json:"dateLastCrawled"`
}

type bingResponse struct {
	WebPages struct {
		Value []bingWebResult `json:"value"`
	} `json:"webPages"`
}

// Search runs one Bing query and normalizes the web page hits.
func (b *Bing) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("mkt", b.market)
	q.Set("freshness", b.freshness)
	q.Set("count", strconv.Itoa(defaultInt(opts.Num, bingDefaultCount)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/v7.0/search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "bing: create request")
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", b.apiKey)

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "bing: search")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, eris.Wrap(err, "bing: read body")
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("bing: status %d: %s", resp.StatusCode, truncate(string(body), 500))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var parsed bingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "bing: decode response")
	}

	results := make([]Result, 0, len(parsed.WebPages.Value))
	for _, r := range parsed.WebPages.Value {
		if r.URL == "" {
			continue
		}
		results = append(results, Result{
			Title:   r.Name,
			Link:    r.URL,
			Snippet: r.Snippet,
			Date:    r.DateLastCrawled,
		})
	}
	return results, nil
}
