package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seked/leadscout/internal/resilience"
)

func TestSerpAPI_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		assert.Equal(t, "google", r.URL.Query().Get("engine"))
		assert.Equal(t, "need an editor", r.URL.Query().Get("q"))
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "en", r.URL.Query().Get("hl"))
		assert.Equal(t, "us", r.URL.Query().Get("gl"))
		assert.Equal(t, "20", r.URL.Query().Get("num"))

		_, _ = w.Write([]byte(`{"organic_results":[
			{"title":"Post A","link":"https://a.example.com","snippet":"need an editor"},
			{"title":"No link result"},
			{"title":"Post B","link":"https://b.example.com","date":"2 days ago","source":"reddit"}
		]}`))
	}))
	defer srv.Close()

	p := NewSerpAPI("test-key", WithSerpBaseURL(srv.URL))
	results, err := p.Search(context.Background(), "need an editor", Options{})
	require.NoError(t, err)
	require.Len(t, results, 2, "results without links are dropped")
	assert.Equal(t, "https://a.example.com", results[0].Link)
	assert.Equal(t, "reddit", results[1].Source)
}

func TestSerpAPI_SearchOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "de", r.URL.Query().Get("hl"))
		assert.Equal(t, "at", r.URL.Query().Get("gl"))
		assert.Equal(t, "5", r.URL.Query().Get("num"))
		assert.Equal(t, "Vienna,Austria", r.URL.Query().Get("location"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := NewSerpAPI("k", WithSerpBaseURL(srv.URL))
	results, err := p.Search(context.Background(), "q", Options{HL: "de", GL: "at", Num: 5, Location: "Vienna,Austria"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSerpAPI_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	p := NewSerpAPI("k", WithSerpBaseURL(srv.URL))
	_, err := p.Search(context.Background(), "q", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestBing_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v7.0/search", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "en-GB", r.URL.Query().Get("mkt"))
		assert.Equal(t, "Day", r.URL.Query().Get("freshness"))
		assert.Equal(t, "10", r.URL.Query().Get("count"))

		_, _ = w.Write([]byte(`{"webPages":{"value":[
			{"name":"Post","url":"https://c.example.com","snippet":"s","dateLastCrawled":"2026-08-01T00:00:00Z"}
		]}}`))
	}))
	defer srv.Close()

	p := NewBing("secret",
		WithBingBaseURL(srv.URL+"/"),
		WithBingMarket("en-GB"),
		WithBingFreshness("Day"),
	)
	results, err := p.Search(context.Background(), "q", Options{Num: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Post", results[0].Title)
	assert.Equal(t, "https://c.example.com", results[0].Link)
	assert.Equal(t, "2026-08-01T00:00:00Z", results[0].Date)
}

type fakeProvider struct {
	name    string
	results []Result
	err     error
	// failFirst makes the first N calls fail with a transient error.
	failFirst int
	calls     int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(_ context.Context, _ string, _ Options) ([]Result, error) {
	f.calls++
	if f.calls <= f.failFirst {
		return nil, resilience.NewTransientError(errors.New("rate limited"), 429)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestUnified_PrimarySucceeds(t *testing.T) {
	primary := &fakeProvider{name: "serpapi", results: []Result{{Link: "https://a"}}}
	fallback := &fakeProvider{name: "bing"}
	u := NewUnified(primary, fallback, nil)

	results, err := u.Search(context.Background(), "q", Options{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Zero(t, fallback.calls)
}

func TestUnified_FallsBack(t *testing.T) {
	primary := &fakeProvider{name: "serpapi", err: assert.AnError}
	fallback := &fakeProvider{name: "bing", results: []Result{{Link: "https://b"}}}
	u := NewUnified(primary, fallback, nil)

	results, err := u.Search(context.Background(), "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://b", results[0].Link)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestUnified_NoFallback(t *testing.T) {
	primary := &fakeProvider{name: "serpapi", err: assert.AnError}
	u := NewUnified(primary, nil, nil)

	_, err := u.Search(context.Background(), "q", Options{})
	assert.Error(t, err)
}

func TestUnified_RetriesTransientBeforeFallback(t *testing.T) {
	primary := &fakeProvider{name: "serpapi", failFirst: 1, results: []Result{{Link: "https://a"}}}
	fallback := &fakeProvider{name: "bing"}
	u := NewUnified(primary, fallback, nil)
	u.retry.InitialBackoff = time.Millisecond

	results, err := u.Search(context.Background(), "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, "https://a", results[0].Link)
	assert.Equal(t, 2, primary.calls)
	assert.Zero(t, fallback.calls)
}

func TestUnified_SameProviderNotRetried(t *testing.T) {
	primary := &fakeProvider{name: "serpapi", err: assert.AnError}
	fallback := &fakeProvider{name: "serpapi"}
	u := NewUnified(primary, fallback, nil)

	_, err := u.Search(context.Background(), "q", Options{})
	assert.Error(t, err)
	assert.Zero(t, fallback.calls)
}
