package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_TwitterStatus(t *testing.T) {
	res := Canonicalize("https://twitter.com/alice/status/12345?s=20")
	assert.False(t, res.Rejected)
	assert.Equal(t, "https://x.com/alice/status/12345", res.CanonicalURL)
}

func TestCanonicalize_XHostKept(t *testing.T) {
	res := Canonicalize("https://x.com/bob/status/999?t=abc")
	assert.False(t, res.Rejected)
	assert.Equal(t, "https://x.com/bob/status/999", res.CanonicalURL)
}

func TestCanonicalize_RedditThread(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full permalink", "https://www.reddit.com/r/videography/comments/abc123/need_an_editor/", "https://reddit.com/comments/abc123"},
		{"short permalink", "https://old.reddit.com/comments/xyz9", "https://reddit.com/comments/xyz9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Canonicalize(tt.in)
			assert.False(t, res.Rejected)
			assert.Equal(t, tt.want, res.CanonicalURL)
		})
	}
}

func TestCanonicalize_LinkedInDropsQuery(t *testing.T) {
	res := Canonicalize("https://www.linkedin.com/posts/someone_activity-123?utm_source=share&trk=public")
	assert.False(t, res.Rejected)
	assert.Equal(t, "https://www.linkedin.com/posts/someone_activity-123", res.CanonicalURL)
}

func TestCanonicalize_MarketplaceRejected(t *testing.T) {
	res := Canonicalize("https://www.upwork.com/freelance-jobs/apply/video-editor_~123/?referrer=home")
	assert.True(t, res.Rejected)
	assert.Equal(t, ReasonJobBoard, res.RejectedReason)
	assert.Equal(t, "https://www.upwork.com/freelance-jobs/apply/video-editor_~123/", res.CanonicalURL)
	assert.NotEmpty(t, res.CanonicalHash)
}

func TestCanonicalize_InvalidURL(t *testing.T) {
	res := Canonicalize("not a url at all")
	require.True(t, res.Rejected)
	assert.Equal(t, ReasonInvalidURL, res.RejectedReason)
	assert.Equal(t, "not a url at all", res.CanonicalURL)

	// Repeated invalid inputs still dedup against each other.
	again := Canonicalize("not a url at all")
	assert.Equal(t, res.CanonicalHash, again.CanonicalHash)
}

func TestCanonicalize_StripsTrackingParams(t *testing.T) {
	res := Canonicalize("https://example.com/post?utm_source=x&utm_campaign=y&fbclid=z&id=7")
	assert.False(t, res.Rejected)
	assert.Equal(t, "https://example.com/post?id=7", res.CanonicalURL)
}

func TestCanonicalize_DefaultDropsFragment(t *testing.T) {
	res := Canonicalize("https://example.com/page?q=1#section")
	assert.Equal(t, "https://example.com/page?q=1", res.CanonicalURL)
}

func TestCanonicalize_Idempotent(t *testing.T) {
	inputs := []string{
		"https://twitter.com/alice/status/12345?s=20",
		"https://www.reddit.com/r/editors/comments/abc123/help/",
		"https://www.linkedin.com/posts/x?trk=feed",
		"https://example.com/a/b?utm_source=mail&keep=1#frag",
	}
	for _, in := range inputs {
		first := Canonicalize(in)
		second := Canonicalize(first.CanonicalURL)
		assert.Equal(t, first.CanonicalURL, second.CanonicalURL, "input %q", in)
		assert.Equal(t, first.CanonicalHash, second.CanonicalHash, "input %q", in)
	}
}

func TestCanonicalize_HashDeterminism(t *testing.T) {
	a := Canonicalize("https://example.com/one")
	b := Canonicalize("https://example.com/one")
	c := Canonicalize("https://example.com/two")
	assert.Equal(t, a.CanonicalHash, b.CanonicalHash)
	assert.NotEqual(t, a.CanonicalHash, c.CanonicalHash)
	assert.Len(t, a.CanonicalHash, 64)
}
