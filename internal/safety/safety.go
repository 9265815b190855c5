// Package safety applies programmatic rejection checks to raw leads
// before they enter scoring. Everything here is cheap string matching;
// nothing makes a network call.
package safety

import (
	"net/url"
	"regexp"
	"strings"
)

// Rejection reason codes.
const (
	ReasonJobBoard       = "JOB_BOARD"
	ReasonJobText        = "JOB_TEXT"
	ReasonInformational  = "INFORMATIONAL"
	ReasonSellerPlatform = "SELLER_PLATFORM"
	ReasonSellerIntent   = "SELLER_INTENT"
	ReasonRoleMismatch   = "ROLE_MISMATCH"
)

// Rejection is the outcome of a safety check. Reason is empty when the
// lead passed.
type Rejection struct {
	Rejected bool
	Reason   string
}

// jobHosts are recruiting sites whose listings are employers posting
// roles, not prospects asking for help.
var jobHosts = map[string]struct{}{
	"linkedin.com":          {},
	"www.linkedin.com":      {},
	"ziprecruiter.com":      {},
	"www.ziprecruiter.com":  {},
	"monster.com":           {},
	"www.monster.com":       {},
	"careerbuilder.com":     {},
	"www.careerbuilder.com": {},
	"simplyhired.com":       {},
	"www.simplyhired.com":   {},
	"jobrapido.com":         {},
	"www.jobrapido.com":     {},
	"jooble.org":            {},
	"www.jooble.org":        {},
	"indeed.com":            {},
	"www.indeed.com":        {},
	"glassdoor.com":         {},
	"www.glassdoor.com":     {},
	"greenhouse.io":         {},
	"boards.greenhouse.io":  {},
	"lever.co":              {},
	"jobs.lever.co":         {},
	"workable.com":          {},
	"jobs.workable.com":     {},
	"ashbyhq.com":           {},
	"jobs.ashbyhq.com":      {},
}

var jobTextHints = []string{
	"apply now",
	"job description",
	"full-time",
	"part-time",
	"salary",
	"compensation",
	"requirements",
	"responsibilities",
	"equal opportunity employer",
}

var infoIntentHints = []string{
	"how to find",
	"how to hire",
	"guide to hiring",
	"tips for hiring",
	"where to find",
	"best way to hire",
	"when to hire",
	"what to look for",
	"how much does it cost",
	"pricing guide",
}

var infoHosts = map[string]struct{}{
	"youtube.com":     {},
	"www.youtube.com": {},
}

var buyerIntentHints = []string{
	"looking for",
	"need an editor",
	"need editor",
	"need a video editor",
	"editor needed",
	"hiring",
	"hire",
	"seeking",
	"anyone recommend",
	"recommend an editor",
	"can someone edit",
	"need someone to edit",
	"looking to outsource",
	"outsourcing",
	"budget",
}

var editingRoleHints = []string{
	"editor",
	"video editor",
	"shorts editor",
	"reels editor",
	"tiktok editor",
	"podcast editor",
	"post production",
	"capcut",
	"premiere",
	"after effects",
}

var nonEditingRoleHints = []string{
	"affiliate",
	"growth specialist",
	"media buyer",
	"ads manager",
	"appointment setter",
	"setter",
	"closer",
	"virtual assistant",
	"va",
	"social media manager",
	"smm",
	"community manager",
	"brand ambassador",
	"ugc creator",
	"content creator",
	"thumbnail designer",
	"scriptwriter",
	"copywriter",
}

var sellerIntentHints = []string{
	"for hire",
	"available for work",
	"available for hire",
	"open for work",
	"my services",
	"i offer",
	"i can edit",
	"dm me",
	"message me",
	"contact me",
	"portfolio",
	"showreel",
	"reel available",
	"rates start",
	"starting at $",
	"book a call",
}

// sellerHosts are freelancer showcase platforms; anything surfaced there
// is supply, not demand.
var sellerHosts = map[string]struct{}{
	"behance.net":      {},
	"www.behance.net":  {},
	"dribbble.com":     {},
	"www.dribbble.com": {},
	"upwork.com":       {},
	"www.upwork.com":   {},
	"fiverr.com":       {},
	"www.fiverr.com":   {},
}

// hiringPattern matches hiring-flavored phrasing on word boundaries.
var hiringPattern = regexp.MustCompile(`\bhiring\b|\bhire\b|\blooking for\b|\bseeking\b`)

// RejectLead decides whether a raw lead should be dropped before scoring.
// Checks run in order of cost and specificity: host blocklists first,
// then text hints. An unparseable URL is not a rejection here; URL
// validity is canonicalization's concern.
func RejectLead(rawURL, title, snippet string) Rejection {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Rejection{}
	}

	host := strings.ToLower(u.Hostname())

	if _, ok := jobHosts[host]; ok {
		return Rejection{Rejected: true, Reason: ReasonJobBoard}
	}

	text := strings.ToLower(title + "\n" + snippet)
	if containsAny(text, jobTextHints) {
		return Rejection{Rejected: true, Reason: ReasonJobText}
	}

	buyer := containsAny(text, buyerIntentHints)
	editingRole := containsAny(text, editingRoleHints)
	informational := containsAny(text, infoIntentHints)

	_, infoHost := infoHosts[host]
	if (infoHost || informational) && !(buyer && editingRole) {
		return Rejection{Rejected: true, Reason: ReasonInformational}
	}

	if _, ok := sellerHosts[host]; ok {
		return Rejection{Rejected: true, Reason: ReasonSellerPlatform}
	}

	if containsAny(text, sellerIntentHints) && !buyer {
		return Rejection{Rejected: true, Reason: ReasonSellerIntent}
	}

	if hiringPattern.MatchString(text) && containsAny(text, nonEditingRoleHints) && !editingRole {
		return Rejection{Rejected: true, Reason: ReasonRoleMismatch}
	}

	return Rejection{}
}

func containsAny(raw string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(raw, h) {
			return true
		}
	}
	return false
}
