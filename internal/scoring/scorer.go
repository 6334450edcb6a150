// Package scoring computes explainable relevance scores for content items.
// Scoring is pure: a score is fully determined by the content document and
// the user's preferences plus activity-derived interests, so concurrent
// calls need no locking and results are reproducible.
package scoring

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/skillhive/relevance/internal/keywords"
	"github.com/skillhive/relevance/internal/profile"
)

// Score weights per matching term, one constant per tier. The tiers are
// additive and every applicable tier fires; a term credited by a higher
// tier is excluded from the lower ones.
const (
	// PreferenceWeight credits terms the user explicitly declared.
	PreferenceWeight = 10
	// ActivityWeight credits terms learned from recent interactions.
	ActivityWeight = 5
	// TopicalWeight is the generic baseline per detected keyword; it is
	// the only tier that fires for a user with no preferences or history.
	TopicalWeight = 1
)

// Document is the unified scoring view of a content item (post or company).
type Document struct {
	ID          string
	Kind        profile.TargetType
	Name        string // company name; matched against company preferences
	AuthorID    string
	Keywords    keywords.Keywords
	PublishedAt time.Time
}

// MatchReason is one scored contribution. The full ordered list is exposed
// verbatim to the debugging surface; Points always sum to the total score.
type MatchReason struct {
	Reason string `json:"reason"`
	Points int    `json:"points"`
}

// Result is the ephemeral outcome of scoring one document for one user.
type Result struct {
	Score   int           `json:"score"`
	Reasons []MatchReason `json:"match_reasons"`
}

// Score ranks doc against the user's declared preferences and the interest
// set derived from recent activity. It never fails: empty inputs yield a
// zero score with no reasons.
func Score(doc Document, prefs profile.Preferences, interests InterestSet) Result {
	var res Result
	credited := make(map[string]struct{})

	// Tier 1: explicit preference matches, highest weight.
	docTerms := documentTerms(doc)
	addPreferenceMatches(&res, credited, docTerms, prefs.Skills, "declared skill")
	addPreferenceMatches(&res, credited, docTerms, prefs.Industries, "declared industry")
	addCompanyMatches(&res, credited, doc, prefs.Companies)

	// Tier 2: interests learned from recent activity. Terms already
	// credited as explicit preferences are skipped to avoid double credit.
	var learned []string
	for term := range interests {
		if _, ok := docTerms[term]; !ok {
			continue
		}
		if _, ok := credited[term]; ok {
			continue
		}
		learned = append(learned, docTerms[term])
		credited[term] = struct{}{}
	}
	sort.Strings(learned)
	for _, term := range learned {
		addReason(&res, fmt.Sprintf("learned from activity: %s", term), ActivityWeight)
	}

	// Tier 3: generic topical baseline for every still-uncredited keyword.
	var topical []string
	for key, canonical := range docTerms {
		if _, ok := credited[key]; ok {
			continue
		}
		topical = append(topical, canonical)
	}
	sort.Strings(topical)
	for _, term := range topical {
		addReason(&res, fmt.Sprintf("topical: %s", term), TopicalWeight)
	}

	return res
}

func addPreferenceMatches(res *Result, credited map[string]struct{}, docTerms map[string]string, prefTerms []string, label string) {
	var matched []string
	for _, pref := range prefTerms {
		key := strings.ToLower(strings.TrimSpace(pref))
		if key == "" {
			continue
		}
		canonical, ok := docTerms[key]
		if !ok {
			continue
		}
		if _, done := credited[key]; done {
			continue
		}
		credited[key] = struct{}{}
		matched = append(matched, canonical)
	}
	sort.Strings(matched)
	for _, term := range matched {
		addReason(res, fmt.Sprintf("%s: %s", label, term), PreferenceWeight)
	}
}

// addCompanyMatches credits followed companies against both the document's
// detected organizations and, for company documents, the company's own name.
func addCompanyMatches(res *Result, credited map[string]struct{}, doc Document, prefCompanies []string) {
	docName := strings.ToLower(strings.TrimSpace(doc.Name))

	detected := make(map[string]string, len(doc.Keywords.Companies))
	for _, c := range doc.Keywords.Companies {
		detected[strings.ToLower(c)] = c
	}

	var matched []string
	for _, pref := range prefCompanies {
		key := strings.ToLower(strings.TrimSpace(pref))
		if key == "" {
			continue
		}
		if _, done := credited[key]; done {
			continue
		}
		canonical, ok := detected[key]
		if !ok && docName != "" && key == docName {
			canonical = doc.Name
			ok = true
		}
		if !ok {
			continue
		}
		credited[key] = struct{}{}
		matched = append(matched, canonical)
	}
	sort.Strings(matched)
	for _, term := range matched {
		addReason(res, fmt.Sprintf("followed company: %s", term), PreferenceWeight)
	}
}

func addReason(res *Result, reason string, points int) {
	res.Reasons = append(res.Reasons, MatchReason{Reason: reason, Points: points})
	res.Score += points
}

// documentTerms flattens a document's keyword sets into a lowercase lookup
// of term → canonical spelling.
func documentTerms(doc Document) map[string]string {
	out := make(map[string]string)
	for _, group := range [][]string{doc.Keywords.Skills, doc.Keywords.Industries, doc.Keywords.Companies} {
		for _, term := range group {
			out[strings.ToLower(term)] = term
		}
	}
	return out
}
