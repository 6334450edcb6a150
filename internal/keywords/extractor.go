package keywords

import (
	"sort"
	"strings"
	"unicode"
)

// Keywords holds the detected keyword sets for one piece of content.
// Entries carry the dictionary's canonical spelling, sorted, deduplicated.
type Keywords struct {
	Skills     []string `json:"skills"`
	Industries []string `json:"industries"`
	Companies  []string `json:"companies"`
}

// IsEmpty reports whether no keywords were detected.
func (k Keywords) IsEmpty() bool {
	return len(k.Skills) == 0 && len(k.Industries) == 0 && len(k.Companies) == 0
}

type entry struct {
	normalized string // phrase as it appears in normalized text
	canonical  string // spelling reported in results
}

// Extractor matches free text against fixed reference vocabularies.
// It is pure: extraction consults no external state, has no side effects,
// and the same text always yields the same sets.
type Extractor struct {
	skills     []entry
	industries []entry
	companies  []entry
}

// NewExtractor builds an Extractor from the given vocabularies.
// Empty or whitespace-only dictionary entries are dropped.
func NewExtractor(dict Dictionary) *Extractor {
	return &Extractor{
		skills:     buildEntries(dict.Skills),
		industries: buildEntries(dict.Industries),
		companies:  buildEntries(dict.Organizations),
	}
}

func buildEntries(terms []string) []entry {
	out := make([]entry, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		canonical := strings.TrimSpace(t)
		normalized := Normalize(canonical)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, entry{normalized: normalized, canonical: canonical})
	}
	return out
}

// Extract returns the skill, industry, and organization keywords detected in
// text. Empty input yields empty sets, never an error. Matching is
// case-insensitive and phrase-based: a dictionary entry matches only on
// whole-token boundaries, so "Java" does not fire inside "JavaScript".
func (e *Extractor) Extract(text string) Keywords {
	normalized := Normalize(text)
	if normalized == "" {
		return Keywords{}
	}
	padded := " " + normalized + " "
	return Keywords{
		Skills:     matchEntries(padded, e.skills),
		Industries: matchEntries(padded, e.industries),
		Companies:  matchEntries(padded, e.companies),
	}
}

// ExtractAll extracts from each field independently and unions the results
// into one deduplicated set per vocabulary. This is the merge point for
// multi-field entities such as a company with a description and many reviews.
func (e *Extractor) ExtractAll(fields ...string) Keywords {
	sets := make([]Keywords, 0, len(fields))
	for _, f := range fields {
		sets = append(sets, e.Extract(f))
	}
	return Union(sets...)
}

func matchEntries(padded string, entries []entry) []string {
	var found []string
	for _, en := range entries {
		if strings.Contains(padded, " "+en.normalized+" ") {
			found = append(found, en.canonical)
		}
	}
	sort.Strings(found)
	return found
}

// Union merges keyword sets with set semantics (membership only, no counts).
func Union(sets ...Keywords) Keywords {
	var out Keywords
	out.Skills = unionTerms(sets, func(k Keywords) []string { return k.Skills })
	out.Industries = unionTerms(sets, func(k Keywords) []string { return k.Industries })
	out.Companies = unionTerms(sets, func(k Keywords) []string { return k.Companies })
	return out
}

func unionTerms(sets []Keywords, pick func(Keywords) []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range sets {
		for _, t := range pick(s) {
			key := strings.ToLower(t)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// Normalize lowercases text and collapses punctuation to single spaces.
// The characters + # . survive inside tokens so "C++", "C#" and "Node.js"
// keep their spelling; trailing dots are trimmed so sentence punctuation
// does not change a token.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	var word strings.Builder
	flush := func() {
		w := strings.TrimRight(word.String(), ".")
		word.Reset()
		if w == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' || r == '.' {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return b.String()
}
