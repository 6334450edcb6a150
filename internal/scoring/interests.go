package scoring

import (
	"log/slog"
	"strings"

	"github.com/skillhive/relevance/internal/keywords"
	"github.com/skillhive/relevance/internal/profile"
)

// InterestSet is a transient set of lowercase terms derived from a user's
// recent activity. It is rebuilt per request, never persisted.
type InterestSet map[string]struct{}

// TargetResolver looks up the persisted keyword snapshot for an interacted
// target. Implemented over the storage layer by the feed package.
type TargetResolver interface {
	ResolveKeywords(targetType profile.TargetType, targetID string) (keywords.Keywords, error)
}

// InterestBuilder derives interest sets from interaction histories.
type InterestBuilder struct {
	resolver TargetResolver
}

func NewInterestBuilder(resolver TargetResolver) *InterestBuilder {
	return &InterestBuilder{resolver: resolver}
}

// Build unions the detected keywords of every interacted target into one
// interest set. Targets that cannot be resolved (deleted content, profile
// targets with no keyword snapshot) are skipped rather than failing the
// build, so the result may be a partial set.
func (b *InterestBuilder) Build(interactions []profile.Interaction) InterestSet {
	set := make(InterestSet)
	for _, i := range interactions {
		if i.TargetType != profile.TargetPost && i.TargetType != profile.TargetCompany {
			continue
		}
		kw, err := b.resolver.ResolveKeywords(i.TargetType, i.TargetID)
		if err != nil {
			slog.Debug("interest build: skipping unresolvable target",
				"target_type", i.TargetType, "target_id", i.TargetID, "error", err)
			continue
		}
		set.addAll(kw.Skills)
		set.addAll(kw.Industries)
		set.addAll(kw.Companies)
	}
	return set
}

func (s InterestSet) addAll(terms []string) {
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		s[t] = struct{}{}
	}
}
