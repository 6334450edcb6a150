// Package feed ranks candidate content for a user by relevance score.
// Candidate sets are bounded by the caller's query window and every
// candidate is scored in full. There is no persistent index; ordering is
// recomputed per request.
package feed

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/skillhive/relevance/internal/keywords"
	"github.com/skillhive/relevance/internal/profile"
	"github.com/skillhive/relevance/internal/scoring"
	"github.com/skillhive/relevance/internal/storage"
)

// DefaultCandidateWindow bounds how many recent items one ranking request
// evaluates.
const DefaultCandidateWindow = 100

// Store is the slice of the persistence layer the ranker reads.
// Implemented by storage.Store.
type Store interface {
	GetPost(id string) (storage.Post, error)
	GetCompany(id string) (storage.Company, error)
	ListRecentPosts(limit int) ([]storage.Post, error)
	ListCompanies(limit int) ([]storage.Company, error)
}

// ProfileSource loads profiles and their recent activity.
// Implemented by profile.Service.
type ProfileSource interface {
	Get(id string) (profile.Profile, error)
	RecentInteractions(profileID string, withinDays int) ([]profile.Interaction, error)
}

// Options controls pagination and eligibility for one ranking call.
type Options struct {
	Limit  int
	Offset int
	// ExcludeOwn drops content authored by the requesting user, used when
	// ranking a personalized feed rather than a self-view.
	ExcludeOwn bool
}

// RankedPost is a feed candidate annotated with its score breakdown.
type RankedPost struct {
	Post   storage.Post
	Result scoring.Result
}

// RankedCompany is a company listing entry annotated with its score breakdown.
type RankedCompany struct {
	Company storage.Company
	Result  scoring.Result
}

// Ranker orchestrates the scoring engine over candidate sets.
type Ranker struct {
	store      Store
	profiles   ProfileSource
	interests  *scoring.InterestBuilder
	window     int
	recentDays int
}

// NewRanker creates a Ranker. window caps the candidate set per request
// (DefaultCandidateWindow if <= 0). Interest building looks back
// profile.DefaultRecentDays; SetRecentDays overrides it.
func NewRanker(store Store, profiles ProfileSource, window int) *Ranker {
	if window <= 0 {
		window = DefaultCandidateWindow
	}
	return &Ranker{
		store:      store,
		profiles:   profiles,
		interests:  scoring.NewInterestBuilder(&keywordResolver{store: store}),
		window:     window,
		recentDays: profile.DefaultRecentDays,
	}
}

// SetRecentDays changes the activity lookback window for interest building.
// Values <= 0 keep the default.
func (r *Ranker) SetRecentDays(days int) {
	if days > 0 {
		r.recentDays = days
	}
}

// PersonalizedFeed returns the user's ranked post feed. If the profile or
// its activity cannot be loaded, the feed degrades to recency ordering with
// zero scores instead of failing. The returned bool reports whether
// personalization applied.
func (r *Ranker) PersonalizedFeed(profileID string, opts Options) ([]RankedPost, bool, error) {
	posts, err := r.store.ListRecentPosts(r.window)
	if err != nil {
		return nil, false, fmt.Errorf("listing candidate posts: %w", err)
	}

	prefs, interests, personalized := r.loadUserSignals(profileID)

	scored := make([]RankedPost, 0, len(posts))
	for _, p := range posts {
		if opts.ExcludeOwn && p.AuthorID == profileID {
			continue
		}
		doc := postDocument(p)
		var res scoring.Result
		if personalized {
			res = scoring.Score(doc, prefs, interests)
		}
		scored = append(scored, RankedPost{Post: p, Result: res})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Result.Score != scored[j].Result.Score {
			return scored[i].Result.Score > scored[j].Result.Score
		}
		// Equal scores: most recent first.
		return scored[i].Post.CreatedAt.After(scored[j].Post.CreatedAt)
	})

	return paginate(scored, opts.Offset, opts.Limit), personalized, nil
}

// RankedCompanies returns the company listing ordered for the user, with
// the same degradation contract as PersonalizedFeed.
func (r *Ranker) RankedCompanies(profileID string, opts Options) ([]RankedCompany, bool, error) {
	companies, err := r.store.ListCompanies(r.window)
	if err != nil {
		return nil, false, fmt.Errorf("listing companies: %w", err)
	}

	prefs, interests, personalized := r.loadUserSignals(profileID)

	scored := make([]RankedCompany, 0, len(companies))
	for _, c := range companies {
		var res scoring.Result
		if personalized {
			res = scoring.Score(companyDocument(c), prefs, interests)
		}
		scored = append(scored, RankedCompany{Company: c, Result: res})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Result.Score != scored[j].Result.Score {
			return scored[i].Result.Score > scored[j].Result.Score
		}
		return scored[i].Company.CreatedAt.After(scored[j].Company.CreatedAt)
	})

	return paginate(scored, opts.Offset, opts.Limit), personalized, nil
}

// Explain scores a single target for a user and returns the full breakdown
// verbatim. This is the debugging surface's contract: no aggregation, every
// reason with its points.
func (r *Ranker) Explain(profileID string, targetType profile.TargetType, targetID string) (scoring.Result, error) {
	var doc scoring.Document
	switch targetType {
	case profile.TargetPost:
		p, err := r.store.GetPost(targetID)
		if err != nil {
			return scoring.Result{}, err
		}
		doc = postDocument(p)
	case profile.TargetCompany:
		c, err := r.store.GetCompany(targetID)
		if err != nil {
			return scoring.Result{}, err
		}
		doc = companyDocument(c)
	default:
		return scoring.Result{}, fmt.Errorf("unsupported target type %q", targetType)
	}

	p, err := r.profiles.Get(profileID)
	if err != nil {
		return scoring.Result{}, err
	}
	recent, err := r.profiles.RecentInteractions(profileID, r.recentDays)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("loading recent interactions: %w", err)
	}
	return scoring.Score(doc, p.Preferences, r.interests.Build(recent)), nil
}

// loadUserSignals loads preferences and the activity-derived interest set.
// Any failure degrades to unpersonalized ranking.
func (r *Ranker) loadUserSignals(profileID string) (profile.Preferences, scoring.InterestSet, bool) {
	p, err := r.profiles.Get(profileID)
	if err != nil {
		slog.Warn("feed: profile unavailable, falling back to recency order",
			"profile_id", profileID, "error", err)
		return profile.Preferences{}, nil, false
	}

	recent, err := r.profiles.RecentInteractions(profileID, r.recentDays)
	if err != nil {
		slog.Warn("feed: interaction history unavailable, scoring on preferences only",
			"profile_id", profileID, "error", err)
		recent = nil
	}

	return p.Preferences, r.interests.Build(recent), true
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func postDocument(p storage.Post) scoring.Document {
	kw, err := keywords.FromJSON(p.KeywordsJSON)
	if err != nil {
		slog.Warn("feed: malformed post keyword snapshot, scoring without it",
			"post_id", p.ID, "error", err)
		kw = keywords.Keywords{}
	}
	return scoring.Document{
		ID:          p.ID,
		Kind:        profile.TargetPost,
		AuthorID:    p.AuthorID,
		Keywords:    kw,
		PublishedAt: p.CreatedAt,
	}
}

func companyDocument(c storage.Company) scoring.Document {
	kw, err := keywords.FromJSON(c.KeywordsJSON)
	if err != nil {
		slog.Warn("feed: malformed company keyword snapshot, scoring without it",
			"company_id", c.ID, "error", err)
		kw = keywords.Keywords{}
	}
	return scoring.Document{
		ID:          c.ID,
		Kind:        profile.TargetCompany,
		Name:        c.Name,
		Keywords:    kw,
		PublishedAt: c.CreatedAt,
	}
}

// keywordResolver resolves interacted targets to their persisted keyword
// snapshots for interest building.
type keywordResolver struct {
	store Store
}

func (r *keywordResolver) ResolveKeywords(targetType profile.TargetType, targetID string) (keywords.Keywords, error) {
	switch targetType {
	case profile.TargetPost:
		p, err := r.store.GetPost(targetID)
		if err != nil {
			return keywords.Keywords{}, err
		}
		return keywords.FromJSON(p.KeywordsJSON)
	case profile.TargetCompany:
		c, err := r.store.GetCompany(targetID)
		if err != nil {
			return keywords.Keywords{}, err
		}
		return keywords.FromJSON(c.KeywordsJSON)
	default:
		return keywords.Keywords{}, fmt.Errorf("no keyword snapshot for target type %q", targetType)
	}
}
