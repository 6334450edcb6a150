package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/skillhive/relevance/internal/keywords"
	"github.com/skillhive/relevance/internal/profile"
	"github.com/skillhive/relevance/internal/scoring"
	"github.com/skillhive/relevance/internal/storage"
)

type fakeStore struct {
	posts     map[string]storage.Post
	companies map[string]storage.Company
	listErr   error
}

func (f *fakeStore) GetPost(id string) (storage.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return storage.Post{}, storage.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) GetCompany(id string) (storage.Company, error) {
	c, ok := f.companies[id]
	if !ok {
		return storage.Company{}, storage.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) ListRecentPosts(limit int) ([]storage.Post, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []storage.Post
	for _, p := range f.posts {
		out = append(out, p)
	}
	// Newest first, matching the storage query contract.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListCompanies(limit int) ([]storage.Company, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []storage.Company
	for _, c := range f.companies {
		out = append(out, c)
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type fakeProfiles struct {
	profiles       map[string]profile.Profile
	interactions   map[string][]profile.Interaction
	historyErr     error
	lastWithinDays int
}

func (f *fakeProfiles) Get(id string) (profile.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return profile.Profile{}, storage.ErrNotFound
	}
	return p, nil
}

func (f *fakeProfiles) RecentInteractions(profileID string, withinDays int) ([]profile.Interaction, error) {
	f.lastWithinDays = withinDays
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.interactions[profileID], nil
}

func mustKeywordsJSON(t *testing.T, k keywords.Keywords) string {
	t.Helper()
	s, err := keywords.ToJSON(k)
	if err != nil {
		t.Fatalf("encoding keywords: %v", err)
	}
	return s
}

func testPost(t *testing.T, id, author string, age time.Duration, k keywords.Keywords) storage.Post {
	t.Helper()
	return storage.Post{
		ID:           id,
		AuthorID:     author,
		Title:        id,
		KeywordsJSON: mustKeywordsJSON(t, k),
		CreatedAt:    time.Now().Add(-age),
	}
}

func TestPersonalizedFeedOrdersByScoreThenRecency(t *testing.T) {
	store := &fakeStore{posts: map[string]storage.Post{
		// Matches a declared skill: highest score.
		"match": testPost(t, "match", "author-1", 3*time.Hour, keywords.Keywords{Skills: []string{"Go"}}),
		// Keyword-bearing but no user signal: topical baseline only.
		"topical": testPost(t, "topical", "author-2", 2*time.Hour, keywords.Keywords{Skills: []string{"Rust"}}),
		// No keywords at all, but newest.
		"fresh": testPost(t, "fresh", "author-3", 1*time.Hour, keywords.Keywords{}),
		// Same zero score as fresh, older.
		"stale": testPost(t, "stale", "author-4", 5*time.Hour, keywords.Keywords{}),
	}}
	profiles := &fakeProfiles{profiles: map[string]profile.Profile{
		"u1": {ID: "u1", Preferences: profile.Preferences{Skills: []string{"Go"}}},
	}}

	ranked, personalized, err := NewRanker(store, profiles, 0).PersonalizedFeed("u1", Options{})
	if err != nil {
		t.Fatalf("PersonalizedFeed: %v", err)
	}
	if !personalized {
		t.Fatal("expected personalized ranking")
	}

	got := make([]string, len(ranked))
	for i, r := range ranked {
		got[i] = r.Post.ID
	}
	want := []string{"match", "topical", "fresh", "stale"}
	if len(got) != len(want) {
		t.Fatalf("got %d posts, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %q, want %q (full order %v)", i, got[i], want[i], got)
		}
	}
}

func TestPersonalizedFeedPaginatesAfterSorting(t *testing.T) {
	store := &fakeStore{posts: map[string]storage.Post{}}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		var k keywords.Keywords
		if id == "d" {
			k = keywords.Keywords{Skills: []string{"Go"}}
		}
		store.posts[id] = testPost(t, id, "author-"+id, time.Duration(len(store.posts))*time.Hour, k)
	}
	profiles := &fakeProfiles{profiles: map[string]profile.Profile{
		"u1": {ID: "u1", Preferences: profile.Preferences{Skills: []string{"Go"}}},
	}}
	r := NewRanker(store, profiles, 0)

	page1, _, err := r.PersonalizedFeed("u1", Options{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("page 1 size: got %d, want 2", len(page1))
	}
	// The single scored post ranks first regardless of where pagination cuts.
	if page1[0].Post.ID != "d" {
		t.Errorf("top of page 1: got %q, want %q", page1[0].Post.ID, "d")
	}

	page3, _, err := r.PersonalizedFeed("u1", Options{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(page3) != 1 {
		t.Fatalf("page 3 size: got %d, want 1", len(page3))
	}

	empty, _, err := r.PersonalizedFeed("u1", Options{Limit: 2, Offset: 10})
	if err != nil {
		t.Fatalf("past-end page: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("past-end page: got %d posts, want 0", len(empty))
	}
}

func TestPersonalizedFeedExcludesOwnPosts(t *testing.T) {
	store := &fakeStore{posts: map[string]storage.Post{
		"mine":   testPost(t, "mine", "u1", time.Hour, keywords.Keywords{Skills: []string{"Go"}}),
		"theirs": testPost(t, "theirs", "u2", time.Hour, keywords.Keywords{}),
	}}
	profiles := &fakeProfiles{profiles: map[string]profile.Profile{"u1": {ID: "u1"}}}

	ranked, _, err := NewRanker(store, profiles, 0).PersonalizedFeed("u1", Options{ExcludeOwn: true})
	if err != nil {
		t.Fatalf("PersonalizedFeed: %v", err)
	}
	if len(ranked) != 1 || ranked[0].Post.ID != "theirs" {
		t.Fatalf("expected only other users' posts, got %+v", ranked)
	}
}

func TestPersonalizedFeedDegradesToRecencyWhenProfileMissing(t *testing.T) {
	store := &fakeStore{posts: map[string]storage.Post{
		"old": testPost(t, "old", "a", 4*time.Hour, keywords.Keywords{Skills: []string{"Go"}}),
		"new": testPost(t, "new", "b", 1*time.Hour, keywords.Keywords{}),
	}}
	profiles := &fakeProfiles{profiles: map[string]profile.Profile{}}

	ranked, personalized, err := NewRanker(store, profiles, 0).PersonalizedFeed("ghost", Options{})
	if err != nil {
		t.Fatalf("PersonalizedFeed: %v", err)
	}
	if personalized {
		t.Fatal("expected degraded ranking for unknown profile")
	}
	if ranked[0].Post.ID != "new" {
		t.Errorf("degraded order: got %q first, want %q", ranked[0].Post.ID, "new")
	}
	for _, r := range ranked {
		if r.Result.Score != 0 || len(r.Result.Reasons) != 0 {
			t.Errorf("degraded ranking must carry zero scores, got %+v for %s", r.Result, r.Post.ID)
		}
	}
}

func TestPersonalizedFeedToleratesHistoryFailure(t *testing.T) {
	store := &fakeStore{posts: map[string]storage.Post{
		"match": testPost(t, "match", "a", time.Hour, keywords.Keywords{Skills: []string{"Go"}}),
	}}
	profiles := &fakeProfiles{
		profiles:   map[string]profile.Profile{"u1": {ID: "u1", Preferences: profile.Preferences{Skills: []string{"Go"}}}},
		historyErr: errors.New("history backend down"),
	}

	ranked, personalized, err := NewRanker(store, profiles, 0).PersonalizedFeed("u1", Options{})
	if err != nil {
		t.Fatalf("PersonalizedFeed: %v", err)
	}
	if !personalized {
		t.Fatal("preference scoring should survive a history failure")
	}
	if ranked[0].Result.Score != scoring.PreferenceWeight+scoring.TopicalWeight {
		t.Errorf("score: got %d, want %d", ranked[0].Result.Score, scoring.PreferenceWeight+scoring.TopicalWeight)
	}
}

func TestPersonalizedFeedUsesActivitySignals(t *testing.T) {
	store := &fakeStore{posts: map[string]storage.Post{
		"liked":     testPost(t, "liked", "a", 6*time.Hour, keywords.Keywords{Skills: []string{"Python"}}),
		"candidate": testPost(t, "candidate", "b", 2*time.Hour, keywords.Keywords{Skills: []string{"Python"}}),
		"other":     testPost(t, "other", "c", 1*time.Hour, keywords.Keywords{Skills: []string{"Rust"}}),
	}}
	profiles := &fakeProfiles{
		profiles: map[string]profile.Profile{"u1": {ID: "u1"}},
		interactions: map[string][]profile.Interaction{
			"u1": {{Type: profile.InteractionLike, TargetType: profile.TargetPost, TargetID: "liked"}},
		},
	}

	ranked, _, err := NewRanker(store, profiles, 0).PersonalizedFeed("u1", Options{})
	if err != nil {
		t.Fatalf("PersonalizedFeed: %v", err)
	}
	if ranked[0].Post.ID != "candidate" && ranked[0].Post.ID != "liked" {
		t.Fatalf("expected activity-matching posts on top, got %q", ranked[0].Post.ID)
	}
	for _, r := range ranked {
		if r.Post.ID == "other" && r.Result.Score >= ranked[0].Result.Score {
			t.Errorf("non-matching post should rank below activity matches")
		}
	}
}

func TestPersonalizedFeedToleratesMalformedKeywordSnapshot(t *testing.T) {
	broken := testPost(t, "broken", "a", time.Hour, keywords.Keywords{})
	broken.KeywordsJSON = "{not json"
	store := &fakeStore{posts: map[string]storage.Post{"broken": broken}}
	profiles := &fakeProfiles{profiles: map[string]profile.Profile{"u1": {ID: "u1"}}}

	ranked, _, err := NewRanker(store, profiles, 0).PersonalizedFeed("u1", Options{})
	if err != nil {
		t.Fatalf("PersonalizedFeed: %v", err)
	}
	if len(ranked) != 1 || ranked[0].Result.Score != 0 {
		t.Fatalf("malformed snapshot should score zero, got %+v", ranked)
	}
}

func TestRankedCompaniesPrefersFollowedCompany(t *testing.T) {
	store := &fakeStore{companies: map[string]storage.Company{
		"acme": {ID: "acme", Name: "Acme", KeywordsJSON: "{}", CreatedAt: time.Now().Add(-time.Hour)},
		"beta": {ID: "beta", Name: "Beta Corp", KeywordsJSON: "{}", CreatedAt: time.Now()},
	}}
	profiles := &fakeProfiles{profiles: map[string]profile.Profile{
		"u1": {ID: "u1", Preferences: profile.Preferences{Companies: []string{"Acme"}}},
	}}

	ranked, personalized, err := NewRanker(store, profiles, 0).RankedCompanies("u1", Options{})
	if err != nil {
		t.Fatalf("RankedCompanies: %v", err)
	}
	if !personalized {
		t.Fatal("expected personalized company ranking")
	}
	if ranked[0].Company.ID != "acme" {
		t.Errorf("followed company should rank first, got %q", ranked[0].Company.ID)
	}
	if ranked[0].Result.Score != scoring.PreferenceWeight {
		t.Errorf("followed company score: got %d, want %d", ranked[0].Result.Score, scoring.PreferenceWeight)
	}
}

func TestExplainReturnsFullBreakdown(t *testing.T) {
	store := &fakeStore{posts: map[string]storage.Post{
		"p1": testPost(t, "p1", "a", time.Hour, keywords.Keywords{Skills: []string{"Go", "Kubernetes"}}),
	}}
	profiles := &fakeProfiles{profiles: map[string]profile.Profile{
		"u1": {ID: "u1", Preferences: profile.Preferences{Skills: []string{"Go"}}},
	}}

	res, err := NewRanker(store, profiles, 0).Explain("u1", profile.TargetPost, "p1")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	sum := 0
	for _, r := range res.Reasons {
		sum += r.Points
	}
	if sum != res.Score {
		t.Errorf("reason points must sum to the score: %d != %d", sum, res.Score)
	}
	if res.Score != scoring.PreferenceWeight+scoring.TopicalWeight {
		t.Errorf("score: got %d, want %d", res.Score, scoring.PreferenceWeight+scoring.TopicalWeight)
	}
}

func TestExplainUnknownTarget(t *testing.T) {
	store := &fakeStore{posts: map[string]storage.Post{}}
	profiles := &fakeProfiles{profiles: map[string]profile.Profile{"u1": {ID: "u1"}}}

	_, err := NewRanker(store, profiles, 0).Explain("u1", profile.TargetPost, "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetRecentDaysChangesLookback(t *testing.T) {
	store := &fakeStore{posts: map[string]storage.Post{
		"p1": testPost(t, "p1", "a", time.Hour, keywords.Keywords{}),
	}}
	profiles := &fakeProfiles{profiles: map[string]profile.Profile{"u1": {ID: "u1"}}}

	r := NewRanker(store, profiles, 0)
	if _, _, err := r.PersonalizedFeed("u1", Options{}); err != nil {
		t.Fatalf("PersonalizedFeed: %v", err)
	}
	if profiles.lastWithinDays != profile.DefaultRecentDays {
		t.Errorf("default lookback: got %d, want %d", profiles.lastWithinDays, profile.DefaultRecentDays)
	}

	r.SetRecentDays(7)
	if _, _, err := r.PersonalizedFeed("u1", Options{}); err != nil {
		t.Fatalf("PersonalizedFeed: %v", err)
	}
	if profiles.lastWithinDays != 7 {
		t.Errorf("lookback after SetRecentDays(7): got %d", profiles.lastWithinDays)
	}

	r.SetRecentDays(0)
	if _, _, err := r.PersonalizedFeed("u1", Options{}); err != nil {
		t.Fatalf("PersonalizedFeed: %v", err)
	}
	if profiles.lastWithinDays != 7 {
		t.Errorf("zero must keep the previous lookback, got %d", profiles.lastWithinDays)
	}
}
