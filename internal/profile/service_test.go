package profile

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/skillhive/relevance/internal/storage"
)

// --- fake store ---

type fakeStore struct {
	profiles     map[string]storage.Profile
	interactions map[string][]storage.Interaction
	appendErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles:     make(map[string]storage.Profile),
		interactions: make(map[string][]storage.Interaction),
	}
}

func (f *fakeStore) GetProfile(id string) (storage.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return storage.Profile{}, storage.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) SaveProfile(p storage.Profile) error {
	f.profiles[p.ID] = p
	return nil
}

func (f *fakeStore) UpdatePreferences(profileID, preferencesJSON string) error {
	p, ok := f.profiles[profileID]
	if !ok {
		return storage.ErrNotFound
	}
	p.PreferencesJSON = preferencesJSON
	f.profiles[profileID] = p
	return nil
}

// AppendInteraction mirrors the storage contract: append, then trim to the
// most recent maxHistory entries atomically.
func (f *fakeStore) AppendInteraction(i storage.Interaction, maxHistory int) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	history := append(f.interactions[i.ProfileID], i)
	if maxHistory > 0 && len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	f.interactions[i.ProfileID] = history
	return nil
}

func (f *fakeStore) ListInteractions(profileID string) ([]storage.Interaction, error) {
	return f.interactions[profileID], nil
}

// --- fixed clock ---

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*Service, *fakeStore, *fixedClock) {
	t.Helper()
	store := newFakeStore()
	clock := &fixedClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	svc := NewServiceWithClock(store, clock)
	if _, err := svc.Create("u1", "Test User"); err != nil {
		t.Fatalf("creating profile: %v", err)
	}
	return svc, store, clock
}

// --- tests ---

func TestRecordInteraction_BoundedHistory(t *testing.T) {
	svc, _, clock := newTestService(t)

	for i := 0; i < 150; i++ {
		clock.now = clock.now.Add(time.Minute)
		if err := svc.RecordInteraction("u1", InteractionView, fmt.Sprintf("post-%d", i), TargetPost); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	history, err := svc.History("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != MaxHistory {
		t.Fatalf("history length = %d, want %d", len(history), MaxHistory)
	}
	// The retained entries must be the 100 most recent (post-50 .. post-149).
	if history[0].TargetID != "post-50" {
		t.Errorf("oldest retained = %s, want post-50", history[0].TargetID)
	}
	if history[len(history)-1].TargetID != "post-149" {
		t.Errorf("newest retained = %s, want post-149", history[len(history)-1].TargetID)
	}
}

func TestRecordInteraction_UnknownProfile(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.RecordInteraction("ghost", InteractionLike, "post-1", TargetPost)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want storage.ErrNotFound", err)
	}
}

func TestRecordInteraction_Validation(t *testing.T) {
	svc, store, _ := newTestService(t)

	tests := []struct {
		name       string
		typ        InteractionType
		targetID   string
		targetType TargetType
	}{
		{"bad type", "upvote", "post-1", TargetPost},
		{"bad target type", InteractionLike, "post-1", "story"},
		{"empty target id", InteractionLike, "", TargetPost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.RecordInteraction("u1", tt.typ, tt.targetID, tt.targetType)
			if !errors.Is(err, ErrInvalidInteraction) {
				t.Errorf("err = %v, want ErrInvalidInteraction", err)
			}
		})
	}
	if len(store.interactions["u1"]) != 0 {
		t.Errorf("invalid interactions were stored: %d", len(store.interactions["u1"]))
	}
}

func TestRecentInteractions_WindowBoundary(t *testing.T) {
	svc, _, clock := newTestService(t)
	base := clock.now

	// One interaction 31 days old, one 29 days old.
	clock.now = base.AddDate(0, 0, -31)
	if err := svc.RecordInteraction("u1", InteractionLike, "old-post", TargetPost); err != nil {
		t.Fatalf("recording old: %v", err)
	}
	clock.now = base.AddDate(0, 0, -29)
	if err := svc.RecordInteraction("u1", InteractionLike, "recent-post", TargetPost); err != nil {
		t.Fatalf("recording recent: %v", err)
	}
	clock.now = base

	recent, err := svc.RecentInteractions("u1", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("got %d interactions, want 1", len(recent))
	}
	if recent[0].TargetID != "recent-post" {
		t.Errorf("retained = %s, want recent-post", recent[0].TargetID)
	}
}

func TestRecentInteractions_DefaultWindow(t *testing.T) {
	svc, _, clock := newTestService(t)
	base := clock.now

	clock.now = base.AddDate(0, 0, -40)
	if err := svc.RecordInteraction("u1", InteractionView, "stale", TargetCompany); err != nil {
		t.Fatalf("recording: %v", err)
	}
	clock.now = base
	if err := svc.RecordInteraction("u1", InteractionView, "fresh", TargetCompany); err != nil {
		t.Fatalf("recording: %v", err)
	}

	// withinDays <= 0 falls back to the 30-day default.
	recent, err := svc.RecentInteractions("u1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 1 || recent[0].TargetID != "fresh" {
		t.Errorf("recent = %+v, want only fresh", recent)
	}
}

func TestRecentInteractions_PreservesOrder(t *testing.T) {
	svc, _, clock := newTestService(t)

	for _, id := range []string{"a", "b", "c"} {
		clock.now = clock.now.Add(time.Minute)
		if err := svc.RecordInteraction("u1", InteractionComment, id, TargetPost); err != nil {
			t.Fatalf("recording %s: %v", id, err)
		}
	}

	recent, err := svc.RecentInteractions("u1", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if recent[i].TargetID != w {
			t.Errorf("recent[%d] = %s, want %s", i, recent[i].TargetID, w)
		}
	}
}

func TestUpdatePreferences_ReplaceAndClean(t *testing.T) {
	svc, _, _ := newTestService(t)

	got, err := svc.UpdatePreferences("u1", Preferences{
		Skills:              []string{" React ", "react", "Go", ""},
		Industries:          []string{"Fintech"},
		OnboardingCompleted: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Skills) != 2 {
		t.Errorf("Skills = %v, want deduplicated [React Go]", got.Skills)
	}

	// Whole-value replace: a later update drops everything not restated.
	got, err = svc.UpdatePreferences("u1", Preferences{Skills: []string{"Python"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loaded, err := svc.Get("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded.Preferences.Skills) != 1 || loaded.Preferences.Skills[0] != "Python" {
		t.Errorf("Skills after replace = %v, want [Python]", loaded.Preferences.Skills)
	}
	if len(loaded.Preferences.Industries) != 0 {
		t.Errorf("Industries after replace = %v, want empty", loaded.Preferences.Industries)
	}
	if loaded.Preferences.OnboardingCompleted {
		t.Error("OnboardingCompleted survived a replace that did not set it")
	}
}

func TestGet_EmptyAndMalformedPreferences(t *testing.T) {
	svc, store, _ := newTestService(t)

	// First access after create: empty preferences, no error.
	p, err := svc.Get("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Preferences.OnboardingCompleted || len(p.Preferences.Skills) != 0 {
		t.Errorf("fresh preferences not empty: %+v", p.Preferences)
	}

	// Corrupt stored JSON degrades to empty, not an error.
	rec := store.profiles["u1"]
	rec.PreferencesJSON = "{not json"
	store.profiles["u1"] = rec

	p, err = svc.Get("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Preferences.Skills) != 0 {
		t.Errorf("malformed preferences should decode as empty, got %+v", p.Preferences)
	}
}
