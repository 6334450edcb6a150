package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestProfileRoundTrip(t *testing.T) {
	store := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	p := Profile{
		ID:              "u1",
		DisplayName:     "Test User",
		PreferencesJSON: `{"skills":["Go"]}`,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := store.SaveProfile(p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	got, err := store.GetProfile("u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.DisplayName != "Test User" || got.PreferencesJSON != `{"skills":["Go"]}` {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if err := store.UpdatePreferences("u1", `{"skills":["Rust"]}`); err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}
	got, err = store.GetProfile("u1")
	if err != nil {
		t.Fatalf("GetProfile after update: %v", err)
	}
	if got.PreferencesJSON != `{"skills":["Rust"]}` {
		t.Errorf("preferences not updated: %q", got.PreferencesJSON)
	}

	if _, err := store.GetProfile("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown profile: got %v, want ErrNotFound", err)
	}
	if err := store.UpdatePreferences("missing", "{}"); !errors.Is(err, ErrNotFound) {
		t.Errorf("updating unknown profile: got %v, want ErrNotFound", err)
	}
}

func TestSaveProfileUpserts(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	if err := store.SaveProfile(Profile{ID: "u1", DisplayName: "One", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.SaveProfile(Profile{ID: "u1", DisplayName: "Two", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := store.GetProfile("u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.DisplayName != "Two" {
		t.Errorf("upsert did not replace: %q", got.DisplayName)
	}
}

func TestAppendInteractionTrimsHistory(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	if err := store.SaveProfile(Profile{ID: "u1", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	const maxHistory = 100
	for i := 0; i < 150; i++ {
		err := store.AppendInteraction(Interaction{
			ID:         fmt.Sprintf("i-%d", i),
			ProfileID:  "u1",
			Type:       "like",
			TargetID:   fmt.Sprintf("post-%d", i),
			TargetType: "post",
			CreatedAt:  now.Add(time.Duration(i) * time.Second),
		}, maxHistory)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := store.ListInteractions("u1")
	if err != nil {
		t.Fatalf("ListInteractions: %v", err)
	}
	if len(got) != maxHistory {
		t.Fatalf("history length: got %d, want %d", len(got), maxHistory)
	}
	// The oldest 50 were evicted; the survivors stay in insertion order.
	if got[0].TargetID != "post-50" {
		t.Errorf("oldest survivor: got %q, want %q", got[0].TargetID, "post-50")
	}
	if got[len(got)-1].TargetID != "post-149" {
		t.Errorf("newest survivor: got %q, want %q", got[len(got)-1].TargetID, "post-149")
	}
	for i := 1; i < len(got); i++ {
		if got[i].Seq <= got[i-1].Seq {
			t.Fatalf("history out of insertion order at %d", i)
		}
	}
}

func TestAppendInteractionScopedPerProfile(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()
	for _, id := range []string{"u1", "u2"} {
		if err := store.SaveProfile(Profile{ID: id, CreatedAt: now, UpdatedAt: now}); err != nil {
			t.Fatalf("SaveProfile: %v", err)
		}
	}

	for i := 0; i < 5; i++ {
		for _, id := range []string{"u1", "u2"} {
			err := store.AppendInteraction(Interaction{
				ID: fmt.Sprintf("%s-%d", id, i), ProfileID: id,
				Type: "view", TargetID: "p", TargetType: "post", CreatedAt: now,
			}, 3)
			if err != nil {
				t.Fatalf("append: %v", err)
			}
		}
	}

	for _, id := range []string{"u1", "u2"} {
		got, err := store.ListInteractions(id)
		if err != nil {
			t.Fatalf("ListInteractions: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("profile %s history: got %d, want 3", id, len(got))
		}
	}
}

func TestListRecentPostsOrderAndLimit(t *testing.T) {
	store := openTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		p := Post{
			ID:        fmt.Sprintf("p-%d", i),
			AuthorID:  "a",
			Title:     "t",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base,
		}
		if err := store.SavePost(p); err != nil {
			t.Fatalf("SavePost: %v", err)
		}
	}

	got, err := store.ListRecentPosts(3)
	if err != nil {
		t.Fatalf("ListRecentPosts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d posts, want 3", len(got))
	}
	if got[0].ID != "p-4" || got[2].ID != "p-2" {
		t.Errorf("expected newest-first window, got %v %v %v", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestUpdatePostKeywords(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	if err := store.SavePost(Post{ID: "p1", AuthorID: "a", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("SavePost: %v", err)
	}
	if err := store.UpdatePostKeywords("p1", `{"skills":["Go"]}`); err != nil {
		t.Fatalf("UpdatePostKeywords: %v", err)
	}

	got, err := store.GetPost("p1")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.KeywordsJSON != `{"skills":["Go"]}` {
		t.Errorf("keywords not persisted: %q", got.KeywordsJSON)
	}

	if err := store.UpdatePostKeywords("missing", "{}"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown post: got %v, want ErrNotFound", err)
	}
}

func TestCompanyReviewsAndDocs(t *testing.T) {
	store := openTestStore(t)
	now := time.Now().UTC()

	if err := store.SaveCompany(Company{ID: "c1", Name: "Acme", Description: "d", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("SaveCompany: %v", err)
	}

	if err := store.SaveReview(Review{ID: "r1", CompanyID: "c1", Title: "t", Content: "body", Role: "Engineer", Rating: 4, CreatedAt: now}); err != nil {
		t.Fatalf("SaveReview: %v", err)
	}
	reviews, err := store.ListReviews("c1")
	if err != nil {
		t.Fatalf("ListReviews: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Rating != 4 {
		t.Errorf("reviews round trip: %+v", reviews)
	}

	doc := CompanyDoc{
		ID: "d1", CompanyID: "c1", Title: "Brochure",
		ContentType: "text/plain", Content: []byte("raw"), CreatedAt: now,
	}
	if err := store.SaveCompanyDoc(doc); err != nil {
		t.Fatalf("SaveCompanyDoc: %v", err)
	}
	if err := store.UpdateCompanyDocText("d1", "extracted"); err != nil {
		t.Fatalf("UpdateCompanyDocText: %v", err)
	}
	gotDoc, err := store.GetCompanyDoc("d1")
	if err != nil {
		t.Fatalf("GetCompanyDoc: %v", err)
	}
	if gotDoc.ExtractedText != "extracted" || string(gotDoc.Content) != "raw" {
		t.Errorf("doc round trip: %+v", gotDoc)
	}

	ids, err := store.ListCompanyIDs()
	if err != nil {
		t.Fatalf("ListCompanyIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "c1" {
		t.Errorf("company ids: %v", ids)
	}
}

func TestJobQueueLifecycle(t *testing.T) {
	store := openTestStore(t)

	if err := store.EnqueueJob(Job{ID: "j1", Type: "analyze_post", PayloadJSON: `{"post_id":"p1"}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	job, err := store.ClaimNextJob([]string{"analyze_post"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil || job.ID != "j1" || job.Status != "running" {
		t.Fatalf("claimed job: %+v", job)
	}

	// A running job cannot be claimed again.
	again, err := store.ClaimNextJob([]string{"analyze_post"})
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again != nil {
		t.Fatalf("running job claimed twice: %+v", again)
	}

	if err := store.CompleteJob("j1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if err := store.CompleteJob("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("completing unknown job: got %v, want ErrNotFound", err)
	}
}

func TestJobQueueClaimFiltersTypes(t *testing.T) {
	store := openTestStore(t)

	if err := store.EnqueueJob(Job{ID: "j1", Type: "extract_doc", PayloadJSON: "{}"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	job, err := store.ClaimNextJob([]string{"analyze_post"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job != nil {
		t.Fatalf("claimed a job of an unrequested type: %+v", job)
	}
}

func TestFailJobRetriesWithBackoffThenFails(t *testing.T) {
	store := openTestStore(t)

	if err := store.EnqueueJob(Job{ID: "j1", Type: "analyze_post", PayloadJSON: "{}", MaxAttempts: 2}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	job, err := store.ClaimNextJob([]string{"analyze_post"})
	if err != nil || job == nil {
		t.Fatalf("first claim: %v %v", job, err)
	}
	if err := store.FailJob("j1", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	// The retry is scheduled in the future, so it is not claimable yet.
	job, err = store.ClaimNextJob([]string{"analyze_post"})
	if err != nil {
		t.Fatalf("claim after failure: %v", err)
	}
	if job != nil {
		t.Fatalf("backed-off job claimed immediately: %+v", job)
	}

	// Second failure exhausts the attempts.
	if err := store.FailJob("j1", "boom again"); err != nil {
		t.Fatalf("second FailJob: %v", err)
	}
	job, err = store.ClaimNextJob([]string{"analyze_post"})
	if err != nil {
		t.Fatalf("claim after exhaustion: %v", err)
	}
	if job != nil {
		t.Fatalf("permanently failed job still claimable: %+v", job)
	}
}
