// Package api exposes the relevance engine over HTTP. The read surface
// (feed, companies, preferences, explain) identifies users through the
// X-User-ID header the platform gateway injects; content writes sit behind
// bearer auth.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skillhive/relevance/internal/content"
	"github.com/skillhive/relevance/internal/feed"
	"github.com/skillhive/relevance/internal/profile"
	"github.com/skillhive/relevance/internal/scoring"
	"github.com/skillhive/relevance/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps wires the HTTP surface to the engine.
type AppDeps struct {
	Store    *storage.Store
	Profiles *profile.Service
	Ranker   *feed.Ranker
	Analyzer *content.Analyzer
	Token    string
}

// NewAppHandler builds the full router.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Get("/feed", handleFeed(deps))
	r.Get("/companies", handleListCompanies(deps))
	r.Get("/explain/{targetType}/{targetID}", handleExplain(deps))

	r.Post("/profile", handleRegisterProfile(deps))
	r.Get("/profile/preferences", handleGetPreferences(deps))
	r.Put("/profile/preferences", handlePutPreferences(deps))
	r.Post("/interactions", handleRecordInteraction(deps))

	// Content writes reshape every user's ranking, so they are gated.
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/posts", handleCreatePost(deps))
		r.Post("/companies", handleCreateCompany(deps))
		r.Post("/companies/analyze", handleAnalyzeAllCompanies(deps))
		r.Post("/companies/{id}/reviews", handleAddReview(deps))
		r.Post("/companies/{id}/documents", handleUploadDocument(deps))
		r.Post("/companies/{id}/analyze", handleAnalyzeCompany(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// FeedItem is one entry of the personalized feed response.
type FeedItem struct {
	ID           string               `json:"id"`
	AuthorID     string               `json:"author_id"`
	Title        string               `json:"title"`
	Body         string               `json:"body"`
	CreatedAt    time.Time            `json:"created_at"`
	Score        int                  `json:"score"`
	MatchReasons []scoring.MatchReason `json:"match_reasons"`
}

// FeedResponse carries the page plus whether personalization applied.
type FeedResponse struct {
	Personalized bool       `json:"personalized"`
	Items        []FeedItem `json:"items"`
}

func handleFeed(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		ranked, personalized, err := deps.Ranker.PersonalizedFeed(requestUserID(r), feed.Options{
			Limit:      limit,
			Offset:     offset,
			ExcludeOwn: true,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build feed: %v", err)
			return
		}

		items := make([]FeedItem, 0, len(ranked))
		for _, rp := range ranked {
			items = append(items, FeedItem{
				ID:           rp.Post.ID,
				AuthorID:     rp.Post.AuthorID,
				Title:        rp.Post.Title,
				Body:         rp.Post.Body,
				CreatedAt:    rp.Post.CreatedAt,
				Score:        rp.Result.Score,
				MatchReasons: reasonsOrEmpty(rp.Result.Reasons),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(FeedResponse{Personalized: personalized, Items: items})
	}
}

// CompanyItem is one entry of the ranked company listing.
type CompanyItem struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	Score        int                  `json:"score"`
	MatchReasons []scoring.MatchReason `json:"match_reasons"`
}

func handleListCompanies(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		ranked, personalized, err := deps.Ranker.RankedCompanies(requestUserID(r), feed.Options{
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list companies: %v", err)
			return
		}

		items := make([]CompanyItem, 0, len(ranked))
		for _, rc := range ranked {
			items = append(items, CompanyItem{
				ID:           rc.Company.ID,
				Name:         rc.Company.Name,
				Description:  rc.Company.Description,
				Score:        rc.Result.Score,
				MatchReasons: reasonsOrEmpty(rc.Result.Reasons),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"personalized": personalized,
			"items":        items,
		})
	}
}

func handleExplain(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing %s header", userIDHeader)
			return
		}

		targetType := profile.TargetType(chi.URLParam(r, "targetType"))
		targetID := chi.URLParam(r, "targetID")

		res, err := deps.Ranker.Explain(userID, targetType, targetID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "target or profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "cannot explain: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"target_type":   targetType,
			"target_id":     targetID,
			"score":         res.Score,
			"match_reasons": reasonsOrEmpty(res.Reasons),
		})
	}
}

type registerRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

func handleRegisterProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		p, err := deps.Profiles.Create(req.ID, req.DisplayName)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create profile: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(p)
	}
}

func handleGetPreferences(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing %s header", userIDHeader)
			return
		}

		p, err := deps.Profiles.Get(userID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load preferences: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p.Preferences)
	}
}

func handlePutPreferences(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing %s header", userIDHeader)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var prefs profile.Preferences
		if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		updated, err := deps.Profiles.UpdatePreferences(userID, prefs)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update preferences: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(updated)
	}
}

type interactionRequest struct {
	Type       string `json:"type"`
	TargetID   string `json:"target_id"`
	TargetType string `json:"target_type"`
}

// InteractionResponse always reports 200; failures surface in the body so
// engagement tracking can never break the client's primary action.
type InteractionResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func handleRecordInteraction(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeOutcome := func(err error) {
			w.Header().Set("Content-Type", "application/json")
			resp := InteractionResponse{Success: err == nil}
			if err != nil {
				resp.Error = err.Error()
			}
			json.NewEncoder(w).Encode(resp)
		}

		userID := requestUserID(r)
		if userID == "" {
			writeOutcome(fmt.Errorf("missing %s header", userIDHeader))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req interactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOutcome(fmt.Errorf("invalid request body: %v", err))
			return
		}

		err := deps.Profiles.RecordInteraction(userID,
			profile.InteractionType(req.Type), req.TargetID, profile.TargetType(req.TargetType))
		writeOutcome(err)
	}
}

func reasonsOrEmpty(reasons []scoring.MatchReason) []scoring.MatchReason {
	if reasons == nil {
		return []scoring.MatchReason{}
	}
	return reasons
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
