package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/skillhive/relevance/internal/ingest"
	"github.com/skillhive/relevance/internal/storage"
)

const maxDocumentBodySize = 10 << 20 // 10MB

type postRequest struct {
	ID       string `json:"id"`
	AuthorID string `json:"author_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

func handleCreatePost(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req postRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Title == "" && req.Body == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of title or body is required")
			return
		}
		if req.ID == "" {
			req.ID = uuid.New().String()
		}

		now := time.Now().UTC()
		post := storage.Post{
			ID:        req.ID,
			AuthorID:  req.AuthorID,
			Title:     req.Title,
			Body:      req.Body,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := deps.Store.SavePost(post); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save post: %v", err)
			return
		}
		if err := ingest.EnqueuePostAnalysis(deps.Store, post.ID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue analysis: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": post.ID, "status": "queued"})
	}
}

type companyRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func handleCreateCompany(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req companyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		if req.ID == "" {
			req.ID = uuid.New().String()
		}

		now := time.Now().UTC()
		company := storage.Company{
			ID:          req.ID,
			Name:        req.Name,
			Description: req.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := deps.Store.SaveCompany(company); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save company: %v", err)
			return
		}
		if err := ingest.EnqueueCompanyAnalysis(deps.Store, company.ID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue analysis: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": company.ID, "status": "queued"})
	}
}

type reviewRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Role    string `json:"role"`
	Rating  int    `json:"rating"`
}

func handleAddReview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID := chi.URLParam(r, "id")
		if _, err := deps.Store.GetCompany(companyID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "company not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load company: %v", err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		review := storage.Review{
			ID:        uuid.New().String(),
			CompanyID: companyID,
			Title:     req.Title,
			Content:   req.Content,
			Role:      req.Role,
			Rating:    req.Rating,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveReview(review); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save review: %v", err)
			return
		}
		if err := ingest.EnqueueCompanyAnalysis(deps.Store, companyID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue analysis: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": review.ID, "status": "queued"})
	}
}

type documentRequest struct {
	Title       string `json:"title"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"` // base64
}

func handleUploadDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID := chi.URLParam(r, "id")
		if _, err := deps.Store.GetCompany(companyID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "company not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load company: %v", err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBodySize)
		var req documentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
			return
		}
		if req.ContentType == "" {
			req.ContentType = "text/plain"
		}

		doc := storage.CompanyDoc{
			ID:          uuid.New().String(),
			CompanyID:   companyID,
			Title:       req.Title,
			ContentType: req.ContentType,
			Content:     decoded,
			CreatedAt:   time.Now().UTC(),
		}
		if err := deps.Store.SaveCompanyDoc(doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save document: %v", err)
			return
		}
		if err := ingest.EnqueueDocExtraction(deps.Store, doc.ID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue extraction: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": doc.ID, "status": "queued"})
	}
}

func handleAnalyzeCompany(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID := chi.URLParam(r, "id")

		res, err := deps.Analyzer.AnalyzeCompany(companyID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "company not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "analysis failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}
}

func handleAnalyzeAllCompanies(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Analyzer.AnalyzeAllCompanies(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "bulk analysis failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}
}
