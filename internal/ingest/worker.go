// Package ingest runs the background analysis queue. Content writes enqueue
// jobs; the worker claims them, runs keyword analysis or document text
// extraction, and retries failures with backoff through the queue.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/skillhive/relevance/internal/content"
	"github.com/skillhive/relevance/internal/keywords"
	"github.com/skillhive/relevance/internal/storage"
)

// Job types processed by the worker.
const (
	JobAnalyzePost    = "analyze_post"
	JobAnalyzeCompany = "analyze_company"
	JobExtractDoc     = "extract_doc"
)

// JobStore abstracts the queue and the records jobs operate on.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetCompanyDoc(id string) (storage.CompanyDoc, error)
	UpdateCompanyDocText(id, extractedText string) error
}

// Analyzer runs keyword analysis over stored content.
type Analyzer interface {
	AnalyzePost(id string) (keywords.Keywords, error)
	AnalyzeCompany(id string) (content.CompanyAnalysis, error)
}

// Worker processes analysis jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	analyzer Analyzer
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, analyzer Analyzer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		analyzer: analyzer,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobAnalyzePost, JobAnalyzeCompany, JobExtractDoc})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type analyzePostPayload struct {
	PostID string `json:"post_id"`
}

type analyzeCompanyPayload struct {
	CompanyID string `json:"company_id"`
}

type extractDocPayload struct {
	DocID string `json:"doc_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	switch job.Type {
	case JobAnalyzePost:
		var payload analyzePostPayload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		if _, err := w.analyzer.AnalyzePost(payload.PostID); err != nil {
			return fmt.Errorf("analyzing post %s: %w", payload.PostID, err)
		}
		return nil

	case JobAnalyzeCompany:
		var payload analyzeCompanyPayload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		if _, err := w.analyzer.AnalyzeCompany(payload.CompanyID); err != nil {
			return fmt.Errorf("analyzing company %s: %w", payload.CompanyID, err)
		}
		return nil

	case JobExtractDoc:
		var payload extractDocPayload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		return w.extractDoc(payload.DocID)

	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

// extractDoc pulls text out of an uploaded company document and chains a
// company re-analysis so the new text reaches the keyword snapshot.
func (w *Worker) extractDoc(docID string) error {
	doc, err := w.store.GetCompanyDoc(docID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", docID, err)
	}

	text, err := ExtractText(doc.ContentType, doc.Content)
	if err != nil {
		return fmt.Errorf("extracting text from %s: %w", docID, err)
	}

	if err := w.store.UpdateCompanyDocText(docID, text); err != nil {
		return fmt.Errorf("saving extracted text: %w", err)
	}

	if err := EnqueueCompanyAnalysis(w.store, doc.CompanyID); err != nil {
		return fmt.Errorf("chaining company analysis: %w", err)
	}
	return nil
}

// EnqueuePostAnalysis schedules keyword analysis for a post.
func EnqueuePostAnalysis(store JobStore, postID string) error {
	return enqueue(store, JobAnalyzePost, analyzePostPayload{PostID: postID})
}

// EnqueueCompanyAnalysis schedules keyword analysis for a company.
func EnqueueCompanyAnalysis(store JobStore, companyID string) error {
	return enqueue(store, JobAnalyzeCompany, analyzeCompanyPayload{CompanyID: companyID})
}

// EnqueueDocExtraction schedules text extraction for an uploaded document.
func EnqueueDocExtraction(store JobStore, docID string) error {
	return enqueue(store, JobExtractDoc, extractDocPayload{DocID: docID})
}

func enqueue(store JobStore, jobType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling %s payload: %w", jobType, err)
	}
	return store.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		PayloadJSON: string(data),
	})
}
