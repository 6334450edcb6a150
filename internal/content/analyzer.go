// Package content runs keyword analysis over posts and companies and
// persists the detected keyword snapshots the scoring engine reads.
package content

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/skillhive/relevance/internal/keywords"
	"github.com/skillhive/relevance/internal/storage"
)

// DefaultAnalysisConcurrency bounds parallel company analysis during a bulk
// run.
const DefaultAnalysisConcurrency = 4

// Store is the slice of the persistence layer the analyzer needs.
// Implemented by storage.Store.
type Store interface {
	GetPost(id string) (storage.Post, error)
	UpdatePostKeywords(id, keywordsJSON string) error
	GetCompany(id string) (storage.Company, error)
	ListCompanyIDs() ([]string, error)
	UpdateCompanyKeywords(id, keywordsJSON string) error
	ListReviews(companyID string) ([]storage.Review, error)
	ListCompanyDocs(companyID string) ([]storage.CompanyDoc, error)
}

// Analyzer extracts keywords from stored content and writes the snapshots
// back. Analysis is idempotent: re-running it over unchanged content
// produces the same snapshot.
type Analyzer struct {
	store       Store
	extractor   *keywords.Extractor
	concurrency int
}

// NewAnalyzer creates an Analyzer. concurrency caps the parallelism of bulk
// runs (DefaultAnalysisConcurrency if <= 0).
func NewAnalyzer(store Store, extractor *keywords.Extractor, concurrency int) *Analyzer {
	if concurrency <= 0 {
		concurrency = DefaultAnalysisConcurrency
	}
	return &Analyzer{store: store, extractor: extractor, concurrency: concurrency}
}

// AnalyzePost extracts keywords from a post's title and body. Markup is
// stripped first so HTML-authored posts match the same dictionary entries
// as plain-text ones.
func (a *Analyzer) AnalyzePost(id string) (keywords.Keywords, error) {
	post, err := a.store.GetPost(id)
	if err != nil {
		return keywords.Keywords{}, fmt.Errorf("loading post %s: %w", id, err)
	}

	kw := a.extractor.ExtractAll(
		keywords.StripMarkup(post.Title),
		keywords.StripMarkup(post.Body),
	)

	encoded, err := keywords.ToJSON(kw)
	if err != nil {
		return keywords.Keywords{}, err
	}
	if err := a.store.UpdatePostKeywords(id, encoded); err != nil {
		return keywords.Keywords{}, fmt.Errorf("saving post keywords: %w", err)
	}

	slog.Debug("analyzed post", "post_id", id,
		"skills", len(kw.Skills), "industries", len(kw.Industries), "companies", len(kw.Companies))
	return kw, nil
}

// CompanyAnalysis is the outcome of analyzing one company.
type CompanyAnalysis struct {
	CompanyID string            `json:"company_id"`
	Keywords  keywords.Keywords `json:"keywords"`
	// Sources counts the text fields that contributed to the extraction:
	// the description, each review field, and each extracted document.
	Sources int    `json:"sources"`
	Error   string `json:"error,omitempty"`
}

// AnalyzeCompany extracts keywords from everything known about a company:
// its description, all review text, and the extracted text of uploaded
// documents. Binary documents that have not been through text extraction
// yet contribute nothing and do not fail the analysis.
func (a *Analyzer) AnalyzeCompany(id string) (CompanyAnalysis, error) {
	company, err := a.store.GetCompany(id)
	if err != nil {
		return CompanyAnalysis{}, fmt.Errorf("loading company %s: %w", id, err)
	}

	fields := []string{keywords.StripMarkup(company.Description)}

	reviews, err := a.store.ListReviews(id)
	if err != nil {
		return CompanyAnalysis{}, fmt.Errorf("loading reviews for %s: %w", id, err)
	}
	for _, r := range reviews {
		fields = append(fields, r.Title, keywords.StripMarkup(r.Content), r.Role)
	}

	docs, err := a.store.ListCompanyDocs(id)
	if err != nil {
		return CompanyAnalysis{}, fmt.Errorf("loading documents for %s: %w", id, err)
	}
	for _, d := range docs {
		if d.ExtractedText == "" {
			continue
		}
		fields = append(fields, d.ExtractedText)
	}

	kw := a.extractor.ExtractAll(fields...)

	encoded, err := keywords.ToJSON(kw)
	if err != nil {
		return CompanyAnalysis{}, err
	}
	if err := a.store.UpdateCompanyKeywords(id, encoded); err != nil {
		return CompanyAnalysis{}, fmt.Errorf("saving company keywords: %w", err)
	}

	sources := 0
	for _, f := range fields {
		if f != "" {
			sources++
		}
	}
	slog.Debug("analyzed company", "company_id", id, "sources", sources,
		"skills", len(kw.Skills), "industries", len(kw.Industries), "companies", len(kw.Companies))
	return CompanyAnalysis{CompanyID: id, Keywords: kw, Sources: sources}, nil
}

// BulkResult aggregates a bulk company analysis run. Success reports
// whether every company analyzed cleanly.
type BulkResult struct {
	Success   bool              `json:"success"`
	Analyzed  int               `json:"analyzed"`
	Failed    int               `json:"failed"`
	Companies []CompanyAnalysis `json:"companies"`
}

// AnalyzeAllCompanies re-analyzes every stored company with bounded
// concurrency. Individual failures are recorded per company and do not
// abort the run; the error return covers only being unable to start.
func (a *Analyzer) AnalyzeAllCompanies(ctx context.Context) (BulkResult, error) {
	ids, err := a.store.ListCompanyIDs()
	if err != nil {
		return BulkResult{}, fmt.Errorf("listing companies: %w", err)
	}

	results := make([]CompanyAnalysis, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for idx, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := a.AnalyzeCompany(id)
			if err != nil {
				slog.Warn("bulk analysis: company failed", "company_id", id, "error", err)
				results[idx] = CompanyAnalysis{CompanyID: id, Error: err.Error()}
				return nil
			}
			results[idx] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BulkResult{}, err
	}

	out := BulkResult{Companies: results}
	for _, r := range results {
		if r.Error != "" {
			out.Failed++
		} else {
			out.Analyzed++
		}
	}
	out.Success = out.Failed == 0
	return out, nil
}
