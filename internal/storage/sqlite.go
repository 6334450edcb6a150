package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for profiles, interactions,
// content entities, and the analysis job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "relevance.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Profiles ---

// SaveProfile inserts or replaces a profile record.
func (s *Store) SaveProfile(p Profile) error {
	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !p.CreatedAt.IsZero() {
		createdAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	prefs := p.PreferencesJSON
	if prefs == "" {
		prefs = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO profiles (id, display_name, preferences_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			preferences_json = excluded.preferences_json,
			updated_at = excluded.updated_at`,
		p.ID, p.DisplayName, prefs, createdAt, now,
	)
	return err
}

func (s *Store) GetProfile(id string) (Profile, error) {
	var p Profile
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, display_name, preferences_json, created_at, updated_at
		FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.DisplayName, &p.PreferencesJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return Profile{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Profile{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return p, nil
}

// UpdatePreferences replaces the stored preference JSON for a profile.
func (s *Store) UpdatePreferences(profileID, preferencesJSON string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE profiles SET preferences_json = ?, updated_at = ? WHERE id = ?`,
		preferencesJSON, now, profileID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Interactions ---

// AppendInteraction appends one interaction and trims the profile's history
// to the most recent maxHistory entries in the same transaction, so no
// reader ever observes a history above the cap.
func (s *Store) AppendInteraction(i Interaction, maxHistory int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO interactions (id, profile_id, type, target_id, target_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		i.ID, i.ProfileID, i.Type, i.TargetID, i.TargetType,
		i.CreatedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting interaction: %w", err)
	}

	if maxHistory > 0 {
		if _, err := tx.Exec(`
			DELETE FROM interactions
			WHERE profile_id = ? AND seq NOT IN (
				SELECT seq FROM interactions
				WHERE profile_id = ?
				ORDER BY seq DESC
				LIMIT ?
			)`, i.ProfileID, i.ProfileID, maxHistory,
		); err != nil {
			return fmt.Errorf("trimming interaction history: %w", err)
		}
	}

	return tx.Commit()
}

// ListInteractions returns a profile's full retained history in insertion order.
func (s *Store) ListInteractions(profileID string) ([]Interaction, error) {
	rows, err := s.db.Query(`
		SELECT seq, id, profile_id, type, target_id, target_type, created_at
		FROM interactions WHERE profile_id = ? ORDER BY seq ASC`, profileID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interaction
	for rows.Next() {
		var i Interaction
		var createdAt string
		if err := rows.Scan(&i.Seq, &i.ID, &i.ProfileID, &i.Type, &i.TargetID, &i.TargetType, &createdAt); err != nil {
			return nil, err
		}
		if i.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, i)
	}
	return results, rows.Err()
}

// --- Posts ---

func (s *Store) SavePost(p Post) error {
	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !p.CreatedAt.IsZero() {
		createdAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	keywords := p.KeywordsJSON
	if keywords == "" {
		keywords = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO posts (id, author_id, title, body, keywords_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			keywords_json = excluded.keywords_json,
			updated_at = excluded.updated_at`,
		p.ID, p.AuthorID, p.Title, p.Body, keywords, createdAt, now,
	)
	return err
}

func (s *Store) GetPost(id string) (Post, error) {
	row := s.db.QueryRow(`
		SELECT id, author_id, title, body, keywords_json, created_at, updated_at
		FROM posts WHERE id = ?`, id)
	return scanPost(row)
}

// ListRecentPosts returns the newest posts first. This is the candidate
// window the ranker evaluates; limit bounds total scoring work per request.
func (s *Store) ListRecentPosts(limit int) ([]Post, error) {
	rows, err := s.db.Query(`
		SELECT id, author_id, title, body, keywords_json, created_at, updated_at
		FROM posts ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (s *Store) UpdatePostKeywords(id, keywordsJSON string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE posts SET keywords_json = ?, updated_at = ? WHERE id = ?`,
		keywordsJSON, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (Post, error) {
	var p Post
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Body, &p.KeywordsJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return Post{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Post{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return p, nil
}

// --- Companies ---

func (s *Store) SaveCompany(c Company) error {
	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !c.CreatedAt.IsZero() {
		createdAt = c.CreatedAt.UTC().Format(time.RFC3339)
	}
	keywords := c.KeywordsJSON
	if keywords == "" {
		keywords = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO companies (id, name, description, keywords_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			keywords_json = excluded.keywords_json,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.Description, keywords, createdAt, now,
	)
	return err
}

func (s *Store) GetCompany(id string) (Company, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, keywords_json, created_at, updated_at
		FROM companies WHERE id = ?`, id)
	return scanCompany(row)
}

func (s *Store) ListCompanies(limit int) ([]Company, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, keywords_json, created_at, updated_at
		FROM companies ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// ListCompanyIDs returns every company ID, oldest first. Used by bulk re-analysis.
func (s *Store) ListCompanyIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM companies ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) UpdateCompanyKeywords(id, keywordsJSON string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE companies SET keywords_json = ?, updated_at = ? WHERE id = ?`,
		keywordsJSON, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCompany(row rowScanner) (Company, error) {
	var c Company
	var createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.KeywordsJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Company{}, ErrNotFound
	}
	if err != nil {
		return Company{}, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return Company{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Company{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return c, nil
}

// --- Reviews ---

func (s *Store) SaveReview(r Review) error {
	_, err := s.db.Exec(`
		INSERT INTO company_reviews (id, company_id, title, content, role, rating, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CompanyID, r.Title, r.Content, r.Role, r.Rating,
		r.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListReviews(companyID string) ([]Review, error) {
	rows, err := s.db.Query(`
		SELECT id, company_id, title, content, role, rating, created_at
		FROM company_reviews WHERE company_id = ? ORDER BY created_at ASC`, companyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Review
	for rows.Next() {
		var r Review
		var createdAt string
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.Title, &r.Content, &r.Role, &r.Rating, &createdAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Company documents ---

func (s *Store) SaveCompanyDoc(d CompanyDoc) error {
	_, err := s.db.Exec(`
		INSERT INTO company_docs (id, company_id, title, content_type, content, extracted_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.CompanyID, d.Title, d.ContentType, d.Content, d.ExtractedText,
		d.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetCompanyDoc(id string) (CompanyDoc, error) {
	var d CompanyDoc
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, company_id, title, content_type, content, extracted_text, created_at
		FROM company_docs WHERE id = ?`, id,
	).Scan(&d.ID, &d.CompanyID, &d.Title, &d.ContentType, &d.Content, &d.ExtractedText, &createdAt)
	if err == sql.ErrNoRows {
		return CompanyDoc{}, ErrNotFound
	}
	if err != nil {
		return CompanyDoc{}, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return CompanyDoc{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return d, nil
}

func (s *Store) ListCompanyDocs(companyID string) ([]CompanyDoc, error) {
	rows, err := s.db.Query(`
		SELECT id, company_id, title, content_type, content, extracted_text, created_at
		FROM company_docs WHERE company_id = ? ORDER BY created_at ASC`, companyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CompanyDoc
	for rows.Next() {
		var d CompanyDoc
		var createdAt string
		if err := rows.Scan(&d.ID, &d.CompanyID, &d.Title, &d.ContentType, &d.Content, &d.ExtractedText, &createdAt); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (s *Store) UpdateCompanyDocText(id, extractedText string) error {
	res, err := s.db.Exec(`UPDATE company_docs SET extracted_text = ? WHERE id = ?`, extractedText, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = parseTime(runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = parseTime(now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
