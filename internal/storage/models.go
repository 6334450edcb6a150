package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Profile struct {
	ID              string
	DisplayName     string
	PreferencesJSON string // preference sets + onboarding flag stored as JSON text
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Interaction struct {
	Seq        int64 // assigned by the database; defines insertion order
	ID         string
	ProfileID  string
	Type       string // "like", "comment", "view"
	TargetID   string
	TargetType string // "post", "company", "profile"
	CreatedAt  time.Time
}

type Post struct {
	ID           string
	AuthorID     string
	Title        string
	Body         string
	KeywordsJSON string // detected keyword sets stored as JSON text
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Company struct {
	ID           string
	Name         string
	Description  string
	KeywordsJSON string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Review struct {
	ID        string
	CompanyID string
	Title     string
	Content   string
	Role      string
	Rating    int
	CreatedAt time.Time
}

type CompanyDoc struct {
	ID            string
	CompanyID     string
	Title         string
	ContentType   string // "application/pdf" or "text/plain"
	Content       []byte
	ExtractedText string
	CreatedAt     time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
