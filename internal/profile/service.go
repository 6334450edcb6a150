package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillhive/relevance/internal/storage"
)

// ErrInvalidInteraction marks a malformed interaction type or target.
var ErrInvalidInteraction = errors.New("invalid interaction")

// Store defines the storage operations the Service needs.
// Implemented by storage.Store.
type Store interface {
	GetProfile(id string) (storage.Profile, error)
	SaveProfile(p storage.Profile) error
	UpdatePreferences(profileID, preferencesJSON string) error
	AppendInteraction(i storage.Interaction, maxHistory int) error
	ListInteractions(profileID string) ([]storage.Interaction, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Service owns profile preferences and the bounded interaction log.
type Service struct {
	store Store
	clock Clock
}

// NewService creates a Service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store, clock: realClock{}}
}

// NewServiceWithClock creates a Service with a custom clock (for testing).
func NewServiceWithClock(store Store, clock Clock) *Service {
	return &Service{store: store, clock: clock}
}

// Create registers a new profile with empty preferences.
func (s *Service) Create(id, displayName string) (Profile, error) {
	if id == "" {
		id = uuid.New().String()
	}
	rec := storage.Profile{
		ID:              id,
		DisplayName:     displayName,
		PreferencesJSON: "{}",
		CreatedAt:       s.clock.Now().UTC(),
	}
	if err := s.store.SaveProfile(rec); err != nil {
		return Profile{}, fmt.Errorf("saving profile: %w", err)
	}
	return Profile{ID: id, DisplayName: displayName}, nil
}

// Get loads a profile. Preferences that were never set come back as the
// zero value rather than an error.
func (s *Service) Get(id string) (Profile, error) {
	rec, err := s.store.GetProfile(id)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		ID:          rec.ID,
		DisplayName: rec.DisplayName,
		Preferences: decodePreferences(rec.PreferencesJSON),
	}, nil
}

// UpdatePreferences replaces the profile's declared interests as a whole.
// Terms are trimmed and deduplicated case-insensitively; the single-writer
// replace is the only mutation path for preferences.
func (s *Service) UpdatePreferences(id string, prefs Preferences) (Preferences, error) {
	prefs.Industries = cleanTerms(prefs.Industries)
	prefs.Skills = cleanTerms(prefs.Skills)
	prefs.Companies = cleanTerms(prefs.Companies)

	data, err := json.Marshal(prefs)
	if err != nil {
		return Preferences{}, fmt.Errorf("marshalling preferences: %w", err)
	}
	if err := s.store.UpdatePreferences(id, string(data)); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

// RecordInteraction appends one interaction with the current timestamp,
// evicting the oldest entry when the history is at capacity. Returns
// storage.ErrNotFound for an unknown profile and ErrInvalidInteraction for
// a malformed type or target; callers whose primary action must not block
// on tracking ignore the error deliberately.
func (s *Service) RecordInteraction(profileID string, typ InteractionType, targetID string, targetType TargetType) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidInteraction, typ)
	}
	if !targetType.Valid() {
		return fmt.Errorf("%w: unknown target type %q", ErrInvalidInteraction, targetType)
	}
	if targetID == "" {
		return fmt.Errorf("%w: empty target id", ErrInvalidInteraction)
	}

	// The append must not invent a profile: tracking against a missing
	// profile reports NotFound instead of silently creating state.
	if _, err := s.store.GetProfile(profileID); err != nil {
		return err
	}

	rec := storage.Interaction{
		ID:         uuid.New().String(),
		ProfileID:  profileID,
		Type:       string(typ),
		TargetID:   targetID,
		TargetType: string(targetType),
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.store.AppendInteraction(rec, MaxHistory); err != nil {
		return fmt.Errorf("appending interaction: %w", err)
	}
	return nil
}

// History returns the profile's full retained history in insertion order.
func (s *Service) History(profileID string) ([]Interaction, error) {
	recs, err := s.store.ListInteractions(profileID)
	if err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	out := make([]Interaction, 0, len(recs))
	for _, r := range recs {
		out = append(out, fromStored(r))
	}
	return out, nil
}

// RecentInteractions filters the retained history to entries within
// withinDays of now (default 30), preserving original order.
func (s *Service) RecentInteractions(profileID string, withinDays int) ([]Interaction, error) {
	if withinDays <= 0 {
		withinDays = DefaultRecentDays
	}
	all, err := s.History(profileID)
	if err != nil {
		return nil, err
	}

	cutoff := s.clock.Now().UTC().AddDate(0, 0, -withinDays)
	var recent []Interaction
	for _, i := range all {
		if !i.CreatedAt.Before(cutoff) {
			recent = append(recent, i)
		}
	}
	return recent, nil
}

func fromStored(r storage.Interaction) Interaction {
	return Interaction{
		ID:         r.ID,
		Type:       InteractionType(r.Type),
		TargetID:   r.TargetID,
		TargetType: TargetType(r.TargetType),
		CreatedAt:  r.CreatedAt,
	}
}

// decodePreferences tolerates malformed stored JSON by falling back to the
// zero value; a corrupt preference blob must not break scoring.
func decodePreferences(data string) Preferences {
	if data == "" {
		return Preferences{}
	}
	var p Preferences
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		slog.Warn("malformed stored preferences, treating as empty", "error", err)
		return Preferences{}
	}
	return p
}

func cleanTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
