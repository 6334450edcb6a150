package profile

import "time"

// MaxHistory caps a profile's retained interaction history. Appending past
// the cap evicts the oldest entries (a sliding window, not a queue).
const MaxHistory = 100

// DefaultRecentDays is the lookback window for RecentInteractions when the
// caller does not specify one.
const DefaultRecentDays = 30

// InteractionType classifies a user action worth learning from.
type InteractionType string

const (
	InteractionLike    InteractionType = "like"
	InteractionComment InteractionType = "comment"
	InteractionView    InteractionType = "view"
)

func (t InteractionType) Valid() bool {
	switch t {
	case InteractionLike, InteractionComment, InteractionView:
		return true
	}
	return false
}

// TargetType names the kind of entity an interaction points at.
type TargetType string

const (
	TargetPost    TargetType = "post"
	TargetCompany TargetType = "company"
	TargetProfile TargetType = "profile"
)

func (t TargetType) Valid() bool {
	switch t {
	case TargetPost, TargetCompany, TargetProfile:
		return true
	}
	return false
}

// Preferences holds a user's explicitly declared interests. Mutated only by
// the owning user via a whole-value replace; zero value means the user has
// not completed onboarding yet.
type Preferences struct {
	Industries          []string `json:"industries"`
	Skills              []string `json:"skills"`
	Companies           []string `json:"companies"`
	OnboardingCompleted bool     `json:"onboarding_completed"`
}

// Interaction is one recorded user action. Created once, never updated,
// evicted only by the history cap.
type Interaction struct {
	ID         string
	Type       InteractionType
	TargetID   string
	TargetType TargetType
	CreatedAt  time.Time
}

// Profile is the engine's view of a user: identity plus declared preferences.
type Profile struct {
	ID          string
	DisplayName string
	Preferences Preferences
}
