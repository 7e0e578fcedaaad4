package experience

import (
	"context"
	"time"
)

// Record is one journaled experience. The planner treats the body as opaque
// text; kind distinguishes how it was captured.
type Record struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Body       string    `json:"body"`
	Kind       string    `json:"kind"` // spoken | photo | text
}

// Profile is the optional user context woven into the generation prompt.
type Profile struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Values       string `json:"values"`
	Mission      string `json:"mission"`
	CurrentFocus string `json:"current_focus"`
}

// Source reads experience records and profile context. The generation
// pipeline only ever reads; writes belong to the journaling service.
type Source interface {
	ExperiencesByIDs(ctx context.Context, userID string, ids []string) ([]Record, error)
	ProfileContext(ctx context.Context, userID string) (*Profile, error)
}
