// Package meditation holds the persisted meditation record and its audio
// availability lifecycle.
package meditation

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("meditation not found")

// TrackRef is one playlist entry. The playlist currently always holds a
// single continuous track; the slice shape is kept for wire compatibility.
type TrackRef struct {
	Kind        string `json:"kind"`
	StoragePath string `json:"storage_path"`
}

const TrackKindContinuous = "continuous"

// Meditation is the persisted generation result. AudioStoragePath and
// AudioExpiresAt are set together or not at all; once AudioRemovedAt is set
// the path is nulled and the playlist emptied.
type Meditation struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Title             string     `json:"title"`
	Script            string     `json:"script"`
	Summary           string     `json:"summary"`
	Playlist          []TrackRef `json:"playlist"`
	ExperienceIDs     []string   `json:"experience_ids"`
	DurationSeconds   int        `json:"duration_seconds"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CompletionPercent int        `json:"completion_percent"`
	AudioStoragePath  *string    `json:"audio_storage_path,omitempty"`
	AudioExpiresAt    *time.Time `json:"audio_expires_at,omitempty"`
	AudioRemovedAt    *time.Time `json:"audio_removed_at,omitempty"`
}

// Store persists meditation records. All reads and owner-initiated writes
// are scoped by user so records never leak across owners.
type Store interface {
	Create(ctx context.Context, m Meditation) error
	Get(ctx context.Context, userID, id string) (Meditation, error)
	List(ctx context.Context, userID string, limit int) ([]Meditation, error)
	Delete(ctx context.Context, userID, id string) (Meditation, error)
	RecordCompletion(ctx context.Context, userID, id string, percent int, at time.Time) (Meditation, error)
	MarkAudioRemoved(ctx context.Context, id string, at time.Time) (bool, error)
	Close() error
}
