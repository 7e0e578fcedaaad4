package meditation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/evahlis/sona/internal/storage"
)

// AudioStatus is the availability outcome of a read.
type AudioStatus string

const (
	// AudioLive means a fresh signed URL was issued.
	AudioLive AudioStatus = "live"
	// AudioGone means the availability window lapsed; terminal, not retryable.
	AudioGone AudioStatus = "gone"
	// AudioNone means the meditation was generated without audio, text only.
	AudioNone AudioStatus = "none"
)

// sharedAssetPrefix marks storage objects referenced by multiple records;
// the purge must never delete those.
const sharedAssetPrefix = "shared/"

// ResolvedAudio is the caller-facing playback state computed on every read.
type ResolvedAudio struct {
	Status      AudioStatus
	PlaybackURL string
	ExpiresAt   *time.Time
}

// PurgeHook observes lazy purges, for metrics.
type PurgeHook func()

// Availability recomputes playback state per read and lazily purges
// artifacts whose window lapsed.
type Availability struct {
	store     Store
	objects   storage.ObjectStore
	maxTTL    time.Duration
	now       func() time.Time
	purgeHook PurgeHook
}

func NewAvailability(store Store, objects storage.ObjectStore, maxTTL time.Duration) *Availability {
	if maxTTL <= 0 {
		maxTTL = time.Hour
	}
	return &Availability{
		store:   store,
		objects: objects,
		maxTTL:  maxTTL,
		now:     time.Now,
	}
}

func (a *Availability) SetPurgeHook(hook PurgeHook) {
	a.purgeHook = hook
}

// Resolve computes the audio state of a meditation. A live artifact gets a
// signed URL scoped to the remaining lifetime, capped at maxTTL. An expired
// artifact is purged on first read and reported gone from then on.
func (a *Availability) Resolve(ctx context.Context, m Meditation) (ResolvedAudio, error) {
	if m.AudioRemovedAt != nil {
		return ResolvedAudio{Status: AudioGone}, nil
	}
	if m.AudioStoragePath == nil || m.AudioExpiresAt == nil {
		// Never had audio, or the record predates the expiry bookkeeping.
		if m.AudioStoragePath != nil {
			return a.purge(ctx, m)
		}
		return ResolvedAudio{Status: AudioNone}, nil
	}

	now := a.now()
	if !m.AudioExpiresAt.After(now) {
		return a.purge(ctx, m)
	}

	remaining := m.AudioExpiresAt.Sub(now)
	ttl := remaining
	if ttl > a.maxTTL {
		ttl = a.maxTTL
	}
	ttlSeconds := int(ttl.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	url, err := a.objects.CreateSignedURL(ctx, *m.AudioStoragePath, ttlSeconds)
	if err != nil {
		return ResolvedAudio{}, fmt.Errorf("sign playback url: %w", err)
	}
	return ResolvedAudio{Status: AudioLive, PlaybackURL: url, ExpiresAt: m.AudioExpiresAt}, nil
}

func (a *Availability) purge(ctx context.Context, m Meditation) (ResolvedAudio, error) {
	path := *m.AudioStoragePath
	if !strings.HasPrefix(path, sharedAssetPrefix) {
		if err := a.objects.Remove(ctx, []string{path}); err != nil {
			// The record is still marked removed; a bulk sweep can reclaim
			// the orphaned object later.
			log.Printf("availability: purge of %s failed: %v", path, err)
		}
	}
	purged, err := a.store.MarkAudioRemoved(ctx, m.ID, a.now())
	if err != nil {
		return ResolvedAudio{}, fmt.Errorf("mark audio removed: %w", err)
	}
	if purged && a.purgeHook != nil {
		a.purgeHook()
	}
	return ResolvedAudio{Status: AudioGone}, nil
}
