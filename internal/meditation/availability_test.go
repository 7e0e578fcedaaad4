package meditation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/evahlis/sona/internal/storage"
)

func seedMeditation(t *testing.T, store *InMemoryStore, objects *storage.InMemoryStore, expiresAt time.Time) Meditation {
	t.Helper()
	ctx := context.Background()
	path := "u1/m1/audio.mp3"
	if err := objects.Upload(ctx, path, []byte("audio"), "audio/mpeg"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	m := Meditation{
		ID:               "m1",
		UserID:           "u1",
		Title:            "Evening Ease",
		Script:           "Breathe. [PAUSE=5s] Rest.",
		Summary:          "A settling close.",
		Playlist:         []TrackRef{{Kind: TrackKindContinuous, StoragePath: path}},
		DurationSeconds:  300,
		CreatedAt:        time.Now().UTC().Add(-time.Hour),
		AudioStoragePath: &path,
		AudioExpiresAt:   &expiresAt,
	}
	if err := store.Create(ctx, m); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return m
}

func TestResolveLiveIssuesCappedSignedURL(t *testing.T) {
	store := NewInMemoryStore()
	objects := storage.NewInMemoryStore()
	m := seedMeditation(t, store, objects, time.Now().UTC().Add(10*time.Hour))

	a := NewAvailability(store, objects, time.Hour)
	resolved, err := a.Resolve(context.Background(), m)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Status != AudioLive {
		t.Fatalf("Status = %q, want %q", resolved.Status, AudioLive)
	}
	// Remaining lifetime is 10h but the signed URL must be capped at 1h.
	if !strings.Contains(resolved.PlaybackURL, "expires_in=3600") {
		t.Fatalf("PlaybackURL = %q, want ttl capped at 3600s", resolved.PlaybackURL)
	}
}

func TestResolveShortRemainingLifetimeBoundsTTL(t *testing.T) {
	store := NewInMemoryStore()
	objects := storage.NewInMemoryStore()
	m := seedMeditation(t, store, objects, time.Now().UTC().Add(10*time.Minute))

	a := NewAvailability(store, objects, time.Hour)
	resolved, err := a.Resolve(context.Background(), m)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Status != AudioLive {
		t.Fatalf("Status = %q, want %q", resolved.Status, AudioLive)
	}
	if strings.Contains(resolved.PlaybackURL, "expires_in=3600") {
		t.Fatalf("PlaybackURL = %q, ttl must not exceed remaining lifetime", resolved.PlaybackURL)
	}
}

func TestResolveExpiredPurgesOnce(t *testing.T) {
	store := NewInMemoryStore()
	objects := storage.NewInMemoryStore()
	m := seedMeditation(t, store, objects, time.Now().UTC().Add(-time.Minute))

	purges := 0
	a := NewAvailability(store, objects, time.Hour)
	a.SetPurgeHook(func() { purges++ })

	ctx := context.Background()
	resolved, err := a.Resolve(ctx, m)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Status != AudioGone {
		t.Fatalf("Status = %q, want %q", resolved.Status, AudioGone)
	}
	if objects.Has("u1/m1/audio.mp3") {
		t.Fatalf("expired object still in storage after purge")
	}

	after, err := store.Get(ctx, "u1", "m1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if after.AudioStoragePath != nil {
		t.Fatalf("AudioStoragePath = %v, want nil after purge", *after.AudioStoragePath)
	}
	if after.AudioRemovedAt == nil {
		t.Fatalf("AudioRemovedAt = nil, want set")
	}
	if len(after.Playlist) != 0 {
		t.Fatalf("Playlist len = %d, want 0", len(after.Playlist))
	}

	// A second read must be idempotent: still gone, no second purge.
	resolved, err = a.Resolve(ctx, after)
	if err != nil {
		t.Fatalf("Resolve() second error = %v", err)
	}
	if resolved.Status != AudioGone {
		t.Fatalf("second Status = %q, want %q", resolved.Status, AudioGone)
	}
	if purges != 1 {
		t.Fatalf("purge hook fired %d times, want 1", purges)
	}
}

func TestResolveSharedAssetIsNotDeleted(t *testing.T) {
	store := NewInMemoryStore()
	objects := storage.NewInMemoryStore()
	ctx := context.Background()

	path := "shared/default-track.mp3"
	if err := objects.Upload(ctx, path, []byte("audio"), "audio/mpeg"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	expired := time.Now().UTC().Add(-time.Minute)
	m := Meditation{
		ID: "m2", UserID: "u1", CreatedAt: time.Now().UTC(),
		AudioStoragePath: &path, AudioExpiresAt: &expired,
	}
	if err := store.Create(ctx, m); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	a := NewAvailability(store, objects, time.Hour)
	resolved, err := a.Resolve(ctx, m)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Status != AudioGone {
		t.Fatalf("Status = %q, want %q", resolved.Status, AudioGone)
	}
	if !objects.Has(path) {
		t.Fatalf("shared asset deleted by purge")
	}
}

func TestResolveTextOnlyMeditation(t *testing.T) {
	store := NewInMemoryStore()
	a := NewAvailability(store, storage.NewInMemoryStore(), time.Hour)
	resolved, err := a.Resolve(context.Background(), Meditation{ID: "m3", UserID: "u1"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.Status != AudioNone {
		t.Fatalf("Status = %q, want %q", resolved.Status, AudioNone)
	}
}
