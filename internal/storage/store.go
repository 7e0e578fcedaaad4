// Package storage abstracts the durable object store holding generated
// meditation audio.
package storage

import (
	"context"
	"time"
)

// Entry describes one stored object, used for bulk cleanup listings.
type Entry struct {
	Path      string
	Size      int64
	UpdatedAt time.Time
}

// ObjectStore is the narrow contract the pipeline needs from durable
// storage. Signed URLs embed authorization and expire after ttlSeconds.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Remove(ctx context.Context, paths []string) error
	CreateSignedURL(ctx context.Context, path string, ttlSeconds int) (string, error)
	List(ctx context.Context, prefix string) ([]Entry, error)
}
