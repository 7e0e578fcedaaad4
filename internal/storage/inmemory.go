package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// InMemoryStore backs tests and keyless local runs.
type InMemoryStore struct {
	mu      sync.Mutex
	objects map[string]memObject

	UploadErr error
	SignErr   error
}

type memObject struct {
	data        []byte
	contentType string
	updatedAt   time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{objects: make(map[string]memObject)}
}

func (s *InMemoryStore) Upload(_ context.Context, path string, data []byte, contentType string) error {
	if s.UploadErr != nil {
		return s.UploadErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[path] = memObject{data: cp, contentType: contentType, updatedAt: time.Now().UTC()}
	return nil
}

func (s *InMemoryStore) Remove(_ context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		delete(s.objects, p)
	}
	return nil
}

func (s *InMemoryStore) CreateSignedURL(_ context.Context, path string, ttlSeconds int) (string, error) {
	if s.SignErr != nil {
		return "", s.SignErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; !ok {
		return "", fmt.Errorf("object %q not found", path)
	}
	return fmt.Sprintf("memory://%s?expires_in=%d", path, ttlSeconds), nil
}

func (s *InMemoryStore) List(_ context.Context, prefix string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.objects))
	for path, obj := range s.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, Entry{Path: path, Size: int64(len(obj.data)), UpdatedAt: obj.updatedAt})
		}
	}
	return out, nil
}

// Has reports whether an object exists, for test assertions.
func (s *InMemoryStore) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path]
	return ok
}
