package meditation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore backs tests and databaseless local runs.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]Meditation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Meditation)}
}

func (s *InMemoryStore) Create(_ context.Context, m Meditation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[m.ID] = cloneMeditation(m)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, userID, id string) (Meditation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.records[id]
	if !ok || m.UserID != userID {
		return Meditation{}, ErrNotFound
	}
	return cloneMeditation(m), nil
}

func (s *InMemoryStore) List(_ context.Context, userID string, limit int) ([]Meditation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Meditation, 0, len(s.records))
	for _, m := range s.records {
		if m.UserID == userID {
			out = append(out, cloneMeditation(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID, id string) (Meditation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.records[id]
	if !ok || m.UserID != userID {
		return Meditation{}, ErrNotFound
	}
	delete(s.records, id)
	return cloneMeditation(m), nil
}

func (s *InMemoryStore) RecordCompletion(_ context.Context, userID, id string, percent int, at time.Time) (Meditation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.records[id]
	if !ok || m.UserID != userID {
		return Meditation{}, ErrNotFound
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	completed := at
	m.CompletedAt = &completed
	m.CompletionPercent = percent
	s.records[id] = m
	return cloneMeditation(m), nil
}

func (s *InMemoryStore) MarkAudioRemoved(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.records[id]
	if !ok || m.AudioRemovedAt != nil {
		return false, nil
	}
	removed := at
	m.AudioStoragePath = nil
	m.Playlist = nil
	m.AudioRemovedAt = &removed
	s.records[id] = m
	return true, nil
}

func (s *InMemoryStore) Close() error { return nil }

func cloneMeditation(m Meditation) Meditation {
	out := m
	if m.Playlist != nil {
		out.Playlist = append([]TrackRef(nil), m.Playlist...)
	}
	if m.ExperienceIDs != nil {
		out.ExperienceIDs = append([]string(nil), m.ExperienceIDs...)
	}
	return out
}
