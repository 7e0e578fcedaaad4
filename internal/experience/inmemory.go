package experience

import (
	"context"
	"sync"
)

// InMemorySource serves seeded records. Used when no database is configured,
// so a local instance can exercise the whole pipeline.
type InMemorySource struct {
	mu       sync.RWMutex
	records  map[string]Record
	profiles map[string]Profile
}

func NewInMemorySource() *InMemorySource {
	return &InMemorySource{
		records:  make(map[string]Record),
		profiles: make(map[string]Profile),
	}
}

func (s *InMemorySource) AddRecord(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
}

func (s *InMemorySource) SetProfile(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

func (s *InMemorySource) ExperiencesByIDs(_ context.Context, userID string, ids []string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		r, ok := s.records[id]
		if !ok || r.UserID != userID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *InMemorySource) ProfileContext(_ context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
