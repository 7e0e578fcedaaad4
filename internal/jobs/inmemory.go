package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps jobs in a map. Used in tests and when no database is
// configured.
type InMemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{jobs: make(map[string]Job)}
}

func (s *InMemoryStore) Create(_ context.Context, j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, userID, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok || j.UserID != userID {
		return Job{}, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *InMemoryStore) OldestPending(_ context.Context) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending := make([]Job, 0)
	for _, j := range s.jobs {
		if j.Status == StatusPending {
			pending = append(pending, j)
		}
	}
	if len(pending) == 0 {
		return Job{}, ErrNotFound
	}
	sort.Slice(pending, func(i, k int) bool {
		return pending[i].CreatedAt.Before(pending[k].CreatedAt)
	})
	return pending[0].Clone(), nil
}

func (s *InMemoryStore) Claim(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != StatusPending {
		return false, nil
	}
	j.Status = StatusProcessing
	j.StartedAt = &at
	s.jobs[id] = j
	return true, nil
}

func (s *InMemoryStore) MarkCompleted(_ context.Context, id, meditationID string, at time.Time) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	j.Status = StatusCompleted
	j.MeditationID = &meditationID
	j.CompletedAt = &at
	j.ErrorMessage = ""
	s.jobs[id] = j
	return j.Clone(), nil
}

func (s *InMemoryStore) MarkFailed(_ context.Context, id, errorMessage string, at time.Time) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	j.Status = StatusFailed
	j.ErrorMessage = truncateError(errorMessage)
	j.CompletedAt = &at
	s.jobs[id] = j
	return j.Clone(), nil
}

func (s *InMemoryStore) Retry(_ context.Context, userID, id string, maxRetries int) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.UserID != userID {
		return Job{}, ErrNotFound
	}
	if j.Status != StatusFailed {
		return Job{}, ErrNotRetryable
	}
	if j.RetryCount >= maxRetries {
		return Job{}, ErrRetryExhausted
	}
	j.Status = StatusPending
	j.RetryCount++
	j.ErrorMessage = ""
	j.StartedAt = nil
	j.CompletedAt = nil
	j.MeditationID = nil
	s.jobs[id] = j
	return j.Clone(), nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.UserID != userID {
		return ErrNotFound
	}
	if j.Status == StatusProcessing {
		return ErrJobProcessing
	}
	delete(s.jobs, id)
	return nil
}

func (s *InMemoryStore) PendingCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Close() error { return nil }
