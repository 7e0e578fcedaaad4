package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type allowAll struct{}

func (allowAll) Allow(string) bool { return true }

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

// newTestManager runs the worker trigger inline so tests need no sleeps.
func newTestManager(t *testing.T, runner Runner, limiter Limiter) (*Manager, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	m := NewManager(store, runner, limiter, nil, ManagerOptions{MaxRetries: 3})
	m.schedule = func(_ time.Duration, fn func()) { fn() }
	return m, store
}

func validRequest() CreateRequest {
	return CreateRequest{
		UserID:          "u1",
		ExperienceIDs:   []string{"e1", "e2"},
		DurationMinutes: 10,
		ReflectionType:  "night",
	}
}

func TestCreateRunsJobToCompletion(t *testing.T) {
	runner := RunnerFunc(func(_ context.Context, j Job) (string, error) {
		return "med-1", nil
	})
	m, _ := newTestManager(t, runner, allowAll{})

	j, err := m.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := m.Get(context.Background(), "u1", j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("Status = %q, want %q", got.Status, StatusCompleted)
	}
	if got.MeditationID == nil || *got.MeditationID != "med-1" {
		t.Fatalf("MeditationID = %v, want med-1", got.MeditationID)
	}
	if got.CompletedAt == nil {
		t.Fatal("CompletedAt = nil, want stamped")
	}
}

func TestCreateRateLimitedWritesNoRow(t *testing.T) {
	m, store := newTestManager(t, RunnerFunc(func(context.Context, Job) (string, error) {
		return "", nil
	}), denyAll{})

	_, err := m.Create(context.Background(), validRequest())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if n, _ := store.PendingCount(context.Background()); n != 0 {
		t.Fatalf("pending jobs = %d, want 0", n)
	}
}

func TestCreateValidation(t *testing.T) {
	m, _ := newTestManager(t, RunnerFunc(func(context.Context, Job) (string, error) {
		return "", nil
	}), allowAll{})

	cases := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"missing user", func(r *CreateRequest) { r.UserID = "" }},
		{"empty experiences", func(r *CreateRequest) { r.ExperienceIDs = nil }},
		{"zero duration", func(r *CreateRequest) { r.DurationMinutes = 0 }},
		{"unknown reflection type", func(r *CreateRequest) { r.ReflectionType = "afternoon" }},
	}
	for _, tc := range cases {
		req := validRequest()
		tc.mutate(&req)
		if _, err := m.Create(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%s: err = %v, want ErrInvalidRequest", tc.name, err)
		}
	}
}

type failingCreateStore struct {
	*InMemoryStore
	createErr error
}

func (s *failingCreateStore) Create(context.Context, Job) error { return s.createErr }

func TestCreateStoreFailureIsNotValidationError(t *testing.T) {
	store := &failingCreateStore{
		InMemoryStore: NewInMemoryStore(),
		createErr:     errors.New("connection refused"),
	}
	m := NewManager(store, RunnerFunc(func(context.Context, Job) (string, error) {
		return "", nil
	}), allowAll{}, nil, ManagerOptions{})
	m.schedule = func(_ time.Duration, fn func()) {}

	_, err := m.Create(context.Background(), validRequest())
	if err == nil {
		t.Fatal("Create succeeded, want store error")
	}
	if errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, must not satisfy ErrInvalidRequest", err)
	}
	if !errors.Is(err, store.createErr) {
		t.Fatalf("err = %v, want wrapped store failure", err)
	}
}

func TestFailedJobRecordsTruncatedError(t *testing.T) {
	longErr := strings.Repeat("x", 900)
	runner := RunnerFunc(func(context.Context, Job) (string, error) {
		return "", errors.New(longErr)
	})
	m, _ := newTestManager(t, runner, allowAll{})

	j, err := m.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := m.Get(context.Background(), "u1", j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("Status = %q, want %q", got.Status, StatusFailed)
	}
	if len(got.ErrorMessage) != maxErrorMessageLen {
		t.Fatalf("error message length = %d, want %d", len(got.ErrorMessage), maxErrorMessageLen)
	}
}

func TestRetryCapRejectsFourthAttempt(t *testing.T) {
	runner := RunnerFunc(func(context.Context, Job) (string, error) {
		return "", errors.New("provider down")
	})
	m, _ := newTestManager(t, runner, allowAll{})

	j, err := m.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 1; i <= 3; i++ {
		retried, err := m.Retry(context.Background(), "u1", j.ID)
		if err != nil {
			t.Fatalf("retry %d: %v", i, err)
		}
		if retried.RetryCount != i {
			t.Fatalf("retry %d: RetryCount = %d, want %d", i, retried.RetryCount, i)
		}
	}

	_, err = m.Retry(context.Background(), "u1", j.ID)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("fourth retry err = %v, want ErrRetryExhausted", err)
	}
}

func TestRetryRejectsNonFailedJob(t *testing.T) {
	runner := RunnerFunc(func(context.Context, Job) (string, error) {
		return "med-1", nil
	})
	m, _ := newTestManager(t, runner, allowAll{})

	j, err := m.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = m.Retry(context.Background(), "u1", j.ID)
	if !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("retry of completed job err = %v, want ErrNotRetryable", err)
	}
}

func TestDeleteRejectedWhileProcessing(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	runner := RunnerFunc(func(_ context.Context, j Job) (string, error) {
		close(started)
		<-release
		return "med-1", nil
	})
	store := NewInMemoryStore()
	m := NewManager(store, runner, allowAll{}, nil, ManagerOptions{MaxRetries: 3})
	m.schedule = func(_ time.Duration, fn func()) { go fn() }

	j, err := m.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	<-started

	if err := m.Delete(context.Background(), "u1", j.ID); !errors.Is(err, ErrJobProcessing) {
		t.Fatalf("Delete of processing job err = %v, want ErrJobProcessing", err)
	}
	close(release)
}

func TestOwnershipReportedAsNotFound(t *testing.T) {
	runner := RunnerFunc(func(context.Context, Job) (string, error) {
		return "med-1", nil
	})
	m, _ := newTestManager(t, runner, allowAll{})

	j, err := m.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Get(context.Background(), "someone-else", j.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-user Get err = %v, want ErrNotFound", err)
	}
}

func TestClaimMissIsNotAnError(t *testing.T) {
	store := NewInMemoryStore()
	j := Job{ID: "j1", UserID: "u1", JobType: JobTypeMeditation, Status: StatusPending, CreatedAt: time.Now().UTC()}
	if err := store.Create(context.Background(), j); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Another worker grabs it between the pending read and the claim.
	if ok, _ := store.Claim(context.Background(), "j1", time.Now().UTC()); !ok {
		t.Fatal("first claim refused")
	}

	m := NewManager(store, RunnerFunc(func(context.Context, Job) (string, error) {
		t.Fatal("runner invoked for already-claimed job")
		return "", nil
	}), allowAll{}, nil, ManagerOptions{})

	advanced, err := m.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("ProcessNext after external claim: %v", err)
	}
	if advanced {
		t.Fatal("ProcessNext advanced = true, want false for claim miss")
	}
}

func TestDrainPendingRunsAllLeftoverJobs(t *testing.T) {
	store := NewInMemoryStore()
	base := time.Now().UTC()
	for i, id := range []string{"j1", "j2"} {
		j := Job{
			ID:              id,
			UserID:          "u1",
			JobType:         JobTypeMeditation,
			Status:          StatusPending,
			ExperienceIDs:   []string{"e1"},
			DurationMinutes: 5,
			ReflectionType:  "day",
			CreatedAt:       base.Add(time.Duration(i) * time.Second),
		}
		if err := store.Create(context.Background(), j); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	var ran []string
	runner := RunnerFunc(func(_ context.Context, j Job) (string, error) {
		ran = append(ran, j.ID)
		return "med-" + j.ID, nil
	})
	m := NewManager(store, runner, allowAll{}, nil, ManagerOptions{})

	if err := m.DrainPending(context.Background()); err != nil {
		t.Fatalf("DrainPending: %v", err)
	}
	if len(ran) != 2 || ran[0] != "j1" || ran[1] != "j2" {
		t.Fatalf("ran = %v, want [j1 j2] oldest first", ran)
	}
	if n, err := store.PendingCount(context.Background()); err != nil || n != 0 {
		t.Fatalf("PendingCount = %d, %v, want 0", n, err)
	}
	for _, id := range []string{"j1", "j2"} {
		j, err := store.Get(context.Background(), "u1", id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if j.Status != StatusCompleted {
			t.Fatalf("job %s status = %s, want completed", id, j.Status)
		}
	}
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	runner := RunnerFunc(func(context.Context, Job) (string, error) {
		return "med-1", nil
	})
	store := NewInMemoryStore()
	m := NewManager(store, runner, allowAll{}, nil, ManagerOptions{})

	var trigger func()
	m.schedule = func(_ time.Duration, fn func()) { trigger = fn }

	j, err := m.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ch, cancel := m.Subscribe(j.ID)
	defer cancel()
	trigger()

	var types []string
	for len(types) < 2 {
		select {
		case evt := <-ch:
			types = append(types, evt.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for events, got %v", types)
		}
	}
	if types[0] != EventJobStarted || types[1] != EventJobCompleted {
		t.Fatalf("event order = %v, want [started completed]", types)
	}
}
