package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evahlis/sona/internal/observability"
	"github.com/evahlis/sona/internal/planner"
)

// Limiter gates job creation per user. The default is the in-memory sliding
// window in this package; tests inject their own.
type Limiter interface {
	Allow(userID string) bool
}

// Runner executes the generation pipeline for one claimed job and returns
// the resulting meditation id.
type Runner interface {
	Run(ctx context.Context, j Job) (meditationID string, err error)
}

type RunnerFunc func(ctx context.Context, j Job) (string, error)

func (f RunnerFunc) Run(ctx context.Context, j Job) (string, error) { return f(ctx, j) }

type CreateRequest struct {
	UserID          string
	ExperienceIDs   []string
	DurationMinutes int
	ReflectionType  string
	RangeStart      *time.Time
	RangeEnd        *time.Time
}

type ManagerOptions struct {
	MaxRetries        int
	TriggerDelay      time.Duration
	GenerationTimeout time.Duration
}

// Manager owns the queue lifecycle: validated rate-limited creation, the
// decoupled worker trigger, retries, and the event fan-out.
type Manager struct {
	store   Store
	runner  Runner
	limiter Limiter
	metrics *observability.Metrics
	opts    ManagerOptions
	now     func() time.Time

	mu          sync.Mutex
	subscribers map[string]map[int]chan Event
	nextSubID   int

	// schedule is swapped in tests to run triggers synchronously.
	schedule func(d time.Duration, fn func())
}

func NewManager(store Store, runner Runner, limiter Limiter, metrics *observability.Metrics, opts ManagerOptions) *Manager {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.TriggerDelay <= 0 {
		opts.TriggerDelay = 2 * time.Second
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 10 * time.Minute
	}
	if limiter == nil {
		limiter = NewRateLimiter(5, 15*time.Minute)
	}
	return &Manager{
		store:       store,
		runner:      runner,
		limiter:     limiter,
		metrics:     metrics,
		opts:        opts,
		now:         time.Now,
		subscribers: make(map[string]map[int]chan Event),
		schedule:    func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

func (m *Manager) MaxRetries() int { return m.opts.MaxRetries }

// Create validates and persists a pending job, then schedules the worker
// trigger after a short delay so the row is visible before any worker reads.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (Job, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return Job{}, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if len(req.ExperienceIDs) == 0 {
		return Job{}, fmt.Errorf("%w: experience_ids must not be empty", ErrInvalidRequest)
	}
	if req.DurationMinutes <= 0 {
		return Job{}, fmt.Errorf("%w: duration_minutes must be positive", ErrInvalidRequest)
	}
	if _, ok := planner.ParseFlavor(req.ReflectionType); !ok {
		return Job{}, fmt.Errorf("%w: unknown reflection_type %q", ErrInvalidRequest, req.ReflectionType)
	}

	if !m.limiter.Allow(req.UserID) {
		if m.metrics != nil {
			m.metrics.RateLimitRejects.Inc()
		}
		return Job{}, ErrRateLimited
	}

	now := m.now().UTC()
	j := Job{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		JobType:         JobTypeMeditation,
		Status:          StatusPending,
		ExperienceIDs:   req.ExperienceIDs,
		DurationMinutes: req.DurationMinutes,
		ReflectionType:  req.ReflectionType,
		RangeStart:      req.RangeStart,
		RangeEnd:        req.RangeEnd,
		CreatedAt:       now,
	}
	if err := m.store.Create(ctx, j); err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	m.observeTransition(ctx, StatusPending)
	m.publish(j.ID, Event{Type: EventJobQueued, JobID: j.ID, Status: StatusPending, At: now})

	m.schedule(m.opts.TriggerDelay, func() {
		if _, err := m.ProcessNext(context.Background()); err != nil {
			log.Printf("jobs: worker trigger: %v", err)
		}
	})
	return j, nil
}

func (m *Manager) Get(ctx context.Context, userID, id string) (Job, error) {
	return m.store.Get(ctx, userID, id)
}

func (m *Manager) Delete(ctx context.Context, userID, id string) error {
	return m.store.Delete(ctx, userID, id)
}

// Retry resets a failed job to pending and schedules another trigger.
func (m *Manager) Retry(ctx context.Context, userID, id string) (Job, error) {
	j, err := m.store.Retry(ctx, userID, id, m.opts.MaxRetries)
	if err != nil {
		return Job{}, err
	}
	m.observeTransition(ctx, StatusPending)
	m.publish(j.ID, Event{Type: EventJobQueued, JobID: j.ID, Status: StatusPending, RetryCount: j.RetryCount, At: m.now().UTC()})

	m.schedule(m.opts.TriggerDelay, func() {
		if _, err := m.ProcessNext(context.Background()); err != nil {
			log.Printf("jobs: worker trigger after retry: %v", err)
		}
	})
	return j, nil
}

// DrainPending processes pending jobs one at a time until the queue is
// empty. Run at startup to pick up jobs left behind by a previous run.
func (m *Manager) DrainPending(ctx context.Context) error {
	for {
		advanced, err := m.ProcessNext(ctx)
		if err != nil {
			return err
		}
		if !advanced {
			return nil
		}
	}
}

// ProcessNext advances at most one job: the oldest pending one, reporting
// whether a job was claimed and run. A claim miss means another trigger
// invocation holds the job already and is not an error.
func (m *Manager) ProcessNext(ctx context.Context) (bool, error) {
	j, err := m.store.OldestPending(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	now := m.now().UTC()
	claimed, err := m.store.Claim(ctx, j.ID, now)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}
	m.observeTransition(ctx, StatusProcessing)
	m.publish(j.ID, Event{Type: EventJobStarted, JobID: j.ID, Status: StatusProcessing, At: now})

	runCtx, cancel := context.WithTimeout(ctx, m.opts.GenerationTimeout)
	defer cancel()
	meditationID, runErr := m.runner.Run(runCtx, j)

	finished := m.now().UTC()
	if runErr != nil {
		log.Printf("jobs: generation failed for job %s: %v", j.ID, runErr)
		failed, failErr := m.store.MarkFailed(ctx, j.ID, runErr.Error(), finished)
		if failErr != nil {
			return true, fmt.Errorf("record job failure: %w", failErr)
		}
		m.observeTransition(ctx, StatusFailed)
		if m.metrics != nil {
			m.metrics.Generations.WithLabelValues("job", "failure").Inc()
		}
		m.publish(j.ID, Event{
			Type:       EventJobFailed,
			JobID:      j.ID,
			Status:     StatusFailed,
			Error:      failed.ErrorMessage,
			RetryCount: failed.RetryCount,
			At:         finished,
		})
		return true, nil
	}

	completed, err := m.store.MarkCompleted(ctx, j.ID, meditationID, finished)
	if err != nil {
		return true, fmt.Errorf("record job completion: %w", err)
	}
	m.observeTransition(ctx, StatusCompleted)
	if m.metrics != nil {
		m.metrics.Generations.WithLabelValues("job", "success").Inc()
	}
	m.publish(j.ID, Event{
		Type:         EventJobCompleted,
		JobID:        j.ID,
		Status:       StatusCompleted,
		MeditationID: meditationID,
		RetryCount:   completed.RetryCount,
		At:           finished,
	})
	return true, nil
}

// Subscribe streams state transitions for one job. The returned cancel func
// closes the channel and drops the subscription.
func (m *Manager) Subscribe(jobID string) (<-chan Event, func()) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, 64)
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	if _, ok := m.subscribers[jobID]; !ok {
		m.subscribers[jobID] = make(map[int]chan Event)
	}
	m.subscribers[jobID][id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subscribers[jobID]
		if subs == nil {
			return
		}
		if c, ok := subs[id]; ok {
			delete(subs, id)
			close(c)
		}
		if len(subs) == 0 {
			delete(m.subscribers, jobID)
		}
	}
}

func (m *Manager) publish(jobID string, evt Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers[jobID] {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (m *Manager) observeTransition(ctx context.Context, to Status) {
	if m.metrics == nil {
		return
	}
	m.metrics.JobTransitions.WithLabelValues(string(to)).Inc()
	if n, err := m.store.PendingCount(ctx); err == nil {
		m.metrics.PendingJobs.Set(float64(n))
	}
}
