package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if err := initSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS generation_jobs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			job_type TEXT NOT NULL,
			status TEXT NOT NULL,
			experience_ids TEXT[] NOT NULL DEFAULT '{}',
			duration_minutes INTEGER NOT NULL,
			reflection_type TEXT NOT NULL,
			range_start TIMESTAMPTZ NULL,
			range_end TIMESTAMPTZ NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			meditation_id TEXT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ NULL,
			completed_at TIMESTAMPTZ NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generation_jobs_user_created ON generation_jobs (user_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_generation_jobs_pending ON generation_jobs (created_at) WHERE status = 'pending';`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init jobs schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const jobColumns = `id, user_id, job_type, status, experience_ids, duration_minutes,
	reflection_type, range_start, range_end, retry_count, meditation_id,
	error_message, created_at, started_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, j Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO generation_jobs (`+jobColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		j.ID, j.UserID, j.JobType, j.Status, j.ExperienceIDs, j.DurationMinutes,
		j.ReflectionType, j.RangeStart, j.RangeEnd, j.RetryCount, j.MeditationID,
		j.ErrorMessage, j.CreatedAt, j.StartedAt, j.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, id string) (Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE id=$1 AND user_id=$2`,
		id, userID)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) OldestPending(ctx context.Context) (Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs
		  WHERE status=$1 ORDER BY created_at ASC LIMIT 1`,
		StatusPending)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("oldest pending job: %w", err)
	}
	return j, nil
}

// Claim flips pending to processing in one conditional update so concurrent
// triggers can never both run the same job.
func (s *PostgresStore) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE generation_jobs SET status=$2, started_at=$3
		  WHERE id=$1 AND status=$4`,
		id, StatusProcessing, at, StatusPending)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, id, meditationID string, at time.Time) (Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE generation_jobs
		    SET status=$2, meditation_id=$3, completed_at=$4, error_message=''
		  WHERE id=$1
		 RETURNING `+jobColumns,
		id, StatusCompleted, meditationID, at)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("mark job completed: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id, errorMessage string, at time.Time) (Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE generation_jobs
		    SET status=$2, error_message=$3, completed_at=$4
		  WHERE id=$1
		 RETURNING `+jobColumns,
		id, StatusFailed, truncateError(errorMessage), at)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("mark job failed: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) Retry(ctx context.Context, userID, id string, maxRetries int) (Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE generation_jobs
		    SET status=$3, retry_count=retry_count+1, error_message='',
		        started_at=NULL, completed_at=NULL, meditation_id=NULL
		  WHERE id=$1 AND user_id=$2 AND status=$4 AND retry_count < $5
		 RETURNING `+jobColumns,
		id, userID, StatusPending, StatusFailed, maxRetries)
	j, err := scanJob(row)
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Job{}, fmt.Errorf("retry job: %w", err)
	}

	// Distinguish why the conditional update missed.
	existing, getErr := s.Get(ctx, userID, id)
	if getErr != nil {
		return Job{}, getErr
	}
	if existing.Status != StatusFailed {
		return Job{}, ErrNotRetryable
	}
	return Job{}, ErrRetryExhausted
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM generation_jobs
		  WHERE id=$1 AND user_id=$2 AND status <> $3`,
		id, userID, StatusProcessing)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, getErr := s.Get(ctx, userID, id); getErr != nil {
		return getErr
	}
	return ErrJobProcessing
}

func (s *PostgresStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM generation_jobs WHERE status=$1`, StatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	return nil
}

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	if err := row.Scan(
		&j.ID, &j.UserID, &j.JobType, &j.Status, &j.ExperienceIDs, &j.DurationMinutes,
		&j.ReflectionType, &j.RangeStart, &j.RangeEnd, &j.RetryCount, &j.MeditationID,
		&j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	); err != nil {
		return Job{}, err
	}
	return j, nil
}
