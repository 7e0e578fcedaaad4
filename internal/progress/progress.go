// Package progress is the narrow interface to the streak/weekly-progress
// bookkeeping owned by another service. The pipeline only ever increments.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Row is the progress counter returned after an increment.
type Row struct {
	UserID          string    `json:"user_id"`
	Day             time.Time `json:"day"`
	MeditationCount int       `json:"meditation_count"`
}

// Tracker records that a meditation was completed. Called once per
// successful completion; the pipeline never reads progress back.
type Tracker interface {
	IncrementMeditationProgress(ctx context.Context, userID string, at time.Time) (Row, error)
}

type PostgresTracker struct {
	pool *pgxpool.Pool
}

func NewPostgresTracker(ctx context.Context, pool *pgxpool.Pool) (*PostgresTracker, error) {
	_, err := pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS meditation_progress (
			user_id TEXT NOT NULL,
			day DATE NOT NULL,
			meditation_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, day)
		);`)
	if err != nil {
		return nil, fmt.Errorf("init progress schema: %w", err)
	}
	return &PostgresTracker{pool: pool}, nil
}

func (t *PostgresTracker) IncrementMeditationProgress(ctx context.Context, userID string, at time.Time) (Row, error) {
	var row Row
	err := t.pool.QueryRow(ctx,
		`INSERT INTO meditation_progress (user_id, day, meditation_count)
		 VALUES ($1, $2::date, 1)
		 ON CONFLICT (user_id, day) DO UPDATE
		   SET meditation_count = meditation_progress.meditation_count + 1
		 RETURNING user_id, day, meditation_count`,
		userID, at.UTC(),
	).Scan(&row.UserID, &row.Day, &row.MeditationCount)
	if err != nil {
		return Row{}, fmt.Errorf("increment meditation progress: %w", err)
	}
	return row, nil
}

// NoopTracker is used when progress bookkeeping is not wired.
type NoopTracker struct{}

func (NoopTracker) IncrementMeditationProgress(_ context.Context, userID string, at time.Time) (Row, error) {
	return Row{UserID: userID, Day: at.UTC(), MeditationCount: 0}, nil
}
