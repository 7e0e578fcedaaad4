package meditation

import (
	"context"
	"encoding/json"
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
		`CREATE TABLE IF NOT EXISTS meditations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			script TEXT NOT NULL,
			summary TEXT NOT NULL,
			playlist JSONB NOT NULL DEFAULT '[]',
			experience_ids TEXT[] NOT NULL DEFAULT '{}',
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ NULL,
			completion_percent INTEGER NOT NULL DEFAULT 0,
			audio_storage_path TEXT NULL,
			audio_expires_at TIMESTAMPTZ NULL,
			audio_removed_at TIMESTAMPTZ NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_meditations_user_created ON meditations (user_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_meditations_audio_expiry ON meditations (audio_expires_at) WHERE audio_storage_path IS NOT NULL;`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init meditation schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const meditationColumns = `id, user_id, title, script, summary, playlist, experience_ids,
	duration_seconds, created_at, completed_at, completion_percent,
	audio_storage_path, audio_expires_at, audio_removed_at`

func (s *PostgresStore) Create(ctx context.Context, m Meditation) error {
	playlist, err := json.Marshal(m.Playlist)
	if err != nil {
		return fmt.Errorf("marshal playlist: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO meditations (`+meditationColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		m.ID, m.UserID, m.Title, m.Script, m.Summary, playlist, m.ExperienceIDs,
		m.DurationSeconds, m.CreatedAt, m.CompletedAt, m.CompletionPercent,
		m.AudioStoragePath, m.AudioExpiresAt, m.AudioRemovedAt,
	)
	if err != nil {
		return fmt.Errorf("insert meditation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, id string) (Meditation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+meditationColumns+` FROM meditations WHERE id=$1 AND user_id=$2`,
		id, userID)
	m, err := scanMeditation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Meditation{}, ErrNotFound
		}
		return Meditation{}, fmt.Errorf("get meditation: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) List(ctx context.Context, userID string, limit int) ([]Meditation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+meditationColumns+` FROM meditations
		  WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list meditations: %w", err)
	}
	defer rows.Close()

	out := make([]Meditation, 0, limit)
	for rows.Next() {
		m, err := scanMeditation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meditation row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meditation rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id string) (Meditation, error) {
	row := s.pool.QueryRow(ctx,
		`DELETE FROM meditations WHERE id=$1 AND user_id=$2 RETURNING `+meditationColumns,
		id, userID)
	m, err := scanMeditation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Meditation{}, ErrNotFound
		}
		return Meditation{}, fmt.Errorf("delete meditation: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) RecordCompletion(ctx context.Context, userID, id string, percent int, at time.Time) (Meditation, error) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE meditations
		    SET completed_at=$3, completion_percent=$4
		  WHERE id=$1 AND user_id=$2
		 RETURNING `+meditationColumns,
		id, userID, at, percent)
	m, err := scanMeditation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Meditation{}, ErrNotFound
		}
		return Meditation{}, fmt.Errorf("record completion: %w", err)
	}
	return m, nil
}

// MarkAudioRemoved nulls the storage path, empties the playlist and stamps
// the removal exactly once. The WHERE guard makes repeated purges no-ops.
func (s *PostgresStore) MarkAudioRemoved(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE meditations
		    SET audio_storage_path=NULL, playlist='[]', audio_removed_at=$2
		  WHERE id=$1 AND audio_removed_at IS NULL`,
		id, at)
	if err != nil {
		return false, fmt.Errorf("mark audio removed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Close() error {
	return nil
}

func scanMeditation(row pgx.Row) (Meditation, error) {
	var (
		m        Meditation
		playlist []byte
	)
	if err := row.Scan(
		&m.ID, &m.UserID, &m.Title, &m.Script, &m.Summary, &playlist, &m.ExperienceIDs,
		&m.DurationSeconds, &m.CreatedAt, &m.CompletedAt, &m.CompletionPercent,
		&m.AudioStoragePath, &m.AudioExpiresAt, &m.AudioRemovedAt,
	); err != nil {
		return Meditation{}, err
	}
	if len(playlist) > 0 {
		if err := json.Unmarshal(playlist, &m.Playlist); err != nil {
			return Meditation{}, fmt.Errorf("decode playlist: %w", err)
		}
	}
	return m, nil
}
