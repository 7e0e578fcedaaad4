package experience

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource reads experiences and profiles from the journaling schema.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// ExperiencesByIDs returns the caller's experiences matching ids, in the
// order they occurred. Ids belonging to other users are silently dropped.
func (s *PostgresSource) ExperiencesByIDs(ctx context.Context, userID string, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, occurred_at, body, kind
		   FROM experiences
		  WHERE user_id=$1 AND id = ANY($2)
		  ORDER BY occurred_at ASC`,
		userID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("query experiences: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, len(ids))
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.UserID, &r.OccurredAt, &r.Body, &r.Kind); err != nil {
			return nil, fmt.Errorf("scan experience row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate experience rows: %w", err)
	}
	return out, nil
}

// ProfileContext returns the user's profile context, or nil when none exists.
func (s *PostgresSource) ProfileContext(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, COALESCE(name,''), COALESCE(values_text,''), COALESCE(mission,''), COALESCE(current_focus,'')
		   FROM profiles WHERE user_id=$1`,
		userID,
	).Scan(&p.UserID, &p.Name, &p.Values, &p.Mission, &p.CurrentFocus)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &p, nil
}
