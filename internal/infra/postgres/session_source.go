package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"proctor-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SessionSource reads scheduled session JSONB rows from Postgres and writes
// them back for the admin reset affordance.
type SessionSource struct {
	pool *pgxpool.Pool
}

func NewSessionSource(pool *pgxpool.Pool) *SessionSource {
	return &SessionSource{pool: pool}
}

func (s *SessionSource) Sessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM exam_sessions`)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var session domain.Session
		if err := json.Unmarshal(raw, &session); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	return sessions, nil
}

func (s *SessionSource) PutSession(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO exam_sessions (id, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		session.ID, string(data))
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}
