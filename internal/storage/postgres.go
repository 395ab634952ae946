package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/vtrack/internal/config"
	"github.com/your-org/vtrack/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EventRecord is a persisted track event.
type EventRecord struct {
	ID uuid.UUID `json:"id"`
	models.TrackEvent
	CreatedAt time.Time `json:"created_at"`
}

// EventMatch is an embedding-similarity search hit.
type EventMatch struct {
	EventRecord
	Score float32 `json:"score"`
}

// InsertTrackEvent persists one finalized track event.
func (s *PostgresStore) InsertTrackEvent(ctx context.Context, ev models.TrackEvent) (uuid.UUID, error) {
	id := uuid.New()

	var embedding any
	if len(ev.Embedding) > 0 {
		embedding = pgvector.NewVector(ev.Embedding)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO track_events
			(id, type, session_id, track_id, class, first_seen, last_seen,
			 frames, avg_speed, peak_speed, risk, behaviors, snapshot_key, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id, ev.Type, ev.SessionID, ev.TrackID, ev.Class, ev.FirstSeen, ev.LastSeen,
		ev.Frames, ev.AvgSpeed, ev.PeakSpeed, ev.Risk, ev.Behaviors, ev.SnapshotKey, embedding,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert track event: %w", err)
	}
	return id, nil
}

// GetEvent returns one event with its stored embedding, or nil when absent.
func (s *PostgresStore) GetEvent(ctx context.Context, id uuid.UUID) (*EventRecord, error) {
	var (
		e   EventRecord
		vec *pgvector.Vector
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, type, session_id, track_id, class, first_seen, last_seen,
		       frames, avg_speed, peak_speed, risk, behaviors, snapshot_key, embedding, created_at
		FROM track_events WHERE id = $1`, id,
	).Scan(&e.ID, &e.Type, &e.SessionID, &e.TrackID, &e.Class,
		&e.FirstSeen, &e.LastSeen, &e.Frames, &e.AvgSpeed, &e.PeakSpeed,
		&e.Risk, &e.Behaviors, &e.SnapshotKey, &vec, &e.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	if vec != nil {
		e.Embedding = vec.Slice()
	}
	return &e, nil
}

// DeleteEvent removes one event row, reporting whether it existed.
func (s *PostgresStore) DeleteEvent(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM track_events WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListEvents returns recent events, optionally filtered by session.
func (s *PostgresStore) ListEvents(ctx context.Context, sessionID string, since time.Time, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, type, session_id, track_id, class, first_seen, last_seen,
		       frames, avg_speed, peak_speed, risk, behaviors, snapshot_key, created_at
		FROM track_events
		WHERE created_at >= $1`
	args := []any{since}
	if sessionID != "" {
		query += ` AND session_id = $2`
		args = append(args, sessionID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.Type, &e.SessionID, &e.TrackID, &e.Class,
			&e.FirstSeen, &e.LastSeen, &e.Frames, &e.AvgSpeed, &e.PeakSpeed,
			&e.Risk, &e.Behaviors, &e.SnapshotKey, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SimilarEvents finds events whose appearance embedding is close to the
// given one, scored by cosine similarity.
func (s *PostgresStore) SimilarEvents(ctx context.Context, embedding []float32, threshold float64, limit int) ([]EventMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx, `
		SELECT id, type, session_id, track_id, class, first_seen, last_seen,
		       frames, avg_speed, peak_speed, risk, behaviors, snapshot_key, created_at,
		       1 - (embedding <=> $1) AS score
		FROM track_events
		WHERE embedding IS NOT NULL
		  AND 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		vec, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer rows.Close()

	var matches []EventMatch
	for rows.Next() {
		var m EventMatch
		if err := rows.Scan(&m.ID, &m.Type, &m.SessionID, &m.TrackID, &m.Class,
			&m.FirstSeen, &m.LastSeen, &m.Frames, &m.AvgSpeed, &m.PeakSpeed,
			&m.Risk, &m.Behaviors, &m.SnapshotKey, &m.CreatedAt, &m.Score); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
