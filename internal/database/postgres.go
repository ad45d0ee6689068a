package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pixelduel/gamecore/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS game_results (
	id                BIGSERIAL PRIMARY KEY,
	game_id           UUID NOT NULL,
	user_id           UUID NOT NULL REFERENCES users(id),
	level_reached     INT NOT NULL,
	correct_answers   INT NOT NULL,
	errors            INT NOT NULL,
	play_time_seconds INT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS game_results_user_level ON game_results (user_id, level_reached);
`

// PostgresStore persists guests and results with pgx.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// ConnectPostgres opens a pool for databaseURL, pings it and applies the schema.
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &PostgresStore{DB: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.DB.Close()
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.DB.Ping(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		u.ID = id
	}

	q := `INSERT INTO users (id, name) VALUES ($1, $2) RETURNING created_at`
	err := pgx.BeginTxFunc(ctx, s.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, q, u.ID, u.Name).Scan(&u.CreatedAt)
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, r *Result) error {
	q := `
		INSERT INTO game_results (game_id, user_id, level_reached, correct_answers, errors, play_time_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := s.DB.QueryRow(ctx, q,
		r.GameID, r.UserID,
		r.Stats.LevelReached, r.Stats.CorrectAnswers, r.Stats.Errors, r.Stats.PlayTimeSeconds,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert game result: %w", err)
	}
	return nil
}

func (s *PostgresStore) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	q := `
		WITH best AS (
			SELECT user_id, MAX(level_reached) AS max_level
			FROM game_results
			GROUP BY user_id
		)
		SELECT b.user_id, COALESCE(u.name, ''), b.max_level, MIN(r.created_at) AS first_achieved
		FROM best b
		JOIN game_results r ON r.user_id = b.user_id AND r.level_reached = b.max_level
		LEFT JOIN users u ON u.id = b.user_id
		GROUP BY b.user_id, u.name, b.max_level
		ORDER BY b.max_level DESC, first_achieved ASC
		LIMIT $1
	`
	rows, err := s.DB.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	out := []models.LeaderboardEntry{}
	for rows.Next() {
		var (
			id    uuid.UUID
			e     models.LeaderboardEntry
			first time.Time
		)
		if err := rows.Scan(&id, &e.Name, &e.MaxLevel, &first); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		e.UserID = id.String()
		e.FirstAchieved = first.UTC().Format(time.RFC3339)
		out = append(out, e)
	}
	return out, rows.Err()
}
