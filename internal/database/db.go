package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pixelduel/gamecore/internal/models"
)

// Result is one finished game as reported by a player.
type Result struct {
	GameID    uuid.UUID
	UserID    uuid.UUID
	Stats     models.GameStats
	CreatedAt time.Time
}

// Store persists guests and results and ranks players.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	SaveResult(ctx context.Context, r *Result) error
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// DefaultLeaderboardLimit applies when the caller gives no positive limit.
const DefaultLeaderboardLimit = 10

// MemoryStore keeps everything in process.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[uuid.UUID]models.User
	results []Result
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[uuid.UUID]models.User)}
}

func (s *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		u.ID = id
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.mu.Lock()
	s.users[u.ID] = *u
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SaveResult(_ context.Context, r *Result) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.mu.Lock()
	s.results = append(s.results, *r)
	s.mu.Unlock()
	return nil
}

// Leaderboard ranks by best level, then by who reached it first.
func (s *MemoryStore) Leaderboard(_ context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	type best struct {
		level int
		at    time.Time
	}
	s.mu.Lock()
	bests := make(map[uuid.UUID]best)
	for _, r := range s.results {
		b, ok := bests[r.UserID]
		lvl := r.Stats.LevelReached
		if !ok || lvl > b.level || (lvl == b.level && r.CreatedAt.Before(b.at)) {
			bests[r.UserID] = best{level: lvl, at: r.CreatedAt}
		}
	}
	out := make([]models.LeaderboardEntry, 0, len(bests))
	at := make(map[string]time.Time, len(bests))
	for id, b := range bests {
		out = append(out, models.LeaderboardEntry{
			UserID:        id.String(),
			Name:          s.users[id].Name,
			MaxLevel:      b.level,
			FirstAchieved: b.at.UTC().Format(time.RFC3339),
		})
		at[id.String()] = b.at
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].MaxLevel != out[j].MaxLevel {
			return out[i].MaxLevel > out[j].MaxLevel
		}
		return at[out[i].UserID].Before(at[out[j].UserID])
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
