// internal/game/game_store.go
package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxCodeAttempts bounds the search for an unused join code.
const maxCodeAttempts = 10

// GameStore indexes live games by id and by join code.
type GameStore struct {
	mu     sync.Mutex
	games  map[uuid.UUID]*Game
	byCode map[string]*Game
}

func NewGameStore() *GameStore {
	return &GameStore{
		games:  make(map[uuid.UUID]*Game),
		byCode: make(map[string]*Game),
	}
}

// AddGame stores g, drawing a new code if its code is already taken.
func (s *GameStore) AddGame(g *Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; ; i++ {
		if _, taken := s.byCode[g.Code]; !taken {
			break
		}
		if i >= maxCodeAttempts {
			return fmt.Errorf("failed to generate a unique game code")
		}
		g.Code = GenerateCode()
	}
	s.games[g.ID] = g
	s.byCode[g.Code] = g
	return nil
}

func (s *GameStore) GetGame(id uuid.UUID) (*Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	return g, ok
}

// GetGameByCode looks a game up by its join code, case-insensitively.
func (s *GameStore) GetGameByCode(code string) (*Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.byCode[NormalizeCode(code)]
	return g, ok
}

func (s *GameStore) DeleteGame(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.games[id]; ok {
		delete(s.byCode, g.Code)
		delete(s.games, id)
	}
}

// Expired lists games that ended more than endedTTL ago or have been idle for idleTTL,
// whatever their status.
func (s *GameStore) Expired(now time.Time, endedTTL, idleTTL time.Duration) []*Game {
	s.mu.Lock()
	games := make([]*Game, 0, len(s.games))
	for _, g := range s.games {
		games = append(games, g)
	}
	s.mu.Unlock()

	var out []*Game
	for _, g := range games {
		age := now.Sub(g.LastActivity())
		if (g.Ended() && age >= endedTTL) || age >= idleTTL {
			out = append(out, g)
		}
	}
	return out
}

// Len returns the number of stored games.
func (s *GameStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}
