// internal/game/queue.go
package game

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list holding waiting players.
const DefaultQueueKey = "pixelduel:queue"

// WaitingList is the ordered set of players waiting for an opponent.
type WaitingList interface {
	// Enqueue adds userID at the tail. Adding a waiting player again is a no-op.
	Enqueue(ctx context.Context, userID uuid.UUID) error
	// Remove drops userID if present.
	Remove(ctx context.Context, userID uuid.UUID) error
	// TakeOpponent removes and returns the longest waiting player other than userID.
	TakeOpponent(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error)
}

// MemoryQueue is a process-local WaitingList.
type MemoryQueue struct {
	mu      sync.Mutex
	waiting []uuid.UUID
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, userID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.waiting {
		if id == userID {
			return nil
		}
	}
	q.waiting = append(q.waiting, userID)
	return nil
}

func (q *MemoryQueue) Remove(_ context.Context, userID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, id := range q.waiting {
		if id == userID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) TakeOpponent(_ context.Context, userID uuid.UUID) (uuid.UUID, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, id := range q.waiting {
		if id != userID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

// RedisQueue keeps the waiting list in a Redis list so it survives an authority restart.
// Pairings and games stay in the process that made them, so one authority instance serves a
// given queue key.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, userID uuid.UUID) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.key, 0, userID.String())
		p.RPush(ctx, q.key, userID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", userID, err)
	}
	return nil
}

func (q *RedisQueue) Remove(ctx context.Context, userID uuid.UUID) error {
	if err := q.rdb.LRem(ctx, q.key, 0, userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove %s from queue: %w", userID, err)
	}
	return nil
}

// TakeOpponent claims a candidate with LREM; only the caller whose LREM removed the entry
// gets the match, so concurrent takers never share an opponent.
func (q *RedisQueue) TakeOpponent(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error) {
	waiting, err := q.rdb.LRange(ctx, q.key, 0, -1).Result()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to read queue: %w", err)
	}
	for _, raw := range waiting {
		if raw == userID.String() {
			continue
		}
		n, err := q.rdb.LRem(ctx, q.key, 1, raw).Result()
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("failed to claim opponent: %w", err)
		}
		if n == 0 {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		return id, true, nil
	}
	return uuid.Nil, false, nil
}

// Matchmaker pairs queued players into pvp games. Pairing is serialized within the process:
// joins, polls and leaves hold one lock across their waiting list calls.
type Matchmaker struct {
	store         *GameStore
	list          WaitingList
	gridSize      int
	pixelsToPlace int

	mu      sync.Mutex
	waiting map[uuid.UUID]struct{}
	matched map[uuid.UUID]uuid.UUID // waiting user -> game found for them
}

func NewMatchmaker(store *GameStore, list WaitingList, gridSize, pixelsToPlace int) *Matchmaker {
	return &Matchmaker{
		store:         store,
		list:          list,
		gridSize:      gridSize,
		pixelsToPlace: pixelsToPlace,
		waiting:       make(map[uuid.UUID]struct{}),
		matched:       make(map[uuid.UUID]uuid.UUID),
	}
}

// Join pairs userID with the longest waiting player, or queues userID when nobody waits.
// The earlier player takes the first seat.
func (m *Matchmaker) Join(ctx context.Context, userID uuid.UUID) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g := m.claim(userID); g != nil {
		return g, nil
	}
	g, err := m.pair(ctx, userID)
	if err != nil || g != nil {
		return g, err
	}
	if err := m.list.Enqueue(ctx, userID); err != nil {
		return nil, err
	}
	m.waiting[userID] = struct{}{}
	return nil, nil
}

// Poll returns the game found for a waiting player, once. A waiting player nobody picked up
// yet gets another pairing attempt.
func (m *Matchmaker) Poll(ctx context.Context, userID uuid.UUID) (*Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g := m.claim(userID); g != nil {
		return g, nil
	}
	if _, ok := m.waiting[userID]; !ok {
		return nil, nil
	}
	return m.pair(ctx, userID)
}

// Leave withdraws userID from the waiting list. A match made for userID that they have not
// collected yet is cancelled, so the opponent is not left in a game with nobody.
func (m *Matchmaker) Leave(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.waiting, userID)
	if id, ok := m.matched[userID]; ok {
		delete(m.matched, userID)
		if g, found := m.store.GetGame(id); found {
			g.Cancel()
		}
	}
	return m.list.Remove(ctx, userID)
}

// Forget drops pending matches that point at an evicted game.
func (m *Matchmaker) Forget(gameID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, id := range m.matched {
		if id == gameID {
			delete(m.matched, userID)
		}
	}
}

// Waiting returns the number of players waiting in this process.
func (m *Matchmaker) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting)
}

// pair takes the longest waiting player still known to be waiting and seats them with userID.
// Entries left behind by players who are gone are discarded on the way. Called with m.mu held.
func (m *Matchmaker) pair(ctx context.Context, userID uuid.UUID) (*Game, error) {
	for {
		opp, ok, err := m.list.TakeOpponent(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if _, waiting := m.waiting[opp]; !waiting {
			continue
		}
		if err := m.list.Remove(ctx, userID); err != nil {
			// the opponent goes back to the tail
			_ = m.list.Enqueue(ctx, opp)
			return nil, err
		}

		g := NewPvpGame(opp, m.gridSize, m.pixelsToPlace)
		if err := g.Join(userID); err != nil {
			return nil, err
		}
		if err := m.store.AddGame(g); err != nil {
			return nil, err
		}
		delete(m.waiting, opp)
		delete(m.waiting, userID)
		m.matched[opp] = g.ID
		return g, nil
	}
}

// claim hands out a recorded match. Called with m.mu held.
func (m *Matchmaker) claim(userID uuid.UUID) *Game {
	id, ok := m.matched[userID]
	if !ok {
		return nil
	}
	delete(m.matched, userID)
	g, _ := m.store.GetGame(id)
	return g
}
