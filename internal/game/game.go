// internal/game/game.go
package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pixelduel/gamecore/internal/models"
)

// Game holds the authoritative state of one session in memory. All methods are safe for
// concurrent use.
type Game struct {
	ID        uuid.UUID
	Code      string
	Mode      models.Mode
	CreatedAt time.Time

	mu        sync.Mutex
	status    models.AuthorityStatus
	touchedAt time.Time
	player1ID uuid.UUID
	player2ID uuid.UUID

	// solo
	currentLevel int
	gridSize     int
	sequence     []models.Coordinate

	// pvp
	pixelsToPlace int
	pixels        map[uuid.UUID][]models.Pixel
	lastPlacement map[uuid.UUID]time.Time
	winnerID      uuid.UUID
}

// NewSoloGame starts a solo game at level 1.
func NewSoloGame(playerID uuid.UUID) *Game {
	now := time.Now()
	return &Game{
		ID:           uuid.New(),
		Code:         GenerateCode(),
		Mode:         models.ModeSolo,
		CreatedAt:    now,
		touchedAt:    now,
		status:       models.AuthorityInProgress,
		player1ID:    playerID,
		currentLevel: 1,
		gridSize:     GridSizeForLevel(1),
		sequence:     GenerateSequence(1),
	}
}

// NewPvpGame opens a pvp game that waits for a second player.
func NewPvpGame(creatorID uuid.UUID, gridSize, pixelsToPlace int) *Game {
	now := time.Now()
	return &Game{
		ID:            uuid.New(),
		Code:          GenerateCode(),
		Mode:          models.ModePvp,
		CreatedAt:     now,
		touchedAt:     now,
		status:        models.AuthorityWaiting,
		player1ID:     creatorID,
		gridSize:      gridSize,
		pixelsToPlace: pixelsToPlace,
		pixels:        make(map[uuid.UUID][]models.Pixel),
		lastPlacement: make(map[uuid.UUID]time.Time),
	}
}

// Join seats the second player and starts the race.
func (g *Game) Join(userID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.Mode != models.ModePvp:
		return ErrWrongMode
	case g.status != models.AuthorityWaiting:
		return ErrNotInProgress
	case g.player1ID == userID:
		return ErrOwnGame
	}
	g.player2ID = userID
	g.status = models.AuthorityInProgress
	g.touchedAt = time.Now()
	return nil
}

// IsParticipant reports whether userID occupies one of the seats.
func (g *Game) IsParticipant(userID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isParticipant(userID)
}

func (g *Game) isParticipant(userID uuid.UUID) bool {
	return userID != uuid.Nil && (g.player1ID == userID || g.player2ID == userID)
}

// Status returns the authority status.
func (g *Game) Status() models.AuthorityStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Opponent returns the other seat's user, or uuid.Nil.
func (g *Game) Opponent(userID uuid.UUID) uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.player1ID == userID {
		return g.player2ID
	}
	return g.player1ID
}

// Payload renders the game as seen by viewer.
func (g *Game) Payload(viewer uuid.UUID) *models.SessionPayload {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := &models.SessionPayload{
		ID:            g.ID.String(),
		Code:          g.Code,
		Mode:          g.Mode,
		Status:        g.status,
		GridSize:      g.gridSize,
		Player1ID:     g.player1ID.String(),
		CurrentUserID: viewer.String(),
	}
	if g.player2ID != uuid.Nil {
		p.Player2ID = g.player2ID.String()
	}

	if g.Mode == models.ModeSolo {
		p.CurrentLevel = g.currentLevel
		p.Sequence = append([]models.Coordinate{}, g.sequence...)
		return p
	}
	p.PixelsToPlace = g.pixelsToPlace
	p.Player1Pixels = append([]models.Pixel{}, g.pixels[g.player1ID]...)
	if g.player2ID != uuid.Nil {
		p.Player2Pixels = append([]models.Pixel{}, g.pixels[g.player2ID]...)
	}
	if g.winnerID != uuid.Nil {
		p.WinnerID = g.winnerID.String()
	}
	return p
}

// Answer grades a solo attempt. A correct attempt advances one level with a fresh sequence;
// a wrong one ends the game with the last completed level.
func (g *Game) Answer(userID uuid.UUID, seq []models.Coordinate) (*models.AnswerVerdict, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case !g.isParticipant(userID):
		return nil, ErrForbidden
	case g.Mode != models.ModeSolo:
		return nil, ErrWrongMode
	case g.status != models.AuthorityInProgress:
		return nil, ErrNotInProgress
	}

	g.touchedAt = time.Now()
	if !models.SameSequence(seq, g.sequence) {
		g.status = models.AuthorityFinished
		return &models.AnswerVerdict{
			Correct:      false,
			Message:      "wrong sequence, game over",
			LevelReached: g.currentLevel - 1,
		}, nil
	}

	g.currentLevel++
	g.gridSize = GridSizeForLevel(g.currentLevel)
	g.sequence = GenerateSequence(g.currentLevel)
	return &models.AnswerVerdict{
		Correct:   true,
		Message:   "correct",
		NextLevel: g.currentLevel,
		GridSize:  g.gridSize,
		Sequence:  append([]models.Coordinate{}, g.sequence...),
	}, nil
}

// Place records a pvp pixel. The first player to reach the quota wins and the game ends.
// A positive cooldown rejects placements closer together than that.
func (g *Game) Place(userID uuid.UUID, p models.Placement, now time.Time, cooldown time.Duration) (*models.PlacementResult, models.Pixel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case !g.isParticipant(userID):
		return nil, models.Pixel{}, ErrForbidden
	case g.Mode != models.ModePvp:
		return nil, models.Pixel{}, ErrWrongMode
	case g.status == models.AuthorityFinished, g.status == models.AuthorityCancelled:
		return nil, models.Pixel{}, ErrFinished
	case g.status != models.AuthorityInProgress:
		return nil, models.Pixel{}, ErrNotInProgress
	case !ValidPlacement(p, g.gridSize):
		return nil, models.Pixel{}, ErrInvalidMove
	case len(g.pixels[userID]) >= g.pixelsToPlace:
		return nil, models.Pixel{}, ErrQuotaReached
	}
	if last, ok := g.lastPlacement[userID]; ok && cooldown > 0 && now.Sub(last) < cooldown {
		return nil, models.Pixel{}, ErrCooldown
	}

	px := models.Pixel{X: p.X, Y: p.Y, Color: p.Color, Timestamp: now.UnixMilli()}
	g.pixels[userID] = append(g.pixels[userID], px)
	g.lastPlacement[userID] = now
	g.touchedAt = now

	placed := len(g.pixels[userID])
	res := &models.PlacementResult{
		PixelsPlaced:    placed,
		PixelsRemaining: g.pixelsToPlace - placed,
	}
	if placed >= g.pixelsToPlace {
		g.status = models.AuthorityFinished
		g.winnerID = userID
		res.GameFinished = true
		res.WinnerID = userID.String()
	}
	return res, px, nil
}

// Finish ends the game for userID. A solo game is finished where it stands; a pvp game that
// has no winner yet is cancelled, since the player withdrew.
func (g *Game) Finish(userID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.isParticipant(userID) {
		return ErrForbidden
	}
	if g.Mode == models.ModeSolo {
		g.status = models.AuthorityFinished
	} else {
		g.cancel()
	}
	g.touchedAt = time.Now()
	return nil
}

// Cancel ends a waiting or running pvp game without a winner.
func (g *Game) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancel()
	g.touchedAt = time.Now()
}

func (g *Game) cancel() {
	if g.status == models.AuthorityWaiting || g.status == models.AuthorityInProgress {
		g.status = models.AuthorityCancelled
	}
}

// Ended reports whether the game is finished or cancelled.
func (g *Game) Ended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status == models.AuthorityFinished || g.status == models.AuthorityCancelled
}

// LastActivity is when the game was created or last changed.
func (g *Game) LastActivity() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.touchedAt
}
