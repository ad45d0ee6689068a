package pvp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pixelduel/gamecore/internal/authority"
	"github.com/pixelduel/gamecore/internal/models"
	"github.com/pixelduel/gamecore/internal/realtime"
	"github.com/pixelduel/gamecore/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// raceAuthority hands out one pvp session and counts placements against its quota.
type raceAuthority struct {
	payload  *models.SessionPayload
	placeErr error

	mu     sync.Mutex
	placed int
	calls  int
}

func (a *raceAuthority) CreateSession(context.Context, models.Mode) (*models.SessionPayload, error) {
	return a.payload, nil
}

func (a *raceAuthority) JoinSession(context.Context, string) (*models.SessionPayload, error) {
	return a.payload, nil
}

func (a *raceAuthority) GetSession(context.Context, string) (*models.SessionPayload, error) {
	return a.payload, nil
}

func (a *raceAuthority) JoinQueue(context.Context) (*models.QueueResult, error) {
	return &models.QueueResult{}, nil
}

func (a *raceAuthority) QueueStatus(context.Context) (*models.QueueResult, error) {
	return &models.QueueResult{}, nil
}

func (a *raceAuthority) LeaveQueue(context.Context) error { return nil }

func (a *raceAuthority) FinishSession(context.Context, string, models.GameStats) (*models.FinishSummary, error) {
	return nil, authority.ErrRejected
}

func (a *raceAuthority) Leaderboard(context.Context, int) ([]models.LeaderboardEntry, error) {
	return nil, nil
}

func (a *raceAuthority) PlacePixel(_ context.Context, _ string, _ models.Placement) (*models.PlacementResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.placeErr != nil {
		return nil, a.placeErr
	}
	a.placed++
	quota := a.payload.PixelsToPlace
	res := &models.PlacementResult{PixelsPlaced: a.placed, PixelsRemaining: quota - a.placed}
	if a.placed >= quota {
		res.GameFinished = true
		res.WinnerID = a.payload.CurrentUserID
	}
	return res, nil
}

func (a *raceAuthority) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type memChannel struct {
	registry *realtime.Registry

	mu        sync.Mutex
	connected bool
	sent      []realtime.Message
}

func (c *memChannel) Connect(context.Context, string, string) {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
}

func (c *memChannel) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *memChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *memChannel) Register(l realtime.Listener) realtime.Handle { return c.registry.Register(l) }
func (c *memChannel) Unregister(h realtime.Handle)                 { c.registry.Unregister(h) }

func (c *memChannel) Send(msg realtime.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		c.sent = append(c.sent, msg)
	}
}

func (c *memChannel) Sent() []realtime.MessageType {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []realtime.MessageType
	for _, m := range c.sent {
		out = append(out, m.Type)
	}
	return out
}

func racePayload(current string, quota int) *models.SessionPayload {
	return &models.SessionPayload{
		ID: "g1", Code: "QWE789", Mode: models.ModePvp, Status: models.AuthorityInProgress,
		Player1ID: "A", Player2ID: "B", CurrentUserID: current, GridSize: 10, PixelsToPlace: quota,
	}
}

func newRace(t *testing.T, a *raceAuthority) (*Engine, *session.Manager, *memChannel) {
	t.Helper()
	ch := &memChannel{registry: realtime.NewRegistry(nil)}
	m := session.NewManager(a, func() session.Channel { return ch }, nil)
	e := NewEngine(m, a, nil)
	e.now = func() time.Time { return time.UnixMilli(1700000000000) }
	_, err := m.JoinGame(context.Background(), a.payload.Code)
	require.NoError(t, err)
	require.True(t, ch.Connected())
	return e, m, ch
}

func TestPlacePixelRecordsAndBroadcasts(t *testing.T) {
	a := &raceAuthority{payload: racePayload("A", 5)}
	e, m, ch := newRace(t, a)

	res, err := e.PlacePixel(context.Background(), 3, 4, "#ff0000")
	require.NoError(t, err)
	assert.Equal(t, 1, res.PixelsPlaced)
	assert.Equal(t, 4, res.PixelsRemaining)

	s := m.Session()
	assert.Equal(t, 1, s.Pvp.PixelsPlaced)
	require.Len(t, s.Pvp.MyPixels, 1)
	assert.Equal(t, models.Pixel{X: 3, Y: 4, Color: "#ff0000", Timestamp: 1700000000000}, s.Pvp.MyPixels[0])
	assert.Equal(t, models.StatusPlaying, s.Status)
	assert.Equal(t, []realtime.MessageType{realtime.TypePixelPlaced}, ch.Sent())
}

func TestFinalPixelWinsAndClosesChannel(t *testing.T) {
	a := &raceAuthority{payload: racePayload("A", 2)}
	e, m, ch := newRace(t, a)

	_, err := e.PlacePixel(context.Background(), 0, 0, "#000000")
	require.NoError(t, err)
	res, err := e.PlacePixel(context.Background(), 1, 0, "#000000")
	require.NoError(t, err)
	assert.True(t, res.GameFinished)

	s := m.Session()
	assert.Equal(t, models.StatusFinished, s.Status)
	assert.Equal(t, "A", s.Pvp.WinnerID)
	assert.Equal(t, 2, s.Pvp.PixelsPlaced)
	assert.Equal(t, []realtime.MessageType{
		realtime.TypePixelPlaced, realtime.TypePixelPlaced, realtime.TypeGameFinished,
	}, ch.Sent())
	require.Eventually(t, func() bool { return !ch.Connected() }, time.Second, 5*time.Millisecond)

	_, err = e.PlacePixel(context.Background(), 2, 0, "#000000")
	assert.ErrorIs(t, err, ErrSessionFinished)
	assert.Equal(t, 2, a.Calls(), "finished games are not sent to the authority")
}

func TestQuotaReachedIsCheckedLocally(t *testing.T) {
	p := racePayload("B", 2)
	p.Player2Pixels = []models.Pixel{{X: 0, Y: 0}, {X: 1, Y: 1}}
	a := &raceAuthority{payload: p}
	e, _, _ := newRace(t, a)

	_, err := e.PlacePixel(context.Background(), 5, 5, "#00ff00")
	assert.ErrorIs(t, err, ErrQuotaReached)
	assert.Zero(t, a.Calls())
}

func TestRejectedPlacementKeepsState(t *testing.T) {
	a := &raceAuthority{payload: racePayload("A", 5), placeErr: authority.ErrUnreachable}
	e, m, ch := newRace(t, a)

	_, err := e.PlacePixel(context.Background(), 1, 1, "#000000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, authority.ErrUnreachable))

	s := m.Session()
	assert.Zero(t, s.Pvp.PixelsPlaced)
	assert.Empty(t, s.Pvp.MyPixels)
	assert.Empty(t, ch.Sent())
}

func TestInboundOpponentEvents(t *testing.T) {
	a := &raceAuthority{payload: racePayload("B", 5)}
	_, m, ch := newRace(t, a)

	own := realtime.NewPixelPlaced(realtime.PixelPlaced{X: 9, Y: 9, Color: "#111111"})
	own.UserID = "B"
	ch.registry.Dispatch(own)

	theirs := realtime.NewPixelPlaced(realtime.PixelPlaced{X: 2, Y: 3, Color: "#222222", Timestamp: 42})
	theirs.UserID = "A"
	ch.registry.Dispatch(theirs)
	ch.registry.Dispatch(realtime.Message{Type: realtime.TypePlayerConnected, UserID: "A"})

	s := m.Session()
	require.Len(t, s.Pvp.OpponentPixels, 1)
	assert.Equal(t, models.Pixel{X: 2, Y: 3, Color: "#222222", Timestamp: 42}, s.Pvp.OpponentPixels[0])
	assert.Equal(t, models.StatusPlaying, s.Status)

	fin := realtime.NewGameFinished("A")
	fin.UserID = "A"
	ch.registry.Dispatch(fin)

	s = m.Session()
	assert.Equal(t, models.StatusFinished, s.Status)
	assert.Equal(t, "A", s.Pvp.WinnerID)
	assert.False(t, m.Connected())
	require.Eventually(t, func() bool { return !ch.Connected() }, time.Second, 5*time.Millisecond)
}

func TestPlacePixelPreconditions(t *testing.T) {
	a := &raceAuthority{payload: racePayload("A", 5)}
	m := session.NewManager(a, nil, nil)
	e := NewEngine(m, a, nil)

	_, err := e.PlacePixel(context.Background(), 0, 0, "#000000")
	assert.ErrorIs(t, err, session.ErrNoActiveSession)

	a.payload = &models.SessionPayload{ID: "g2", Code: "WAIT22", Mode: models.ModePvp, Status: models.AuthorityWaiting, Player1ID: "A", CurrentUserID: "A"}
	_, err = m.CreateGame(context.Background(), models.ModePvp)
	require.NoError(t, err)
	_, err = e.PlacePixel(context.Background(), 0, 0, "#000000")
	assert.ErrorIs(t, err, ErrNotStarted)

	a.payload = &models.SessionPayload{ID: "s1", Mode: models.ModeSolo, Status: models.AuthorityInProgress}
	_, err = m.CreateGame(context.Background(), models.ModeSolo)
	require.NoError(t, err)
	_, err = e.PlacePixel(context.Background(), 0, 0, "#000000")
	assert.ErrorIs(t, err, ErrNotPvp)
	assert.Zero(t, a.Calls())
}
